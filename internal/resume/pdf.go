package resume

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadablePDF はPDFからテキストを取り出せなかったことを示す。
var ErrUnreadablePDF = errors.New("PDFを読み取れませんでした")

// pdfMagic はPDFファイルの先頭バイト列。
var pdfMagic = []byte("%PDF-")

// IsPDF はdataがPDFファイルの先頭を持つかを返す。
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// ExtractPDFText はPDFの各ページのテキストを取り出し、ページごとに改行で連結する。
// 壊れたPDFや暗号化されたPDFはErrUnreadablePDFを返す。
func ExtractPDFText(data []byte) (text string, err error) {
	if !IsPDF(data) {
		return "", ErrUnreadablePDF
	}
	// 不正な入力でパーサーがpanicすることがある
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %v", ErrUnreadablePDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: %d ページ目: %v", ErrUnreadablePDF, i, err)
		}
		b.WriteString(pageText)
		b.WriteByte('\n')
	}
	return normalizeLines(b.String()), nil
}
