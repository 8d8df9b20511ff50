// Package aijson は生成AIの自由記述の応答から厳密なJSONテキストを復元する。
//
// モデルの応答にはMarkdownのコードフェンス、末尾カンマ、シングルクォート文字列、
// 制御文字などが混入することがある。Sanitizeはこれらを段階的に取り除き、
// 既に正しいJSONに対しては同じ値にパースされるテキストを返す（冪等）。
package aijson

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrUnrecoverable はどの段階を経ても正しいJSONを復元できなかったことを示す。
// 呼び出し元は応答の形を仮定してはならない。
var ErrUnrecoverable = errors.New("aijson: unrecoverable response")

// maxCandidates はJSON候補として試行する開始括弧の最大数。
const maxCandidates = 8

// fenceLinePattern は行全体がコードフェンス（言語タグ付きを含む）である行にマッチする。
// 正しいJSONの文字列リテラルは生の改行を含まないため、行頭のフェンスが文字列内にあることはない。
var fenceLinePattern = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_+.-]*[ \t]*$")

// leadingFencePattern はテキスト先頭に直接続くフェンスにマッチする。
var leadingFencePattern = regexp.MustCompile("^```[A-Za-z0-9_+.-]*")

// Sanitize は生の応答テキストから厳密に正しいJSONテキストを復元する。
// 処理順序:
//  1. コードフェンスの除去
//  2. CRと改行・タブ以外の制御文字の除去
//  3. 最初の '{' または '[' から対応する最後の閉じ括弧までの抽出
//  4. 閉じ括弧直前の末尾カンマの除去
//  5. シングルクォート文字列のダブルクォート化
//  6. 厳密パース。失敗時は文字列内の生の改行をエスケープして1回だけ再試行
//
// 復元できない場合はErrUnrecoverableを返す。
func Sanitize(raw string) (string, error) {
	s := stripFences(raw)
	s = stripControlChars(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrUnrecoverable
	}

	// 既に正しいJSONであればそのまま返す
	if json.Valid([]byte(s)) {
		return s, nil
	}

	for i, start := range candidateStarts(s) {
		if i >= maxCandidates {
			break
		}
		if out, ok := repair(extractSpan(s, start)); ok {
			return out, nil
		}
	}

	return "", ErrUnrecoverable
}

// Decode は応答テキストをSanitizeしたうえでvにデコードする。
func Decode(raw string, v any) error {
	s, err := Sanitize(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return ErrUnrecoverable
	}
	return nil
}

// DecodeValue は応答テキストを型なしの値（map[string]any, []any, float64, string, bool, nil）にデコードする。
// 検証前の値としてバリデータに渡すことを想定している。
func DecodeValue(raw string) (any, error) {
	var v any
	if err := Decode(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// repair は抽出した候補に末尾カンマ除去とクォート変換を適用し、パースできるか検証する。
func repair(span string) (string, bool) {
	s := removeTrailingCommas(span)
	s = convertSingleQuotes(s)
	s = strings.TrimSpace(s)

	if json.Valid([]byte(s)) {
		return s, true
	}

	// 最終手段: 文字列内に残った生の改行をエスケープして再試行
	escaped := escapeNewlinesInStrings(s)
	if json.Valid([]byte(escaped)) {
		return escaped, true
	}
	return "", false
}

// stripFences はフェンス行と、先頭・末尾に直接付いたフェンスを取り除く。
func stripFences(s string) string {
	s = fenceLinePattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = leadingFencePattern.ReplaceAllString(s, "")
	s = strings.TrimSuffix(s, "```")
	return s
}

// stripControlChars はCRを削除し、改行とタブ以外の制御文字を空白に置き換える。
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\r':
			continue
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r < 0x20:
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// candidateStarts は '{' または '[' の出現位置を先頭から順に返す。
func candidateStarts(s string) []int {
	var starts []int
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			starts = append(starts, i)
		}
	}
	return starts
}

// extractSpan はstartの開き括弧から、同じ種類の最後の閉じ括弧までを貪欲に切り出す。
// 閉じ括弧が無い場合はstart以降をすべて返す。
func extractSpan(s string, start int) string {
	closing := byte('}')
	if s[start] == '[' {
		closing = ']'
	}
	end := strings.LastIndexByte(s, closing)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// removeTrailingCommas は文字列リテラル外で閉じ括弧の直前にあるカンマを削除する。
// シングルクォートもこの段階では文字列の区切りとして扱う。
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}

		switch c {
		case '"', '\'':
			quote = c
		case ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// convertSingleQuotes はダブルクォート文字列の外にあるシングルクォート文字列を
// ダブルクォート文字列に書き換える。内部のダブルクォートはエスケープし、
// エスケープされたシングルクォートは通常の文字に戻す。
// 正しいJSONではシングルクォートが文字列外に現れないため、正しいJSONは変化しない。
func convertSingleQuotes(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			end := scanString(s, i, '"')
			b.WriteString(s[i:end])
			i = end - 1
		case '\'':
			end := scanString(s, i, '\'')
			body := s[i+1 : end]
			if end <= len(s) && end-1 > i && s[end-1] == '\'' {
				body = s[i+1 : end-1]
			}
			b.WriteByte('"')
			b.WriteString(requote(body))
			b.WriteByte('"')
			i = end - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// scanString はs[start]のクォートで始まる文字列リテラルの終端の次の位置を返す。
// 閉じクォートが無い場合はlen(s)を返す。
func scanString(s string, start int, quote byte) int {
	escaped := false
	for i := start + 1; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == quote:
			return i + 1
		}
	}
	return len(s)
}

// requote はシングルクォート文字列の中身をダブルクォート文字列の中身として正しい形に変換する。
func requote(body string) string {
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body) && body[i+1] == '\'':
			b.WriteByte('\'')
			i++
		case c == '\\' && i+1 < len(body):
			b.WriteByte(c)
			b.WriteByte(body[i+1])
			i++
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// escapeNewlinesInStrings はダブルクォート文字列内の生の改行とタブをエスケープシーケンスに置き換える。
func escapeNewlinesInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}
