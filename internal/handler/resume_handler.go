package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mockprep/internal/model"
)

// ResumeServiceInterface は職務経歴書ハンドラーが必要とするサービスインターフェース。
type ResumeServiceInterface interface {
	Analyze(ctx context.Context, caller string, input model.ResumeInput) (*model.ResumeAnalysis, error)
	Get(ctx context.Context, caller, id string) (*model.ResumeAnalysis, error)
	List(ctx context.Context, caller string) ([]*model.ResumeAnalysis, error)
	Delete(ctx context.Context, caller, id string) error
}

// ResumeHandler は職務経歴書分析のHTTPハンドラー。
type ResumeHandler struct {
	errorResponder
	service ResumeServiceInterface
}

// NewResumeHandler はResumeHandlerを生成する。
func NewResumeHandler(service ResumeServiceInterface, logger *slog.Logger, failures StoreFailureRecorder) *ResumeHandler {
	return &ResumeHandler{
		errorResponder: newErrorResponder(logger, failures),
		service:        service,
	}
}

const (
	// maxResumeUploadSize はPDFアップロード時のリクエストボディの最大サイズ（10MB）。
	maxResumeUploadSize = 10 << 20
	// multipartMemory はマルチパートの解析でメモリに保持する上限。超えた分は一時ファイルに置かれる。
	multipartMemory = 2 << 20
	// resumeFileField はPDFファイルのフォーム項目名。
	resumeFileField = "resume"
)

// analyzeResumeRequest は職務経歴書分析リクエストのボディ。
// resumeTextにはプレーンテキストまたはHTMLを指定できる。
type analyzeResumeRequest struct {
	CompanyName    string `json:"companyName"`
	JobTitle       string `json:"jobTitle"`
	JobDescription string `json:"jobDescription"`
	ResumeText     string `json:"resumeText"`
}

// AnalyzeResume は職務経歴書を分析して結果を保存する。
// JSON（resumeText）またはmultipart/form-data（resumeにPDFファイル）を受け付ける。
// POST /api/resumes
func (h *ResumeHandler) AnalyzeResume(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	input, err := parseResumeInput(w, r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	analysis, err := h.service.Analyze(r.Context(), userID, input)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, analysis)
}

// ListResumes は呼び出し元の分析結果一覧を返す。
// GET /api/resumes
func (h *ResumeHandler) ListResumes(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	analyses, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if analyses == nil {
		analyses = []*model.ResumeAnalysis{}
	}

	writeJSON(w, http.StatusOK, analyses)
}

// GetResume は分析結果を取得する。
// GET /api/resumes/{id}
func (h *ResumeHandler) GetResume(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	analysis, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// DeleteResume は分析結果を削除する。
// DELETE /api/resumes/{id}
func (h *ResumeHandler) DeleteResume(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseResumeInput はContent-Typeに応じてリクエストから分析の入力を組み立てる。
func parseResumeInput(w http.ResponseWriter, r *http.Request) (model.ResumeInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req analyzeResumeRequest
		if err := decodeJSONBody(w, r, &req, false); err != nil {
			return model.ResumeInput{}, err
		}
		return model.ResumeInput{
			CompanyName:    req.CompanyName,
			JobTitle:       req.JobTitle,
			JobDescription: req.JobDescription,
			ResumeText:     req.ResumeText,
		}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxResumeUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.ResumeInput{}, model.NewValidationError(fmt.Sprintf("ファイルサイズは%dMB以下にしてください", maxResumeUploadSize>>20))
		}
		return model.ResumeInput{}, model.NewValidationError("リクエストボディの解析に失敗しました")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(resumeFileField)
	if err != nil {
		return model.ResumeInput{}, model.NewValidationError("resumeファイルは必須です")
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/pdf" && ct != "application/octet-stream" {
		return model.ResumeInput{}, model.NewValidationError("PDFファイルのみ対応しています")
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return model.ResumeInput{}, model.NewValidationError("ファイルの読み取りに失敗しました")
	}
	if len(data) == 0 {
		return model.ResumeInput{}, model.NewValidationError("resumeファイルが空です")
	}

	return model.ResumeInput{
		CompanyName:    r.FormValue("companyName"),
		JobTitle:       r.FormValue("jobTitle"),
		JobDescription: r.FormValue("jobDescription"),
		ResumePDF:      data,
	}, nil
}
