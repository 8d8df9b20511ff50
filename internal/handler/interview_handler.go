package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mockprep/internal/model"
)

// InterviewServiceInterface は面接ハンドラーが必要とするサービスインターフェース。
// interview.Serviceが満たす。
type InterviewServiceInterface interface {
	GetAll(ctx context.Context, caller string) ([]*model.Interview, error)
	GetByID(ctx context.Context, caller, id string) (*model.Interview, error)
	Create(ctx context.Context, caller string, input model.InterviewInput) (*model.Interview, error)
	Update(ctx context.Context, caller, id string, patch model.InterviewPatch) (*model.Interview, error)
	Delete(ctx context.Context, caller, id string) error

	// GenerateQuestions はAIで質問を生成し、面接の質問リストを置き換える。
	GenerateQuestions(ctx context.Context, caller, id string) (*model.Interview, error)

	CreateAnswer(ctx context.Context, caller string, input model.AnswerInput) (*model.UserAnswer, error)
	GetAnswersByInterviewID(ctx context.Context, caller, interviewID string) ([]*model.UserAnswer, error)
}

// InterviewHandler は面接・回答のHTTPハンドラー。
type InterviewHandler struct {
	errorResponder
	service InterviewServiceInterface
}

// NewInterviewHandler はInterviewHandlerを生成する。
func NewInterviewHandler(service InterviewServiceInterface, logger *slog.Logger, failures StoreFailureRecorder) *InterviewHandler {
	return &InterviewHandler{
		errorResponder: newErrorResponder(logger, failures),
		service:        service,
	}
}

// createInterviewRequest は面接作成リクエストのボディ。
type createInterviewRequest struct {
	Position    string                 `json:"position"`
	Description string                 `json:"description"`
	Experience  int                    `json:"experience"`
	TechStack   string                 `json:"techStack"`
	Questions   []model.QuestionAnswer `json:"questions"`
}

// updateInterviewRequest は面接更新リクエストのボディ。省略したフィールドは変更しない。
type updateInterviewRequest struct {
	Position    *string                `json:"position"`
	Description *string                `json:"description"`
	Experience  *int                   `json:"experience"`
	TechStack   *string                `json:"techStack"`
	Questions   []model.QuestionAnswer `json:"questions"`
}

// createAnswerRequest は回答送信リクエストのボディ。
type createAnswerRequest struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// ListInterviews は呼び出し元の面接一覧を返す。
// GET /api/interviews
func (h *InterviewHandler) ListInterviews(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	interviews, err := h.service.GetAll(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if interviews == nil {
		interviews = []*model.Interview{}
	}

	writeJSON(w, http.StatusOK, interviews)
}

// CreateInterview は面接を作成する。
// POST /api/interviews
func (h *InterviewHandler) CreateInterview(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req createInterviewRequest
	if err := decodeJSONBody(w, r, &req, false); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	interview, err := h.service.Create(r.Context(), userID, model.InterviewInput{
		Position:    req.Position,
		Description: req.Description,
		Experience:  req.Experience,
		TechStack:   req.TechStack,
		Questions:   req.Questions,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, interview)
}

// GetInterview は面接を取得する。
// GET /api/interviews/{id}
func (h *InterviewHandler) GetInterview(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	interview, err := h.service.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, interview)
}

// UpdateInterview は面接を部分更新する。
// PUT /api/interviews/{id}
func (h *InterviewHandler) UpdateInterview(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req updateInterviewRequest
	if err := decodeJSONBody(w, r, &req, false); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	interview, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), model.InterviewPatch{
		Position:    req.Position,
		Description: req.Description,
		Experience:  req.Experience,
		TechStack:   req.TechStack,
		Questions:   req.Questions,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, interview)
}

// DeleteInterview は面接とその回答を削除する。
// DELETE /api/interviews/{id}
func (h *InterviewHandler) DeleteInterview(w http.ResponseWriter, r *http.Request) {
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

// GenerateQuestions はAIで質問を生成する。
// POST /api/interviews/{id}/questions
func (h *InterviewHandler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	interview, err := h.service.GenerateQuestions(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, interview)
}

// ListAnswers は面接に対する呼び出し元の回答一覧と平均評価を返す。
// GET /api/interviews/{id}/answers
func (h *InterviewHandler) ListAnswers(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	answers, err := h.service.GetAnswersByInterviewID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewAnswerList(answers))
}

// CreateAnswer は回答を送信する。評価は非同期に行われるため202を返す。
// POST /api/interviews/{id}/answers
func (h *InterviewHandler) CreateAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req createAnswerRequest
	if err := decodeJSONBody(w, r, &req, false); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	answer, err := h.service.CreateAnswer(r.Context(), userID, model.AnswerInput{
		InterviewID: chi.URLParam(r, "id"),
		QuestionID:  req.QuestionID,
		Answer:      req.Answer,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, answer)
}
