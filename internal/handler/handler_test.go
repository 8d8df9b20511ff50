package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mockprep/internal/middleware"
	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/user"
)

// --- モック定義 ---

// mockInterviewService はInterviewServiceInterfaceのモック実装。
type mockInterviewService struct {
	getAllFn            func(ctx context.Context, caller string) ([]*model.Interview, error)
	getByIDFn           func(ctx context.Context, caller, id string) (*model.Interview, error)
	createFn            func(ctx context.Context, caller string, input model.InterviewInput) (*model.Interview, error)
	updateFn            func(ctx context.Context, caller, id string, patch model.InterviewPatch) (*model.Interview, error)
	deleteFn            func(ctx context.Context, caller, id string) error
	generateQuestionsFn func(ctx context.Context, caller, id string) (*model.Interview, error)
	createAnswerFn      func(ctx context.Context, caller string, input model.AnswerInput) (*model.UserAnswer, error)
	getAnswersFn        func(ctx context.Context, caller, interviewID string) ([]*model.UserAnswer, error)
}

func (m *mockInterviewService) GetAll(ctx context.Context, caller string) ([]*model.Interview, error) {
	if m.getAllFn != nil {
		return m.getAllFn(ctx, caller)
	}
	return nil, nil
}

func (m *mockInterviewService) GetByID(ctx context.Context, caller, id string) (*model.Interview, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, caller, id)
	}
	return &model.Interview{ID: id, OwnerID: caller}, nil
}

func (m *mockInterviewService) Create(ctx context.Context, caller string, input model.InterviewInput) (*model.Interview, error) {
	if m.createFn != nil {
		return m.createFn(ctx, caller, input)
	}
	return &model.Interview{ID: "interview-1", OwnerID: caller, Position: input.Position}, nil
}

func (m *mockInterviewService) Update(ctx context.Context, caller, id string, patch model.InterviewPatch) (*model.Interview, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, caller, id, patch)
	}
	return &model.Interview{ID: id, OwnerID: caller}, nil
}

func (m *mockInterviewService) Delete(ctx context.Context, caller, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, caller, id)
	}
	return nil
}

func (m *mockInterviewService) GenerateQuestions(ctx context.Context, caller, id string) (*model.Interview, error) {
	if m.generateQuestionsFn != nil {
		return m.generateQuestionsFn(ctx, caller, id)
	}
	return &model.Interview{ID: id, OwnerID: caller}, nil
}

func (m *mockInterviewService) CreateAnswer(ctx context.Context, caller string, input model.AnswerInput) (*model.UserAnswer, error) {
	if m.createAnswerFn != nil {
		return m.createAnswerFn(ctx, caller, input)
	}
	return &model.UserAnswer{ID: "answer-1", InterviewID: input.InterviewID, QuestionID: input.QuestionID, UserID: caller}, nil
}

func (m *mockInterviewService) GetAnswersByInterviewID(ctx context.Context, caller, interviewID string) ([]*model.UserAnswer, error) {
	if m.getAnswersFn != nil {
		return m.getAnswersFn(ctx, caller, interviewID)
	}
	return nil, nil
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	syncFn func(ctx context.Context, claims *model.Claims, input user.SyncInput) (*model.User, error)
	getFn  func(ctx context.Context, caller string) (*model.User, error)
}

func (m *mockUserService) Sync(ctx context.Context, claims *model.Claims, input user.SyncInput) (*model.User, error) {
	if m.syncFn != nil {
		return m.syncFn(ctx, claims, input)
	}
	return &model.User{ID: claims.SubjectID, Email: input.Email, Name: input.Name}, nil
}

func (m *mockUserService) Get(ctx context.Context, caller string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, caller)
	}
	return &model.User{ID: caller}, nil
}

// mockResumeService はResumeServiceInterfaceのモック実装。
type mockResumeService struct {
	analyzeFn func(ctx context.Context, caller string, input model.ResumeInput) (*model.ResumeAnalysis, error)
	getFn     func(ctx context.Context, caller, id string) (*model.ResumeAnalysis, error)
	listFn    func(ctx context.Context, caller string) ([]*model.ResumeAnalysis, error)
	deleteFn  func(ctx context.Context, caller, id string) error
}

func (m *mockResumeService) Analyze(ctx context.Context, caller string, input model.ResumeInput) (*model.ResumeAnalysis, error) {
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, caller, input)
	}
	return &model.ResumeAnalysis{ID: "resume-1", OwnerID: caller, CompanyName: input.CompanyName}, nil
}

func (m *mockResumeService) Get(ctx context.Context, caller, id string) (*model.ResumeAnalysis, error) {
	if m.getFn != nil {
		return m.getFn(ctx, caller, id)
	}
	return &model.ResumeAnalysis{ID: id, OwnerID: caller}, nil
}

func (m *mockResumeService) List(ctx context.Context, caller string) ([]*model.ResumeAnalysis, error) {
	if m.listFn != nil {
		return m.listFn(ctx, caller)
	}
	return nil, nil
}

func (m *mockResumeService) Delete(ctx context.Context, caller, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, caller, id)
	}
	return nil
}

// mockMetrics はMetricsのモック実装。
type mockMetrics struct {
	mu            sync.Mutex
	statuses      []int
	storeFailures []string
}

func (m *mockMetrics) RecordHTTPStatus(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, statusCode)
}

func (m *mockMetrics) RecordStoreFailure(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeFailures = append(m.storeFailures, operation)
}

func (m *mockMetrics) failures() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.storeFailures...)
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withClaims はテスト用にリクエストコンテキストにクレームを注入するヘルパー。
func withClaims(r *http.Request, claims *model.Claims) *http.Request {
	ctx := middleware.ContextWithClaims(r.Context(), claims)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, body []byte) middleware.ErrorResponseBody {
	t.Helper()
	var resp middleware.ErrorResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to parse error response: %v (body=%s)", err, string(body))
	}
	return resp
}
