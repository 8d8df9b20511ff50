package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/mockprep/internal/middleware"
	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Sync はトークンのsubject IDをキーにユーザーを冪等に保存する。
	Sync(ctx context.Context, claims *model.Claims, input user.SyncInput) (*model.User, error)
	// Get は呼び出し元のユーザー情報を取得する。
	Get(ctx context.Context, caller string) (*model.User, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	errorResponder
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, logger *slog.Logger, failures StoreFailureRecorder) *UserHandler {
	return &UserHandler{
		errorResponder: newErrorResponder(logger, failures),
		service:        service,
	}
}

// Sync はサインイン後のユーザー情報を同期する。
// POST /api/users/sync
func (h *UserHandler) Sync(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return
	}

	var input user.SyncInput
	if err := decodeJSONBody(w, r, &input, true); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	u, err := h.service.Sync(r.Context(), claims, input)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// Me は呼び出し元のユーザー情報を返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	u, err := h.service.Get(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}
