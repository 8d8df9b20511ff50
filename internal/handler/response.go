package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/mockprep/internal/middleware"
	"github.com/hitoshi/mockprep/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの最大サイズ（1MB）。
const maxRequestBodySize = 1 << 20

// StoreFailureRecorder はストレージ障害をメトリクスに記録するインターフェース。
type StoreFailureRecorder interface {
	RecordStoreFailure(operation string)
}

// errorResponder はサービス層のエラーをHTTPレスポンスに変換する。
// 各ハンドラーに埋め込んで使用する。
type errorResponder struct {
	logger   *slog.Logger
	failures StoreFailureRecorder
}

func newErrorResponder(logger *slog.Logger, failures StoreFailureRecorder) errorResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return errorResponder{logger: logger, failures: failures}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外のエラーは詳細をログに記録し、汎用の内部エラーを返す。
func (e errorResponder) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == model.ErrCodeStorageFailure {
			e.logger.Error("ストレージ操作に失敗しました",
				slog.String("route", routePattern(r)),
				slog.String("error", err.Error()),
			)
			if e.failures != nil {
				e.failures.RecordStoreFailure(routePattern(r))
			}
		}
		middleware.WriteAPIError(w, apiErr)
		return
	}

	e.logger.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// routePattern はchiのルートパターンを返す。ルート情報が無い場合はパスを返す。
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// decodeJSONBody はリクエストボディをJSONとしてvにデコードする。
// allowEmpty がtrueの場合、空のボディはエラーにしない。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	if err != nil {
		return model.NewValidationError("リクエストボディの解析に失敗しました")
	}
	return nil
}

// writeJSON はvをJSONとして書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// callerID はリクエストコンテキストから呼び出し元のsubject IDを取得する。
// 取得できない場合は401を書き込みfalseを返す。
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return "", false
	}
	return userID, true
}
