package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/mockprep/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// codeはクライアントが分岐に使う安定した識別子で、messageとactionは表示用。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteAPIError はエラーコードに対応するステータスでレスポンスを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForAPIError(apiErr), apiErr)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalError())
}

// statusByCode はエラーコードとHTTPステータスの対応表。
// 所有者以外へのアクセスは存在しない場合と区別せず404を返す。
var statusByCode = map[string]int{
	model.ErrCodeAuthRequired:        http.StatusUnauthorized,
	model.ErrCodeNotFoundOrForbidden: http.StatusNotFound,
	model.ErrCodeAITransport:         http.StatusBadGateway,
	model.ErrCodeAIMalformed:         http.StatusBadGateway,
	model.ErrCodeValidationFailure:   http.StatusBadRequest,
	model.ErrCodeRateLimited:         http.StatusTooManyRequests,
	model.ErrCodeStorageFailure:      http.StatusInternalServerError,
	model.ErrCodeInternal:            http.StatusInternalServerError,
}

// StatusForAPIError はAPIErrorコードからHTTPステータスコードにマッピングする。
// 未知のコードは500として扱う。
func StatusForAPIError(apiErr *model.APIError) int {
	if status, ok := statusByCode[apiErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
