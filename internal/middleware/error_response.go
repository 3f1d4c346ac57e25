package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/moai/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
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
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// StatusForError はAPIエラーコードに対応するHTTPステータスを返す。
func StatusForError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeUserTypeMismatch:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodeProfileNotFound,
		model.ErrCodeProgramNotFound, model.ErrCodeWorkoutNotFound,
		model.ErrCodeCompletionNotFound, model.ErrCodeInvitationNotFound,
		model.ErrCodeGroupNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailAlreadyExists, model.ErrCodeAlreadyCompleted,
		model.ErrCodeInvitationUsed:
		return http.StatusConflict
	case model.ErrCodeInvitationExpired:
		return http.StatusGone
	default:
		return http.StatusBadRequest
	}
}
