package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/middleware"
	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/repository"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateFullName(ctx context.Context, userID, fullName string) (*model.Profile, error)
	GetUserEmails(ctx context.Context, actor authz.Actor, ids []string) ([]repository.UserEmail, error)
	// Withdraw はセッションを破棄したうえでアカウントを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はプロフィールとアカウントのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type updateProfileRequest struct {
	FullName string `json:"full_name"`
}

type userEmailsRequest struct {
	UserIDs []string `json:"user_ids"`
}

type userEmailResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// GetProfile は自分のプロフィールを返す。
// GET /api/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// UpdateProfile は表示名を更新する。
// PATCH /api/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	profile, err := h.service.UpdateFullName(r.Context(), userID, req.FullName)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// GetUserEmails は指定ユーザーのメールアドレスを返す。coachとadminのみ。
// POST /rpc/get_user_emails
func (h *UserHandler) GetUserEmails(w http.ResponseWriter, r *http.Request) {
	var req userEmailsRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	emails, err := h.service.GetUserEmails(r.Context(), middleware.ActorFromContext(r.Context()), req.UserIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]userEmailResponse, len(emails))
	for i, e := range emails {
		resp[i] = userEmailResponse{ID: e.ID, Email: e.Email}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
