package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/invitation"
	"github.com/hitoshi/moai/internal/middleware"
	"github.com/hitoshi/moai/internal/model"
)

// InvitationServiceInterface は招待ハンドラーが必要とするサービスインターフェース。
type InvitationServiceInterface interface {
	Create(ctx context.Context, actor authz.Actor, email string, userType model.UserType) (*invitation.Created, error)
	CreateShareLink(ctx context.Context, actor authz.Actor, userType model.UserType) (*invitation.Created, error)
	Validate(ctx context.Context, token string) (*model.Invitation, error)
}

// InvitationHandler は招待のHTTPハンドラー。
type InvitationHandler struct {
	service InvitationServiceInterface
}

// NewInvitationHandler はInvitationHandlerを生成する。
func NewInvitationHandler(service InvitationServiceInterface) *InvitationHandler {
	return &InvitationHandler{service: service}
}

type createInvitationRequest struct {
	Email    string         `json:"email"`
	UserType model.UserType `json:"user_type"`
}

type shareLinkRequest struct {
	UserType model.UserType `json:"user_type"`
}

// Create はメールアドレス宛ての招待を作成し、招待メールを送信する。
// POST /api/invitations
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInvitationRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	created, err := h.service.Create(r.Context(), middleware.ActorFromContext(r.Context()), req.Email, req.UserType)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCreatedResponse(created))
}

// CreateShareLink は宛先を持たない共有リンクを作成する。
// POST /api/invitations/share-link
func (h *InvitationHandler) CreateShareLink(w http.ResponseWriter, r *http.Request) {
	var req shareLinkRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	created, err := h.service.CreateShareLink(r.Context(), middleware.ActorFromContext(r.Context()), req.UserType)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCreatedResponse(created))
}

// Validate は招待トークンの有効性を確認し、招待内容を返す。認証不要。
// GET /invitations/{token}
func (h *InvitationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Validate(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvitationResponse(inv))
}

func toCreatedResponse(c *invitation.Created) invitationResponse {
	resp := toInvitationResponse(c.Invitation)
	resp.Link = c.Link
	if !c.Invitation.IsShareLink {
		sent := c.EmailSent
		resp.EmailSent = &sent
	}
	return resp
}
