package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/group"
	"github.com/hitoshi/moai/internal/middleware"
	"github.com/hitoshi/moai/internal/model"
)

// GroupServiceInterface はグループハンドラーが必要とするサービスインターフェース。
type GroupServiceInterface interface {
	Create(ctx context.Context, actor authz.Actor, in group.CreateInput) (*model.Group, error)
	List(ctx context.Context, actor authz.Actor, coachID string) ([]*model.Group, error)
	Members(ctx context.Context, actor authz.Actor, groupID string) ([]string, error)
	AddMember(ctx context.Context, actor authz.Actor, groupID, userID string) error
	RemoveMember(ctx context.Context, actor authz.Actor, groupID, userID string) error
}

// GroupHandler はコーチのグループとメンバー管理のHTTPハンドラー。
type GroupHandler struct {
	service GroupServiceInterface
}

// NewGroupHandler はGroupHandlerを生成する。
func NewGroupHandler(service GroupServiceInterface) *GroupHandler {
	return &GroupHandler{service: service}
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

// Create はグループを作成する。
// POST /api/groups
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in group.CreateInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	g, err := h.service.Create(r.Context(), middleware.ActorFromContext(r.Context()), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupResponse(g))
}

// List はグループ一覧を返す。adminは?coach_id=で対象コーチを指定する。
// GET /api/groups
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.List(r.Context(), middleware.ActorFromContext(r.Context()), r.URL.Query().Get("coach_id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]groupResponse, len(groups))
	for i, g := range groups {
		resp[i] = toGroupResponse(g)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Members はグループのメンバーIDを返す。
// GET /api/groups/{id}/members
func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.Members(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"user_ids": ids})
}

// AddMember はクライアントをグループに追加する。
// POST /api/groups/{id}/members
func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := h.service.AddMember(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), req.UserID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember はクライアントをグループから外す。
// DELETE /api/groups/{id}/members/{userId}
func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveMember(r.Context(), middleware.ActorFromContext(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
