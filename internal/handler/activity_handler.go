package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moai/internal/activity"
	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/middleware"
	"github.com/hitoshi/moai/internal/model"
)

// ActivityServiceInterface はアクティビティハンドラーが必要とするサービスインターフェース。
type ActivityServiceInterface interface {
	StartWorkout(ctx context.Context, actor authz.Actor, workoutID string) (*model.WorkoutCompletion, error)
	Complete(ctx context.Context, actor authz.Actor, completionID string, in activity.CompleteInput) (*model.WorkoutCompletion, error)
	Log(ctx context.Context, actor authz.Actor, in activity.LogInput) (*model.WorkoutCompletion, error)
	List(ctx context.Context, actor authz.Actor, userID, from, to string) ([]*model.WorkoutCompletion, error)
}

// ActivityHandler はワークアウトの実施・完了・記録のHTTPハンドラー。
type ActivityHandler struct {
	service ActivityServiceInterface
}

// NewActivityHandler はActivityHandlerを生成する。
func NewActivityHandler(service ActivityServiceInterface) *ActivityHandler {
	return &ActivityHandler{service: service}
}

// StartWorkout は割り当てられたワークアウトの実施中レコードを作成する。
// POST /api/workouts/{id}/start
func (h *ActivityHandler) StartWorkout(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.StartWorkout(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompletionResponse(c))
}

// Complete は実施中レコードを完了にする。ボディは省略できる。
// POST /api/completions/{id}/complete
func (h *ActivityHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var in activity.CompleteInput
	if !decodeJSON(w, r, &in, true) {
		return
	}
	c, err := h.service.Complete(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompletionResponse(c))
}

// Log はプログラム外のアクティビティを記録する。
// POST /api/completions
func (h *ActivityHandler) Log(w http.ResponseWriter, r *http.Request) {
	var in activity.LogInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	c, err := h.service.Log(r.Context(), middleware.ActorFromContext(r.Context()), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompletionResponse(c))
}

// List は完了済みの記録を返す。
// GET /api/completions?user_id=&from=&to=
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.service.List(r.Context(), middleware.ActorFromContext(r.Context()), q.Get("user_id"), q.Get("from"), q.Get("to"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]completionResponse, len(list))
	for i, c := range list {
		resp[i] = toCompletionResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}
