package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/moai/internal/activity"
	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/model"
)

func TestActivityHandler_StartWorkout_Created(t *testing.T) {
	var gotWorkout string
	svc := &mockActivityService{
		startWorkoutFn: func(ctx context.Context, actor authz.Actor, workoutID string) (*model.WorkoutCompletion, error) {
			gotWorkout = workoutID
			return &model.WorkoutCompletion{ID: "c1", UserID: actor.UserID, WorkoutID: &workoutID, WorkoutType: model.WorkoutTypeStrength}, nil
		},
	}
	h := NewActivityHandler(svc)

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/workouts/wo-1/start", nil), "client-1", model.UserTypeClient)
	w := serveProgramRoute(http.MethodPost, "/api/workouts/{id}/start", h.StartWorkout, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotWorkout != "wo-1" {
		t.Errorf("workout = %q, want wo-1", gotWorkout)
	}
	var body completionResponse
	decodeBody(t, w, &body)
	if body.CompletedAt != nil {
		t.Error("started completion should not have completed_at")
	}
}

func TestActivityHandler_Complete_EmptyBodyAllowed(t *testing.T) {
	var gotInput activity.CompleteInput
	called := false
	svc := &mockActivityService{
		completeFn: func(ctx context.Context, actor authz.Actor, id string, in activity.CompleteInput) (*model.WorkoutCompletion, error) {
			called = true
			gotInput = in
			now := time.Now()
			return &model.WorkoutCompletion{ID: id, CompletedAt: &now}, nil
		},
	}
	h := NewActivityHandler(svc)

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/completions/c1/complete", nil), "client-1", model.UserTypeClient)
	w := serveProgramRoute(http.MethodPost, "/api/completions/{id}/complete", h.Complete, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !called {
		t.Fatal("expected Complete to be called")
	}
	if gotInput.Distance != nil || gotInput.Duration != nil {
		t.Errorf("input = %+v, want zero value", gotInput)
	}
}

func TestActivityHandler_Complete_WithMetrics(t *testing.T) {
	var gotInput activity.CompleteInput
	svc := &mockActivityService{
		completeFn: func(ctx context.Context, actor authz.Actor, id string, in activity.CompleteInput) (*model.WorkoutCompletion, error) {
			gotInput = in
			return &model.WorkoutCompletion{ID: id, Distance: in.Distance, Duration: in.Duration}, nil
		},
	}
	h := NewActivityHandler(svc)

	req := withActor(jsonRequest(http.MethodPost, "/api/completions/c1/complete", `{"distance":3.1,"duration":28}`), "client-1", model.UserTypeClient)
	w := serveProgramRoute(http.MethodPost, "/api/completions/{id}/complete", h.Complete, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotInput.Distance == nil || *gotInput.Distance != 3.1 {
		t.Errorf("distance = %v, want 3.1", gotInput.Distance)
	}
	if gotInput.Duration == nil || *gotInput.Duration != 28 {
		t.Errorf("duration = %v, want 28", gotInput.Duration)
	}
}

func TestActivityHandler_Complete_AlreadyCompleted(t *testing.T) {
	svc := &mockActivityService{
		completeFn: func(ctx context.Context, actor authz.Actor, id string, in activity.CompleteInput) (*model.WorkoutCompletion, error) {
			return nil, model.NewAlreadyCompletedError()
		},
	}
	h := NewActivityHandler(svc)

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/completions/c1/complete", nil), "client-1", model.UserTypeClient)
	w := serveProgramRoute(http.MethodPost, "/api/completions/{id}/complete", h.Complete, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestActivityHandler_Log_Created(t *testing.T) {
	var got activity.LogInput
	svc := &mockActivityService{
		logFn: func(ctx context.Context, actor authz.Actor, in activity.LogInput) (*model.WorkoutCompletion, error) {
			got = in
			return &model.WorkoutCompletion{ID: "c2", WorkoutType: in.WorkoutType, Duration: in.Duration}, nil
		},
	}
	h := NewActivityHandler(svc)

	req := withActor(jsonRequest(http.MethodPost, "/api/completions",
		`{"workout_type":"cardio","duration":45,"title":"Bike"}`), "client-1", model.UserTypeClient)
	w := httptest.NewRecorder()
	h.Log(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.WorkoutType != model.WorkoutTypeCardio || got.Title != "Bike" {
		t.Errorf("input = %+v", got)
	}
}

func TestActivityHandler_Log_InvalidActivity(t *testing.T) {
	svc := &mockActivityService{
		logFn: func(ctx context.Context, actor authz.Actor, in activity.LogInput) (*model.WorkoutCompletion, error) {
			return nil, model.NewInvalidActivityError("種別が不正です")
		},
	}
	h := NewActivityHandler(svc)

	req := withActor(jsonRequest(http.MethodPost, "/api/completions", `{"workout_type":"swimming"}`), "client-1", model.UserTypeClient)
	w := httptest.NewRecorder()
	h.Log(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestActivityHandler_List_PassesQuery(t *testing.T) {
	var gotUser, gotFrom, gotTo string
	svc := &mockActivityService{
		listFn: func(ctx context.Context, actor authz.Actor, userID, from, to string) ([]*model.WorkoutCompletion, error) {
			gotUser, gotFrom, gotTo = userID, from, to
			return []*model.WorkoutCompletion{{ID: "c1"}, {ID: "c2"}}, nil
		},
	}
	h := NewActivityHandler(svc)

	req := withActor(httptest.NewRequest(http.MethodGet, "/api/completions?user_id=client-2&from=2026-03-02&to=2026-03-08", nil), "coach-1", model.UserTypeCoach)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotUser != "client-2" || gotFrom != "2026-03-02" || gotTo != "2026-03-08" {
		t.Errorf("query = %q %q %q", gotUser, gotFrom, gotTo)
	}
	var body []completionResponse
	decodeBody(t, w, &body)
	if len(body) != 2 {
		t.Errorf("len = %d, want 2", len(body))
	}
}
