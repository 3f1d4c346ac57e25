package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/middleware"
	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/program"
)

// ProgramServiceInterface はプログラムハンドラーが必要とするサービスインターフェース。
type ProgramServiceInterface interface {
	Create(ctx context.Context, actor authz.Actor, in program.Input) (*model.Program, error)
	List(ctx context.Context, actor authz.Actor) ([]*model.Program, error)
	Get(ctx context.Context, actor authz.Actor, id string) (*program.Detail, error)
	Update(ctx context.Context, actor authz.Actor, id string, in program.Input) (*model.Program, error)
	Delete(ctx context.Context, actor authz.Actor, id string) error
	SetWeekTargets(ctx context.Context, actor authz.Actor, programID string, weekNumber int, in program.WeekTargets) (*model.WorkoutWeek, error)
	AddWorkout(ctx context.Context, actor authz.Actor, programID string, weekNumber int, in program.WorkoutInput) (*model.Workout, error)
	MoveWorkout(ctx context.Context, actor authz.Actor, workoutID string, dir program.Direction) ([]*model.Workout, error)
	Assign(ctx context.Context, actor authz.Actor, in program.AssignInput) (*model.ProgramAssignment, error)
	CurrentAssignment(ctx context.Context, actor authz.Actor, userID string) (*model.ProgramAssignment, error)
}

// ProgramHandler はプログラム・週・ワークアウト・割り当てのHTTPハンドラー。
type ProgramHandler struct {
	service ProgramServiceInterface
}

// NewProgramHandler はProgramHandlerを生成する。
func NewProgramHandler(service ProgramServiceInterface) *ProgramHandler {
	return &ProgramHandler{service: service}
}

type moveWorkoutRequest struct {
	Direction program.Direction `json:"direction"`
}

// CreateProgram はプログラムを作成する。
// POST /api/programs
func (h *ProgramHandler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	var in program.Input
	if !decodeJSON(w, r, &in, false) {
		return
	}
	p, err := h.service.Create(r.Context(), middleware.ActorFromContext(r.Context()), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProgramResponse(p))
}

// ListPrograms は自分が作成したプログラムの一覧を返す。
// GET /api/programs
func (h *ProgramHandler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.service.List(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]programResponse, len(programs))
	for i, p := range programs {
		resp[i] = toProgramResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProgram はプログラムと全週の詳細を返す。
// GET /api/programs/{id}
func (h *ProgramHandler) GetProgram(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := programDetailResponse{
		programResponse: toProgramResponse(detail.Program),
		WeekDetails:     make([]weekDetailResponse, len(detail.Weeks)),
	}
	for i, wd := range detail.Weeks {
		resp.WeekDetails[i] = weekDetailResponse{
			WeekNumber: wd.WeekNumber,
			Week:       toWeekResponse(wd.Week),
			Workouts:   toWorkoutResponses(wd.Workouts),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateProgram はプログラムを更新する。
// PATCH /api/programs/{id}
func (h *ProgramHandler) UpdateProgram(w http.ResponseWriter, r *http.Request) {
	var in program.Input
	if !decodeJSON(w, r, &in, false) {
		return
	}
	p, err := h.service.Update(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgramResponse(p))
}

// DeleteProgram はプログラムを削除する。
// DELETE /api/programs/{id}
func (h *ProgramHandler) DeleteProgram(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetWeekTargets は週の目標値を設定する。
// PUT /api/programs/{id}/weeks/{week}
func (h *ProgramHandler) SetWeekTargets(w http.ResponseWriter, r *http.Request) {
	weekNumber, ok := weekParam(w, r)
	if !ok {
		return
	}
	var in program.WeekTargets
	if !decodeJSON(w, r, &in, false) {
		return
	}
	week, err := h.service.SetWeekTargets(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), weekNumber, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeekResponse(week))
}

// AddWorkout は週にワークアウトを追加する。
// POST /api/programs/{id}/weeks/{week}/workouts
func (h *ProgramHandler) AddWorkout(w http.ResponseWriter, r *http.Request) {
	weekNumber, ok := weekParam(w, r)
	if !ok {
		return
	}
	var in program.WorkoutInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	workout, err := h.service.AddWorkout(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), weekNumber, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkoutResponse(workout))
}

// MoveWorkout はワークアウトの並び順を隣と入れ替え、週のワークアウト一覧を返す。
// POST /api/workouts/{id}/move
func (h *ProgramHandler) MoveWorkout(w http.ResponseWriter, r *http.Request) {
	var req moveWorkoutRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	workouts, err := h.service.MoveWorkout(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), req.Direction)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkoutResponses(workouts))
}

// Assign はクライアントにプログラムを割り当てる。
// POST /api/assignments
func (h *ProgramHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var in program.AssignInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	a, err := h.service.Assign(r.Context(), middleware.ActorFromContext(r.Context()), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentResponse(a))
}

// CurrentAssignment は現在の割り当てを返す。割り当てがない場合はnull。
// GET /api/assignments/current?user_id=
func (h *ProgramHandler) CurrentAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.CurrentAssignment(r.Context(), middleware.ActorFromContext(r.Context()), r.URL.Query().Get("user_id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentResponse(a))
}

// weekParam はURLの週番号を解釈する。範囲の検証はサービス層で行う。
func weekParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "week"))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("週番号は整数で指定してください"))
		return 0, false
	}
	return n, true
}
