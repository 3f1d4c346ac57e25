// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/moai/internal/middleware"
	"github.com/hitoshi/moai/internal/model"
)

const (
	dateLayout     = "2006-01-02"
	maxRequestBody = 1 << 20
)

// writeJSON はステータスコードとともにJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvに読み込む。空ボディはallowEmptyの場合のみ許可する。
// 失敗時はエラーレスポンスを書き込んでfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForError(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

func writeUnauthorized(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// --- レスポンス型 ---

type userResponse struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	UserMetadata model.UserMetadata `json:"user_metadata"`
	CreatedAt    time.Time          `json:"created_at"`
}

type sessionResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type authResponse struct {
	Session *sessionResponse `json:"session"`
	User    *userResponse    `json:"user"`
}

type profileResponse struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	FullName  string         `json:"full_name"`
	UserType  model.UserType `json:"user_type"`
	CreatedAt time.Time      `json:"created_at"`
}

type programResponse struct {
	ID          string            `json:"id"`
	CoachID     string            `json:"coach_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Weeks       int               `json:"weeks"`
	ProgramType model.ProgramType `json:"program_type"`
	CreatedAt   time.Time         `json:"created_at"`
}

type weekResponse struct {
	ID                             string  `json:"id"`
	ProgramID                      string  `json:"program_id"`
	WeekNumber                     int     `json:"week_number"`
	TargetMilesRun                 float64 `json:"target_miles_run"`
	TargetCardioMinutes            float64 `json:"target_cardio_minutes"`
	TargetStrengthWorkouts         int     `json:"target_strength_workouts"`
	TargetStrengthMobilityWorkouts int     `json:"target_strength_mobility_workouts"`
}

type workoutResponse struct {
	ID          string            `json:"id"`
	ProgramID   string            `json:"program_id"`
	WeekID      string            `json:"week_id"`
	Title       string            `json:"title"`
	WorkoutType model.WorkoutType `json:"workout_type"`
	OrderIndex  int               `json:"order_index"`
}

type weekDetailResponse struct {
	WeekNumber int               `json:"week_number"`
	Week       *weekResponse     `json:"week"`
	Workouts   []workoutResponse `json:"workouts"`
}

type programDetailResponse struct {
	programResponse
	WeekDetails []weekDetailResponse `json:"week_details"`
}

type assignmentResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProgramID string    `json:"program_id"`
	StartDate string    `json:"start_date"`
	EndDate   *string   `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
}

type completionResponse struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	WorkoutID       *string           `json:"workout_id"`
	CompletedAt     *time.Time        `json:"completed_at"`
	WorkoutType     model.WorkoutType `json:"workout_type"`
	Distance        *float64          `json:"distance"`
	Duration        *float64          `json:"duration"`
	RestDay         bool              `json:"rest_day"`
	LifeHappensPass bool              `json:"life_happens_pass"`
	Title           string            `json:"title,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

type invitationResponse struct {
	ID          string         `json:"id"`
	Token       string         `json:"token"`
	Email       *string        `json:"email"`
	UserType    model.UserType `json:"user_type"`
	IsShareLink bool           `json:"is_share_link"`
	ExpiresAt   time.Time      `json:"expires_at"`
	AcceptedAt  *time.Time     `json:"accepted_at"`
	Link        string         `json:"link,omitempty"`
	EmailSent   *bool          `json:"email_sent,omitempty"`
}

type groupResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CoachID   string    `json:"coach_id"`
	CreatedAt time.Time `json:"created_at"`
}

// --- 変換 ---

func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{ID: u.ID, Email: u.Email, UserMetadata: u.UserMetadata, CreatedAt: u.CreatedAt}
}

func toSessionResponse(s *model.Session) *sessionResponse {
	if s == nil {
		return nil
	}
	return &sessionResponse{ID: s.ID, UserID: s.UserID, AccessToken: s.AccessToken, ExpiresAt: s.ExpiresAt}
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{ID: p.ID, Email: p.Email, FullName: p.FullName, UserType: p.UserType, CreatedAt: p.CreatedAt}
}

func toProgramResponse(p *model.Program) programResponse {
	return programResponse{
		ID:          p.ID,
		CoachID:     p.CoachID,
		Title:       p.Title,
		Description: p.Description,
		Weeks:       p.Weeks,
		ProgramType: p.ProgramType,
		CreatedAt:   p.CreatedAt,
	}
}

func toWeekResponse(w *model.WorkoutWeek) *weekResponse {
	if w == nil {
		return nil
	}
	return &weekResponse{
		ID:                             w.ID,
		ProgramID:                      w.ProgramID,
		WeekNumber:                     w.WeekNumber,
		TargetMilesRun:                 w.TargetMilesRun,
		TargetCardioMinutes:            w.TargetCardioMinutes,
		TargetStrengthWorkouts:         w.TargetStrengthWorkouts,
		TargetStrengthMobilityWorkouts: w.TargetStrengthMobilityWorkouts,
	}
}

func toWorkoutResponse(w *model.Workout) workoutResponse {
	return workoutResponse{
		ID:          w.ID,
		ProgramID:   w.ProgramID,
		WeekID:      w.WeekID,
		Title:       w.Title,
		WorkoutType: w.WorkoutType,
		OrderIndex:  w.OrderIndex,
	}
}

func toWorkoutResponses(ws []*model.Workout) []workoutResponse {
	out := make([]workoutResponse, len(ws))
	for i, w := range ws {
		out[i] = toWorkoutResponse(w)
	}
	return out
}

func toAssignmentResponse(a *model.ProgramAssignment) assignmentResponse {
	resp := assignmentResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		ProgramID: a.ProgramID,
		StartDate: a.StartDate.Format(dateLayout),
		CreatedAt: a.CreatedAt,
	}
	if a.EndDate != nil {
		end := a.EndDate.Format(dateLayout)
		resp.EndDate = &end
	}
	return resp
}

func toCompletionResponse(c *model.WorkoutCompletion) completionResponse {
	return completionResponse{
		ID:              c.ID,
		UserID:          c.UserID,
		WorkoutID:       c.WorkoutID,
		CompletedAt:     c.CompletedAt,
		WorkoutType:     c.WorkoutType,
		Distance:        c.Distance,
		Duration:        c.Duration,
		RestDay:         c.RestDay,
		LifeHappensPass: c.LifeHappensPass,
		Title:           c.Title,
		Notes:           c.Notes,
		CreatedAt:       c.CreatedAt,
	}
}

func toInvitationResponse(inv *model.Invitation) invitationResponse {
	return invitationResponse{
		ID:          inv.ID,
		Token:       inv.Token,
		Email:       inv.Email,
		UserType:    inv.UserType,
		IsShareLink: inv.IsShareLink,
		ExpiresAt:   inv.ExpiresAt,
		AcceptedAt:  inv.AcceptedAt,
	}
}

func toGroupResponse(g *model.Group) groupResponse {
	return groupResponse{ID: g.ID, Name: g.Name, CoachID: g.CoachID, CreatedAt: g.CreatedAt}
}
