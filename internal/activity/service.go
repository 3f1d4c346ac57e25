// Package activity はクライアントのワークアウト開始・完了とアクティビティ記録を提供する。
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/progress"
	"github.com/hitoshi/moai/internal/repository"
	"github.com/hitoshi/moai/internal/security"
)

const maxNotesLength = 2000

// clockSkew はクライアント端末との時計のずれとして許容するcompleted_atの未来方向の幅。
const clockSkew = 5 * time.Minute

// Authorizer は対象ユーザーへのアクセス可否を判定するインターフェース。
type Authorizer interface {
	CanActFor(ctx context.Context, actor authz.Actor, targetUserID string) error
}

// CompleteInput は完了時に記録する実績値。
type CompleteInput struct {
	Distance *float64 `json:"distance"`
	Duration *float64 `json:"duration"`
}

// LogInput はプログラム外の自由記録の入力。
type LogInput struct {
	WorkoutType     model.WorkoutType `json:"workout_type"`
	Distance        *float64          `json:"distance"`
	Duration        *float64          `json:"duration"`
	RestDay         bool              `json:"rest_day"`
	LifeHappensPass bool              `json:"life_happens_pass"`
	Title           string            `json:"title"`
	Notes           string            `json:"notes"`
	CompletedAt     *time.Time        `json:"completed_at"`
}

// Repositories はサービスが使うリポジトリ群。
type Repositories struct {
	Workouts    repository.WorkoutRepository
	Assignments repository.AssignmentRepository
	Completions repository.CompletionRepository
}

// Service はアクティビティ記録のビジネスロジックを提供する。
type Service struct {
	repos     Repositories
	authz     Authorizer
	sanitizer security.TextSanitizer
	loc       *time.Location
	now       func() time.Time
}

// NewService はServiceを生成する。locは一覧の日付範囲を解釈する基準タイムゾーン。
func NewService(repos Repositories, authorizer Authorizer, sanitizer security.TextSanitizer, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repos:     repos,
		authz:     authorizer,
		sanitizer: sanitizer,
		loc:       loc,
		now:       time.Now,
	}
}

// SetNow はテスト用に現在時刻の取得関数を差し替える。
func (s *Service) SetNow(fn func() time.Time) {
	s.now = fn
}

// StartWorkout は割り当てられたワークアウトの実施中レコード（completed_atがNULL）を作成する。
// ワークアウトは現在の割り当て（今日を期間に含む最新の割り当て、なければ最新の割り当て）のプログラムに含まれている必要がある。
func (s *Service) StartWorkout(ctx context.Context, actor authz.Actor, workoutID string) (*model.WorkoutCompletion, error) {
	if actor.UserID == "" {
		return nil, model.NewUnauthorizedError()
	}
	w, err := s.repos.Workouts.FindByID(ctx, workoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to find workout: %w", err)
	}
	if w == nil {
		return nil, model.NewWorkoutNotFoundError(workoutID)
	}
	a, err := s.repos.Assignments.FindCurrent(ctx, actor.UserID, s.now().In(s.loc))
	if err != nil {
		return nil, fmt.Errorf("failed to find current assignment: %w", err)
	}
	if a == nil || a.ProgramID != w.ProgramID {
		return nil, model.NewForbiddenError()
	}

	c := &model.WorkoutCompletion{
		ID:          uuid.New().String(),
		UserID:      actor.UserID,
		WorkoutID:   &w.ID,
		WorkoutType: w.WorkoutType,
		Title:       w.Title,
		CreatedAt:   s.now(),
	}
	if err := s.repos.Completions.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to start workout: %w", err)
	}
	return c, nil
}

// Complete は実施中レコードを完了にする。完了済みの場合はALREADY_COMPLETEDを返す。
func (s *Service) Complete(ctx context.Context, actor authz.Actor, completionID string, in CompleteInput) (*model.WorkoutCompletion, error) {
	if err := validateAmounts(in.Distance, in.Duration); err != nil {
		return nil, err
	}
	c, err := s.findOwn(ctx, actor, completionID)
	if err != nil {
		return nil, err
	}
	if c.IsCompleted() {
		return nil, model.NewAlreadyCompletedError()
	}

	now := s.now()
	ok, err := s.repos.Completions.MarkCompleted(ctx, c.ID, now, in.Distance, in.Duration)
	if err != nil {
		return nil, fmt.Errorf("failed to complete workout: %w", err)
	}
	if !ok {
		return nil, model.NewAlreadyCompletedError()
	}

	c.CompletedAt = &now
	if in.Distance != nil {
		c.Distance = in.Distance
	}
	if in.Duration != nil {
		c.Duration = in.Duration
	}
	slog.Info("workout completed",
		slog.String("completion_id", c.ID),
		slog.String("user_id", c.UserID),
	)
	return c, nil
}

// Log はプログラム外のアクティビティを完了済みとして記録する。
// 休息日とライフハプンズパスは時間・距離なしで記録できる。
func (s *Service) Log(ctx context.Context, actor authz.Actor, in LogInput) (*model.WorkoutCompletion, error) {
	if actor.UserID == "" {
		return nil, model.NewUnauthorizedError()
	}
	if err := s.validateLog(in); err != nil {
		return nil, err
	}

	now := s.now()
	completedAt := now
	if in.CompletedAt != nil {
		completedAt = *in.CompletedAt
	}
	c := &model.WorkoutCompletion{
		ID:              uuid.New().String(),
		UserID:          actor.UserID,
		CompletedAt:     &completedAt,
		WorkoutType:     in.WorkoutType,
		Distance:        in.Distance,
		Duration:        in.Duration,
		RestDay:         in.RestDay,
		LifeHappensPass: in.LifeHappensPass,
		Title:           s.sanitizer.PlainText(in.Title),
		Notes:           s.sanitizer.PlainText(in.Notes),
		CreatedAt:       now,
	}
	if err := s.repos.Completions.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to log activity: %w", err)
	}
	return c, nil
}

// List はユーザーの完了済み記録を返す。
// from・toは基準タイムゾーンの暦日（YYYY-MM-DD）で、toの日を含む。省略時は今週。
func (s *Service) List(ctx context.Context, actor authz.Actor, userID, from, to string) ([]*model.WorkoutCompletion, error) {
	if userID == "" {
		userID = actor.UserID
	}
	if err := s.authz.CanActFor(ctx, actor, userID); err != nil {
		return nil, err
	}

	window := progress.CalendarWeek(s.now().In(s.loc))
	if from != "" {
		d, err := time.ParseInLocation("2006-01-02", from, s.loc)
		if err != nil {
			return nil, model.NewInvalidRequestError("fromはYYYY-MM-DD形式で指定してください")
		}
		window.Start = d
	}
	if to != "" {
		d, err := time.ParseInLocation("2006-01-02", to, s.loc)
		if err != nil {
			return nil, model.NewInvalidRequestError("toはYYYY-MM-DD形式で指定してください")
		}
		window.End = d.AddDate(0, 0, 1)
	}
	if !window.End.After(window.Start) {
		return nil, model.NewInvalidRequestError("toはfrom以降の日付を指定してください")
	}

	list, err := s.repos.Completions.ListCompletedBetween(ctx, userID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	if list == nil {
		list = []*model.WorkoutCompletion{}
	}
	return list, nil
}

func (s *Service) findOwn(ctx context.Context, actor authz.Actor, id string) (*model.WorkoutCompletion, error) {
	if actor.UserID == "" {
		return nil, model.NewUnauthorizedError()
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewCompletionNotFoundError(id)
	}
	c, err := s.repos.Completions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find completion: %w", err)
	}
	if c == nil {
		return nil, model.NewCompletionNotFoundError(id)
	}
	if c.UserID != actor.UserID {
		return nil, model.NewForbiddenError()
	}
	return c, nil
}

func (s *Service) validateLog(in LogInput) error {
	if !in.WorkoutType.Valid() {
		return model.NewInvalidActivityError(fmt.Sprintf("無効なワークアウト種別です: %s", in.WorkoutType))
	}
	if err := validateAmounts(in.Distance, in.Duration); err != nil {
		return err
	}
	if len(in.Notes) > maxNotesLength {
		return model.NewInvalidActivityError("メモは2000文字以内で入力してください")
	}
	if in.CompletedAt != nil && in.CompletedAt.After(s.now().Add(clockSkew)) {
		return model.NewInvalidActivityError("未来の日時は記録できません")
	}
	if in.RestDay || in.LifeHappensPass {
		return nil
	}
	switch in.WorkoutType {
	case model.WorkoutTypeRunning:
		if in.Distance == nil {
			return model.NewInvalidActivityError("ランニングには距離が必要です")
		}
	case model.WorkoutTypeCardio:
		if in.Duration == nil {
			return model.NewInvalidActivityError("有酸素運動には時間が必要です")
		}
	}
	return nil
}

// validateAmounts は指定された距離と時間が正の有限値であることを確認する。
func validateAmounts(distance, duration *float64) error {
	if distance != nil && !positive(*distance) {
		return model.NewInvalidActivityError("距離には正の値を指定してください")
	}
	if duration != nil && !positive(*duration) {
		return model.NewInvalidActivityError("時間には正の値を指定してください")
	}
	return nil
}

func positive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
