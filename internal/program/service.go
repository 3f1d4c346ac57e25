// Package program はコーチによるプログラム・週目標・ワークアウトの管理と、
// クライアントへのプログラム割り当てを提供する。
package program

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/repository"
	"github.com/hitoshi/moai/internal/security"
)

// MaxWeeks はプログラムの最大週数。
const MaxWeeks = 52

// 入力文字数の上限。
const (
	maxTitleLength       = 200
	maxDescriptionLength = 5000
)

// Direction はワークアウトの並べ替え方向。
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Authorizer は対象ユーザーへのアクセス可否を判定するインターフェース。
type Authorizer interface {
	CanActFor(ctx context.Context, actor authz.Actor, targetUserID string) error
}

// Input はプログラムの作成・更新の入力。
type Input struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Weeks       int               `json:"weeks"`
	ProgramType model.ProgramType `json:"program_type"`
}

// WeekTargets は週の目標値の入力。
type WeekTargets struct {
	TargetMilesRun                 float64 `json:"target_miles_run"`
	TargetCardioMinutes            float64 `json:"target_cardio_minutes"`
	TargetStrengthWorkouts         int     `json:"target_strength_workouts"`
	TargetStrengthMobilityWorkouts int     `json:"target_strength_mobility_workouts"`
}

// WorkoutInput はワークアウト追加の入力。
type WorkoutInput struct {
	Title       string            `json:"title"`
	WorkoutType model.WorkoutType `json:"workout_type"`
}

// AssignInput はプログラム割り当ての入力。StartDateは基準タイムゾーンの暦日（YYYY-MM-DD）。
type AssignInput struct {
	UserID    string `json:"user_id"`
	ProgramID string `json:"program_id"`
	StartDate string `json:"start_date"`
}

// WeekDetail は週の目標値とワークアウト一覧。Weekが未作成の週はnil。
type WeekDetail struct {
	WeekNumber int
	Week       *model.WorkoutWeek
	Workouts   []*model.Workout
}

// Detail はプログラムと全週の詳細。
type Detail struct {
	Program *model.Program
	Weeks   []WeekDetail
}

// Repositories はサービスが使うリポジトリ群。
type Repositories struct {
	Programs    repository.ProgramRepository
	Weeks       repository.WorkoutWeekRepository
	Workouts    repository.WorkoutRepository
	Assignments repository.AssignmentRepository
}

// Service はプログラム管理のビジネスロジックを提供する。
type Service struct {
	repos     Repositories
	authz     Authorizer
	sanitizer security.TextSanitizer
	loc       *time.Location
	now       func() time.Time
}

// NewService はServiceを生成する。locは割り当て開始日を解釈する基準タイムゾーン。
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

// Create はプログラムを作成する。coachとadminのみ作成でき、作成者が担当コーチになる。
func (s *Service) Create(ctx context.Context, actor authz.Actor, in Input) (*model.Program, error) {
	if err := authz.RequireRole(actor, model.UserTypeCoach, model.UserTypeAdmin); err != nil {
		return nil, err
	}
	in, err := s.validateInput(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &model.Program{
		ID:          uuid.New().String(),
		CoachID:     actor.UserID,
		Title:       in.Title,
		Description: in.Description,
		Weeks:       in.Weeks,
		ProgramType: in.ProgramType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repos.Programs.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	if err := s.ensureWeeks(ctx, p); err != nil {
		return nil, err
	}

	slog.Info("program created",
		slog.String("program_id", p.ID),
		slog.String("coach_id", p.CoachID),
		slog.Int("weeks", p.Weeks),
	)
	return p, nil
}

// List はactorが作成したプログラムを返す。
func (s *Service) List(ctx context.Context, actor authz.Actor) ([]*model.Program, error) {
	if err := authz.RequireRole(actor, model.UserTypeCoach, model.UserTypeAdmin); err != nil {
		return nil, err
	}
	programs, err := s.repos.Programs.ListByCoach(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	if programs == nil {
		programs = []*model.Program{}
	}
	return programs, nil
}

// Get はプログラムと全週の詳細を返す。
// 担当コーチとadminに加え、現在そのプログラムが割り当てられているクライアントも参照できる。
func (s *Service) Get(ctx context.Context, actor authz.Actor, id string) (*Detail, error) {
	p, err := s.findProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canView(ctx, actor, p); err != nil {
		return nil, err
	}

	weeks, err := s.repos.Weeks.ListByProgram(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list weeks: %w", err)
	}
	byNumber := make(map[int]*model.WorkoutWeek, len(weeks))
	for _, w := range weeks {
		byNumber[w.WeekNumber] = w
	}

	detail := &Detail{Program: p, Weeks: make([]WeekDetail, 0, p.Weeks)}
	for n := 1; n <= p.Weeks; n++ {
		wd := WeekDetail{WeekNumber: n, Week: byNumber[n], Workouts: []*model.Workout{}}
		if wd.Week != nil {
			workouts, err := s.repos.Workouts.ListByWeek(ctx, wd.Week.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list workouts: %w", err)
			}
			if workouts != nil {
				wd.Workouts = workouts
			}
		}
		detail.Weeks = append(detail.Weeks, wd)
	}
	return detail, nil
}

// Update はプログラムを更新する。週数を短縮した場合は範囲外の週を削除し、
// 延長した場合は追加分の週を目標値0で作成する。
func (s *Service) Update(ctx context.Context, actor authz.Actor, id string, in Input) (*model.Program, error) {
	p, err := s.findOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	in, err = s.validateInput(in)
	if err != nil {
		return nil, err
	}

	shortened := in.Weeks < p.Weeks
	extended := in.Weeks > p.Weeks
	p.Title = in.Title
	p.Description = in.Description
	p.Weeks = in.Weeks
	p.ProgramType = in.ProgramType
	p.UpdatedAt = s.now()

	if err := s.repos.Programs.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update program: %w", err)
	}
	if shortened {
		if err := s.repos.Weeks.DeleteAfter(ctx, p.ID, p.Weeks); err != nil {
			return nil, fmt.Errorf("failed to trim weeks: %w", err)
		}
	}
	if extended {
		if err := s.ensureWeeks(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Delete はプログラムを削除する。
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id string) error {
	p, err := s.findOwned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repos.Programs.Delete(ctx, p.ID); err != nil {
		return fmt.Errorf("failed to delete program: %w", err)
	}
	slog.Info("program deleted", slog.String("program_id", p.ID))
	return nil
}

// SetWeekTargets は週の目標値を作成または更新する。
func (s *Service) SetWeekTargets(ctx context.Context, actor authz.Actor, programID string, weekNumber int, in WeekTargets) (*model.WorkoutWeek, error) {
	p, err := s.findOwned(ctx, actor, programID)
	if err != nil {
		return nil, err
	}
	if weekNumber < 1 || weekNumber > p.Weeks {
		return nil, model.NewInvalidWeekNumberError(weekNumber, p.Weeks)
	}
	if !nonNegative(in.TargetMilesRun) || !nonNegative(in.TargetCardioMinutes) ||
		in.TargetStrengthWorkouts < 0 || in.TargetStrengthMobilityWorkouts < 0 {
		return nil, model.NewInvalidProgramError("目標値には0以上の値を指定してください")
	}

	w := &model.WorkoutWeek{
		ID:                             uuid.New().String(),
		ProgramID:                      p.ID,
		WeekNumber:                     weekNumber,
		TargetMilesRun:                 in.TargetMilesRun,
		TargetCardioMinutes:            in.TargetCardioMinutes,
		TargetStrengthWorkouts:         in.TargetStrengthWorkouts,
		TargetStrengthMobilityWorkouts: in.TargetStrengthMobilityWorkouts,
	}
	if err := s.repos.Weeks.Upsert(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to save week targets: %w", err)
	}
	return w, nil
}

// AddWorkout は週の末尾にワークアウトを追加する。週が未作成の場合は目標値0で作成する。
func (s *Service) AddWorkout(ctx context.Context, actor authz.Actor, programID string, weekNumber int, in WorkoutInput) (*model.Workout, error) {
	p, err := s.findOwned(ctx, actor, programID)
	if err != nil {
		return nil, err
	}
	if weekNumber < 1 || weekNumber > p.Weeks {
		return nil, model.NewInvalidWeekNumberError(weekNumber, p.Weeks)
	}
	title := s.sanitizer.PlainText(in.Title)
	if title == "" || len(title) > maxTitleLength {
		return nil, model.NewInvalidProgramError("ワークアウト名は1〜200文字で入力してください")
	}
	if !in.WorkoutType.Valid() {
		return nil, model.NewInvalidProgramError(fmt.Sprintf("無効なワークアウト種別です: %s", in.WorkoutType))
	}

	week, err := s.repos.Weeks.FindByProgramAndWeek(ctx, p.ID, weekNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to find week: %w", err)
	}
	if week == nil {
		week = &model.WorkoutWeek{ID: uuid.New().String(), ProgramID: p.ID, WeekNumber: weekNumber}
		if err := s.repos.Weeks.Upsert(ctx, week); err != nil {
			return nil, fmt.Errorf("failed to create week: %w", err)
		}
	}

	next, err := s.repos.Workouts.NextOrderIndex(ctx, week.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get next order index: %w", err)
	}

	w := &model.Workout{
		ID:          uuid.New().String(),
		ProgramID:   p.ID,
		WeekID:      week.ID,
		Title:       title,
		WorkoutType: in.WorkoutType,
		OrderIndex:  next,
		CreatedAt:   s.now(),
	}
	if err := s.repos.Workouts.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to create workout: %w", err)
	}
	return w, nil
}

// MoveWorkout はワークアウトを隣のワークアウトとorder_indexで入れ替える。
// 入れ替えは2回の更新で行い、トランザクションでは囲まない。
// 先頭を上へ、末尾を下へ移動しようとした場合は何もせず現在の並びを返す。
func (s *Service) MoveWorkout(ctx context.Context, actor authz.Actor, workoutID string, dir Direction) ([]*model.Workout, error) {
	if dir != DirectionUp && dir != DirectionDown {
		return nil, model.NewInvalidRequestError("directionにはupまたはdownを指定してください")
	}
	w, err := s.repos.Workouts.FindByID(ctx, workoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to find workout: %w", err)
	}
	if w == nil {
		return nil, model.NewWorkoutNotFoundError(workoutID)
	}
	if _, err := s.findOwned(ctx, actor, w.ProgramID); err != nil {
		return nil, err
	}

	workouts, err := s.repos.Workouts.ListByWeek(ctx, w.WeekID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workouts: %w", err)
	}
	pos := -1
	for i, x := range workouts {
		if x.ID == w.ID {
			pos = i
			break
		}
	}
	other := pos - 1
	if dir == DirectionDown {
		other = pos + 1
	}
	if pos < 0 || other < 0 || other >= len(workouts) {
		return workouts, nil
	}

	a, b := workouts[pos], workouts[other]
	if err := s.repos.Workouts.UpdateOrderIndex(ctx, a.ID, b.OrderIndex); err != nil {
		return nil, fmt.Errorf("failed to move workout: %w", err)
	}
	if err := s.repos.Workouts.UpdateOrderIndex(ctx, b.ID, a.OrderIndex); err != nil {
		return nil, fmt.Errorf("failed to move neighbouring workout: %w", err)
	}
	a.OrderIndex, b.OrderIndex = b.OrderIndex, a.OrderIndex
	workouts[pos], workouts[other] = b, a
	return workouts, nil
}

// Assign はクライアントにプログラムを割り当てる。既存のオープンな割り当ては開始日の前日で閉じる。
func (s *Service) Assign(ctx context.Context, actor authz.Actor, in AssignInput) (*model.ProgramAssignment, error) {
	if in.UserID == "" || in.ProgramID == "" {
		return nil, model.NewInvalidRequestError("user_idとprogram_idは必須です")
	}
	start, err := time.ParseInLocation("2006-01-02", in.StartDate, s.loc)
	if err != nil {
		return nil, model.NewInvalidRequestError("start_dateはYYYY-MM-DD形式で指定してください")
	}
	if _, err := s.findOwned(ctx, actor, in.ProgramID); err != nil {
		return nil, err
	}
	if err := s.authz.CanActFor(ctx, actor, in.UserID); err != nil {
		return nil, err
	}

	a := &model.ProgramAssignment{
		ID:        uuid.New().String(),
		UserID:    in.UserID,
		ProgramID: in.ProgramID,
		StartDate: start,
		CreatedAt: s.now(),
	}
	if err := s.repos.Assignments.Assign(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to assign program: %w", err)
	}

	slog.Info("program assigned",
		slog.String("assignment_id", a.ID),
		slog.String("user_id", a.UserID),
		slog.String("program_id", a.ProgramID),
		slog.String("start_date", in.StartDate),
	)
	return a, nil
}

// CurrentAssignment はユーザーの現在の割り当てを返す。
// 基準タイムゾーンの今日を期間に含む最新の割り当てを優先し、なければ最新の割り当てを返す。
// 割り当てがない場合は(nil, nil)を返す。
func (s *Service) CurrentAssignment(ctx context.Context, actor authz.Actor, userID string) (*model.ProgramAssignment, error) {
	if userID == "" {
		userID = actor.UserID
	}
	if err := s.authz.CanActFor(ctx, actor, userID); err != nil {
		return nil, err
	}
	a, err := s.repos.Assignments.FindCurrent(ctx, userID, s.now().In(s.loc))
	if err != nil {
		return nil, fmt.Errorf("failed to find current assignment: %w", err)
	}
	return a, nil
}

// --- 内部ヘルパー ---

func (s *Service) findProgram(ctx context.Context, id string) (*model.Program, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewProgramNotFoundError(id)
	}
	p, err := s.repos.Programs.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find program: %w", err)
	}
	if p == nil {
		return nil, model.NewProgramNotFoundError(id)
	}
	return p, nil
}

// findOwned はプログラムを取得し、actorが担当コーチまたはadminであることを確認する。
func (s *Service) findOwned(ctx context.Context, actor authz.Actor, id string) (*model.Program, error) {
	if err := authz.RequireRole(actor, model.UserTypeCoach, model.UserTypeAdmin); err != nil {
		return nil, err
	}
	p, err := s.findProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && p.CoachID != actor.UserID {
		return nil, model.NewForbiddenError()
	}
	return p, nil
}

// ensureWeeks は1からp.Weeksまでの週のうち未作成のものを目標値0で作成する。
func (s *Service) ensureWeeks(ctx context.Context, p *model.Program) error {
	weeks := make([]*model.WorkoutWeek, 0, p.Weeks)
	for n := 1; n <= p.Weeks; n++ {
		weeks = append(weeks, &model.WorkoutWeek{ID: uuid.New().String(), ProgramID: p.ID, WeekNumber: n})
	}
	if err := s.repos.Weeks.InsertMissing(ctx, weeks); err != nil {
		return fmt.Errorf("failed to create weeks: %w", err)
	}
	return nil
}

func (s *Service) canView(ctx context.Context, actor authz.Actor, p *model.Program) error {
	if actor.UserID == "" {
		return model.NewUnauthorizedError()
	}
	if actor.IsAdmin() || p.CoachID == actor.UserID {
		return nil
	}
	a, err := s.repos.Assignments.FindCurrent(ctx, actor.UserID, s.now().In(s.loc))
	if err != nil {
		return fmt.Errorf("failed to find current assignment: %w", err)
	}
	if a != nil && a.ProgramID == p.ID {
		return nil
	}
	return model.NewForbiddenError()
}

func (s *Service) validateInput(in Input) (Input, error) {
	in.Title = s.sanitizer.PlainText(in.Title)
	in.Description = s.sanitizer.RichText(in.Description)
	if in.Title == "" || len(in.Title) > maxTitleLength {
		return in, model.NewInvalidProgramError("タイトルは1〜200文字で入力してください")
	}
	if len(in.Description) > maxDescriptionLength {
		return in, model.NewInvalidProgramError("説明は5000文字以内で入力してください")
	}
	if in.Weeks < 1 || in.Weeks > MaxWeeks {
		return in, model.NewInvalidProgramError(fmt.Sprintf("週数は1〜%dの範囲で指定してください", MaxWeeks))
	}
	if in.ProgramType == "" {
		in.ProgramType = model.ProgramTypeStrength
	}
	if in.ProgramType != model.ProgramTypeStrength && in.ProgramType != model.ProgramTypeRun {
		return in, model.NewInvalidProgramError(fmt.Sprintf("無効なプログラム種別です: %s", in.ProgramType))
	}
	return in, nil
}

func nonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
