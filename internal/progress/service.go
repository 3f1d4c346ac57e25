package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/repository"
)

// 集計結果のラベル。
const (
	ResultOK        = "ok"
	ResultNoProgram = "no_program"
	ResultError     = "error"
)

// Recorder は週次進捗の集計結果を記録するインターフェース。
type Recorder interface {
	RecordWeeklyProgress(result string)
}

// Authorizer は対象クライアントへのアクセス可否を判定するインターフェース。
type Authorizer interface {
	CanActFor(ctx context.Context, actor authz.Actor, targetUserID string) error
}

// Service は週次進捗の集計サービス。
// 参照エラーは呼び出し元に伝播させず、既定レスポンスにエラー内容を付けて返す。
type Service struct {
	assignments repository.AssignmentRepository
	programs    repository.ProgramRepository
	weeks       repository.WorkoutWeekRepository
	completions repository.CompletionRepository
	authz       Authorizer
	recorder    Recorder
	loc         *time.Location
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceを生成する。locは週境界を決める基準タイムゾーン。
func NewService(
	assignments repository.AssignmentRepository,
	programs repository.ProgramRepository,
	weeks repository.WorkoutWeekRepository,
	completions repository.CompletionRepository,
	authorizer Authorizer,
	recorder Recorder,
	loc *time.Location,
	logger *slog.Logger,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		assignments: assignments,
		programs:    programs,
		weeks:       weeks,
		completions: completions,
		authz:       authorizer,
		recorder:    recorder,
		loc:         loc,
		logger:      logger,
		now:         time.Now,
	}
}

// SetNow はテスト用に現在時刻の取得関数を差し替える。
func (s *Service) SetNow(fn func() time.Time) {
	s.now = fn
}

// GetWeeklyProgress はactorの権限を確認したうえでclientIDの今週の進捗を返す。
// 権限エラーのみerrorで返し、それ以外の失敗はWeeklyProgress.Errorに載せる。
func (s *Service) GetWeeklyProgress(ctx context.Context, actor authz.Actor, clientID string) (*WeeklyProgress, error) {
	if clientID == "" {
		return nil, model.NewInvalidRequestError("client_id は必須です")
	}
	if err := s.authz.CanActFor(ctx, actor, clientID); err != nil {
		return nil, err
	}
	return s.Compute(ctx, clientID), nil
}

// Compute はclientIDの今週の進捗を集計する。失敗しても必ずレスポンスを返す。
func (s *Service) Compute(ctx context.Context, clientID string) *WeeklyProgress {
	result, err := s.compute(ctx, clientID)
	if err != nil {
		s.logger.Error("weekly progress computation failed",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		s.record(ResultError)
		p := DefaultProgress()
		p.Error = err.Error()
		return p
	}
	if result.ProgramID == "" {
		s.record(ResultNoProgram)
	} else {
		s.record(ResultOK)
	}
	return result
}

func (s *Service) compute(ctx context.Context, clientID string) (*WeeklyProgress, error) {
	today := s.now().In(s.loc)
	window := CalendarWeek(today)

	assignment, err := s.assignments.FindLatestOpen(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active assignment: %w", err)
	}
	if assignment == nil {
		return DefaultProgress(), nil
	}

	program, err := s.programs.FindByID(ctx, assignment.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("failed to find program: %w", err)
	}
	if program == nil {
		return nil, fmt.Errorf("assigned program not found: %s", assignment.ProgramID)
	}

	start := DateIn(assignment.StartDate, s.loc)
	currentWeek := ProgramWeek(start, today, program.Weeks)

	week, err := s.weeks.FindByProgramAndWeek(ctx, program.ID, currentWeek)
	if err != nil {
		return nil, fmt.Errorf("failed to find workout week: %w", err)
	}

	completions, err := s.completions.ListCompletedBetween(ctx, clientID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}

	return &WeeklyProgress{
		ProgramID:    program.ID,
		ProgramTitle: program.Title,
		CurrentWeek:  currentWeek,
		TotalWeeks:   program.Weeks,
		ProgramType:  ProgramLabel(program.ProgramType),
		Metrics:      Aggregate(TargetsFor(week, program.ProgramType), completions, window),
	}, nil
}

func (s *Service) record(result string) {
	if s.recorder != nil {
		s.recorder.RecordWeeklyProgress(result)
	}
}
