// Package badge はファイアバッジの遡及付与ジョブを提供する。
package badge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/progress"
	"github.com/hitoshi/moai/internal/repository"
)

// Status は週ごとの判定結果を表す。
type Status string

const (
	StatusCreated           Status = "created"
	StatusWouldCreate       Status = "would_create"
	StatusIncomplete        Status = "incomplete"
	StatusSkippedFuture     Status = "skipped_future"
	StatusSkippedAfterEnd   Status = "skipped_after_end"
	StatusSkippedExisting   Status = "skipped_existing"
	StatusSkippedNoWorkouts Status = "skipped_no_workouts"
)

const weekStartLayout = "2006-01-02"

// Recorder はバックフィルの結果を記録するインターフェース。
type Recorder interface {
	RecordBackfillWeek(status string)
	RecordBackfillDuration(duration time.Duration)
}

// BackfillRequest はジョブの対象指定。
// UserIDが指定された場合はGroupIDより優先する。どちらも空なら割り当てを持つ全ユーザーが対象。
type BackfillRequest struct {
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	DryRun  bool   `json:"dryRun,omitempty"`
}

// WeekResult は1週分の判定結果。
type WeekResult struct {
	AssignmentID string `json:"assignment_id"`
	ProgramID    string `json:"program_id"`
	WeekNumber   int    `json:"week_number"`
	WeekStart    string `json:"week_start"`
	Status       Status `json:"status"`
	Assigned     int    `json:"assigned"`
	Completed    int    `json:"completed"`
}

// UserReport はユーザー単位の集計。
type UserReport struct {
	UserID      string       `json:"user_id"`
	Created     int          `json:"created"`
	WouldCreate int          `json:"would_create"`
	Incomplete  int          `json:"incomplete"`
	Weeks       []WeekResult `json:"weeks"`
	Error       string       `json:"error,omitempty"`
}

// BackfillReport はジョブ全体の集計。
type BackfillReport struct {
	DryRun           bool         `json:"dry_run"`
	UsersProcessed   int          `json:"users_processed"`
	TotalCreated     int          `json:"total_created"`
	TotalWouldCreate int          `json:"total_would_create"`
	TotalIncomplete  int          `json:"total_incomplete"`
	Users            []UserReport `json:"users"`
	Error            string       `json:"error,omitempty"`
}

// Repositories はジョブが参照するリポジトリの組。
type Repositories struct {
	Assignments repository.AssignmentRepository
	Weeks       repository.WorkoutWeekRepository
	Workouts    repository.WorkoutRepository
	Completions repository.CompletionRepository
	Badges      repository.BadgeRepository
	Groups      repository.GroupRepository
}

// BackfillJob は過去の週を再判定し、すべての割り当てワークアウトを完了した週にバッジを付与する。
// ユーザーは逐次処理する。同一プロセス内の実行はmuで直列化する。
type BackfillJob struct {
	repos    Repositories
	recorder Recorder
	loc      *time.Location
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu sync.Mutex
}

// NewBackfillJob はBackfillJobを生成する。intervalはStartでの定期実行間隔。
func NewBackfillJob(repos Repositories, recorder Recorder, loc *time.Location, logger *slog.Logger, interval time.Duration) *BackfillJob {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BackfillJob{
		repos:    repos,
		recorder: recorder,
		loc:      loc,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// SetNow はテスト用に現在時刻の取得関数を差し替える。
func (j *BackfillJob) SetNow(fn func() time.Time) {
	j.now = fn
}

// Start はジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *BackfillJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("バッジバックフィルジョブを開始しました",
		slog.Duration("interval", j.interval),
	)

	j.runScheduled(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("バッジバックフィルジョブを停止しました")
			return
		case <-ticker.C:
			j.runScheduled(ctx)
		}
	}
}

func (j *BackfillJob) runScheduled(ctx context.Context) {
	if _, err := j.Run(ctx, BackfillRequest{}); err != nil {
		j.logger.Error("バッジバックフィルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Run は1回のバックフィルを実行する。
// 対象ユーザーの解決に失敗した場合のみerrorを返す。ユーザー単位の失敗はUserReport.Errorに記録して次のユーザーへ進む。
func (j *BackfillJob) Run(ctx context.Context, req BackfillRequest) (*BackfillReport, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Now()
	defer func() {
		if j.recorder != nil {
			j.recorder.RecordBackfillDuration(time.Since(start))
		}
	}()

	userIDs, err := j.resolveUsers(ctx, req)
	if err != nil {
		return nil, err
	}

	report := &BackfillReport{
		DryRun: req.DryRun,
		Users:  make([]UserReport, 0, len(userIDs)),
	}

	j.logger.Info("バッジバックフィルを開始します",
		slog.Int("target_users", len(userIDs)),
		slog.Bool("dry_run", req.DryRun),
	)

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		ur := j.processUser(ctx, userID, req.DryRun)
		if ur.Error != "" {
			j.logger.Error("ユーザーのバッジバックフィルに失敗しました",
				slog.String("user_id", userID),
				slog.String("error", ur.Error),
			)
		}

		report.UsersProcessed++
		report.TotalCreated += ur.Created
		report.TotalWouldCreate += ur.WouldCreate
		report.TotalIncomplete += ur.Incomplete
		report.Users = append(report.Users, ur)
	}

	j.logger.Info("バッジバックフィルが完了しました",
		slog.Int("users_processed", report.UsersProcessed),
		slog.Int("created", report.TotalCreated),
		slog.Int("would_create", report.TotalWouldCreate),
		slog.Int("incomplete", report.TotalIncomplete),
		slog.Bool("dry_run", req.DryRun),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return report, nil
}

func (j *BackfillJob) resolveUsers(ctx context.Context, req BackfillRequest) ([]string, error) {
	switch {
	case req.UserID != "":
		return []string{req.UserID}, nil
	case req.GroupID != "":
		group, err := j.repos.Groups.FindByID(ctx, req.GroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to find group: %w", err)
		}
		if group == nil {
			return nil, fmt.Errorf("group not found: %s", req.GroupID)
		}
		ids, err := j.repos.Groups.ListMemberIDs(ctx, req.GroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to list group members: %w", err)
		}
		return ids, nil
	default:
		ids, err := j.repos.Assignments.ListUserIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list assigned users: %w", err)
		}
		return ids, nil
	}
}

func (j *BackfillJob) processUser(ctx context.Context, userID string, dryRun bool) UserReport {
	ur := UserReport{UserID: userID, Weeks: []WeekResult{}}

	assignments, err := j.repos.Assignments.ListByUser(ctx, userID)
	if err != nil {
		ur.Error = fmt.Sprintf("failed to list assignments: %v", err)
		return ur
	}

	today := progress.StartOfDay(j.now().In(j.loc))

	for _, a := range assignments {
		weeks, err := j.repos.Weeks.ListByProgram(ctx, a.ProgramID)
		if err != nil {
			ur.Error = fmt.Sprintf("failed to list weeks for program %s: %v", a.ProgramID, err)
			return ur
		}

		assignmentStart := progress.DateIn(a.StartDate, j.loc)
		var endDay *time.Time
		if a.EndDate != nil {
			d := progress.DateIn(*a.EndDate, j.loc)
			endDay = &d
		}

		for _, w := range weeks {
			res, err := j.evaluateWeek(ctx, userID, a, w, assignmentStart, endDay, today, dryRun)
			if err != nil {
				ur.Error = err.Error()
				return ur
			}
			j.record(res.Status)

			switch res.Status {
			case StatusCreated:
				ur.Created++
			case StatusWouldCreate:
				ur.WouldCreate++
			case StatusIncomplete:
				ur.Incomplete++
			}
			ur.Weeks = append(ur.Weeks, res)
		}
	}
	return ur
}

func (j *BackfillJob) evaluateWeek(
	ctx context.Context,
	userID string,
	a *model.ProgramAssignment,
	w *model.WorkoutWeek,
	assignmentStart time.Time,
	endDay *time.Time,
	today time.Time,
	dryRun bool,
) (WeekResult, error) {
	window := progress.ProgramWeekWindow(assignmentStart, w.WeekNumber)
	res := WeekResult{
		AssignmentID: a.ID,
		ProgramID:    a.ProgramID,
		WeekNumber:   w.WeekNumber,
		WeekStart:    window.Start.Format(weekStartLayout),
	}

	if window.Start.After(today) {
		res.Status = StatusSkippedFuture
		return res, nil
	}
	if endDay != nil && window.Start.After(*endDay) {
		res.Status = StatusSkippedAfterEnd
		return res, nil
	}

	exists, err := j.repos.Badges.Exists(ctx, userID, window.Start)
	if err != nil {
		return res, fmt.Errorf("failed to check badge for week %s: %w", res.WeekStart, err)
	}
	if exists {
		res.Status = StatusSkippedExisting
		return res, nil
	}

	workouts, err := j.repos.Workouts.ListByWeek(ctx, w.ID)
	if err != nil {
		return res, fmt.Errorf("failed to list workouts for week %s: %w", w.ID, err)
	}
	res.Assigned = len(workouts)
	if res.Assigned == 0 {
		res.Status = StatusSkippedNoWorkouts
		return res, nil
	}

	workoutIDs := make([]string, 0, len(workouts))
	for _, wo := range workouts {
		workoutIDs = append(workoutIDs, wo.ID)
	}
	completed, err := j.repos.Completions.CountCompletedWorkouts(ctx, userID, workoutIDs, window.Start, window.End)
	if err != nil {
		return res, fmt.Errorf("failed to count completions for week %s: %w", res.WeekStart, err)
	}
	res.Completed = completed

	if completed < res.Assigned {
		res.Status = StatusIncomplete
		return res, nil
	}
	if dryRun {
		res.Status = StatusWouldCreate
		return res, nil
	}

	created, err := j.repos.Badges.Insert(ctx, &model.FireBadge{
		ID:        uuid.NewString(),
		UserID:    userID,
		WeekStart: window.Start,
		CreatedAt: j.now(),
	})
	if err != nil {
		return res, fmt.Errorf("failed to insert badge for week %s: %w", res.WeekStart, err)
	}
	if !created {
		// 存在確認の後に別の実行が挿入した
		res.Status = StatusSkippedExisting
		return res, nil
	}
	res.Status = StatusCreated
	return res, nil
}

func (j *BackfillJob) record(status Status) {
	if j.recorder != nil {
		j.recorder.RecordBackfillWeek(string(status))
	}
}
