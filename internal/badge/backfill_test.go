package badge

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/repository"
)

// --- インメモリのテスト用ストア ---

type memStore struct {
	mu          sync.Mutex
	assignments map[string][]*model.ProgramAssignment
	weeks       map[string][]*model.WorkoutWeek
	workouts    map[string][]*model.Workout
	completions []*model.WorkoutCompletion
	badges      map[string]*model.FireBadge
	groups      map[string][]string

	listByUserErr error
	inserted      []*model.FireBadge
}

func newMemStore() *memStore {
	return &memStore{
		assignments: map[string][]*model.ProgramAssignment{},
		weeks:       map[string][]*model.WorkoutWeek{},
		workouts:    map[string][]*model.Workout{},
		badges:      map[string]*model.FireBadge{},
		groups:      map[string][]string{},
	}
}

func badgeKey(userID string, weekStart time.Time) string {
	return userID + "/" + weekStart.Format("2006-01-02")
}

type memAssignments struct{ s *memStore }

func (r memAssignments) Assign(ctx context.Context, a *model.ProgramAssignment) error { return nil }
func (r memAssignments) FindLatestOpen(ctx context.Context, userID string) (*model.ProgramAssignment, error) {
	return nil, nil
}
func (r memAssignments) FindCurrent(ctx context.Context, userID string, today time.Time) (*model.ProgramAssignment, error) {
	return nil, nil
}
func (r memAssignments) ListByUser(ctx context.Context, userID string) ([]*model.ProgramAssignment, error) {
	if r.s.listByUserErr != nil {
		return nil, r.s.listByUserErr
	}
	return r.s.assignments[userID], nil
}
func (r memAssignments) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range r.s.assignments {
		ids = append(ids, id)
	}
	return ids, nil
}

type memWeeks struct{ s *memStore }

func (r memWeeks) FindByProgramAndWeek(ctx context.Context, programID string, n int) (*model.WorkoutWeek, error) {
	return nil, nil
}
func (r memWeeks) ListByProgram(ctx context.Context, programID string) ([]*model.WorkoutWeek, error) {
	return r.s.weeks[programID], nil
}
func (r memWeeks) Upsert(ctx context.Context, w *model.WorkoutWeek) error { return nil }
func (r memWeeks) InsertMissing(ctx context.Context, weeks []*model.WorkoutWeek) error {
	return nil
}
func (r memWeeks) DeleteAfter(ctx context.Context, programID string, n int) error {
	return nil
}

type memWorkouts struct{ s *memStore }

func (r memWorkouts) FindByID(ctx context.Context, id string) (*model.Workout, error) { return nil, nil }
func (r memWorkouts) Create(ctx context.Context, w *model.Workout) error           { return nil }
func (r memWorkouts) ListByWeek(ctx context.Context, weekID string) ([]*model.Workout, error) {
	return r.s.workouts[weekID], nil
}
func (r memWorkouts) NextOrderIndex(ctx context.Context, weekID string) (int, error) { return 0, nil }
func (r memWorkouts) UpdateOrderIndex(ctx context.Context, id string, idx int) error { return nil }

type memCompletions struct{ s *memStore }

func (r memCompletions) FindByID(ctx context.Context, id string) (*model.WorkoutCompletion, error) {
	return nil, nil
}
func (r memCompletions) Create(ctx context.Context, c *model.WorkoutCompletion) error { return nil }
func (r memCompletions) MarkCompleted(ctx context.Context, id string, at time.Time, distance, duration *float64) (bool, error) {
	return false, nil
}
func (r memCompletions) ListCompletedBetween(ctx context.Context, userID string, from, to time.Time) ([]*model.WorkoutCompletion, error) {
	return nil, nil
}
func (r memCompletions) CountCompletedWorkouts(ctx context.Context, userID string, workoutIDs []string, from, to time.Time) (int, error) {
	want := map[string]bool{}
	for _, id := range workoutIDs {
		want[id] = true
	}
	seen := map[string]bool{}
	for _, c := range r.s.completions {
		if c.UserID != userID || c.WorkoutID == nil || c.CompletedAt == nil {
			continue
		}
		if !want[*c.WorkoutID] {
			continue
		}
		if c.CompletedAt.Before(from) || !c.CompletedAt.Before(to) {
			continue
		}
		seen[*c.WorkoutID] = true
	}
	return len(seen), nil
}

type memBadges struct{ s *memStore }

func (r memBadges) Exists(ctx context.Context, userID string, weekStart time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.badges[badgeKey(userID, weekStart)]
	return ok, nil
}
func (r memBadges) Insert(ctx context.Context, b *model.FireBadge) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := badgeKey(b.UserID, b.WeekStart)
	if _, ok := r.s.badges[key]; ok {
		return false, nil
	}
	r.s.badges[key] = b
	r.s.inserted = append(r.s.inserted, b)
	return true, nil
}
func (r memBadges) ListByUser(ctx context.Context, userID string) ([]*model.FireBadge, error) {
	return nil, nil
}

type memGroups struct{ s *memStore }

func (r memGroups) FindByID(ctx context.Context, id string) (*model.Group, error) {
	if _, ok := r.s.groups[id]; !ok {
		return nil, nil
	}
	return &model.Group{ID: id}, nil
}
func (r memGroups) ListMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	return r.s.groups[groupID], nil
}
func (r memGroups) IsCoachOf(ctx context.Context, coachID, userID string) (bool, error) {
	return false, nil
}
func (r memGroups) Create(ctx context.Context, g *model.Group) error { return nil }
func (r memGroups) ListByCoach(ctx context.Context, coachID string) ([]*model.Group, error) {
	return nil, nil
}
func (r memGroups) AddMember(ctx context.Context, groupID, userID string, at time.Time) error {
	return nil
}
func (r memGroups) RemoveMember(ctx context.Context, groupID, userID string) (bool, error) {
	return false, nil
}

var (
	_ repository.AssignmentRepository  = memAssignments{}
	_ repository.WorkoutWeekRepository = memWeeks{}
	_ repository.WorkoutRepository     = memWorkouts{}
	_ repository.CompletionRepository  = memCompletions{}
	_ repository.BadgeRepository       = memBadges{}
	_ repository.GroupRepository       = memGroups{}
)

type mockRecorder struct {
	mu       sync.Mutex
	statuses map[string]int
	runs     int
}

func (m *mockRecorder) RecordBackfillWeek(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = map[string]int{}
	}
	m.statuses[status]++
}

func (m *mockRecorder) RecordBackfillDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
}

var _ Recorder = (*mockRecorder)(nil)

// --- Helpers ---

func mustLoadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("failed to load location %s: %v", name, err)
	}
	return loc
}

func civilDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

func newTestJob(t *testing.T, s *memStore, now time.Time) (*BackfillJob, *mockRecorder, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	rec := &mockRecorder{}
	job := NewBackfillJob(Repositories{
		Assignments: memAssignments{s},
		Weeks:       memWeeks{s},
		Workouts:    memWorkouts{s},
		Completions: memCompletions{s},
		Badges:      memBadges{s},
		Groups:      memGroups{s},
	}, rec, mustLoadLocation(t, "America/Los_Angeles"), slog.New(slog.NewJSONHandler(&buf, nil)), time.Hour)
	job.SetNow(func() time.Time { return now })
	return job, rec, &buf
}

// seedProgram は水曜日2024-01-03開始の3週間プログラムを作成する。
// 各週に2件のワークアウトを割り当てる。
func seedProgram(s *memStore, userID string) {
	s.assignments[userID] = []*model.ProgramAssignment{{
		ID:        "assignment-" + userID,
		UserID:    userID,
		ProgramID: "program-1",
		StartDate: civilDate(2024, 1, 3),
	}}
	s.weeks["program-1"] = []*model.WorkoutWeek{
		{ID: "week-1", ProgramID: "program-1", WeekNumber: 1},
		{ID: "week-2", ProgramID: "program-1", WeekNumber: 2},
		{ID: "week-3", ProgramID: "program-1", WeekNumber: 3},
	}
	for _, wid := range []string{"week-1", "week-2", "week-3"} {
		s.workouts[wid] = []*model.Workout{
			{ID: wid + "-a", WeekID: wid},
			{ID: wid + "-b", WeekID: wid},
		}
	}
}

func complete(s *memStore, userID, workoutID string, at time.Time) {
	s.completions = append(s.completions, &model.WorkoutCompletion{
		UserID:      userID,
		WorkoutID:   strPtr(workoutID),
		CompletedAt: &at,
	})
}

// --- Tests ---

func TestBackfill_CreatesBadgeForCompletedWeek(t *testing.T) {
	la := mustLoadLocation(t, "America/Los_Angeles")
	s := newMemStore()
	seedProgram(s, "user-1")
	// 第1週 = [1/8, 1/15)
	complete(s, "user-1", "week-1-a", time.Date(2024, 1, 9, 8, 0, 0, 0, la))
	complete(s, "user-1", "week-1-b", time.Date(2024, 1, 14, 23, 59, 59, 0, la))
	// 第2週は1件のみ
	complete(s, "user-1", "week-2-a", time.Date(2024, 1, 16, 8, 0, 0, 0, la))

	job, rec, _ := newTestJob(t, s, time.Date(2024, 1, 20, 12, 0, 0, 0, la))
	report, err := job.Run(context.Background(), BackfillRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if report.TotalCreated != 1 || report.TotalIncomplete != 1 {
		t.Fatalf("totals = created %d incomplete %d, want 1/1", report.TotalCreated, report.TotalIncomplete)
	}
	if len(s.inserted) != 1 {
		t.Fatalf("inserted %d badges, want 1", len(s.inserted))
	}
	b := s.inserted[0]
	if b.WeekStart.Weekday() != time.Monday || b.WeekStart.Format("2006-01-02") != "2024-01-08" {
		t.Errorf("badge week_start = %v, want Monday 2024-01-08", b.WeekStart)
	}
	if b.ID == "" || b.CreatedAt.IsZero() {
		t.Errorf("badge should have id and created_at: %+v", b)
	}

	ur := report.Users[0]
	want := []Status{StatusCreated, StatusIncomplete, StatusSkippedFuture}
	if len(ur.Weeks) != len(want) {
		t.Fatalf("weeks = %+v", ur.Weeks)
	}
	for i, st := range want {
		if ur.Weeks[i].Status != st {
			t.Errorf("week %d status = %s, want %s", i+1, ur.Weeks[i].Status, st)
		}
	}
	if ur.Weeks[1].Assigned != 2 || ur.Weeks[1].Completed != 1 {
		t.Errorf("week 2 counts = %d/%d", ur.Weeks[1].Completed, ur.Weeks[1].Assigned)
	}
	if rec.runs != 1 || rec.statuses[string(StatusCreated)] != 1 {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestBackfill_Idempotent(t *testing.T) {
	la := mustLoadLocation(t, "America/Los_Angeles")
	s := newMemStore()
	seedProgram(s, "user-1")
	complete(s, "user-1", "week-1-a", time.Date(2024, 1, 8, 0, 0, 0, 0, la))
	complete(s, "user-1", "week-1-b", time.Date(2024, 1, 10, 0, 0, 0, 0, la))
	complete(s, "user-1", "week-2-a", time.Date(2024, 1, 15, 6, 0, 0, 0, la))
	complete(s, "user-1", "week-2-b", time.Date(2024, 1, 17, 6, 0, 0, 0, la))

	job, _, _ := newTestJob(t, s, time.Date(2024, 2, 1, 0, 0, 0, 0, la))

	first, err := job.Run(context.Background(), BackfillRequest{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.TotalCreated != 2 {
		t.Fatalf("first run created %d, want 2", first.TotalCreated)
	}

	second, err := job.Run(context.Background(), BackfillRequest{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.TotalCreated != 0 {
		t.Errorf("second run created %d, want 0", second.TotalCreated)
	}
	if len(s.inserted) != 2 {
		t.Errorf("inserted %d badges total, want 2", len(s.inserted))
	}
	for _, w := range second.Users[0].Weeks[:2] {
		if w.Status != StatusSkippedExisting {
			t.Errorf("week %d status = %s, want skipped_existing", w.WeekNumber, w.Status)
		}
	}
}

func TestBackfill_DryRunDoesNotInsert(t *testing.T) {
	la := mustLoadLocation(t, "America/Los_Angeles")
	s := newMemStore()
	seedProgram(s, "user-1")
	complete(s, "user-1", "week-1-a", time.Date(2024, 1, 8, 9, 0, 0, 0, la))
	complete(s, "user-1", "week-1-b", time.Date(2024, 1, 9, 9, 0, 0, 0, la))

	job, _, _ := newTestJob(t, s, time.Date(2024, 2, 1, 0, 0, 0, 0, la))
	report, err := job.Run(context.Background(), BackfillRequest{UserID: "user-1", DryRun: true})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !report.DryRun || report.TotalWouldCreate != 1 || report.TotalCreated != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(s.inserted) != 0 {
		t.Errorf("dry run inserted %d badges", len(s.inserted))
	}
}

func TestBackfill_WeekStartAlwaysMonday(t *testing.T) {
	la := mustLoadLocation(t, "America/Los_Angeles")
	// 曜日の異なる開始日すべてで検証する
	for offset := 0; offset < 7; offset++ {
		s := newMemStore()
		userID := "user-1"
		s.assignments[userID] = []*model.ProgramAssignment{{
			ID: "a", UserID: userID, ProgramID: "p", StartDate: civilDate(2024, 3, 4+offset),
		}}
		for n := 1; n <= 4; n++ {
			wid := "w" + string(rune('0'+n))
			s.weeks["p"] = append(s.weeks["p"], &model.WorkoutWeek{ID: wid, ProgramID: "p", WeekNumber: n})
		}

		job, _, _ := newTestJob(t, s, time.Date(2024, 6, 1, 0, 0, 0, 0, la))
		report, err := job.Run(context.Background(), BackfillRequest{UserID: userID})
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		for _, w := range report.Users[0].Weeks {
			ws, err := time.ParseInLocation("2006-01-02", w.WeekStart, la)
			if err != nil {
				t.Fatalf("invalid week_start %q: %v", w.WeekStart, err)
			}
			if ws.Weekday() != time.Monday {
				t.Errorf("offset %d week %d starts on %v (%s)", offset, w.WeekNumber, ws.Weekday(), w.WeekStart)
			}
			if w.Status != StatusSkippedNoWorkouts {
				t.Errorf("status = %s, want skipped_no_workouts", w.Status)
			}
		}
	}
}

func TestBackfill_SkipsWeeksAfterEndDate(t *testing.T) {
	la := mustLoadLocation(t, "America/Los_Angeles")
	s := newMemStore()
	seedProgram(s, "user-1")
	end := civilDate(2024, 1, 12)
	s.assignments["user-1"][0].EndDate = &end

	job, _, _ := newTestJob(t, s, time.Date(2024, 3, 1, 0, 0, 0, 0, la))
	report, err := job.Run(context.Background(), BackfillRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	weeks := report.Users[0].Weeks
	if weeks[0].Status != StatusIncomplete {
		t.Errorf("week 1 status = %s, want incomplete", weeks[0].Status)
	}
	if weeks[1].Status != StatusSkippedAfterEnd || weeks[2].Status != StatusSkippedAfterEnd {
		t.Errorf("statuses = %s/%s, want skipped_after_end", weeks[1].Status, weeks[2].Status)
	}
}

func TestBackfill_CompletionOutsideWindowDoesNotCount(t *testing.T) {
	la := mustLoadLocation(t, "America/Los_Angeles")
	s := newMemStore()
	seedProgram(s, "user-1")
	// 開始日(水)から最初の月曜までの完了は第1週に含めない
	complete(s, "user-1", "week-1-a", time.Date(2024, 1, 4, 8, 0, 0, 0, la))
	complete(s, "user-1", "week-1-b", time.Date(2024, 1, 9, 8, 0, 0, 0, la))
	// 翌週月曜0時は範囲外
	complete(s, "user-1", "week-1-a", time.Date(2024, 1, 15, 0, 0, 0, 0, la))

	job, _, _ := newTestJob(t, s, time.Date(2024, 3, 1, 0, 0, 0, 0, la))
	report, err := job.Run(context.Background(), BackfillRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if w := report.Users[0].Weeks[0]; w.Status != StatusIncomplete || w.Completed != 1 {
		t.Errorf("week 1 = %+v, want incomplete with 1 completed", w)
	}
}

func TestBackfill_GroupTarget(t *testing.T) {
	la := mustLoadLocation(t, "America/Los_Angeles")
	s := newMemStore()
	seedProgram(s, "user-1")
	seedProgram(s, "user-2")
	seedProgram(s, "user-3")
	s.groups["group-1"] = []string{"user-1", "user-2"}

	job, _, _ := newTestJob(t, s, time.Date(2024, 3, 1, 0, 0, 0, 0, la))
	report, err := job.Run(context.Background(), BackfillRequest{GroupID: "group-1"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.UsersProcessed != 2 {
		t.Errorf("UsersProcessed = %d, want 2", report.UsersProcessed)
	}

	if _, err := job.Run(context.Background(), BackfillRequest{GroupID: "missing"}); err == nil {
		t.Error("expected error for unknown group")
	}
}

func TestBackfill_UserErrorDoesNotAbortRun(t *testing.T) {
	la := mustLoadLocation(t, "America/Los_Angeles")
	s := newMemStore()
	seedProgram(s, "user-1")
	s.listByUserErr = errors.New("connection reset")

	job, _, buf := newTestJob(t, s, time.Date(2024, 3, 1, 0, 0, 0, 0, la))
	report, err := job.Run(context.Background(), BackfillRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Users[0].Error == "" {
		t.Error("user error should be recorded")
	}
	if !bytes.Contains(buf.Bytes(), []byte("ユーザーのバッジバックフィルに失敗しました")) {
		t.Errorf("expected error log, got %s", buf.String())
	}
}

func TestBackfill_CancelledContext(t *testing.T) {
	la := mustLoadLocation(t, "America/Los_Angeles")
	s := newMemStore()
	seedProgram(s, "user-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, _, _ := newTestJob(t, s, time.Date(2024, 3, 1, 0, 0, 0, 0, la))
	if _, err := job.Run(ctx, BackfillRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBackfill_StartStopsOnCancel(t *testing.T) {
	la := mustLoadLocation(t, "America/Los_Angeles")
	s := newMemStore()
	job, rec, _ := newTestJob(t, s, time.Date(2024, 3, 1, 0, 0, 0, 0, la))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	// 起動直後の1回目の実行を待つ
	deadline := time.After(2 * time.Second)
	for {
		rec.mu.Lock()
		runs := rec.runs
		rec.mu.Unlock()
		if runs >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("initial run did not happen")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
