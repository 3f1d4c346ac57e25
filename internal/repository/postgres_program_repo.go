package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/moai/internal/model"
)

// PostgresProgramRepo はPostgreSQLを使用したプログラムリポジトリ。
type PostgresProgramRepo struct {
	db *sql.DB
}

// NewPostgresProgramRepo はPostgresProgramRepoを生成する。
func NewPostgresProgramRepo(db *sql.DB) *PostgresProgramRepo {
	return &PostgresProgramRepo{db: db}
}

const programColumns = `id, coach_id, title, description, weeks, program_type, created_at, updated_at`

func scanProgram(row interface{ Scan(...any) error }) (*model.Program, error) {
	p := &model.Program{}
	var programType string
	if err := row.Scan(&p.ID, &p.CoachID, &p.Title, &p.Description, &p.Weeks, &programType, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ProgramType = model.ProgramType(programType)
	return p, nil
}

// FindByID は指定IDのプログラムを取得する。見つからない場合はnilを返す。
func (r *PostgresProgramRepo) FindByID(ctx context.Context, id string) (*model.Program, error) {
	p, err := scanProgram(r.db.QueryRowContext(ctx,
		`SELECT `+programColumns+` FROM programs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プログラムの取得に失敗しました: %w", err)
	}
	return p, nil
}

// ListByCoach はコーチが作成したプログラムを作成日時の降順で返す。
func (r *PostgresProgramRepo) ListByCoach(ctx context.Context, coachID string) ([]*model.Program, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+programColumns+` FROM programs WHERE coach_id = $1 ORDER BY created_at DESC`, coachID)
	if err != nil {
		return nil, fmt.Errorf("プログラム一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var programs []*model.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("プログラムのスキャンに失敗しました: %w", err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// Create はプログラムを作成する。
func (r *PostgresProgramRepo) Create(ctx context.Context, p *model.Program) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO programs (id, coach_id, title, description, weeks, program_type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.CoachID, p.Title, p.Description, p.Weeks, string(p.ProgramType), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("プログラムの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はタイトル、説明、週数、種別を更新する。
func (r *PostgresProgramRepo) Update(ctx context.Context, p *model.Program) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE programs SET title = $2, description = $3, weeks = $4, program_type = $5, updated_at = $6
		 WHERE id = $1`,
		p.ID, p.Title, p.Description, p.Weeks, string(p.ProgramType), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("プログラムの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete はプログラムを削除する。
func (r *PostgresProgramRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM programs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("プログラムの削除に失敗しました: %w", err)
	}
	return nil
}

// PostgresWorkoutWeekRepo はPostgreSQLを使用した週目標リポジトリ。
type PostgresWorkoutWeekRepo struct {
	db *sql.DB
}

// NewPostgresWorkoutWeekRepo はPostgresWorkoutWeekRepoを生成する。
func NewPostgresWorkoutWeekRepo(db *sql.DB) *PostgresWorkoutWeekRepo {
	return &PostgresWorkoutWeekRepo{db: db}
}

const weekColumns = `id, program_id, week_number, target_miles_run, target_cardio_minutes,
	target_strength_workouts, target_strength_mobility_workouts`

func scanWeek(row interface{ Scan(...any) error }) (*model.WorkoutWeek, error) {
	w := &model.WorkoutWeek{}
	err := row.Scan(&w.ID, &w.ProgramID, &w.WeekNumber, &w.TargetMilesRun, &w.TargetCardioMinutes,
		&w.TargetStrengthWorkouts, &w.TargetStrengthMobilityWorkouts)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// FindByProgramAndWeek は(program_id, week_number)の週を取得する。見つからない場合はnilを返す。
func (r *PostgresWorkoutWeekRepo) FindByProgramAndWeek(ctx context.Context, programID string, weekNumber int) (*model.WorkoutWeek, error) {
	w, err := scanWeek(r.db.QueryRowContext(ctx,
		`SELECT `+weekColumns+` FROM workout_weeks WHERE program_id = $1 AND week_number = $2`,
		programID, weekNumber,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find workout week: %w", err)
	}
	return w, nil
}

// ListByProgram はプログラムの全週をweek_number昇順で返す。
func (r *PostgresWorkoutWeekRepo) ListByProgram(ctx context.Context, programID string) ([]*model.WorkoutWeek, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+weekColumns+` FROM workout_weeks WHERE program_id = $1 ORDER BY week_number`,
		programID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workout weeks: %w", err)
	}
	defer rows.Close()

	var weeks []*model.WorkoutWeek
	for rows.Next() {
		w, err := scanWeek(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workout week: %w", err)
		}
		weeks = append(weeks, w)
	}
	return weeks, rows.Err()
}

// Upsert は(program_id, week_number)単位で目標値を作成または更新する。
func (r *PostgresWorkoutWeekRepo) Upsert(ctx context.Context, w *model.WorkoutWeek) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO workout_weeks (id, program_id, week_number, target_miles_run, target_cardio_minutes,
			target_strength_workouts, target_strength_mobility_workouts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (program_id, week_number) DO UPDATE SET
			target_miles_run = EXCLUDED.target_miles_run,
			target_cardio_minutes = EXCLUDED.target_cardio_minutes,
			target_strength_workouts = EXCLUDED.target_strength_workouts,
			target_strength_mobility_workouts = EXCLUDED.target_strength_mobility_workouts
		 RETURNING id`,
		w.ID, w.ProgramID, w.WeekNumber, w.TargetMilesRun, w.TargetCardioMinutes,
		w.TargetStrengthWorkouts, w.TargetStrengthMobilityWorkouts,
	).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert workout week: %w", err)
	}
	return nil
}

// InsertMissing は週を作成する。同じ(program_id, week_number)の週が既にある場合はその週を変更しない。
func (r *PostgresWorkoutWeekRepo) InsertMissing(ctx context.Context, weeks []*model.WorkoutWeek) error {
	if len(weeks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, w := range weeks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO workout_weeks (id, program_id, week_number, target_miles_run, target_cardio_minutes,
				target_strength_workouts, target_strength_mobility_workouts)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (program_id, week_number) DO NOTHING`,
			w.ID, w.ProgramID, w.WeekNumber, w.TargetMilesRun, w.TargetCardioMinutes,
			w.TargetStrengthWorkouts, w.TargetStrengthMobilityWorkouts,
		)
		if err != nil {
			return fmt.Errorf("failed to insert workout week %d: %w", w.WeekNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteAfter は指定週番号より後ろの週を削除する。
func (r *PostgresWorkoutWeekRepo) DeleteAfter(ctx context.Context, programID string, weekNumber int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM workout_weeks WHERE program_id = $1 AND week_number > $2`,
		programID, weekNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to delete trailing workout weeks: %w", err)
	}
	return nil
}

// PostgresWorkoutRepo はPostgreSQLを使用したワークアウトリポジトリ。
type PostgresWorkoutRepo struct {
	db *sql.DB
}

// NewPostgresWorkoutRepo はPostgresWorkoutRepoを生成する。
func NewPostgresWorkoutRepo(db *sql.DB) *PostgresWorkoutRepo {
	return &PostgresWorkoutRepo{db: db}
}

const workoutColumns = `id, program_id, week_id, title, workout_type, order_index, created_at`

func scanWorkout(row interface{ Scan(...any) error }) (*model.Workout, error) {
	w := &model.Workout{}
	var workoutType string
	if err := row.Scan(&w.ID, &w.ProgramID, &w.WeekID, &w.Title, &workoutType, &w.OrderIndex, &w.CreatedAt); err != nil {
		return nil, err
	}
	w.WorkoutType = model.WorkoutType(workoutType)
	return w, nil
}

// FindByID は指定IDのワークアウトを取得する。見つからない場合はnilを返す。
func (r *PostgresWorkoutRepo) FindByID(ctx context.Context, id string) (*model.Workout, error) {
	w, err := scanWorkout(r.db.QueryRowContext(ctx,
		`SELECT `+workoutColumns+` FROM workouts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find workout: %w", err)
	}
	return w, nil
}

// Create はワークアウトを作成する。
func (r *PostgresWorkoutRepo) Create(ctx context.Context, w *model.Workout) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workouts (id, program_id, week_id, title, workout_type, order_index, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.ProgramID, w.WeekID, w.Title, string(w.WorkoutType), w.OrderIndex, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workout: %w", err)
	}
	return nil
}

// ListByWeek は週のワークアウトをorder_index昇順で返す。
func (r *PostgresWorkoutRepo) ListByWeek(ctx context.Context, weekID string) ([]*model.Workout, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+workoutColumns+` FROM workouts WHERE week_id = $1 ORDER BY order_index, created_at`,
		weekID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workouts: %w", err)
	}
	defer rows.Close()

	var workouts []*model.Workout
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workout: %w", err)
		}
		workouts = append(workouts, w)
	}
	return workouts, rows.Err()
}

// NextOrderIndex は週内で次に使うorder_indexを返す。
func (r *PostgresWorkoutRepo) NextOrderIndex(ctx context.Context, weekID string) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(order_index) + 1, 0) FROM workouts WHERE week_id = $1`,
		weekID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to get next order index: %w", err)
	}
	return next, nil
}

// UpdateOrderIndex はorder_indexを更新する。
func (r *PostgresWorkoutRepo) UpdateOrderIndex(ctx context.Context, id string, orderIndex int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE workouts SET order_index = $2 WHERE id = $1`,
		id, orderIndex,
	)
	if err != nil {
		return fmt.Errorf("failed to update order index: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ ProgramRepository     = (*PostgresProgramRepo)(nil)
	_ WorkoutWeekRepository = (*PostgresWorkoutWeekRepo)(nil)
	_ WorkoutRepository     = (*PostgresWorkoutRepo)(nil)
)
