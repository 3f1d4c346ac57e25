package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/moai/internal/model"
)

// PostgresCompletionRepo はPostgreSQLを使用したワークアウト記録リポジトリ。
type PostgresCompletionRepo struct {
	db *sql.DB
}

// NewPostgresCompletionRepo はPostgresCompletionRepoを生成する。
func NewPostgresCompletionRepo(db *sql.DB) *PostgresCompletionRepo {
	return &PostgresCompletionRepo{db: db}
}

const completionColumns = `id, user_id, workout_id, completed_at, workout_type, distance, duration,
	rest_day, life_happens_pass, title, notes, created_at`

func scanCompletion(row interface{ Scan(...any) error }) (*model.WorkoutCompletion, error) {
	c := &model.WorkoutCompletion{}
	var (
		workoutID   sql.NullString
		completedAt sql.NullTime
		workoutType string
		distance    sql.NullFloat64
		duration    sql.NullFloat64
	)
	err := row.Scan(&c.ID, &c.UserID, &workoutID, &completedAt, &workoutType, &distance, &duration,
		&c.RestDay, &c.LifeHappensPass, &c.Title, &c.Notes, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.WorkoutType = model.WorkoutType(workoutType)
	if workoutID.Valid {
		c.WorkoutID = &workoutID.String
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	if distance.Valid {
		c.Distance = &distance.Float64
	}
	if duration.Valid {
		c.Duration = &duration.Float64
	}
	return c, nil
}

// FindByID は指定IDの記録を取得する。見つからない場合はnilを返す。
func (r *PostgresCompletionRepo) FindByID(ctx context.Context, id string) (*model.WorkoutCompletion, error) {
	c, err := scanCompletion(r.db.QueryRowContext(ctx,
		`SELECT `+completionColumns+` FROM workout_completions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	return c, nil
}

// Create は記録を作成する。
func (r *PostgresCompletionRepo) Create(ctx context.Context, c *model.WorkoutCompletion) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workout_completions (id, user_id, workout_id, completed_at, workout_type, distance, duration,
			rest_day, life_happens_pass, title, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.UserID, c.WorkoutID, c.CompletedAt, string(c.WorkoutType), c.Distance, c.Duration,
		c.RestDay, c.LifeHappensPass, c.Title, c.Notes, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("記録の作成に失敗しました: %w", err)
	}
	return nil
}

// MarkCompleted は未完了の記録を完了にする。既に完了済みの場合はfalseを返す。
// distance/durationがnilの場合は既存の値を維持する。
func (r *PostgresCompletionRepo) MarkCompleted(ctx context.Context, id string, completedAt time.Time, distance, duration *float64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workout_completions
		 SET completed_at = $2,
			distance = COALESCE($3, distance),
			duration = COALESCE($4, duration)
		 WHERE id = $1 AND completed_at IS NULL`,
		id, completedAt, distance, duration,
	)
	if err != nil {
		return false, fmt.Errorf("記録の完了に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListCompletedBetween はcompleted_atが[from, to)に含まれる完了済み記録を返す。
func (r *PostgresCompletionRepo) ListCompletedBetween(ctx context.Context, userID string, from, to time.Time) ([]*model.WorkoutCompletion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+completionColumns+`
		 FROM workout_completions
		 WHERE user_id = $1
			AND completed_at IS NOT NULL
			AND completed_at >= $2
			AND completed_at < $3
		 ORDER BY completed_at`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("記録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var completions []*model.WorkoutCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("記録のスキャンに失敗しました: %w", err)
		}
		completions = append(completions, c)
	}
	return completions, rows.Err()
}

// CountCompletedWorkouts はworkoutIDsのうちcompleted_atが[from, to)に含まれるものの件数を返す。
func (r *PostgresCompletionRepo) CountCompletedWorkouts(ctx context.Context, userID string, workoutIDs []string, from, to time.Time) (int, error) {
	if len(workoutIDs) == 0 {
		return 0, nil
	}

	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT workout_id)
		 FROM workout_completions
		 WHERE user_id = $1
			AND workout_id = ANY($2::uuid[])
			AND completed_at IS NOT NULL
			AND completed_at >= $3
			AND completed_at < $4`,
		userID, pq.Array(workoutIDs), from, to,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("完了数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// PostgresBadgeRepo はPostgreSQLを使用したファイアバッジリポジトリ。
type PostgresBadgeRepo struct {
	db *sql.DB
}

// NewPostgresBadgeRepo はPostgresBadgeRepoを生成する。
func NewPostgresBadgeRepo(db *sql.DB) *PostgresBadgeRepo {
	return &PostgresBadgeRepo{db: db}
}

// Exists は(user_id, week_start)のバッジが存在するかどうかを返す。
func (r *PostgresBadgeRepo) Exists(ctx context.Context, userID string, weekStart time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM fire_badges WHERE user_id = $1 AND week_start = $2::date)`,
		userID, dateParam(weekStart),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check fire badge: %w", err)
	}
	return exists, nil
}

// Insert はバッジを作成する。一意制約に衝突した場合は何もせずfalseを返す。
func (r *PostgresBadgeRepo) Insert(ctx context.Context, b *model.FireBadge) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO fire_badges (id, user_id, week_start, created_at)
		 VALUES ($1, $2, $3::date, $4)
		 ON CONFLICT (user_id, week_start) DO NOTHING`,
		b.ID, b.UserID, dateParam(b.WeekStart), b.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert fire badge: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListByUser はユーザーのバッジをweek_start昇順で返す。
func (r *PostgresBadgeRepo) ListByUser(ctx context.Context, userID string) ([]*model.FireBadge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, week_start, created_at FROM fire_badges WHERE user_id = $1 ORDER BY week_start`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list fire badges: %w", err)
	}
	defer rows.Close()

	var badges []*model.FireBadge
	for rows.Next() {
		b := &model.FireBadge{}
		if err := rows.Scan(&b.ID, &b.UserID, &b.WeekStart, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fire badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// compile-time interface check
var (
	_ CompletionRepository = (*PostgresCompletionRepo)(nil)
	_ BadgeRepository      = (*PostgresBadgeRepo)(nil)
)
