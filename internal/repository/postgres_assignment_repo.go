package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/moai/internal/model"
)

// dateLayout はDATE列へ渡す暦日の書式。
// time.Timeをそのまま渡すとセッションのタイムゾーンで日付が変わるため、文字列化して渡す。
const dateLayout = "2006-01-02"

func dateParam(t time.Time) string {
	return t.Format(dateLayout)
}

// PostgresAssignmentRepo はPostgreSQLを使用したプログラム割り当てリポジトリ。
type PostgresAssignmentRepo struct {
	db *sql.DB
}

// NewPostgresAssignmentRepo はPostgresAssignmentRepoを生成する。
func NewPostgresAssignmentRepo(db *sql.DB) *PostgresAssignmentRepo {
	return &PostgresAssignmentRepo{db: db}
}

const assignmentColumns = `id, user_id, program_id, start_date, end_date, created_at`

func scanAssignment(row interface{ Scan(...any) error }) (*model.ProgramAssignment, error) {
	a := &model.ProgramAssignment{}
	var endDate sql.NullTime
	if err := row.Scan(&a.ID, &a.UserID, &a.ProgramID, &a.StartDate, &endDate, &a.CreatedAt); err != nil {
		return nil, err
	}
	if endDate.Valid {
		t := endDate.Time
		a.EndDate = &t
	}
	return a, nil
}

// Assign は既存のオープンな割り当てを閉じ、新しい割り当てを作成する。
// 既存の割り当ての終了日は新しい開始日の前日とし、開始日より前にはしない。
func (r *PostgresAssignmentRepo) Assign(ctx context.Context, a *model.ProgramAssignment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE program_assignments
		 SET end_date = GREATEST(start_date, $2::date - 1)
		 WHERE user_id = $1 AND end_date IS NULL`,
		a.UserID, dateParam(a.StartDate),
	)
	if err != nil {
		return fmt.Errorf("failed to close open assignments: %w", err)
	}

	var endDate any
	if a.EndDate != nil {
		endDate = dateParam(*a.EndDate)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO program_assignments (id, user_id, program_id, start_date, end_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.UserID, a.ProgramID, dateParam(a.StartDate), endDate, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindLatestOpen はend_dateが未設定の割り当てのうち最も新しく作成されたものを返す。
func (r *PostgresAssignmentRepo) FindLatestOpen(ctx context.Context, userID string) (*model.ProgramAssignment, error) {
	a, err := scanAssignment(r.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+`
		 FROM program_assignments
		 WHERE user_id = $1 AND end_date IS NULL
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open assignment: %w", err)
	}
	return a, nil
}

// FindCurrent はtodayを期間に含む割り当てのうち最も新しく作成されたものを返す。
// 該当がない場合は期間に関係なく最も新しく作成された割り当てを返す。
func (r *PostgresAssignmentRepo) FindCurrent(ctx context.Context, userID string, today time.Time) (*model.ProgramAssignment, error) {
	a, err := scanAssignment(r.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+`
		 FROM program_assignments
		 WHERE user_id = $1
		 ORDER BY (start_date <= $2::date AND (end_date IS NULL OR end_date >= $2::date)) DESC,
		          created_at DESC
		 LIMIT 1`,
		userID, dateParam(today),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find current assignment: %w", err)
	}
	return a, nil
}

// ListByUser はユーザーの全割り当てをstart_date昇順で返す。
func (r *PostgresAssignmentRepo) ListByUser(ctx context.Context, userID string) ([]*model.ProgramAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+`
		 FROM program_assignments
		 WHERE user_id = $1
		 ORDER BY start_date, created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*model.ProgramAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// ListUserIDs は割り当てを持つ全ユーザーのIDを返す。
func (r *PostgresAssignmentRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM program_assignments ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// compile-time interface check
var _ AssignmentRepository = (*PostgresAssignmentRepo)(nil)
