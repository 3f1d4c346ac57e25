package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/moai/internal/model"
)

// queryExecer は*sql.DBと*sql.Txに共通するクエリ操作。
type queryExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresGroupRepo はPostgreSQLを使用したグループリポジトリ。
type PostgresGroupRepo struct {
	db *sql.DB
}

// NewPostgresGroupRepo はPostgresGroupRepoを生成する。
func NewPostgresGroupRepo(db *sql.DB) *PostgresGroupRepo {
	return &PostgresGroupRepo{db: db}
}

// Create はグループを作成する。
func (r *PostgresGroupRepo) Create(ctx context.Context, g *model.Group) error {
	return insertGroup(ctx, r.db, g)
}

// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
func (r *PostgresGroupRepo) FindByID(ctx context.Context, id string) (*model.Group, error) {
	g := &model.Group{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, coach_id, created_at FROM groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.CoachID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find group: %w", err)
	}
	return g, nil
}

// ListByCoach はコーチが担当するグループを作成日時の昇順で返す。
func (r *PostgresGroupRepo) ListByCoach(ctx context.Context, coachID string) ([]*model.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, coach_id, created_at FROM groups
		 WHERE coach_id = $1 ORDER BY created_at, id`, coachID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*model.Group
	for rows.Next() {
		g := &model.Group{}
		if err := rows.Scan(&g.ID, &g.Name, &g.CoachID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListMemberIDs はグループのメンバーIDを返す。
func (r *PostgresGroupRepo) ListMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY created_at, user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddMember はユーザーをグループに追加する。既にメンバーの場合は何もしない。
func (r *PostgresGroupRepo) AddMember(ctx context.Context, groupID, userID string, at time.Time) error {
	return insertMember(ctx, r.db, groupID, userID, at)
}

// RemoveMember はユーザーをグループから外す。メンバーでなかった場合はfalseを返す。
func (r *PostgresGroupRepo) RemoveMember(ctx context.Context, groupID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove group member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// IsCoachOf はuserIDがcoachIDの担当グループに所属しているかどうかを返す。
func (r *PostgresGroupRepo) IsCoachOf(ctx context.Context, coachID, userID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM group_members gm
			JOIN groups g ON g.id = gm.group_id
			WHERE g.coach_id = $1 AND gm.user_id = $2
		)`,
		coachID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check coach membership: %w", err)
	}
	return ok, nil
}

func insertGroup(ctx context.Context, q queryExecer, g *model.Group) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO groups (id, name, coach_id, created_at) VALUES ($1, $2, $3, $4)`,
		g.ID, g.Name, g.CoachID, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

func insertMember(ctx context.Context, q queryExecer, groupID, userID string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group member: %w", err)
	}
	return nil
}

// enrollInCoachGroup はuserIDをfallback.CoachIDの最も古いグループに追加する。
// コーチがグループを持っていない場合はfallbackを作成してから追加する。
func enrollInCoachGroup(ctx context.Context, q queryExecer, fallback *model.Group, userID string, at time.Time) error {
	var groupID string
	err := q.QueryRowContext(ctx,
		`SELECT id FROM groups WHERE coach_id = $1 ORDER BY created_at, id LIMIT 1`,
		fallback.CoachID,
	).Scan(&groupID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := insertGroup(ctx, q, fallback); err != nil {
			return err
		}
		groupID = fallback.ID
	case err != nil:
		return fmt.Errorf("failed to find coach group: %w", err)
	}
	return insertMember(ctx, q, groupID, userID, at)
}

// compile-time interface check
var _ GroupRepository = (*PostgresGroupRepo)(nil)
