package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/moai/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, password_hash, user_metadata, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	var metadata []byte
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &metadata, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &user.UserMetadata); err != nil {
			return nil, fmt.Errorf("failed to decode user_metadata: %w", err)
		}
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// CreateWithProfile はユーザーとプロフィールを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithProfile(ctx context.Context, user *model.User, profile *model.Profile, invitation *model.Invitation, enroll *model.Group) error {
	metadata, err := json.Marshal(user.UserMetadata)
	if err != nil {
		return fmt.Errorf("failed to encode user_metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, user_metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.PasswordHash, metadata, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, user_type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		profile.ID, profile.Email, profile.FullName, string(profile.UserType), profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	// 共有リンクは期限内であれば何度でも使えるため使用済みにしない
	if invitation != nil && !invitation.IsShareLink {
		result, err := tx.ExecContext(ctx,
			`UPDATE invitations SET accepted_at = $2 WHERE id = $1 AND accepted_at IS NULL`,
			invitation.ID, user.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to accept invitation: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return ErrInvitationConsumed
		}
	}

	if enroll != nil {
		if err := enrollInCoachGroup(ctx, tx, enroll, user.ID, user.CreatedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのユーザーを削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// ListEmails は指定ID群のメールアドレスを返す。
func (r *PostgresUserRepo) ListEmails(ctx context.Context, ids []string) ([]UserEmail, error) {
	if len(ids) == 0 {
		return []UserEmail{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email FROM users WHERE id = ANY($1::uuid[]) ORDER BY email`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user emails: %w", err)
	}
	defer rows.Close()

	result := []UserEmail{}
	for rows.Next() {
		var ue UserEmail
		if err := rows.Scan(&ue.ID, &ue.Email); err != nil {
			return nil, fmt.Errorf("failed to scan user email: %w", err)
		}
		result = append(result, ue)
	}
	return result, rows.Err()
}

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p := &model.Profile{}
	var userType string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, user_type, created_at, updated_at FROM profiles WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Email, &p.FullName, &userType, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	p.UserType = model.UserType(userType)
	return p, nil
}

// UpdateFullName は表示名を更新する。
func (r *PostgresProfileRepo) UpdateFullName(ctx context.Context, id, fullName string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET full_name = $2, updated_at = now() WHERE id = $1`,
		id, fullName,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("profile not found: %s", id)
	}
	return nil
}

// compile-time interface check
var (
	_ UserRepository    = (*PostgresUserRepo)(nil)
	_ ProfileRepository = (*PostgresProfileRepo)(nil)
)
