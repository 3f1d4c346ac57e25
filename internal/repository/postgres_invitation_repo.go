package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/moai/internal/model"
)

// PostgresInvitationRepo はPostgreSQLを使用した招待リポジトリ。
type PostgresInvitationRepo struct {
	db *sql.DB
}

// NewPostgresInvitationRepo はPostgresInvitationRepoを生成する。
func NewPostgresInvitationRepo(db *sql.DB) *PostgresInvitationRepo {
	return &PostgresInvitationRepo{db: db}
}

// Create は招待を作成する。
func (r *PostgresInvitationRepo) Create(ctx context.Context, inv *model.Invitation) error {
	var invitedBy any
	if inv.InvitedBy != "" {
		invitedBy = inv.InvitedBy
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invitations (id, token, email, user_type, is_share_link, invited_by, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.Token, inv.Email, string(inv.UserType), inv.IsShareLink, invitedBy, inv.ExpiresAt, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("招待の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByToken はトークンで招待を検索する。見つからない場合はnilを返す。
// 期限切れや使用済みの招待も返し、判定は呼び出し側で行う。
func (r *PostgresInvitationRepo) FindByToken(ctx context.Context, token string) (*model.Invitation, error) {
	inv := &model.Invitation{}
	var (
		email      sql.NullString
		userType   string
		invitedBy  sql.NullString
		acceptedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, token, email, user_type, is_share_link, invited_by, expires_at, accepted_at, created_at
		 FROM invitations WHERE token = $1`,
		token,
	).Scan(&inv.ID, &inv.Token, &email, &userType, &inv.IsShareLink, &invitedBy, &inv.ExpiresAt, &acceptedAt, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("招待の取得に失敗しました: %w", err)
	}

	inv.UserType = model.UserType(userType)
	if email.Valid {
		inv.Email = &email.String
	}
	inv.InvitedBy = invitedBy.String
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	return inv, nil
}

// DeleteExpiredUnaccepted は未使用のまま期限切れになった招待を削除し、削除件数を返す。
func (r *PostgresInvitationRepo) DeleteExpiredUnaccepted(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM invitations WHERE expires_at <= $1 AND accepted_at IS NULL`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れ招待の削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ InvitationRepository = (*PostgresInvitationRepo)(nil)
