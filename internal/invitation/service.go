// Package invitation は登録用の招待リンクの発行と検証を提供する。
package invitation

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/mailer"
	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/repository"
)

// DefaultTTL は招待の有効期間。
const DefaultTTL = 30 * 24 * time.Hour

// Config は招待サービスの設定。
type Config struct {
	TTL     time.Duration
	SiteURL string
}

// Created は発行した招待と登録リンク。
type Created struct {
	Invitation *model.Invitation
	Link       string
	EmailSent  bool
}

// Service は招待に関するビジネスロジックを提供する。
type Service struct {
	repo   repository.InvitationRepository
	sender mailer.Sender
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.InvitationRepository, sender mailer.Sender, config Config, logger *slog.Logger) *Service {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		sender: sender,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// SetNow はテスト用に現在時刻の取得関数を差し替える。
func (s *Service) SetNow(fn func() time.Time) {
	s.now = fn
}

// Create はメールアドレス宛ての招待を発行し、招待メールを送信する。
// メール送信に失敗しても招待は有効なまま残り、EmailSent=falseで返す。
func (s *Service) Create(ctx context.Context, actor authz.Actor, email string, userType model.UserType) (*Created, error) {
	if err := canInvite(actor, userType); err != nil {
		return nil, err
	}
	addr := strings.ToLower(strings.TrimSpace(email))
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return nil, model.NewInvalidEmailError(email)
	}

	inv := s.newInvitation(actor, userType)
	inv.Email = &addr
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	created := &Created{Invitation: inv, Link: inv.RegisterURL(s.config.SiteURL)}
	msg, err := mailer.InvitationMessage(addr, mailer.InvitationData{
		Role:    string(userType),
		Link:    created.Link,
		Expires: inv.ExpiresAt.Format("2006-01-02"),
	})
	if err == nil {
		_, err = s.sender.Send(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("招待メールの送信に失敗しました",
			slog.String("invitation_id", inv.ID),
			slog.String("error", err.Error()),
		)
		return created, nil
	}
	created.EmailSent = true

	s.logger.Info("招待を発行しました",
		slog.String("invitation_id", inv.ID),
		slog.String("user_type", string(userType)),
		slog.String("invited_by", actor.UserID),
	)
	return created, nil
}

// CreateShareLink はメールアドレスに紐づかない共有リンク招待を発行する。
func (s *Service) CreateShareLink(ctx context.Context, actor authz.Actor, userType model.UserType) (*Created, error) {
	if err := canInvite(actor, userType); err != nil {
		return nil, err
	}
	inv := s.newInvitation(actor, userType)
	inv.IsShareLink = true
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create share link: %w", err)
	}

	s.logger.Info("共有リンクを発行しました",
		slog.String("invitation_id", inv.ID),
		slog.String("user_type", string(userType)),
	)
	return &Created{Invitation: inv, Link: inv.RegisterURL(s.config.SiteURL)}, nil
}

// Validate はトークンが登録に使える状態かどうかを検証して招待を返す。
func (s *Service) Validate(ctx context.Context, token string) (*model.Invitation, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, model.NewInvitationNotFoundError()
	}
	inv, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find invitation: %w", err)
	}
	if inv == nil {
		return nil, model.NewInvitationNotFoundError()
	}
	if inv.IsExpired(s.now()) {
		return nil, model.NewInvitationExpiredError()
	}
	if !inv.IsShareLink && inv.AcceptedAt != nil {
		return nil, model.NewInvitationUsedError()
	}
	return inv, nil
}

// Resolve はサインアップ時の招待を検証する。
// Validateの判定に加え、アカウント種別とメール招待の宛先が一致することを確認する。
func (s *Service) Resolve(ctx context.Context, token, email string, userType model.UserType) (*model.Invitation, error) {
	inv, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.UserType != userType {
		return nil, model.NewInvitationTypeMismatchError(inv.UserType, userType)
	}
	if inv.Email != nil && !strings.EqualFold(*inv.Email, email) {
		return nil, model.NewInvitationEmailMismatchError()
	}
	return inv, nil
}

func (s *Service) newInvitation(actor authz.Actor, userType model.UserType) *model.Invitation {
	now := s.now()
	return &model.Invitation{
		ID:        uuid.New().String(),
		Token:     uuid.New().String(),
		UserType:  userType,
		InvitedBy: actor.UserID,
		ExpiresAt: now.Add(s.config.TTL),
		CreatedAt: now,
	}
}

// canInvite は招待の発行権限を判定する。adminは全種別、coachはclientのみ招待できる。
func canInvite(actor authz.Actor, userType model.UserType) error {
	if !userType.Valid() {
		return model.NewInvalidUserTypeError(string(userType))
	}
	if err := authz.RequireRole(actor, model.UserTypeAdmin, model.UserTypeCoach); err != nil {
		return err
	}
	if actor.UserType == model.UserTypeCoach && userType != model.UserTypeClient {
		return model.NewForbiddenError()
	}
	return nil
}
