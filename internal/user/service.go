// Package user はプロフィール管理と退会処理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/repository"
	"github.com/hitoshi/moai/internal/security"
)

// maxEmailLookup はget_user_emailsで一度に問い合わせできるIDの上限。
const maxEmailLookup = 500

const maxFullNameLength = 100

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	profileRepo repository.ProfileRepository
	sessionRepo repository.SessionRepository
	sanitizer   security.TextSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	profileRepo repository.ProfileRepository,
	sessionRepo repository.SessionRepository,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
	}
}

// GetProfile はプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.profileRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewProfileNotFoundError(userID)
	}
	return p, nil
}

// UpdateFullName は表示名を更新して更新後のプロフィールを返す。
func (s *Service) UpdateFullName(ctx context.Context, userID, fullName string) (*model.Profile, error) {
	name := s.sanitizer.PlainText(fullName)
	if name == "" || len([]rune(name)) > maxFullNameLength {
		return nil, model.NewInvalidRequestError("表示名は1〜100文字で入力してください")
	}
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.profileRepo.UpdateFullName(ctx, userID, name); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return s.GetProfile(ctx, userID)
}

// GetUserEmails は指定ID群のメールアドレスを返す。coachとadminのみ呼び出せる。
// 存在しないIDは結果から除かれる。
func (s *Service) GetUserEmails(ctx context.Context, actor authz.Actor, ids []string) ([]repository.UserEmail, error) {
	if err := authz.RequireRole(actor, model.UserTypeCoach, model.UserTypeAdmin); err != nil {
		return nil, err
	}
	if len(ids) > maxEmailLookup {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("user_idsは%d件以下で指定してください", maxEmailLookup))
	}
	if len(ids) == 0 {
		return []repository.UserEmail{}, nil
	}
	emails, err := s.userRepo.ListEmails(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("メールアドレスの取得に失敗しました: %w", err)
	}
	if emails == nil {
		emails = []repository.UserEmail{}
	}
	return emails, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: profiles, assignments, completions, fire_badges）
// 作成したプログラムはcoach_idのCASCADEで削除される。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 2. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
