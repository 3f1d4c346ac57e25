// Package auth はメールアドレスとパスワードによる認証とセッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/repository"
)

const (
	// DefaultMinPasswordLength はパスワードの最小文字数。
	DefaultMinPasswordLength = 8
	defaultBcryptCost        = 12
	// DefaultGroupName はコーチの招待でサインアップしたクライアント用に自動作成するグループ名。
	DefaultGroupName = "クライアント"
)

// サインイン結果のラベル。
const (
	SignInSuccess            = "success"
	SignInInvalidCredentials = "invalid_credentials"
	SignInError              = "error"
)

// InvitationResolver はサインアップ時の招待トークンを検証するインターフェース。
type InvitationResolver interface {
	// Resolve はトークンの招待を取得し、有効期限・種別・メールアドレスを検証する。
	Resolve(ctx context.Context, token, email string, userType model.UserType) (*model.Invitation, error)
}

// Recorder はサインイン結果を記録するインターフェース。
type Recorder interface {
	RecordSignIn(result string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge     int // セッション有効期間（秒）
	MinPasswordLength int
	BcryptCost        int
}

// SignUpInput はサインアップの入力。
type SignUpInput struct {
	Email           string
	Password        string
	UserType        model.UserType
	FullName        string
	InvitationToken string
}

// Result はサインイン・サインアップ・セッション確認の結果。
type Result struct {
	Session *model.Session
	User    *model.User
}

// Principal は検証済みアクセストークンの主体。
type Principal struct {
	UserID    string
	UserType  model.UserType
	SessionID string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	profileRepo repository.ProfileRepository
	sessionRepo repository.SessionRepository
	invitations InvitationResolver
	tokens      *TokenIssuer
	recorder    Recorder
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	profileRepo repository.ProfileRepository,
	sessionRepo repository.SessionRepository,
	invitations InvitationResolver,
	tokens *TokenIssuer,
	recorder Recorder,
	config ServiceConfig,
) *Service {
	if config.MinPasswordLength <= 0 {
		config.MinPasswordLength = DefaultMinPasswordLength
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = defaultBcryptCost
	}
	return &Service{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		sessionRepo: sessionRepo,
		invitations: invitations,
		tokens:      tokens,
		recorder:    recorder,
		config:      config,
		now:         time.Now,
	}
}

// SignUp はアカウントとプロフィールを作成し、セッションを発行する。
// adminとcoachは招待が必須。招待トークンが指定された場合は種別とメールアドレスを検証し、
// メール招待はアカウント作成と同じトランザクションで使用済みにする。
// コーチが発行した招待でクライアントが登録した場合は、そのコーチのグループに追加する。
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*Result, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < s.config.MinPasswordLength {
		return nil, model.NewInvalidPasswordError(s.config.MinPasswordLength)
	}
	if !in.UserType.Valid() {
		return nil, model.NewInvalidUserTypeError(string(in.UserType))
	}

	var invitation *model.Invitation
	if in.InvitationToken != "" {
		invitation, err = s.invitations.Resolve(ctx, in.InvitationToken, email, in.UserType)
		if err != nil {
			return nil, err
		}
	} else if in.UserType != model.UserTypeClient {
		return nil, model.NewInvitationNotFoundError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		UserMetadata: model.UserMetadata{UserType: in.UserType, FullName: in.FullName},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := &model.Profile{
		ID:        user.ID,
		Email:     email,
		FullName:  in.FullName,
		UserType:  in.UserType,
		CreatedAt: now,
		UpdatedAt: now,
	}

	enroll, err := s.coachGroupFor(ctx, invitation, in.UserType, now)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.CreateWithProfile(ctx, user, profile, invitation, enroll); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, model.NewEmailAlreadyExistsError()
		case errors.Is(err, repository.ErrInvitationConsumed):
			return nil, model.NewInvitationUsedError()
		}
		return nil, fmt.Errorf("failed to create user and profile: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("user_type", string(in.UserType)),
		slog.Bool("invited", invitation != nil),
		slog.Bool("enrolled", enroll != nil),
	)

	session, err := s.createSession(ctx, user.ID, in.UserType)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &Result{Session: session, User: user}, nil
}

// coachGroupFor はクライアントを招待したコーチのグループを返す。
// 招待者がいない、招待者がコーチでない、登録者がクライアントでない場合はnilを返す。
// 返すグループはコーチがまだグループを持っていない場合にだけ作成される。
func (s *Service) coachGroupFor(ctx context.Context, invitation *model.Invitation, userType model.UserType, now time.Time) (*model.Group, error) {
	if invitation == nil || invitation.InvitedBy == "" || userType != model.UserTypeClient {
		return nil, nil
	}
	inviter, err := s.profileRepo.FindByID(ctx, invitation.InvitedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to find inviter profile: %w", err)
	}
	if inviter == nil || inviter.UserType != model.UserTypeCoach {
		return nil, nil
	}
	return &model.Group{
		ID:        uuid.New().String(),
		Name:      DefaultGroupName,
		CoachID:   inviter.ID,
		CreatedAt: now,
	}, nil
}

// SignIn は認証情報を検証してセッションを発行する。
// 存在しないメールアドレスとパスワード不一致は区別せずINVALID_CREDENTIALSを返す。
func (s *Service) SignIn(ctx context.Context, email, password string) (*Result, error) {
	result, err := s.signIn(ctx, email, password)
	switch {
	case err == nil:
		s.record(SignInSuccess)
	case isCode(err, model.ErrCodeInvalidCredentials):
		s.record(SignInInvalidCredentials)
	default:
		s.record(SignInError)
	}
	return result, err
}

func (s *Service) signIn(ctx context.Context, email, password string) (*Result, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	userType, err := s.storedUserType(ctx, user)
	if err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, user.ID, userType)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed in", slog.String("user_id", user.ID))
	return &Result{Session: session, User: user}, nil
}

// SignOut はセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("user signed out", slog.String("session_id", sessionID))
	return nil
}

// GetSession はセッションとユーザーを返す。セッションが存在しないか期限切れの場合は(nil, nil)を返す。
func (s *Service) GetSession(ctx context.Context, principal *Principal, accessToken string) (*Result, error) {
	if principal == nil {
		return nil, nil
	}
	session, err := s.sessionRepo.FindByID(ctx, principal.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	session.AccessToken = accessToken
	return &Result{Session: session, User: user}, nil
}

// Authenticate はアクセストークンを検証し、セッションが失効していないことを確認する。
// 無効なトークンや失効済みセッションの場合は(nil, nil)を返す。
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if accessToken == "" {
		return nil, nil
	}
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil, nil
	}
	session, err := s.sessionRepo.FindByID(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.UserID != claims.Subject {
		return nil, nil
	}
	return &Principal{
		UserID:    session.UserID,
		UserType:  claims.UserType,
		SessionID: session.ID,
	}, nil
}

// storedUserType は登録済みのアカウント種別を返す。プロフィール行を優先し、なければメタデータを使う。
func (s *Service) storedUserType(ctx context.Context, user *model.User) (model.UserType, error) {
	profile, err := s.profileRepo.FindByID(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to find profile: %w", err)
	}
	if profile != nil {
		return profile.UserType, nil
	}
	return user.UserMetadata.UserType, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string, userType model.UserType) (*model.Session, error) {
	now := s.now()
	session := &model.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	token, err := s.tokens.Issue(session, userType)
	if err != nil {
		return nil, err
	}
	session.AccessToken = token

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

func (s *Service) record(result string) {
	if s.recorder != nil {
		s.recorder.RecordSignIn(result)
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewInvalidEmailError(raw)
	}
	return email, nil
}

func isCode(err error, code string) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
