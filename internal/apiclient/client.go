// Package apiclient はmoai APIのHTTPクライアントを提供する。
// アクセストークンを内部に保持し、authflowのIdentityProviderとProfileFetcherとして使える。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/moai/internal/authflow"
	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/progress"
)

const (
	defaultTimeout = 15 * time.Second
	userAgent      = "moai-cli/1.0"
)

// Config はClientの設定。
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	// RequestsPerSecond はクライアント側で送信するリクエストの上限。0以下なら制限しない。
	RequestsPerSecond float64
}

// Client はmoai APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	limiter    *rate.Limiter

	mu        sync.RWMutex
	session   *model.Session
	user      *model.User
	listeners map[int]func(*model.Session, *model.User)
	nextID    int
}

var (
	_ authflow.IdentityProvider = (*Client)(nil)
	_ authflow.ProfileFetcher   = (*Client)(nil)
)

// New はClientを生成する。
func New(config Config) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		limiter:    limiter,
		listeners:  make(map[int]func(*model.Session, *model.User)),
	}
}

// Error はAPIがエラーステータスを返したことを表す。
// 本文が統一エラーフォーマットであればAPIErrorに格納する。
type Error struct {
	StatusCode int
	APIError   *model.APIError
}

func (e *Error) Error() string {
	if e.APIError != nil {
		return fmt.Sprintf("APIがステータス %d を返しました: %s", e.StatusCode, e.APIError.Error())
	}
	return fmt.Sprintf("APIがステータス %d を返しました", e.StatusCode)
}

// Unwrap はerrors.AsでAPIErrorを取り出せるようにする。
func (e *Error) Unwrap() error {
	if e.APIError == nil {
		return nil
	}
	return e.APIError
}

// --- 認証 ---

type sessionPayload struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type userPayload struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	UserMetadata model.UserMetadata `json:"user_metadata"`
	CreatedAt    time.Time          `json:"created_at"`
}

type authPayload struct {
	Session *sessionPayload `json:"session"`
	User    *userPayload    `json:"user"`
}

func (p authPayload) models() (*model.Session, *model.User) {
	if p.Session == nil || p.User == nil {
		return nil, nil
	}
	s := &model.Session{
		ID:          p.Session.ID,
		UserID:      p.Session.UserID,
		AccessToken: p.Session.AccessToken,
		ExpiresAt:   p.Session.ExpiresAt,
	}
	u := &model.User{
		ID:           p.User.ID,
		Email:        p.User.Email,
		UserMetadata: p.User.UserMetadata,
		CreatedAt:    p.User.CreatedAt,
	}
	return s, u
}

// SetAccessToken は保存済みのアクセストークンでセッションを復元する。
// 有効性はGetSessionで確認される。
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" {
		c.session, c.user = nil, nil
		return
	}
	c.session = &model.Session{AccessToken: token}
	c.user = nil
}

// AccessToken は現在のアクセストークンを返す。
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// GetSession は保持しているトークンでサーバーにセッションを問い合わせる。
// トークンがない場合や失効している場合はauthflow.ErrNoSessionを返す。
func (c *Client) GetSession(ctx context.Context) (*model.Session, *model.User, error) {
	if c.AccessToken() == "" {
		return nil, nil, authflow.ErrNoSession
	}

	var payload authPayload
	if err := c.do(ctx, http.MethodGet, "/auth/session", nil, &payload); err != nil {
		return nil, nil, err
	}
	session, user := payload.models()
	if session == nil {
		c.setSession(nil, nil)
		return nil, nil, authflow.ErrNoSession
	}
	c.mu.Lock()
	c.session, c.user = session, user
	c.mu.Unlock()
	return session, user, nil
}

// SignIn はメールアドレスとパスワードでサインインする。
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	body := map[string]string{"email": email, "password": password}
	var payload authPayload
	if err := c.do(ctx, http.MethodPost, "/auth/signin", body, &payload); err != nil {
		return nil, nil, err
	}
	session, user := payload.models()
	if session == nil {
		return nil, nil, errors.New("サインインのレスポンスにセッションが含まれていません")
	}
	c.setSession(session, user)
	return session, user, nil
}

// SignUp はアカウントを作成してサインインする。
func (c *Client) SignUp(ctx context.Context, req authflow.SignUpRequest) (*model.Session, *model.User, error) {
	var payload authPayload
	if err := c.do(ctx, http.MethodPost, "/auth/signup", req, &payload); err != nil {
		return nil, nil, err
	}
	session, user := payload.models()
	if session == nil {
		return nil, nil, errors.New("サインアップのレスポンスにセッションが含まれていません")
	}
	c.setSession(session, user)
	return session, user, nil
}

// SignOut はサーバー側のセッションを破棄し、保持しているトークンを消す。
// サーバー呼び出しが失敗してもローカルのトークンは消す。
func (c *Client) SignOut(ctx context.Context) error {
	var err error
	if c.AccessToken() != "" {
		err = c.do(ctx, http.MethodPost, "/auth/signout", nil, nil)
	}
	c.setSession(nil, nil)
	return err
}

// OnAuthStateChange はセッションの変更を購読する。
func (c *Client) OnAuthStateChange(fn func(session *model.Session, user *model.User)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) setSession(session *model.Session, user *model.User) {
	c.mu.Lock()
	c.session, c.user = session, user
	listeners := make([]func(*model.Session, *model.User), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(session, user)
	}
}

// --- データ取得 ---

type profilePayload struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	FullName  string         `json:"full_name"`
	UserType  model.UserType `json:"user_type"`
	CreatedAt time.Time      `json:"created_at"`
}

// FetchProfile はサインイン中のユーザーのプロフィールを返す。
// プロフィールがない場合や別ユーザーのIDを指定した場合は(nil, nil)を返す。
func (c *Client) FetchProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var payload profilePayload
	err := c.do(ctx, http.MethodGet, "/api/profile", nil, &payload)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if payload.ID != userID {
		return nil, nil
	}
	return &model.Profile{
		ID:        payload.ID,
		Email:     payload.Email,
		FullName:  payload.FullName,
		UserType:  payload.UserType,
		CreatedAt: payload.CreatedAt,
	}, nil
}

// WeeklyProgress はクライアントの今週の進捗を返す。
func (c *Client) WeeklyProgress(ctx context.Context, clientID string) (*progress.WeeklyProgress, error) {
	var wp progress.WeeklyProgress
	if err := c.do(ctx, http.MethodPost, "/functions/weekly-progress", map[string]string{"client_id": clientID}, &wp); err != nil {
		return nil, err
	}
	return &wp, nil
}

// do はJSONリクエストを送信し、レスポンスをoutにデコードする。outがnilなら本文は読み捨てる。
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("API呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var e struct {
			Code     string `json:"code"`
			Message  string `json:"message"`
			Category string `json:"category"`
			Action   string `json:"action"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Code != "" {
			apiErr.APIError = &model.APIError{Code: e.Code, Message: e.Message, Category: e.Category, Action: e.Action}
		}
		c.logger.Debug("APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
