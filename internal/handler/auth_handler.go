package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moai/internal/auth"
	"github.com/hitoshi/moai/internal/middleware"
	"github.com/hitoshi/moai/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*auth.Result, error)
	SignIn(ctx context.Context, email, password string) (*auth.Result, error)
	SignOut(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, principal *auth.Principal, accessToken string) (*auth.Result, error)
	Authenticate(ctx context.Context, accessToken string) (*auth.Principal, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はメールアドレスとパスワードによる認証のHTTPハンドラー。
// アクセストークンはレスポンスボディとHTTP Only Cookieの両方で返す。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type signUpRequest struct {
	Email           string         `json:"email"`
	Password        string         `json:"password"`
	UserType        model.UserType `json:"user_type"`
	FullName        string         `json:"full_name"`
	InvitationToken string         `json:"invitation_token"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp はアカウントを作成しセッションを発行する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	result, err := h.service.SignUp(r.Context(), auth.SignUpInput{
		Email:           req.Email,
		Password:        req.Password,
		UserType:        req.UserType,
		FullName:        req.FullName,
		InvitationToken: req.InvitationToken,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Session.AccessToken)
	writeJSON(w, http.StatusCreated, authResponse{
		Session: toSessionResponse(result.Session),
		User:    toUserResponse(result.User),
	})
}

// SignIn は認証情報を検証しセッションを発行する。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	result, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Session.AccessToken)
	writeJSON(w, http.StatusOK, authResponse{
		Session: toSessionResponse(result.Session),
		User:    toUserResponse(result.User),
	})
}

// SignOut はセッションを破棄する。トークンが無効でもCookieはクリアして204を返す。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if token := middleware.AccessTokenFromRequest(r); token != "" {
		principal, err := h.service.Authenticate(r.Context(), token)
		if err != nil {
			slog.Error("failed to authenticate sign-out request", slog.String("error", err.Error()))
			handleServiceError(w, err)
			return
		}
		if principal != nil {
			if err := h.service.SignOut(r.Context(), principal.SessionID); err != nil {
				handleServiceError(w, err)
				return
			}
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Session は現在のセッションとユーザーを返す。セッションがない場合はsession・userともnull。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	token := middleware.AccessTokenFromRequest(r)
	principal, err := h.service.Authenticate(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.GetSession(r.Context(), principal, token)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if result == nil {
		writeJSON(w, http.StatusOK, authResponse{})
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		Session: toSessionResponse(result.Session),
		User:    toUserResponse(result.User),
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
