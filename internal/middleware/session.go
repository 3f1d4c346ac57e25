// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/moai/internal/auth"
	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/model"
)

// SessionCookieName はアクセストークンを保持するCookie名。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var principalContextKey = contextKey("principal")

// TokenAuthenticator はアクセストークンの検証に必要なインターフェース。
// 無効なトークンの場合は(nil, nil)を返す。
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*auth.Principal, error)
}

// NewSessionMiddleware はAuthorizationヘッダー（Bearer）またはCookieからアクセストークンを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みの主体をリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(authenticator TokenAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := AccessTokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			principal, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				slog.Error("failed to authenticate request",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if principal == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// AccessTokenFromRequest はBearerトークンを優先し、なければCookieの値を返す。
func AccessTokenFromRequest(r *http.Request) string {
	if token, ok := bearerToken(r); ok {
		return token
	}
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// PrincipalFromContext はリクエストコンテキストから認証済みの主体を取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (*auth.Principal, error) {
	p, ok := ctx.Value(principalContextKey).(*auth.Principal)
	if !ok || p == nil || p.UserID == "" {
		return nil, fmt.Errorf("principal not found in context")
	}
	return p, nil
}

// ContextWithPrincipal はコンテキストに認証済みの主体を注入する。
func ContextWithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	if h, ok := ctx.Value(principalHolderKey).(*principalHolder); ok && p != nil {
		h.set(p.UserID)
	}
	return context.WithValue(ctx, principalContextKey, p)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	p, err := PrincipalFromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("user ID not found in context")
	}
	return p.UserID, nil
}

// ContextWithUserID はコンテキストにユーザーIDだけを持つ主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithPrincipal(ctx, &auth.Principal{UserID: userID})
}

// ActorFromContext は権限判定に使うActorを返す。未認証の場合はゼロ値。
func ActorFromContext(ctx context.Context) authz.Actor {
	p, err := PrincipalFromContext(ctx)
	if err != nil {
		return authz.Actor{}
	}
	return authz.Actor{UserID: p.UserID, UserType: p.UserType}
}
