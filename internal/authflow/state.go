// Package authflow はクライアント側の認証・セッション状態機械を提供する。
//
// 状態遷移はTransitionの純粋関数として定義し、Actorがイベントを1つのgoroutineで直列に処理する。
// 外部呼び出し（セッション確認、サインイン等）はEffectとして返され、Actorが実行して結果イベントを戻す。
package authflow

import (
	"github.com/hitoshi/moai/internal/model"
)

// State は状態機械の状態。
type State string

const (
	StateInitializing    State = "initializing"
	StateCheckingSession State = "checkingSession"
	StateUnauthenticated State = "unauthenticated"
	StateSigningIn       State = "signingIn"
	StateSigningUp       State = "signingUp"
	StateAuthenticated   State = "authenticated"
	StateFetchingProfile State = "fetchingProfile"
	StateSigningOut      State = "signingOut"
)

// Context は状態機械が保持するデータ。
type Context struct {
	User     *model.User
	Session  *model.Session
	UserType model.UserType
	Profile  *model.Profile
	Err      string
	Loading  bool

	// profileAttempted はこのセッションでプロフィール取得を試みたかどうか。
	// 取得失敗後にfetchingProfileへ戻り続けないために使う。
	profileAttempted bool
}

// Snapshot は状態とコンテキストの組。
type Snapshot struct {
	State   State
	Context Context
}

// Initial は初期スナップショットを返す。
func Initial() Snapshot {
	return Snapshot{
		State:   StateInitializing,
		Context: Context{Loading: true},
	}
}

// IsAuthenticated は認証済み（プロフィール取得中を含む）かどうかを返す。
func (s Snapshot) IsAuthenticated() bool {
	return s.State == StateAuthenticated || s.State == StateFetchingProfile
}

// Settled は外部呼び出しを待っていない状態かどうかを返す。
func (s Snapshot) Settled() bool {
	switch s.State {
	case StateUnauthenticated, StateAuthenticated:
		return true
	default:
		return false
	}
}

// unauthenticatedContext はサインアウト後のコンテキストを返す。
func unauthenticatedContext() Context {
	return Context{}
}
