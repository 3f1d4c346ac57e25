package authflow

import (
	"github.com/hitoshi/moai/internal/model"
)

// Event は状態機械に送るイベント。
type Event interface {
	eventName() string
}

// CheckSession は保存済みセッションの確認を要求する。
type CheckSession struct{}

// SetSession は外部（認証状態の変更通知等）からセッションを設定する。
type SetSession struct {
	Session *model.Session
	User    *model.User
}

// SignIn はメールアドレスとパスワードによるサインインを要求する。
// UserTypeは画面で選択したアカウント種別で、登録済みの種別と一致する必要がある。
type SignIn struct {
	Email    string
	Password string
	UserType model.UserType
}

// SignUp はアカウント作成を要求する。
type SignUp struct {
	Email           string
	Password        string
	UserType        model.UserType
	FullName        string
	InvitationToken string
}

// SignOut はサインアウトを要求する。
type SignOut struct{}

// SetUserType はアカウント種別を設定する。
type SetUserType struct {
	UserType model.UserType
}

// SetProfile はプロフィールを設定する。
type SetProfile struct {
	Profile *model.Profile
}

// 以下は外部呼び出しの結果を状態機械に戻す内部イベント。

type sessionChecked struct {
	Session *model.Session
	User    *model.User
	Err     error
}

type signedIn struct {
	Session  *model.Session
	User     *model.User
	Profile  *model.Profile
	UserType model.UserType
	Err      error
}

type signedUp struct {
	Session  *model.Session
	User     *model.User
	UserType model.UserType
	Err      error
}

type profileFetched struct {
	Profile *model.Profile
	Err     error
}

type signedOut struct {
	Err error
}

func (CheckSession) eventName() string   { return "CHECK_SESSION" }
func (SetSession) eventName() string     { return "SET_SESSION" }
func (SignIn) eventName() string         { return "SIGN_IN" }
func (SignUp) eventName() string         { return "SIGN_UP" }
func (SignOut) eventName() string        { return "SIGN_OUT" }
func (SetUserType) eventName() string    { return "SET_USER_TYPE" }
func (SetProfile) eventName() string     { return "SET_PROFILE" }
func (sessionChecked) eventName() string { return "done.checkSession" }
func (signedIn) eventName() string       { return "done.signIn" }
func (signedUp) eventName() string       { return "done.signUp" }
func (profileFetched) eventName() string { return "done.fetchProfile" }
func (signedOut) eventName() string      { return "done.signOut" }

// Effect はTransitionが要求する副作用。Actorが実行する。
type Effect interface {
	effectName() string
}

// InvokeGetSession はセッション確認の呼び出しを要求する。
type InvokeGetSession struct{}

// InvokeSignIn は認証情報の検証を要求する。
type InvokeSignIn struct{ Request SignIn }

// InvokeSignUp はアカウント作成を要求する。
type InvokeSignUp struct{ Request SignUp }

// InvokeFetchProfile はプロフィール取得を要求する。
type InvokeFetchProfile struct{ UserID string }

// InvokeSignOut はサインアウトの呼び出しを要求する。
type InvokeSignOut struct{}

// Notify は通知の表示を要求する。
type Notify struct{ Notification Notification }

func (InvokeGetSession) effectName() string   { return "getSession" }
func (InvokeSignIn) effectName() string       { return "signIn" }
func (InvokeSignUp) effectName() string       { return "signUp" }
func (InvokeFetchProfile) effectName() string { return "fetchProfile" }
func (InvokeSignOut) effectName() string      { return "signOut" }
func (Notify) effectName() string             { return "notify" }

// Level は通知の種類。
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Notification はユーザーに表示する通知。
type Notification struct {
	Level   Level
	Title   string
	Message string
}
