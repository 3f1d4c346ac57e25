package authflow

import (
	"errors"

	"github.com/hitoshi/moai/internal/model"
)

// ErrNoSession は有効なセッションが存在しないことを表す。
var ErrNoSession = errors.New("no active session")

// Transition は現在のスナップショットとイベントから次のスナップショットと副作用を返す。
// 現在の状態に定義のないイベントは無視し、スナップショットをそのまま返す。
func Transition(s Snapshot, ev Event) (Snapshot, []Effect) {
	next, effects, ok := step(s, ev)
	if !ok {
		return s, nil
	}
	next, more := always(next)
	return next, append(effects, more...)
}

func step(s Snapshot, ev Event) (Snapshot, []Effect, bool) {
	c := s.Context

	switch s.State {
	case StateInitializing:
		switch e := ev.(type) {
		case CheckSession:
			return Snapshot{State: StateCheckingSession, Context: c}, []Effect{InvokeGetSession{}}, true
		case SetSession:
			// ユーザーのないセッションはセッションなしと同じ扱い
			if e.Session == nil || e.User == nil {
				return Snapshot{State: StateUnauthenticated, Context: unauthenticatedContext()}, nil, true
			}
			return withSession(c, e.Session, e.User), nil, true
		}

	case StateCheckingSession:
		if e, ok := ev.(sessionChecked); ok {
			if e.Err != nil || e.Session == nil || e.User == nil {
				next := unauthenticatedContext()
				err := e.Err
				if err == nil {
					err = ErrNoSession
				}
				next.Err = message(err)
				if errors.Is(err, ErrNoSession) {
					return Snapshot{State: StateUnauthenticated, Context: next}, nil, true
				}
				return Snapshot{State: StateUnauthenticated, Context: next},
					[]Effect{notifyError("セッションの確認に失敗しました", err)}, true
			}
			return withSession(c, e.Session, e.User), nil, true
		}

	case StateUnauthenticated:
		switch e := ev.(type) {
		case SignIn:
			c.Loading = true
			c.Err = ""
			return Snapshot{State: StateSigningIn, Context: c}, []Effect{InvokeSignIn{Request: e}}, true
		case SignUp:
			c.Loading = true
			c.Err = ""
			return Snapshot{State: StateSigningUp, Context: c}, []Effect{InvokeSignUp{Request: e}}, true
		case SetSession:
			if e.Session == nil || e.User == nil {
				return s, nil, false
			}
			return withSession(c, e.Session, e.User), nil, true
		}

	case StateSigningIn:
		if e, ok := ev.(signedIn); ok {
			if e.Err != nil {
				next := unauthenticatedContext()
				next.Err = message(e.Err)
				return Snapshot{State: StateUnauthenticated, Context: next},
					[]Effect{notifyError("サインインに失敗しました", e.Err)}, true
			}
			next := withSession(c, e.Session, e.User)
			if e.Profile != nil {
				next.Context.Profile = e.Profile
				next.Context.UserType = e.Profile.UserType
				next.Context.profileAttempted = true
			} else {
				next.Context.UserType = e.UserType
			}
			return next, []Effect{notifySuccess("サインインしました", "")}, true
		}

	case StateSigningUp:
		if e, ok := ev.(signedUp); ok {
			if e.Err != nil {
				next := unauthenticatedContext()
				next.Err = message(e.Err)
				return Snapshot{State: StateUnauthenticated, Context: next},
					[]Effect{notifyError("アカウントの作成に失敗しました", e.Err)}, true
			}
			next := withSession(c, e.Session, e.User)
			next.Context.UserType = e.UserType
			return next, []Effect{notifySuccess("アカウントを作成しました", "")}, true
		}

	case StateAuthenticated:
		switch e := ev.(type) {
		case SignOut:
			c.Loading = true
			c.Err = ""
			return Snapshot{State: StateSigningOut, Context: c}, []Effect{InvokeSignOut{}}, true
		case SetUserType:
			c.UserType = e.UserType
			return Snapshot{State: StateAuthenticated, Context: c}, nil, true
		case SetProfile:
			c.Profile = e.Profile
			if e.Profile != nil {
				c.UserType = e.Profile.UserType
			}
			return Snapshot{State: StateAuthenticated, Context: c}, nil, true
		case SetSession:
			// トークン更新。別ユーザーへの切り替えはサインアウトを経由させる
			if e.Session == nil || e.User == nil || c.User == nil || e.User.ID != c.User.ID {
				return s, nil, false
			}
			c.Session = e.Session
			c.User = e.User
			return Snapshot{State: StateAuthenticated, Context: c}, nil, true
		}

	case StateFetchingProfile:
		if e, ok := ev.(profileFetched); ok {
			c.profileAttempted = true
			c.Loading = false
			if e.Err != nil || e.Profile == nil {
				err := e.Err
				if err == nil {
					err = model.NewProfileNotFoundError(userID(c))
				}
				c.Err = message(err)
				if c.UserType == "" && c.User != nil {
					c.UserType = c.User.UserMetadata.UserType
				}
				return Snapshot{State: StateAuthenticated, Context: c},
					[]Effect{notifyError("プロフィールの取得に失敗しました", err)}, true
			}
			c.Profile = e.Profile
			c.UserType = e.Profile.UserType
			c.Err = ""
			return Snapshot{State: StateAuthenticated, Context: c}, nil, true
		}

	case StateSigningOut:
		if e, ok := ev.(signedOut); ok {
			next := unauthenticatedContext()
			if e.Err != nil {
				next.Err = message(e.Err)
				return Snapshot{State: StateUnauthenticated, Context: next},
					[]Effect{notifyWarning("サインアウト処理でエラーが発生しました", e.Err)}, true
			}
			return Snapshot{State: StateUnauthenticated, Context: next}, nil, true
		}
	}

	return s, nil, false
}

// always は条件付きの自動遷移を適用する。
// 認証済みでプロフィールとアカウント種別が未取得ならプロフィール取得に進む。
func always(s Snapshot) (Snapshot, []Effect) {
	c := s.Context
	if s.State == StateAuthenticated && c.User != nil && c.Profile == nil && c.UserType == "" && !c.profileAttempted {
		return Snapshot{State: StateFetchingProfile, Context: c}, []Effect{InvokeFetchProfile{UserID: c.User.ID}}
	}
	return s, nil
}

func withSession(c Context, session *model.Session, user *model.User) Snapshot {
	if c.User == nil || user == nil || c.User.ID != user.ID {
		c.Profile = nil
		c.UserType = ""
		c.profileAttempted = false
	}
	c.Session = session
	c.User = user
	c.Loading = false
	c.Err = ""
	return Snapshot{State: StateAuthenticated, Context: c}
}

func userID(c Context) string {
	if c.User == nil {
		return ""
	}
	return c.User.ID
}

// message はユーザー向けのエラーメッセージを返す。
func message(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func notifySuccess(title, msg string) Effect {
	return Notify{Notification: Notification{Level: LevelSuccess, Title: title, Message: msg}}
}

func notifyError(title string, err error) Effect {
	return Notify{Notification: Notification{Level: LevelError, Title: title, Message: message(err)}}
}

func notifyWarning(title string, err error) Effect {
	return Notify{Notification: Notification{Level: LevelWarning, Title: title, Message: message(err)}}
}
