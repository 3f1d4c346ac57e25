package authflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/moai/internal/model"
)

// SignUpRequest はアカウント作成のパラメータ。
type SignUpRequest struct {
	Email           string         `json:"email"`
	Password        string         `json:"password"`
	UserType        model.UserType `json:"user_type"`
	FullName        string         `json:"full_name,omitempty"`
	InvitationToken string         `json:"invitation_token,omitempty"`
}

// IdentityProvider は認証基盤のクライアント。現在のセッションを内部に保持する。
type IdentityProvider interface {
	// GetSession は保存済みのセッションを返す。存在しない場合はErrNoSessionを返す。
	GetSession(ctx context.Context) (*model.Session, *model.User, error)
	// SignIn は認証情報を検証してセッションを発行する。
	SignIn(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	// SignUp はアカウントを作成してセッションを発行する。user_typeはメタデータに保存される。
	SignUp(ctx context.Context, req SignUpRequest) (*model.Session, *model.User, error)
	// SignOut は現在のセッションを破棄する。
	SignOut(ctx context.Context) error
	// OnAuthStateChange は認証状態の変更を購読する。戻り値で購読を解除する。
	OnAuthStateChange(fn func(session *model.Session, user *model.User)) (unsubscribe func())
}

// ProfileFetcher はプロフィールを取得するインターフェース。
// プロフィールが存在しない場合は(nil, nil)を返す。
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, userID string) (*model.Profile, error)
}

// Notifier は通知を表示するインターフェース。
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc は関数をNotifierとして扱うアダプター。
type NotifierFunc func(n Notification)

// Notify はfを呼び出す。
func (f NotifierFunc) Notify(n Notification) { f(n) }

const mailboxSize = 16

// Actor は状態機械をgoroutineで駆動する。
// イベントはメールボックスを通じて1件ずつ処理され、外部呼び出しの結果もイベントとして戻る。
// 実行中の呼び出しは取り消さない。Stop後に届いた結果は破棄する。
type Actor struct {
	provider IdentityProvider
	profiles ProfileFetcher
	notifier Notifier
	logger   *slog.Logger

	mailbox chan Event
	done    chan struct{}

	mu      sync.RWMutex
	snap    Snapshot
	changed chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	unsub     func()
	wg        sync.WaitGroup
}

// NewActor はActorを生成する。notifierがnilの場合は通知をログに出力する。
func NewActor(provider IdentityProvider, profiles ProfileFetcher, notifier Notifier, logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Actor{
		provider: provider,
		profiles: profiles,
		notifier: notifier,
		logger:   logger,
		mailbox:  make(chan Event, mailboxSize),
		done:     make(chan struct{}),
		snap:     Initial(),
		changed:  make(chan struct{}),
	}
	if a.notifier == nil {
		a.notifier = NotifierFunc(func(n Notification) {
			logger.Info("auth notification",
				slog.String("level", string(n.Level)),
				slog.String("title", n.Title),
				slog.String("message", n.Message),
			)
		})
	}
	return a
}

// Start はイベント処理を開始し、認証状態の変更通知を購読する。
func (a *Actor) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		a.ctx, a.cancel = context.WithCancel(ctx)
		a.unsub = a.provider.OnAuthStateChange(func(session *model.Session, user *model.User) {
			a.Send(SetSession{Session: session, User: user})
		})
		a.wg.Add(1)
		go a.loop()
	})
}

// Stop はイベント処理を停止する。実行中の呼び出しの結果は破棄される。
func (a *Actor) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
		if a.cancel != nil {
			a.cancel()
		}
		if a.unsub != nil {
			a.unsub()
		}
	})
	a.wg.Wait()
}

// Send はイベントをメールボックスに送る。停止後は何もしない。
func (a *Actor) Send(ev Event) {
	select {
	case <-a.done:
		return
	default:
	}
	select {
	case <-a.done:
	case a.mailbox <- ev:
	}
}

// Snapshot は現在のスナップショットを返す。
func (a *Actor) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

// WaitFor はpredを満たすスナップショットになるまで待つ。
func (a *Actor) WaitFor(ctx context.Context, pred func(Snapshot) bool) (Snapshot, error) {
	for {
		a.mu.RLock()
		snap, changed := a.snap, a.changed
		a.mu.RUnlock()
		if pred(snap) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-a.done:
			return snap, fmt.Errorf("auth actor stopped")
		case <-changed:
		}
	}
}

func (a *Actor) loop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.done:
			return
		case ev := <-a.mailbox:
			select {
			case <-a.done:
				return
			default:
			}
			a.handle(ev)
		}
	}
}

func (a *Actor) handle(ev Event) {
	a.mu.Lock()
	prev := a.snap
	next, effects := Transition(prev, ev)
	a.snap = next
	if next.State != prev.State || len(effects) > 0 || next.Context != prev.Context {
		close(a.changed)
		a.changed = make(chan struct{})
	}
	a.mu.Unlock()

	if next.State != prev.State {
		a.logger.Debug("auth state changed",
			slog.String("event", ev.eventName()),
			slog.String("from", string(prev.State)),
			slog.String("to", string(next.State)),
		)
	}

	for _, eff := range effects {
		a.run(eff)
	}
}

func (a *Actor) run(eff Effect) {
	switch e := eff.(type) {
	case Notify:
		a.notifier.Notify(e.Notification)
	case InvokeGetSession:
		a.invoke(func(ctx context.Context) Event {
			session, user, err := a.provider.GetSession(ctx)
			return sessionChecked{Session: session, User: user, Err: err}
		})
	case InvokeSignIn:
		a.invoke(func(ctx context.Context) Event {
			return a.signIn(ctx, e.Request)
		})
	case InvokeSignUp:
		a.invoke(func(ctx context.Context) Event {
			req := e.Request
			session, user, err := a.provider.SignUp(ctx, SignUpRequest{
				Email:           req.Email,
				Password:        req.Password,
				UserType:        req.UserType,
				FullName:        req.FullName,
				InvitationToken: req.InvitationToken,
			})
			return signedUp{Session: session, User: user, UserType: req.UserType, Err: err}
		})
	case InvokeFetchProfile:
		a.invoke(func(ctx context.Context) Event {
			profile, err := a.profiles.FetchProfile(ctx, e.UserID)
			return profileFetched{Profile: profile, Err: err}
		})
	case InvokeSignOut:
		a.invoke(func(ctx context.Context) Event {
			return signedOut{Err: a.provider.SignOut(ctx)}
		})
	}
}

// invoke は外部呼び出しをgoroutineで実行し、結果をメールボックスに戻す。
func (a *Actor) invoke(fn func(ctx context.Context) Event) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ev := fn(a.ctx)
		a.Send(ev)
	}()
}

// signIn は認証情報を検証し、登録済みのアカウント種別が要求と一致するかを確認する。
// 種別はプロフィール行を優先し、取得できない場合はメタデータのuser_typeを使う。
// 不一致の場合は発行されたセッションをベストエフォートで破棄する。
func (a *Actor) signIn(ctx context.Context, req SignIn) Event {
	session, user, err := a.provider.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return signedIn{Err: err}
	}

	profile, err := a.profiles.FetchProfile(ctx, user.ID)
	if err != nil {
		a.logger.Warn("failed to fetch profile during sign in",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	stored := user.UserMetadata.UserType
	if profile != nil {
		stored = profile.UserType
	}
	if req.UserType != "" && stored != req.UserType {
		if err := a.provider.SignOut(ctx); err != nil {
			a.logger.Warn("failed to revoke session after user type mismatch",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return signedIn{Err: model.NewUserTypeMismatchError(req.UserType, stored)}
	}

	return signedIn{Session: session, User: user, Profile: profile, UserType: stored}
}
