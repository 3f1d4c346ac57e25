package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/moai/internal/activity"
	"github.com/hitoshi/moai/internal/apiclient"
	"github.com/hitoshi/moai/internal/auth"
	"github.com/hitoshi/moai/internal/authflow"
	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/badge"
	"github.com/hitoshi/moai/internal/config"
	"github.com/hitoshi/moai/internal/database"
	"github.com/hitoshi/moai/internal/group"
	"github.com/hitoshi/moai/internal/handler"
	"github.com/hitoshi/moai/internal/invitation"
	"github.com/hitoshi/moai/internal/logger"
	"github.com/hitoshi/moai/internal/mailer"
	"github.com/hitoshi/moai/internal/metrics"
	"github.com/hitoshi/moai/internal/middleware"
	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/program"
	"github.com/hitoshi/moai/internal/progress"
	"github.com/hitoshi/moai/internal/repository"
	"github.com/hitoshi/moai/internal/security"
	"github.com/hitoshi/moai/internal/user"
	"github.com/hitoshi/moai/internal/worker/cleanup"
)

// stdout はbackfillやsigninの結果を出力する先。
var stdout io.Writer = os.Stdout

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)
	rest := commandArgs(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	// signin はAPIクライアントとして動くため、DB設定を必要としない
	if cmd == CommandSignIn {
		logger.SetupDefault(w)
		return runSignIn(rest)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("timezone", cfg.ReferenceTimezone),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, rest)
	case CommandBackfill:
		return runBackfill(cfg, rest)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// repositories はアプリケーションが使うPostgreSQLリポジトリの組。
type repositories struct {
	users       *repository.PostgresUserRepo
	profiles    *repository.PostgresProfileRepo
	sessions    *repository.PostgresSessionRepo
	programs    *repository.PostgresProgramRepo
	weeks       *repository.PostgresWorkoutWeekRepo
	workouts    *repository.PostgresWorkoutRepo
	assignments *repository.PostgresAssignmentRepo
	completions *repository.PostgresCompletionRepo
	badges      *repository.PostgresBadgeRepo
	invitations *repository.PostgresInvitationRepo
	groups      *repository.PostgresGroupRepo
}

func newRepositories(db *sql.DB) *repositories {
	return &repositories{
		users:       repository.NewPostgresUserRepo(db),
		profiles:    repository.NewPostgresProfileRepo(db),
		sessions:    repository.NewPostgresSessionRepo(db),
		programs:    repository.NewPostgresProgramRepo(db),
		weeks:       repository.NewPostgresWorkoutWeekRepo(db),
		workouts:    repository.NewPostgresWorkoutRepo(db),
		assignments: repository.NewPostgresAssignmentRepo(db),
		completions: repository.NewPostgresCompletionRepo(db),
		badges:      repository.NewPostgresBadgeRepo(db),
		invitations: repository.NewPostgresInvitationRepo(db),
		groups:      repository.NewPostgresGroupRepo(db),
	}
}

func newBackfillJob(cfg *config.Config, repos *repositories, recorder badge.Recorder) *badge.BackfillJob {
	return badge.NewBackfillJob(badge.Repositories{
		Assignments: repos.assignments,
		Weeks:       repos.weeks,
		Workouts:    repos.workouts,
		Completions: repos.completions,
		Badges:      repos.badges,
		Groups:      repos.groups,
	}, recorder, cfg.Location(), slog.Default(), cfg.BackfillInterval)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリとメトリクスの初期化
	repos := newRepositories(db)
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	loc := cfg.Location()

	// 3. 横断的なサービスの初期化
	authorizer := authz.NewAuthorizer(repos.groups)
	sanitizer := security.NewTextSanitizer()
	sender := mailer.New(cfg.ResendAPIKey, cfg.MailFrom)

	// 4. ドメインサービスの初期化
	invitationService := invitation.NewService(repos.invitations, sender, invitation.Config{
		TTL:     cfg.InvitationTTL,
		SiteURL: cfg.SiteURL,
	}, slog.Default())

	authService := auth.NewService(
		repos.users, repos.profiles, repos.sessions,
		invitationService,
		auth.NewTokenIssuer(cfg.SessionSecret),
		collector,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	userService := user.NewService(repos.users, repos.profiles, repos.sessions, sanitizer)
	groupService := group.NewService(repos.groups, repos.profiles, sanitizer)

	programService := program.NewService(program.Repositories{
		Programs:    repos.programs,
		Weeks:       repos.weeks,
		Workouts:    repos.workouts,
		Assignments: repos.assignments,
	}, authorizer, sanitizer, loc)

	activityService := activity.NewService(activity.Repositories{
		Workouts:    repos.workouts,
		Assignments: repos.assignments,
		Completions: repos.completions,
	}, authorizer, sanitizer, loc)

	progressService := progress.NewService(
		repos.assignments, repos.programs, repos.weeks, repos.completions,
		authorizer, collector, loc, slog.Default(),
	)

	backfillJob := newBackfillJob(cfg, repos, collector)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:     rateLimiter,
		HSTS:            cfg.CookieSecure,
		HealthChecker:   db,
		MetricsGatherer: prometheus.DefaultGatherer,
		StatusRecorder:  collector,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserService:       userService,
		ProgramService:    programService,
		ActivityService:   activityService,
		ProgressService:   progressService,
		BackfillRunner:    backfillJob,
		InvitationService: invitationService,
		GroupService:      groupService,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-listenErr:
		return fmt.Errorf("server listen failed: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// バッジのバックフィルと期限切れデータのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. ジョブの初期化
	repos := newRepositories(db)
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	backfillJob := newBackfillJob(cfg, repos, collector)
	cleanupJob := cleanup.NewCleanupJob(repos.sessions, repos.invitations, collector, slog.Default(), cfg.CleanupInterval)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("backfill_interval", cfg.BackfillInterval),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// クリーンアップジョブをバックグラウンドで起動
	go cleanupJob.Start(ctx)

	// バックフィルジョブをメインgoroutineで実行（ブロッキング）
	backfillJob.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしまたはupで未適用のマイグレーションをすべて適用し、downで直近の1件を戻す。
// versionは現在のバージョンを表示する。
func runMigrate(cfg *config.Config, args []string) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	slog.Info("running database migrations",
		slog.String("action", action),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case "up":
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case "down":
		if err := database.RollbackLast(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q (want up, down or version)", action)
	}

	version, dirty, err := database.Version(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// backfillFlags はbackfillサブコマンドの引数。
type backfillFlags struct {
	request badge.BackfillRequest
}

func parseBackfillFlags(args []string) (*backfillFlags, error) {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var f backfillFlags
	fs.StringVar(&f.request.UserID, "user", "", "対象ユーザーID")
	fs.StringVar(&f.request.GroupID, "group", "", "対象グループID")
	fs.BoolVar(&f.request.DryRun, "dry-run", false, "バッジを作成せずに結果だけを表示する")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("invalid backfill arguments: %w", err)
	}
	return &f, nil
}

// runBackfill はバッジのバックフィルを1回実行し、レポートをJSONで出力する。
func runBackfill(cfg *config.Config, args []string) error {
	flags, err := parseBackfillFlags(args)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	collector := metrics.NewCollector(prometheus.NewRegistry())
	job := newBackfillJob(cfg, newRepositories(db), collector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := job.Run(ctx, flags.request)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// signInFlags はsigninサブコマンドの引数。
type signInFlags struct {
	baseURL  string
	email    string
	password string
	userType model.UserType
	progress bool
}

func parseSignInFlags(args []string) (*signInFlags, error) {
	fs := flag.NewFlagSet("signin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	baseURL := os.Getenv("MOAI_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	var f signInFlags
	var userType string
	fs.StringVar(&f.baseURL, "base-url", baseURL, "APIのベースURL")
	fs.StringVar(&f.email, "email", "", "メールアドレス")
	fs.StringVar(&f.password, "password", os.Getenv("MOAI_PASSWORD"), "パスワード（省略時はMOAI_PASSWORD）")
	fs.StringVar(&userType, "user-type", string(model.UserTypeClient), "アカウント種別")
	fs.BoolVar(&f.progress, "progress", false, "サインイン後に今週の進捗を表示する")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("invalid signin arguments: %w", err)
	}

	f.userType = model.UserType(userType)
	if f.email == "" || f.password == "" {
		return nil, errors.New("signin requires --email and --password (or MOAI_PASSWORD)")
	}
	if !f.userType.Valid() {
		return nil, fmt.Errorf("invalid user type %q", userType)
	}
	return &f, nil
}

// signInOutput はsigninサブコマンドの出力。
type signInOutput struct {
	State    authflow.State           `json:"state"`
	UserID   string                   `json:"user_id,omitempty"`
	Email    string                   `json:"email,omitempty"`
	UserType model.UserType           `json:"user_type,omitempty"`
	FullName string                   `json:"full_name,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Progress *progress.WeeklyProgress `json:"weekly_progress,omitempty"`
}

// runSignIn はAPIクライアントで認証状態機械を駆動し、サインイン結果をJSONで出力する。
func runSignIn(args []string) error {
	flags, err := parseSignInFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// サインインの成否は必ず通知1件で終わるため、通知を完了の合図にする
	notifications := make(chan authflow.Notification, 4)
	notifier := authflow.NotifierFunc(func(n authflow.Notification) {
		slog.Info("auth notification",
			slog.String("level", string(n.Level)),
			slog.String("title", n.Title),
			slog.String("message", n.Message),
		)
		select {
		case notifications <- n:
		default:
		}
	})

	client := apiclient.New(apiclient.Config{BaseURL: flags.baseURL, Logger: slog.Default()})
	actor := authflow.NewActor(client, client, notifier, slog.Default())
	actor.Start(ctx)
	defer actor.Stop()

	actor.Send(authflow.CheckSession{})
	if _, err := actor.WaitFor(ctx, authflow.Snapshot.Settled); err != nil {
		return fmt.Errorf("session check did not finish: %w", err)
	}

	actor.Send(authflow.SignIn{Email: flags.email, Password: flags.password, UserType: flags.userType})
	select {
	case <-notifications:
	case <-ctx.Done():
		return fmt.Errorf("sign-in did not finish: %w", ctx.Err())
	}
	snap, err := actor.WaitFor(ctx, authflow.Snapshot.Settled)
	if err != nil {
		return fmt.Errorf("sign-in did not finish: %w", err)
	}

	out := signInOutput{State: snap.State, Error: snap.Context.Err, UserType: snap.Context.UserType}
	if u := snap.Context.User; u != nil {
		out.UserID = u.ID
		out.Email = u.Email
	}
	if p := snap.Context.Profile; p != nil {
		out.FullName = p.FullName
	}

	if snap.State == authflow.StateAuthenticated && flags.progress {
		wp, err := client.WeeklyProgress(ctx, out.UserID)
		if err != nil {
			return fmt.Errorf("failed to fetch weekly progress: %w", err)
		}
		out.Progress = wp
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if snap.State != authflow.StateAuthenticated {
		return fmt.Errorf("sign-in failed: %s", snap.Context.Err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
