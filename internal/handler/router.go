package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/moai/internal/metrics"
	"github.com/hitoshi/moai/internal/middleware"
)

// HealthChecker はヘルスチェックでDB接続を確認するためのインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	HSTS              bool

	// ヘルスチェック・メトリクス
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer
	StatusRecorder  middleware.StatusRecorder

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	UserService       UserServiceInterface
	ProgramService    ProgramServiceInterface
	ActivityService   ActivityServiceInterface
	ProgressService   ProgressServiceInterface
	BackfillRunner    BackfillRunner
	InvitationService InvitationServiceInterface
	GroupService      GroupServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS
//	  認証ルート: AuthRateLimit(IP単位)
//	  保護ルート: Session → RateLimit(General) → CSRF
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	programHandler := NewProgramHandler(deps.ProgramService)
	activityHandler := NewActivityHandler(deps.ActivityService)
	functionHandler := NewFunctionHandler(deps.ProgressService, deps.BackfillRunner)
	invitationHandler := NewInvitationHandler(deps.InvitationService)
	groupHandler := NewGroupHandler(deps.GroupService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF).ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/signup", authHandler.SignUp)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/signin", authHandler.SignIn)
		r.Post("/signout", authHandler.SignOut)
		r.Get("/session", authHandler.Session)
	})

	r.With(deps.RateLimiter.AuthMiddleware()).Get("/invitations/{token}", invitationHandler.Validate)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.AuthService))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/api/profile", userHandler.GetProfile)
		r.Patch("/api/profile", userHandler.UpdateProfile)
		r.Delete("/api/users/me", userHandler.Withdraw)
		r.Post("/rpc/get_user_emails", userHandler.GetUserEmails)

		r.Route("/functions", func(r chi.Router) {
			r.Post("/weekly-progress", functionHandler.WeeklyProgress)
			r.Post("/backfill-badges", functionHandler.BackfillBadges)
		})

		r.Route("/api/programs", func(r chi.Router) {
			r.Post("/", programHandler.CreateProgram)
			r.Get("/", programHandler.ListPrograms)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", programHandler.GetProgram)
				r.Patch("/", programHandler.UpdateProgram)
				r.Delete("/", programHandler.DeleteProgram)
				r.Put("/weeks/{week}", programHandler.SetWeekTargets)
				r.Post("/weeks/{week}/workouts", programHandler.AddWorkout)
			})
		})

		r.Route("/api/workouts/{id}", func(r chi.Router) {
			r.Post("/move", programHandler.MoveWorkout)
			r.Post("/start", activityHandler.StartWorkout)
		})

		r.Post("/api/assignments", programHandler.Assign)
		r.Get("/api/assignments/current", programHandler.CurrentAssignment)

		r.Route("/api/completions", func(r chi.Router) {
			r.Get("/", activityHandler.List)
			r.Post("/", activityHandler.Log)
			r.Post("/{id}/complete", activityHandler.Complete)
		})

		r.Post("/api/invitations", invitationHandler.Create)
		r.Post("/api/invitations/share-link", invitationHandler.CreateShareLink)

		r.Route("/api/groups", func(r chi.Router) {
			r.Post("/", groupHandler.Create)
			r.Get("/", groupHandler.List)
			r.Get("/{id}/members", groupHandler.Members)
			r.Post("/{id}/members", groupHandler.AddMember)
			r.Delete("/{id}/members/{userId}", groupHandler.RemoveMember)
		})
	})

	return r
}

// healthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
