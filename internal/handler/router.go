package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/mockprep/internal/middleware"
)

// HealthChecker はヘルスチェックで依存先の疎通を確認するインターフェース。
// *sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// Metrics はルーターが記録するメトリクスのインターフェース。
type Metrics interface {
	middleware.StatusRecorder
	StoreFailureRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Verifier          middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// ヘルスチェック・メトリクス（nilの場合はルートを登録しない、または疎通確認を省略する）
	HealthChecker  HealthChecker
	Metrics        Metrics
	MetricsHandler http.Handler

	// サービス
	InterviewService InterviewServiceInterface
	UserService      UserServiceInterface
	ResumeService    ResumeServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → Logging → Metrics → CORS → BearerAuth → RateLimit(General)
//
// /health と /metrics は認証の外に配置する。
// AIを呼び出すエンドポイントにはAI専用レート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	var failures StoreFailureRecorder
	if deps.Metrics != nil {
		failures = deps.Metrics
	}
	interviewHandler := NewInterviewHandler(deps.InterviewService, logger, failures)
	userHandler := NewUserHandler(deps.UserService, logger, failures)
	resumeHandler := NewResumeHandler(deps.ResumeService, logger, failures)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.Verifier, logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		aiLimit := deps.RateLimiter.AIMiddleware()

		// ユーザー
		r.Route("/api/users", func(r chi.Router) {
			r.Post("/sync", userHandler.Sync)
			r.Get("/me", userHandler.Me)
		})

		// 面接・回答
		r.Route("/api/interviews", func(r chi.Router) {
			r.Get("/", interviewHandler.ListInterviews)
			r.Post("/", interviewHandler.CreateInterview)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", interviewHandler.GetInterview)
				r.Put("/", interviewHandler.UpdateInterview)
				r.Delete("/", interviewHandler.DeleteInterview)

				// POST /api/interviews/{id}/questions - AIによる質問生成
				r.With(aiLimit).Post("/questions", interviewHandler.GenerateQuestions)

				r.Get("/answers", interviewHandler.ListAnswers)
				r.With(aiLimit).Post("/answers", interviewHandler.CreateAnswer)
			})
		})

		// 職務経歴書分析
		r.Route("/api/resumes", func(r chi.Router) {
			r.Get("/", resumeHandler.ListResumes)
			r.With(aiLimit).Post("/", resumeHandler.AnalyzeResume)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", resumeHandler.GetResume)
				r.Delete("/", resumeHandler.DeleteResume)
			})
		})
	})

	return r
}

// healthHandler はヘルスチェックのハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Warn("ヘルスチェックで依存先への疎通に失敗しました", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
