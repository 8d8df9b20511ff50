package app

import (
	"context"
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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/mockprep/internal/ai"
	"github.com/hitoshi/mockprep/internal/apiclient"
	"github.com/hitoshi/mockprep/internal/auth"
	"github.com/hitoshi/mockprep/internal/config"
	"github.com/hitoshi/mockprep/internal/database"
	"github.com/hitoshi/mockprep/internal/handler"
	"github.com/hitoshi/mockprep/internal/interview"
	"github.com/hitoshi/mockprep/internal/logger"
	"github.com/hitoshi/mockprep/internal/metrics"
	"github.com/hitoshi/mockprep/internal/middleware"
	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/resume"
	"github.com/hitoshi/mockprep/internal/security"
	"github.com/hitoshi/mockprep/internal/session"
	"github.com/hitoshi/mockprep/internal/user"
	"github.com/hitoshi/mockprep/internal/worker/cleanup"
	"github.com/hitoshi/mockprep/internal/worker/evaluate"
	"github.com/hitoshi/mockprep/internal/worker/syncqueue"
)

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

	// help・healthcheck・signin は軽量サブコマンドのため、フル初期化をスキップする
	switch cmd {
	case CommandHelp:
		return writeUsage(w)
	case CommandHealthcheck:
		return runHealthcheck(serverPort())
	case CommandSignin:
		logger.SetupDefault(w)
		return runSignin(args[1:])
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("auth_mode", cfg.AuthMode),
		slog.String("ai_provider", cfg.AIProvider),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ストレージを開き、全依存関係をワイヤリングし、HTTPサーバーと回答評価ワーカーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := slog.Default()

	// 1. ストレージ
	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 3. AI
	completer, err := newCompleter(ctx, cfg, log)
	if err != nil {
		return err
	}
	sanitizer := security.NewTextSanitizer()
	generator := ai.NewGenerator(completer, sanitizer, collector, log)
	generator.OnTransition(func(capability string, from, to ai.State) {
		log.Debug("AI invocation state changed",
			slog.String("capability", capability),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
	})

	// 4. ドメインサービスと回答評価ワーカー
	sink := &evaluationSink{}
	dispatcher := evaluate.NewDispatcher(generator, sink, collector, log, cfg.EvalMaxConcurrent, cfg.EvalQueueSize)
	interviewService := interview.NewService(st.interviews, st.answers, generator, dispatcher, sanitizer, log)
	sink.service = interviewService

	userService := user.NewService(st.users, sanitizer, log)
	resumeService := resume.NewService(st.resumes, generator, sanitizer, log)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAI))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Verifier:          newVerifier(cfg),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            log,
		HealthChecker:     st.health,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		InterviewService:  interviewService,
		UserService:       userService,
		ResumeService:     resumeService,
	})

	// 6. バックグラウンドジョブ
	go dispatcher.Start(ctx)

	// PostgreSQL構成ではworkerコンテナが分析結果の削除を担当する
	if cfg.StoreBackend != config.StoreBackendPostgres {
		go newCleanupJob(cfg, st, log).Start(ctx, cfg.CleanupInterval)
	}

	// 7. HTTPサーバーの起動
	// AI呼び出しを含むリクエストがあるため、書き込みタイムアウトはAIタイムアウトより長くとる
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	// 実行中の評価を打ち切る
	cancel()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// ストレージを開き、保持期間を超過した職務経歴書分析の削除ジョブを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStorage(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer st.close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", cfg.ResumeRetentionDays),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	newCleanupJob(cfg, st, slog.Default()).Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

func newCleanupJob(cfg *config.Config, st *storage, log *slog.Logger) *cleanup.CleanupJob {
	job := cleanup.NewCleanupJob(st.slots, log)
	if cfg.ResumeRetentionDays > 0 {
		job.RetentionDays = cfg.ResumeRetentionDays
	}
	return job
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
// PostgreSQL以外のバックエンドではスキーマを起動時に作成するため何もしない。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreBackend != config.StoreBackendPostgres {
		slog.Info("migrations are only required for the postgres backend",
			slog.String("store_backend", cfg.StoreBackend),
		)
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runSignin はサインインを模擬し、バックエンドへのユーザー同期を最後まで実行する。
// トークンが指定されずJWT_SECRETがある場合は開発用トークンを発行する。
//
//	mockprep signin -uid <subject> [-email ...] [-name ...] [-photo ...] [-token ...] [-api http://localhost:8080]
func runSignin(args []string) error {
	fs := flag.NewFlagSet("signin", flag.ContinueOnError)
	uid := fs.String("uid", "", "subject ID of the signed-in user")
	email := fs.String("email", "", "email address")
	name := fs.String("name", "", "display name")
	photo := fs.String("photo", "", "photo URL")
	token := fs.String("token", os.Getenv("MOCKPREP_TOKEN"), "bearer token (default: issued with JWT_SECRET)")
	apiURL := fs.String("api", envOr("MOCKPREP_API_URL", "http://localhost:"+serverPort()), "backend base URL")
	timeout := fs.Duration("timeout", 2*time.Minute, "overall timeout including retries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *uid == "" {
		return errors.New("signin: -uid is required")
	}

	if *token == "" {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return errors.New("signin: -token or JWT_SECRET is required")
		}
		issued, err := auth.IssueToken(secret, model.Claims{
			SubjectID: *uid,
			Email:     *email,
			Name:      *name,
			Picture:   *photo,
		}, time.Hour)
		if err != nil {
			return err
		}
		*token = issued
	}

	log := slog.Default()
	client := apiclient.NewClient(&http.Client{Timeout: 10 * time.Second}, log, *apiURL)
	queue := syncqueue.NewQueue(client, metrics.NopCollector{}, log)
	bridge := session.NewBridge(queue, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	bridge.OnSessionChange(ctx, &session.ProviderSession{
		User: session.ProviderUser{
			UID:         *uid,
			DisplayName: *name,
			Email:       *email,
			PhotoURL:    *photo,
		},
		Token: *token,
	})
	queue.Drain(ctx)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("signin: user sync did not finish: %w", err)
	}
	if current := bridge.CurrentUser(); current != nil {
		slog.Info("signed in",
			slog.String("user_id", current.ID),
			slog.String("email", current.Email),
		)
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

func serverPort() string {
	return envOr("SERVER_PORT", "8080")
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
