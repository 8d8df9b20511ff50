package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/mockprep/internal/ai"
	"github.com/hitoshi/mockprep/internal/auth"
	"github.com/hitoshi/mockprep/internal/config"
	"github.com/hitoshi/mockprep/internal/database"
	"github.com/hitoshi/mockprep/internal/handler"
	"github.com/hitoshi/mockprep/internal/interview"
	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/repository"
	"github.com/hitoshi/mockprep/internal/security"
	"github.com/hitoshi/mockprep/internal/store"
	"github.com/hitoshi/mockprep/internal/worker/cleanup"
)

// slotStore はスロットストレージと期限切れスロットの削除を兼ねる。
type slotStore interface {
	store.SlotStorage
	cleanup.SlotPurger
}

// storage はバックエンドごとに組み立てたリポジトリ群。
type storage struct {
	interviews repository.InterviewRepository
	answers    repository.AnswerRepository
	users      repository.UserRepository
	resumes    repository.ResumeRepository
	slots      slotStore

	// health はnilの場合ヘルスチェックで疎通確認を行わない
	health handler.HealthChecker
	close  func() error
}

// openStorage はSTORE_BACKENDに応じてリポジトリを組み立てる。
//
//	postgres: テーブル単位のリポジトリ + kv_slotsテーブル
//	sqlite:   スロット上のドキュメントストア（コレクションごとに1スロット）
//	memory:   プロセス内のドキュメントストア
//
// 職務経歴書分析はどのバックエンドでもスロットに保存する。
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("database connection established", slog.String("backend", cfg.StoreBackend))

		slots := store.NewPostgresSlots(db)
		return &storage{
			interviews: repository.NewPostgresInterviewRepo(db),
			answers:    repository.NewPostgresAnswerRepo(db),
			users:      repository.NewPostgresUserRepo(db),
			resumes:    repository.NewSlotResumeRepo(slots, logger),
			slots:      slots,
			health:     db,
			close:      db.Close,
		}, nil

	case config.StoreBackendSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slots := store.NewSQLiteSlots(db)
		if err := slots.Init(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("sqlite database opened",
			slog.String("path", cfg.SQLitePath),
			slog.String("namespace", cfg.StoreNamespace),
		)

		docs := store.NewDurableStore(slots, cfg.StoreNamespace, logger, repository.Collections()...)
		return &storage{
			interviews: repository.NewDocumentInterviewRepo(docs),
			answers:    repository.NewDocumentAnswerRepo(docs),
			users:      repository.NewDocumentUserRepo(docs),
			resumes:    repository.NewSlotResumeRepo(slots, logger),
			slots:      slots,
			health:     db,
			close:      db.Close,
		}, nil

	default:
		logger.Warn("in-memory store is enabled; data is lost on restart")
		docs := store.NewMemoryStore(logger, repository.Collections()...)
		slots := store.NewMemorySlots()
		return &storage{
			interviews: repository.NewDocumentInterviewRepo(docs),
			answers:    repository.NewDocumentAnswerRepo(docs),
			users:      repository.NewDocumentUserRepo(docs),
			resumes:    repository.NewSlotResumeRepo(slots, logger),
			slots:      slots,
			close:      func() error { return nil },
		}, nil
	}
}

// newVerifier はAUTH_MODEに応じたトークン検証器を返す。
func newVerifier(cfg *config.Config) auth.TokenVerifier {
	if cfg.AuthMode == config.AuthModeJWT {
		return auth.NewJWTVerifier(cfg.JWTSecret)
	}
	return auth.NewGoogleVerifier(cfg.GoogleClientID)
}

// newCompleter はAI_PROVIDERに応じたCompleterを返す。
// どちらのプロバイダーもSSRF防止付きのHTTPクライアントで通信する。
func newCompleter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ai.Completer, error) {
	guard := security.NewEndpointGuard()
	httpClient := guard.NewSafeClient(cfg.AITimeout)

	if cfg.AIProvider == config.AIProviderGemini {
		client, err := ai.NewGeminiClient(ctx, cfg.AIAPIKey, cfg.AIModel, httpClient, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	if err := guard.ValidateEndpoint(cfg.AIEndpoint); err != nil {
		return nil, fmt.Errorf("invalid AI_ENDPOINT: %w", err)
	}
	return ai.NewOpenRouterClient(httpClient, logger, ai.OpenRouterConfig{
		Endpoint:        cfg.AIEndpoint,
		APIKey:          cfg.AIAPIKey,
		Model:           cfg.AIModel,
		MaxResponseSize: cfg.AIMaxResponseSize,
	}), nil
}

// evaluationSink は評価結果の保存先を後から差し込むためのアダプタ。
// 評価ワーカーと面接サービスが互いを参照するため、生成順の循環をここで切る。
type evaluationSink struct {
	service *interview.Service
}

func (s *evaluationSink) SetAnswerEvaluation(ctx context.Context, answerID, evaluatedAnswer string, feedback model.AnswerFeedback) error {
	return s.service.SetAnswerEvaluation(ctx, answerID, evaluatedAnswer, feedback)
}
