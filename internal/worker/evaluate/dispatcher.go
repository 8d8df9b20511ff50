// Package evaluate は提出された回答のAI評価を非同期に行うワーカーを提供する。
package evaluate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/mockprep/internal/ai"
	"github.com/hitoshi/mockprep/internal/interview"
	"github.com/hitoshi/mockprep/internal/metrics"
	"github.com/hitoshi/mockprep/internal/model"
)

// AnswerEvaluator は回答をAIで評価する。
type AnswerEvaluator interface {
	EvaluateAnswer(ctx context.Context, p ai.AnswerPrompt) (*model.AnswerFeedback, error)
}

// EvaluationStore は評価結果を保存する。
type EvaluationStore interface {
	SetAnswerEvaluation(ctx context.Context, answerID, evaluatedAnswer string, feedback model.AnswerFeedback) error
}

// Dispatcher は評価依頼をキューで受け付け、semaphoreパターンで
// 最大並列数を制御しながら評価を実行する。
type Dispatcher struct {
	evaluator      AnswerEvaluator
	store          EvaluationStore
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	queue          chan interview.EvaluationRequest
	maxConcurrency int
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合は4、queueSizeが0以下の場合は100を使用する。
func NewDispatcher(
	evaluator AnswerEvaluator,
	store EvaluationStore,
	m metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrency, queueSize int,
) *Dispatcher {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Dispatcher{
		evaluator:      evaluator,
		store:          store,
		metrics:        m,
		logger:         logger,
		queue:          make(chan interview.EvaluationRequest, queueSize),
		maxConcurrency: maxConcurrency,
	}
}

// Submit は評価依頼をキューに積む。キューが満杯の場合はブロックせずfalseを返す。
func (d *Dispatcher) Submit(req interview.EvaluationRequest) bool {
	select {
	case d.queue <- req:
		return true
	default:
		return false
	}
}

// Start はコンテキストがキャンセルされるまで評価依頼を処理する。
// キャンセル後は実行中の評価の完了を待って戻る。
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("回答評価ワーカーを開始しました",
		slog.Int("max_concurrency", d.maxConcurrency),
	)

	sem := make(chan struct{}, d.maxConcurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			d.logger.Info("回答評価ワーカーを停止しました",
				slog.Int("pending", len(d.queue)),
			)
			return
		case req := <-d.queue:
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				continue
			}

			wg.Add(1)
			go func(r interview.EvaluationRequest) {
				defer wg.Done()
				defer func() { <-sem }()
				d.evaluate(ctx, r)
			}(req)
		}
	}
}

func (d *Dispatcher) evaluate(ctx context.Context, req interview.EvaluationRequest) {
	feedback, err := d.evaluator.EvaluateAnswer(ctx, ai.AnswerPrompt{
		Question:        req.Question,
		UserAnswer:      req.UserAnswer,
		ReferenceAnswer: req.ReferenceAnswer,
	})
	if err != nil {
		d.logger.Warn("回答の評価に失敗しました",
			slog.String("answer_id", req.AnswerID),
			slog.String("error", err.Error()),
		)
		return
	}

	err = d.store.SetAnswerEvaluation(ctx, req.AnswerID, req.UserAnswer, *feedback)
	if errors.Is(err, interview.ErrStaleEvaluation) {
		d.logger.Info("回答が更新されたため評価結果を破棄しました",
			slog.String("answer_id", req.AnswerID),
		)
		return
	}
	if err != nil {
		d.logger.Error("評価結果の保存に失敗しました",
			slog.String("answer_id", req.AnswerID),
			slog.String("error", err.Error()),
		)
		return
	}

	d.metrics.RecordAnswersEvaluated(1)
	d.logger.Info("回答の評価が完了しました",
		slog.String("answer_id", req.AnswerID),
		slog.Int("rating", feedback.Rating),
	)
}

// compile-time interface check
var _ interview.EvaluationQueue = (*Dispatcher)(nil)
