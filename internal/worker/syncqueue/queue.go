// Package syncqueue はサインイン時のユーザー同期をバックグラウンドで
// 再試行しながら実行するキューを提供する。
package syncqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/mockprep/internal/metrics"
	"github.com/hitoshi/mockprep/internal/model"
)

// Job は1件のユーザー同期依頼。
type Job struct {
	SubjectID string
	Token     string
	Email     string
	Name      string
}

// Syncer はユーザー同期APIを呼び出す。
type Syncer interface {
	SyncUser(ctx context.Context, token, email, name string) (*model.User, error)

	// Permanent はSyncUserの失敗が再試行しても成功しないものかどうかを返す。
	Permanent(err error) bool
}

// Queue はユーザー同期ジョブのキュー。
// 同じsubjectの未処理ジョブは最新の1件にまとめる。
type Queue struct {
	syncer  Syncer
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]Job
	order   []string
	notify  chan struct{}

	// sleep はテスト用に差し替え可能
	sleep func(ctx context.Context, d time.Duration) error
}

// NewQueue はQueueの新しいインスタンスを生成する。
func NewQueue(syncer Syncer, m metrics.MetricsCollector, logger *slog.Logger) *Queue {
	return &Queue{
		syncer:  syncer,
		metrics: m,
		logger:  logger,
		pending: make(map[string]Job),
		notify:  make(chan struct{}, 1),
		sleep:   sleepContext,
	}
}

// Enqueue はジョブを積む。ブロックしない。
// 同じsubjectのジョブが未処理で残っている場合は内容を置き換える。
func (q *Queue) Enqueue(job Job) {
	q.mu.Lock()
	if _, ok := q.pending[job.SubjectID]; !ok {
		q.order = append(q.order, job.SubjectID)
	}
	q.pending[job.SubjectID] = job
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pending は未処理のジョブ数を返す。
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start はコンテキストがキャンセルされるまでジョブを処理する。
func (q *Queue) Start(ctx context.Context) {
	q.logger.Info("ユーザー同期キューを開始しました")
	for {
		q.Drain(ctx)

		select {
		case <-ctx.Done():
			q.logger.Info("ユーザー同期キューを停止しました", slog.Int("pending", q.Pending()))
			return
		case <-q.notify:
		}
	}
}

// Drain は未処理のジョブを呼び出し元のゴルーチンで全て処理してから戻る。
func (q *Queue) Drain(ctx context.Context) {
	for ctx.Err() == nil {
		job, ok := q.next()
		if !ok {
			return
		}
		q.process(ctx, job)
	}
}

func (q *Queue) next() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return Job{}, false
	}
	subject := q.order[0]
	q.order = q.order[1:]
	job := q.pending[subject]
	delete(q.pending, subject)
	return job, true
}

func (q *Queue) superseded(subjectID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[subjectID]
	return ok
}

// process はジョブを最大maxAttempts回まで試行する。
// 恒久的な失敗（認証エラーなど）は再試行しない。
// 待機中に同じsubjectの新しいジョブが積まれた場合は新しい方に任せる。
func (q *Queue) process(ctx context.Context, job Job) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err := q.syncer.SyncUser(ctx, job.Token, job.Email, job.Name)
		q.metrics.RecordSyncAttempt(err == nil)
		if err == nil {
			q.logger.Info("ユーザー同期が完了しました",
				slog.String("user_id", job.SubjectID),
				slog.Int("attempts", attempt+1),
			)
			return
		}

		if q.syncer.Permanent(err) {
			q.logger.Error("ユーザー同期に失敗しました。再試行しません",
				slog.String("user_id", job.SubjectID),
				slog.Int("attempts", attempt+1),
				slog.String("error", err.Error()),
			)
			return
		}

		if attempt == maxAttempts-1 {
			q.logger.Error("ユーザー同期の再試行上限に達しました",
				slog.String("user_id", job.SubjectID),
				slog.String("error", err.Error()),
			)
			return
		}

		delay := CalculateBackoff(attempt)
		q.logger.Warn("ユーザー同期に失敗しました。再試行します",
			slog.String("user_id", job.SubjectID),
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_after", delay),
			slog.String("error", err.Error()),
		)
		if err := q.sleep(ctx, delay); err != nil {
			return
		}
		if q.superseded(job.SubjectID) {
			return
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
