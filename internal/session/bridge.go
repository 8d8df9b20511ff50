// Package session はIdPのセッション変化を受け取り、現在のユーザーを保持する。
//
// サインインのたびにバックエンドへのユーザー同期をキューに積む。
// 同期の失敗はログに残すだけで、呼び出し元には返さない。
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/user"
	"github.com/hitoshi/mockprep/internal/worker/syncqueue"
)

// ProviderUser はIdPが返すユーザー情報。
// PhotoURLが空の場合は写真なしとして扱う。
type ProviderUser struct {
	UID         string
	DisplayName string
	Email       string
	PhotoURL    string
}

// ProviderSession はIdPのセッション。Tokenはバックエンド呼び出しに使うベアラートークン。
type ProviderSession struct {
	User  ProviderUser
	Token string
}

// SyncEnqueuer はユーザー同期ジョブを受け付ける。ブロックしてはならない。
type SyncEnqueuer interface {
	Enqueue(job syncqueue.Job)
}

// Bridge は現在のユーザーを保持する唯一の書き込み元。
type Bridge struct {
	queue  SyncEnqueuer
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	current *model.User
}

// NewBridge はBridgeを生成する。
func NewBridge(queue SyncEnqueuer, logger *slog.Logger) *Bridge {
	return &Bridge{
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// OnSessionChange はセッションの変化を反映する。
// sessionがnilの場合はサインアウトとして現在のユーザーをクリアする。
func (b *Bridge) OnSessionChange(_ context.Context, session *ProviderSession) {
	if session == nil {
		b.mu.Lock()
		prev := b.current
		b.current = nil
		b.mu.Unlock()

		if prev != nil {
			b.logger.Info("サインアウトしました", slog.String("user_id", prev.ID))
		}
		return
	}

	u := MapUser(session.User, b.now().UTC())

	b.mu.Lock()
	b.current = &u
	b.mu.Unlock()

	b.queue.Enqueue(syncqueue.Job{
		SubjectID: u.ID,
		Token:     session.Token,
		Email:     u.Email,
		Name:      u.Name,
	})
	b.logger.Info("サインインしました", slog.String("user_id", u.ID))
}

// CurrentUser は現在のユーザーのコピーを返す。サインインしていない場合はnil。
func (b *Bridge) CurrentUser() *model.User {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return nil
	}
	u := *b.current
	return &u
}

// CurrentUserID は現在のユーザーのIDを返す。サインインしていない場合は空文字。
func (b *Bridge) CurrentUserID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return ""
	}
	return b.current.ID
}

// MapUser はIdPのユーザー情報を内部のUserに変換する。
func MapUser(p ProviderUser, now time.Time) model.User {
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name = user.DefaultName
	}
	email := strings.TrimSpace(p.Email)
	if email == "" {
		email = user.DefaultEmail
	}
	return model.User{
		ID:        p.UID,
		Name:      name,
		Email:     email,
		ImageURL:  p.PhotoURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
