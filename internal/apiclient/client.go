// Package apiclient はmockprepバックエンドAPIのクライアントを提供する。
// サインイン直後のユーザー同期に使用する。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/mockprep/internal/model"
)

const (
	// syncPath はユーザー同期エンドポイントのパス。
	syncPath = "/api/users/sync"
	// maxResponseSize はレスポンスボディの読み取り上限（1MB）。
	maxResponseSize = 1 << 20
)

// StatusError はバックエンドが2xx以外を返したことを示す。
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("バックエンドがステータス %d を返しました", e.StatusCode)
	}
	return fmt.Sprintf("バックエンドがステータス %d を返しました: %s", e.StatusCode, e.Message)
}

// Permanent は再試行しても結果が変わらない失敗かどうかを返す。
// 408と429を除く4xxは恒久的な失敗とみなす。
func (e *StatusError) Permanent() bool {
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Client はバックエンドAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type syncRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SyncUser はトークンの主体をバックエンドのユーザーとして登録・更新する。
// 同じ主体に対して何度呼んでも結果は同じになる。
func (c *Client) SyncUser(ctx context.Context, token, email, name string) (*model.User, error) {
	body, err := json.Marshal(syncRequest{Email: email, Name: name})
	if err != nil {
		return nil, fmt.Errorf("リクエストの直列化に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+syncPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("ユーザー同期APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var errBody struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &errBody) == nil {
			statusErr.Code = errBody.Code
			statusErr.Message = errBody.Message
		}
		c.logger.Warn("ユーザー同期APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("code", statusErr.Code),
		)
		return nil, statusErr
	}

	user := &model.User{}
	if err := json.Unmarshal(raw, user); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return user, nil
}

// Permanent はerrが再試行しても成功しない失敗かどうかを返す。
func (c *Client) Permanent(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Permanent()
}
