package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// defaultOpenRouterEndpoint はOpenRouterのチャット補完エンドポイント。
	defaultOpenRouterEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	// defaultMaxResponseSize はレスポンスボディの最大サイズ（1MB）。
	defaultMaxResponseSize = 1 << 20
)

// OpenRouterConfig はOpenRouterClientの設定。
type OpenRouterConfig struct {
	Endpoint        string // 空の場合はOpenRouterの既定エンドポイント
	APIKey          string
	Model           string
	MaxResponseSize int64 // 0以下の場合は1MB
}

// OpenRouterClient はOpenAI互換のchat completions APIのクライアント。
type OpenRouterClient struct {
	httpClient      *http.Client
	logger          *slog.Logger
	endpoint        string
	apiKey          string
	model           string
	maxResponseSize int64
}

// NewOpenRouterClient はOpenRouterClientを生成する。
// httpClientのタイムアウトが1回の呼び出しの上限となる。
func NewOpenRouterClient(httpClient *http.Client, logger *slog.Logger, cfg OpenRouterConfig) *OpenRouterClient {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenRouterEndpoint
	}
	maxSize := cfg.MaxResponseSize
	if maxSize <= 0 {
		maxSize = defaultMaxResponseSize
	}
	return &OpenRouterClient{
		httpClient:      httpClient,
		logger:          logger,
		endpoint:        endpoint,
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		maxResponseSize: maxSize,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Error   *providerError `json:"error"`
	Message string         `json:"message"`
}

type providerError struct {
	Message string `json:"message"`
}

// Complete はプロンプトをユーザーメッセージとして送信し、最初の候補のテキストを返す。
// 2xx以外の応答はボディの error.message または message を保持したTransportErrorになる。
func (c *OpenRouterClient) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("リクエストの直列化に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Title", "mockprep")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("AIエンドポイントの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("model", c.model),
		)
		return "", &TransportError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return "", &TransportError{StatusCode: resp.StatusCode, Message: "レスポンスボディの読み取りに失敗しました", Err: err}
	}
	if int64(len(body)) > c.maxResponseSize {
		return "", &TransportError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("レスポンスが上限 %d バイトを超えています", c.maxResponseSize)}
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := errorMessage(parsed, decodeErr)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Error("AIエンドポイントがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", msg),
			slog.String("model", c.model),
		)
		return "", &TransportError{StatusCode: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return "", &TransportError{StatusCode: resp.StatusCode, Message: "レスポンスJSONのパースに失敗しました", Err: decodeErr}
	}
	if len(parsed.Choices) == 0 {
		// 200でもerrorだけを返すプロバイダーがある
		if msg := errorMessage(parsed, nil); msg != "" {
			return "", &TransportError{StatusCode: resp.StatusCode, Message: msg}
		}
		return "", nil
	}

	choice := parsed.Choices[0]
	if choice.Message.Content != "" {
		return choice.Message.Content, nil
	}
	return choice.Text, nil
}

func errorMessage(parsed chatResponse, decodeErr error) string {
	if decodeErr != nil {
		return ""
	}
	if parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(parsed.Message)
}

// compile-time interface check
var _ Completer = (*OpenRouterClient)(nil)
