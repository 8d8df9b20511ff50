package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/genai"
)

// contentGenerator はgenai.Modelsのうち使用するメソッド。
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient はGoogle Gemini APIを使用するCompleter。
type GeminiClient struct {
	models contentGenerator
	model  string
	logger *slog.Logger
}

// NewGeminiClient はGeminiClientを生成する。
// httpClientにはタイムアウト設定済みのクライアントを渡す。
func NewGeminiClient(ctx context.Context, apiKey, model string, httpClient *http.Client, logger *slog.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの生成に失敗しました: %w", err)
	}
	return &GeminiClient{models: client.Models, model: model, logger: logger}, nil
}

// Complete はプロンプトを送信し、生成テキストを返す。
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		c.logger.Error("Gemini APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("model", c.model),
		)
		return "", &TransportError{Message: transportReason(err), Err: err}
	}
	return result.Text(), nil
}

// compile-time interface check
var _ Completer = (*GeminiClient)(nil)
