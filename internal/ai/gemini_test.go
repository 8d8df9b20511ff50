package ai

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type mockContentGenerator struct {
	generateFn func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockContentGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.generateFn(ctx, model, contents, config)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestGeminiClient_Complete(t *testing.T) {
	var buf bytes.Buffer
	c := &GeminiClient{
		model:  "gemini-2.5-flash",
		logger: newTestLogger(&buf),
		models: &mockContentGenerator{
			generateFn: func(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				if model != "gemini-2.5-flash" {
					t.Errorf("model = %q", model)
				}
				if len(contents) != 1 || contents[0].Parts[0].Text != "prompt" {
					t.Errorf("contents = %+v", contents)
				}
				return textResponse(`{"rating": 8, "feedback": "good"}`), nil
			},
		},
	}

	text, err := c.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if text != `{"rating": 8, "feedback": "good"}` {
		t.Errorf("text = %q", text)
	}
}

func TestGeminiClient_Complete_APIErrorMessage(t *testing.T) {
	var buf bytes.Buffer
	c := &GeminiClient{
		model:  "gemini-2.5-flash",
		logger: newTestLogger(&buf),
		models: &mockContentGenerator{
			generateFn: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return nil, genai.APIError{Code: 400, Message: "API key not valid", Status: "INVALID_ARGUMENT"}
			},
		},
	}

	_, err := c.Complete(context.Background(), "prompt")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if te.Message != "API key not valid" {
		t.Errorf("Message = %q, want %q", te.Message, "API key not valid")
	}
}
