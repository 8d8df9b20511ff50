package ai

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/mockprep/internal/metrics"
	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/security"
)

type mockCompleter struct {
	completeFn func(ctx context.Context, prompt string) (string, error)
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return m.completeFn(ctx, prompt)
}

func respondWith(text string) *mockCompleter {
	return &mockCompleter{completeFn: func(context.Context, string) (string, error) { return text, nil }}
}

type transition struct {
	From, To State
}

func newTestGenerator(c Completer) (*Generator, *[]transition) {
	var buf bytes.Buffer
	g := NewGenerator(c, security.NewTextSanitizer(), metrics.NopCollector{}, newTestLogger(&buf))
	var seen []transition
	g.OnTransition(func(_ string, from, to State) {
		seen = append(seen, transition{from, to})
	})
	return g, &seen
}

var samplePrompt = InterviewPrompt{Position: "Backend Engineer", Description: "...", Experience: 3, TechStack: "Go"}

func TestGenerateQuestions_FencedArrayAfterProse(t *testing.T) {
	g, seen := newTestGenerator(respondWith("Here you go:\n```json\n[{\"question\":\"What is a goroutine?\",\"answer\":\"...\"}]\n```"))

	pairs, err := g.GenerateQuestions(context.Background(), samplePrompt)
	if err != nil {
		t.Fatalf("GenerateQuestions error: %v", err)
	}
	want := []model.QuestionAnswer{{Question: "What is a goroutine?", Answer: "..."}}
	if diff := cmp.Diff(want, pairs); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}

	wantStates := []transition{
		{StateIdle, StateRequesting},
		{StateRequesting, StateParsing},
		{StateParsing, StateDone},
	}
	if diff := cmp.Diff(wantStates, *seen); diff != "" {
		t.Errorf("状態遷移が一致しない (-want +got):\n%s", diff)
	}
}

func TestGenerateQuestions_PromptContainsJobDetails(t *testing.T) {
	var got string
	g, _ := newTestGenerator(&mockCompleter{completeFn: func(_ context.Context, prompt string) (string, error) {
		got = prompt
		return `[{"question":"q","answer":"a"}]`, nil
	}})

	if _, err := g.GenerateQuestions(context.Background(), samplePrompt); err != nil {
		t.Fatalf("GenerateQuestions error: %v", err)
	}
	for _, want := range []string{"Backend Engineer", "Go", "3", "JSON array"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt does not contain %q:\n%s", want, got)
		}
	}
}

func TestGenerateQuestions_Malformed(t *testing.T) {
	tests := map[string]string{
		"object instead of array": `{"question":"q","answer":"a"}`,
		"empty array":             `[]`,
		"missing answer":          `[{"question":"q"}]`,
		"no JSON at all":          "Sorry, I cannot help with that.",
		"empty completion":        "",
		"only markup questions":   `[{"question":"<b></b>","answer":"a"}]`,
	}

	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			g, seen := newTestGenerator(respondWith(text))

			_, err := g.GenerateQuestions(context.Background(), samplePrompt)
			if !model.HasCode(err, model.ErrCodeAIMalformed) {
				t.Fatalf("err = %v, want AI_MALFORMED", err)
			}
			if name != "only markup questions" {
				last := (*seen)[len(*seen)-1]
				if last.From != StateParsing || last.To != StateFailed {
					t.Errorf("last transition = %+v, want PARSING -> FAILED", last)
				}
			}
		})
	}
}

func TestGenerateQuestions_TransportError(t *testing.T) {
	calls := 0
	g, seen := newTestGenerator(&mockCompleter{completeFn: func(context.Context, string) (string, error) {
		calls++
		return "", &TransportError{StatusCode: 429, Message: "Rate limit exceeded"}
	}})

	_, err := g.GenerateQuestions(context.Background(), samplePrompt)
	apiErr, ok := model.AsAPIError(err)
	if !ok || apiErr.Code != model.ErrCodeAITransport {
		t.Fatalf("err = %v, want AI_TRANSPORT", err)
	}
	if !strings.Contains(apiErr.Message, "Rate limit exceeded") {
		t.Errorf("Message = %q, プロバイダーのメッセージを含むべき", apiErr.Message)
	}
	if calls != 1 {
		t.Errorf("calls = %d, 自動リトライは行わない", calls)
	}

	wantStates := []transition{{StateIdle, StateRequesting}, {StateRequesting, StateFailed}}
	if diff := cmp.Diff(wantStates, *seen); diff != "" {
		t.Errorf("状態遷移が一致しない (-want +got):\n%s", diff)
	}
}

func TestGenerateQuestions_PlainErrorBecomesTransport(t *testing.T) {
	g, _ := newTestGenerator(&mockCompleter{completeFn: func(context.Context, string) (string, error) {
		return "", errors.New("dial tcp: i/o timeout")
	}})

	_, err := g.GenerateQuestions(context.Background(), samplePrompt)
	if !model.HasCode(err, model.ErrCodeAITransport) {
		t.Errorf("err = %v, want AI_TRANSPORT", err)
	}
}

func TestGenerateQuestions_StripsHTML(t *testing.T) {
	g, _ := newTestGenerator(respondWith(`[{"question":"<b>What</b> is a channel?","answer":"<script>x</script>A pipe"}]`))

	pairs, err := g.GenerateQuestions(context.Background(), samplePrompt)
	if err != nil {
		t.Fatalf("GenerateQuestions error: %v", err)
	}
	if pairs[0].Question != "What is a channel?" || pairs[0].Answer != "A pipe" {
		t.Errorf("pairs = %+v", pairs)
	}
}

func TestEvaluateAnswer_FencedSingleQuoted(t *testing.T) {
	g, _ := newTestGenerator(respondWith("```json\n{'rating': 7, 'feedback': 'Good job',}\n```"))

	fb, err := g.EvaluateAnswer(context.Background(), AnswerPrompt{Question: "q", UserAnswer: "u", ReferenceAnswer: "r"})
	if err != nil {
		t.Fatalf("EvaluateAnswer error: %v", err)
	}
	if diff := cmp.Diff(&model.AnswerFeedback{Rating: 7, Feedback: "Good job"}, fb); diff != "" {
		t.Errorf("feedback mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateAnswer_RoundsFractionalRating(t *testing.T) {
	g, _ := newTestGenerator(respondWith(`{"rating": 7.6, "feedback": "ok"}`))

	fb, err := g.EvaluateAnswer(context.Background(), AnswerPrompt{})
	if err != nil {
		t.Fatalf("EvaluateAnswer error: %v", err)
	}
	if fb.Rating != 8 {
		t.Errorf("Rating = %d, want 8", fb.Rating)
	}
}

func TestEvaluateAnswer_Malformed(t *testing.T) {
	tests := map[string]string{
		"rating as string": `{"rating":"7","feedback":"x"}`,
		"rating missing":   `{"feedback":"x"}`,
		"rating too high":  `{"rating":11,"feedback":"x"}`,
		"feedback missing": `{"rating":5}`,
		"array":            `[{"rating":5,"feedback":"x"}]`,
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			g, _ := newTestGenerator(respondWith(text))
			if _, err := g.EvaluateAnswer(context.Background(), AnswerPrompt{}); !model.HasCode(err, model.ErrCodeAIMalformed) {
				t.Errorf("err = %v, want AI_MALFORMED", err)
			}
		})
	}
}

const resumeResponse = "Analysis:\n```json\n" + `{
  "overallScore": 72.4,
  "ATS": {"score": 80, "tips": [{"type": "good", "tip": "Clear headings"}, {"type": "warning", "tip": "<i>Add</i> keywords"}]},
  "toneAndStyle": {"score": 70, "feedback": ["Professional", ""]},
  "content": {"score": 65, "feedback": []},
  "structure": {"score": 75, "feedback": ["Good order"]},
  "skills": {"score": 60, "feedback": ["Missing Kubernetes"]}
}` + "\n```"

func TestAnalyzeResume(t *testing.T) {
	var prompt string
	g, _ := newTestGenerator(&mockCompleter{completeFn: func(_ context.Context, p string) (string, error) {
		prompt = p
		return resumeResponse, nil
	}})

	fb, err := g.AnalyzeResume(context.Background(), ResumePrompt{
		CompanyName: "Acme", JobTitle: "SRE", JobDescription: "Run Kubernetes", ResumeText: "I ran things",
	})
	if err != nil {
		t.Fatalf("AnalyzeResume error: %v", err)
	}

	want := &model.ResumeFeedback{
		OverallScore: 72,
		ATS: model.ATSScore{Score: 80, Tips: []model.Suggestion{
			{Type: "good", Tip: "Clear headings"},
			{Type: "warning", Tip: "Add keywords"},
		}},
		ToneAndStyle: model.CategoryScore{Score: 70, Feedback: []string{"Professional"}},
		Content:      model.CategoryScore{Score: 65, Feedback: []string{}},
		Structure:    model.CategoryScore{Score: 75, Feedback: []string{"Good order"}},
		Skills:       model.CategoryScore{Score: 60, Feedback: []string{"Missing Kubernetes"}},
	}
	if diff := cmp.Diff(want, fb); diff != "" {
		t.Errorf("feedback mismatch (-want +got):\n%s", diff)
	}

	for _, s := range []string{"SRE", "Acme", "Run Kubernetes", "I ran things"} {
		if !strings.Contains(prompt, s) {
			t.Errorf("prompt does not contain %q", s)
		}
	}
}

func TestAnalyzeResume_Malformed(t *testing.T) {
	g, _ := newTestGenerator(respondWith(`{"overallScore": 50}`))
	if _, err := g.AnalyzeResume(context.Background(), ResumePrompt{}); !model.HasCode(err, model.ErrCodeAIMalformed) {
		t.Errorf("err = %v, want AI_MALFORMED", err)
	}
}

func TestGenerator_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	var buf bytes.Buffer
	g := NewGenerator(respondWith("not json"), security.NewTextSanitizer(), metrics.NewCollector(reg), newTestLogger(&buf))

	_, _ = g.GenerateQuestions(context.Background(), samplePrompt)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() != "mockprep_ai_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["capability"] == CapabilityQuestions && labels["outcome"] == metrics.OutcomeMalformed {
				found = m.GetCounter().GetValue() == 1
			}
		}
	}
	if !found {
		t.Error("malformed の呼び出しが記録されていない")
	}
	if !strings.Contains(buf.String(), "AI応答を解析できませんでした") {
		t.Error("解析失敗がログに出力されていない")
	}
}

func TestInvocation_InvalidTransitionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("DONE からの遷移は panic するべき")
		}
	}()
	inv := &invocation{state: StateDone}
	inv.to(StateRequesting)
}

func TestClampRound(t *testing.T) {
	tests := []struct {
		in     float64
		lo, hi int
		want   int
	}{
		{7.4, 1, 10, 7},
		{7.5, 1, 10, 8},
		{0.2, 1, 10, 1},
		{100.4, 0, 100, 100},
	}
	for _, tt := range tests {
		if got := clampRound(tt.in, tt.lo, tt.hi); got != tt.want {
			t.Errorf("clampRound(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
