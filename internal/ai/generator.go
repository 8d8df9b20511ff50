package ai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/hitoshi/mockprep/internal/aijson"
	"github.com/hitoshi/mockprep/internal/metrics"
	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/security"
	"github.com/hitoshi/mockprep/internal/validate"
)

// 機能ごとのラベル。メトリクスとログで使用する。
const (
	CapabilityQuestions = "questions"
	CapabilityFeedback  = "feedback"
	CapabilityResume    = "resume"
)

// State は1回の呼び出しの進行状態。
type State string

const (
	StateIdle       State = "IDLE"
	StateRequesting State = "REQUESTING"
	StateParsing    State = "PARSING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// allowedTransitions は状態遷移表。DONEとFAILEDは終端。
var allowedTransitions = map[State][]State{
	StateIdle:       {StateRequesting},
	StateRequesting: {StateParsing, StateFailed},
	StateParsing:    {StateDone, StateFailed},
}

// TransitionFunc は状態遷移の通知を受け取る。
type TransitionFunc func(capability string, from, to State)

// Generator はプロンプト構築、Completer呼び出し、応答の復元と検証をまとめて行う。
// 失敗時の自動リトライは行わない。
type Generator struct {
	completer    Completer
	sanitizer    security.TextSanitizer
	metrics      metrics.MetricsCollector
	logger       *slog.Logger
	onTransition TransitionFunc
}

// NewGenerator はGeneratorを生成する。
func NewGenerator(completer Completer, sanitizer security.TextSanitizer, m metrics.MetricsCollector, logger *slog.Logger) *Generator {
	return &Generator{
		completer: completer,
		sanitizer: sanitizer,
		metrics:   m,
		logger:    logger,
	}
}

// OnTransition は状態遷移の通知先を設定する。
func (g *Generator) OnTransition(fn TransitionFunc) {
	g.onTransition = fn
}

// GenerateQuestions は面接設定から質問と模範解答の組を生成する。
// 応答が空でない配列で、全要素が文字列のquestionとanswerを持たない場合はAI_MALFORMEDを返す。
func (g *Generator) GenerateQuestions(ctx context.Context, p InterviewPrompt) ([]model.QuestionAnswer, error) {
	var pairs []model.QuestionAnswer
	err := g.run(ctx, CapabilityQuestions, buildQuestionPrompt(p), validate.IsQuestionList, &pairs)
	if err != nil {
		return nil, err
	}

	result := make([]model.QuestionAnswer, 0, len(pairs))
	for _, qa := range pairs {
		q := model.QuestionAnswer{
			Question: g.sanitizer.Sanitize(qa.Question),
			Answer:   g.sanitizer.Sanitize(qa.Answer),
		}
		if q.Question == "" {
			continue
		}
		result = append(result, q)
	}
	if len(result) == 0 {
		return nil, model.NewAIMalformedError("有効な質問が含まれていません")
	}
	return result, nil
}

// EvaluateAnswer は回答を評価し、1〜10のratingとフィードバックを返す。
func (g *Generator) EvaluateAnswer(ctx context.Context, p AnswerPrompt) (*model.AnswerFeedback, error) {
	var raw struct {
		Rating   float64 `json:"rating"`
		Feedback string  `json:"feedback"`
	}
	if err := g.run(ctx, CapabilityFeedback, buildAnswerPrompt(p), validate.IsAnswerFeedback, &raw); err != nil {
		return nil, err
	}
	return &model.AnswerFeedback{
		Rating:   clampRound(raw.Rating, 1, 10),
		Feedback: g.sanitizer.Sanitize(raw.Feedback),
	}, nil
}

type rawCategory struct {
	Score    float64  `json:"score"`
	Feedback []string `json:"feedback"`
}

type rawResumeFeedback struct {
	OverallScore float64 `json:"overallScore"`
	ATS          struct {
		Score float64            `json:"score"`
		Tips  []model.Suggestion `json:"tips"`
	} `json:"ATS"`
	ToneAndStyle rawCategory `json:"toneAndStyle"`
	Content      rawCategory `json:"content"`
	Structure    rawCategory `json:"structure"`
	Skills       rawCategory `json:"skills"`
}

// AnalyzeResume は職務経歴書を求人内容と照らして分析する。
func (g *Generator) AnalyzeResume(ctx context.Context, p ResumePrompt) (*model.ResumeFeedback, error) {
	var raw rawResumeFeedback
	if err := g.run(ctx, CapabilityResume, buildResumePrompt(p), validate.IsResumeFeedback, &raw); err != nil {
		return nil, err
	}

	tips := make([]model.Suggestion, 0, len(raw.ATS.Tips))
	for _, t := range raw.ATS.Tips {
		tip := g.sanitizer.Sanitize(t.Tip)
		if tip == "" {
			continue
		}
		tips = append(tips, model.Suggestion{Type: t.Type, Tip: tip})
	}

	return &model.ResumeFeedback{
		OverallScore: clampRound(raw.OverallScore, 0, 100),
		ATS:          model.ATSScore{Score: clampRound(raw.ATS.Score, 0, 100), Tips: tips},
		ToneAndStyle: g.category(raw.ToneAndStyle),
		Content:      g.category(raw.Content),
		Structure:    g.category(raw.Structure),
		Skills:       g.category(raw.Skills),
	}, nil
}

func (g *Generator) category(c rawCategory) model.CategoryScore {
	feedback := make([]string, 0, len(c.Feedback))
	for _, f := range security.SanitizeAll(g.sanitizer, c.Feedback) {
		if f != "" {
			feedback = append(feedback, f)
		}
	}
	return model.CategoryScore{Score: clampRound(c.Score, 0, 100), Feedback: feedback}
}

// run は IDLE -> REQUESTING -> {PARSING -> DONE} | FAILED の1回分を実行する。
// checkを通過した応答だけをoutにデコードする。
func (g *Generator) run(ctx context.Context, capability, prompt string, check func(any) bool, out any) error {
	inv := &invocation{capability: capability, state: StateIdle, notify: g.onTransition}

	inv.to(StateRequesting)
	start := time.Now()
	text, err := g.completer.Complete(ctx, prompt)
	g.metrics.RecordAILatency(capability, time.Since(start))
	if err != nil {
		inv.to(StateFailed)
		g.metrics.RecordAIRequest(capability, metrics.OutcomeTransport)
		g.logger.Warn("AI呼び出しに失敗しました",
			slog.String("capability", capability),
			slog.String("error", err.Error()),
		)
		return model.NewAITransportError(transportReason(err))
	}

	inv.to(StateParsing)
	if err := decodeChecked(text, check, out); err != nil {
		inv.to(StateFailed)
		g.metrics.RecordAIRequest(capability, metrics.OutcomeMalformed)
		g.logger.Warn("AI応答を解析できませんでした",
			slog.String("capability", capability),
			slog.String("error", err.Error()),
			slog.Int("response_length", len(text)),
		)
		return model.NewAIMalformedError(err.Error())
	}

	inv.to(StateDone)
	g.metrics.RecordAIRequest(capability, metrics.OutcomeDone)
	return nil
}

var errUnexpectedShape = errors.New("応答が期待する形式ではありません")

func decodeChecked(text string, check func(any) bool, out any) error {
	clean, err := aijson.Sanitize(text)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal([]byte(clean), &v); err != nil {
		return aijson.ErrUnrecoverable
	}
	if !check(v) {
		return errUnexpectedShape
	}
	if err := json.Unmarshal([]byte(clean), out); err != nil {
		return errUnexpectedShape
	}
	return nil
}

func clampRound(v float64, lo, hi int) int {
	r := int(math.Round(v))
	if r < lo {
		return lo
	}
	if r > hi {
		return hi
	}
	return r
}

// invocation は1回の呼び出しの状態を保持する。
type invocation struct {
	capability string
	state      State
	notify     TransitionFunc
}

func (i *invocation) to(next State) {
	valid := false
	for _, s := range allowedTransitions[i.state] {
		if s == next {
			valid = true
			break
		}
	}
	if !valid {
		// 遷移表の誤りはプログラムのバグ
		panic("ai: invalid state transition " + string(i.state) + " -> " + string(next))
	}
	prev := i.state
	i.state = next
	if i.notify != nil {
		i.notify(i.capability, prev, next)
	}
}
