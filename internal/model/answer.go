package model

import (
	"math"
	"time"
)

// UserAnswer は質問に対するユーザーの回答を表す。
// RatingとFeedbackは回答送信後にAI評価ワーカーが非同期に設定する。
type UserAnswer struct {
	ID          string    `json:"id"`
	InterviewID string    `json:"interviewId"`
	QuestionID  string    `json:"questionId"`
	UserID      string    `json:"userId"`
	Answer      string    `json:"answer"`
	Rating      *int      `json:"rating,omitempty"`
	Feedback    string    `json:"feedback,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Evaluated は評価済みかどうかを返す。
func (a *UserAnswer) Evaluated() bool {
	return a.Rating != nil
}

// AnswerList は回答一覧と評価の平均値。
// AverageRatingは評価済みの回答が1件も無い場合nil。
type AnswerList struct {
	Answers       []*UserAnswer `json:"answers"`
	AverageRating *float64      `json:"averageRating"`
}

// NewAnswerList は評価済みの回答から平均評価（小数第1位に丸め）を算出する。
func NewAnswerList(answers []*UserAnswer) AnswerList {
	if answers == nil {
		answers = []*UserAnswer{}
	}
	list := AnswerList{Answers: answers}

	total, count := 0, 0
	for _, a := range answers {
		if a.Rating == nil {
			continue
		}
		total += *a.Rating
		count++
	}
	if count > 0 {
		avg := math.Round(float64(total)/float64(count)*10) / 10
		list.AverageRating = &avg
	}
	return list
}

// AnswerInput は回答送信時の入力。
type AnswerInput struct {
	InterviewID string
	QuestionID  string
	Answer      string
}

// AnswerFeedback はAIによる回答評価結果。Ratingは1〜10。
type AnswerFeedback struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}
