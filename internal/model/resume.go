package model

import "time"

// ResumeAnalysis は職務経歴書のAI分析結果を表す。
type ResumeAnalysis struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"ownerId"`
	CompanyName    string         `json:"companyName"`
	JobTitle       string         `json:"jobTitle"`
	JobDescription string         `json:"jobDescription"`
	Feedback       ResumeFeedback `json:"feedback"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// ResumeFeedback はAIが返す分析結果。スコアは0〜100。
type ResumeFeedback struct {
	OverallScore int           `json:"overallScore"`
	ATS          ATSScore      `json:"ATS"`
	ToneAndStyle CategoryScore `json:"toneAndStyle"`
	Content      CategoryScore `json:"content"`
	Structure    CategoryScore `json:"structure"`
	Skills       CategoryScore `json:"skills"`
}

// ATSScore はATS（応募者追跡システム）適合度の評価。
type ATSScore struct {
	Score int          `json:"score"`
	Tips  []Suggestion `json:"tips"`
}

// Suggestion は改善提案。Typeは "good" または "warning"。
type Suggestion struct {
	Type string `json:"type"`
	Tip  string `json:"tip"`
}

// CategoryScore はカテゴリ別の評価。
type CategoryScore struct {
	Score    int      `json:"score"`
	Feedback []string `json:"feedback"`
}

// ResumeInput は職務経歴書分析の入力。
// ResumePDFが空でない場合はResumeTextより優先してPDFからテキストを抽出する。
type ResumeInput struct {
	CompanyName    string
	JobTitle       string
	JobDescription string
	ResumeText     string
	ResumePDF      []byte
}
