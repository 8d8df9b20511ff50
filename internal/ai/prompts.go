package ai

import (
	"fmt"
	"strings"
)

// QuestionCount は1回の生成で要求する質問数。
const QuestionCount = 5

// InterviewPrompt は質問生成プロンプトの入力。
type InterviewPrompt struct {
	Position    string
	Description string
	Experience  int
	TechStack   string
}

// AnswerPrompt は回答評価プロンプトの入力。
type AnswerPrompt struct {
	Question        string
	UserAnswer      string
	ReferenceAnswer string
}

// ResumePrompt は職務経歴書分析プロンプトの入力。
type ResumePrompt struct {
	CompanyName    string
	JobTitle       string
	JobDescription string
	ResumeText     string
}

func buildQuestionPrompt(p InterviewPrompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following job details, generate an array of %d unique technical interview questions with ideal answers.\n", QuestionCount)
	fmt.Fprintf(&b, "- Job Position: %s\n", p.Position)
	fmt.Fprintf(&b, "- Job Description: %s\n", p.Description)
	fmt.Fprintf(&b, "- Years of Experience: %d\n", p.Experience)
	fmt.Fprintf(&b, "- Tech Stack: %s\n", p.TechStack)
	b.WriteString(`Return ONLY a valid JSON array in the following format: [{"question": "...", "answer": "..."}]`)
	return b.String()
}

func buildAnswerPrompt(p AnswerPrompt) string {
	return fmt.Sprintf(
		"Question: %q\nUser Answer: %q\nReference Answer: %q\n"+
			"Rate the user answer from 1 to 10 and give feedback for improvement. "+
			`Return ONLY a JSON object with "rating" (number) and "feedback" (string) fields.`,
		p.Question, p.UserAnswer, p.ReferenceAnswer,
	)
}

func buildResumePrompt(p ResumePrompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following resume against the job description for the position of %q", p.JobTitle)
	if p.CompanyName != "" {
		fmt.Fprintf(&b, " at %q", p.CompanyName)
	}
	b.WriteString(".\n\nJob Description:\n---\n")
	b.WriteString(p.JobDescription)
	b.WriteString("\n---\n\nResume Content:\n---\n")
	b.WriteString(p.ResumeText)
	b.WriteString("\n---\n\n")
	b.WriteString(`Respond with a single JSON object and nothing else, using this structure:
{
  "overallScore": number (0-100),
  "ATS": {"score": number (0-100), "tips": [{"type": "good" | "warning", "tip": "specific actionable advice"}]},
  "toneAndStyle": {"score": number (0-100), "feedback": ["specific feedback points"]},
  "content": {"score": number (0-100), "feedback": ["specific feedback points"]},
  "structure": {"score": number (0-100), "feedback": ["specific feedback points"]},
  "skills": {"score": number (0-100), "feedback": ["specific feedback points"]}
}
Focus on ATS compatibility, relevance to the job description, professional tone, skills alignment and readability.`)
	return b.String()
}
