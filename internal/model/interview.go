package model

import "time"

// Interview は模擬面接の設定と生成済みの質問を表す。
// OwnerIDは作成時に1回だけ設定され、以後変更されない。
type Interview struct {
	ID          string     `json:"id"`
	Position    string     `json:"position"`
	Description string     `json:"description"`
	Experience  int        `json:"experience"`
	TechStack   string     `json:"techStack"`
	Questions   []Question `json:"questions"`
	OwnerID     string     `json:"ownerId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Question は面接の1問を表す。
// IDは質問リスト設定時に採番され、回答はテキストではなくIDで質問を参照する。
type Question struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QuestionAnswer はAIが生成する質問と模範解答の組。
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// InterviewInput は面接作成時の入力。
type InterviewInput struct {
	Position    string
	Description string
	Experience  int
	TechStack   string
	Questions   []QuestionAnswer
}

// InterviewPatch は面接更新時の部分更新内容。nilのフィールドは変更しない。
type InterviewPatch struct {
	Position    *string
	Description *string
	Experience  *int
	TechStack   *string
	Questions   []QuestionAnswer // nilの場合は変更しない
}

// FindQuestion は指定IDの質問を返す。見つからない場合はnilを返す。
func (i *Interview) FindQuestion(questionID string) *Question {
	for idx := range i.Questions {
		if i.Questions[idx].ID == questionID {
			return &i.Questions[idx]
		}
	}
	return nil
}
