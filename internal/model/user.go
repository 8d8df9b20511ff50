package model

import "time"

// User はサービス利用ユーザーを表す。
// IDはIdPのsubject IDと一致する。
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Claims はトークン検証で得られる呼び出し元の情報を表す。
type Claims struct {
	SubjectID string
	Email     string
	Name      string
	Picture   string
}
