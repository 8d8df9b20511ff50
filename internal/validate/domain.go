package validate

// ドメインレコードごとの検証規則。パッケージ初期化時に一度だけ組み立てる。
var (
	question = Object(
		Required("id", NonEmptyString()),
		Required("question", String()),
		Required("answer", String()),
	)

	questionAnswer = Object(
		Required("question", NonEmptyString()),
		Required("answer", String()),
	)

	interview = Object(
		Required("id", NonEmptyString()),
		Required("position", NonEmptyString()),
		Required("description", NonEmptyString()),
		Required("experience", IntegerAtLeast(0)),
		Required("techStack", NonEmptyString()),
		Required("questions", ArrayOf(question, 0)),
		Required("ownerId", NonEmptyString()),
		Required("createdAt", Timestamp()),
		Required("updatedAt", Timestamp()),
	)

	userAnswer = Object(
		Required("id", NonEmptyString()),
		Required("interviewId", NonEmptyString()),
		Required("questionId", NonEmptyString()),
		Required("userId", NonEmptyString()),
		Required("answer", String()),
		Optional("rating", IntegerBetween(0, 10)),
		Optional("feedback", String()),
		Required("createdAt", Timestamp()),
		Required("updatedAt", Timestamp()),
	)

	user = Object(
		Required("id", NonEmptyString()),
		Required("name", String()),
		Required("email", String()),
		Optional("imageUrl", String()),
		Required("createdAt", Timestamp()),
		Required("updatedAt", Timestamp()),
	)

	questionList = ArrayOf(questionAnswer, 1)

	// AIの評価値は小数で返ることがあるため数値であれば受け入れ、丸めは呼び出し側で行う
	answerFeedback = Object(
		Required("rating", NumberBetween(1, 10)),
		Required("feedback", String()),
	)

	score = NumberBetween(0, 100)

	categoryScore = Object(
		Required("score", score),
		Required("feedback", ArrayOf(String(), 0)),
	)

	resumeFeedback = Object(
		Required("overallScore", score),
		Required("ATS", Object(
			Required("score", score),
			Required("tips", ArrayOf(Object(
				Required("type", OneOf("good", "warning")),
				Required("tip", String()),
			), 0)),
		)),
		Required("toneAndStyle", categoryScore),
		Required("content", categoryScore),
		Required("structure", categoryScore),
		Required("skills", categoryScore),
	)

	resumeAnalysis = Object(
		Required("id", NonEmptyString()),
		Required("ownerId", NonEmptyString()),
		Required("companyName", String()),
		Required("jobTitle", String()),
		Required("jobDescription", String()),
		Required("feedback", resumeFeedback),
		Required("createdAt", Timestamp()),
	)
)

// IsInterview は保存済みの面接レコードの形を満たすかを判定する。
func IsInterview(v any) bool { return interview(v) }

// IsUserAnswer は保存済みの回答レコードの形を満たすかを判定する。
// ratingは評価前は欠落していてよい。保存値は0〜10を受け付け、AIの出力はIsAnswerFeedbackで1〜10に絞る。
func IsUserAnswer(v any) bool { return userAnswer(v) }

// IsUser は保存済みのユーザーレコードの形を満たすかを判定する。
func IsUser(v any) bool { return user(v) }

// IsQuestionList はAIが生成した質問リストの形を満たすかを判定する。
// 空でない配列で、すべての要素が文字列のquestionとanswerを持つ必要がある。
func IsQuestionList(v any) bool { return questionList(v) }

// IsAnswerFeedback はAIが返した回答評価の形を満たすかを判定する。
func IsAnswerFeedback(v any) bool { return answerFeedback(v) }

// IsResumeFeedback はAIが返した履歴書フィードバックの形を満たすかを判定する。
func IsResumeFeedback(v any) bool { return resumeFeedback(v) }

// IsResumeAnalysis は保存済みの履歴書分析レコードの形を満たすかを判定する。
func IsResumeAnalysis(v any) bool { return resumeAnalysis(v) }
