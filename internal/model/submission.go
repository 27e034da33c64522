package model

import "time"

// 提出状态：保存后为 submitted，采点完成后转为 scored。
const (
	SubmissionSubmitted = "submitted"
	SubmissionScored    = "scored"
)

// Submission 代表一次论文回答的提出记录。
// Answers 以 JSON 文本保存设问到回答的映射（設問ア/イ/ウ）。
type Submission struct {
	SubmissionID string    `gorm:"primaryKey;size:64" json:"submission_id"`
	ExamType     string    `gorm:"size:8;not null" json:"exam_type"`
	ProblemID    string    `gorm:"size:100;not null" json:"problem_id"`
	Answers      string    `gorm:"type:json;not null" json:"-"`
	Metadata     string    `gorm:"type:json" json:"-"`
	SubmittedAt  time.Time `gorm:"not null" json:"submitted_at"`
	Status       string    `gorm:"size:16;not null" json:"status"`
}

func (Submission) TableName() string {
	return "submissions"
}

// CriteriaScore 是单个评价观点的得分。8 个固定观点的权重合计为 1.0。
type CriteriaScore struct {
	Criterion string  `json:"criterion"`
	Weight    Decimal `json:"weight"`
	Points    int     `json:"points"`
	Comment   string  `json:"comment"`
}

// QuestionBreakdown 是设问级评价。WordCount 由本地计算，不信任模型报告值。
type QuestionBreakdown struct {
	Level          string          `json:"level"`
	QuestionScore  int             `json:"question_score"`
	WordCount      int             `json:"word_count"`
	CriteriaScores []CriteriaScore `json:"criteria_scores"`
}

// ScoringResult 代表一次提出的采点结果，按 submission_id 幂等覆盖。
// Breakdown 以 JSON 文本保存设问到 QuestionBreakdown 的映射。
type ScoringResult struct {
	SubmissionID   string    `gorm:"primaryKey;size:64" json:"submission_id"`
	AggregateScore Decimal   `gorm:"type:decimal(5,2);not null" json:"aggregate_score"`
	FinalRank      string    `gorm:"size:1;not null" json:"final_rank"`
	Passed         bool      `gorm:"not null" json:"passed"`
	Breakdown      string    `gorm:"type:json;not null" json:"-"`
	Feedback       string    `gorm:"type:text" json:"feedback,omitempty"`
	ScoredAt       time.Time `gorm:"not null" json:"scored_at"`
}

func (ScoringResult) TableName() string {
	return "scoring_results"
}
