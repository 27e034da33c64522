// Package events defines the structure for events that are sent to Kafka.
package events

// ScoringEvent 是采点完成后发布的事件，供下游（检索索引）消费。
type ScoringEvent struct {
	SubmissionID   string  `json:"submission_id"`
	ExamType       string  `json:"exam_type"`
	ProblemID      string  `json:"problem_id"`
	AggregateScore float64 `json:"aggregate_score"`
	FinalRank      string  `json:"final_rank"`
	Passed         bool    `json:"passed"`
	Feedback       string  `json:"feedback"`
	ScoredAt       string  `json:"scored_at"`
}
