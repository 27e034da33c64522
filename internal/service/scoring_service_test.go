package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"scribo-go/internal/config"
	"scribo-go/internal/model"
	"scribo-go/internal/repository"
	"scribo-go/pkg/events"
)

// fakeSubmissionRepo 以内存 map 模拟提出与采点结果的存储。
type fakeSubmissionRepo struct {
	submissions map[string]*model.Submission
	results     map[string]*model.ScoringResult
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		submissions: make(map[string]*model.Submission),
		results:     make(map[string]*model.ScoringResult),
	}
}

func (f *fakeSubmissionRepo) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	copied := *sub
	f.submissions[sub.SubmissionID] = &copied
	return nil
}

func (f *fakeSubmissionRepo) FindSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	s, ok := f.submissions[submissionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSubmissionRepo) UpdateSubmissionStatus(ctx context.Context, submissionID, status string) error {
	if s, ok := f.submissions[submissionID]; ok {
		s.Status = status
	}
	return nil
}

func (f *fakeSubmissionRepo) SaveResult(ctx context.Context, result *model.ScoringResult) error {
	copied := *result
	f.results[result.SubmissionID] = &copied
	return nil
}

func (f *fakeSubmissionRepo) FindResult(ctx context.Context, submissionID string) (*model.ScoringResult, error) {
	r, ok := f.results[submissionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

// chanProducer 把事件送入通道，供测试同步。
type chanProducer struct {
	ch chan events.ScoringEvent
}

func (p *chanProducer) ProduceScoringEvent(ctx context.Context, ev events.ScoringEvent) error {
	p.ch <- ev
	return nil
}

func scoringCfg() config.ScoringConfig {
	return config.ScoringConfig{MaxTokens: 4096}
}

func TestSubmitValidation(t *testing.T) {
	validAnswers := map[string]string{"設問ア": "回答"}
	tests := []struct {
		name      string
		examType  string
		problemID string
		answers   map[string]string
		wantErr   bool
	}{
		{"valid", "ST", "YEAR#2025FALL#ESSAY#Q1", validAnswers, false},
		{"all question keys", "IS", "YEAR#2024SPRING#ESSAY#Q2",
			map[string]string{"設問ア": "a", "設問イ": "b", "設問ウ": "c"}, false},
		{"bad exam type", "XX", "YEAR#2025FALL#ESSAY#Q1", validAnswers, true},
		{"lowercase exam type", "st", "YEAR#2025FALL#ESSAY#Q1", validAnswers, true},
		{"bad problem id", "ST", "2025-fall-q1", validAnswers, true},
		{"multi digit question", "ST", "YEAR#2025FALL#ESSAY#Q12", validAnswers, true},
		{"bad season", "ST", "YEAR#2025WINTER#ESSAY#Q1", validAnswers, true},
		{"no answers", "ST", "YEAR#2025FALL#ESSAY#Q1", map[string]string{}, true},
		{"unknown question key", "ST", "YEAR#2025FALL#ESSAY#Q1",
			map[string]string{"設問エ": "回答"}, true},
		{"empty answer", "ST", "YEAR#2025FALL#ESSAY#Q1",
			map[string]string{"設問ア": ""}, true},
		{"answer at limit", "ST", "YEAR#2025FALL#ESSAY#Q1",
			map[string]string{"設問ア": strings.Repeat("あ", 5000)}, false},
		{"answer over limit", "ST", "YEAR#2025FALL#ESSAY#Q1",
			map[string]string{"設問ア": strings.Repeat("あ", 5001)}, true},
		// 空白与换行不计入文字数
		{"whitespace not counted", "ST", "YEAR#2025FALL#ESSAY#Q1",
			map[string]string{"設問ア": strings.Repeat("あ", 5000) + " \n \n"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewScoringService(&fakeLLM{}, newFakeSubmissionRepo(), nil, scoringCfg())
			sub, err := svc.Submit(context.Background(), tt.examType, tt.problemID, tt.answers, nil)
			if tt.wantErr {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("err = %v, want *ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Submit() error: %v", err)
			}
			if sub.SubmissionID == "" {
				t.Error("SubmissionID should be generated")
			}
			if sub.Status != model.SubmissionSubmitted {
				t.Errorf("Status = %s, want submitted", sub.Status)
			}
		})
	}
}

const scoringResponse = "```json\n" + `{
  "question_breakdown": {
    "設問ア": {
      "level": "A",
      "question_score": 82,
      "word_count": 99999,
      "criteria_scores": [
        {"criterion": "充足度", "weight": 0.15, "points": 85, "comment": "要求を満たす"}
      ]
    }
  },
  "aggregate_score": 78.50,
  "final_rank": "A",
  "feedback": "論旨が一貫している"
}` + "\n```"

func seedSubmission(repo *fakeSubmissionRepo, answers map[string]string) *model.Submission {
	b, _ := json.Marshal(answers)
	sub := &model.Submission{
		SubmissionID: "sub-1",
		ExamType:     "ST",
		ProblemID:    "YEAR#2025FALL#ESSAY#Q1",
		Answers:      string(b),
		SubmittedAt:  time.Now(),
		Status:       model.SubmissionSubmitted,
	}
	repo.submissions[sub.SubmissionID] = sub
	return sub
}

func TestScore(t *testing.T) {
	repo := newFakeSubmissionRepo()
	answers := map[string]string{"設問ア": "私の 回答\nです"}
	seedSubmission(repo, answers)

	producer := &chanProducer{ch: make(chan events.ScoringEvent, 1)}
	svc := NewScoringService(&fakeLLM{invokeResp: scoringResponse}, repo, producer, scoringCfg())

	result, err := svc.Score(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	// 小数トークンは逐字节保持
	if result.AggregateScore != "78.50" {
		t.Errorf("AggregateScore = %s, want 78.50 (source token preserved)", result.AggregateScore)
	}
	if result.FinalRank != "A" || !result.Passed {
		t.Errorf("rank/passed = %s/%v, want A/true", result.FinalRank, result.Passed)
	}

	var breakdown map[string]model.QuestionBreakdown
	if err := json.Unmarshal([]byte(result.Breakdown), &breakdown); err != nil {
		t.Fatalf("unmarshal breakdown: %v", err)
	}
	qb := breakdown["設問ア"]
	if qb.Level != "A" || qb.QuestionScore != 82 {
		t.Errorf("question breakdown = %+v", qb)
	}
	// word_count はローカル計算値で上書き（モデル報告値 99999 は無視）
	if qb.WordCount != 6 {
		t.Errorf("WordCount = %d, want 6 (locally computed)", qb.WordCount)
	}
	if len(qb.CriteriaScores) != 1 || qb.CriteriaScores[0].Weight != "0.15" {
		t.Errorf("criteria scores = %+v", qb.CriteriaScores)
	}

	if repo.submissions["sub-1"].Status != model.SubmissionScored {
		t.Error("submission status should advance to scored")
	}

	select {
	case ev := <-producer.ch:
		if ev.SubmissionID != "sub-1" || ev.FinalRank != "A" || !ev.Passed {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Error("scoring event should be produced")
	}
}

func TestScoreMissingFieldsGetDefaults(t *testing.T) {
	repo := newFakeSubmissionRepo()
	seedSubmission(repo, map[string]string{"設問ア": "回答"})

	resp := `{"question_breakdown":{},"feedback":"短い"}`
	svc := NewScoringService(&fakeLLM{invokeResp: resp}, repo, nil, scoringCfg())

	result, err := svc.Score(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if result.FinalRank != "D" {
		t.Errorf("FinalRank = %s, want default D", result.FinalRank)
	}
	if result.AggregateScore != "0" {
		t.Errorf("AggregateScore = %s, want default 0", result.AggregateScore)
	}
	if result.Passed {
		t.Error("Passed should be false for rank D")
	}
}

func TestScoreUnknownSubmission(t *testing.T) {
	svc := NewScoringService(&fakeLLM{}, newFakeSubmissionRepo(), nil, scoringCfg())
	_, err := svc.Score(context.Background(), "nope")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestScoreIsRepeatable(t *testing.T) {
	repo := newFakeSubmissionRepo()
	seedSubmission(repo, map[string]string{"設問ア": "回答"})
	svc := NewScoringService(&fakeLLM{invokeResp: scoringResponse}, repo, nil, scoringCfg())

	first, err := svc.Score(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("first Score() error: %v", err)
	}
	second, err := svc.Score(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("second Score() error: %v", err)
	}
	// 同一モデル出力なら永続化フィールドは逐字节一致
	if first.AggregateScore != second.AggregateScore || first.Breakdown != second.Breakdown {
		t.Error("re-scoring with identical output should reproduce identical fields")
	}
}
