package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"scribo-go/internal/config"
	"scribo-go/internal/extract"
	"scribo-go/internal/model"
	"scribo-go/internal/prompt"
	"scribo-go/internal/repository"
	"scribo-go/pkg/events"
	"scribo-go/pkg/llm"
	"scribo-go/pkg/log"
)

// ValidationError 表示提交内容不合法，处理层应映射为 400。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

var (
	validExamTypes    = map[string]bool{"IS": true, "PM": true, "SA": true, "ST": true}
	validQuestionKeys = map[string]bool{"設問ア": true, "設問イ": true, "設問ウ": true}
	problemIDRe       = regexp.MustCompile(`^YEAR#\d{4}(SPRING|FALL)#ESSAY#Q\d$`)
)

const maxAnswerChars = 5000

// EventProducer 在判定完成后发布评分事件。
type EventProducer interface {
	ProduceScoringEvent(ctx context.Context, ev events.ScoringEvent) error
}

// ScoringService 定义了答案提交与 AI 评分的操作接口。
type ScoringService interface {
	Submit(ctx context.Context, examType, problemID string, answers map[string]string, metadata map[string]string) (*model.Submission, error)
	GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error)
	Score(ctx context.Context, submissionID string) (*model.ScoringResult, error)
	GetResult(ctx context.Context, submissionID string) (*model.ScoringResult, error)
}

type scoringService struct {
	llmClient      llm.Client
	submissionRepo repository.SubmissionRepository
	producer       EventProducer
	cfg            config.ScoringConfig
}

// NewScoringService 创建一个新的 ScoringService 实例。
// producer 允许为 nil，表示不发布评分事件。
func NewScoringService(llmClient llm.Client, submissionRepo repository.SubmissionRepository, producer EventProducer, cfg config.ScoringConfig) ScoringService {
	return &scoringService{
		llmClient:      llmClient,
		submissionRepo: submissionRepo,
		producer:       producer,
		cfg:            cfg,
	}
}

// Submit 校验并持久化一次答案提交，生成新的提交 ID。
func (s *scoringService) Submit(ctx context.Context, examType, problemID string, answers map[string]string, metadata map[string]string) (*model.Submission, error) {
	if !validExamTypes[examType] {
		return nil, &ValidationError{Reason: fmt.Sprintf("不支持的考试区分: %q", examType)}
	}
	if !problemIDRe.MatchString(problemID) {
		return nil, &ValidationError{Reason: fmt.Sprintf("问题 ID 格式不正确: %q", problemID)}
	}
	if len(answers) == 0 {
		return nil, &ValidationError{Reason: "答案不能为空"}
	}
	for q, text := range answers {
		if !validQuestionKeys[q] {
			return nil, &ValidationError{Reason: fmt.Sprintf("不支持的设问键: %q", q)}
		}
		if text == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("%s 的答案为空", q)}
		}
		if n := prompt.AnswerLength(text); n > maxAnswerChars {
			return nil, &ValidationError{Reason: fmt.Sprintf("%s 的答案超过 %d 字（实际 %d 字）", q, maxAnswerChars, n)}
		}
	}

	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("序列化答案失败: %w", err)
	}
	var metadataJSON []byte
	if metadata != nil {
		if metadataJSON, err = json.Marshal(metadata); err != nil {
			return nil, fmt.Errorf("序列化元数据失败: %w", err)
		}
	}

	submission := &model.Submission{
		SubmissionID: uuid.NewString(),
		ExamType:     examType,
		ProblemID:    problemID,
		Answers:      string(answersJSON),
		Metadata:     string(metadataJSON),
		SubmittedAt:  time.Now(),
		Status:       model.SubmissionSubmitted,
	}
	if err := s.submissionRepo.CreateSubmission(ctx, submission); err != nil {
		return nil, err
	}
	return submission, nil
}

func (s *scoringService) GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	return s.submissionRepo.FindSubmission(ctx, submissionID)
}

// scoringPayload 是评分模型输出的中间形态。
// 分数字段用 Decimal 承接，保留模型给出的原始数字文本。
type scoringPayload struct {
	QuestionBreakdown map[string]struct {
		Level          string `json:"level"`
		QuestionScore  int    `json:"question_score"`
		CriteriaScores []struct {
			Criterion string        `json:"criterion"`
			Weight    model.Decimal `json:"weight"`
			Points    int           `json:"points"`
			Comment   string        `json:"comment"`
		} `json:"criteria_scores"`
	} `json:"question_breakdown"`
	AggregateScore model.Decimal `json:"aggregate_score"`
	FinalRank      string        `json:"final_rank"`
	Feedback       string        `json:"feedback"`
}

// Score 对一次已有提交执行 AI 评分，结果落库后覆盖写（可重复评分）。
func (s *scoringService) Score(ctx context.Context, submissionID string) (*model.ScoringResult, error) {
	submission, err := s.submissionRepo.FindSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	var answers map[string]string
	if err := json.Unmarshal([]byte(submission.Answers), &answers); err != nil {
		return nil, fmt.Errorf("反序列化答案失败: %w", err)
	}

	req := prompt.ScoringRequest(answers, s.cfg.MaxTokens)
	raw, err := s.llmClient.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	payload, err := extract.Payload(raw)
	if err != nil {
		return nil, err
	}
	var parsed scoringPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, &extract.Error{Raw: raw, Err: err}
	}

	if parsed.FinalRank == "" {
		parsed.FinalRank = "D"
	}
	if parsed.AggregateScore == "" {
		parsed.AggregateScore = "0"
	}

	// 字数以服务端的计数为准，模型给出的值不可信。
	breakdown := make(map[string]model.QuestionBreakdown, len(parsed.QuestionBreakdown))
	for question, qb := range parsed.QuestionBreakdown {
		criteria := make([]model.CriteriaScore, 0, len(qb.CriteriaScores))
		for _, cs := range qb.CriteriaScores {
			criteria = append(criteria, model.CriteriaScore{
				Criterion: cs.Criterion,
				Weight:    cs.Weight,
				Points:    cs.Points,
				Comment:   cs.Comment,
			})
		}
		breakdown[question] = model.QuestionBreakdown{
			Level:          qb.Level,
			QuestionScore:  qb.QuestionScore,
			WordCount:      prompt.AnswerLength(answers[question]),
			CriteriaScores: criteria,
		}
	}

	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return nil, fmt.Errorf("序列化评分明细失败: %w", err)
	}

	result := &model.ScoringResult{
		SubmissionID:   submissionID,
		AggregateScore: parsed.AggregateScore,
		FinalRank:      parsed.FinalRank,
		Passed:         parsed.FinalRank == "A",
		Breakdown:      string(breakdownJSON),
		Feedback:       parsed.Feedback,
		ScoredAt:       time.Now(),
	}
	if err := s.submissionRepo.SaveResult(ctx, result); err != nil {
		return nil, err
	}
	if err := s.submissionRepo.UpdateSubmissionStatus(ctx, submissionID, model.SubmissionScored); err != nil {
		log.Warnf("更新提交状态失败: %v", err)
	}

	// 事件发布是尽力而为的，失败不影响评分结果的返回。
	if s.producer != nil {
		ev := events.ScoringEvent{
			SubmissionID:   result.SubmissionID,
			ExamType:       submission.ExamType,
			ProblemID:      submission.ProblemID,
			AggregateScore: result.AggregateScore.Float64(),
			FinalRank:      result.FinalRank,
			Passed:         result.Passed,
			Feedback:       result.Feedback,
			ScoredAt:       result.ScoredAt.Format(time.RFC3339),
		}
		go func() {
			if err := s.producer.ProduceScoringEvent(context.Background(), ev); err != nil {
				log.Warnf("发布评分事件失败: %v", err)
			}
		}()
	}
	return result, nil
}

func (s *scoringService) GetResult(ctx context.Context, submissionID string) (*model.ScoringResult, error) {
	return s.submissionRepo.FindResult(ctx, submissionID)
}
