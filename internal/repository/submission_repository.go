package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scribo-go/internal/model"
)

// ErrNotFound 表示请求的记录不存在。
var ErrNotFound = errors.New("记录不存在")

// SubmissionRepository 定义了回答提出与采点结果的持久化操作。
type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	FindSubmission(ctx context.Context, submissionID string) (*model.Submission, error)
	UpdateSubmissionStatus(ctx context.Context, submissionID, status string) error
	// SaveResult 按 submission_id 幂等覆盖采点结果。
	SaveResult(ctx context.Context, result *model.ScoringResult) error
	FindResult(ctx context.Context, submissionID string) (*model.ScoringResult, error)
}

// submissionRepository 是 SubmissionRepository 接口的 GORM 实现。
type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository 创建一个新的 SubmissionRepository 实例。
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

// CreateSubmission 保存一条新的回答提出记录。
func (r *submissionRepository) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

// FindSubmission 根据 submission_id 查找提出记录。
func (r *submissionRepository) FindSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	var sub model.Submission
	err := r.db.WithContext(ctx).First(&sub, "submission_id = ?", submissionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateSubmissionStatus 推进提出记录的状态（submitted → scored）。
func (r *submissionRepository) UpdateSubmissionStatus(ctx context.Context, submissionID, status string) error {
	return r.db.WithContext(ctx).
		Model(&model.Submission{}).
		Where("submission_id = ?", submissionID).
		Update("status", status).Error
}

// SaveResult 写入采点结果。重复采点时整行覆盖，保证幂等。
func (r *submissionRepository) SaveResult(ctx context.Context, result *model.ScoringResult) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(result).Error
}

// FindResult 根据 submission_id 查找采点结果。
func (r *submissionRepository) FindResult(ctx context.Context, submissionID string) (*model.ScoringResult, error) {
	var result model.ScoringResult
	err := r.db.WithContext(ctx).First(&result, "submission_id = ?", submissionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}
