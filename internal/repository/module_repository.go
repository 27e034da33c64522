package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"scribo-go/internal/model"
)

// ModuleRepository 定义了论文素材（準備モジュール）的持久化操作。
type ModuleRepository interface {
	ListByUser(ctx context.Context, userID string) ([]model.Module, error)
	Create(ctx context.Context, mod *model.Module) error
	FindByID(ctx context.Context, userID, moduleID string) (*model.Module, error)
	Update(ctx context.Context, mod *model.Module) error
	Delete(ctx context.Context, userID, moduleID string) error
}

type moduleRepository struct {
	db *gorm.DB
}

// NewModuleRepository 创建一个新的 ModuleRepository 实例。
func NewModuleRepository(db *gorm.DB) ModuleRepository {
	return &moduleRepository{db: db}
}

// ListByUser 按创建时间降序返回用户的全部素材。
func (r *moduleRepository) ListByUser(ctx context.Context, userID string) ([]model.Module, error) {
	var mods []model.Module
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&mods).Error
	return mods, err
}

func (r *moduleRepository) Create(ctx context.Context, mod *model.Module) error {
	return r.db.WithContext(ctx).Create(mod).Error
}

func (r *moduleRepository) FindByID(ctx context.Context, userID, moduleID string) (*model.Module, error) {
	var mod model.Module
	err := r.db.WithContext(ctx).
		First(&mod, "user_id = ? AND module_id = ?", userID, moduleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mod, nil
}

func (r *moduleRepository) Update(ctx context.Context, mod *model.Module) error {
	return r.db.WithContext(ctx).Save(mod).Error
}

func (r *moduleRepository) Delete(ctx context.Context, userID, moduleID string) error {
	return r.db.WithContext(ctx).
		Delete(&model.Module{}, "user_id = ? AND module_id = ?", userID, moduleID).Error
}
