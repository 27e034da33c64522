package model

import "time"

// Module 是可复用的论文素材（準備モジュール）：
// 背景・課題・解決策・効果などのカテゴリ別に蓄積し、骨子の module_map から参照される。
type Module struct {
	ModuleID  string    `gorm:"primaryKey;size:64" json:"module_id"`
	UserID    string    `gorm:"size:64;index;not null" json:"user_id"`
	Title     string    `gorm:"size:100;not null" json:"title"`
	Category  string    `gorm:"size:32;not null" json:"category"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Tags      string    `gorm:"type:json" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Module) TableName() string {
	return "modules"
}
