// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"scribo-go/internal/model"
)

// ErrSessionNotFound 表示 (user_id, exam_id) 键下不存在会话文档。
// 与存储故障严格区分：后者原样返回，由调用方决定恢复策略。
var ErrSessionNotFound = errors.New("会话不存在")

// SessionRepository 定义了面谈会话文档的操作接口。
// 写入是无条件 upsert：同一键上的并发请求不加锁，最后写入者胜出。
type SessionRepository interface {
	Fetch(ctx context.Context, userID, examID string) (*model.InterviewSession, error)
	Save(ctx context.Context, session *model.InterviewSession) error
}

type redisSessionRepository struct {
	redisClient *redis.Client
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(redisClient *redis.Client) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient}
}

func sessionKey(userID, examID string) string {
	return fmt.Sprintf("interview:%s:%s", userID, examID)
}

// Fetch 从 Redis 读取会话文档。键不存在返回 ErrSessionNotFound。
func (r *redisSessionRepository) Fetch(ctx context.Context, userID, examID string) (*model.InterviewSession, error) {
	jsonData, err := r.redisClient.Get(ctx, sessionKey(userID, examID)).Result()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取会话文档失败: %w", err)
	}

	var session model.InterviewSession
	if err := json.Unmarshal([]byte(jsonData), &session); err != nil {
		return nil, fmt.Errorf("解析会话文档失败: %w", err)
	}
	return &session, nil
}

// Save 以无条件 upsert 写入会话文档，并推进 updated_at。
// 会话永不删除，因此不设置过期时间。
func (r *redisSessionRepository) Save(ctx context.Context, session *model.InterviewSession) error {
	session.UpdatedAt = time.Now()

	jsonData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("序列化会话文档失败: %w", err)
	}
	if err := r.redisClient.Set(ctx, sessionKey(session.UserID, session.ExamID), jsonData, 0).Err(); err != nil {
		return fmt.Errorf("写入会话文档失败: %w", err)
	}
	return nil
}
