// Package storage 提供了与题库对象存储（MinIO）交互的功能。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"scribo-go/internal/config"
)

// ErrObjectNotFound 表示题库中不存在请求的对象。
var ErrObjectNotFound = errors.New("题库对象不存在")

// QuestionBank 是只读的论文题库：按 exam_type/problem_id 取回题干文本。
type QuestionBank struct {
	client *minio.Client
	bucket string
}

// NewQuestionBank 初始化 MinIO 客户端。题库由外部系统维护，这里不创建存储桶。
func NewQuestionBank(cfg config.MinIOConfig) (*QuestionBank, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	return &QuestionBank{client: client, bucket: cfg.BucketName}, nil
}

// FetchPrompt 取回指定问题的题干文本。
// 对象路径约定为 problems/{exam_type}/{problem_id}.md。
func (q *QuestionBank) FetchPrompt(ctx context.Context, examType, problemID string) (string, error) {
	objectName := fmt.Sprintf("problems/%s/%s.md", examType, problemID)
	obj, err := q.client.GetObject(ctx, q.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("获取题干对象失败: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		// MinIO 在首次读取时才返回对象级错误
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return "", ErrObjectNotFound
		}
		return "", fmt.Errorf("读取题干对象失败: %w", err)
	}
	return string(data), nil
}
