// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"scribo-go/internal/config"
	"scribo-go/pkg/log"
)

// NewClient 初始化 Elasticsearch 客户端并确保采点结果索引存在。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := createIndexIfNotExists(client, esCfg.IndexName); err != nil {
		return nil, err
	}
	return client, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(client *elasticsearch.Client, indexName string) error {
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	defer res.Body.Close()

	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 采点结果文档：按 submission_id 作为 _id 幂等覆盖
	mapping := `{
  "mappings": {
    "properties": {
      "submission_id":   { "type": "keyword" },
      "exam_type":       { "type": "keyword" },
      "problem_id":      { "type": "keyword" },
      "aggregate_score": { "type": "double" },
      "final_rank":      { "type": "keyword" },
      "passed":          { "type": "boolean" },
      "feedback":        { "type": "text" },
      "scored_at":       { "type": "date" }
    }
  }
}`

	createRes, err := client.Indices.Create(indexName,
		client.Indices.Create.WithBody(strings.NewReader(mapping)))
	if err != nil {
		return fmt.Errorf("创建索引失败: %w", err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("创建索引 '%s' 失败: %s", indexName, createRes.String())
	}
	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}
