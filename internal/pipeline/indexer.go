// Package pipeline 定义了评分事件的异步索引流程。
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"scribo-go/pkg/events"
	"scribo-go/pkg/log"
)

// Indexer 消费评分事件并写入 Elasticsearch，供后续检索使用。
type Indexer struct {
	esClient *elasticsearch.Client
	index    string
}

// NewIndexer 创建一个新的 Indexer 实例。
func NewIndexer(esClient *elasticsearch.Client, index string) *Indexer {
	return &Indexer{esClient: esClient, index: index}
}

// Process 将一条评分事件索引到 Elasticsearch。
// 以提交 ID 作为文档 ID，重复评分时覆盖旧文档。
func (p *Indexer) Process(ctx context.Context, ev events.ScoringEvent) error {
	log.Infof("[Indexer] 开始索引评分事件, SubmissionID: %s, Rank: %s", ev.SubmissionID, ev.FinalRank)

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化评分事件失败: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      p.index,
		DocumentID: ev.SubmissionID,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, p.esClient)
	if err != nil {
		log.Errorf("[Indexer] 向 Elasticsearch 发送索引请求失败: %v", err)
		return fmt.Errorf("elasticsearch index failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[Indexer] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	log.Infof("[Indexer] 评分事件索引成功, SubmissionID: %s", ev.SubmissionID)
	return nil
}
