// Package service 提供了评分检索相关的业务逻辑。
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"

	"scribo-go/pkg/log"
)

// ScoreSearchHit 是评分检索的单条命中结果。
type ScoreSearchHit struct {
	SubmissionID   string  `json:"submission_id"`
	ExamType       string  `json:"exam_type"`
	ProblemID      string  `json:"problem_id"`
	AggregateScore float64 `json:"aggregate_score"`
	FinalRank      string  `json:"final_rank"`
	Passed         bool    `json:"passed"`
	Feedback       string  `json:"feedback"`
	ScoredAt       string  `json:"scored_at"`
	Score          float64 `json:"score"`
}

// SearchService 接口定义了对历史评分结果的检索操作。
type SearchService interface {
	SearchScores(ctx context.Context, query, rank string, size int) ([]ScoreSearchHit, error)
}

type searchService struct {
	esClient *elasticsearch.Client
	index    string
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(esClient *elasticsearch.Client, index string) SearchService {
	return &searchService{esClient: esClient, index: index}
}

// SearchScores 按反馈全文与评级过滤检索已评分的提交，按评分时间降序。
func (s *searchService) SearchScores(ctx context.Context, query, rank string, size int) ([]ScoreSearchHit, error) {
	if size <= 0 || size > 100 {
		size = 20
	}

	boolQuery := map[string]interface{}{}
	if query != "" {
		boolQuery["must"] = map[string]interface{}{
			"match": map[string]interface{}{
				"feedback": query,
			},
		}
	} else {
		boolQuery["must"] = map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	}
	if rank != "" {
		boolQuery["filter"] = []map[string]interface{}{
			{"term": map[string]interface{}{"final_rank": rank}},
		}
	}

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": boolQuery,
		},
		"sort": []map[string]interface{}{
			{"scored_at": map[string]interface{}{"order": "desc"}},
		},
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.index),
		s.esClient.Search.WithBody(&buf),
		s.esClient.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		log.Errorf("[SearchService] 向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[SearchService] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source ScoreSearchHit `json:"_source"`
				Score  float64        `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]ScoreSearchHit, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		h := hit.Source
		h.Score = hit.Score
		results = append(results, h)
	}
	log.Infof("[SearchService] 评分检索完成, query: '%s', rank: '%s', 返回 %d 条", query, rank, len(results))
	return results, nil
}
