package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scribo-go/internal/extract"
	"scribo-go/internal/model"
	"scribo-go/internal/repository"
	"scribo-go/internal/service"
	"scribo-go/pkg/log"
)

// ScoringHandler 负责处理答案提交与 AI 评分相关的请求。
type ScoringHandler struct {
	scoringService service.ScoringService
	searchService  service.SearchService
}

// NewScoringHandler 创建一个新的 ScoringHandler。
func NewScoringHandler(scoringService service.ScoringService, searchService service.SearchService) *ScoringHandler {
	return &ScoringHandler{scoringService: scoringService, searchService: searchService}
}

// submissionBody 把存储为 JSON 文本的字段原样嵌入响应，避免二次编码。
func submissionBody(sub *model.Submission) gin.H {
	body := gin.H{
		"submission_id": sub.SubmissionID,
		"exam_type":     sub.ExamType,
		"problem_id":    sub.ProblemID,
		"answers":       json.RawMessage(sub.Answers),
		"submitted_at":  sub.SubmittedAt,
		"status":        sub.Status,
	}
	if sub.Metadata != "" {
		body["metadata"] = json.RawMessage(sub.Metadata)
	}
	return body
}

func resultBody(result *model.ScoringResult) gin.H {
	return gin.H{
		"submission_id":      result.SubmissionID,
		"aggregate_score":    result.AggregateScore,
		"final_rank":         result.FinalRank,
		"passed":             result.Passed,
		"question_breakdown": json.RawMessage(result.Breakdown),
		"feedback":           result.Feedback,
		"scored_at":          result.ScoredAt,
	}
}

type submitRequest struct {
	ExamType  string            `json:"exam_type" binding:"required"`
	ProblemID string            `json:"problem_id" binding:"required"`
	Answers   map[string]string `json:"answers" binding:"required"`
	Metadata  map[string]string `json:"metadata"`
}

// Submit 校验并保存一次答案提交。
func (h *ScoringHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "リクエスト形式が不正です", "data": nil})
		return
	}

	submission, err := h.scoringService.Submit(c.Request.Context(), req.ExamType, req.ProblemID, req.Answers, req.Metadata)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": vErr.Reason, "data": nil})
			return
		}
		log.Errorf("保存提交失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "解答の保存に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{
		"submission_id": submission.SubmissionID,
		"status":        submission.Status,
		"submitted_at":  submission.SubmittedAt,
	}})
}

// GetSubmission 返回一次已保存的提交。
func (h *ScoringHandler) GetSubmission(c *gin.Context) {
	submissionID := c.Param("submission_id")
	submission, err := h.scoringService.GetSubmission(c.Request.Context(), submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "提出が見つかりません", "data": nil})
			return
		}
		log.Errorf("查询提交失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "提出の取得に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": submissionBody(submission)})
}

type scoreRequest struct {
	SubmissionID string `json:"submission_id" binding:"required"`
}

// Score 对一次已有提交执行 AI 评分。
func (h *ScoringHandler) Score(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "submission_id は必須です", "data": nil})
		return
	}

	result, err := h.scoringService.Score(c.Request.Context(), req.SubmissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "提出が見つかりません", "data": nil})
			return
		}
		var extractErr *extract.Error
		if errors.As(err, &extractErr) {
			log.Errorf("评分输出解析失败, 原始输出: %s", extractErr.Raw)
			c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "採点結果の解析に失敗しました", "data": nil})
			return
		}
		log.Errorf("评分失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "採点に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": resultBody(result)})
}

// GetResult 返回一次已完成的评分结果。
func (h *ScoringHandler) GetResult(c *gin.Context) {
	submissionID := c.Param("submission_id")
	result, err := h.scoringService.GetResult(c.Request.Context(), submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "採点結果が見つかりません", "data": nil})
			return
		}
		log.Errorf("查询评分结果失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "採点結果の取得に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": resultBody(result)})
}

// Search 检索历史评分结果（全文 + 评级过滤）。
func (h *ScoringHandler) Search(c *gin.Context) {
	query := c.Query("q")
	rank := c.Query("rank")
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	hits, err := h.searchService.SearchScores(c.Request.Context(), query, rank, size)
	if err != nil {
		log.Errorf("评分检索失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "検索に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": hits})
}
