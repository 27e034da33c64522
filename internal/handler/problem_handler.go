package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"scribo-go/pkg/log"
	"scribo-go/pkg/storage"
)

// ProblemHandler 负责提供题库中的问题文。
type ProblemHandler struct {
	questionBank *storage.QuestionBank
}

// NewProblemHandler 创建一个新的 ProblemHandler。
func NewProblemHandler(questionBank *storage.QuestionBank) *ProblemHandler {
	return &ProblemHandler{questionBank: questionBank}
}

// GetPrompt 返回指定考试区分下某问题的题文（Markdown）。
func (h *ProblemHandler) GetPrompt(c *gin.Context) {
	examType := c.Query("exam_type")
	problemID := c.Query("problem_id")
	if examType == "" || problemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "exam_type と problem_id は必須です", "data": nil})
		return
	}

	prompt, err := h.questionBank.FetchPrompt(c.Request.Context(), examType, problemID)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "問題が見つかりません", "data": nil})
			return
		}
		log.Errorf("获取题文失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "問題文の取得に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{
		"exam_type":  examType,
		"problem_id": problemID,
		"prompt":     prompt,
	}})
}
