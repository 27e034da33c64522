package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"scribo-go/internal/middleware"
	"scribo-go/internal/model"
	"scribo-go/internal/repository"
	"scribo-go/internal/service"
	"scribo-go/pkg/log"
)

// moduleBody 把存储为 JSON 文本的 tags 原样嵌入响应。
func moduleBody(m *model.Module) gin.H {
	tags := json.RawMessage(`[]`)
	if m.Tags != "" {
		tags = json.RawMessage(m.Tags)
	}
	return gin.H{
		"module_id":  m.ModuleID,
		"user_id":    m.UserID,
		"title":      m.Title,
		"category":   m.Category,
		"content":    m.Content,
		"tags":       tags,
		"created_at": m.CreatedAt,
		"updated_at": m.UpdatedAt,
	}
}

func moduleBodies(mods []model.Module) []gin.H {
	out := make([]gin.H, 0, len(mods))
	for i := range mods {
		out = append(out, moduleBody(&mods[i]))
	}
	return out
}

// ModuleHandler 负责处理准备模块（论文素材）相关的请求。
type ModuleHandler struct {
	moduleService service.ModuleService
}

// NewModuleHandler 创建一个新的 ModuleHandler。
func NewModuleHandler(moduleService service.ModuleService) *ModuleHandler {
	return &ModuleHandler{moduleService: moduleService}
}

type moduleCreateRequest struct {
	Title    string   `json:"title" binding:"required"`
	Category string   `json:"category" binding:"required"`
	Content  string   `json:"content" binding:"required"`
	Tags     []string `json:"tags"`
}

type moduleUpdateRequest struct {
	Title    *string  `json:"title"`
	Category *string  `json:"category"`
	Content  *string  `json:"content"`
	Tags     []string `json:"tags"`
}

type rewriteRequest struct {
	Text     string `json:"text" binding:"required"`
	Category string `json:"category" binding:"required"`
}

func (h *ModuleHandler) List(c *gin.Context) {
	userID := middleware.CurrentUser(c)
	modules, err := h.moduleService.List(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("查询模块列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "モジュールの取得に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": moduleBodies(modules)})
}

func (h *ModuleHandler) Create(c *gin.Context) {
	userID := middleware.CurrentUser(c)
	var req moduleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "リクエスト形式が不正です", "data": nil})
		return
	}

	m, err := h.moduleService.Create(c.Request.Context(), userID, req.Title, req.Category, req.Content, req.Tags)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": vErr.Reason, "data": nil})
			return
		}
		log.Errorf("创建模块失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "モジュールの作成に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": moduleBody(m)})
}

func (h *ModuleHandler) Get(c *gin.Context) {
	userID := middleware.CurrentUser(c)
	moduleID := c.Param("module_id")

	m, err := h.moduleService.Get(c.Request.Context(), userID, moduleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "モジュールが見つかりません", "data": nil})
			return
		}
		log.Errorf("查询模块失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "モジュールの取得に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": moduleBody(m)})
}

func (h *ModuleHandler) Update(c *gin.Context) {
	userID := middleware.CurrentUser(c)
	moduleID := c.Param("module_id")

	var req moduleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "リクエスト形式が不正です", "data": nil})
		return
	}

	m, err := h.moduleService.Update(c.Request.Context(), userID, moduleID, service.ModuleInput{
		Title:    req.Title,
		Category: req.Category,
		Content:  req.Content,
		Tags:     req.Tags,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "モジュールが見つかりません", "data": nil})
			return
		}
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": vErr.Reason, "data": nil})
			return
		}
		log.Errorf("更新模块失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "モジュールの更新に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": moduleBody(m)})
}

func (h *ModuleHandler) Delete(c *gin.Context) {
	userID := middleware.CurrentUser(c)
	moduleID := c.Param("module_id")

	if err := h.moduleService.Delete(c.Request.Context(), userID, moduleID); err != nil {
		log.Errorf("删除模块失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "モジュールの削除に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

func (h *ModuleHandler) Seed(c *gin.Context) {
	userID := middleware.CurrentUser(c)
	modules, err := h.moduleService.Seed(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("投入示例模块失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "テンプレートデータの投入に失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": moduleBodies(modules)})
}

func (h *ModuleHandler) Rewrite(c *gin.Context) {
	var req rewriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "リクエスト形式が不正です", "data": nil})
		return
	}

	rewritten, err := h.moduleService.Rewrite(c.Request.Context(), req.Text, req.Category)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": vErr.Reason, "data": nil})
			return
		}
		log.Errorf("AI 改写失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "AIリライティングに失敗しました", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"rewritten_text": rewritten}})
}
