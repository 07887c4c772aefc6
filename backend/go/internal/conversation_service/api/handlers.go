package api

import (
	"GeoCMS/backend/go/internal/conversation_service/service"
	"GeoCMS/backend/go/internal/models"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const serviceName = "conversation_service"

// HealthCheck 检查一个依赖是否可用。
type HealthCheck func(ctx context.Context) error

// Handler 封装了所有 API endpoint 的处理函数。
type Handler struct {
	coord  *service.Coordinator
	checks map[string]HealthCheck
}

// NewHandler 创建一个新的 Handler 实例。checks 用于 /health。
func NewHandler(coord *service.Coordinator, checks map[string]HealthCheck) *Handler {
	return &Handler{coord: coord, checks: checks}
}

// StartRequest 定义了开始会话请求的 JSON 结构。
type StartRequest struct {
	UserIntent   string            `json:"user_intent" binding:"required"`
	InitialState *models.SlotState `json:"initial_state"`
}

// StartConversation 处理 POST /conversations。
func (h *Handler) StartConversation(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.coord.StartConversation(c.Request.Context(), req.UserIntent, req.InitialState)
	if err != nil {
		respondError(c, "", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListConversations 处理 GET /conversations。
func (h *Handler) ListConversations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须是正整数"})
		return
	}
	runs, err := h.coord.ListConversations(c.Request.Context(), limit)
	if err != nil {
		respondError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": runs})
}

// InputContext 是用户输入附带的上下文。
type InputContext struct {
	SlotName string `json:"slot_name"`
}

// InputRequest 定义了用户输入请求的 JSON 结构。user_input 必须出现，但可以是空串。
type InputRequest struct {
	UserInput *string       `json:"user_input" binding:"required"`
	Context   *InputContext `json:"context"`
}

// ProcessInput 处理 POST /conversations/:run_id/input。
func (h *Handler) ProcessInput(c *gin.Context) {
	runID := c.Param("run_id")
	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	slotName := ""
	if req.Context != nil {
		slotName = req.Context.SlotName
	}
	action, err := h.coord.ProcessUserInput(c.Request.Context(), runID, *req.UserInput, slotName)
	if err != nil {
		respondError(c, runID, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

// GetStatus 处理 GET /conversations/:run_id/status。
func (h *Handler) GetStatus(c *gin.Context) {
	runID := c.Param("run_id")
	status, err := h.coord.GetConversationStatus(c.Request.Context(), runID)
	if err != nil {
		respondError(c, runID, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// NextAction 处理 GET /conversations/:run_id/next-action。
func (h *Handler) NextAction(c *gin.Context) {
	runID := c.Param("run_id")
	action, err := h.coord.NextAction(c.Request.Context(), runID)
	if err != nil {
		respondError(c, runID, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

// GenerateRequest 定义了内容生成请求的 JSON 结构。
type GenerateRequest struct {
	TaskData map[string]interface{} `json:"task_data"`
}

// Generate 处理 POST /conversations/:run_id/generate。
func (h *Handler) Generate(c *gin.Context) {
	runID := c.Param("run_id")
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.coord.ExecuteContentGeneration(c.Request.Context(), runID, req.TaskData)
	if err != nil {
		respondError(c, runID, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Verify 处理 POST /conversations/:run_id/verify/:content_ref。
func (h *Handler) Verify(c *gin.Context) {
	runID := c.Param("run_id")
	res, err := h.coord.ExecuteContentVerification(c.Request.Context(), runID, c.Param("content_ref"))
	if err != nil {
		respondError(c, runID, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// WorkflowRequest 定义了工作流请求的 JSON 结构。workflow_type 为空时使用 standard。
type WorkflowRequest struct {
	WorkflowType string `json:"workflow_type"`
}

// ExecuteWorkflow 处理 POST /conversations/:run_id/workflow。
func (h *Handler) ExecuteWorkflow(c *gin.Context) {
	runID := c.Param("run_id")
	var req WorkflowRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	res, err := h.coord.ExecuteWorkflow(c.Request.Context(), runID, req.WorkflowType)
	if err != nil {
		respondError(c, runID, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Complete 处理 POST /conversations/:run_id/complete。
func (h *Handler) Complete(c *gin.Context) {
	runID := c.Param("run_id")
	res, err := h.coord.CompleteConversation(c.Request.Context(), runID)
	if err != nil {
		respondError(c, runID, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// FailRequest 定义了标记失败请求的 JSON 结构。
type FailRequest struct {
	Reason string `json:"reason"`
}

// Fail 处理 POST /conversations/:run_id/fail。
func (h *Handler) Fail(c *gin.Context) {
	runID := c.Param("run_id")
	var req FailRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	res, err := h.coord.FailConversation(c.Request.Context(), runID, req.Reason)
	if err != nil {
		respondError(c, runID, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Health 处理 GET /health。任一依赖不可用时返回 503。
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(code, gin.H{"status": status, "service": serviceName, "checks": results})
}

// ReloadConfig 处理 POST /reload-config，重新加载规划策略。
func (h *Handler) ReloadConfig(c *gin.Context) {
	if err := h.coord.ReloadPolicy(); err != nil {
		respondError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}
