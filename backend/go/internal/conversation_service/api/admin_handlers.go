package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunsQuery 是 GET /runs 的查询参数。
type RunsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// ListRuns 处理 GET /runs，支持按状态过滤和分页。
func (h *Handler) ListRuns(c *gin.Context) {
	var q RunsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	page, err := h.coord.ListRuns(c.Request.Context(), q.Status, q.Limit, q.Offset)
	if err != nil {
		respondError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ListRunTasks 处理 GET /runs/:run_id/tasks。
func (h *Handler) ListRunTasks(c *gin.Context) {
	runID := c.Param("run_id")
	tasks, err := h.coord.ListRunTasks(c.Request.Context(), runID)
	if err != nil {
		respondError(c, runID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "tasks": tasks})
}

// GetTask 处理 GET /tasks/:task_id。
func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.coord.GetTask(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		respondError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Stats 处理 GET /stats。
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.coord.Stats(c.Request.Context())
	if err != nil {
		respondError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
