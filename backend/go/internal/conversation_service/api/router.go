package api

import (
	"GeoCMS/backend/go/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// BasePath 是所有会话接口的路由前缀。
const BasePath = "/api/v1/ai-native"

// RouterOptions 配置路由。
type RouterOptions struct {
	JWTSecret   string           // 为空时不启用认证
	Metrics     *metrics.Metrics // 为空时不暴露指标
	MetricsPath string
}

// SetupRouter 配置和返回一个 Gin 引擎实例。
func SetupRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(opts.Metrics))

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(opts.Metrics.Handler()))
	}

	base := r.Group(BasePath)
	base.GET("/health", h.Health)

	protected := base.Group("")
	if opts.JWTSecret != "" {
		protected.Use(AuthMiddleware(opts.JWTSecret))
	}
	{
		protected.POST("/reload-config", h.ReloadConfig)

		conversations := protected.Group("/conversations")
		conversations.POST("", h.StartConversation)
		conversations.GET("", h.ListConversations)
		conversations.POST("/:run_id/input", h.ProcessInput)
		conversations.GET("/:run_id/status", h.GetStatus)
		conversations.GET("/:run_id/next-action", h.NextAction)
		conversations.POST("/:run_id/generate", h.Generate)
		conversations.POST("/:run_id/verify/:content_ref", h.Verify)
		conversations.POST("/:run_id/workflow", h.ExecuteWorkflow)
		conversations.POST("/:run_id/complete", h.Complete)
		conversations.POST("/:run_id/fail", h.Fail)

		protected.GET("/runs", h.ListRuns)
		protected.GET("/runs/:run_id/tasks", h.ListRunTasks)
		protected.GET("/tasks/:task_id", h.GetTask)
		protected.GET("/stats", h.Stats)
	}

	return r
}
