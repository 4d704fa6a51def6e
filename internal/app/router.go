package app

import (
	"pseudo_practice_backend/internal/config"
	"pseudo_practice_backend/internal/middleware"
	"pseudo_practice_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerPracticeRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}
}

func (a *App) registerPracticeRoutes(rg *gin.RouterGroup, c *controllers) {
	// 伪代码练习：提交评测、提示、进度
	rg.POST("/questions/:questionId/submissions", c.submission.SubmitSolution)
	rg.POST("/questions/:questionId/hints", c.submission.RequestHint)
	rg.GET("/progress/:attemptId", c.submission.GetProgress)
}
