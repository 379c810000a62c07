package router

import (
	"net/http"

	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/handlers"
	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/middlewares"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
)

// Handlers 包含初始化路由所需的全部处理器
type Handlers struct {
	File  *handlers.FileHandler
	Share *handlers.ShareHandler
	Grant *handlers.GrantHandler
	Stats *handlers.StatsHandler
	User  *handlers.UserHandler
}

func InitRouter(h Handlers, oracle identity.Oracle, registrar middlewares.Registrar, cfg *config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middlewares.RequestID(), middlewares.AccessLog())

	// Health Check 路由
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// 公开分享链接, 可匿名访问
	public := router.Group("/s")
	public.Use(middlewares.OptionalAuth(oracle, registrar))
	{
		public.GET("/:token", h.Share.GetSharedFile)
		public.POST("/:token/verify", h.Share.VerifyPassword)
		public.GET("/:token/download", h.Share.Download)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middlewares.AuthMiddleware(oracle, registrar))
	{
		userGroup := v1.Group("/users")
		{
			userGroup.GET("/me", h.User.GetUserProfile)
			userGroup.GET("/me/stats", h.Stats.OwnerStats)
		}

		fileGroup := v1.Group("/files")
		{
			fileGroup.GET("", h.File.ListFiles)
			fileGroup.POST("", h.File.Upload)
			fileGroup.GET("/recent", h.File.RecentFiles)
			fileGroup.GET("/:file_id", h.File.GetFile)
			fileGroup.GET("/:file_id/content", h.File.Content)
			fileGroup.GET("/:file_id/key", h.File.ExportKey)
			fileGroup.DELETE("/:file_id", h.File.Delete)

			fileGroup.GET("/:file_id/stats", h.Stats.FileStats)
			fileGroup.GET("/:file_id/history", h.Stats.AccessHistory)
			fileGroup.GET("/:file_id/daily", h.Stats.DailyBreakdown)

			fileGroup.GET("/:file_id/grants", h.Grant.ListForFile)
			fileGroup.POST("/:file_id/grants", h.Grant.Grant)
			fileGroup.DELETE("/:file_id/grants/:recipient_id", h.Grant.Revoke)
		}

		v1.GET("/grants/received", h.Grant.Received)

		shareGroup := v1.Group("/shares")
		{
			shareGroup.GET("", h.Share.ListShares)
			shareGroup.POST("", h.Share.CreateShare)
			shareGroup.DELETE("/:link_id", h.Share.RevokeShare)
			shareGroup.PUT("/:link_id/password", h.Share.SetPassword)
		}

		adminGroup := v1.Group("/admin")
		adminGroup.Use(middlewares.RequireAdmin())
		{
			adminGroup.POST("/quota/reconcile", h.User.ReconcileQuota)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		xerr.Error(c, http.StatusNotFound, xerr.NotFoundCode, "Route not found")
	})

	return router
}
