package handler

import (
	"time"

	"inline-media-backend/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Chat     *ChatHandler
	Media    *MediaHandler
	Settings *SettingsHandler
	Events   *EventsHandler
	Tools    *ToolsHandler
}

func NewRouter(cfg *config.Config, h Handlers) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS配置
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	// 健康检查
	router.GET("/health", Health)

	// API路由
	api := router.Group("/api")
	api.Use(RateLimit(cfg.RateLimit))
	{
		chat := api.Group("/chat")
		{
			chat.POST("/session", h.Chat.CreateSession)
			chat.POST("/session/list", h.Chat.GetSessionList)
			chat.GET("/session/del/:session_id", h.Chat.DeleteSession)
			chat.POST("/session/clear", h.Chat.ClearAllSessions)
			chat.GET("/session/:session_id", h.Chat.GetSession)
			chat.PUT("/session/:session_id", h.Chat.UpdateSessionTitle)
			chat.POST("/session/:session_id/switch", h.Chat.SwitchChat)
			chat.GET("/messages/:session_id", h.Chat.GetMessages)

			chat.POST("/message", h.Chat.AddMessage)
			chat.PUT("/message/:message_id", h.Chat.EditMessage)
			chat.PUT("/message/:message_id/swipe", h.Chat.SwipeMessage)

			// ✅ 渲染相关API端点 - 支持会话隔离
			chat.PUT("/message/:message_id/render", h.Chat.UpdateMessageRender)
			chat.PUT("/session/:session_id/render-batch", h.Chat.UpdateSessionRenderBatch)
			chat.GET("/session/:session_id/pending-renders", h.Chat.GetPendingRenders)
		}

		media := api.Group("/media/:session_id/:message_id")
		{
			media.GET("/state", h.Media.GetState)
			media.GET("/:record_id", h.Media.GetRecord)
			media.POST("/:record_id/hide", h.Media.Hide)
			media.POST("/:record_id/show", h.Media.Show)
			media.POST("/:record_id/regenerate", h.Media.Regenerate)
			media.POST("/:record_id/fullscreen", h.Media.Fullscreen)
		}

		api.GET("/viewer", h.Media.ViewerState)
		api.POST("/viewer/:action", h.Media.ViewerAction)

		api.GET("/settings", h.Settings.Get)
		api.PUT("/settings", h.Settings.Update)
		api.GET("/styles", h.Settings.Styles)
		api.GET("/workflows", h.Settings.GetWorkflows)
		api.PUT("/workflows", h.Settings.AnnounceWorkflows)

		api.GET("/events", h.Events.Stream)

		api.GET("/tools", h.Tools.List)
		api.POST("/tools/:name", h.Tools.Invoke)
	}

	return router
}
