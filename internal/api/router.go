// internal/api/router.go
package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/DialogueEngine/internal/app"
	"github.com/Corphon/DialogueEngine/internal/auth"
	"github.com/Corphon/DialogueEngine/internal/di"
	"github.com/Corphon/DialogueEngine/internal/services"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

// API 限流：每个IP每分钟的请求数
const (
	apiRateLimit  = 600
	apiRateWindow = time.Minute
)

// SetupRouter 配置HTTP路由。WebSocket 管理器注册为事件总线的输出，并随 App 关闭
func SetupRouter(a *app.App) (*gin.Engine, error) {
	if a == nil || a.Container == nil {
		return nil, fmt.Errorf("应用未初始化")
	}

	// 只从容器获取服务
	conversations, err := di.Resolve[*services.ConversationService](a.Container, di.ServiceConversations)
	if err != nil {
		return nil, fmt.Errorf("对话服务未正确初始化: %w", err)
	}
	saves, err := di.Resolve[*services.SaveService](a.Container, di.ServiceSaves)
	if err != nil {
		return nil, fmt.Errorf("存档服务未正确初始化: %w", err)
	}
	stats, err := di.Resolve[*services.StatsService](a.Container, di.ServiceStats)
	if err != nil {
		return nil, fmt.Errorf("统计服务未正确初始化: %w", err)
	}
	events, err := di.Resolve[*services.EventBus](a.Container, di.ServiceEvents)
	if err != nil {
		return nil, fmt.Errorf("事件总线未正确初始化: %w", err)
	}
	metrics, err := di.Resolve[*utils.DialogueMetrics](a.Container, di.ServiceMetrics)
	if err != nil {
		return nil, fmt.Errorf("指标服务未正确初始化: %w", err)
	}

	wsManager := NewWebSocketManager(a.Logger)
	wsManager.Start()
	events.AddSink(wsManager)
	a.AddCloser(wsManager)

	tokens := auth.NewTokenConfig(a.Config.AuthSecret, auth.DefaultExpiration)
	if tokens == nil {
		a.Logger.Warn("AUTH_SECRET_KEY not set; API is open to all clients", nil)
	}
	authRequired := AuthMiddleware(tokens, a.Logger)

	handler := NewHandler(conversations, saves, stats)
	wsHandler := NewWebSocketHandler(wsManager, conversations, a.Logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(MetricsMiddleware(metrics, a.Logger))
	r.Use(corsMiddleware())

	r.GET("/health", handler.HealthCheck)
	r.GET("/ws/conversations/:id", authRequired, wsHandler.ConversationWebSocket)

	api := r.Group("/api")
	api.Use(RateLimitByIP(NewRateLimiter(), apiRateLimit, apiRateWindow), authRequired)
	{
		// 对话数据库
		api.GET("/database", handler.GetDatabase)

		// 对话会话
		api.POST("/conversations", handler.StartConversation)
		api.GET("/conversations", handler.ListConversations)
		api.GET("/conversations/:id", handler.GetConversation)
		api.POST("/conversations/:id/continue", handler.ContinueConversation)
		api.POST("/conversations/:id/responses/:index", handler.ChooseResponse)
		api.POST("/conversations/:id/highlight/:index", handler.HighlightResponse)
		api.POST("/conversations/:id/goto", handler.GotoResponse)
		api.POST("/conversations/:id/randomize", handler.RandomizeNext)
		api.PUT("/conversations/:id/portraits", handler.SetPortrait)
		api.DELETE("/conversations/:id", handler.CloseConversation)

		// 存档
		api.GET("/saves", handler.ListSaves)
		api.GET("/saves/records", handler.GetRecords)
		api.GET("/saves/:slot", handler.GetSave)
		api.POST("/saves/:slot", handler.SaveGame)
		api.POST("/saves/:slot/load", handler.LoadGame)
		api.DELETE("/saves/:slot", handler.DeleteSave)
		api.POST("/reset", handler.ResetGame)

		// 存档组件
		api.PUT("/savers/:key", handler.PutSaver)
		api.GET("/savers/:key", handler.GetSaver)
		api.DELETE("/savers/:key", handler.DeleteSaver)

		// 场景
		api.GET("/scene", handler.GetScene)
		api.POST("/scene", handler.ChangeScene)

		// 变量
		api.GET("/variables", handler.ListVariables)
		api.GET("/variables/:name", handler.GetVariable)
		api.PUT("/variables/:name", handler.SetVariable)

		// 设置
		api.GET("/settings", handler.GetSettings)
		api.PUT("/settings", handler.UpdateSettings)

		// 系统
		api.GET("/stats", handler.GetStats)
		api.GET("/ws/status", wsHandler.StatusHandler)
	}

	return r, nil
}
