// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/DialogueEngine/internal/api"
	"github.com/Corphon/DialogueEngine/internal/app"
	"github.com/Corphon/DialogueEngine/internal/config"
)

func main() {
	log.Println("🚀 启动 DialogueEngine 服务器...")

	// 1. 首先加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 初始化配置系统
	if err := config.InitConfig(baseConfig); err != nil {
		log.Fatalf("初始化配置系统失败: %v", err)
	}
	cfg := config.GetCurrentConfig()

	logger := app.SetupLogger(cfg)
	defer logger.Close()

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 3. 初始化所有服务（按依赖顺序）
	application, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}
	defer application.Close()

	// 4. 设置路由
	router, err := api.SetupRouter(application)
	if err != nil {
		log.Fatalf("❌ 设置路由失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	application.Metrics.StartMetricsCollection(ctx, time.Minute)

	logger.Info("Server starting", map[string]interface{}{
		"port":         cfg.Port,
		"save_backend": cfg.SaveBackend,
		"dialogue_db":  cfg.DialogueDB,
	})
	setupGracefulShutdown(router, cfg.Port)
}

// 优雅关闭函数
func setupGracefulShutdown(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	// 等待中断信号以进行优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("❌ 服务器强制关闭: %v", err)
		return
	}
	log.Println("✅ 服务器优雅关闭完成")
}
