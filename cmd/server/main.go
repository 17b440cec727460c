package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krnkiran22/ip-escrow-sub001/internal/chain"
	"github.com/krnkiran22/ip-escrow-sub001/internal/config"
	"github.com/krnkiran22/ip-escrow-sub001/internal/database"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logger"
	"github.com/krnkiran22/ip-escrow-sub001/internal/reconciler"
	"github.com/krnkiran22/ip-escrow-sub001/internal/router"
	"github.com/krnkiran22/ip-escrow-sub001/internal/task"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志器
	initLogger(cfg.Log)
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化链网关
	gateway, err := chain.NewClient(cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to initialize chain client: %v", err)
	}

	// 启动事件对账引擎
	engine := reconciler.NewEngine(gateway, db, cfg.Reconciler, cfg.Chain.StartBlock)
	if err := engine.Start(); err != nil {
		logger.Fatal("Failed to start reconciliation engine: %v", err)
	}

	// 启动定时任务
	taskManager := task.NewManager(db, gateway, engine, cfg)
	taskManager.Start()

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(db, engine, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// 优雅退出：先停HTTP，再停任务和引擎，保证检查点落库
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}

	taskManager.Stop()
	engine.Stop()
	logger.Info("Server exited")
}

// initLogger 按配置初始化默认日志器
func initLogger(cfg config.LogConfig) {
	level := logger.ParseLogLevel(cfg.Level)

	var l *logger.Logger
	var err error
	if cfg.Output == "file" {
		l, err = logger.NewWithFileRotation(level, cfg.File)
	} else {
		l, err = logger.New(level)
	}
	if err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	logger.SetDefaultLogger(l)
}
