package router

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/krnkiran22/ip-escrow-sub001/internal/config"
	"github.com/krnkiran22/ip-escrow-sub001/internal/handler"
	"github.com/krnkiran22/ip-escrow-sub001/internal/reconciler"
	"gorm.io/gorm"
)

func Setup(db *gorm.DB, engine *reconciler.Engine, cfg *config.Config) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":               "ok",
			"service":              "escrow-marketplace-service",
			"reconciler_state":     engine.GetState(),
			"last_processed_block": engine.LastProcessedBlock(),
		})
	})

	// API版本组
	v1 := r.Group("/api/v1")
	{
		projectHandler := handler.NewProjectHandler(db)
		projects := v1.Group("/projects")
		{
			projects.POST("", projectHandler.CreateProject)
			projects.GET("", projectHandler.GetProjects)
			projects.GET("/:id", projectHandler.GetProject)
			projects.GET("/:id/milestones", projectHandler.GetProjectMilestones)
		}

		applicationHandler := handler.NewApplicationHandler(db)
		projects.POST("/:id/applications", applicationHandler.CreateApplication)
		projects.GET("/:id/applications", applicationHandler.GetProjectApplications)
		applications := v1.Group("/applications")
		{
			applications.POST("/:id/withdraw", applicationHandler.WithdrawApplication)
			applications.POST("/:id/reject", applicationHandler.RejectApplication)
		}

		milestoneHandler := handler.NewMilestoneHandler(db)
		milestones := v1.Group("/milestones")
		{
			milestones.GET("/:id", milestoneHandler.GetMilestone)
			milestones.GET("/:id/versions", milestoneHandler.GetVersions)
			milestones.POST("/:id/review", milestoneHandler.ReviewMilestone)
		}

		escrowHandler := handler.NewEscrowHandler(db, cfg.Chain.ArbiterAddress)
		escrow := v1.Group("/escrow")
		{
			escrow.POST("/:action/prepare", escrowHandler.Prepare)
			escrow.POST("/:action/confirm", escrowHandler.Confirm)
		}

		transactionHandler := handler.NewTransactionHandler(db)
		transactions := v1.Group("/transactions")
		{
			transactions.GET("", transactionHandler.GetTransactions)
			transactions.GET("/stats", transactionHandler.GetVolumeStats)
			transactions.GET("/stats/:address", transactionHandler.GetAddressStats)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Wallet-Address")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// 请求ID中间件
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
