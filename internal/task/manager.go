package task

import (
	"github.com/go-co-op/gocron/v2"
	"github.com/krnkiran22/ip-escrow-sub001/internal/chain"
	"github.com/krnkiran22/ip-escrow-sub001/internal/config"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logger"
	"github.com/krnkiran22/ip-escrow-sub001/internal/reconciler"
	"gorm.io/gorm"
)

// Job 后台任务
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

// Manager 任务管理器
type Manager struct {
	scheduler gocron.Scheduler
	db        *gorm.DB
	gateway   chain.Gateway
	engine    *reconciler.Engine
	config    *config.Config
}

// NewManager 创建任务管理器
func NewManager(db *gorm.DB, gateway chain.Gateway, engine *reconciler.Engine, cfg *config.Config) *Manager {
	s, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("Failed to create scheduler: %v", err)
	}

	return &Manager{
		scheduler: s,
		db:        db,
		gateway:   gateway,
		engine:    engine,
		config:    cfg,
	}
}

// Start 注册全部任务并启动调度器
func (m *Manager) Start() {
	m.register(NewReceiptCheckJob(m.db, m.gateway, m.config))
	m.register(NewCheckpointAlertJob(m.db, m.gateway, m.engine, m.config))

	m.scheduler.Start()
	logger.Info("Task manager started successfully")
}

// register 注册单个任务
func (m *Manager) register(job Job) {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
	}
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
