package task

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/krnkiran22/ip-escrow-sub001/internal/chain"
	"github.com/krnkiran22/ip-escrow-sub001/internal/config"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logger"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"github.com/krnkiran22/ip-escrow-sub001/internal/reconciler"
	"gorm.io/gorm"
)

// CheckpointAlertJob 检查点滞后巡检：对账引擎长期推不动检查点时升级告警，
// 而不是让它无声地空转。
type CheckpointAlertJob struct {
	db      *gorm.DB
	gateway chain.Gateway
	engine  *reconciler.Engine
	config  *config.Config
}

// NewCheckpointAlertJob 创建检查点巡检任务
func NewCheckpointAlertJob(db *gorm.DB, gateway chain.Gateway, engine *reconciler.Engine, cfg *config.Config) *CheckpointAlertJob {
	return &CheckpointAlertJob{
		db:      db,
		gateway: gateway,
		engine:  engine,
		config:  cfg,
	}
}

// GetName 任务名称
func (j *CheckpointAlertJob) GetName() string {
	return "reconcile_checkpoint_monitor"
}

// GetSchedule 调度配置
func (j *CheckpointAlertJob) GetSchedule() gocron.JobDefinition {
	interval := j.config.Task.AlertIntervalSeconds
	if interval <= 0 {
		interval = 300
	}
	return gocron.DurationJob(time.Duration(interval) * time.Second)
}

// Execute 执行任务
func (j *CheckpointAlertJob) Execute() {
	threshold := j.config.Task.StaleThresholdSeconds
	if threshold <= 0 {
		threshold = 900
	}

	var checkpoint model.ReconcileCheckpoint
	if err := j.db.First(&checkpoint, 1).Error; err != nil {
		logger.Debug("No reconcile checkpoint yet: %v", err)
		return
	}

	age := time.Since(checkpoint.UpdatedAt)
	if age < time.Duration(threshold)*time.Second {
		return
	}

	// 检查点停滞可能只是链上没有新事件；和链头比对后再告警
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	head, err := j.gateway.CurrentBlockNumber(ctx)
	cancel()
	if err != nil {
		logger.Error("ALERT: reconcile checkpoint stale for %s and chain head unreachable: %v", age, err)
		return
	}

	if head > checkpoint.LastProcessedBlock {
		logger.Error("ALERT: reconcile checkpoint stuck at block %d for %s while chain head is %d (engine state: %s)",
			checkpoint.LastProcessedBlock, age, head, j.engine.GetState())
	}
}
