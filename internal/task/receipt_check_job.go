package task

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/krnkiran22/ip-escrow-sub001/internal/chain"
	"github.com/krnkiran22/ip-escrow-sub001/internal/config"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logger"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logic"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
)

// ReceiptCheckJob 回执核对任务：为新落账的交易行补齐区块时间戳。
// 回执拉取是纯网络IO，用协程池并发核对一批。
type ReceiptCheckJob struct {
	db               *gorm.DB
	gateway          chain.Gateway
	config           *config.Config
	transactionLogic *logic.TransactionLogic
}

// NewReceiptCheckJob 创建回执核对任务
func NewReceiptCheckJob(db *gorm.DB, gateway chain.Gateway, cfg *config.Config) *ReceiptCheckJob {
	return &ReceiptCheckJob{
		db:               db,
		gateway:          gateway,
		config:           cfg,
		transactionLogic: logic.NewTransactionLogic(db),
	}
}

// GetName 任务名称
func (j *ReceiptCheckJob) GetName() string {
	return "transaction_receipt_checker"
}

// GetSchedule 调度配置
func (j *ReceiptCheckJob) GetSchedule() gocron.JobDefinition {
	interval := j.config.Task.ReceiptIntervalSeconds
	if interval <= 0 {
		interval = 60
	}
	return gocron.DurationJob(time.Duration(interval) * time.Second)
}

// Execute 执行任务
func (j *ReceiptCheckJob) Execute() {
	batch := j.config.Task.ReceiptBatchSize
	if batch <= 0 {
		batch = 50
	}

	records, err := j.transactionLogic.GetUncheckedRecords(batch)
	if err != nil {
		logger.Error("Failed to fetch unchecked transaction records: %v", err)
		return
	}
	if len(records) == 0 {
		return
	}

	pool, err := ants.NewPool(10)
	if err != nil {
		logger.Error("Failed to create receipt check pool: %v", err)
		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	checked := 0
	var mu sync.Mutex

	for i := range records {
		record := records[i]
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if j.checkRecord(record) {
				mu.Lock()
				checked++
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit receipt check task: %v", err)
		}
	}
	wg.Wait()

	logger.Debug("Receipt check completed: %d/%d records confirmed", checked, len(records))
}

// checkRecord 核对单条记录的回执并回填区块时间戳
func (j *ReceiptCheckJob) checkRecord(record model.TransactionRecord) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	receipt, err := j.gateway.TransactionReceipt(ctx, record.TxHash)
	if err != nil {
		// 回执暂时拉不到不等于交易失败，留给下一轮
		logger.Debug("Receipt for %s not available yet: %v", record.TxHash, err)
		return false
	}
	if !receipt.Success {
		logger.Warn("Transaction %s has a failed receipt", record.TxHash)
	}

	blockTime, err := j.gateway.BlockTimestamp(ctx, receipt.BlockNumber)
	if err != nil {
		logger.Debug("Block timestamp for %d not available: %v", receipt.BlockNumber, err)
		return false
	}

	if err := j.transactionLogic.MarkReceiptChecked(record.ID, blockTime); err != nil {
		logger.Error("Failed to mark record %d checked: %v", record.ID, err)
		return false
	}
	return true
}
