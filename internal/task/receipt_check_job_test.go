package task

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/krnkiran22/ip-escrow-sub001/internal/chain"
	"github.com/krnkiran22/ip-escrow-sub001/internal/config"
	"github.com/krnkiran22/ip-escrow-sub001/internal/database"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// receiptGateway 只实现任务用到的两个调用
type receiptGateway struct {
	failing map[string]bool
}

func (g *receiptGateway) CurrentBlockNumber(ctx context.Context) (uint64, error) {
	return 2000, nil
}

func (g *receiptGateway) FilterEvents(ctx context.Context, fromBlock, toBlock uint64) ([]chain.Event, error) {
	return nil, nil
}

func (g *receiptGateway) SubscribeEvents(ctx context.Context) (<-chan chain.Event, <-chan error, error) {
	return nil, nil, errors.New("not supported")
}

func (g *receiptGateway) TransactionReceipt(ctx context.Context, txHash string) (*chain.Receipt, error) {
	if g.failing[txHash] {
		return nil, errors.New("not found")
	}
	return &chain.Receipt{TxHash: txHash, BlockNumber: 1500, Success: true}, nil
}

func (g *receiptGateway) BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	return time.Unix(1700000000, 0), nil
}

func newTaskDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedRecords(t *testing.T, db *gorm.DB, n int) []model.TransactionRecord {
	t.Helper()
	records := make([]model.TransactionRecord, n)
	for i := range records {
		records[i] = model.TransactionRecord{
			TxHash:      fmt.Sprintf("0x%064x", i+1),
			ProjectID:   1,
			Category:    model.CategoryMilestonePayment,
			Amount:      decimal.NewFromInt(100),
			BlockNumber: 1500,
		}
	}
	require.NoError(t, db.Create(&records).Error)
	return records
}

func TestReceiptCheckJob(t *testing.T) {
	db := newTaskDB(t)
	records := seedRecords(t, db, 3)

	// 第二条回执暂时拉不到，留给下一轮
	gw := &receiptGateway{failing: map[string]bool{records[1].TxHash: true}}
	cfg := &config.Config{Task: config.TaskConfig{ReceiptBatchSize: 10}}

	job := NewReceiptCheckJob(db, gw, cfg)
	assert.Equal(t, "transaction_receipt_checker", job.GetName())
	job.Execute()

	var checked, unchecked int64
	db.Model(&model.TransactionRecord{}).Where("receipt_checked = ?", true).Count(&checked)
	db.Model(&model.TransactionRecord{}).Where("receipt_checked = ?", false).Count(&unchecked)
	assert.EqualValues(t, 2, checked)
	assert.EqualValues(t, 1, unchecked)

	var done model.TransactionRecord
	require.NoError(t, db.Where("tx_hash = ?", records[0].TxHash).First(&done).Error)
	require.NotNil(t, done.BlockTimestamp)
	assert.True(t, done.BlockTimestamp.Equal(time.Unix(1700000000, 0)))

	// 回执恢复后下一轮补齐
	gw.failing = nil
	job.Execute()
	db.Model(&model.TransactionRecord{}).Where("receipt_checked = ?", false).Count(&unchecked)
	assert.Zero(t, unchecked)
}

func TestReceiptCheckJobEmptyBatch(t *testing.T) {
	db := newTaskDB(t)
	cfg := &config.Config{Task: config.TaskConfig{ReceiptBatchSize: 10}}

	// 没有待核对记录时必须安静返回
	job := NewReceiptCheckJob(db, &receiptGateway{}, cfg)
	job.Execute()

	var count int64
	db.Model(&model.TransactionRecord{}).Count(&count)
	assert.Zero(t, count)
}
