package model

import (
	"time"
)

// ChainEvent 链上事件原始记录，(tx_hash, log_index) 唯一。
// 对账引擎每观察到一条日志都落一条，无法解析或找不到实体的标记 skipped。
type ChainEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	EventName   string `json:"event_name" gorm:"not null;index"`
	TxHash      string `json:"tx_hash" gorm:"not null;uniqueIndex:idx_event_tx_log"`
	LogIndex    uint   `json:"log_index" gorm:"uniqueIndex:idx_event_tx_log"`
	BlockNumber uint64 `json:"block_number" gorm:"not null;index"`
	Data        string `json:"data" gorm:"type:text"`
	Skipped     bool   `json:"skipped" gorm:"default:false"`
	SkipReason  string `json:"skip_reason"`
}

// ReconcileCheckpoint 对账检查点，单行记录最后处理完成的区块号。
// 只有整个区块段的事件全部应用成功后才推进。
type ReconcileCheckpoint struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	UpdatedAt          time.Time `json:"updated_at"`
	LastProcessedBlock uint64    `json:"last_processed_block" gorm:"not null;default:0"`
}
