package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRecord 链上交易审计台账，按交易哈希全局唯一，只追加不更新。
// 重复插入必须是无操作而不是报错，这也是 confirm/对账双写路径的幂等键。
// 仅用于统计报表，绝不参与鉴权判断。
type TransactionRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	TxHash    string              `json:"tx_hash" gorm:"not null;uniqueIndex"`
	ProjectID uint                `json:"project_id" gorm:"index"`
	Category  TransactionCategory `json:"category" gorm:"not null;index"`

	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(78,0);default:0"`
	FromAddress string          `json:"from_address" gorm:"index"`
	ToAddress   string          `json:"to_address" gorm:"index"`

	BlockNumber    uint64     `json:"block_number" gorm:"not null"`
	BlockTimestamp *time.Time `json:"block_timestamp"`

	// 回执确认状态（后台轮询回执补齐区块时间戳）
	ReceiptChecked bool `json:"receipt_checked" gorm:"default:false;index"`
}

// TransactionCategory 交易分类
type TransactionCategory string

const (
	CategoryCreation          TransactionCategory = "creation"           // 项目创建
	CategoryDeposit           TransactionCategory = "deposit"            // 托管入金
	CategoryMilestonePayment  TransactionCategory = "milestone_payment"  // 里程碑放款
	CategoryRefund            TransactionCategory = "refund"             // 退款
	CategoryRoyalty           TransactionCategory = "royalty"            // 版税（外部授权子系统透传）
	CategoryFee               TransactionCategory = "fee"                // 协议费（交付物上链锚定）
	CategoryDisputeResolution TransactionCategory = "dispute_resolution" // 争议裁决
)
