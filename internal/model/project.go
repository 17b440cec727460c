package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Project 托管项目模型
type Project struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// 基本信息
	Title       string `json:"title" gorm:"not null" binding:"required"`
	Description string `json:"description" gorm:"type:text"`
	Category    string `json:"category"`

	// 链上标识（创建交易确认后分配，只写一次）
	OnChainID *uint64 `json:"on_chain_id" gorm:"uniqueIndex"`

	// 资金信息（最小单位整数，任意精度）
	Budget    decimal.Decimal `json:"budget" gorm:"type:numeric(78,0);not null"`
	TotalPaid decimal.Decimal `json:"total_paid" gorm:"type:numeric(78,0);default:0"`

	// 参与方
	CreatorAddress      string `json:"creator_address" gorm:"not null;index"`
	CollaboratorAddress string `json:"collaborator_address" gorm:"index"`

	// 元数据内容哈希（链下存储引用，创建事件靠它匹配草稿）
	MetadataHash string `json:"metadata_hash" gorm:"index"`

	// 状态
	Status ProjectStatus `json:"status" gorm:"default:'draft';index"`

	// 区块链信息
	BlockchainData BlockchainData `json:"blockchain_data" gorm:"embedded;embeddedPrefix:chain_"`

	// 关联
	Milestones   []Milestone   `json:"milestones,omitempty" gorm:"foreignKey:ProjectID"`
	Applications []Application `json:"applications,omitempty" gorm:"foreignKey:ProjectID"`
}

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"       // 创建交易未确认
	ProjectStatusOpen       ProjectStatus = "open"        // 开放申请
	ProjectStatusInProgress ProjectStatus = "in_progress" // 进行中
	ProjectStatusDisputed   ProjectStatus = "disputed"    // 争议中
	ProjectStatusCompleted  ProjectStatus = "completed"   // 已完成
	ProjectStatusCancelled  ProjectStatus = "cancelled"   // 已取消
)

// BlockchainData 链上溯源信息（冗余存储，查询热路径无需回链）
type BlockchainData struct {
	TxHash           string `json:"tx_hash" gorm:"column:tx_hash"`
	BlockNumber      uint64 `json:"block_number" gorm:"column:block_number"`
	ApprovalTxHash   string `json:"approval_tx_hash" gorm:"column:approval_tx_hash"`
	ApprovalBlockNum uint64 `json:"approval_block_number" gorm:"column:approval_block_number"`
}

// Remaining 返回尚未支付的托管余额
func (p *Project) Remaining() decimal.Decimal {
	return p.Budget.Sub(p.TotalPaid)
}

// IsTerminal 判断项目状态是否为终态
func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectStatusCompleted || s == ProjectStatusCancelled
}
