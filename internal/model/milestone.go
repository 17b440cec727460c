package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Milestone 项目里程碑，(project_id, milestone_index) 唯一，索引从0连续
type Milestone struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	ProjectID      uint   `json:"project_id" gorm:"not null;uniqueIndex:idx_project_milestone"`
	MilestoneIndex int    `json:"milestone_index" gorm:"not null;uniqueIndex:idx_project_milestone"`
	Title          string `json:"title" gorm:"not null"`
	Description    string `json:"description" gorm:"type:text"`

	// 金额（最小单位整数，必须大于0，各里程碑金额之和等于项目预算）
	Amount decimal.Decimal `json:"amount" gorm:"type:numeric(78,0);not null"`

	// 交付物（内容哈希引用，不存储文件字节）
	DeliverableHash string     `json:"deliverable_hash"`
	SubmittedAt     *time.Time `json:"submitted_at"`
	RevisionCount   int        `json:"revision_count" gorm:"default:0"`

	// 状态
	Status MilestoneStatus `json:"status" gorm:"default:'pending';index"`

	// 审核信息
	ReviewNotes string     `json:"review_notes" gorm:"type:text"`
	ReviewedAt  *time.Time `json:"reviewed_at"`

	// 区块链信息（提交交易 + 审批交易两组哈希）
	BlockchainData BlockchainData `json:"blockchain_data" gorm:"embedded;embeddedPrefix:chain_"`

	// 关联
	Versions []DeliverableVersion `json:"versions,omitempty" gorm:"foreignKey:MilestoneID"`
}

// MilestoneStatus 里程碑状态
type MilestoneStatus string

const (
	MilestoneStatusPending           MilestoneStatus = "pending"            // 等待解锁
	MilestoneStatusInProgress        MilestoneStatus = "in_progress"        // 进行中
	MilestoneStatusSubmitted         MilestoneStatus = "submitted"          // 已提交待审核
	MilestoneStatusApproved          MilestoneStatus = "approved"           // 已通过（终态，触发付款）
	MilestoneStatusRejected          MilestoneStatus = "rejected"           // 已驳回（可重新提交）
	MilestoneStatusRevisionRequested MilestoneStatus = "revision_requested" // 要求修改（可重新提交）
)

// DeliverableVersion 交付物历史版本，只追加不删除（争议取证依据）
type DeliverableVersion struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	MilestoneID     uint      `json:"milestone_id" gorm:"not null;index"`
	Revision        int       `json:"revision" gorm:"not null"`
	DeliverableHash string    `json:"deliverable_hash" gorm:"not null"`
	SubmittedAt     time.Time `json:"submitted_at"`
}
