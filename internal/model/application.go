package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Application 合作申请，(project_id, applicant_address) 唯一（重复申请报冲突而不是写两条）
type Application struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	ProjectID        uint   `json:"project_id" gorm:"not null;uniqueIndex:idx_project_applicant"`
	ApplicantAddress string `json:"applicant_address" gorm:"not null;uniqueIndex:idx_project_applicant"`
	Proposal         string `json:"proposal" gorm:"type:text"`

	// 状态（非pending后不可再变更）
	Status ApplicationStatus `json:"status" gorm:"default:'pending';index"`

	// 审核信息
	ReviewerAddress string     `json:"reviewer_address"`
	ReviewedAt      *time.Time `json:"reviewed_at"`
	ReviewNotes     string     `json:"review_notes" gorm:"type:text"`

	// 链上审批交易引用（仅approved的申请会有）
	ApprovalTxHash   string `json:"approval_tx_hash"`
	ApprovalBlockNum uint64 `json:"approval_block_number"`

	// 关联
	Project Project `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
}

// ApplicationStatus 申请状态
type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "pending"   // 待审核
	ApplicationStatusApproved  ApplicationStatus = "approved"  // 已通过（每项目至多一个）
	ApplicationStatusRejected  ApplicationStatus = "rejected"  // 已拒绝
	ApplicationStatusWithdrawn ApplicationStatus = "withdrawn" // 已撤回
)

// BeforeCreate 生成申请ID
func (a *Application) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
