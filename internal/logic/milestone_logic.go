package logic

import (
	"errors"
	"strings"
	"time"

	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"gorm.io/gorm"
)

// MilestoneLogic 里程碑业务逻辑
type MilestoneLogic struct {
	db *gorm.DB
}

// NewMilestoneLogic 创建里程碑业务逻辑
func NewMilestoneLogic(db *gorm.DB) *MilestoneLogic {
	return &MilestoneLogic{db: db}
}

// GetMilestone 获取里程碑
func (m *MilestoneLogic) GetMilestone(id uint) (*model.Milestone, error) {
	var milestone model.Milestone
	if err := m.db.First(&milestone, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("milestone %d not found", id)
		}
		return nil, err
	}
	return &milestone, nil
}

// GetMilestoneByIndex 按 (项目, 索引) 获取里程碑
func (m *MilestoneLogic) GetMilestoneByIndex(projectID uint, index int) (*model.Milestone, error) {
	var milestone model.Milestone
	err := m.db.Where("project_id = ? AND milestone_index = ?", projectID, index).First(&milestone).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("milestone %d of project %d not found", index, projectID)
		}
		return nil, err
	}
	return &milestone, nil
}

// GetProjectMilestones 获取项目全部里程碑（按索引排序）
func (m *MilestoneLogic) GetProjectMilestones(projectID uint) ([]model.Milestone, error) {
	var milestones []model.Milestone
	err := m.db.Where("project_id = ?", projectID).
		Order("milestone_index ASC").Find(&milestones).Error
	if err != nil {
		return nil, err
	}
	return milestones, nil
}

// GetVersions 获取交付物历史版本（争议取证，只读）
func (m *MilestoneLogic) GetVersions(milestoneID uint) ([]model.DeliverableVersion, error) {
	var versions []model.DeliverableVersion
	err := m.db.Where("milestone_id = ?", milestoneID).
		Order("revision ASC").Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// ReviewMilestone 创建者链下审核：驳回或要求修改。
// 放款审批（approved）走链上 prepare/confirm，不经过这里。
func (m *MilestoneLogic) ReviewMilestone(milestoneID uint, reviewer string, target model.MilestoneStatus, notes string) (*model.Milestone, error) {
	if target != model.MilestoneStatusRejected && target != model.MilestoneStatusRevisionRequested {
		return nil, apperr.Validation("review target must be rejected or revision_requested")
	}

	milestone, err := m.GetMilestone(milestoneID)
	if err != nil {
		return nil, err
	}

	var project model.Project
	if err := m.db.First(&project, milestone.ProjectID).Error; err != nil {
		return nil, err
	}
	if !sameAddress(project.CreatorAddress, reviewer) {
		return nil, apperr.Authorization("only the project creator can review milestones")
	}

	if err := CheckMilestoneTransition(milestone.Status, target); err != nil {
		return nil, err
	}

	now := time.Now()
	changed, err := transitionMilestone(m.db, milestone.ID, milestone.Status, target, map[string]interface{}{
		"review_notes": notes,
		"reviewed_at":  &now,
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, apperr.InvalidTransition("milestone %d is no longer %s", milestone.ID, milestone.Status)
	}

	return m.GetMilestone(milestoneID)
}

// transitionMilestone 以CAS方式执行里程碑状态转换
func transitionMilestone(tx *gorm.DB, milestoneID uint, from, to model.MilestoneStatus, extra map[string]interface{}) (bool, error) {
	if err := CheckMilestoneTransition(from, to); err != nil {
		return false, err
	}

	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := tx.Model(&model.Milestone{}).
		Where("id = ? AND status = ?", milestoneID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// archiveDeliverable 把当前交付物归档为历史版本（只追加，从不覆盖删除）
func archiveDeliverable(tx *gorm.DB, milestone *model.Milestone) error {
	if milestone.DeliverableHash == "" || milestone.SubmittedAt == nil {
		return nil
	}
	version := model.DeliverableVersion{
		MilestoneID:     milestone.ID,
		Revision:        milestone.RevisionCount,
		DeliverableHash: milestone.DeliverableHash,
		SubmittedAt:     *milestone.SubmittedAt,
	}
	return tx.Create(&version).Error
}

// nextPendingMilestone 返回项目里索引在given之后、状态为pending的下一个里程碑
func nextPendingMilestone(tx *gorm.DB, projectID uint, afterIndex int) (*model.Milestone, error) {
	var next model.Milestone
	err := tx.Where("project_id = ? AND milestone_index > ? AND status = ?",
		projectID, afterIndex, model.MilestoneStatusPending).
		Order("milestone_index ASC").First(&next).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &next, nil
}

// allMilestonesApproved 派生检查：项目全部里程碑是否均已approved。
// 在最后一个里程碑通过的时刻重新计算，不落冗余标志位。
func allMilestonesApproved(tx *gorm.DB, projectID uint) (bool, error) {
	var notApproved int64
	err := tx.Model(&model.Milestone{}).
		Where("project_id = ? AND status <> ?", projectID, model.MilestoneStatusApproved).
		Count(&notApproved).Error
	if err != nil {
		return false, err
	}
	return notApproved == 0, nil
}

// sameAddress 十六进制地址比较（大小写不敏感）
func sameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
