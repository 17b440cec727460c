package logic

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"gorm.io/gorm"
)

// rejectedBySystemNote 批准一个申请时，同项目其余pending申请被系统批量拒绝的备注
const rejectedBySystemNote = "another application was approved for this project"

// ApplicationLogic 合作申请业务逻辑
type ApplicationLogic struct {
	db *gorm.DB
}

// NewApplicationLogic 创建申请业务逻辑
func NewApplicationLogic(db *gorm.DB) *ApplicationLogic {
	return &ApplicationLogic{db: db}
}

// CreateApplication 候选合作者提交申请。
// (project, applicant) 唯一，重复申请返回冲突而不是写入第二条。
func (a *ApplicationLogic) CreateApplication(app *model.Application) error {
	if app.ApplicantAddress == "" {
		return apperr.Validation("applicant address is required")
	}
	if app.Proposal == "" {
		return apperr.Validation("proposal is required")
	}

	var project model.Project
	if err := a.db.First(&project, app.ProjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("project %d not found", app.ProjectID)
		}
		return err
	}
	if project.Status != model.ProjectStatusOpen {
		return apperr.InvalidTransition("project %d is not open for applications", project.ID)
	}
	if sameAddress(project.CreatorAddress, app.ApplicantAddress) {
		return apperr.Validation("creator cannot apply to own project")
	}

	var existing int64
	a.db.Model(&model.Application{}).
		Where("project_id = ? AND applicant_address = ?", app.ProjectID, app.ApplicantAddress).
		Count(&existing)
	if existing > 0 {
		return apperr.Conflict("application already exists for this project and applicant")
	}

	app.Status = model.ApplicationStatusPending
	if err := a.db.Create(app).Error; err != nil {
		return err
	}
	return nil
}

// GetApplication 获取申请
func (a *ApplicationLogic) GetApplication(id uuid.UUID) (*model.Application, error) {
	var app model.Application
	if err := a.db.First(&app, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("application %s not found", id)
		}
		return nil, err
	}
	return &app, nil
}

// GetProjectApplications 获取项目的申请列表（可按状态过滤，分页）
func (a *ApplicationLogic) GetProjectApplications(projectID uint, status string, page, pageSize int) ([]model.Application, int64, error) {
	var apps []model.Application
	var total int64

	query := a.db.Model(&model.Application{}).Where("project_id = ?", projectID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at ASC").Offset(offset).Limit(pageSize).Find(&apps).Error; err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}

// WithdrawApplication 申请人撤回自己的申请（链下操作）
func (a *ApplicationLogic) WithdrawApplication(id uuid.UUID, actor string) (*model.Application, error) {
	return a.closeApplication(id, actor, model.ApplicationStatusWithdrawn, "", false)
}

// RejectApplication 创建者拒绝申请（链下操作）
func (a *ApplicationLogic) RejectApplication(id uuid.UUID, actor, notes string) (*model.Application, error) {
	return a.closeApplication(id, actor, model.ApplicationStatusRejected, notes, true)
}

// closeApplication 申请转入终态（withdrawn/rejected）
func (a *ApplicationLogic) closeApplication(id uuid.UUID, actor string, target model.ApplicationStatus, notes string, byCreator bool) (*model.Application, error) {
	app, err := a.GetApplication(id)
	if err != nil {
		return nil, err
	}

	var project model.Project
	if err := a.db.First(&project, app.ProjectID).Error; err != nil {
		return nil, err
	}

	if byCreator {
		if !sameAddress(project.CreatorAddress, actor) {
			return nil, apperr.Authorization("only the project creator can reject applications")
		}
	} else {
		if !sameAddress(app.ApplicantAddress, actor) {
			return nil, apperr.Authorization("only the applicant can withdraw an application")
		}
	}

	if err := CheckApplicationTransition(app.Status, target); err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      target,
		"reviewed_at": &now,
	}
	if byCreator {
		updates["reviewer_address"] = actor
		updates["review_notes"] = notes
	}

	res := a.db.Model(&model.Application{}).
		Where("id = ? AND status = ?", app.ID, model.ApplicationStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.InvalidTransition("application %s is no longer pending", app.ID)
	}

	return a.GetApplication(id)
}

// approveApplicationTx 在事务内批准申请并执行全部副作用：
// 同项目其余pending申请原子置为rejected（保证每项目至多一个approved），
// 项目绑定合作者并进入in_progress，0号里程碑解锁。
// 必须与批准动作同一事务提交，否则并发下可能出现两个approved。
func approveApplicationTx(tx *gorm.DB, app *model.Application, project *model.Project, txHash string, blockNumber uint64) error {
	now := time.Now()

	// 批准获胜申请（CAS：仍为pending才生效）
	res := tx.Model(&model.Application{}).
		Where("id = ? AND status = ?", app.ID, model.ApplicationStatusPending).
		Updates(map[string]interface{}{
			"status":             model.ApplicationStatusApproved,
			"reviewer_address":   project.CreatorAddress,
			"reviewed_at":        &now,
			"approval_tx_hash":   txHash,
			"approval_block_num": blockNumber,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.InvalidTransition("application %s is no longer pending", app.ID)
	}

	// 其余pending申请全部拒绝，同一事务，不留竞态窗口
	err := tx.Model(&model.Application{}).
		Where("project_id = ? AND id <> ? AND status = ?",
			app.ProjectID, app.ID, model.ApplicationStatusPending).
		Updates(map[string]interface{}{
			"status":       model.ApplicationStatusRejected,
			"reviewed_at":  &now,
			"review_notes": rejectedBySystemNote,
		}).Error
	if err != nil {
		return err
	}

	// 合作者只在 open -> in_progress 这一次绑定
	changed, err := transitionProject(tx, project.ID, model.ProjectStatusOpen, model.ProjectStatusInProgress,
		map[string]interface{}{
			"collaborator_address":        app.ApplicantAddress,
			"chain_approval_tx_hash":      txHash,
			"chain_approval_block_number": blockNumber,
		})
	if err != nil {
		return err
	}
	if !changed {
		return apperr.InvalidTransition("project %d is no longer open", project.ID)
	}

	// 解锁0号里程碑
	first, err := nextPendingMilestone(tx, project.ID, -1)
	if err != nil {
		return err
	}
	if first != nil {
		if _, err := transitionMilestone(tx, first.ID, model.MilestoneStatusPending, model.MilestoneStatusInProgress, nil); err != nil {
			return err
		}
	}

	return nil
}
