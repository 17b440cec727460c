package logic

import (
	"errors"

	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/content"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProjectLogic 项目业务逻辑
type ProjectLogic struct {
	db *gorm.DB
}

// NewProjectLogic 创建项目业务逻辑
func NewProjectLogic(db *gorm.DB) *ProjectLogic {
	return &ProjectLogic{db: db}
}

// CreateDraft 创建项目草稿及其全部里程碑。
// 项目在创建交易确认（confirm或对账引擎观察到创建事件）之前保持draft状态。
// 里程碑金额之和必须等于预算，只在此处校验一次，之后不再复核。
func (p *ProjectLogic) CreateDraft(project *model.Project, milestones []model.Milestone) error {
	if err := p.validateDraft(project, milestones); err != nil {
		return err
	}

	project.Status = model.ProjectStatusDraft
	project.TotalPaid = decimal.Zero

	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		for i := range milestones {
			milestones[i].ProjectID = project.ID
			milestones[i].MilestoneIndex = i
			milestones[i].Status = model.MilestoneStatusPending
		}
		if err := tx.Create(&milestones).Error; err != nil {
			return err
		}
		return nil
	})
}

// validateDraft 校验项目草稿数据
func (p *ProjectLogic) validateDraft(project *model.Project, milestones []model.Milestone) error {
	if project.Title == "" {
		return apperr.Validation("title is required")
	}
	if project.CreatorAddress == "" {
		return apperr.Validation("creator address is required")
	}
	if !content.ValidHash(project.MetadataHash) {
		return apperr.Validation("invalid metadata hash")
	}
	if project.Budget.Sign() <= 0 {
		return apperr.Validation("budget must be positive")
	}
	if len(milestones) == 0 {
		return apperr.Validation("at least one milestone is required")
	}

	sum := decimal.Zero
	for i := range milestones {
		if milestones[i].Amount.Sign() <= 0 {
			return apperr.Validation("milestone %d amount must be positive", i)
		}
		sum = sum.Add(milestones[i].Amount)
	}
	if !sum.Equal(project.Budget) {
		return apperr.Validation("milestone amounts sum %s does not match budget %s", sum, project.Budget)
	}
	return nil
}

// GetProject 获取项目详情（含里程碑）
func (p *ProjectLogic) GetProject(id uint) (*model.Project, error) {
	var project model.Project
	err := p.db.Preload("Milestones", func(db *gorm.DB) *gorm.DB {
		return db.Order("milestone_index ASC")
	}).First(&project, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("project %d not found", id)
		}
		return nil, err
	}
	return &project, nil
}

// GetProjectByOnChainID 按链上项目ID获取项目
func (p *ProjectLogic) GetProjectByOnChainID(onChainID uint64) (*model.Project, error) {
	var project model.Project
	err := p.db.Where("on_chain_id = ?", onChainID).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("project with on-chain id %d not found", onChainID)
		}
		return nil, err
	}
	return &project, nil
}

// GetProjects 获取项目列表（按状态/分类/创建者过滤，分页）
func (p *ProjectLogic) GetProjects(status, category, creator string, page, pageSize int) ([]model.Project, int64, error) {
	var projects []model.Project
	var total int64

	query := p.db.Model(&model.Project{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if creator != "" {
		query = query.Where("creator_address = ?", creator)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&projects).Error; err != nil {
		return nil, 0, err
	}

	return projects, total, nil
}

// transitionProject 以CAS方式执行项目状态转换。
// RowsAffected为0表示存储状态已不是读到的状态（多半是另一条写路径抢先），
// 返回 changed=false 由调用方决定是否视为无操作。
func transitionProject(tx *gorm.DB, projectID uint, from, to model.ProjectStatus, extra map[string]interface{}) (bool, error) {
	if err := CheckProjectTransition(from, to); err != nil {
		return false, err
	}

	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := tx.Model(&model.Project{}).
		Where("id = ? AND status = ?", projectID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
