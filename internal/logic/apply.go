package logic

import (
	"errors"
	"regexp"
	"time"

	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Action 托管动作。confirm接口和对账引擎都把链上事实归一化为同一组动作，
// 走同一条按交易哈希幂等的应用路径。
type Action string

const (
	ActionCreateProject      Action = "create_project"
	ActionApproveApplication Action = "approve_application"
	ActionSubmitMilestone    Action = "submit_milestone"
	ActionApproveMilestone   Action = "approve_milestone"
	ActionCancelProject      Action = "cancel_project"
	ActionRaiseDispute       Action = "raise_dispute"
	ActionResolveDispute     Action = "resolve_dispute"
	ActionRoyalty            Action = "royalty"
)

// 争议裁决方式
const (
	ResolutionRelease = "release" // 放款给合作者并完结项目
	ResolutionRefund  = "refund"  // 余额退回创建者并取消项目
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidTxHash 校验交易哈希格式
func ValidTxHash(hash string) bool {
	return txHashPattern.MatchString(hash)
}

// ChainFact 一条已上链事实的归一化描述，(entity, target-status, txHash, blockNumber)
// 的推导结果。confirm调用和链上事件走完全相同的结构进入Apply。
type ChainFact struct {
	Action         Action
	ProjectID      uint    // 链下项目ID（confirm路径已知）
	OnChainID      *uint64 // 链上项目ID（事件路径已知，创建时分配）
	MilestoneIndex int
	Collaborator   string // 申请批准事实中的合作者地址
	Actor          string
	ContentHash    string // 创建=元数据哈希；提交=交付物哈希
	Amount         decimal.Decimal
	Resolution     string // resolve_dispute 专用
	TxHash         string
	BlockNumber    uint64
}

// ApplyResult 应用结果
type ApplyResult struct {
	AlreadyApplied bool
	Project        *model.Project
	Milestone      *model.Milestone
	Application    *model.Application
}

// Applier 幂等应用器：把链上事实落成链下状态转换。
// confirm接口和对账引擎是竞争写者，靠交易哈希唯一索引保证谁先到谁生效、
// 后到方无操作，两边必然收敛到同一终态。
type Applier struct {
	db *gorm.DB
}

// NewApplier 创建应用器
func NewApplier(db *gorm.DB) *Applier {
	return &Applier{db: db}
}

// Apply 应用一条链上事实。整个应用在单个数据库事务内完成：
// 先以 insert-or-ignore 抢占交易哈希，抢占失败说明该交易已被另一条路径
// 应用过，直接返回现有结果；抢占成功则执行状态转换与全部副作用。
func (a *Applier) Apply(fact ChainFact) (*ApplyResult, error) {
	if !ValidTxHash(fact.TxHash) {
		return nil, apperr.Validation("invalid transaction hash %q", fact.TxHash)
	}

	result := &ApplyResult{}
	err := a.db.Transaction(func(tx *gorm.DB) error {
		project, err := a.resolveProject(tx, fact)
		if err != nil {
			return err
		}

		// 放款金额以里程碑存储的金额为准，不信任调用方传入的数值
		if fact.Action == ActionApproveMilestone {
			milestone, err := findMilestone(tx, project.ID, fact.MilestoneIndex)
			if err != nil {
				return err
			}
			fact.Amount = milestone.Amount
		}

		record := a.buildRecord(fact, project)
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tx_hash"}},
			DoNothing: true,
		}).Create(record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 该交易已应用过（客户端重试，或对账引擎先行一步）
			result.AlreadyApplied = true
			return a.loadSnapshot(tx, fact, project, result)
		}

		if err := a.applyTransition(tx, fact, project); err != nil {
			return err
		}
		return a.loadSnapshot(tx, fact, project, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveProject 定位事实对应的项目。
// confirm路径带链下ID；事件路径带链上ID；创建事件靠元数据哈希匹配草稿。
func (a *Applier) resolveProject(tx *gorm.DB, fact ChainFact) (*model.Project, error) {
	if fact.ProjectID != 0 {
		var project model.Project
		if err := tx.First(&project, fact.ProjectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("project %d not found", fact.ProjectID)
			}
			return nil, err
		}
		return &project, nil
	}

	if fact.OnChainID != nil {
		var project model.Project
		err := tx.Where("on_chain_id = ?", *fact.OnChainID).First(&project).Error
		if err == nil {
			return &project, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// 创建事件先于confirm到达时，草稿还没有链上ID，按元数据哈希匹配
		if fact.Action == ActionCreateProject && fact.ContentHash != "" {
			err = tx.Where("metadata_hash = ? AND status = ?", fact.ContentHash, model.ProjectStatusDraft).
				Order("created_at ASC").First(&project).Error
			if err == nil {
				return &project, nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
		}
		return nil, apperr.NotFound("project with on-chain id %d not found", *fact.OnChainID)
	}

	return nil, apperr.Validation("fact carries neither project id nor on-chain id")
}

// buildRecord 依据动作构造审计台账行
func (a *Applier) buildRecord(fact ChainFact, project *model.Project) *model.TransactionRecord {
	record := &model.TransactionRecord{
		TxHash:      fact.TxHash,
		ProjectID:   project.ID,
		BlockNumber: fact.BlockNumber,
		Amount:      decimal.Zero,
	}

	switch fact.Action {
	case ActionCreateProject:
		record.Category = model.CategoryCreation
		record.FromAddress = project.CreatorAddress
	case ActionApproveApplication:
		// 链上批准即托管入金：创建者在这笔交易里存入全额预算
		record.Category = model.CategoryDeposit
		record.Amount = project.Budget
		record.FromAddress = project.CreatorAddress
	case ActionSubmitMilestone:
		// 交付物锚定交易不含价值流转，只计协议费审计行
		record.Category = model.CategoryFee
		record.FromAddress = fact.Actor
	case ActionApproveMilestone:
		record.Category = model.CategoryMilestonePayment
		record.Amount = fact.Amount
		record.FromAddress = project.CreatorAddress
		record.ToAddress = project.CollaboratorAddress
	case ActionCancelProject:
		record.Category = model.CategoryRefund
		record.Amount = project.Remaining()
		record.ToAddress = project.CreatorAddress
	case ActionRaiseDispute:
		record.Category = model.CategoryDisputeResolution
		record.FromAddress = fact.Actor
	case ActionResolveDispute:
		record.Category = model.CategoryDisputeResolution
		record.Amount = project.Remaining()
		if fact.Resolution == ResolutionRelease {
			record.ToAddress = project.CollaboratorAddress
		} else {
			record.ToAddress = project.CreatorAddress
		}
	case ActionRoyalty:
		record.Category = model.CategoryRoyalty
		record.Amount = fact.Amount
		record.ToAddress = fact.Actor
	}

	return record
}

// applyTransition 执行动作对应的状态转换及副作用
func (a *Applier) applyTransition(tx *gorm.DB, fact ChainFact, project *model.Project) error {
	switch fact.Action {
	case ActionCreateProject:
		return a.applyCreate(tx, fact, project)
	case ActionApproveApplication:
		return a.applyApproveApplication(tx, fact, project)
	case ActionSubmitMilestone:
		return a.applySubmit(tx, fact, project)
	case ActionApproveMilestone:
		return a.applyApprove(tx, fact, project)
	case ActionCancelProject:
		return a.applyCancel(tx, fact, project)
	case ActionRaiseDispute:
		return a.applyRaiseDispute(tx, fact, project)
	case ActionResolveDispute:
		return a.applyResolveDispute(tx, fact, project)
	case ActionRoyalty:
		// 外部授权子系统的版税只透传台账，不派生实体状态
		return nil
	default:
		return apperr.Validation("unknown action %q", fact.Action)
	}
}

// applyCreate 创建确认：草稿转open，链上ID只分配一次
func (a *Applier) applyCreate(tx *gorm.DB, fact ChainFact, project *model.Project) error {
	if project.OnChainID != nil {
		if fact.OnChainID != nil && *project.OnChainID != *fact.OnChainID {
			return apperr.Conflict("project %d already bound to on-chain id %d", project.ID, *project.OnChainID)
		}
		return apperr.InvalidTransition("project %d creation already confirmed", project.ID)
	}

	extra := map[string]interface{}{
		"chain_tx_hash":      fact.TxHash,
		"chain_block_number": fact.BlockNumber,
	}
	if fact.OnChainID != nil {
		extra["on_chain_id"] = *fact.OnChainID
	}

	changed, err := transitionProject(tx, project.ID, model.ProjectStatusDraft, model.ProjectStatusOpen, extra)
	if err != nil {
		return err
	}
	if !changed {
		return apperr.InvalidTransition("project %d is no longer a draft", project.ID)
	}
	return nil
}

// applyApproveApplication 批准申请确认：含全部原子副作用
func (a *Applier) applyApproveApplication(tx *gorm.DB, fact ChainFact, project *model.Project) error {
	var app model.Application
	err := tx.Where("project_id = ? AND applicant_address = ? AND status = ?",
		project.ID, fact.Collaborator, model.ApplicationStatusPending).
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("no pending application for %s on project %d", fact.Collaborator, project.ID)
		}
		return err
	}
	return approveApplicationTx(tx, &app, project, fact.TxHash, fact.BlockNumber)
}

// applySubmit 交付物提交确认：旧交付物归档后进入submitted
func (a *Applier) applySubmit(tx *gorm.DB, fact ChainFact, project *model.Project) error {
	milestone, err := findMilestone(tx, project.ID, fact.MilestoneIndex)
	if err != nil {
		return err
	}

	if err := archiveDeliverable(tx, milestone); err != nil {
		return err
	}

	now := time.Now()
	extra := map[string]interface{}{
		"deliverable_hash":   fact.ContentHash,
		"submitted_at":       &now,
		"revision_count":     milestone.RevisionCount + 1,
		"chain_tx_hash":      fact.TxHash,
		"chain_block_number": fact.BlockNumber,
	}

	changed, err := transitionMilestone(tx, milestone.ID, milestone.Status, model.MilestoneStatusSubmitted, extra)
	if err != nil {
		return err
	}
	if !changed {
		return apperr.InvalidTransition("milestone %d is no longer %s", milestone.ID, milestone.Status)
	}
	return nil
}

// applyApprove 里程碑放款确认：付款累计、顺序解锁、最后一个触发项目完结
func (a *Applier) applyApprove(tx *gorm.DB, fact ChainFact, project *model.Project) error {
	milestone, err := findMilestone(tx, project.ID, fact.MilestoneIndex)
	if err != nil {
		return err
	}

	paid := project.TotalPaid.Add(milestone.Amount)
	if paid.GreaterThan(project.Budget) {
		return apperr.Conflict("payment %s would exceed project budget %s", paid, project.Budget)
	}

	now := time.Now()
	changed, err := transitionMilestone(tx, milestone.ID, milestone.Status, model.MilestoneStatusApproved,
		map[string]interface{}{
			"reviewed_at":                 &now,
			"chain_approval_tx_hash":      fact.TxHash,
			"chain_approval_block_number": fact.BlockNumber,
		})
	if err != nil {
		return err
	}
	if !changed {
		return apperr.InvalidTransition("milestone %d is no longer %s", milestone.ID, milestone.Status)
	}

	if err := tx.Model(&model.Project{}).Where("id = ?", project.ID).
		Update("total_paid", paid).Error; err != nil {
		return err
	}
	project.TotalPaid = paid

	// 顺序解锁：下一个pending里程碑进入in_progress，没有则项目完结
	next, err := nextPendingMilestone(tx, project.ID, milestone.MilestoneIndex)
	if err != nil {
		return err
	}
	if next != nil {
		_, err := transitionMilestone(tx, next.ID, model.MilestoneStatusPending, model.MilestoneStatusInProgress, nil)
		return err
	}

	done, err := allMilestonesApproved(tx, project.ID)
	if err != nil {
		return err
	}
	if done {
		changed, err := transitionProject(tx, project.ID, model.ProjectStatusInProgress, model.ProjectStatusCompleted, nil)
		if err != nil {
			return err
		}
		if !changed {
			return apperr.InvalidTransition("project %d is no longer in progress", project.ID)
		}
	}
	return nil
}

// applyCancel 取消确认：open或in_progress转cancelled
func (a *Applier) applyCancel(tx *gorm.DB, fact ChainFact, project *model.Project) error {
	if project.Status != model.ProjectStatusOpen && project.Status != model.ProjectStatusInProgress {
		return apperr.InvalidTransition("project %d cannot be cancelled from %s", project.ID, project.Status)
	}
	changed, err := transitionProject(tx, project.ID, project.Status, model.ProjectStatusCancelled, nil)
	if err != nil {
		return err
	}
	if !changed {
		return apperr.InvalidTransition("project %d is no longer %s", project.ID, project.Status)
	}
	return nil
}

// applyRaiseDispute 争议发起确认
func (a *Applier) applyRaiseDispute(tx *gorm.DB, fact ChainFact, project *model.Project) error {
	changed, err := transitionProject(tx, project.ID, model.ProjectStatusInProgress, model.ProjectStatusDisputed, nil)
	if err != nil {
		return err
	}
	if !changed {
		return apperr.InvalidTransition("project %d is not in progress", project.ID)
	}
	return nil
}

// applyResolveDispute 争议裁决确认：release完结，refund取消
func (a *Applier) applyResolveDispute(tx *gorm.DB, fact ChainFact, project *model.Project) error {
	var target model.ProjectStatus
	var extra map[string]interface{}
	switch fact.Resolution {
	case ResolutionRelease:
		target = model.ProjectStatusCompleted
		extra = map[string]interface{}{"total_paid": project.Budget}
	case ResolutionRefund:
		target = model.ProjectStatusCancelled
	default:
		return apperr.Validation("unknown dispute resolution %q", fact.Resolution)
	}

	changed, err := transitionProject(tx, project.ID, model.ProjectStatusDisputed, target, extra)
	if err != nil {
		return err
	}
	if !changed {
		return apperr.InvalidTransition("project %d is not disputed", project.ID)
	}
	return nil
}

// loadSnapshot 加载应用后的实体快照
func (a *Applier) loadSnapshot(tx *gorm.DB, fact ChainFact, project *model.Project, result *ApplyResult) error {
	var fresh model.Project
	if err := tx.First(&fresh, project.ID).Error; err != nil {
		return err
	}
	result.Project = &fresh

	switch fact.Action {
	case ActionSubmitMilestone, ActionApproveMilestone:
		milestone, err := findMilestone(tx, project.ID, fact.MilestoneIndex)
		if err != nil {
			return err
		}
		result.Milestone = milestone
	case ActionApproveApplication:
		var app model.Application
		err := tx.Where("project_id = ? AND applicant_address = ?", project.ID, fact.Collaborator).
			First(&app).Error
		if err == nil {
			result.Application = &app
		}
	}
	return nil
}

// findMilestone 在事务内按 (项目, 索引) 读取里程碑
func findMilestone(tx *gorm.DB, projectID uint, index int) (*model.Milestone, error) {
	var milestone model.Milestone
	err := tx.Where("project_id = ? AND milestone_index = ?", projectID, index).First(&milestone).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("milestone %d of project %d not found", index, projectID)
		}
		return nil, err
	}
	return &milestone, nil
}
