package logic

import (
	"github.com/google/uuid"
	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"gorm.io/gorm"
)

// ConfirmRequest 确认请求：客户端自行提交链上交易后，带着交易哈希回调。
type ConfirmRequest struct {
	Action        Action
	ProjectID     uint
	MilestoneID   uint
	ApplicationID string
	Actor         string
	TxHash        string
	BlockNumber   uint64
	OnChainID     *uint64 // create_project 确认时由回执带回
	ContentHash   string  // submit_milestone 确认时的交付物哈希
	Resolution    string  // resolve_dispute
}

// Confirmer 确认协议的confirm侧。把请求归一化为ChainFact后走与对账
// 引擎完全相同的幂等应用路径；重复确认返回既有结果，不再变更实体。
type Confirmer struct {
	db      *gorm.DB
	applier *Applier
}

// NewConfirmer 创建confirmer
func NewConfirmer(db *gorm.DB) *Confirmer {
	return &Confirmer{db: db, applier: NewApplier(db)}
}

// Confirm 应用确认
func (c *Confirmer) Confirm(req ConfirmRequest) (*ApplyResult, error) {
	if !ValidTxHash(req.TxHash) {
		return nil, apperr.Validation("invalid transaction hash %q", req.TxHash)
	}

	fact, err := c.buildFact(req)
	if err != nil {
		return nil, err
	}
	return c.applier.Apply(*fact)
}

// buildFact 从confirm请求推导链上事实
func (c *Confirmer) buildFact(req ConfirmRequest) (*ChainFact, error) {
	fact := &ChainFact{
		Action:      req.Action,
		Actor:       req.Actor,
		TxHash:      req.TxHash,
		BlockNumber: req.BlockNumber,
		ContentHash: req.ContentHash,
		Resolution:  req.Resolution,
		OnChainID:   req.OnChainID,
	}

	switch req.Action {
	case ActionCreateProject, ActionCancelProject, ActionRaiseDispute, ActionResolveDispute:
		if req.ProjectID == 0 {
			return nil, apperr.Validation("project id is required for action %s", req.Action)
		}
		fact.ProjectID = req.ProjectID

	case ActionSubmitMilestone, ActionApproveMilestone:
		if req.MilestoneID == 0 {
			return nil, apperr.Validation("milestone id is required for action %s", req.Action)
		}
		var milestone model.Milestone
		if err := c.db.First(&milestone, req.MilestoneID).Error; err != nil {
			return nil, apperr.NotFound("milestone %d not found", req.MilestoneID)
		}
		fact.ProjectID = milestone.ProjectID
		fact.MilestoneIndex = milestone.MilestoneIndex

	case ActionApproveApplication:
		appID, err := parseApplicationID(req.ApplicationID)
		if err != nil {
			return nil, err
		}
		var app model.Application
		if err := c.db.First(&app, "id = ?", appID).Error; err != nil {
			return nil, apperr.NotFound("application %s not found", req.ApplicationID)
		}
		fact.ProjectID = app.ProjectID
		fact.Collaborator = app.ApplicantAddress

	default:
		return nil, apperr.Validation("unknown action %q", req.Action)
	}

	return fact, nil
}

// parseApplicationID 解析申请UUID
func parseApplicationID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid application id %q", id)
	}
	return parsed, nil
}
