package logic

import (
	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/content"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"gorm.io/gorm"
)

// PrepareRequest 准备请求。actor是调用方钱包地址，角色永远从实体存储的
// 身份推导，绝不相信客户端自报的角色标志。
type PrepareRequest struct {
	Action        Action
	ProjectID     uint
	MilestoneID   uint
	ApplicationID string
	Actor         string
	ContentHash   string // submit_milestone / create_project 需要
	Resolution    string // resolve_dispute 需要
}

// PrepareResponse 调用方提交链上交易所需的确切参数
type PrepareResponse struct {
	ContractFunction string                 `json:"contract_function"`
	ContractParams   map[string]interface{} `json:"contract_params"`
}

// Preparer 确认协议的prepare侧：纯读取加鉴权校验，零副作用，
// 可以任意次数并发调用。
type Preparer struct {
	db               *gorm.DB
	projectLogic     *ProjectLogic
	milestoneLogic   *MilestoneLogic
	applicationLogic *ApplicationLogic
	arbiterAddress   string
}

// NewPreparer 创建preparer。arbiterAddress是争议裁决人地址（合约部署配置）。
func NewPreparer(db *gorm.DB, arbiterAddress string) *Preparer {
	return &Preparer{
		db:               db,
		projectLogic:     NewProjectLogic(db),
		milestoneLogic:   NewMilestoneLogic(db),
		applicationLogic: NewApplicationLogic(db),
		arbiterAddress:   arbiterAddress,
	}
}

// Prepare 校验角色与状态，返回链上调用参数
func (p *Preparer) Prepare(req PrepareRequest) (*PrepareResponse, error) {
	if req.Actor == "" {
		return nil, apperr.Validation("actor address is required")
	}

	switch req.Action {
	case ActionCreateProject:
		return p.prepareCreate(req)
	case ActionApproveApplication:
		return p.prepareApproveApplication(req)
	case ActionSubmitMilestone:
		return p.prepareSubmit(req)
	case ActionApproveMilestone:
		return p.prepareApproveMilestone(req)
	case ActionCancelProject:
		return p.prepareCancel(req)
	case ActionRaiseDispute:
		return p.prepareRaiseDispute(req)
	case ActionResolveDispute:
		return p.prepareResolveDispute(req)
	default:
		return nil, apperr.Validation("unknown action %q", req.Action)
	}
}

func (p *Preparer) prepareCreate(req PrepareRequest) (*PrepareResponse, error) {
	project, err := p.projectLogic.GetProject(req.ProjectID)
	if err != nil {
		return nil, err
	}
	if !sameAddress(project.CreatorAddress, req.Actor) {
		return nil, apperr.Authorization("only the project creator can submit the creation transaction")
	}
	if project.Status != model.ProjectStatusDraft {
		return nil, apperr.InvalidTransition("project %d is not a draft", project.ID)
	}

	amounts := make([]string, len(project.Milestones))
	for i, m := range project.Milestones {
		amounts[i] = m.Amount.String()
	}

	return &PrepareResponse{
		ContractFunction: "createProject",
		ContractParams: map[string]interface{}{
			"metadataHash":     project.MetadataHash,
			"milestoneAmounts": amounts,
			"budget":           project.Budget.String(),
		},
	}, nil
}

func (p *Preparer) prepareApproveApplication(req PrepareRequest) (*PrepareResponse, error) {
	app, project, err := p.loadApplication(req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !sameAddress(project.CreatorAddress, req.Actor) {
		return nil, apperr.Authorization("only the project creator can approve applications")
	}
	if app.Status != model.ApplicationStatusPending {
		return nil, apperr.InvalidTransition("application %s is not pending", app.ID)
	}
	if project.Status != model.ProjectStatusOpen {
		return nil, apperr.InvalidTransition("project %d is not open", project.ID)
	}
	if err := requireOnChain(project); err != nil {
		return nil, err
	}

	return &PrepareResponse{
		ContractFunction: "approveCollaborator",
		ContractParams: map[string]interface{}{
			"projectId":    *project.OnChainID,
			"collaborator": app.ApplicantAddress,
			"deposit":      project.Budget.String(),
		},
	}, nil
}

func (p *Preparer) prepareSubmit(req PrepareRequest) (*PrepareResponse, error) {
	milestone, project, err := p.loadMilestone(req.MilestoneID)
	if err != nil {
		return nil, err
	}
	if !sameAddress(project.CollaboratorAddress, req.Actor) {
		return nil, apperr.Authorization("only the project collaborator can submit deliverables")
	}
	switch milestone.Status {
	case model.MilestoneStatusInProgress, model.MilestoneStatusRejected, model.MilestoneStatusRevisionRequested:
	default:
		return nil, apperr.InvalidTransition("milestone %d is not submittable from %s", milestone.ID, milestone.Status)
	}
	if !content.ValidHash(req.ContentHash) {
		return nil, apperr.Validation("invalid deliverable content hash")
	}
	if err := requireOnChain(project); err != nil {
		return nil, err
	}

	return &PrepareResponse{
		ContractFunction: "submitMilestone",
		ContractParams: map[string]interface{}{
			"projectId":       *project.OnChainID,
			"milestoneIndex":  milestone.MilestoneIndex,
			"deliverableHash": req.ContentHash,
		},
	}, nil
}

func (p *Preparer) prepareApproveMilestone(req PrepareRequest) (*PrepareResponse, error) {
	milestone, project, err := p.loadMilestone(req.MilestoneID)
	if err != nil {
		return nil, err
	}
	if !sameAddress(project.CreatorAddress, req.Actor) {
		return nil, apperr.Authorization("only the project creator can approve milestones")
	}
	if milestone.Status != model.MilestoneStatusSubmitted {
		return nil, apperr.InvalidTransition("milestone %d is not submitted", milestone.ID)
	}
	if err := requireOnChain(project); err != nil {
		return nil, err
	}

	return &PrepareResponse{
		ContractFunction: "approveMilestone",
		ContractParams: map[string]interface{}{
			"projectId":      *project.OnChainID,
			"milestoneIndex": milestone.MilestoneIndex,
			"amount":         milestone.Amount.String(),
		},
	}, nil
}

func (p *Preparer) prepareCancel(req PrepareRequest) (*PrepareResponse, error) {
	project, err := p.projectLogic.GetProject(req.ProjectID)
	if err != nil {
		return nil, err
	}
	if !sameAddress(project.CreatorAddress, req.Actor) {
		return nil, apperr.Authorization("only the project creator can cancel the project")
	}
	if project.Status != model.ProjectStatusOpen && project.Status != model.ProjectStatusInProgress {
		return nil, apperr.InvalidTransition("project %d cannot be cancelled from %s", project.ID, project.Status)
	}
	if err := requireOnChain(project); err != nil {
		return nil, err
	}

	return &PrepareResponse{
		ContractFunction: "cancelProject",
		ContractParams: map[string]interface{}{
			"projectId": *project.OnChainID,
		},
	}, nil
}

func (p *Preparer) prepareRaiseDispute(req PrepareRequest) (*PrepareResponse, error) {
	project, err := p.projectLogic.GetProject(req.ProjectID)
	if err != nil {
		return nil, err
	}
	if !sameAddress(project.CreatorAddress, req.Actor) && !sameAddress(project.CollaboratorAddress, req.Actor) {
		return nil, apperr.Authorization("only project parties can raise a dispute")
	}
	if project.Status != model.ProjectStatusInProgress {
		return nil, apperr.InvalidTransition("project %d is not in progress", project.ID)
	}
	if err := requireOnChain(project); err != nil {
		return nil, err
	}

	return &PrepareResponse{
		ContractFunction: "raiseDispute",
		ContractParams: map[string]interface{}{
			"projectId": *project.OnChainID,
		},
	}, nil
}

func (p *Preparer) prepareResolveDispute(req PrepareRequest) (*PrepareResponse, error) {
	project, err := p.projectLogic.GetProject(req.ProjectID)
	if err != nil {
		return nil, err
	}
	if !sameAddress(p.arbiterAddress, req.Actor) {
		return nil, apperr.Authorization("only the arbiter can resolve disputes")
	}
	if project.Status != model.ProjectStatusDisputed {
		return nil, apperr.InvalidTransition("project %d is not disputed", project.ID)
	}
	if req.Resolution != ResolutionRelease && req.Resolution != ResolutionRefund {
		return nil, apperr.Validation("resolution must be release or refund")
	}
	if err := requireOnChain(project); err != nil {
		return nil, err
	}

	return &PrepareResponse{
		ContractFunction: "resolveDispute",
		ContractParams: map[string]interface{}{
			"projectId": *project.OnChainID,
			"release":   req.Resolution == ResolutionRelease,
		},
	}, nil
}

// loadMilestone 读取里程碑及所属项目
func (p *Preparer) loadMilestone(id uint) (*model.Milestone, *model.Project, error) {
	milestone, err := p.milestoneLogic.GetMilestone(id)
	if err != nil {
		return nil, nil, err
	}
	project, err := p.projectLogic.GetProject(milestone.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return milestone, project, nil
}

// loadApplication 读取申请及所属项目
func (p *Preparer) loadApplication(id string) (*model.Application, *model.Project, error) {
	appID, err := parseApplicationID(id)
	if err != nil {
		return nil, nil, err
	}
	app, err := p.applicationLogic.GetApplication(appID)
	if err != nil {
		return nil, nil, err
	}
	project, err := p.projectLogic.GetProject(app.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return app, project, nil
}

// requireOnChain 动作要求项目已有链上ID
func requireOnChain(project *model.Project) error {
	if project.OnChainID == nil {
		return apperr.InvalidTransition("project %d has no confirmed on-chain id yet", project.ID)
	}
	return nil
}
