package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logic"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"gorm.io/gorm"
)

type MilestoneHandler struct {
	milestoneLogic *logic.MilestoneLogic
}

func NewMilestoneHandler(db *gorm.DB) *MilestoneHandler {
	return &MilestoneHandler{
		milestoneLogic: logic.NewMilestoneLogic(db),
	}
}

// GetMilestone 获取里程碑详情
func (h *MilestoneHandler) GetMilestone(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		FailWith(c, err)
		return
	}

	milestone, err := h.milestoneLogic.GetMilestone(id)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", milestone)
}

// GetVersions 获取交付物历史版本
func (h *MilestoneHandler) GetVersions(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		FailWith(c, err)
		return
	}

	versions, err := h.milestoneLogic.GetVersions(id)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", versions)
}

// ReviewRequest 链下审核请求
type ReviewRequest struct {
	Decision string `json:"decision" binding:"required"` // rejected / revision_requested
	Notes    string `json:"notes"`
}

// ReviewMilestone 创建者链下审核（驳回/要求修改）。放款审批走 prepare/confirm。
func (h *MilestoneHandler) ReviewMilestone(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		FailWith(c, err)
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	actor := actorAddress(c)
	if actor == "" {
		FailWith(c, apperr.Validation("wallet address header is required"))
		return
	}

	milestone, err := h.milestoneLogic.ReviewMilestone(id, actor, model.MilestoneStatus(req.Decision), req.Notes)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "milestone reviewed", milestone)
}
