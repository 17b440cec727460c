package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logic"
	"gorm.io/gorm"
)

// EscrowHandler 确认协议接口：每个带链上交易的动作都暴露
// prepare / confirm 一对调用。
type EscrowHandler struct {
	preparer  *logic.Preparer
	confirmer *logic.Confirmer
}

func NewEscrowHandler(db *gorm.DB, arbiterAddress string) *EscrowHandler {
	return &EscrowHandler{
		preparer:  logic.NewPreparer(db, arbiterAddress),
		confirmer: logic.NewConfirmer(db),
	}
}

// PrepareRequest 准备请求体
type PrepareRequest struct {
	ProjectID     uint   `json:"project_id"`
	MilestoneID   uint   `json:"milestone_id"`
	ApplicationID string `json:"application_id"`
	ContentHash   string `json:"content_hash"`
	Resolution    string `json:"resolution"`
}

// Prepare 校验并返回链上调用参数。纯读取，可重复调用。
func (h *EscrowHandler) Prepare(c *gin.Context) {
	action := logic.Action(c.Param("action"))

	var req PrepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	actor := actorAddress(c)
	if actor == "" {
		FailWith(c, apperr.Validation("wallet address header is required"))
		return
	}

	resp, err := h.preparer.Prepare(logic.PrepareRequest{
		Action:        action,
		ProjectID:     req.ProjectID,
		MilestoneID:   req.MilestoneID,
		ApplicationID: req.ApplicationID,
		Actor:         actor,
		ContentHash:   req.ContentHash,
		Resolution:    req.Resolution,
	})
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", resp)
}

// ConfirmRequest 确认请求体
type ConfirmRequest struct {
	ProjectID     uint    `json:"project_id"`
	MilestoneID   uint    `json:"milestone_id"`
	ApplicationID string  `json:"application_id"`
	TxHash        string  `json:"tx_hash" binding:"required"`
	BlockNumber   uint64  `json:"block_number"`
	OnChainID     *uint64 `json:"on_chain_id"`
	ContentHash   string  `json:"content_hash"`
	Resolution    string  `json:"resolution"`
}

// Confirm 接收交易哈希并应用状态转换。按交易哈希幂等，
// 重复确认返回既有结果。
func (h *EscrowHandler) Confirm(c *gin.Context) {
	action := logic.Action(c.Param("action"))

	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.confirmer.Confirm(logic.ConfirmRequest{
		Action:        action,
		ProjectID:     req.ProjectID,
		MilestoneID:   req.MilestoneID,
		ApplicationID: req.ApplicationID,
		Actor:         actorAddress(c),
		TxHash:        req.TxHash,
		BlockNumber:   req.BlockNumber,
		OnChainID:     req.OnChainID,
		ContentHash:   req.ContentHash,
		Resolution:    req.Resolution,
	})
	if err != nil {
		FailWith(c, err)
		return
	}

	message := "confirmed"
	if result.AlreadyApplied {
		message = "already confirmed"
	}
	SuccessResponse(c, http.StatusOK, message, gin.H{
		"already_applied": result.AlreadyApplied,
		"project":         result.Project,
		"milestone":       result.Milestone,
		"application":     result.Application,
	})
}
