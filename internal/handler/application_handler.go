package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logic"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"gorm.io/gorm"
)

type ApplicationHandler struct {
	applicationLogic *logic.ApplicationLogic
}

func NewApplicationHandler(db *gorm.DB) *ApplicationHandler {
	return &ApplicationHandler{
		applicationLogic: logic.NewApplicationLogic(db),
	}
}

// CreateApplicationRequest 提交申请请求
type CreateApplicationRequest struct {
	Proposal string `json:"proposal" binding:"required"`
}

// CreateApplication 候选合作者提交申请
func (h *ApplicationHandler) CreateApplication(c *gin.Context) {
	projectID, err := idParam(c)
	if err != nil {
		FailWith(c, err)
		return
	}

	var req CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	actor := actorAddress(c)
	if actor == "" {
		FailWith(c, apperr.Validation("wallet address header is required"))
		return
	}

	app := model.Application{
		ProjectID:        projectID,
		ApplicantAddress: actor,
		Proposal:         req.Proposal,
	}
	if err := h.applicationLogic.CreateApplication(&app); err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "application submitted", app)
}

// GetProjectApplications 获取项目申请列表
func (h *ApplicationHandler) GetProjectApplications(c *gin.Context) {
	projectID, err := idParam(c)
	if err != nil {
		FailWith(c, err)
		return
	}

	status := c.Query("status")
	page, pageSize := pageParams(c)

	apps, total, err := h.applicationLogic.GetProjectApplications(projectID, status, page, pageSize)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", gin.H{
		"applications": apps,
		"pagination":   NewPagination(page, pageSize, total),
	})
}

// WithdrawApplication 申请人撤回申请
func (h *ApplicationHandler) WithdrawApplication(c *gin.Context) {
	id, err := applicationIDParam(c)
	if err != nil {
		FailWith(c, err)
		return
	}

	actor := actorAddress(c)
	app, err := h.applicationLogic.WithdrawApplication(id, actor)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "application withdrawn", app)
}

// RejectApplicationRequest 拒绝申请请求
type RejectApplicationRequest struct {
	Notes string `json:"notes"`
}

// RejectApplication 创建者拒绝申请（链下操作）
func (h *ApplicationHandler) RejectApplication(c *gin.Context) {
	id, err := applicationIDParam(c)
	if err != nil {
		FailWith(c, err)
		return
	}

	var req RejectApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	actor := actorAddress(c)
	app, err := h.applicationLogic.RejectApplication(id, actor, req.Notes)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "application rejected", app)
}

// applicationIDParam 解析路径中的申请UUID
func applicationIDParam(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid application id %q", c.Param("id"))
	}
	return id, nil
}
