package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logic"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProjectHandler struct {
	projectLogic   *logic.ProjectLogic
	milestoneLogic *logic.MilestoneLogic
}

func NewProjectHandler(db *gorm.DB) *ProjectHandler {
	return &ProjectHandler{
		projectLogic:   logic.NewProjectLogic(db),
		milestoneLogic: logic.NewMilestoneLogic(db),
	}
}

// CreateProjectRequest 创建项目草稿请求
type CreateProjectRequest struct {
	Title        string             `json:"title" binding:"required"`
	Description  string             `json:"description"`
	Category     string             `json:"category"`
	Budget       decimal.Decimal    `json:"budget" binding:"required"`
	MetadataHash string             `json:"metadata_hash" binding:"required"`
	Milestones   []MilestoneRequest `json:"milestones" binding:"required"`
}

// MilestoneRequest 里程碑创建请求
type MilestoneRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
}

// CreateProject 创建项目草稿（创建交易确认后才进入open状态）
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	actor := actorAddress(c)
	if actor == "" {
		FailWith(c, apperr.Validation("wallet address header is required"))
		return
	}

	project := model.Project{
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Budget:         req.Budget,
		MetadataHash:   req.MetadataHash,
		CreatorAddress: actor,
	}
	milestones := make([]model.Milestone, len(req.Milestones))
	for i, m := range req.Milestones {
		milestones[i] = model.Milestone{
			Title:       m.Title,
			Description: m.Description,
			Amount:      m.Amount,
		}
	}

	if err := h.projectLogic.CreateDraft(&project, milestones); err != nil {
		FailWith(c, err)
		return
	}

	project.Milestones = milestones
	SuccessResponse(c, http.StatusCreated, "project draft created", project)
}

// GetProjects 获取项目列表
func (h *ProjectHandler) GetProjects(c *gin.Context) {
	status := c.Query("status")
	category := c.Query("category")
	creator := c.Query("creator")
	page, pageSize := pageParams(c)

	projects, total, err := h.projectLogic.GetProjects(status, category, creator, page, pageSize)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", gin.H{
		"projects":   projects,
		"pagination": NewPagination(page, pageSize, total),
	})
}

// GetProject 获取项目详情
func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		FailWith(c, err)
		return
	}

	project, err := h.projectLogic.GetProject(id)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", project)
}

// GetProjectMilestones 获取项目里程碑列表
func (h *ProjectHandler) GetProjectMilestones(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		FailWith(c, err)
		return
	}

	milestones, err := h.milestoneLogic.GetProjectMilestones(id)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", milestones)
}

// idParam 解析路径中的数字ID
func idParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, apperr.Validation("invalid id %q", c.Param("id"))
	}
	return uint(id), nil
}

// pageParams 解析分页参数
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

// actorAddress 调用方钱包地址（鉴权网关注入，超出本服务范围）
func actorAddress(c *gin.Context) string {
	return c.GetHeader("X-Wallet-Address")
}
