package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logic"
	"gorm.io/gorm"
)

type TransactionHandler struct {
	transactionLogic *logic.TransactionLogic
}

func NewTransactionHandler(db *gorm.DB) *TransactionHandler {
	return &TransactionHandler{
		transactionLogic: logic.NewTransactionLogic(db),
	}
}

// GetTransactions 获取交易台账列表
func (h *TransactionHandler) GetTransactions(c *gin.Context) {
	projectID, _ := strconv.ParseUint(c.DefaultQuery("project_id", "0"), 10, 32)
	category := c.Query("category")
	address := c.Query("address")
	page, pageSize := pageParams(c)

	records, total, err := h.transactionLogic.GetTransactions(uint(projectID), category, address, page, pageSize)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", gin.H{
		"transactions": records,
		"pagination":   NewPagination(page, pageSize, total),
	})
}

// GetVolumeStats 按分类统计成交量
func (h *TransactionHandler) GetVolumeStats(c *gin.Context) {
	rows, err := h.transactionLogic.GetVolumeByCategory()
	if err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", rows)
}

// GetAddressStats 统计单个地址的出入金
func (h *TransactionHandler) GetAddressStats(c *gin.Context) {
	address := c.Param("address")
	if address == "" {
		FailWith(c, apperr.Validation("address is required"))
		return
	}

	row, err := h.transactionLogic.GetVolumeByAddress(address)
	if err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", row)
}
