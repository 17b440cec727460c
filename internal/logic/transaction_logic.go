package logic

import (
	"time"

	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionLogic 交易台账业务逻辑（仅统计与查询，不参与鉴权）
type TransactionLogic struct {
	db *gorm.DB
}

// NewTransactionLogic 创建交易台账业务逻辑
func NewTransactionLogic(db *gorm.DB) *TransactionLogic {
	return &TransactionLogic{db: db}
}

// GetTransactions 获取交易列表（按项目/分类/地址过滤，分页）
func (t *TransactionLogic) GetTransactions(projectID uint, category, address string, page, pageSize int) ([]model.TransactionRecord, int64, error) {
	var records []model.TransactionRecord
	var total int64

	query := t.db.Model(&model.TransactionRecord{})
	if projectID > 0 {
		query = query.Where("project_id = ?", projectID)
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if address != "" {
		query = query.Where("from_address = ? OR to_address = ?", address, address)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("block_number DESC").Offset(offset).Limit(pageSize).Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// CategoryVolume 分类成交量统计行
type CategoryVolume struct {
	Category model.TransactionCategory `json:"category"`
	Count    int64                     `json:"count"`
	Volume   decimal.Decimal           `json:"volume"`
}

// GetVolumeByCategory 按分类统计笔数与金额
func (t *TransactionLogic) GetVolumeByCategory() ([]CategoryVolume, error) {
	var rows []CategoryVolume
	err := t.db.Model(&model.TransactionRecord{}).
		Select("category, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS volume").
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// AddressVolume 地址成交量统计行
type AddressVolume struct {
	Address  string          `json:"address"`
	Incoming decimal.Decimal `json:"incoming"`
	Outgoing decimal.Decimal `json:"outgoing"`
}

// GetVolumeByAddress 统计单个地址的出入金
func (t *TransactionLogic) GetVolumeByAddress(address string) (*AddressVolume, error) {
	row := &AddressVolume{Address: address, Incoming: decimal.Zero, Outgoing: decimal.Zero}

	err := t.db.Model(&model.TransactionRecord{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("to_address = ?", address).
		Scan(&row.Incoming).Error
	if err != nil {
		return nil, err
	}

	err = t.db.Model(&model.TransactionRecord{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("from_address = ?", address).
		Scan(&row.Outgoing).Error
	if err != nil {
		return nil, err
	}
	return row, nil
}

// GetUncheckedRecords 获取尚未核对回执的交易（后台轮询任务用）
func (t *TransactionLogic) GetUncheckedRecords(limit int) ([]model.TransactionRecord, error) {
	var records []model.TransactionRecord
	err := t.db.Where("receipt_checked = ?", false).
		Order("block_number ASC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// MarkReceiptChecked 回填区块时间戳并标记回执已核对
func (t *TransactionLogic) MarkReceiptChecked(id uint, blockTime time.Time) error {
	return t.db.Model(&model.TransactionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"receipt_checked": true,
			"block_timestamp": &blockTime,
		}).Error
}
