package logic

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/krnkiran22/ip-escrow-sub001/internal/database"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	creatorAddr      = "0x1111111111111111111111111111111111111111"
	collaboratorAddr = "0x2222222222222222222222222222222222222222"
	arbiterAddr      = "0x3333333333333333333333333333333333333333"
	otherAddr        = "0x4444444444444444444444444444444444444444"

	metaHash        = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	deliverableHash = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// txHash 生成确定性的合法交易哈希
func txHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

// seedDraft 建一个草稿项目，预算为各里程碑金额之和
func seedDraft(t *testing.T, db *gorm.DB, amounts ...int64) *model.Project {
	t.Helper()
	budget := decimal.Zero
	milestones := make([]model.Milestone, len(amounts))
	for i, a := range amounts {
		milestones[i] = model.Milestone{
			Title:  fmt.Sprintf("Milestone %d", i),
			Amount: dec(a),
		}
		budget = budget.Add(dec(a))
	}
	project := &model.Project{
		Title:          "Brand identity package",
		CreatorAddress: creatorAddr,
		MetadataHash:   metaHash,
		Budget:         budget,
	}
	require.NoError(t, NewProjectLogic(db).CreateDraft(project, milestones))
	return project
}

// seedOpen 草稿加创建确认，项目进入open并绑定链上ID
func seedOpen(t *testing.T, db *gorm.DB, onChainID uint64, amounts ...int64) *model.Project {
	t.Helper()
	project := seedDraft(t, db, amounts...)
	res, err := NewApplier(db).Apply(ChainFact{
		Action:      ActionCreateProject,
		ProjectID:   project.ID,
		OnChainID:   &onChainID,
		ContentHash: metaHash,
		TxHash:      txHash(9000 + int(onChainID)),
		BlockNumber: 100,
	})
	require.NoError(t, err)
	return res.Project
}

// seedInProgress open项目加一个已批准的合作申请
func seedInProgress(t *testing.T, db *gorm.DB, onChainID uint64, amounts ...int64) *model.Project {
	t.Helper()
	project := seedOpen(t, db, onChainID, amounts...)
	app := &model.Application{
		ProjectID:        project.ID,
		ApplicantAddress: collaboratorAddr,
		Proposal:         "I can deliver this",
	}
	require.NoError(t, NewApplicationLogic(db).CreateApplication(app))

	res, err := NewApplier(db).Apply(ChainFact{
		Action:       ActionApproveApplication,
		ProjectID:    project.ID,
		Collaborator: collaboratorAddr,
		TxHash:       txHash(9500 + int(onChainID)),
		BlockNumber:  110,
	})
	require.NoError(t, err)
	return res.Project
}
