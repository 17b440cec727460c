package logic

import (
	"testing"

	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewMilestone(t *testing.T) {
	db := newTestDB(t)
	project := seedInProgress(t, db, 7, 100)
	ml := NewMilestoneLogic(db)

	_, err := NewApplier(db).Apply(ChainFact{
		Action: ActionSubmitMilestone, ProjectID: project.ID, MilestoneIndex: 0,
		Actor: collaboratorAddr, ContentHash: deliverableHash, TxHash: txHash(3), BlockNumber: 120,
	})
	require.NoError(t, err)

	m0, err := ml.GetMilestoneByIndex(project.ID, 0)
	require.NoError(t, err)

	// 只有创建者能审核
	_, err = ml.ReviewMilestone(m0.ID, collaboratorAddr, model.MilestoneStatusRejected, "")
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	// 审核只能驳回或要求修改，放款走链上确认
	_, err = ml.ReviewMilestone(m0.ID, creatorAddr, model.MilestoneStatusApproved, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	reviewed, err := ml.ReviewMilestone(m0.ID, creatorAddr, model.MilestoneStatusRejected, "off brief")
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneStatusRejected, reviewed.Status)
	assert.Equal(t, "off brief", reviewed.ReviewNotes)
	require.NotNil(t, reviewed.ReviewedAt)

	// 已驳回的不能再审核
	_, err = ml.ReviewMilestone(m0.ID, creatorAddr, model.MilestoneStatusRejected, "")
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
}

func TestReviewMilestoneNotSubmitted(t *testing.T) {
	db := newTestDB(t)
	project := seedInProgress(t, db, 7, 100)
	ml := NewMilestoneLogic(db)

	m0, err := ml.GetMilestoneByIndex(project.ID, 0)
	require.NoError(t, err)

	_, err = ml.ReviewMilestone(m0.ID, creatorAddr, model.MilestoneStatusRejected, "")
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
}
