package logic

import (
	"testing"

	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareCreateProject(t *testing.T) {
	db := newTestDB(t)
	project := seedDraft(t, db, 100, 200)
	p := NewPreparer(db, arbiterAddr)

	// 只有创建者能提交创建交易
	_, err := p.Prepare(PrepareRequest{Action: ActionCreateProject, ProjectID: project.ID, Actor: otherAddr})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	resp, err := p.Prepare(PrepareRequest{Action: ActionCreateProject, ProjectID: project.ID, Actor: creatorAddr})
	require.NoError(t, err)
	assert.Equal(t, "createProject", resp.ContractFunction)
	assert.Equal(t, metaHash, resp.ContractParams["metadataHash"])
	assert.Equal(t, "300", resp.ContractParams["budget"])
	assert.Equal(t, []string{"100", "200"}, resp.ContractParams["milestoneAmounts"])

	// prepare零副作用，可重复调用
	_, err = p.Prepare(PrepareRequest{Action: ActionCreateProject, ProjectID: project.ID, Actor: creatorAddr})
	require.NoError(t, err)

	fresh, err := NewProjectLogic(db).GetProject(project.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusDraft, fresh.Status)
}

func TestPrepareCreateNonDraft(t *testing.T) {
	db := newTestDB(t)
	project := seedOpen(t, db, 7, 100)
	p := NewPreparer(db, arbiterAddr)

	_, err := p.Prepare(PrepareRequest{Action: ActionCreateProject, ProjectID: project.ID, Actor: creatorAddr})
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
}

func TestPrepareApproveApplication(t *testing.T) {
	db := newTestDB(t)
	project := seedOpen(t, db, 7, 100, 200)
	app := &model.Application{ProjectID: project.ID, ApplicantAddress: collaboratorAddr, Proposal: "x"}
	require.NoError(t, NewApplicationLogic(db).CreateApplication(app))
	p := NewPreparer(db, arbiterAddr)

	// 只有创建者能批准
	_, err := p.Prepare(PrepareRequest{
		Action: ActionApproveApplication, ApplicationID: app.ID.String(), Actor: collaboratorAddr,
	})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	resp, err := p.Prepare(PrepareRequest{
		Action: ActionApproveApplication, ApplicationID: app.ID.String(), Actor: creatorAddr,
	})
	require.NoError(t, err)
	assert.Equal(t, "approveCollaborator", resp.ContractFunction)
	assert.EqualValues(t, 7, resp.ContractParams["projectId"])
	assert.Equal(t, collaboratorAddr, resp.ContractParams["collaborator"])
	assert.Equal(t, "300", resp.ContractParams["deposit"])
}

func TestPrepareApproveApplicationBadID(t *testing.T) {
	db := newTestDB(t)
	p := NewPreparer(db, arbiterAddr)

	_, err := p.Prepare(PrepareRequest{Action: ActionApproveApplication, ApplicationID: "not-a-uuid", Actor: creatorAddr})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestPrepareSubmitMilestone(t *testing.T) {
	db := newTestDB(t)
	project := seedInProgress(t, db, 7, 100, 200)
	p := NewPreparer(db, arbiterAddr)

	m0, err := NewMilestoneLogic(db).GetMilestoneByIndex(project.ID, 0)
	require.NoError(t, err)
	m1, err := NewMilestoneLogic(db).GetMilestoneByIndex(project.ID, 1)
	require.NoError(t, err)

	// 只有合作者能提交
	_, err = p.Prepare(PrepareRequest{
		Action: ActionSubmitMilestone, MilestoneID: m0.ID, Actor: creatorAddr, ContentHash: deliverableHash,
	})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	// pending里程碑不可提交（1号还没解锁）
	_, err = p.Prepare(PrepareRequest{
		Action: ActionSubmitMilestone, MilestoneID: m1.ID, Actor: collaboratorAddr, ContentHash: deliverableHash,
	})
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))

	// 交付物哈希格式校验
	_, err = p.Prepare(PrepareRequest{
		Action: ActionSubmitMilestone, MilestoneID: m0.ID, Actor: collaboratorAddr, ContentHash: "junk",
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	resp, err := p.Prepare(PrepareRequest{
		Action: ActionSubmitMilestone, MilestoneID: m0.ID, Actor: collaboratorAddr, ContentHash: deliverableHash,
	})
	require.NoError(t, err)
	assert.Equal(t, "submitMilestone", resp.ContractFunction)
	assert.Equal(t, 0, resp.ContractParams["milestoneIndex"])
	assert.Equal(t, deliverableHash, resp.ContractParams["deliverableHash"])
}

func TestPrepareApproveMilestone(t *testing.T) {
	db := newTestDB(t)
	project := seedInProgress(t, db, 7, 100)
	p := NewPreparer(db, arbiterAddr)

	m0, err := NewMilestoneLogic(db).GetMilestoneByIndex(project.ID, 0)
	require.NoError(t, err)

	// 未提交的里程碑不可批准
	_, err = p.Prepare(PrepareRequest{Action: ActionApproveMilestone, MilestoneID: m0.ID, Actor: creatorAddr})
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))

	_, err = NewApplier(db).Apply(ChainFact{
		Action: ActionSubmitMilestone, ProjectID: project.ID, MilestoneIndex: 0,
		Actor: collaboratorAddr, ContentHash: deliverableHash, TxHash: txHash(3), BlockNumber: 120,
	})
	require.NoError(t, err)

	// 只有创建者能批准放款
	_, err = p.Prepare(PrepareRequest{Action: ActionApproveMilestone, MilestoneID: m0.ID, Actor: collaboratorAddr})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	resp, err := p.Prepare(PrepareRequest{Action: ActionApproveMilestone, MilestoneID: m0.ID, Actor: creatorAddr})
	require.NoError(t, err)
	assert.Equal(t, "approveMilestone", resp.ContractFunction)
	assert.Equal(t, "100", resp.ContractParams["amount"])
}

func TestPrepareCancel(t *testing.T) {
	db := newTestDB(t)
	project := seedOpen(t, db, 7, 100)
	p := NewPreparer(db, arbiterAddr)

	_, err := p.Prepare(PrepareRequest{Action: ActionCancelProject, ProjectID: project.ID, Actor: otherAddr})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	resp, err := p.Prepare(PrepareRequest{Action: ActionCancelProject, ProjectID: project.ID, Actor: creatorAddr})
	require.NoError(t, err)
	assert.Equal(t, "cancelProject", resp.ContractFunction)
}

func TestPrepareRaiseDispute(t *testing.T) {
	db := newTestDB(t)
	project := seedInProgress(t, db, 7, 100)
	p := NewPreparer(db, arbiterAddr)

	// 双方任一均可发起，外人不行
	_, err := p.Prepare(PrepareRequest{Action: ActionRaiseDispute, ProjectID: project.ID, Actor: otherAddr})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	for _, actor := range []string{creatorAddr, collaboratorAddr} {
		resp, err := p.Prepare(PrepareRequest{Action: ActionRaiseDispute, ProjectID: project.ID, Actor: actor})
		require.NoError(t, err)
		assert.Equal(t, "raiseDispute", resp.ContractFunction)
	}
}

func TestPrepareResolveDispute(t *testing.T) {
	db := newTestDB(t)
	project := seedInProgress(t, db, 7, 100)
	_, err := NewApplier(db).Apply(ChainFact{
		Action: ActionRaiseDispute, ProjectID: project.ID, Actor: creatorAddr,
		TxHash: txHash(3), BlockNumber: 120,
	})
	require.NoError(t, err)
	p := NewPreparer(db, arbiterAddr)

	// 只有裁决人能裁决，项目双方都不行
	for _, actor := range []string{creatorAddr, collaboratorAddr} {
		_, err := p.Prepare(PrepareRequest{
			Action: ActionResolveDispute, ProjectID: project.ID, Actor: actor, Resolution: ResolutionRelease,
		})
		assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	}

	_, err = p.Prepare(PrepareRequest{
		Action: ActionResolveDispute, ProjectID: project.ID, Actor: arbiterAddr, Resolution: "split",
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	resp, err := p.Prepare(PrepareRequest{
		Action: ActionResolveDispute, ProjectID: project.ID, Actor: arbiterAddr, Resolution: ResolutionRelease,
	})
	require.NoError(t, err)
	assert.Equal(t, "resolveDispute", resp.ContractFunction)
	assert.Equal(t, true, resp.ContractParams["release"])
}

func TestPrepareUnknownAction(t *testing.T) {
	db := newTestDB(t)
	p := NewPreparer(db, arbiterAddr)
	_, err := p.Prepare(PrepareRequest{Action: "mint_tokens", Actor: creatorAddr})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
