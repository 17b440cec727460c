package logic

import (
	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
)

// 每种实体一张显式的状态转换表，所有状态变更都经过这里检查。
// 新增状态只需改表，不存在散落在各处的条件判断。

// projectTransitions 项目允许的状态转换
var projectTransitions = map[model.ProjectStatus][]model.ProjectStatus{
	model.ProjectStatusDraft:      {model.ProjectStatusOpen},
	model.ProjectStatusOpen:       {model.ProjectStatusInProgress, model.ProjectStatusCancelled},
	model.ProjectStatusInProgress: {model.ProjectStatusCompleted, model.ProjectStatusDisputed, model.ProjectStatusCancelled},
	// 争议裁决要么放款完结、要么退款取消，不允许回退
	model.ProjectStatusDisputed:  {model.ProjectStatusCompleted, model.ProjectStatusCancelled},
	model.ProjectStatusCompleted: {},
	model.ProjectStatusCancelled: {},
}

// milestoneTransitions 里程碑允许的状态转换
var milestoneTransitions = map[model.MilestoneStatus][]model.MilestoneStatus{
	model.MilestoneStatusPending:    {model.MilestoneStatusInProgress},
	model.MilestoneStatusInProgress: {model.MilestoneStatusSubmitted},
	model.MilestoneStatusSubmitted: {
		model.MilestoneStatusApproved,
		model.MilestoneStatusRejected,
		model.MilestoneStatusRevisionRequested,
	},
	// 驳回或要求修改后可重新提交，旧交付物归档到历史版本
	model.MilestoneStatusRejected:          {model.MilestoneStatusSubmitted},
	model.MilestoneStatusRevisionRequested: {model.MilestoneStatusSubmitted},
	model.MilestoneStatusApproved:          {},
}

// applicationTransitions 申请允许的状态转换，非pending均为终态
var applicationTransitions = map[model.ApplicationStatus][]model.ApplicationStatus{
	model.ApplicationStatusPending: {
		model.ApplicationStatusApproved,
		model.ApplicationStatusRejected,
		model.ApplicationStatusWithdrawn,
	},
	model.ApplicationStatusApproved:  {},
	model.ApplicationStatusRejected:  {},
	model.ApplicationStatusWithdrawn: {},
}

// CheckProjectTransition 检查项目状态转换是否合法
func CheckProjectTransition(from, to model.ProjectStatus) error {
	for _, allowed := range projectTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return apperr.InvalidTransition("project transition %s -> %s not allowed", from, to)
}

// CheckMilestoneTransition 检查里程碑状态转换是否合法
func CheckMilestoneTransition(from, to model.MilestoneStatus) error {
	for _, allowed := range milestoneTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return apperr.InvalidTransition("milestone transition %s -> %s not allowed", from, to)
}

// CheckApplicationTransition 检查申请状态转换是否合法
func CheckApplicationTransition(from, to model.ApplicationStatus) error {
	for _, allowed := range applicationTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return apperr.InvalidTransition("application transition %s -> %s not allowed", from, to)
}
