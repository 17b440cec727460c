package reconciler

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/krnkiran22/ip-escrow-sub001/internal/chain"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logic"
	"github.com/shopspring/decimal"
)

// deriveFact 把合约事件推导为归一化链上事实，
// 与confirm接口推导的是同一种结构，保证"链上事实如何变成链下状态转换"
// 只有一条规则。
func deriveFact(ev chain.Event) (*logic.ChainFact, error) {
	fact := &logic.ChainFact{
		TxHash:      ev.TxHash,
		BlockNumber: ev.BlockNumber,
	}

	projectID, err := argUint64(ev.Args, "projectId")
	if err != nil {
		return nil, err
	}
	fact.OnChainID = &projectID

	switch ev.Name {
	case "ProjectCreated":
		fact.Action = logic.ActionCreateProject
		fact.Actor, err = argAddress(ev.Args, "creator")
		if err != nil {
			return nil, err
		}
		fact.ContentHash, err = argString(ev.Args, "metadataHash")
		if err != nil {
			return nil, err
		}

	case "ApplicationApproved":
		fact.Action = logic.ActionApproveApplication
		fact.Collaborator, err = argAddress(ev.Args, "collaborator")
		if err != nil {
			return nil, err
		}

	case "MilestoneSubmitted":
		fact.Action = logic.ActionSubmitMilestone
		fact.MilestoneIndex, err = argInt(ev.Args, "milestoneIndex")
		if err != nil {
			return nil, err
		}
		fact.ContentHash, err = argString(ev.Args, "deliverableHash")
		if err != nil {
			return nil, err
		}
		fact.Actor, err = argAddress(ev.Args, "collaborator")
		if err != nil {
			return nil, err
		}

	case "MilestoneApproved":
		fact.Action = logic.ActionApproveMilestone
		fact.MilestoneIndex, err = argInt(ev.Args, "milestoneIndex")
		if err != nil {
			return nil, err
		}
		fact.Amount, err = argDecimal(ev.Args, "amount")
		if err != nil {
			return nil, err
		}

	case "ProjectCancelled":
		fact.Action = logic.ActionCancelProject

	case "DisputeRaised":
		fact.Action = logic.ActionRaiseDispute
		fact.Actor, err = argAddress(ev.Args, "raisedBy")
		if err != nil {
			return nil, err
		}

	case "DisputeResolved":
		fact.Action = logic.ActionResolveDispute
		released, rerr := argBool(ev.Args, "released")
		if rerr != nil {
			return nil, rerr
		}
		if released {
			fact.Resolution = logic.ResolutionRelease
		} else {
			fact.Resolution = logic.ResolutionRefund
		}

	case "RoyaltyPaid":
		fact.Action = logic.ActionRoyalty
		fact.Actor, err = argAddress(ev.Args, "recipient")
		if err != nil {
			return nil, err
		}
		fact.Amount, err = argDecimal(ev.Args, "amount")
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown event %q", ev.Name)
	}

	return fact, nil
}

func argUint64(args map[string]interface{}, key string) (uint64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("event missing argument %q", key)
	}
	n, ok := v.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("argument %q is not uint256", key)
	}
	return n.Uint64(), nil
}

func argInt(args map[string]interface{}, key string) (int, error) {
	n, err := argUint64(args, key)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func argDecimal(args map[string]interface{}, key string) (decimal.Decimal, error) {
	v, ok := args[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("event missing argument %q", key)
	}
	n, ok := v.(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("argument %q is not uint256", key)
	}
	return decimal.NewFromBigInt(n, 0), nil
}

func argAddress(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("event missing argument %q", key)
	}
	addr, ok := v.(common.Address)
	if !ok {
		return "", fmt.Errorf("argument %q is not an address", key)
	}
	return addr.Hex(), nil
}

func argString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("event missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q is not a string", key)
	}
	return s, nil
}

func argBool(args map[string]interface{}, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, fmt.Errorf("event missing argument %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q is not a bool", key)
	}
	return b, nil
}
