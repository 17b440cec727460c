package chain

// 托管合约ABI（事件部分）。合约本体不在本服务范围内，这里只需要
// 解析事件所需的签名定义。
const escrowContractABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": true, "name": "creator", "type": "address"},
			{"indexed": false, "name": "budget", "type": "uint256"},
			{"indexed": false, "name": "metadataHash", "type": "string"}
		],
		"name": "ProjectCreated",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": true, "name": "collaborator", "type": "address"},
			{"indexed": false, "name": "deposit", "type": "uint256"}
		],
		"name": "ApplicationApproved",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": false, "name": "milestoneIndex", "type": "uint256"},
			{"indexed": false, "name": "deliverableHash", "type": "string"},
			{"indexed": true, "name": "collaborator", "type": "address"}
		],
		"name": "MilestoneSubmitted",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": false, "name": "milestoneIndex", "type": "uint256"},
			{"indexed": false, "name": "amount", "type": "uint256"},
			{"indexed": true, "name": "collaborator", "type": "address"}
		],
		"name": "MilestoneApproved",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": false, "name": "refundAmount", "type": "uint256"}
		],
		"name": "ProjectCancelled",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": true, "name": "raisedBy", "type": "address"}
		],
		"name": "DisputeRaised",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": false, "name": "released", "type": "bool"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "DisputeResolved",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": true, "name": "recipient", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "RoyaltyPaid",
		"type": "event"
	}
]`
