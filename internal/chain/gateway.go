package chain

import (
	"context"
	"time"
)

// Event 归一化后的合约事件日志
type Event struct {
	Name        string
	Args        map[string]interface{}
	TxHash      string
	BlockNumber uint64
	LogIndex    uint
}

// Receipt 交易回执摘要
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Success     bool
}

// Gateway 链访问网关抽象。引擎只依赖这个接口，进程启动时构造一次、
// 显式注入，不允许当全局单例使用。
type Gateway interface {
	// CurrentBlockNumber 获取链头区块号
	CurrentBlockNumber(ctx context.Context) (uint64, error)
	// FilterEvents 查询 [fromBlock, toBlock] 区间内托管合约的事件，按区块升序返回
	FilterEvents(ctx context.Context, fromBlock, toBlock uint64) ([]Event, error)
	// SubscribeEvents 订阅新事件。返回的channel在订阅断开时关闭。
	SubscribeEvents(ctx context.Context) (<-chan Event, <-chan error, error)
	// TransactionReceipt 获取交易回执
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
	// BlockTimestamp 获取区块时间戳
	BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}
