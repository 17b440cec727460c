package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/config"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logger"
)

// Client 基于go-ethereum的链网关实现
type Client struct {
	client       *ethclient.Client
	wsClient     *ethclient.Client // 订阅用，可为空（此时只能轮询）
	contractAddr common.Address
	contractABI  abi.ABI
	callTimeout  time.Duration
	maxRetries   int
}

// NewClient 创建链网关客户端
func NewClient(cfg config.ChainConfig) (*Client, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}

	client, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain RPC: %w", err)
	}

	var wsClient *ethclient.Client
	if cfg.WsUrl != "" {
		wsClient, err = ethclient.Dial(cfg.WsUrl)
		if err != nil {
			// 订阅通道不可用时退化为轮询，不阻止启动
			logger.Warn("Failed to connect to chain WS endpoint, falling back to polling: %v", err)
			wsClient = nil
		}
	}

	parsedABI, err := abi.JSON(strings.NewReader(escrowContractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow contract ABI: %w", err)
	}

	timeout := time.Duration(cfg.CallTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}

	c := &Client{
		client:       client,
		wsClient:     wsClient,
		contractAddr: common.HexToAddress(cfg.ContractAddress),
		contractABI:  parsedABI,
		callTimeout:  timeout,
		maxRetries:   retries,
	}

	// 连接自检
	if _, err := c.CurrentBlockNumber(context.Background()); err != nil {
		return nil, fmt.Errorf("chain connection test failed: %w", err)
	}

	return c, nil
}

// CurrentBlockNumber 获取链头区块号
func (c *Client) CurrentBlockNumber(ctx context.Context) (uint64, error) {
	var blockNum uint64
	err := c.withRetry(ctx, "BlockNumber", func(callCtx context.Context) error {
		var err error
		blockNum, err = c.client.BlockNumber(callCtx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return blockNum, nil
}

// FilterEvents 查询区块区间内托管合约的事件，按 (区块, 日志序号) 升序返回
func (c *Client) FilterEvents(ctx context.Context, fromBlock, toBlock uint64) ([]Event, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contractAddr},
	}

	var logs []types.Log
	err := c.withRetry(ctx, "FilterLogs", func(callCtx context.Context) error {
		var err error
		logs, err = c.client.FilterLogs(callCtx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(logs))
	for _, log := range logs {
		event, err := c.parseLog(log)
		if err != nil {
			// 无法解析的日志不应中断整段处理，交给上层记录后跳过
			logger.Warn("Failed to parse log at block %d tx %s: %v", log.BlockNumber, log.TxHash.Hex(), err)
			events = append(events, Event{
				Name:        "Unknown",
				Args:        map[string]interface{}{"error": err.Error()},
				TxHash:      log.TxHash.Hex(),
				BlockNumber: log.BlockNumber,
				LogIndex:    log.Index,
			})
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// SubscribeEvents 订阅托管合约的新事件
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan Event, <-chan error, error) {
	if c.wsClient == nil {
		return nil, nil, fmt.Errorf("no websocket endpoint configured for subscriptions")
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.contractAddr},
	}

	logCh := make(chan types.Log, 64)
	sub, err := c.wsClient.SubscribeFilterLogs(ctx, query, logCh)
	if err != nil {
		return nil, nil, apperr.ChainUnavailable(err, "failed to subscribe to contract logs")
	}

	eventCh := make(chan Event, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				errCh <- err
				return
			case log := <-logCh:
				event, perr := c.parseLog(log)
				if perr != nil {
					logger.Warn("Failed to parse subscribed log tx %s: %v", log.TxHash.Hex(), perr)
					continue
				}
				eventCh <- event
			}
		}
	}()

	return eventCh, errCh, nil
}

// TransactionReceipt 获取交易回执
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	var receipt *types.Receipt
	err := c.withRetry(ctx, "TransactionReceipt", func(callCtx context.Context) error {
		var err error
		receipt, err = c.client.TransactionReceipt(callCtx, common.HexToHash(txHash))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Receipt{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}, nil
}

// BlockTimestamp 获取区块时间戳
func (c *Client) BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	var header *types.Header
	err := c.withRetry(ctx, "HeaderByNumber", func(callCtx context.Context) error {
		var err error
		header, err = c.client.HeaderByNumber(callCtx, new(big.Int).SetUint64(blockNumber))
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(header.Time), 0), nil
}

// parseLog 把原始日志解析为归一化事件
func (c *Client) parseLog(log types.Log) (Event, error) {
	if len(log.Topics) == 0 {
		return Event{}, fmt.Errorf("log has no topics")
	}

	for name, event := range c.contractABI.Events {
		if event.ID != log.Topics[0] {
			continue
		}

		args := make(map[string]interface{})

		// 非indexed参数从data解
		if err := c.contractABI.UnpackIntoMap(args, name, log.Data); err != nil {
			return Event{}, fmt.Errorf("failed to unpack event %s data: %w", name, err)
		}

		// indexed参数从topics解
		var indexed abi.Arguments
		for _, arg := range event.Inputs {
			if arg.Indexed {
				indexed = append(indexed, arg)
			}
		}
		if len(indexed) > 0 {
			if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
				return Event{}, fmt.Errorf("failed to parse event %s topics: %w", name, err)
			}
		}

		return Event{
			Name:        name,
			Args:        args,
			TxHash:      log.TxHash.Hex(),
			BlockNumber: log.BlockNumber,
			LogIndex:    log.Index,
		}, nil
	}

	return Event{}, fmt.Errorf("unknown event signature %s", log.Topics[0].Hex())
}

// withRetry 带超时与退避的链调用。超时不代表底层交易失败，
// 重试耗尽后包装为ChainUnavailable交由调用方处理。
func (c *Client) withRetry(ctx context.Context, op string, call func(ctx context.Context) error) error {
	backoff := time.Second
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		err := call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}

		// 限流时多等一会
		wait := backoff
		if isRateLimitError(err) {
			wait = backoff * 4
		}
		logger.Warn("Chain call %s failed (attempt %d/%d), retrying in %s: %v", op, attempt+1, c.maxRetries, wait, err)

		select {
		case <-ctx.Done():
			return apperr.ChainUnavailable(ctx.Err(), "chain call %s cancelled", op)
		case <-time.After(wait):
		}
		backoff *= 2
	}

	return apperr.ChainUnavailable(lastErr, "chain call %s failed after %d attempts", op, c.maxRetries)
}

// isRateLimitError 判断是否为节点限流错误
func isRateLimitError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Too Many Requests")
}
