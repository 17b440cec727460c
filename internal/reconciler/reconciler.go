package reconciler

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/krnkiran22/ip-escrow-sub001/internal/apperr"
	"github.com/krnkiran22/ip-escrow-sub001/internal/chain"
	"github.com/krnkiran22/ip-escrow-sub001/internal/config"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logger"
	"github.com/krnkiran22/ip-escrow-sub001/internal/logic"
	"github.com/krnkiran22/ip-escrow-sub001/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// State 引擎状态
type State string

const (
	StateUninitialized State = "uninitialized"
	StateCatchingUp    State = "catching_up"
	StateListening     State = "listening"
	StateStopped       State = "stopped"
)

// Engine 事件对账引擎。追平历史区块后转入监听，对每个事件推导出与
// confirm接口完全相同的状态转换，经同一条按交易哈希幂等的路径应用。
// confirm调用和引擎是竞争写者，后到者无操作，最终状态与到达顺序无关。
type Engine struct {
	gateway chain.Gateway
	db      *gorm.DB
	applier *logic.Applier
	cfg     config.ReconcilerConfig

	startBlock uint64 // 合约部署区块号，检查点为空时的起点

	mu                  sync.RWMutex
	state               State
	lastProcessedBlock  uint64
	consecutiveFailures int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewEngine 创建对账引擎。网关在进程启动时构造一次并以接口注入。
func NewEngine(gateway chain.Gateway, db *gorm.DB, cfg config.ReconcilerConfig, startBlock uint64) *Engine {
	return &Engine{
		gateway:    gateway,
		db:         db,
		applier:    logic.NewApplier(db),
		cfg:        cfg,
		startBlock: startBlock,
		state:      StateUninitialized,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start 从持久化检查点恢复并启动引擎
func (e *Engine) Start() error {
	checkpoint, err := e.loadCheckpoint()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.lastProcessedBlock = checkpoint
	e.state = StateCatchingUp
	e.mu.Unlock()

	logger.Info("Starting reconciliation engine from block %d", checkpoint+1)
	go e.run()
	return nil
}

// Stop 发出停止信号并等待退出。停止信号只在区块段边界生效，
// 进行中的段会处理完、检查点落库后才退出，避免半段进度丢失。
func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.doneCh
	logger.Info("Reconciliation engine stopped")
}

// GetState 当前引擎状态
func (e *Engine) GetState() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LastProcessedBlock 最后处理完成的区块号
func (e *Engine) LastProcessedBlock() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastProcessedBlock
}

// run 主循环：追平历史后进入监听
func (e *Engine) run() {
	defer close(e.doneCh)
	defer e.setState(StateStopped)

	if err := e.catchUp(); err != nil {
		if e.stopping() {
			return
		}
		logger.Error("Catch-up failed, engine will keep polling: %v", err)
	}

	e.setState(StateListening)
	e.listen()
}

// CatchUpOnce 单轮追块：从检查点+1追到当前链头。供启动追平和轮询复用。
func (e *Engine) CatchUpOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.chunkTimeout())
	head, err := e.gateway.CurrentBlockNumber(ctx)
	cancel()
	if err != nil {
		return e.recordFailure(err)
	}

	for {
		if e.stopping() {
			return nil
		}

		from := e.LastProcessedBlock() + 1
		if from > head {
			return nil
		}

		to := from + e.chunkSize() - 1
		if to > head {
			to = head
		}

		if err := e.processChunk(from, to); err != nil {
			return e.recordFailure(err)
		}

		if err := e.saveCheckpoint(to); err != nil {
			return e.recordFailure(err)
		}
		e.resetFailures()
	}
}

// catchUp 启动时追平到链头
func (e *Engine) catchUp() error {
	for {
		if e.stopping() {
			return nil
		}
		if err := e.CatchUpOnce(); err != nil {
			// 失败退避后重试，不放弃追块
			select {
			case <-e.stopCh:
				return nil
			case <-time.After(e.backoff()):
				continue
			}
		}
		return nil
	}
}

// listen 监听新事件。优先订阅，订阅不可用或中断时退化为轮询，
// 每个轮询周期都会重试订阅（幂等应用使重复投递无害）。
func (e *Engine) listen() {
	interval := time.Duration(e.cfg.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		if e.stopping() {
			return
		}

		subCtx, cancelSub := context.WithCancel(context.Background())
		events, errs, err := e.gateway.SubscribeEvents(subCtx)
		if err != nil {
			cancelSub()
			logger.Warn("Subscription unavailable, polling instead: %v", err)
			if !e.pollUntil(interval) {
				return
			}
			continue
		}

		logger.Info("Subscribed to contract events")
		e.consumeSubscription(events, errs, cancelSub, interval)
		if e.stopping() {
			return
		}
	}
}

// consumeSubscription 消费订阅流，周期性兜底追块补漏
func (e *Engine) consumeSubscription(events <-chan chain.Event, errs <-chan error, cancelSub context.CancelFunc, interval time.Duration) {
	defer cancelSub()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case err := <-errs:
			logger.Warn("Subscription dropped, resubscribing after backoff: %v", err)
			select {
			case <-e.stopCh:
			case <-time.After(e.backoff()):
			}
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			// 订阅事件也走同一条幂等路径；失败留给下个追块周期兜底
			if err := e.handleEvent(ev); err != nil {
				logger.Error("Failed to apply subscribed event %s (tx %s): %v", ev.Name, ev.TxHash, err)
			}
		case <-ticker.C:
			if err := e.CatchUpOnce(); err != nil {
				logger.Error("Periodic catch-up failed: %v", err)
			}
		}
	}
}

// pollUntil 纯轮询一个周期，返回false表示收到停止信号
func (e *Engine) pollUntil(interval time.Duration) bool {
	select {
	case <-e.stopCh:
		return false
	case <-time.After(interval):
	}
	if err := e.CatchUpOnce(); err != nil {
		logger.Error("Polling catch-up failed: %v", err)
	}
	return true
}

// processChunk 处理一段区块：段内事件严格按 (区块, 日志序号) 升序应用。
// 单个事件无法匹配或解析只记录跳过，绝不中断同段后续事件。
func (e *Engine) processChunk(from, to uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.chunkTimeout())
	defer cancel()

	events, err := e.gateway.FilterEvents(ctx, from, to)
	if err != nil {
		return err
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	for _, ev := range events {
		if err := e.handleEvent(ev); err != nil {
			// 基础设施错误让整段重试；重放安全因为应用按交易哈希幂等
			return err
		}
	}

	logger.Debug("Processed blocks %d-%d (%d events)", from, to, len(events))
	return nil
}

// handleEvent 应用单个事件。业务性错误（实体不存在、未知事件等）记录跳过；
// 返回非nil仅表示基础设施错误，需要整段重试。
func (e *Engine) handleEvent(ev chain.Event) error {
	fact, derr := deriveFact(ev)
	if derr != nil {
		e.recordEvent(ev, true, derr.Error())
		logger.Warn("Skipping event %s at block %d: %v", ev.Name, ev.BlockNumber, derr)
		return nil
	}

	result, err := e.applier.Apply(*fact)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindChainUnavailable:
			return err
		case 0:
			// 非业务错误（数据库故障等），交给段级重试
			return err
		default:
			// 实体不存在、状态不可达等业务性错误：记录并跳过
			e.recordEvent(ev, true, err.Error())
			logger.Warn("Skipping unappliable event %s (tx %s): %v", ev.Name, ev.TxHash, err)
			return nil
		}
	}

	e.recordEvent(ev, false, "")
	if result.AlreadyApplied {
		logger.Debug("Event %s (tx %s) already applied via confirm path", ev.Name, ev.TxHash)
	}
	return nil
}

// recordEvent 落一条链上事件审计行，(tx_hash, log_index) 冲突时忽略
func (e *Engine) recordEvent(ev chain.Event, skipped bool, reason string) {
	data, _ := json.Marshal(ev.Args)
	row := &model.ChainEvent{
		EventName:   ev.Name,
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
		BlockNumber: ev.BlockNumber,
		Data:        string(data),
		Skipped:     skipped,
		SkipReason:  reason,
	}
	err := e.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}, {Name: "log_index"}},
		DoNothing: true,
	}).Create(row).Error
	if err != nil {
		logger.Error("Failed to record chain event %s: %v", ev.TxHash, err)
	}
}

// loadCheckpoint 加载检查点，没有则从合约部署区块前一格起步
func (e *Engine) loadCheckpoint() (uint64, error) {
	var checkpoint model.ReconcileCheckpoint
	err := e.db.Where(model.ReconcileCheckpoint{ID: 1}).
		Attrs(model.ReconcileCheckpoint{LastProcessedBlock: initialCheckpoint(e.startBlock)}).
		FirstOrCreate(&checkpoint).Error
	if err != nil {
		return 0, err
	}
	return checkpoint.LastProcessedBlock, nil
}

// saveCheckpoint 推进检查点，只有整段应用成功后调用
func (e *Engine) saveCheckpoint(block uint64) error {
	err := e.db.Model(&model.ReconcileCheckpoint{}).
		Where("id = ?", 1).
		Update("last_processed_block", block).Error
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.lastProcessedBlock = block
	e.mu.Unlock()
	return nil
}

// recordFailure 累计连续失败，达到阈值升级为运维告警
func (e *Engine) recordFailure(err error) error {
	e.mu.Lock()
	e.consecutiveFailures++
	failures := e.consecutiveFailures
	threshold := e.cfg.AlertThreshold
	e.mu.Unlock()

	if threshold > 0 && failures >= threshold {
		logger.Error("ALERT: reconciliation checkpoint stuck at block %d after %d consecutive failures: %v",
			e.LastProcessedBlock(), failures, err)
	}
	return err
}

func (e *Engine) resetFailures() {
	e.mu.Lock()
	e.consecutiveFailures = 0
	e.mu.Unlock()
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) stopping() bool {
	select {
	case <-e.stopCh:
		return true
	default:
		return false
	}
}

func (e *Engine) chunkSize() uint64 {
	if e.cfg.ChunkSize == 0 {
		return 500
	}
	return e.cfg.ChunkSize
}

func (e *Engine) chunkTimeout() time.Duration {
	if e.cfg.ChunkTimeoutSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(e.cfg.ChunkTimeoutSeconds) * time.Second
}

// backoff 按连续失败次数计算退避时间，上限5分钟
func (e *Engine) backoff() time.Duration {
	e.mu.RLock()
	failures := e.consecutiveFailures
	e.mu.RUnlock()

	d := time.Duration(failures) * 10 * time.Second
	if d < 5*time.Second {
		d = 5 * time.Second
	}
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}

// initialCheckpoint 部署区块前一格，保证第一段从部署区块开始
func initialCheckpoint(startBlock uint64) uint64 {
	if startBlock == 0 {
		return 0
	}
	return startBlock - 1
}
