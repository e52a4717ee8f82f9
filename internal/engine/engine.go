package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"clobex.com/internal/funds"
	"clobex.com/internal/market"
	"clobex.com/pkg/logger"
	"clobex.com/pkg/safe"
	"clobex.com/pkg/wal"
	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("clobex/engine")

type EngineConfig struct {
	Actor      ActorConfig
	WALDir     string // 命令日志目录，一个市场一个文件
	EnableWAL  bool
	WALBufSize int
	Codec      CmdCodec
	Now        func() int64 // 命令时间戳来源，默认 time.Now 毫秒
}

// Engine 按市场把命令路由给对应 actor
type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	actors map[solana.PublicKey]*MarketActor
	bus    *ChanBus
	cfg    EngineConfig
	reqID  atomic.Uint64
	wg     sync.WaitGroup
	stop   sync.Once
}

func NewEngine(cfg EngineConfig, bus *ChanBus) *Engine {
	if cfg.Codec == nil {
		cfg.Codec = BinaryCmdCodec{}
	}
	if cfg.Now == nil {
		cfg.Now = func() int64 { return time.Now().UnixMilli() }
	}
	if bus == nil {
		bus = NewChanBus(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		ctx:    ctx,
		cancel: cancel,
		actors: make(map[solana.PublicKey]*MarketActor),
		bus:    bus,
		cfg:    cfg,
	}
}

// Notifications 订单生命周期通知
func (e *Engine) Notifications() <-chan market.Notification { return e.bus.C() }

func (e *Engine) DroppedNotifications() uint64 { return e.bus.Dropped() }

// Markets 已注册的市场，按 base58 排序
func (e *Engine) Markets() []solana.PublicKey {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]solana.PublicKey, 0, len(e.actors))
	for id := range e.actors {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (e *Engine) actor(id solana.PublicKey) (*MarketActor, error) {
	e.mu.RLock()
	a := e.actors[id]
	e.mu.RUnlock()
	if a == nil {
		return nil, ErrUnknownMarket
	}
	return a, nil
}

// AddMarket 建市场、回放命令日志、启动 actor。回放期间 escrow 关闭；escrow 为空时不移动资金
func (e *Engine) AddMarket(id solana.PublicKey, cfg market.Config, escrow funds.Escrow) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.actors[id]; ok {
		return ErrMarketExists
	}
	if e.cfg.EnableWAL && e.cfg.WALDir == "" {
		return fmt.Errorf("WALDir is empty but command log is enabled")
	}

	a := newMarketActor(id, e.cfg.Actor, e.cfg.Codec, e.bus)
	if escrow == nil {
		escrow = funds.Noop{}
	}
	a.escrow = &replayEscrow{live: escrow, replaying: true}
	mkt, err := market.New(id, cfg, a.escrow, a.clock())
	if err != nil {
		return err
	}
	a.mkt = mkt

	if e.cfg.EnableWAL {
		if err := os.MkdirAll(e.cfg.WALDir, 0o755); err != nil {
			return err
		}
		path := cmdWalPath(e.cfg.WALDir, id)
		if err := e.replay(a, path); err != nil {
			return err
		}
		w, err := wal.OpenWrite(path, e.cfg.WALBufSize)
		if err != nil {
			return err
		}
		a.wal = w
	}
	a.escrow.replaying = false

	e.actors[id] = a
	e.wg.Add(1)
	safe.Go("market-actor", func() {
		defer e.wg.Done()
		a.Run(e.ctx)
	})
	logger.Info(e.ctx, "market started", zap.String("market", a.label), zap.Uint64("seq", a.seq))
	return nil
}

func (e *Engine) replay(a *MarketActor, path string) error {
	stats, err := wal.Replay(path, wal.ReplayOptions{AllowTruncatedTail: true}, func(payload []byte) error {
		seq, cmd, err := e.cfg.Codec.Decode(payload)
		if err != nil {
			return err
		}
		if seq != a.seq+1 {
			return fmt.Errorf("%w: seq %d after %d", ErrReplayDiverged, seq, a.seq)
		}
		if out := a.step(e.ctx, cmd); out.err != nil {
			return fmt.Errorf("%w: seq %d %s: %v", ErrReplayDiverged, seq, cmd.Type, out.err)
		}
		a.seq = seq
		return nil
	})
	if err != nil {
		return err
	}
	if stats.TruncatedTail {
		// 崩溃时半写的最后一条，没 flush 成功也就没回复过调用方，直接截掉
		logger.Warn(e.ctx, "command log has a torn tail, truncating",
			zap.String("path", path), zap.Int64("offset", stats.LastGoodOffset))
		if err := wal.TruncateTo(path, stats.LastGoodOffset); err != nil {
			return err
		}
	}
	if stats.Records > 0 {
		logger.Info(e.ctx, "command log replayed", zap.String("market", a.label), zap.Int("records", stats.Records))
	}
	return nil
}

// Submit 入队并等结果。mailbox 满了立刻返回 ErrEngineBusy，不排队等
func (e *Engine) Submit(ctx context.Context, cmd Command) (Result, error) {
	ctx, span := tracer.Start(ctx, "engine."+cmd.Type.String(), trace.WithAttributes(
		attribute.String("market", cmd.Market.String()),
	))
	defer span.End()

	res, err := e.submit(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (e *Engine) submit(ctx context.Context, cmd Command) (Result, error) {
	if !cmd.Type.Valid() {
		return Result{}, ErrBadCommand
	}
	a, err := e.actor(cmd.Market)
	if err != nil {
		return Result{}, err
	}
	if cmd.ReqID == 0 {
		cmd.ReqID = e.reqID.Add(1)
	}
	cmd.Ts = e.cfg.Now()
	cmd.enq = time.Now()
	cmd.reply = make(chan reply, 1)
	if err := a.TryEnqueue(cmd); err != nil {
		return Result{}, err
	}
	select {
	case r := <-cmd.reply:
		return r.res, r.err
	case <-ctx.Done():
		// 命令可能已经执行了，只是调用方不等了
		return Result{}, ctx.Err()
	case <-a.Done():
		// actor 退出前会回复已经出队的命令，这里再看一眼
		select {
		case r := <-cmd.reply:
			return r.res, r.err
		default:
			return Result{}, ErrEngineStopped
		}
	}
}

// Stop 停掉全部 actor 并等待 WAL 关闭，然后关掉通知 channel，可以重复调
func (e *Engine) Stop() {
	e.stop.Do(func() {
		e.cancel()
		e.wg.Wait()
		e.bus.Close()
	})
}

// Err 报告异常退出的 actor，正常 Stop 不算
func (e *Engine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var errs []error
	for id, a := range e.actors {
		select {
		case <-a.Done():
			if e.ctx.Err() == nil {
				errs = append(errs, fmt.Errorf("market %s: %w", id, ErrEngineStopped))
			}
		default:
		}
	}
	return errors.Join(errs...)
}

func cmdWalPath(dir string, id solana.PublicKey) string {
	// base58 只有字母数字，可以直接当文件名
	return filepath.Join(dir, id.String()+".cmd.wal")
}
