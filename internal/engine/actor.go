package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"clobex.com/internal/market"
	"clobex.com/internal/matching"
	"clobex.com/pkg/logger"
	"clobex.com/pkg/metrics"
	"clobex.com/pkg/xerr"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

type ActorConfig struct {
	MailboxSize int `mapstructure:"mailboxSize"` // mailbox 容量，满了 Submit 直接返回 ErrEngineBusy
	BatchMax    int `mapstructure:"batchMax"`    // 一轮最多处理多少条，WAL 按轮 flush
	// AutoCrank 下单产生事件后立即在 actor 内消费，maker 不用等外部 crank 就能拿到成交
	AutoCrank bool `mapstructure:"autoCrank"`
}

// MarketActor 单写者：一个市场的 Market 和全部 OpenOrders 只在 Run 的 goroutine 里改
type MarketActor struct {
	id    solana.PublicKey
	label string // metrics / 日志用的 base58

	mkt      *market.Market
	accounts map[solana.PublicKey]*matching.OpenOrders
	escrow   *replayEscrow
	now      int64 // 当前命令的 Ts，market 的时钟读它

	in  chan Command
	cfg ActorConfig
	seq uint64

	wal   walWriter
	codec CmdCodec
	sink  NotificationSink

	mailboxFull uint64
	done        chan struct{}
}

type outcome struct {
	cmd   Command
	res   Result
	err   error
	notes []market.Notification
}

func newMarketActor(id solana.PublicKey, cfg ActorConfig, codec CmdCodec, sink NotificationSink) *MarketActor {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 4096
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 256
	}
	if codec == nil {
		codec = BinaryCmdCodec{}
	}
	return &MarketActor{
		id:       id,
		label:    id.String(),
		accounts: make(map[solana.PublicKey]*matching.OpenOrders),
		in:       make(chan Command, cfg.MailboxSize),
		cfg:      cfg,
		codec:    codec,
		sink:     sink,
		done:     make(chan struct{}),
	}
}

func (a *MarketActor) clock() market.Clock {
	return market.ClockFunc(func() int64 { return a.now })
}

func (a *MarketActor) TryEnqueue(cmd Command) error {
	select {
	case <-a.done:
		return ErrEngineStopped
	default:
	}
	select {
	case a.in <- cmd:
		return nil
	default:
		atomic.AddUint64(&a.mailboxFull, 1)
		metrics.MailboxFull.WithLabelValues(a.label).Inc()
		return ErrEngineBusy
	}
}

func (a *MarketActor) MailboxFull() uint64 { return atomic.LoadUint64(&a.mailboxFull) }
func (a *MarketActor) Seq() uint64         { return a.seq }
func (a *MarketActor) Done() <-chan struct{} {
	return a.done
}

func (a *MarketActor) Run(ctx context.Context) {
	defer close(a.done)
	if a.wal != nil {
		defer func() {
			if err := a.wal.Close(); err != nil {
				logger.Error(ctx, "close command log failed", zap.String("market", a.label), zap.Error(err))
			}
		}()
	}

	batch := make([]Command, 0, a.cfg.BatchMax)
	outs := make([]outcome, 0, a.cfg.BatchMax)
	for {
		var first Command
		// 先阻塞拿一条，再不阻塞地尽量多拿
		select {
		case <-ctx.Done():
			a.drain(ErrEngineStopped)
			return
		case first = <-a.in:
		}
		batch = batch[:0]
		batch = append(batch, first)
		for len(batch) < a.cfg.BatchMax {
			select {
			case cmd := <-a.in:
				batch = append(batch, cmd)
			default:
				goto PROCESS
			}
		}
	PROCESS:
		outs = outs[:0]
		fatal := a.process(ctx, batch, &outs)
		a.finish(ctx, outs, fatal)
		if fatal != nil {
			logger.Error(ctx, "market actor stopped", zap.String("market", a.label), zap.Error(fatal))
			a.drain(ErrEngineStopped)
			return
		}
	}
}

// process 逐条执行并把成功的写命令 append 进 WAL，一轮结束 flush 一次。
// 返回非 nil 表示 WAL 坏了，内存状态已经和日志对不上，actor 必须停下；
// 停之前把这一批的 WAL 记录和 escrow 划转都撤掉，重启回放后钱包和账户还能对上。
func (a *MarketActor) process(ctx context.Context, batch []Command, outs *[]outcome) error {
	var mark int64
	if a.wal != nil {
		mark = a.wal.Offset()
	}
	a.escrow.begin()
	// WAL 出错后，本轮剩下的命令不再执行
	abort := func(i int, err error) error {
		for _, rest := range batch[i+1:] {
			*outs = append(*outs, outcome{cmd: rest, err: ErrEngineStopped})
		}
		a.rollback(ctx, mark, err)
		return err
	}
	logged := false
	for i, cmd := range batch {
		out := a.step(ctx, cmd)
		if out.err == nil && cmd.Type.Mutates() {
			seq, err := a.log(cmd)
			if err != nil {
				*outs = append(*outs, out)
				return abort(i, err)
			}
			out.res.Seq = seq
			logged = true
		}
		*outs = append(*outs, out)

		if a.cfg.AutoCrank && out.err == nil && cmd.Type == CmdPlace && a.mkt.QueueLen() > 0 {
			crank := Command{Type: CmdConsume, ReqID: cmd.ReqID, Ts: cmd.Ts, Market: cmd.Market}
			co := a.step(ctx, crank)
			if co.err != nil {
				logger.Warn(ctx, "auto crank failed", zap.String("market", a.label), zap.Error(co.err))
				continue
			}
			seq, err := a.log(crank)
			if err != nil {
				return abort(i, err)
			}
			co.res.Seq = seq
			// 没有调用方在等，只需要通知
			*outs = append(*outs, co)
		}
	}
	if logged && a.wal != nil {
		if err := a.wal.Flush(); err != nil {
			a.rollback(ctx, mark, err)
			return err
		}
	}
	return nil
}

func (a *MarketActor) rollback(ctx context.Context, mark int64, cause error) {
	if a.wal != nil {
		if err := a.wal.Rewind(mark); err != nil {
			logger.Error(ctx, "rewind command log failed, log and vault may disagree",
				zap.String("market", a.label), zap.Int64("offset", mark), zap.Error(err))
		}
	}
	// ctx 可能已经取消，撤销划转不能半途放弃
	if err := a.escrow.undo(context.WithoutCancel(ctx)); err != nil {
		logger.Error(ctx, "undo escrow moves failed",
			zap.String("market", a.label), zap.NamedError("cause", cause), zap.Error(err))
	}
}

func (a *MarketActor) step(ctx context.Context, cmd Command) outcome {
	a.now = cmd.Ts
	res, notes, err := a.apply(ctx, cmd)
	return outcome{cmd: cmd, res: res, err: err, notes: notes}
}

func (a *MarketActor) log(cmd Command) (uint64, error) {
	a.seq++
	if a.wal == nil {
		return a.seq, nil
	}
	var rec [cmdRecordLen]byte
	payload, err := a.codec.Encode(rec[:0], a.seq, cmd)
	if err != nil {
		return 0, err
	}
	if err := a.wal.Append(payload); err != nil {
		return 0, err
	}
	return a.seq, nil
}

// finish 回复、发通知、打点。WAL 已经 flush 过，通知只发已经持久化的结果
func (a *MarketActor) finish(ctx context.Context, outs []outcome, fatal error) {
	for i := range outs {
		o := &outs[i]
		if fatal != nil && o.err == nil && o.cmd.Type.Mutates() {
			o.err = errors.Join(ErrWALFailure, fatal)
			o.notes = nil
		}
		if o.err == nil {
			for _, n := range o.notes {
				if a.sink != nil && !a.sink.TryPublish(n) {
					metrics.BusDropped.WithLabelValues(a.label).Inc()
				}
			}
		}
		a.observe(o)
		if o.cmd.reply != nil {
			o.cmd.reply <- reply{res: o.res, err: o.err}
		}
	}
	metrics.EventQueueDepth.WithLabelValues(a.label).Set(float64(a.mkt.QueueLen()))
	metrics.SlabDepth.WithLabelValues(a.label, matching.Bid.String()).Set(float64(a.mkt.Depth(matching.Bid)))
	metrics.SlabDepth.WithLabelValues(a.label, matching.Ask.String()).Set(float64(a.mkt.Depth(matching.Ask)))
}

func (a *MarketActor) observe(o *outcome) {
	status := "ok"
	if o.err != nil {
		status = xerr.KindOf(o.err).String()
	}
	if !o.cmd.enq.IsZero() {
		metrics.CommandDuration.WithLabelValues(a.label, o.cmd.Type.String(), status).Observe(time.Since(o.cmd.enq).Seconds())
	}
	if o.cmd.Type != CmdPlace {
		return
	}
	if o.err != nil {
		metrics.OrdersRejected.WithLabelValues(a.label, status).Inc()
		return
	}
	metrics.OrdersTotal.WithLabelValues(a.label, o.cmd.OrderType.String(), o.cmd.Side.String()).Inc()
	for _, f := range o.res.Place.Fills {
		metrics.FillsTotal.WithLabelValues(a.label, f.Type.String()).Inc()
	}
	if o.res.Place.Overwritten > 0 {
		metrics.EventQueueOverwrites.WithLabelValues(a.label).Add(float64(o.res.Place.Overwritten))
	}
}

// drain 停机时把 mailbox 里还没处理的命令全部拒掉，调用方不会一直等
func (a *MarketActor) drain(err error) {
	for {
		select {
		case cmd := <-a.in:
			if cmd.reply != nil {
				cmd.reply <- reply{err: err}
			}
		default:
			return
		}
	}
}

// apply 执行一条命令。回放走同一个函数，所以这里不能依赖墙上时间或者外部状态
func (a *MarketActor) apply(ctx context.Context, cmd Command) (Result, []market.Notification, error) {
	switch cmd.Type {
	case CmdInitOpenOrders:
		if cmd.Signer != cmd.Owner {
			return Result{}, nil, matching.ErrUnauthorized
		}
		if _, ok := a.accounts[cmd.Owner]; ok {
			return Result{}, nil, ErrAccountExists
		}
		oo, err := a.mkt.InitOpenOrders(cmd.Owner)
		if err != nil {
			return Result{}, nil, err
		}
		a.accounts[cmd.Owner] = oo
		return Result{Account: accountView(oo)}, nil, nil

	case CmdPlace:
		oo, err := a.account(cmd.Signer)
		if err != nil {
			return Result{}, nil, err
		}
		res, err := a.mkt.PlaceOrder(ctx, cmd.Signer, oo, market.PlaceRequest{
			Side:          cmd.Side,
			Type:          cmd.OrderType,
			Price:         cmd.Price,
			MaxBaseQty:    cmd.MaxBaseQty,
			ClientOrderID: cmd.ClientOrderID,
			Makers:        a.lookup,
		})
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Place: res}, res.Notifications, nil

	case CmdCancel:
		oo, err := a.account(cmd.Signer)
		if err != nil {
			return Result{}, nil, err
		}
		res, err := a.mkt.CancelOrder(ctx, cmd.Signer, oo, cmd.OrderID)
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Cancel: res}, []market.Notification{res.Notification}, nil

	case CmdConsume:
		res, err := a.mkt.ConsumeEvents(ctx, int(cmd.Limit), a.lookup)
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Consume: res}, nil, nil

	case CmdSettle:
		oo, err := a.account(cmd.Signer)
		if err != nil {
			return Result{}, nil, err
		}
		res, err := a.mkt.SettleFunds(ctx, cmd.Signer, oo)
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Settle: res}, nil, nil

	case CmdSetStatus:
		if err := a.mkt.SetStatus(cmd.Signer, cmd.Status); err != nil {
			return Result{}, nil, err
		}
		return Result{Market: a.marketView()}, nil, nil

	case CmdQueryBook:
		view := a.mkt.Book(int(cmd.Limit))
		return Result{Book: &view}, nil, nil

	case CmdQueryOrder:
		node, side, err := a.mkt.OrderByID(cmd.OrderID)
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Order: &OrderView{Node: node, Side: side}}, nil, nil

	case CmdQueryOwnerOrders:
		view := a.mkt.OrdersByOwner(cmd.Owner)
		return Result{Book: &view}, nil, nil

	case CmdQueryEvents:
		evs := a.mkt.PendingEvents()
		if cmd.Limit > 0 && int(cmd.Limit) < len(evs) {
			evs = evs[:cmd.Limit]
		}
		return Result{Events: evs}, nil, nil

	case CmdQueryAccount:
		oo, err := a.account(cmd.Owner)
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Account: accountView(oo)}, nil, nil

	case CmdQueryMarket:
		return Result{Market: a.marketView()}, nil, nil
	}
	return Result{}, nil, ErrBadCommand
}

func (a *MarketActor) account(owner solana.PublicKey) (*matching.OpenOrders, error) {
	oo, ok := a.accounts[owner]
	if !ok {
		return nil, ErrNoAccount
	}
	return oo, nil
}

func (a *MarketActor) lookup(owner solana.PublicKey) *matching.OpenOrders {
	return a.accounts[owner]
}

func (a *MarketActor) marketView() *MarketView {
	v := &MarketView{
		ID:          a.mkt.ID(),
		Config:      a.mkt.Config(),
		Status:      a.mkt.Status(),
		NextOrderID: a.mkt.NextOrderID(),
		FeesAccrued: a.mkt.FeesAccrued(),
		QueueLen:    a.mkt.QueueLen(),
	}
	if n, ok := a.mkt.BestBid(); ok {
		v.BestBid = &n
	}
	if n, ok := a.mkt.BestAsk(); ok {
		v.BestAsk = &n
	}
	return v
}

func accountView(oo *matching.OpenOrders) *AccountView {
	return &AccountView{
		Market:   oo.Market,
		Owner:    oo.Owner,
		Balances: oo.Balances,
		Orders:   oo.Orders(),
	}
}
