// Package session 编排一次完整会话：注册 → 鉴权 → 订阅 → 交易 → 收尾
package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/paradexbot/internal/auth"
	"github.com/betbot/paradexbot/internal/engine"
	"github.com/betbot/paradexbot/internal/events"
	"github.com/betbot/paradexbot/internal/stream"
	"github.com/betbot/paradexbot/paradex/client"
	"github.com/betbot/paradexbot/paradex/types"
	"github.com/betbot/paradexbot/pkg/shutdown"
	"github.com/betbot/paradexbot/pkg/syncgroup"
)

// 进程退出码
const (
	ExitOK               = 0 // 正常收尾，无遗留挂单
	ExitAuthFailure      = 1 // 注册或鉴权失败
	ExitUnresolvedOrders = 2 // 收尾超时后仍有未到终态的订单
)

// Options 会话参数
type Options struct {
	Market           string
	RunDuration      time.Duration
	TeardownTimeout  time.Duration
	CancelOnTeardown bool

	// 为空时按 Market 订阅默认频道集
	PublicChannels  []string
	PrivateChannels []string
}

func (o *Options) applyDefaults() {
	if o.RunDuration <= 0 {
		o.RunDuration = 2 * time.Minute
	}
	if o.TeardownTimeout <= 0 {
		o.TeardownTimeout = 15 * time.Second
	}
	if len(o.PublicChannels) == 0 {
		o.PublicChannels = []string{
			types.ChannelMarketsSummary(),
			types.ChannelBBO(o.Market),
			types.ChannelTrades(o.Market),
			types.ChannelOrderBook(o.Market, "100ms"),
			types.ChannelFundingData(o.Market),
		}
	}
	if len(o.PrivateChannels) == 0 {
		o.PrivateChannels = []string{
			types.ChannelOrders(o.Market),
			types.ChannelFills(o.Market),
			types.ChannelPositions(),
			types.ChannelAccount(),
			types.ChannelBalanceEvents(),
			types.ChannelFundingPayments(o.Market),
		}
	}
}

// Trader 会话建立后执行的交易逻辑；nil 表示只挂订阅不下单
type Trader func(ctx context.Context, eng *engine.Engine) error

// Coordinator 会话协调器
type Coordinator struct {
	opts       Options
	onboarding *auth.OnboardingService
	creds      *auth.Session
	rest       *client.Client
	subscriber *stream.Subscriber
	engine     *engine.Engine
	trader     Trader

	log *logrus.Entry
}

// NewCoordinator 创建会话协调器
func NewCoordinator(
	opts Options,
	onboarding *auth.OnboardingService,
	creds *auth.Session,
	rest *client.Client,
	subscriber *stream.Subscriber,
	eng *engine.Engine,
	trader Trader,
) *Coordinator {
	opts.applyDefaults()
	return &Coordinator{
		opts:       opts,
		onboarding: onboarding,
		creds:      creds,
		rest:       rest,
		subscriber: subscriber,
		engine:     eng,
		trader:     trader,
		log:        logrus.WithField("component", "session"),
	}
}

// phase 返回带阶段标签的日志入口
func (c *Coordinator) phase(name string) *logrus.Entry {
	return c.log.WithField("phase", name)
}

// Run 执行完整会话流程，返回进程退出码。
// ctx 取消（如收到信号）会提前进入收尾阶段。
func (c *Coordinator) Run(ctx context.Context) int {
	if err := c.onboarding.EnsureOnboarded(ctx); err != nil {
		c.phase("onboarding").Errorf("注册失败: %v", err)
		return ExitAuthFailure
	}
	if err := c.creds.Authenticate(ctx); err != nil {
		c.phase("auth").Errorf("鉴权失败: %v", err)
		return ExitAuthFailure
	}
	c.logAccountState(ctx)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	c.subscriber.Start(runCtx)
	for _, ch := range c.opts.PublicChannels {
		if err := c.subscriber.Subscribe(runCtx, ch, types.VisibilityPublic); err != nil {
			c.phase("subscribe").Errorf("订阅 %s 失败: %v", ch, err)
		}
	}
	for _, ch := range c.opts.PrivateChannels {
		if err := c.subscriber.Subscribe(runCtx, ch, types.VisibilityPrivate); err != nil {
			c.phase("subscribe").Errorf("订阅 %s 失败: %v", ch, err)
		}
	}

	sg := syncgroup.New()
	sg.Add(func() { c.pumpEvents(runCtx) })
	sg.Add(func() { c.creds.RunRefreshLoop(runCtx) })
	if c.trader != nil {
		sg.Add(func() {
			if err := c.trader(runCtx, c.engine); err != nil && runCtx.Err() == nil {
				c.log.Errorf("交易逻辑退出: %v", err)
			}
		})
	}
	sg.Run()

	timer := time.NewTimer(c.opts.RunDuration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		c.phase("trade").Info("收到退出信号，提前收尾")
	case <-timer.C:
		c.phase("trade").Infof("会话时长 %s 到期", c.opts.RunDuration)
	}

	code := c.teardown(cancelRun, sg)
	return code
}

// teardown 有界收尾：撤单 → 关订阅 → 作废凭证。
// 所有步骤共享 TeardownTimeout 预算，超时后如实上报遗留订单。
func (c *Coordinator) teardown(cancelRun context.CancelFunc, sg *syncgroup.SyncGroup) int {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.TeardownTimeout)
	defer cancel()

	if c.opts.CancelOnTeardown {
		c.cancelOpenOrders(ctx)
	}

	sd := shutdown.NewManager()
	sd.OnShutdown(func(context.Context) { cancelRun() })
	sd.OnShutdown(func(context.Context) { c.subscriber.Close() })
	sd.Shutdown(ctx)
	sg.Wait()
	c.creds.Revoke()

	leftovers := c.engine.NonTerminal()
	if len(leftovers) > 0 {
		for _, o := range leftovers {
			c.phase("teardown").Warnf("遗留订单: client_id=%s id=%s status=%s 剩余=%s",
				o.ClientID, o.ID, o.Status, o.RemainingSize)
		}
		return ExitUnresolvedOrders
	}
	c.phase("teardown").Info("会话正常结束，连接已关闭")
	return ExitOK
}

// cancelOpenOrders 对每个非终态订单发一次幂等撤单，
// 然后等待私有流把状态推到终态，直到收尾预算耗尽。
func (c *Coordinator) cancelOpenOrders(ctx context.Context) {
	open := c.engine.NonTerminal()
	if len(open) == 0 {
		return
	}
	c.phase("teardown").Infof("收尾撤单: %d 笔挂单", len(open))
	for _, o := range open {
		id := o.ID
		if id == "" {
			id = o.ClientID
		}
		if err := c.engine.Cancel(ctx, id); err != nil {
			c.phase("teardown").Warnf("收尾撤单 %s 失败: %v", id, err)
		}
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if len(c.engine.NonTerminal()) == 0 {
				return
			}
		}
	}
}

// pumpEvents 消费流式事件并路由到订单引擎
func (c *Coordinator) pumpEvents(ctx context.Context) {
	evCh := c.subscriber.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evCh:
			if !ok {
				return
			}
			c.dispatch(ev)
		}
	}
}

func (c *Coordinator) dispatch(ev any) {
	switch e := ev.(type) {
	case events.OrderUpdateEvent:
		c.engine.OnOrderEvent(e.Order)
	case events.FillEvent:
		c.engine.OnFill(e.Fill)
	case events.MarketDataEvent:
		c.log.Debugf("行情帧 %s (%d 字节)", e.Channel, len(e.Data))
	case events.DecodeErrorEvent:
		c.log.Warnf("帧解码失败 channel=%s: %v", e.Channel, e.Err)
	case events.StreamErrorEvent:
		c.log.Errorf("流式错误 (%s): %v", e.Visibility, e.Err)
	case events.ConnectionStateEvent:
		if e.Connected {
			c.log.Infof("连接恢复 (%s)", e.Visibility)
		} else {
			c.log.Warnf("连接断开 (%s)", e.Visibility)
		}
	}
}

// logAccountState 登录后打印一次账户快照
func (c *Coordinator) logAccountState(ctx context.Context) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		c.log.Warnf("获取令牌失败，跳过账户快照: %v", err)
		return
	}
	if info, err := c.rest.GetAccountInfo(ctx, token); err != nil {
		c.log.Warnf("拉取账户信息失败: %v", err)
	} else {
		c.log.Infof("账户 %s 状态 %s", info.Account, info.Status)
	}
	if balances, err := c.rest.GetBalances(ctx, token); err != nil {
		c.log.Warnf("拉取余额失败: %v", err)
	} else {
		for _, b := range balances {
			c.log.Infof("余额 %s: %s", b.Token, b.Size)
		}
	}
	if positions, err := c.rest.GetPositions(ctx, token); err != nil {
		c.log.Warnf("拉取持仓失败: %v", err)
	} else {
		for _, p := range positions {
			c.log.Infof("持仓 %s %s: %s @ %s", p.Market, p.Side, p.Size, p.AverageEntry)
		}
	}
}
