// Package ws 维护到交易所的单条流式连接：订阅控制、按到达顺序
// 投递帧、断线重连并恢复订阅。
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/paradexbot/paradex/types"
	"github.com/betbot/paradexbot/pkg/sigchan"
)

// TokenProvider 提供私有连接的 Bearer 凭证；公开连接为 nil
type TokenProvider func(ctx context.Context) (string, error)

// ConnState 连接状态事件
type ConnState int

const (
	StateConnected ConnState = iota + 1
	StateDisconnected
	StateClosed
)

// Frame 一条已解码的订阅推送
type Frame struct {
	Channel  string
	Data     json.RawMessage
	Received time.Time
}

// Config 连接配置
type Config struct {
	URL   string
	Name  string        // 日志标签（public / private）
	Token TokenProvider // 非 nil 时连接建立后发送 auth 帧

	FrameBufferSize      int
	ErrorBufferSize      int
	CommandQueueSize     int // 断线期间可缓冲的控制帧上限
	MaxReconnectAttempts int // 单次断线内的重连上限，0 表示只受退避上限约束

	MinReconnectDelay time.Duration
	MaxReconnectDelay time.Duration
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
}

// ApplyDefaults 填充未设置的配置项
func (c *Config) ApplyDefaults() {
	if c.FrameBufferSize <= 0 {
		c.FrameBufferSize = 1024
	}
	if c.ErrorBufferSize <= 0 {
		c.ErrorBufferSize = 32
	}
	if c.CommandQueueSize <= 0 {
		c.CommandQueueSize = 64
	}
	if c.MinReconnectDelay <= 0 {
		c.MinReconnectDelay = 500 * time.Millisecond
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
}

// Client 单条流式连接
type Client struct {
	cfg Config
	log *logrus.Entry

	conn   *websocket.Conn
	connMu sync.Mutex

	subs    map[string]bool // 活跃订阅，重连后全部重发
	pending []pendingCmd    // 断线期间缓冲的控制帧
	subMu   sync.Mutex

	frames chan Frame
	errs   chan error
	states chan ConnState
	lost   *sigchan.Chan

	nextID    atomic.Uint64
	running   bool
	runningMu sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	doneCh    chan struct{}
}

// NewClient 创建连接客户端（不建立连接）
func NewClient(cfg Config) *Client {
	cfg.ApplyDefaults()
	return &Client{
		cfg:    cfg,
		log:    logrus.WithField("component", "ws."+cfg.Name),
		subs:   make(map[string]bool),
		frames: make(chan Frame, cfg.FrameBufferSize),
		errs:   make(chan error, cfg.ErrorBufferSize),
		states: make(chan ConnState, 8),
		lost:   sigchan.New(1),
		doneCh: make(chan struct{}),
	}
}

// Start 建立连接并启动读取/心跳/重连循环
func (c *Client) Start(ctx context.Context) error {
	c.runningMu.Lock()
	if c.running {
		c.runningMu.Unlock()
		return errors.Errorf("ws %s: already running", c.cfg.Name)
	}
	c.running = true
	c.runningMu.Unlock()

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(c.ctx); err != nil {
		c.runningMu.Lock()
		c.running = false
		c.runningMu.Unlock()
		return err
	}
	c.emitState(StateConnected)

	go c.manageLoop()
	go c.pingLoop()
	c.log.Infof("已连接 %s", c.cfg.URL)
	return nil
}

// Stop 关闭连接并等待循环退出
func (c *Client) Stop() {
	c.runningMu.Lock()
	if !c.running {
		c.runningMu.Unlock()
		return
	}
	c.running = false
	c.runningMu.Unlock()

	c.cancel()
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	select {
	case <-c.doneCh:
	case <-time.After(5 * time.Second):
		c.log.Warn("关闭超时")
	}
	c.emitState(StateClosed)
}

// Frames 返回订阅推送通道（单连接内保持到达顺序）
func (c *Client) Frames() <-chan Frame { return c.frames }

// Errors 返回错误通道（解码错误、重连耗尽等）
func (c *Client) Errors() <-chan error { return c.errs }

// States 返回连接状态事件通道
func (c *Client) States() <-chan ConnState { return c.states }

// Subscribe 注册并发送对 channel 的订阅。断线期间命令进入有界缓冲，
// 缓冲溢出返回 ErrBackpressureExceeded，订阅作废，由调用方显式重订阅。
func (c *Client) Subscribe(channel string) error {
	c.subMu.Lock()
	c.subs[channel] = true
	c.subMu.Unlock()
	if err := c.sendControl("subscribe", types.SubscribeParams{Channel: channel}); err != nil {
		// 发送失败的订阅不能留在重发集合里，否则重连后会悄悄复活
		c.subMu.Lock()
		delete(c.subs, channel)
		c.subMu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe 取消对 channel 的订阅
func (c *Client) Unsubscribe(channel string) error {
	c.subMu.Lock()
	delete(c.subs, channel)
	c.subMu.Unlock()
	return c.sendControl("unsubscribe", types.SubscribeParams{Channel: channel})
}

// pendingCmd 断线期间缓冲的控制帧。method 用于重连冲刷时识别
// 已经由订阅集合重发过的帧。
type pendingCmd struct {
	method string
	frame  []byte
}

// sendControl 编码并发送一条 JSON-RPC 控制帧
func (c *Client) sendControl(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(types.ErrDecode, err.Error())
	}
	frame, err := json.Marshal(types.WSRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  raw,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return errors.Wrap(types.ErrDecode, err.Error())
	}
	return c.write(method, frame)
}

// write 发送一帧；连接不可用时进入有界缓冲
func (c *Client) write(method string, frame []byte) error {
	c.connMu.Lock()
	if c.conn != nil {
		err := c.conn.WriteMessage(websocket.TextMessage, frame)
		c.connMu.Unlock()
		if err != nil {
			return errors.Wrapf(types.ErrNetwork, "ws %s write: %v", c.cfg.Name, err)
		}
		return nil
	}
	c.connMu.Unlock()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if len(c.pending) >= c.cfg.CommandQueueSize {
		return errors.Wrapf(types.ErrBackpressureExceeded,
			"ws %s: %d buffered commands", c.cfg.Name, len(c.pending))
	}
	c.pending = append(c.pending, pendingCmd{method: method, frame: frame})
	return nil
}

// connect 拨号并完成私有连接的认证帧
func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return errors.Wrapf(types.ErrNetwork, "ws %s dial: %v", c.cfg.Name, err)
	}

	if c.cfg.Token != nil {
		token, err := c.cfg.Token(ctx)
		if err != nil {
			_ = conn.Close()
			return errors.Wrapf(err, "ws %s token", c.cfg.Name)
		}
		raw, _ := json.Marshal(types.AuthParams{Bearer: token})
		authFrame, _ := json.Marshal(types.WSRequest{
			JSONRPC: "2.0",
			Method:  "auth",
			Params:  raw,
			ID:      c.nextID.Add(1),
		})
		if err := conn.WriteMessage(websocket.TextMessage, authFrame); err != nil {
			_ = conn.Close()
			return errors.Wrapf(types.ErrNetwork, "ws %s auth frame: %v", c.cfg.Name, err)
		}
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.readLoop(conn)
	return nil
}

// readLoop 持续读取一条连接，出错后触发重连信号并退出
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.connMu.Lock()
			if c.conn == conn {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.connMu.Unlock()

			if c.isRunning() && !websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warnf("读取失败: %v", err)
				c.emitState(StateDisconnected)
				c.lost.Emit()
			}
			return
		}
		c.handleMessage(message)
	}
}

// handleMessage 解码入站帧。坏帧只上报解码错误，连接保持。
func (c *Client) handleMessage(message []byte) {
	var resp types.WSResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		c.emitError(errors.Wrapf(types.ErrDecode, "ws %s: %v", c.cfg.Name, err))
		return
	}
	if resp.Error != nil {
		c.emitError(errors.Errorf("ws %s: rpc error %d: %s",
			c.cfg.Name, resp.Error.Code, resp.Error.Message))
		return
	}
	if resp.Method != "subscription" || resp.Params == nil {
		// 控制帧应答，无需投递
		return
	}
	select {
	case c.frames <- Frame{Channel: resp.Params.Channel, Data: resp.Params.Data, Received: time.Now()}:
	case <-c.ctx.Done():
	}
}

// manageLoop 监听断线信号并以带抖动的指数退避重连
func (c *Client) manageLoop() {
	defer close(c.doneCh)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.lost.C():
		}

		b := &backoff.Backoff{
			Min:    c.cfg.MinReconnectDelay,
			Max:    c.cfg.MaxReconnectDelay,
			Factor: 2,
			Jitter: true,
		}
		attempts := 0
		for c.isRunning() {
			attempts++
			if c.cfg.MaxReconnectAttempts > 0 && attempts > c.cfg.MaxReconnectAttempts {
				c.emitError(errors.Wrapf(types.ErrNetwork,
					"ws %s: reconnect attempts exhausted (%d)", c.cfg.Name, c.cfg.MaxReconnectAttempts))
				return
			}
			delay := b.Duration()
			c.log.Infof("%v 后重连（第 %d 次）", delay, attempts)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}
			if err := c.connect(c.ctx); err != nil {
				c.log.Warnf("重连失败: %v", err)
				continue
			}
			c.resubscribe()
			c.emitState(StateConnected)
			c.log.Info("重连成功")
			break
		}
	}
}

// resubscribe 重发全部活跃订阅，再冲刷断线期间缓冲的控制帧。
// 服务端不保证订阅跨连接存活，必须全量重发；缓冲里的
// subscribe/unsubscribe 帧已由订阅集合对账，冲刷时跳过以免重发。
func (c *Client) resubscribe() {
	c.subMu.Lock()
	channels := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		channels = append(channels, ch)
	}
	pending := c.pending
	c.pending = nil
	c.subMu.Unlock()

	for _, ch := range channels {
		if err := c.sendControl("subscribe", types.SubscribeParams{Channel: ch}); err != nil {
			c.emitError(errors.Wrapf(err, "resubscribe %s", ch))
		}
	}
	for _, cmd := range pending {
		if cmd.method == "subscribe" || cmd.method == "unsubscribe" {
			continue
		}
		if err := c.write(cmd.method, cmd.frame); err != nil {
			c.emitError(errors.Wrap(err, "flush pending command"))
		}
	}
}

// pingLoop 周期性发送心跳帧
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			if conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

func (c *Client) isRunning() bool {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()
	return c.running
}

func (c *Client) emitError(err error) {
	select {
	case c.errs <- err:
	default:
		c.log.Warnf("错误通道已满，丢弃: %v", err)
	}
}

func (c *Client) emitState(s ConnState) {
	select {
	case c.states <- s:
	default:
	}
}
