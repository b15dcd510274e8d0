// Package stream 管理公开/私有两条流式连接上的订阅：状态机、
// 类型化事件投递和断线后的订阅恢复。
package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/paradexbot/internal/events"
	"github.com/betbot/paradexbot/paradex/types"
	"github.com/betbot/paradexbot/paradex/ws"
)

// SubscriptionState 订阅状态
type SubscriptionState string

const (
	StateConnecting SubscriptionState = "connecting" // 已请求，等待首条消息
	StateActive     SubscriptionState = "active"     // 收到首条消息后
	StateDegraded   SubscriptionState = "degraded"   // 重连进行中
	StateClosed     SubscriptionState = "closed"     // 显式退订或会话收尾
)

// Subscription 一条订阅及其状态
type Subscription struct {
	Channel    string
	Visibility types.Visibility
	State      SubscriptionState
}

// Credentials 私有连接所需的凭证来源
type Credentials interface {
	EnsureValid(ctx context.Context) error
	Token(ctx context.Context) (string, error)
}

// Config 订阅器配置
type Config struct {
	PublicURL  string
	PrivateURL string

	MaxReconnectAttempts int
	MaxReconnectDelay    time.Duration
	CommandQueueSize     int
	EventBufferSize      int
}

// Subscriber 维护两条连接（公开/私有）上的全部订阅。
// 连接内帧按到达顺序投递；两条连接之间不保证相对顺序。
type Subscriber struct {
	cfg   Config
	creds Credentials
	log   *logrus.Entry

	mu      sync.Mutex
	subs    map[string]*Subscription
	clients map[types.Visibility]*ws.Client
	started map[types.Visibility]bool

	events chan any
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSubscriber 创建订阅器
func NewSubscriber(cfg Config, creds Credentials) *Subscriber {
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 1024
	}
	return &Subscriber{
		cfg:     cfg,
		creds:   creds,
		log:     logrus.WithField("component", "stream"),
		subs:    make(map[string]*Subscription),
		clients: make(map[types.Visibility]*ws.Client),
		started: make(map[types.Visibility]bool),
		events:  make(chan any, cfg.EventBufferSize),
	}
}

// Start 绑定生命周期 context；连接按需在首次订阅时建立
func (s *Subscriber) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
}

// Events 返回类型化事件通道
func (s *Subscriber) Events() <-chan any { return s.events }

// Subscribe 订阅一个频道。私有频道要求凭证先行有效；
// 背压溢出时该订阅作废并返回 ErrBackpressureExceeded，
// 由调用方决定是否重新订阅。
func (s *Subscriber) Subscribe(ctx context.Context, channel string, visibility types.Visibility) error {
	if visibility == types.VisibilityPrivate {
		if err := s.creds.EnsureValid(ctx); err != nil {
			return errors.Wrapf(err, "subscribe %s", channel)
		}
	}

	client, err := s.clientFor(visibility)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.subs[channel] = &Subscription{
		Channel:    channel,
		Visibility: visibility,
		State:      StateConnecting,
	}
	s.mu.Unlock()

	if err := client.Subscribe(channel); err != nil {
		s.mu.Lock()
		if sub, ok := s.subs[channel]; ok {
			sub.State = StateClosed
		}
		s.mu.Unlock()
		return err
	}
	s.log.Infof("已订阅 %s (%s)", channel, visibility)
	return nil
}

// Unsubscribe 退订频道
func (s *Subscriber) Unsubscribe(channel string) error {
	s.mu.Lock()
	sub, ok := s.subs[channel]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	visibility := sub.Visibility
	sub.State = StateClosed
	s.mu.Unlock()

	client := s.existingClient(visibility)
	if client == nil {
		return nil
	}
	return client.Unsubscribe(channel)
}

// State 返回某条订阅的当前状态
func (s *Subscriber) State(channel string) (SubscriptionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[channel]
	if !ok {
		return "", false
	}
	return sub.State, true
}

// Snapshot 返回全部订阅的拷贝
func (s *Subscriber) Snapshot() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, *sub)
	}
	return out
}

// Close 关闭全部连接并标记订阅关闭
func (s *Subscriber) Close() {
	s.mu.Lock()
	for _, sub := range s.subs {
		sub.State = StateClosed
	}
	clients := make([]*ws.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	for _, c := range clients {
		c.Stop()
	}
	s.wg.Wait()
}

// clientFor 返回（必要时建立）visibility 对应的连接
func (s *Subscriber) clientFor(visibility types.Visibility) (*ws.Client, error) {
	s.mu.Lock()
	client, ok := s.clients[visibility]
	if !ok {
		cfg := ws.Config{
			Name:                 string(visibility),
			MaxReconnectAttempts: s.cfg.MaxReconnectAttempts,
			MaxReconnectDelay:    s.cfg.MaxReconnectDelay,
			CommandQueueSize:     s.cfg.CommandQueueSize,
		}
		if visibility == types.VisibilityPrivate {
			cfg.URL = s.cfg.PrivateURL
			cfg.Token = s.creds.Token
		} else {
			cfg.URL = s.cfg.PublicURL
		}
		client = ws.NewClient(cfg)
		s.clients[visibility] = client
	}
	needStart := !s.started[visibility]
	if needStart {
		s.started[visibility] = true
	}
	s.mu.Unlock()

	if needStart {
		if err := client.Start(s.ctx); err != nil {
			s.mu.Lock()
			s.started[visibility] = false
			s.mu.Unlock()
			return nil, err
		}
		s.wg.Add(2)
		go s.pumpFrames(visibility, client)
		go s.pumpSignals(visibility, client)
	}
	return client, nil
}

// existingClient 返回已建立的连接，没有则为 nil
func (s *Subscriber) existingClient(visibility types.Visibility) *ws.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started[visibility] {
		return nil
	}
	return s.clients[visibility]
}

// pumpFrames 将一条连接的帧解码为类型化事件。解码失败只丢弃该帧。
func (s *Subscriber) pumpFrames(visibility types.Visibility, client *ws.Client) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-client.Frames():
			if !ok {
				return
			}
			s.markActive(frame.Channel)
			s.emit(s.decodeFrame(frame))
		}
	}
}

// pumpSignals 把连接状态与连接级错误转成事件
func (s *Subscriber) pumpSignals(visibility types.Visibility, client *ws.Client) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case state, ok := <-client.States():
			if !ok {
				return
			}
			switch state {
			case ws.StateDisconnected:
				s.markVisibility(visibility, StateDegraded)
				s.emit(events.ConnectionStateEvent{Visibility: visibility, Connected: false})
			case ws.StateConnected:
				// 订阅保持 degraded，收到首条消息才回到 active
				s.emit(events.ConnectionStateEvent{Visibility: visibility, Connected: true})
			case ws.StateClosed:
				s.markVisibility(visibility, StateClosed)
			}
		case err, ok := <-client.Errors():
			if !ok {
				return
			}
			if errors.Is(err, types.ErrDecode) {
				s.emit(events.DecodeErrorEvent{Err: err, Received: time.Now()})
				continue
			}
			s.emit(events.StreamErrorEvent{Visibility: visibility, Err: err})
		}
	}
}

// decodeFrame 按频道前缀解码为类型化事件
func (s *Subscriber) decodeFrame(frame ws.Frame) any {
	switch {
	case strings.HasPrefix(frame.Channel, "orders."):
		var ev types.OrderEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return events.DecodeErrorEvent{Channel: frame.Channel, Err: errors.Wrap(types.ErrDecode, err.Error()), Received: frame.Received}
		}
		return events.OrderUpdateEvent{Order: ev, Received: frame.Received}
	case strings.HasPrefix(frame.Channel, "fills."):
		var ev types.FillEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return events.DecodeErrorEvent{Channel: frame.Channel, Err: errors.Wrap(types.ErrDecode, err.Error()), Received: frame.Received}
		}
		return events.FillEvent{Fill: ev, Received: frame.Received}
	default:
		return events.MarketDataEvent{Channel: frame.Channel, Data: frame.Data, Received: frame.Received}
	}
}

// markActive 收到频道首条消息后将订阅置为 active
func (s *Subscriber) markActive(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[channel]; ok {
		if sub.State == StateConnecting || sub.State == StateDegraded {
			sub.State = StateActive
		}
	}
}

// markVisibility 批量修改某条连接上全部非关闭订阅的状态
func (s *Subscriber) markVisibility(visibility types.Visibility, state SubscriptionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.Visibility == visibility && sub.State != StateClosed {
			sub.State = state
		}
	}
}

// emit 投递事件；缓冲满时丢弃并告警（事件消费方长期落后说明
// 上层已经失效，阻塞读取循环只会放大故障）
func (s *Subscriber) emit(ev any) {
	if ev == nil {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warnf("事件缓冲已满，丢弃 %T", ev)
	}
}
