// Package engine 维护本地订单状态机并驱动下单/改单/撤单
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/paradexbot/paradex/signing"
	"github.com/betbot/paradexbot/paradex/types"
)

// OrderAPI 交易所订单接口，由 paradex/client 实现
type OrderAPI interface {
	CreateOrder(ctx context.Context, token string, req *types.OrderRequest) (*types.OrderAck, error)
	ModifyOrder(ctx context.Context, token string, req *types.ModifyOrderRequest) (*types.OrderAck, error)
	CancelOrder(ctx context.Context, token, orderID string) error
	CancelAllOrders(ctx context.Context, token, market string) error
	GetOpenOrders(ctx context.Context, token, market string) ([]types.OrderAck, error)
}

// Credentials 提供有效的会话令牌
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// SubmitRequest 下单参数。市价单 Price 会被置零。
type SubmitRequest struct {
	Market      string
	Side        types.Side
	Type        types.OrderType
	Size        decimal.Decimal
	Price       decimal.Decimal
	Instruction string
}

// Order 本地跟踪的订单快照
type Order struct {
	ID            string // 交易所订单号，确认前为空
	ClientID      string
	Market        string
	Side          types.Side
	Type          types.OrderType
	Size          decimal.Decimal
	Price         decimal.Decimal
	RemainingSize decimal.Decimal
	FilledSize    decimal.Decimal
	Status        types.OrderStatus
	CancelReason  string
	cancelSent    bool
	UpdatedAt     time.Time
}

// Engine 订单引擎。REST 应答与私有流事件到达顺序不定，
// 两路更新经同一状态机合并，结果与到达顺序无关。
type Engine struct {
	api   OrderAPI
	creds Credentials
	km    *signing.KeyManager
	log   *logrus.Entry
	now   func() time.Time

	mu       sync.Mutex
	byClient map[string]*Order // client_id -> order
	byServer map[string]string // 交易所订单号 -> client_id
}

// NewEngine 创建订单引擎
func NewEngine(api OrderAPI, creds Credentials, km *signing.KeyManager) *Engine {
	return &Engine{
		api:      api,
		creds:    creds,
		km:       km,
		log:      logrus.WithField("component", "engine"),
		now:      time.Now,
		byClient: make(map[string]*Order),
		byServer: make(map[string]string),
	}
}

// allowedTransition 判断状态跃迁是否可接受。
// 两路事件可能乱序到达，允许前向跳跃（如 SUBMITTED→FILLED），
// 拒绝回退（如 PARTIALLY_FILLED 之后的 OPEN），终态不可再变。
func allowedTransition(cur, next types.OrderStatus) bool {
	if cur == next {
		// 部分成交可重复更新剩余数量
		return cur == types.OrderStatusPartiallyFilled
	}
	if cur.IsTerminal() {
		return false
	}
	switch cur {
	case types.OrderStatusNew:
		return next != types.OrderStatusNew
	case types.OrderStatusSubmitted:
		return next != types.OrderStatusNew && next != types.OrderStatusSubmitted
	case types.OrderStatusOpen, types.OrderStatusModifyPending:
		switch next {
		case types.OrderStatusNew, types.OrderStatusSubmitted:
			return false
		}
		return true
	case types.OrderStatusPartiallyFilled:
		return next == types.OrderStatusFilled || next == types.OrderStatusCancelled
	}
	return false
}

func validateSubmit(req SubmitRequest) error {
	if req.Market == "" {
		return errors.New("market 不能为空")
	}
	if !req.Side.Valid() {
		return errors.Errorf("非法方向: %s", req.Side)
	}
	if !req.Size.IsPositive() {
		return errors.Errorf("size 必须为正: %s", req.Size)
	}
	if req.Type == types.OrderTypeLimit && !req.Price.IsPositive() {
		return errors.Errorf("限价单 price 必须为正: %s", req.Price)
	}
	return nil
}

// Submit 本地校验、签名并提交订单。交易所明确拒绝时返回
// 包裹 ErrOrderRejected 的错误；网络失败时订单停留在
// SUBMITTED，由后续对账解决。
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*Order, error) {
	if err := validateSubmit(req); err != nil {
		return nil, err
	}
	if req.Type == types.OrderTypeMarket {
		req.Price = decimal.Zero
	}

	token, err := e.creds.Token(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "获取令牌失败")
	}

	ts := e.now().UnixMilli()
	sig, err := e.km.Sign(signing.OrderPayload{
		Timestamp: ts,
		Market:    req.Market,
		Side:      req.Side,
		OrderType: req.Type,
		Size:      req.Size,
		Price:     req.Price,
	}, signing.RoleSubkey)
	if err != nil {
		return nil, errors.Wrap(err, "订单签名失败")
	}

	order := &Order{
		ClientID:      uuid.NewString(),
		Market:        req.Market,
		Side:          req.Side,
		Type:          req.Type,
		Size:          req.Size,
		Price:         req.Price,
		RemainingSize: req.Size,
		Status:        types.OrderStatusNew,
		UpdatedAt:     e.now(),
	}
	e.mu.Lock()
	e.byClient[order.ClientID] = order
	order.Status = types.OrderStatusSubmitted
	e.mu.Unlock()

	ack, err := e.api.CreateOrder(ctx, token, &types.OrderRequest{
		Market:      req.Market,
		Side:        req.Side,
		Type:        req.Type,
		Size:        req.Size,
		Price:       req.Price,
		ClientID:    order.ClientID,
		Instruction: req.Instruction,
		Signature:   sig.Header(),
		Timestamp:   ts,
	})
	if err != nil {
		if errors.Is(err, types.ErrOrderRejected) {
			e.applyUpdate("", order.ClientID, types.OrderStatusRejected, decimal.Zero, err.Error())
			return e.snapshotOf(order.ClientID), errors.Wrapf(err, "订单 %s 被拒绝", order.ClientID)
		}
		e.log.Warnf("下单应答缺失，订单 %s 状态待对账: %v", order.ClientID, err)
		return e.snapshotOf(order.ClientID), errors.Wrapf(err, "提交订单 %s 失败", order.ClientID)
	}
	e.ApplyAck(ack)
	return e.snapshotOf(order.ClientID), nil
}

// Modify 改单。仅 OPEN 状态可改，否则返回 ErrInvalidOrderState。
// 请求发出后订单进入 MODIFY_PENDING，确认或拒绝时回到 OPEN/REJECTED。
func (e *Engine) Modify(ctx context.Context, orderID string, size, price decimal.Decimal) error {
	if !size.IsPositive() || !price.IsPositive() {
		return errors.Errorf("改单参数非法: size=%s price=%s", size, price)
	}

	e.mu.Lock()
	order := e.lookupLocked(orderID, "")
	if order == nil {
		e.mu.Unlock()
		return errors.Wrapf(types.ErrInvalidOrderState, "未知订单 %s", orderID)
	}
	if order.Status != types.OrderStatusOpen {
		st := order.Status
		e.mu.Unlock()
		return errors.Wrapf(types.ErrInvalidOrderState, "订单 %s 状态 %s 不可改单", orderID, st)
	}
	order.Status = types.OrderStatusModifyPending
	order.UpdatedAt = e.now()
	clientID := order.ClientID
	// 线上请求用交易所订单号；调用方可能只持有本地单号
	wireID := order.ID
	if wireID == "" {
		wireID = clientID
	}
	market, side, otype := order.Market, order.Side, order.Type
	e.mu.Unlock()

	revert := func() {
		e.mu.Lock()
		if o := e.byClient[clientID]; o != nil && o.Status == types.OrderStatusModifyPending {
			o.Status = types.OrderStatusOpen
			o.UpdatedAt = e.now()
		}
		e.mu.Unlock()
	}

	token, err := e.creds.Token(ctx)
	if err != nil {
		revert()
		return errors.Wrap(err, "获取令牌失败")
	}
	ts := e.now().UnixMilli()
	sig, err := e.km.Sign(signing.OrderPayload{
		Timestamp: ts,
		Market:    market,
		Side:      side,
		OrderType: otype,
		Size:      size,
		Price:     price,
	}, signing.RoleSubkey)
	if err != nil {
		revert()
		return errors.Wrap(err, "改单签名失败")
	}

	ack, err := e.api.ModifyOrder(ctx, token, &types.ModifyOrderRequest{
		ID:        wireID,
		Market:    market,
		Side:      side,
		Type:      otype,
		Size:      size,
		Price:     price,
		Signature: sig.Header(),
		Timestamp: ts,
	})
	if err != nil {
		if errors.Is(err, types.ErrOrderRejected) {
			e.applyUpdate(wireID, clientID, types.OrderStatusRejected, decimal.Zero, err.Error())
		} else {
			revert()
		}
		return errors.Wrapf(err, "改单 %s 失败", orderID)
	}
	e.mu.Lock()
	if o := e.byClient[clientID]; o != nil {
		o.Size = size
		o.Price = price
	}
	e.mu.Unlock()
	e.ApplyAck(ack)
	return nil
}

// Cancel 撤单。幂等：终态订单或已发出撤单请求的订单直接返回 nil，
// 不再发起网络调用。
func (e *Engine) Cancel(ctx context.Context, orderID string) error {
	e.mu.Lock()
	order := e.lookupLocked(orderID, "")
	if order == nil {
		e.mu.Unlock()
		return errors.Wrapf(types.ErrInvalidOrderState, "未知订单 %s", orderID)
	}
	if order.Status.IsTerminal() || order.cancelSent {
		e.mu.Unlock()
		return nil
	}
	order.cancelSent = true
	clientID := order.ClientID
	wireID := order.ID
	if wireID == "" {
		wireID = clientID
	}
	e.mu.Unlock()

	token, err := e.creds.Token(ctx)
	if err == nil {
		err = e.api.CancelOrder(ctx, token, wireID)
	}
	if err != nil {
		// 撤单未送达，允许重试
		e.mu.Lock()
		if o := e.byClient[clientID]; o != nil {
			o.cancelSent = false
		}
		e.mu.Unlock()
		return errors.Wrapf(err, "撤单 %s 失败", orderID)
	}
	return nil
}

// CancelAll 撤销指定市场的全部挂单
func (e *Engine) CancelAll(ctx context.Context, market string) error {
	token, err := e.creds.Token(ctx)
	if err != nil {
		return errors.Wrap(err, "获取令牌失败")
	}
	if err := e.api.CancelAllOrders(ctx, token, market); err != nil {
		return errors.Wrapf(err, "撤销 %s 全部挂单失败", market)
	}
	return nil
}

// ApplyAck 合并 REST 应答
func (e *Engine) ApplyAck(ack *types.OrderAck) {
	if ack == nil {
		return
	}
	e.applyUpdate(ack.ID, ack.ClientID, ack.Status, ack.RemainingSize, ack.CancelReason)
}

// OnOrderEvent 合并私有流订单事件
func (e *Engine) OnOrderEvent(ev types.OrderEvent) {
	e.applyUpdate(ev.ID, ev.ClientID, ev.Status, ev.RemainingSize, ev.CancelReason)
}

// OnFill 合并私有流成交明细
func (e *Engine) OnFill(ev types.FillEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order := e.lookupLocked(ev.OrderID, "")
	if order == nil {
		e.log.Warnf("孤儿成交事件: order_id=%s fill=%s", ev.OrderID, ev.ID)
		return
	}
	order.FilledSize = order.FilledSize.Add(ev.Size)
	order.UpdatedAt = e.now()
}

// ReconcileOpenOrders 拉取交易所挂单并合并，用于启动或断流后的对账
func (e *Engine) ReconcileOpenOrders(ctx context.Context, market string) error {
	token, err := e.creds.Token(ctx)
	if err != nil {
		return errors.Wrap(err, "获取令牌失败")
	}
	acks, err := e.api.GetOpenOrders(ctx, token, market)
	if err != nil {
		return errors.Wrap(err, "拉取挂单失败")
	}
	for i := range acks {
		e.ApplyAck(&acks[i])
	}
	return nil
}

// applyUpdate 两路来源共用的合并入口。以交易所订单号为主键，
// 回退到 client_id；无法匹配的事件记日志后丢弃。
func (e *Engine) applyUpdate(serverID, clientID string, status types.OrderStatus, remaining decimal.Decimal, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order := e.lookupLocked(serverID, clientID)
	if order == nil {
		e.log.Warnf("孤儿订单事件: id=%s client_id=%s status=%s", serverID, clientID, status)
		return
	}
	if serverID != "" && order.ID == "" {
		order.ID = serverID
		e.byServer[serverID] = order.ClientID
	}
	if !allowedTransition(order.Status, status) {
		e.log.Debugf("忽略过期状态: %s %s -> %s", order.ClientID, order.Status, status)
		return
	}
	order.Status = status
	order.RemainingSize = remaining
	if status == types.OrderStatusFilled {
		order.RemainingSize = decimal.Zero
	}
	if reason != "" {
		order.CancelReason = reason
	}
	order.UpdatedAt = e.now()
	e.log.Infof("订单 %s -> %s (剩余 %s)", order.ClientID, status, order.RemainingSize)
}

// lookupLocked 按交易所订单号或 client_id 查找，需持有 e.mu
func (e *Engine) lookupLocked(serverID, clientID string) *Order {
	if serverID != "" {
		if cid, ok := e.byServer[serverID]; ok {
			return e.byClient[cid]
		}
	}
	if clientID != "" {
		if o, ok := e.byClient[clientID]; ok {
			return o
		}
	}
	// 交易所订单号尚未绑定时，serverID 可能直接是 client_id
	if serverID != "" {
		if o, ok := e.byClient[serverID]; ok {
			return o
		}
	}
	return nil
}

func (e *Engine) snapshotOf(clientID string) *Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.byClient[clientID]; ok {
		cp := *o
		return &cp
	}
	return nil
}

// Get 返回订单快照，按交易所订单号或 client_id 匹配
func (e *Engine) Get(id string) (*Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o := e.lookupLocked(id, id)
	if o == nil {
		return nil, false
	}
	cp := *o
	return &cp, true
}

// Snapshot 返回全部订单的快照
func (e *Engine) Snapshot() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Order, 0, len(e.byClient))
	for _, o := range e.byClient {
		out = append(out, *o)
	}
	return out
}

// NonTerminal 返回未到终态的订单
func (e *Engine) NonTerminal() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Order
	for _, o := range e.byClient {
		if !o.Status.IsTerminal() {
			out = append(out, *o)
		}
	}
	return out
}
