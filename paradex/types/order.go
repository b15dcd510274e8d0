package types

import (
	"github.com/shopspring/decimal"
)

// OrderStatus 订单生命周期状态
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"              // 本地已创建，尚未发送
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"        // 已发送，等待交易所确认
	OrderStatusOpen            OrderStatus = "OPEN"             // 交易所已接受，挂单中
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED" // 部分成交
	OrderStatusFilled          OrderStatus = "FILLED"           // 全部成交（终态）
	OrderStatusCancelled       OrderStatus = "CANCELLED"        // 已取消（终态）
	OrderStatusRejected        OrderStatus = "REJECTED"         // 交易所拒绝（终态）
	OrderStatusModifyPending   OrderStatus = "MODIFY_PENDING"   // 修改请求已发出，等待确认
)

// IsTerminal 检查状态是否为终态
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// OrderRequest 下单请求
type OrderRequest struct {
	Market      string          `json:"market"`
	Side        Side            `json:"side"`
	Type        OrderType       `json:"type"`
	Size        decimal.Decimal `json:"size"`
	Price       decimal.Decimal `json:"price"`
	ClientID    string          `json:"client_id"`
	Instruction string          `json:"instruction,omitempty"` // GTC / POST_ONLY / IOC
	Signature   string          `json:"signature"`
	Timestamp   int64           `json:"signature_timestamp"` // 签名时间戳（毫秒）
}

// ModifyOrderRequest 改单请求
type ModifyOrderRequest struct {
	ID        string          `json:"id"`
	Market    string          `json:"market"`
	Side      Side            `json:"side"`
	Type      OrderType       `json:"type"`
	Size      decimal.Decimal `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Signature string          `json:"signature"`
	Timestamp int64           `json:"signature_timestamp"`
}

// OrderAck 交易所对订单命令的直接应答
type OrderAck struct {
	ID            string          `json:"id"`
	ClientID      string          `json:"client_id"`
	Market        string          `json:"market"`
	Status        OrderStatus     `json:"status"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Size          decimal.Decimal `json:"size"`
	RemainingSize decimal.Decimal `json:"remaining_size"`
	Price         decimal.Decimal `json:"price"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	CreatedAt     int64           `json:"created_at"`
}

// OrderEvent 私有流上的订单事件（成交/取消/拒绝均走同一结构）
type OrderEvent struct {
	ID            string          `json:"id"`
	ClientID      string          `json:"client_id"`
	Market        string          `json:"market"`
	Status        OrderStatus     `json:"status"`
	Side          Side            `json:"side"`
	Size          decimal.Decimal `json:"size"`
	RemainingSize decimal.Decimal `json:"remaining_size"`
	Price         decimal.Decimal `json:"price"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	Timestamp     int64           `json:"timestamp"`
}

// FillEvent 私有流上的成交明细
type FillEvent struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Market    string          `json:"market"`
	Side      Side            `json:"side"`
	Size      decimal.Decimal `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
	CreatedAt int64           `json:"created_at"`
}
