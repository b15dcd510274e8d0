// Package events 定义流式层向上投递的类型化事件
package events

import (
	"encoding/json"
	"time"

	"github.com/betbot/paradexbot/paradex/types"
)

// MarketDataEvent 公开市场数据帧（BBO、成交、订单簿等）
type MarketDataEvent struct {
	Channel  string
	Data     json.RawMessage
	Received time.Time
}

// OrderUpdateEvent 私有流上的订单事件
type OrderUpdateEvent struct {
	Order    types.OrderEvent
	Received time.Time
}

// FillEvent 私有流上的成交明细
type FillEvent struct {
	Fill     types.FillEvent
	Received time.Time
}

// DecodeErrorEvent 单帧解码失败。帧被丢弃，连接保持。
type DecodeErrorEvent struct {
	Channel  string
	Err      error
	Received time.Time
}

// StreamErrorEvent 流式层错误（背压、重连耗尽等）
type StreamErrorEvent struct {
	Visibility types.Visibility
	Err        error
}

// ConnectionStateEvent 连接状态变化
type ConnectionStateEvent struct {
	Visibility types.Visibility
	Connected  bool
}
