package types

import (
	"encoding/json"
	"fmt"
)

// WS 帧走 JSON-RPC 2.0：出站 subscribe/unsubscribe/auth 带递增 id，
// 入站订阅数据以 method=subscription 推送，channel 标识来源频道。

// WSRequest 出站控制帧
type WSRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      uint64          `json:"id"`
}

// WSResponse 入站帧（控制应答或订阅推送）
type WSResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  *WSParams       `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WSError        `json:"error,omitempty"`
	ID      *uint64         `json:"id,omitempty"`
}

// WSParams 订阅推送负载
type WSParams struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// WSError JSON-RPC 错误对象
type WSError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SubscribeParams subscribe/unsubscribe 的参数
type SubscribeParams struct {
	Channel string `json:"channel"`
}

// AuthParams 私有连接建立后发送的认证参数
type AuthParams struct {
	Bearer string `json:"bearer"`
}

// 频道名构造。market 为空时私有频道使用 ALL 通配。

// ChannelMarketsSummary 全市场概要（公开）
func ChannelMarketsSummary() string { return "markets_summary" }

// ChannelBBO 最优买卖价（公开）
func ChannelBBO(market string) string { return "bbo." + market }

// ChannelTrades 成交流（公开）
func ChannelTrades(market string) string { return "trades." + market }

// ChannelOrderBook 订单簿快照（公开）
func ChannelOrderBook(market, refreshRate string) string {
	return fmt.Sprintf("order_book.%s.snapshot@15@%s", market, refreshRate)
}

// ChannelFundingData 资金费率数据（公开）
func ChannelFundingData(market string) string { return "funding_data." + market }

// ChannelOrders 自有订单事件（私有）
func ChannelOrders(market string) string { return "orders." + orAll(market) }

// ChannelFills 自有成交（私有）
func ChannelFills(market string) string { return "fills." + orAll(market) }

// ChannelPositions 持仓更新（私有）
func ChannelPositions() string { return "positions" }

// ChannelAccount 账户更新（私有）
func ChannelAccount() string { return "account" }

// ChannelBalanceEvents 余额事件（私有）
func ChannelBalanceEvents() string { return "balance_events" }

// ChannelFundingPayments 资金费支付（私有）
func ChannelFundingPayments(market string) string { return "funding_payments." + orAll(market) }

func orAll(market string) string {
	if market == "" {
		return "ALL"
	}
	return market
}
