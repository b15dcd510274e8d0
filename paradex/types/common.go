package types

// Network 交易所网络环境
type Network string

const (
	NetworkTestnet    Network = "testnet"
	NetworkProduction Network = "production"
)

// RestURL 返回网络对应的 REST 基础地址
func (n Network) RestURL() string {
	if n == NetworkProduction {
		return "https://api.prod.paradex.trade/v1"
	}
	return "https://api.testnet.paradex.trade/v1"
}

// WSURL 返回网络对应的 WebSocket 地址
func (n Network) WSURL() string {
	if n == NetworkProduction {
		return "wss://ws.api.prod.paradex.trade/v1"
	}
	return "wss://ws.api.testnet.paradex.trade/v1"
}

// ChainID 返回网络对应的 StarkNet 链 ID（短字符串形式）
func (n Network) ChainID() string {
	if n == NetworkProduction {
		return "SN_MAIN"
	}
	return "SN_GOERLI"
}

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid 检查订单方向是否合法
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ChainSide 返回签名用的数字编码（BUY=1, SELL=2）
func (s Side) ChainSide() int64 {
	if s == SideSell {
		return 2
	}
	return 1
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"  // 限价单
	OrderTypeMarket OrderType = "MARKET" // 市价单
)

// Valid 检查订单类型是否合法
func (t OrderType) Valid() bool {
	return t == OrderTypeLimit || t == OrderTypeMarket
}

// Visibility 频道可见性
type Visibility string

const (
	VisibilityPublic  Visibility = "public"  // 公开频道，无需凭证
	VisibilityPrivate Visibility = "private" // 私有频道，需要有效凭证
)
