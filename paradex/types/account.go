package types

import "github.com/shopspring/decimal"

// AccountInfo 账户概要
type AccountInfo struct {
	Account        string          `json:"account"`
	Status         string          `json:"status"`
	AccountValue   decimal.Decimal `json:"account_value"`
	FreeCollateral decimal.Decimal `json:"free_collateral"`
	UpdatedAt      int64           `json:"updated_at"`
}

// Balance 单币种余额
type Balance struct {
	Token     string          `json:"token"`
	Size      decimal.Decimal `json:"size"`
	UpdatedAt int64           `json:"last_updated_at"`
}

// Position 持仓
type Position struct {
	Market           string          `json:"market"`
	Side             string          `json:"side"` // LONG / SHORT
	Size             decimal.Decimal `json:"size"`
	AverageEntry     decimal.Decimal `json:"average_entry_price"`
	UnrealizedPnl    decimal.Decimal `json:"unrealized_pnl"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
}

// OnboardingStatus 注册状态查询结果
type OnboardingStatus struct {
	Account   string `json:"account"`
	Onboarded bool   `json:"onboarded"`
}

// AuthResult 认证应答
type AuthResult struct {
	JWTToken string `json:"jwt_token"`
}
