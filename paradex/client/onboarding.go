package client

import (
	"context"
	"net/http"

	"github.com/betbot/paradexbot/paradex/types"
)

// 注册与认证请求头，与交易所网关约定一致
const (
	headerEthereumAccount     = "PARADEX-ETHEREUM-ACCOUNT"
	headerStarknetAccount     = "PARADEX-STARKNET-ACCOUNT"
	headerStarknetSignature   = "PARADEX-STARKNET-SIGNATURE"
	headerTimestamp           = "PARADEX-TIMESTAMP"
	headerSignatureExpiration = "PARADEX-SIGNATURE-EXPIRATION"
)

// OnboardingRequest 注册提交参数
type OnboardingRequest struct {
	EthAddress      string // 根以太坊账户地址
	StarkAddress    string // 根 StarkNet 账户地址
	PublicKey       string // 根 StarkNet 公钥（请求体）
	SignatureHeader string // root 签名，["r","s"] 格式
}

// GetOnboardingStatus 查询账户注册状态。账户记录不存在（404）视为未注册。
func (c *Client) GetOnboardingStatus(ctx context.Context, starkAddress string) (*types.OnboardingStatus, error) {
	resp, err := c.newRequest(ctx, "").
		SetQueryParam("address", starkAddress).
		Get("/account")
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return &types.OnboardingStatus{Account: starkAddress, Onboarded: false}, nil
	}
	if cerr := checkResponse(resp, err); cerr != nil {
		return nil, cerr
	}
	return &types.OnboardingStatus{Account: starkAddress, Onboarded: true}, nil
}

// SubmitOnboarding 提交一次注册。签名不匹配等拒绝以 APIError 返回。
func (c *Client) SubmitOnboarding(ctx context.Context, req OnboardingRequest) error {
	resp, err := c.newRequest(ctx, "").
		SetHeader(headerEthereumAccount, req.EthAddress).
		SetHeader(headerStarknetAccount, req.StarkAddress).
		SetHeader(headerStarknetSignature, req.SignatureHeader).
		SetBody(map[string]string{"public_key": req.PublicKey}).
		Post("/onboarding")
	return checkResponse(resp, err)
}
