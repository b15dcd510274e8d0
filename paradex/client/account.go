package client

import (
	"context"

	"github.com/betbot/paradexbot/paradex/types"
)

// GetAccountInfo 查询账户概要（需要有效凭证）
func (c *Client) GetAccountInfo(ctx context.Context, token string) (*types.AccountInfo, error) {
	info := &types.AccountInfo{}
	resp, err := c.newRequest(ctx, token).
		SetResult(info).
		Get("/account")
	if cerr := checkResponse(resp, err); cerr != nil {
		return nil, cerr
	}
	return info, nil
}

// GetBalances 查询各币种余额
func (c *Client) GetBalances(ctx context.Context, token string) ([]types.Balance, error) {
	var result struct {
		Results []types.Balance `json:"results"`
	}
	resp, err := c.newRequest(ctx, token).
		SetResult(&result).
		Get("/balance")
	if cerr := checkResponse(resp, err); cerr != nil {
		return nil, cerr
	}
	return result.Results, nil
}

// GetPositions 查询持仓
func (c *Client) GetPositions(ctx context.Context, token string) ([]types.Position, error) {
	var result struct {
		Results []types.Position `json:"results"`
	}
	resp, err := c.newRequest(ctx, token).
		SetResult(&result).
		Get("/positions")
	if cerr := checkResponse(resp, err); cerr != nil {
		return nil, cerr
	}
	return result.Results, nil
}
