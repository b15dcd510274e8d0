package client

import (
	"context"

	"github.com/betbot/paradexbot/paradex/types"
)

// CreateOrder 提交新订单。应答是交易所的直接确认，与私有流事件
// 可能乱序到达，由上层引擎合并。
func (c *Client) CreateOrder(ctx context.Context, token string, req *types.OrderRequest) (*types.OrderAck, error) {
	ack := &types.OrderAck{}
	resp, err := c.newRequest(ctx, token).
		SetBody(req).
		SetResult(ack).
		Post("/orders")
	if cerr := checkResponse(resp, err); cerr != nil {
		return nil, cerr
	}
	return ack, nil
}

// ModifyOrder 修改挂单的价格/数量
func (c *Client) ModifyOrder(ctx context.Context, token string, req *types.ModifyOrderRequest) (*types.OrderAck, error) {
	ack := &types.OrderAck{}
	resp, err := c.newRequest(ctx, token).
		SetBody(req).
		SetResult(ack).
		Put("/orders/" + req.ID)
	if cerr := checkResponse(resp, err); cerr != nil {
		return nil, cerr
	}
	return ack, nil
}

// CancelOrder 按交易所订单 ID 撤单
func (c *Client) CancelOrder(ctx context.Context, token, orderID string) error {
	resp, err := c.newRequest(ctx, token).
		Delete("/orders/" + orderID)
	return checkResponse(resp, err)
}

// CancelAllOrders 撤掉全部挂单；market 非空时只撤该市场
func (c *Client) CancelAllOrders(ctx context.Context, token, market string) error {
	r := c.newRequest(ctx, token)
	if market != "" {
		r.SetQueryParam("market", market)
	}
	resp, err := r.Delete("/orders")
	return checkResponse(resp, err)
}

// GetOpenOrders 查询当前挂单
func (c *Client) GetOpenOrders(ctx context.Context, token, market string) ([]types.OrderAck, error) {
	var result struct {
		Results []types.OrderAck `json:"results"`
	}
	r := c.newRequest(ctx, token).SetResult(&result)
	if market != "" {
		r.SetQueryParam("market", market)
	}
	resp, err := r.Get("/orders")
	if cerr := checkResponse(resp, err); cerr != nil {
		return nil, cerr
	}
	return result.Results, nil
}
