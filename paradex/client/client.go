// Package client 提供交易所 REST 接口：注册、认证、订单命令和账户查询。
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/paradexbot/paradex/types"
)

// Client 交易所 REST 客户端
type Client struct {
	http    *resty.Client
	network types.Network
}

// NewClient 创建指向 network 对应环境的客户端
func NewClient(network types.Network) *Client {
	return NewClientWithBaseURL(network, network.RestURL())
}

// NewClientWithBaseURL 创建指向自定义地址的客户端（测试用）
func NewClientWithBaseURL(network types.Network, baseURL string) *Client {
	// resty 会自动读取 HTTP_PROXY/HTTPS_PROXY 环境变量
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", "paradexbot").
		SetHeader("Accept", "application/json").
		SetRetryCount(0). // 重试策略由调用方按场景决定，客户端不自作主张
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if d, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return d, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	return &Client{http: httpClient, network: network}
}

// Network 返回客户端指向的网络
func (c *Client) Network() types.Network {
	return c.network
}

// newRequest 构造带 ctx 的请求；token 非空时附加 Bearer 头
func (c *Client) newRequest(ctx context.Context, token string) *resty.Request {
	r := c.http.R().SetContext(ctx)
	if token != "" {
		r.SetAuthToken(token)
	}
	return r
}

// checkResponse 将传输错误映射为 ErrNetwork，将非 2xx 应答解码为 APIError
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrapf(types.ErrNetwork, "%s %s: %v",
			resp.Request.Method, resp.Request.URL, err)
	}
	if resp.IsSuccess() {
		return nil
	}
	apiErr := &types.APIError{}
	if jsonErr := json.Unmarshal(resp.Body(), apiErr); jsonErr == nil && apiErr.Code != "" {
		return apiErr
	}
	return errors.Errorf("http %d: %s", resp.StatusCode(), resp.Body())
}
