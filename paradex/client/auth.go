package client

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/betbot/paradexbot/paradex/types"
)

// AuthRequest 认证挑战参数
type AuthRequest struct {
	StarkAddress    string // 子密钥 StarkNet 账户地址
	SignatureHeader string // subkey 签名，["r","s"] 格式
	Timestamp       int64  // 挑战时间戳（unix 秒）
	Expiration      int64  // 签名过期时间（unix 秒）
}

// Auth 用签名的挑战换取 JWT。拒绝（签名校验失败等）以 APIError 返回。
func (c *Client) Auth(ctx context.Context, req AuthRequest) (string, error) {
	result := &types.AuthResult{}
	resp, err := c.newRequest(ctx, "").
		SetHeader(headerStarknetAccount, req.StarkAddress).
		SetHeader(headerStarknetSignature, req.SignatureHeader).
		SetHeader(headerTimestamp, strconv.FormatInt(req.Timestamp, 10)).
		SetHeader(headerSignatureExpiration, strconv.FormatInt(req.Expiration, 10)).
		SetResult(result).
		Post("/auth")
	if cerr := checkResponse(resp, err); cerr != nil {
		return "", cerr
	}
	if result.JWTToken == "" {
		return "", errors.Wrap(types.ErrDecode, "auth response missing jwt_token")
	}
	return result.JWTToken, nil
}
