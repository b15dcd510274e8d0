package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// 核心错误类别。上层通过 errors.Is 判断类别，再决定恢复策略：
// 签名/注册类错误是配置问题，重试无意义；网络类错误按调用场景
// 决定重连或重试一次。
var (
	ErrInvalidKeyMaterial    = errors.New("invalid key material")
	ErrNotOnboarded          = errors.New("account not onboarded")
	ErrSignatureVerification = errors.New("signature verification failed")
	ErrCredentialExpired     = errors.New("credential expired")
	ErrNetwork               = errors.New("network error")
	ErrBackpressureExceeded  = errors.New("backpressure exceeded")
	ErrInvalidOrderState     = errors.New("invalid order state")
	ErrOrderRejected         = errors.New("order rejected")
	ErrDecode                = errors.New("decode error")
)

// 交易所返回的结构化错误码
const (
	CodeSignatureVerificationFailed = "STARKNET_SIGNATURE_VERIFICATION_FAILED"
	CodeNotOnboarded                = "NOT_ONBOARDED"
	CodeOrderRejected               = "ORDER_REJECTED"
)

// APIError 交易所返回的结构化拒绝
type APIError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

// Error 实现 error 接口
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 将交易所错误码映射到核心错误类别
func (e *APIError) Unwrap() error {
	switch e.Code {
	case CodeSignatureVerificationFailed:
		return ErrSignatureVerification
	case CodeNotOnboarded:
		return ErrNotOnboarded
	case CodeOrderRejected:
		return ErrOrderRejected
	}
	return nil
}
