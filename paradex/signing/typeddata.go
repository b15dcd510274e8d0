package signing

import (
	"math/big"

	"github.com/NethermindEth/starknet.go/curve"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/betbot/paradexbot/paradex/types"
)

// felt250Mask 用于 starknet_keccak 的 250 位截断
var felt250Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// starknetKeccak keccak256 截断到低 250 位
func starknetKeccak(s string) *big.Int {
	h := new(big.Int).SetBytes(crypto.Keccak256([]byte(s)))
	return h.And(h, felt250Mask)
}

// shortStringFelt 将 ASCII 短字符串（≤31 字节）编码为 felt
func shortStringFelt(s string) *big.Int {
	return new(big.Int).SetBytes([]byte(s))
}

// Payload 可签名的类型化负载
type Payload interface {
	// StructHash 返回 primary type 的结构哈希
	StructHash() *big.Int
}

// domainHash 计算 StarkNetDomain 的结构哈希
func domainHash(network types.Network) *big.Int {
	return curve.ComputeHashOnElements([]*big.Int{
		starknetKeccak(domainTypeString),
		shortStringFelt(domainName),
		big.NewInt(domainVersion),
		shortStringFelt(network.ChainID()),
	})
}

// MessageHash 计算绑定到账户地址的 rev 0 消息哈希：
// h("StarkNet Message", domainHash, account, structHash)
func MessageHash(network types.Network, account *big.Int, payload Payload) *big.Int {
	return curve.ComputeHashOnElements([]*big.Int{
		shortStringFelt(messagePrefix),
		domainHash(network),
		account,
		payload.StructHash(),
	})
}

// OnboardingPayload 注册负载（Constant{action:"Onboarding"}）
type OnboardingPayload struct{}

// StructHash 实现 Payload
func (OnboardingPayload) StructHash() *big.Int {
	return curve.ComputeHashOnElements([]*big.Int{
		starknetKeccak(onboardingTypeString),
		shortStringFelt(onboardingAction),
	})
}

// AuthPayload 认证挑战负载。Timestamp/Expiration 为 unix 秒。
type AuthPayload struct {
	Timestamp  int64
	Expiration int64
}

// NewAuthPayload 以当前时间构造认证挑战
func NewAuthPayload(now int64) AuthPayload {
	return AuthPayload{
		Timestamp:  now,
		Expiration: now + AuthExpiryWindow,
	}
}

// StructHash 实现 Payload
func (p AuthPayload) StructHash() *big.Int {
	return curve.ComputeHashOnElements([]*big.Int{
		starknetKeccak(authTypeString),
		shortStringFelt(authMethod),
		shortStringFelt(authPath),
		big.NewInt(0), // body 为空
		big.NewInt(p.Timestamp),
		big.NewInt(p.Expiration),
	})
}

// OrderPayload 订单签名负载。Timestamp 为毫秒。
type OrderPayload struct {
	Timestamp int64
	Market    string
	Side      types.Side
	OrderType types.OrderType
	Size      decimal.Decimal
	Price     decimal.Decimal
}

// StructHash 实现 Payload
func (p OrderPayload) StructHash() *big.Int {
	// size/price 按 1e8 定点编码；市价单 price 编码为 0
	size := p.Size.Shift(orderAmountShift).BigInt()
	price := p.Price.Shift(orderAmountShift).BigInt()
	return curve.ComputeHashOnElements([]*big.Int{
		starknetKeccak(orderTypeString),
		big.NewInt(p.Timestamp),
		shortStringFelt(p.Market),
		big.NewInt(p.Side.ChainSide()),
		shortStringFelt(string(p.OrderType)),
		size,
		price,
	})
}
