package signing

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/starknet.go/curve"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/pkg/errors"

	"github.com/betbot/paradexbot/paradex/types"
)

// Role 签名角色。root 仅用于注册，subkey 用于认证和下单。
// 两个角色的密钥材料互不混用，调用处必须显式传角色。
type Role int

const (
	RoleRoot Role = iota + 1
	RoleSubkey
)

// String 返回角色名（日志用）
func (r Role) String() string {
	if r == RoleRoot {
		return "root"
	}
	return "subkey"
}

// ethDerivationPath 根密钥助记词的默认派生路径
const ethDerivationPath = "m/44'/60'/0'/0/0"

// Material 密钥材料配置。根以太坊密钥可用私钥或助记词二选一提供。
type Material struct {
	EthPrivateKey string // 根以太坊私钥（hex）
	EthMnemonic   string // 根以太坊助记词（与私钥二选一）
	EthAddress    string // 声明的根以太坊地址，用于交叉校验

	RootStarkPrivateKey string // 根 StarkNet 私钥（hex felt）
	RootStarkAddress    string // 根 StarkNet 账户地址

	SubkeyPrivateKey string // 交易子密钥私钥（hex felt）
	SubkeyAddress    string // 交易子密钥账户地址
}

// starkKey 单个 StarkNet 密钥对及其声明的账户地址
type starkKey struct {
	priv    *big.Int
	pubX    *big.Int
	pubY    *big.Int
	address *big.Int
}

// Signature StarkNet 曲线签名
type Signature struct {
	R *big.Int
	S *big.Int
}

// Header 返回请求头格式的签名：["r","s"]（十进制）
func (s Signature) Header() string {
	return fmt.Sprintf(`["%s","%s"]`, s.R.String(), s.S.String())
}

// KeyManager 持有两级密钥并产生角色限定的签名。
// 私钥只存在内存中，不会被日志或序列化路径触及。
type KeyManager struct {
	network    types.Network
	ethKey     *ecdsa.PrivateKey
	ethAddress common.Address
	root       starkKey
	sub        starkKey
}

// NewKeyManager 解析密钥材料并做一次性交叉校验：
// 以太坊私钥必须推导出声明的地址，StarkNet 私钥必须是合法标量
// 且账户地址是非零 felt。校验失败返回 ErrInvalidKeyMaterial。
func NewKeyManager(network types.Network, m Material) (*KeyManager, error) {
	km := &KeyManager{network: network}

	ethKey, err := loadEthKey(m)
	if err != nil {
		return nil, err
	}
	km.ethKey = ethKey
	km.ethAddress = crypto.PubkeyToAddress(ethKey.PublicKey)

	if m.EthAddress != "" && !strings.EqualFold(km.ethAddress.Hex(), m.EthAddress) {
		return nil, errors.Wrapf(types.ErrInvalidKeyMaterial,
			"eth key derives %s, config declares %s", km.ethAddress.Hex(), m.EthAddress)
	}

	km.root, err = loadStarkKey(m.RootStarkPrivateKey, m.RootStarkAddress, "root")
	if err != nil {
		return nil, err
	}
	km.sub, err = loadStarkKey(m.SubkeyPrivateKey, m.SubkeyAddress, "subkey")
	if err != nil {
		return nil, err
	}
	return km, nil
}

// loadEthKey 从私钥或助记词加载根以太坊密钥
func loadEthKey(m Material) (*ecdsa.PrivateKey, error) {
	if m.EthPrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(m.EthPrivateKey), "0x"))
		if err != nil {
			return nil, errors.Wrap(types.ErrInvalidKeyMaterial, "eth private key")
		}
		return key, nil
	}
	if m.EthMnemonic != "" {
		wallet, err := hdwallet.NewFromMnemonic(m.EthMnemonic)
		if err != nil {
			return nil, errors.Wrap(types.ErrInvalidKeyMaterial, "eth mnemonic")
		}
		path := hdwallet.MustParseDerivationPath(ethDerivationPath)
		account, err := wallet.Derive(path, false)
		if err != nil {
			return nil, errors.Wrap(types.ErrInvalidKeyMaterial, "eth derivation")
		}
		key, err := wallet.PrivateKey(account)
		if err != nil {
			return nil, errors.Wrap(types.ErrInvalidKeyMaterial, "eth derived key")
		}
		return key, nil
	}
	return nil, errors.Wrap(types.ErrInvalidKeyMaterial, "no eth private key or mnemonic configured")
}

// loadStarkKey 解析一个 StarkNet 密钥对并推导公钥点
func loadStarkKey(privHex, addressHex, role string) (starkKey, error) {
	priv, ok := parseFelt(privHex)
	if !ok || priv.Sign() == 0 {
		return starkKey{}, errors.Wrapf(types.ErrInvalidKeyMaterial, "%s stark private key", role)
	}
	address, ok := parseFelt(addressHex)
	if !ok || address.Sign() == 0 {
		return starkKey{}, errors.Wrapf(types.ErrInvalidKeyMaterial, "%s stark account address", role)
	}
	pubX, pubY, err := curve.Curve.PrivateToPoint(priv)
	if err != nil {
		return starkKey{}, errors.Wrapf(types.ErrInvalidKeyMaterial, "%s stark public key: %v", role, err)
	}
	return starkKey{priv: priv, pubX: pubX, pubY: pubY, address: address}, nil
}

// parseFelt 解析 0x 前缀或十六进制的 felt
func parseFelt(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, 16)
}

// keyFor 返回角色对应的密钥
func (km *KeyManager) keyFor(role Role) (starkKey, error) {
	switch role {
	case RoleRoot:
		return km.root, nil
	case RoleSubkey:
		return km.sub, nil
	}
	return starkKey{}, errors.Wrapf(types.ErrInvalidKeyMaterial, "unknown key role %d", role)
}

// Sign 对负载的消息哈希产生确定性签名。消息哈希绑定到该角色
// 声明的账户地址，root 的签名对 subkey 的地址无效，反之亦然。
func (km *KeyManager) Sign(payload Payload, role Role) (Signature, error) {
	key, err := km.keyFor(role)
	if err != nil {
		return Signature{}, err
	}
	msgHash := MessageHash(km.network, key.address, payload)
	r, s, err := curve.Curve.Sign(msgHash, key.priv)
	if err != nil {
		return Signature{}, errors.Wrapf(types.ErrInvalidKeyMaterial, "%s sign: %v", role, err)
	}
	return Signature{R: r, S: s}, nil
}

// Verify 用角色公钥验证负载签名（本地校验和测试用）
func (km *KeyManager) Verify(payload Payload, role Role, sig Signature) bool {
	key, err := km.keyFor(role)
	if err != nil {
		return false
	}
	msgHash := MessageHash(km.network, key.address, payload)
	return curve.Curve.Verify(msgHash, sig.R, sig.S, key.pubX, key.pubY)
}

// EthAddress 根以太坊地址
func (km *KeyManager) EthAddress() string {
	return km.ethAddress.Hex()
}

// StarkAddress 角色对应的 StarkNet 账户地址（0x hex）
func (km *KeyManager) StarkAddress(role Role) string {
	key, err := km.keyFor(role)
	if err != nil {
		return ""
	}
	return "0x" + key.address.Text(16)
}

// PublicKeyHex 角色对应的 StarkNet 公钥 x 坐标（注册请求体用）
func (km *KeyManager) PublicKeyHex(role Role) string {
	key, err := km.keyFor(role)
	if err != nil {
		return ""
	}
	return "0x" + key.pubX.Text(16)
}
