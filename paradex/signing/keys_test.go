package signing

import (
	"regexp"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/betbot/paradexbot/paradex/types"
)

// 测试密钥材料：公开的开发用密钥，无任何资金关联
const (
	testEthPrivateKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testEthAddress    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testMnemonic      = "test test test test test test test test test test test junk"
	testMnemonicAddr  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func testMaterial() Material {
	return Material{
		EthPrivateKey:       testEthPrivateKey,
		EthAddress:          testEthAddress,
		RootStarkPrivateKey: "0x1234abcd",
		RootStarkAddress:    "0x1a2b3c4d5e6f",
		SubkeyPrivateKey:    "0x5678ef90",
		SubkeyAddress:       "0x6f5e4d3c2b1a",
	}
}

func newTestKeyManager(t *testing.T) *KeyManager {
	t.Helper()
	km, err := NewKeyManager(types.NetworkTestnet, testMaterial())
	if err != nil {
		t.Fatalf("创建 KeyManager 失败: %v", err)
	}
	return km
}

// TestNewKeyManager_ValidMaterial 测试合法材料下的初始化
func TestNewKeyManager_ValidMaterial(t *testing.T) {
	km := newTestKeyManager(t)

	if !strings.EqualFold(km.EthAddress(), testEthAddress) {
		t.Errorf("以太坊地址不匹配: %s", km.EthAddress())
	}
	if km.StarkAddress(RoleRoot) == km.StarkAddress(RoleSubkey) {
		t.Error("根账户与子密钥账户地址不应相同")
	}
	if km.PublicKeyHex(RoleRoot) == "" {
		t.Error("根公钥不应为空")
	}
}

// TestNewKeyManager_Mnemonic 测试助记词派生根以太坊密钥
func TestNewKeyManager_Mnemonic(t *testing.T) {
	m := testMaterial()
	m.EthPrivateKey = ""
	m.EthMnemonic = testMnemonic
	m.EthAddress = testMnemonicAddr

	km, err := NewKeyManager(types.NetworkTestnet, m)
	if err != nil {
		t.Fatalf("助记词初始化失败: %v", err)
	}
	if !strings.EqualFold(km.EthAddress(), testMnemonicAddr) {
		t.Errorf("助记词派生地址错误: %s", km.EthAddress())
	}
}

// TestNewKeyManager_AddressMismatch 测试声明地址与密钥不符
func TestNewKeyManager_AddressMismatch(t *testing.T) {
	m := testMaterial()
	m.EthAddress = "0x0000000000000000000000000000000000000001"

	_, err := NewKeyManager(types.NetworkTestnet, m)
	if !errors.Is(err, types.ErrInvalidKeyMaterial) {
		t.Fatalf("期望 ErrInvalidKeyMaterial，得到 %v", err)
	}
}

// TestNewKeyManager_BadStarkKey 测试非法 StarkNet 密钥材料
func TestNewKeyManager_BadStarkKey(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Material)
	}{
		{"根私钥为空", func(m *Material) { m.RootStarkPrivateKey = "" }},
		{"根私钥非 hex", func(m *Material) { m.RootStarkPrivateKey = "zzzz" }},
		{"根地址为零", func(m *Material) { m.RootStarkAddress = "0x0" }},
		{"子密钥地址为空", func(m *Material) { m.SubkeyAddress = "" }},
		{"以太坊私钥为空", func(m *Material) { m.EthPrivateKey = ""; m.EthMnemonic = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := testMaterial()
			tc.mutate(&m)
			_, err := NewKeyManager(types.NetworkTestnet, m)
			if !errors.Is(err, types.ErrInvalidKeyMaterial) {
				t.Fatalf("期望 ErrInvalidKeyMaterial，得到 %v", err)
			}
		})
	}
}

// TestKeyManager_SignVerify 测试签名-验签闭环
func TestKeyManager_SignVerify(t *testing.T) {
	km := newTestKeyManager(t)
	payload := NewAuthPayload(1700000000)

	for _, role := range []Role{RoleRoot, RoleSubkey} {
		sig, err := km.Sign(payload, role)
		if err != nil {
			t.Fatalf("%s 签名失败: %v", role, err)
		}
		if !km.Verify(payload, role, sig) {
			t.Errorf("%s 签名验签失败", role)
		}
	}
}

// TestKeyManager_VerifyWrongRole 测试跨角色验签必须失败
func TestKeyManager_VerifyWrongRole(t *testing.T) {
	km := newTestKeyManager(t)
	payload := OnboardingPayload{}

	sig, err := km.Sign(payload, RoleRoot)
	if err != nil {
		t.Fatalf("签名失败: %v", err)
	}
	if km.Verify(payload, RoleSubkey, sig) {
		t.Error("root 签名不应通过 subkey 验签")
	}
}

// TestKeyManager_VerifyWrongPayload 测试负载被篡改后验签必须失败
func TestKeyManager_VerifyWrongPayload(t *testing.T) {
	km := newTestKeyManager(t)

	sig, err := km.Sign(NewAuthPayload(1700000000), RoleSubkey)
	if err != nil {
		t.Fatalf("签名失败: %v", err)
	}
	if km.Verify(NewAuthPayload(1700000001), RoleSubkey, sig) {
		t.Error("篡改时间戳后验签不应通过")
	}
}

// TestSignature_Header 测试签名头格式：["r","s"] 十进制
func TestSignature_Header(t *testing.T) {
	km := newTestKeyManager(t)
	sig, err := km.Sign(OnboardingPayload{}, RoleRoot)
	if err != nil {
		t.Fatalf("签名失败: %v", err)
	}

	pattern := regexp.MustCompile(`^\["\d+","\d+"\]$`)
	if !pattern.MatchString(sig.Header()) {
		t.Errorf("签名头格式错误: %s", sig.Header())
	}
}
