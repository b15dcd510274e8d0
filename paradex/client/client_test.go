package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/paradexbot/paradex/types"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClientWithBaseURL(types.NetworkTestnet, srv.URL), srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// TestGetOnboardingStatus 测试 404 表示未注册而非错误
func TestGetOnboardingStatus(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("address") == "0xabc" {
			writeJSON(w, http.StatusOK, map[string]string{"account": "0xabc"})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	status, err := c.GetOnboardingStatus(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if !status.Onboarded {
		t.Error("已注册账户应返回 Onboarded=true")
	}

	status, err = c.GetOnboardingStatus(context.Background(), "0xdef")
	if err != nil {
		t.Fatalf("404 不应作为错误: %v", err)
	}
	if status.Onboarded {
		t.Error("未注册账户应返回 Onboarded=false")
	}
}

// TestSubmitOnboarding 测试注册请求头与请求体
func TestSubmitOnboarding(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := c.SubmitOnboarding(context.Background(), OnboardingRequest{
		EthAddress:      "0xeth",
		StarkAddress:    "0xstark",
		PublicKey:       "0xpub",
		SignatureHeader: `["1","2"]`,
	})
	if err != nil {
		t.Fatalf("注册提交失败: %v", err)
	}

	if gotHeaders.Get(headerEthereumAccount) != "0xeth" {
		t.Errorf("以太坊账户头缺失: %v", gotHeaders.Get(headerEthereumAccount))
	}
	if gotHeaders.Get(headerStarknetAccount) != "0xstark" {
		t.Errorf("StarkNet 账户头缺失")
	}
	if gotHeaders.Get(headerStarknetSignature) != `["1","2"]` {
		t.Errorf("签名头错误: %s", gotHeaders.Get(headerStarknetSignature))
	}
	if gotBody["public_key"] != "0xpub" {
		t.Errorf("请求体公钥错误: %v", gotBody)
	}
}

// TestAuth 测试认证成功与缺失 token 的应答
func TestAuth(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerTimestamp) == "" || r.Header.Get(headerSignatureExpiration) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "MISSING_HEADERS"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"jwt_token": "tok-1"})
	}))
	defer srv.Close()

	token, err := c.Auth(context.Background(), AuthRequest{
		StarkAddress:    "0xstark",
		SignatureHeader: `["1","2"]`,
		Timestamp:       1700000000,
		Expiration:      1700086400,
	})
	if err != nil {
		t.Fatalf("认证失败: %v", err)
	}
	if token != "tok-1" {
		t.Errorf("token 错误: %s", token)
	}
}

// TestAuth_MissingToken 测试应答缺少 jwt_token 时返回解码错误
func TestAuth_MissingToken(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	}))
	defer srv.Close()

	_, err := c.Auth(context.Background(), AuthRequest{})
	if !errors.Is(err, types.ErrDecode) {
		t.Fatalf("期望 ErrDecode，得到 %v", err)
	}
}

// TestCheckResponse_ErrorMapping 测试交易所错误码映射到核心错误
func TestCheckResponse_ErrorMapping(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   types.CodeSignatureVerificationFailed,
			"message": "bad signature",
		})
	}))
	defer srv.Close()

	err := c.SubmitOnboarding(context.Background(), OnboardingRequest{})
	if !errors.Is(err, types.ErrSignatureVerification) {
		t.Fatalf("期望 ErrSignatureVerification，得到 %v", err)
	}
}

// TestCheckResponse_NetworkError 测试传输失败映射为 ErrNetwork
func TestCheckResponse_NetworkError(t *testing.T) {
	c := NewClientWithBaseURL(types.NetworkTestnet, "http://127.0.0.1:1")

	_, err := c.GetOnboardingStatus(context.Background(), "0xabc")
	if !errors.Is(err, types.ErrNetwork) {
		t.Fatalf("期望 ErrNetwork，得到 %v", err)
	}
}

// TestCreateOrder 测试下单请求体与 Bearer 头
func TestCreateOrder(t *testing.T) {
	var gotAuth string
	var gotReq types.OrderRequest
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		writeJSON(w, http.StatusCreated, types.OrderAck{
			ID:       "srv-1",
			ClientID: gotReq.ClientID,
			Status:   types.OrderStatusOpen,
		})
	}))
	defer srv.Close()

	ack, err := c.CreateOrder(context.Background(), "tok-1", &types.OrderRequest{
		Market:   "BTC-USD-PERP",
		Side:     types.SideBuy,
		Type:     types.OrderTypeLimit,
		Size:     decimal.NewFromFloat(0.1),
		Price:    decimal.NewFromInt(45000),
		ClientID: "client-1",
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization 头错误: %s", gotAuth)
	}
	if gotReq.Market != "BTC-USD-PERP" || gotReq.ClientID != "client-1" {
		t.Errorf("请求体错误: %+v", gotReq)
	}
	if ack.ID != "srv-1" || ack.Status != types.OrderStatusOpen {
		t.Errorf("应答解码错误: %+v", ack)
	}
}

// TestCancelAllOrders 测试按市场过滤撤单
func TestCancelAllOrders(t *testing.T) {
	var gotMarket string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("期望 DELETE，得到 %s", r.Method)
		}
		gotMarket = r.URL.Query().Get("market")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := c.CancelAllOrders(context.Background(), "tok", "ETH-USD-PERP"); err != nil {
		t.Fatalf("撤单失败: %v", err)
	}
	if gotMarket != "ETH-USD-PERP" {
		t.Errorf("market 参数错误: %s", gotMarket)
	}
}

// TestGetOpenOrders 测试挂单列表解码
func TestGetOpenOrders(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"results": []types.OrderAck{
				{ID: "a", Status: types.OrderStatusOpen},
				{ID: "b", Status: types.OrderStatusPartiallyFilled},
			},
		})
	}))
	defer srv.Close()

	orders, err := c.GetOpenOrders(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(orders) != 2 || orders[1].Status != types.OrderStatusPartiallyFilled {
		t.Errorf("解码错误: %+v", orders)
	}
}
