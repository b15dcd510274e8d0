package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/betbot/paradexbot/paradex/types"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsServer 记录每条连接收到的请求，按连接序号执行脚本
type wsServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	conns    int
	requests []types.WSRequest
	script   func(conn *websocket.Conn, index int)
}

func newWSServer(t *testing.T, script func(conn *websocket.Conn, index int)) *wsServer {
	t.Helper()
	s := &wsServer{script: script}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		index := s.conns
		s.mu.Unlock()
		s.script(conn, index)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) record(req types.WSRequest) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
}

func (s *wsServer) requestsByMethod(method string) []types.WSRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.WSRequest
	for _, r := range s.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

func (s *wsServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// readInto 读取一条请求并记录
func (s *wsServer) readInto(conn *websocket.Conn) (types.WSRequest, bool) {
	var req types.WSRequest
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return req, false
	}
	if json.Unmarshal(msg, &req) == nil {
		s.record(req)
	}
	return req, true
}

func pushFrame(conn *websocket.Conn, channel string, data string) error {
	frame := `{"jsonrpc":"2.0","method":"subscription","params":{"channel":"` +
		channel + `","data":` + data + `}}`
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func waitFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case f := <-c.Frames():
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("等待推送帧超时")
		return Frame{}
	}
}

// TestClient_SubscribeAndReceive 测试订阅控制帧与推送投递
func TestClient_SubscribeAndReceive(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(conn *websocket.Conn, index int) {
		defer conn.Close()
		req, ok := s.readInto(conn)
		if !ok || req.Method != "subscribe" {
			return
		}
		var p types.SubscribeParams
		_ = json.Unmarshal(req.Params, &p)
		_ = pushFrame(conn, p.Channel, `{"price":"45000"}`)
		for {
			if _, ok := s.readInto(conn); !ok {
				return
			}
		}
	})

	c := NewClient(Config{URL: s.url(), Name: "public"})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer c.Stop()

	if err := c.Subscribe("trades.BTC-USD-PERP"); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}
	frame := waitFrame(t, c)
	if frame.Channel != "trades.BTC-USD-PERP" {
		t.Errorf("频道错误: %s", frame.Channel)
	}
	if !strings.Contains(string(frame.Data), "45000") {
		t.Errorf("数据错误: %s", frame.Data)
	}

	subs := s.requestsByMethod("subscribe")
	if len(subs) != 1 || subs[0].JSONRPC != "2.0" || subs[0].ID == 0 {
		t.Errorf("订阅控制帧格式错误: %+v", subs)
	}
}

// TestClient_PrivateAuthFrame 测试私有连接先发 auth 帧
func TestClient_PrivateAuthFrame(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(conn *websocket.Conn, index int) {
		defer conn.Close()
		for {
			if _, ok := s.readInto(conn); !ok {
				return
			}
		}
	})

	c := NewClient(Config{
		URL:  s.url(),
		Name: "private",
		Token: func(ctx context.Context) (string, error) {
			return "jwt-1", nil
		},
	})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer c.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if auths := s.requestsByMethod("auth"); len(auths) == 1 {
			var p types.AuthParams
			_ = json.Unmarshal(auths[0].Params, &p)
			if p.Bearer != "jwt-1" {
				t.Errorf("auth 帧凭证错误: %s", p.Bearer)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("未收到 auth 帧")
}

// TestClient_Backpressure 测试断线缓冲触顶返回 ErrBackpressureExceeded
func TestClient_Backpressure(t *testing.T) {
	c := NewClient(Config{URL: "ws://127.0.0.1:1", Name: "public", CommandQueueSize: 2})

	// 未连接时控制帧进入缓冲
	if err := c.Subscribe("a"); err != nil {
		t.Fatalf("第 1 条应缓冲: %v", err)
	}
	if err := c.Subscribe("b"); err != nil {
		t.Fatalf("第 2 条应缓冲: %v", err)
	}
	err := c.Subscribe("c")
	if !errors.Is(err, types.ErrBackpressureExceeded) {
		t.Fatalf("期望 ErrBackpressureExceeded，得到 %v", err)
	}
}

// waitState 跳过中间状态，等到目标连接状态出现
func waitState(t *testing.T, c *Client, want ConnState) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case st := <-c.States():
			if st == want {
				return
			}
		case <-deadline:
			t.Fatalf("等待状态 %v 超时", want)
		}
	}
}

// TestClient_BackpressureNotRevived 测试缓冲触顶被拒的订阅不会在
// 重连后复活，断线期间缓冲成功的订阅重连后只重发一次
func TestClient_BackpressureNotRevived(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(conn *websocket.Conn, index int) {
		defer conn.Close()
		if index == 1 {
			// 收到首条订阅后断开，触发重连
			s.readInto(conn)
			return
		}
		for {
			if _, ok := s.readInto(conn); !ok {
				return
			}
		}
	})

	c := NewClient(Config{
		URL:               s.url(),
		Name:              "public",
		CommandQueueSize:  1,
		MinReconnectDelay: 300 * time.Millisecond,
		MaxReconnectDelay: 300 * time.Millisecond,
	})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer c.Stop()

	if err := c.Subscribe("keep"); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}

	waitState(t, c, StateDisconnected)

	// 断线窗口内：第 1 条进缓冲，第 2 条触顶被拒
	if err := c.Subscribe("buffered"); err != nil {
		t.Fatalf("断线期间应缓冲: %v", err)
	}
	if err := c.Subscribe("rejected"); !errors.Is(err, types.ErrBackpressureExceeded) {
		t.Fatalf("期望 ErrBackpressureExceeded，得到 %v", err)
	}

	waitState(t, c, StateConnected)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.requestsByMethod("subscribe")) >= 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	counts := map[string]int{}
	for _, req := range s.requestsByMethod("subscribe") {
		var p types.SubscribeParams
		_ = json.Unmarshal(req.Params, &p)
		counts[p.Channel]++
	}
	if counts["rejected"] != 0 {
		t.Errorf("被拒订阅不应复活，服务端收到 %d 次", counts["rejected"])
	}
	if counts["buffered"] != 1 {
		t.Errorf("缓冲订阅重连后应恰好重发 1 次，得到 %d", counts["buffered"])
	}
	if counts["keep"] != 2 {
		t.Errorf("存活订阅应在两条连接上各发 1 次，得到 %d", counts["keep"])
	}
}

// TestClient_ReconnectResubscribe 测试断线重连后全量重发订阅
func TestClient_ReconnectResubscribe(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(conn *websocket.Conn, index int) {
		defer conn.Close()
		if index == 1 {
			// 收到订阅后立刻断开，触发客户端重连
			s.readInto(conn)
			return
		}
		req, ok := s.readInto(conn)
		if !ok || req.Method != "subscribe" {
			return
		}
		var p types.SubscribeParams
		_ = json.Unmarshal(req.Params, &p)
		_ = pushFrame(conn, p.Channel, `{"seq":2}`)
		for {
			if _, ok := s.readInto(conn); !ok {
				return
			}
		}
	})

	c := NewClient(Config{
		URL:               s.url(),
		Name:              "public",
		MinReconnectDelay: 10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
	})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer c.Stop()

	if err := c.Subscribe("bbo.ETH-USD-PERP"); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}

	frame := waitFrame(t, c)
	if frame.Channel != "bbo.ETH-USD-PERP" {
		t.Errorf("重连后推送频道错误: %s", frame.Channel)
	}
	if s.connCount() < 2 {
		t.Errorf("期望至少 2 条连接，得到 %d", s.connCount())
	}
	if subs := s.requestsByMethod("subscribe"); len(subs) < 2 {
		t.Errorf("重连后应重发订阅，共收到 %d 条", len(subs))
	}
}

// TestClient_BadFrameKeepsConnection 测试坏帧只上报解码错误，连接保持
func TestClient_BadFrameKeepsConnection(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(conn *websocket.Conn, index int) {
		defer conn.Close()
		req, ok := s.readInto(conn)
		if !ok {
			return
		}
		var p types.SubscribeParams
		_ = json.Unmarshal(req.Params, &p)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = pushFrame(conn, p.Channel, `{"ok":true}`)
		for {
			if _, ok := s.readInto(conn); !ok {
				return
			}
		}
	})

	c := NewClient(Config{URL: s.url(), Name: "public"})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer c.Stop()

	if err := c.Subscribe("trades.X"); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}

	select {
	case err := <-c.Errors():
		if !errors.Is(err, types.ErrDecode) {
			t.Errorf("期望 ErrDecode，得到 %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("等待解码错误超时")
	}

	frame := waitFrame(t, c)
	if frame.Channel != "trades.X" {
		t.Errorf("坏帧后连接应继续投递，得到 %s", frame.Channel)
	}
}

// TestClient_StopIdempotent 测试重复 Stop 无副作用
func TestClient_StopIdempotent(t *testing.T) {
	var s *wsServer
	s = newWSServer(t, func(conn *websocket.Conn, index int) {
		defer conn.Close()
		for {
			if _, ok := s.readInto(conn); !ok {
				return
			}
		}
	})

	c := NewClient(Config{URL: s.url(), Name: "public"})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	c.Stop()
	c.Stop()
}
