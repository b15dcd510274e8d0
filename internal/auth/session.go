package auth

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/paradexbot/paradex/client"
	"github.com/betbot/paradexbot/paradex/signing"
	"github.com/betbot/paradexbot/paradex/types"
)

// AuthAPI 认证 REST 操作
type AuthAPI interface {
	Auth(ctx context.Context, req client.AuthRequest) (string, error)
}

// flight 一次进行中的刷新。并发等待者共享同一次刷新结果，
// 避免重复挑战触发 nonce 或限流冲突。
type flight struct {
	done chan struct{}
	err  error
}

// Session 持有会话凭证并保证其在有效期内。凭证是单一所有权的：
// 只有本类型的刷新路径会改写它。
type Session struct {
	api AuthAPI
	km  *signing.KeyManager
	ttl time.Duration
	now func() time.Time
	log *logrus.Entry

	mu        sync.Mutex
	token     string
	issuedAt  time.Time
	expiresAt time.Time
	inflight  *flight
}

// NewSession 创建凭证会话。ttl 是凭证存活时间，安全边际取 ttl/4：
// 留出时钟偏差和在途延迟的余量，不等到硬过期才刷新。
func NewSession(api AuthAPI, km *signing.KeyManager, ttl time.Duration) *Session {
	return &Session{
		api: api,
		km:  km,
		ttl: ttl,
		now: time.Now,
		log: logrus.WithField("component", "authsession"),
	}
}

// margin 提前刷新的安全边际
func (s *Session) margin() time.Duration {
	return s.ttl / 4
}

// Authenticate 获取首个凭证
func (s *Session) Authenticate(ctx context.Context) error {
	return s.EnsureValid(ctx)
}

// EnsureValid 在每次特权操作前调用。剩余有效期低于安全边际时
// 主动重新认证；并发调用者汇聚到同一次进行中的刷新。
func (s *Session) EnsureValid(ctx context.Context) error {
	s.mu.Lock()
	if s.token != "" && s.now().Before(s.expiresAt.Add(-s.margin())) {
		s.mu.Unlock()
		return nil
	}
	if s.inflight != nil {
		f := s.inflight
		s.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	s.inflight = f
	s.mu.Unlock()

	err := s.refresh(ctx)

	s.mu.Lock()
	s.inflight = nil
	hadToken := s.token != ""
	expired := !hadToken || !s.now().Before(s.expiresAt)
	s.mu.Unlock()

	if err != nil {
		if expired {
			// 旧凭证已硬过期且刷新失败，特权操作不能继续
			err = errors.Wrapf(types.ErrCredentialExpired, "refresh failed: %v", err)
		} else {
			// 旧凭证还在有效期内，记录告警后继续使用
			s.log.Warnf("凭证刷新失败，旧凭证仍有效: %v", err)
			err = nil
		}
	}
	f.err = err
	close(f.done)
	return err
}

// refresh 签名新的认证挑战并换取凭证。传输失败重试一次；
// 签名被拒说明 root/subkey 配置不匹配，重试无意义。
func (s *Session) refresh(ctx context.Context) error {
	payload := signing.NewAuthPayload(s.now().Unix())
	sig, err := s.km.Sign(payload, signing.RoleSubkey)
	if err != nil {
		return errors.Wrap(err, "sign auth challenge")
	}
	req := client.AuthRequest{
		StarkAddress:    s.km.StarkAddress(signing.RoleSubkey),
		SignatureHeader: sig.Header(),
		Timestamp:       payload.Timestamp,
		Expiration:      payload.Expiration,
	}

	token, err := s.api.Auth(ctx, req)
	if err != nil && errors.Is(err, types.ErrNetwork) {
		s.log.Warnf("认证传输失败，重试一次: %v", err)
		token, err = s.api.Auth(ctx, req)
	}
	if err != nil {
		return err
	}

	issued := s.now()
	s.mu.Lock()
	s.token = token
	s.issuedAt = issued
	s.expiresAt = issued.Add(s.ttl)
	s.mu.Unlock()
	s.log.Infof("凭证已刷新，有效期至 %s", issued.Add(s.ttl).Format(time.RFC3339))
	return nil
}

// Token 返回当前凭证；必要时阻塞在进行中的刷新上
func (s *Session) Token(ctx context.Context) (string, error) {
	if err := s.EnsureValid(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || !s.now().Before(s.expiresAt) {
		return "", types.ErrCredentialExpired
	}
	return s.token, nil
}

// Revoke 作废当前凭证（会话收尾时调用）
func (s *Session) Revoke() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

// RunRefreshLoop 周期性检查凭证有效性，保证刷新总在旧凭证硬过期
// 之前完成。间隔取安全边际的一半。
func (s *Session) RunRefreshLoop(ctx context.Context) {
	interval := s.margin() / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.EnsureValid(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Errorf("周期刷新失败: %v", err)
			}
		}
	}
}
