// Package auth 实现注册（一次性，root 签名）与会话凭证管理
// （subkey 签名，单飞刷新）。
package auth

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/paradexbot/paradex/client"
	"github.com/betbot/paradexbot/paradex/signing"
	"github.com/betbot/paradexbot/paradex/types"
)

// OnboardingAPI 注册相关的 REST 操作
type OnboardingAPI interface {
	GetOnboardingStatus(ctx context.Context, starkAddress string) (*types.OnboardingStatus, error)
	SubmitOnboarding(ctx context.Context, req client.OnboardingRequest) error
}

// OnboardingService 保证根账户在交易所完成注册
type OnboardingService struct {
	api OnboardingAPI
	km  *signing.KeyManager
	log *logrus.Entry
}

// NewOnboardingService 创建注册服务
func NewOnboardingService(api OnboardingAPI, km *signing.KeyManager) *OnboardingService {
	return &OnboardingService{
		api: api,
		km:  km,
		log: logrus.WithField("component", "onboarding"),
	}
}

// EnsureOnboarded 查询注册状态，未注册时用根身份签名提交一次。
// 传输失败只重发一次：注册是幂等但一次性的操作，盲目重试可能
// 撞上重复注册拒绝。拒绝（签名不匹配等）对本次运行是致命的。
func (s *OnboardingService) EnsureOnboarded(ctx context.Context) error {
	rootAddress := s.km.StarkAddress(signing.RoleRoot)

	status, err := s.queryStatus(ctx, rootAddress)
	if err != nil {
		return err
	}
	if status.Onboarded {
		s.log.Infof("账户 %s 已注册，跳过", rootAddress)
		return nil
	}

	sig, err := s.km.Sign(signing.OnboardingPayload{}, signing.RoleRoot)
	if err != nil {
		return errors.Wrap(err, "sign onboarding payload")
	}
	req := client.OnboardingRequest{
		EthAddress:      s.km.EthAddress(),
		StarkAddress:    rootAddress,
		PublicKey:       s.km.PublicKeyHex(signing.RoleRoot),
		SignatureHeader: sig.Header(),
	}

	s.log.Infof("提交注册: %s", rootAddress)
	err = s.api.SubmitOnboarding(ctx, req)
	if err != nil && errors.Is(err, types.ErrNetwork) {
		s.log.Warnf("注册提交传输失败，重发一次: %v", err)
		err = s.api.SubmitOnboarding(ctx, req)
	}
	if err != nil {
		if errors.Is(err, types.ErrNetwork) {
			return err
		}
		return errors.Wrapf(types.ErrNotOnboarded, "onboarding rejected: %v", err)
	}
	s.log.Info("注册完成")
	return nil
}

// queryStatus 查询注册状态，传输失败重试一次
func (s *OnboardingService) queryStatus(ctx context.Context, address string) (*types.OnboardingStatus, error) {
	status, err := s.api.GetOnboardingStatus(ctx, address)
	if err != nil && errors.Is(err, types.ErrNetwork) {
		s.log.Warnf("注册状态查询传输失败，重试一次: %v", err)
		status, err = s.api.GetOnboardingStatus(ctx, address)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query onboarding status")
	}
	return status, nil
}
