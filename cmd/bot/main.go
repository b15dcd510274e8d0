package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/paradexbot/internal/auth"
	"github.com/betbot/paradexbot/internal/engine"
	"github.com/betbot/paradexbot/internal/session"
	"github.com/betbot/paradexbot/internal/stream"
	"github.com/betbot/paradexbot/paradex/client"
	"github.com/betbot/paradexbot/paradex/signing"
	"github.com/betbot/paradexbot/pkg/config"
	"github.com/betbot/paradexbot/pkg/logger"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "", "配置文件路径（YAML，可选；环境变量优先）")
	envFile := flag.String("env", ".env", ".env 文件路径（不存在时忽略）")
	flag.Parse()

	// .env 先于配置加载，保持环境变量覆盖语义
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "加载 %s 失败: %v\n", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(session.ExitAuthFailure)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(session.ExitAuthFailure)
	}
	logrus.Infof("网络: %s 市场: %s 会话时长: %s", cfg.Network, cfg.Session.Market, cfg.Session.RunDuration)

	km, err := signing.NewKeyManager(cfg.Network, signing.Material{
		EthPrivateKey:       cfg.Keys.EthPrivateKey,
		EthMnemonic:         cfg.Keys.EthMnemonic,
		EthAddress:          cfg.Keys.EthAddress,
		RootStarkPrivateKey: cfg.Keys.RootStarkPrivateKey,
		RootStarkAddress:    cfg.Keys.RootStarkAddress,
		SubkeyPrivateKey:    cfg.Keys.SubkeyPrivateKey,
		SubkeyAddress:       cfg.Keys.SubkeyAddress,
	})
	if err != nil {
		logrus.Errorf("密钥材料无效: %v", err)
		os.Exit(session.ExitAuthFailure)
	}

	rest := client.NewClient(cfg.Network)
	onboarding := auth.NewOnboardingService(rest, km)
	creds := auth.NewSession(rest, km, cfg.Session.JWTTTL)
	subscriber := stream.NewSubscriber(stream.Config{
		PublicURL:            cfg.Network.WSURL(),
		PrivateURL:           cfg.Network.WSURL(),
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		MaxReconnectDelay:    cfg.Stream.MaxReconnectDelay,
		CommandQueueSize:     cfg.Stream.CommandQueueSize,
	}, creds)
	eng := engine.NewEngine(rest, creds, km)

	coord := session.NewCoordinator(session.Options{
		Market:           cfg.Session.Market,
		RunDuration:      cfg.Session.RunDuration,
		TeardownTimeout:  cfg.Session.TeardownTimeout,
		CancelOnTeardown: *cfg.Session.CancelOnTeardown,
	}, onboarding, creds, rest, subscriber, eng, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(coord.Run(ctx))
}
