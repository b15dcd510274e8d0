// Package config 加载进程配置：环境变量优先，可叠加 YAML 文件。
// .env 的加载由入口在调用前完成（godotenv）。
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/betbot/paradexbot/paradex/types"
)

// KeysConfig 密钥材料。根以太坊密钥可由私钥或助记词提供。
type KeysConfig struct {
	EthPrivateKey       string `yaml:"eth_private_key"`
	EthMnemonic         string `yaml:"eth_mnemonic"`
	EthAddress          string `yaml:"eth_address"`
	RootStarkPrivateKey string `yaml:"root_stark_private_key"`
	RootStarkAddress    string `yaml:"root_stark_address"`
	SubkeyPrivateKey    string `yaml:"subkey_private_key"`
	SubkeyAddress       string `yaml:"subkey_address"`
}

// SessionConfig 会话行为
type SessionConfig struct {
	Market           string        `yaml:"market"`             // 交易市场，例如 BTC-USD-PERP
	RunDuration      time.Duration `yaml:"run_duration"`       // 会话时长
	TeardownTimeout  time.Duration `yaml:"teardown_timeout"`   // 收尾阶段上限
	CancelOnTeardown *bool         `yaml:"cancel_on_teardown"` // 收尾时是否撤掉全部挂单
	JWTTTL           time.Duration `yaml:"jwt_ttl"`            // 凭证存活时间
}

// StreamConfig 流式连接行为
type StreamConfig struct {
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"` // 0 = 不设上限
	MaxReconnectDelay    time.Duration `yaml:"max_reconnect_delay"`
	CommandQueueSize     int           `yaml:"command_queue_size"`
}

// Config 进程配置
type Config struct {
	Network types.Network `yaml:"network"`
	Keys    KeysConfig    `yaml:"keys"`
	Session SessionConfig `yaml:"session"`
	Stream  StreamConfig  `yaml:"stream"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Load 读取配置：先取 YAML（路径可为空），再用环境变量覆盖
func Load(yamlPath string) (*Config, error) {
	cfg := &Config{}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, errors.Wrapf(err, "读取配置文件 %s", yamlPath)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "解析配置文件 %s", yamlPath)
		}
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量覆盖。命名沿用交易所官方客户端的变量名。
func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString((*string)(&c.Network), "PARADEX_NETWORK")
	setString(&c.Keys.EthPrivateKey, "ETH_PRIVATE_KEY")
	setString(&c.Keys.EthMnemonic, "ETH_MNEMONIC")
	setString(&c.Keys.EthAddress, "ETH_ACCOUNT_ADDRESS")
	setString(&c.Keys.RootStarkPrivateKey, "PARADEX_ROOT_PRIVATE_KEY_HEX")
	setString(&c.Keys.RootStarkAddress, "PARADEX_ROOT_ADDRESS")
	setString(&c.Keys.SubkeyPrivateKey, "PARADEX_SUBKEY_PRIVATE_KEY_HEX")
	setString(&c.Keys.SubkeyAddress, "PARADEX_SUBKEY_ADDRESS")
	setString(&c.Session.Market, "PARADEX_MARKET")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFile, "LOG_FILE")

	if v := os.Getenv("RUN_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.RunDuration = d
		}
	}
	if v := os.Getenv("CANCEL_ON_TEARDOWN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Session.CancelOnTeardown = &b
		}
	}
}

// ApplyDefaults 填充默认值
func (c *Config) ApplyDefaults() {
	if c.Network == "" {
		c.Network = types.NetworkTestnet
	}
	if c.Session.Market == "" {
		c.Session.Market = "BTC-USD-PERP"
	}
	if c.Session.RunDuration <= 0 {
		c.Session.RunDuration = 2 * time.Minute
	}
	if c.Session.TeardownTimeout <= 0 {
		c.Session.TeardownTimeout = 15 * time.Second
	}
	if c.Session.CancelOnTeardown == nil {
		t := true
		c.Session.CancelOnTeardown = &t
	}
	if c.Session.JWTTTL <= 0 {
		c.Session.JWTTTL = 5 * time.Minute
	}
	if c.Stream.MaxReconnectDelay <= 0 {
		c.Stream.MaxReconnectDelay = 30 * time.Second
	}
	if c.Stream.CommandQueueSize <= 0 {
		c.Stream.CommandQueueSize = 64
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate 校验配置一致性
func (c *Config) Validate() error {
	if c.Network != types.NetworkTestnet && c.Network != types.NetworkProduction {
		return errors.Errorf("未知网络: %q", c.Network)
	}
	if c.Keys.EthPrivateKey == "" && c.Keys.EthMnemonic == "" {
		return errors.New("必须配置 ETH_PRIVATE_KEY 或 ETH_MNEMONIC")
	}
	if c.Keys.RootStarkPrivateKey == "" || c.Keys.RootStarkAddress == "" {
		return errors.New("必须配置根 StarkNet 私钥和账户地址")
	}
	if c.Keys.SubkeyPrivateKey == "" || c.Keys.SubkeyAddress == "" {
		return errors.New("必须配置子密钥私钥和账户地址")
	}
	if c.Session.RunDuration <= 0 {
		return errors.New("run_duration 必须为正")
	}
	return nil
}
