// Package logger 初始化全局 logrus：控制台输出，可选写文件并由
// lumberjack 轮转。密钥材料绝不进入日志。
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	Level      string // debug / info / warn / error
	OutputFile string // 为空时只输出到控制台
	MaxSize    int    // 单个日志文件上限（MB）
	MaxBackups int    // 保留的旧文件数
	MaxAge     int    // 旧文件保留天数
	Compress   bool   // 是否压缩旧文件
}

// ApplyDefaults 填充默认值
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 100
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 7
	}
}

// Init 按配置初始化全局 logrus
func Init(cfg Config) error {
	cfg.ApplyDefaults()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if cfg.OutputFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		logrus.SetOutput(io.MultiWriter(os.Stdout, rotator))
	} else {
		logrus.SetOutput(os.Stdout)
	}
	return nil
}

// Component 返回带组件标签的日志入口
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
