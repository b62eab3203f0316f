package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Deluge   DelugeConfig   `mapstructure:"deluge"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug or release
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DelugeConfig 控制与 Deluge Web 面板交互的超时与重试
type DelugeConfig struct {
	RequestTimeoutSec  int `mapstructure:"request_timeout_sec"`  // 单次 RPC 超时
	ConnectRetries     int `mapstructure:"connect_retries"`      // 单主机 connect 重试次数
	ConnectRetryDelay  int `mapstructure:"connect_retry_delay"`  // 重试间隔 (秒)
	StatusPollInterval int `mapstructure:"status_poll_interval"` // 后台状态轮询间隔 (秒)
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var AppConfig *Config

func LoadConfig(configPath string) error {
	v := viper.New()

	// 默认值
	v.SetDefault("server.port", 8412)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.path", "data/seedbridge.db")
	v.SetDefault("deluge.request_timeout_sec", 20)
	v.SetDefault("deluge.connect_retries", 5)
	v.SetDefault("deluge.connect_retry_delay", 5)
	v.SetDefault("deluge.status_poll_interval", 60)
	v.SetDefault("log.level", "info")

	// 配置文件路径
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}

	// 环境变量替换 (使用 BRIDGE_ 前缀)
	// 比如 BRIDGE_SERVER_PORT=9090
	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay, use defaults
		fmt.Println("Config file not found, using defaults")
	}

	AppConfig = &Config{}
	if err := v.Unmarshal(AppConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// RequestTimeout 返回 RPC 超时时长，未初始化时给出默认值
func RequestTimeout() time.Duration {
	if AppConfig == nil || AppConfig.Deluge.RequestTimeoutSec <= 0 {
		return 20 * time.Second
	}
	return time.Duration(AppConfig.Deluge.RequestTimeoutSec) * time.Second
}
