package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Search   SearchConfig   `mapstructure:"search"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// SearchConfig 联网搜索配置（Tavily，多 key 轮询）
type SearchConfig struct {
	BaseURL string   `mapstructure:"base_url"`
	APIKeys []string `mapstructure:"api_keys"`
}

// LLMConfig 大模型接口配置（OpenAI 兼容协议）
type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// AnalysisConfig 异步分析任务配置
type AnalysisConfig struct {
	MaxWorkers                int `mapstructure:"max_workers"`                 // 工作池大小
	QueueSize                 int `mapstructure:"queue_size"`                  // 提交队列容量
	CompletedRetentionMinutes int `mapstructure:"completed_retention_minutes"` // 成功任务保留时间
	FailedRetentionMinutes    int `mapstructure:"failed_retention_minutes"`    // 失败任务保留时间
}

// MonitorConfig 盯盘任务配置
type MonitorConfig struct {
	MaxConsecutiveFailures int    `mapstructure:"max_consecutive_failures"` // 0 表示一直重试
	RecordRetentionDays    int    `mapstructure:"record_retention_days"`
	Timezone               string `mapstructure:"timezone"`
}

type ShutdownConfig struct {
	GraceSeconds int `mapstructure:"grace_seconds"`
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Analysis.MaxWorkers <= 0 {
		c.Analysis.MaxWorkers = 4
	}
	if c.Analysis.QueueSize <= 0 {
		c.Analysis.QueueSize = 100
	}
	if c.Analysis.CompletedRetentionMinutes <= 0 {
		c.Analysis.CompletedRetentionMinutes = 30
	}
	if c.Analysis.FailedRetentionMinutes <= 0 {
		c.Analysis.FailedRetentionMinutes = 10
	}
	if c.Monitor.RecordRetentionDays <= 0 {
		c.Monitor.RecordRetentionDays = 7
	}
	if c.Monitor.Timezone == "" {
		c.Monitor.Timezone = "Asia/Shanghai"
	}
	if c.Shutdown.GraceSeconds <= 0 {
		c.Shutdown.GraceSeconds = 30
	}
}
