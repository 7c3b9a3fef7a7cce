package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 默认配置常量
const (
	// NSQ 队列默认配置
	DefaultNSQTopic       = "content-ready"
	DefaultNSQChannel     = "publish-workers"
	DefaultNSQMaxInFlight = 128
	DefaultNSQConcurrency = 8
	DefaultNSQMaxAttempts = 5
	DefaultDLQTopicSuffix = ".DLQ"

	// 事件总线默认配置
	DefaultEventsTopic = "publish-events"

	// 应用默认配置
	DefaultHTTPAddress    = ":8080"
	DefaultRequestTimeout = 5 * time.Second
	DefaultIdempotencyTTL = 7 * 24 * time.Hour

	// 存储默认配置
	DefaultRedisNamespace = "publish"
	DefaultMaxKeepRecords = 1_000_000
	DefaultRecordTTL      = 90 * 24 * time.Hour
	DefaultStatusTTL      = 24 * time.Hour

	// 重试默认配置
	DefaultRetryMaxAttempts = 3
	DefaultRetryBaseBackoff = 500 * time.Millisecond
	DefaultRetryMaxBackoff  = 30 * time.Second
)

// Retry 单个平台的重试策略配置
type Retry struct {
	MaxAttempts int           `yaml:"MaxAttempts"` // 尝试上限(含首次)
	BaseBackoff time.Duration `yaml:"BaseBackoff"` // 指数退避起始值
	MaxBackoff  time.Duration `yaml:"MaxBackoff"`  // 退避上限
}

// RateLimit 平台调用速率限制配置
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"RequestsPerSecond"` // 每秒请求数,<=0 表示不限流
	Burst             int     `yaml:"Burst"`             // 突发容量
}

// PlatformCommon 平台发布器公共配置
type PlatformCommon struct {
	Enabled   bool      `yaml:"Enabled"`   // 是否启用该平台
	Retry     Retry     `yaml:"Retry"`     // 重试策略
	RateLimit RateLimit `yaml:"RateLimit"` // 速率限制
}

// InstagramPlatform Instagram 平台配置
type InstagramPlatform struct {
	AccessToken    string `yaml:"AccessToken"` // Graph API 访问令牌
	AccountID      string `yaml:"AccountID"`   // 商业账号 ID
	PlatformCommon `yaml:",inline"`
}

// TikTokPlatform TikTok 平台配置
type TikTokPlatform struct {
	ClientKey      string `yaml:"ClientKey"`    // 应用 Client Key
	ClientSecret   string `yaml:"ClientSecret"` // 应用 Client Secret
	PlatformCommon `yaml:",inline"`
}

// RedditPlatform Reddit 平台配置
type RedditPlatform struct {
	ClientID         string `yaml:"ClientID"`         // OAuth 客户端 ID
	ClientSecret     string `yaml:"ClientSecret"`     // OAuth 客户端密钥
	Username         string `yaml:"Username"`         // 机器人账号
	Password         string `yaml:"Password"`         // 机器人密码
	DefaultSubreddit string `yaml:"DefaultSubreddit"` // 默认发布的 subreddit
	PlatformCommon   `yaml:",inline"`
}

// Platforms 所有平台发布器配置集合
type Platforms struct {
	Instagram InstagramPlatform `yaml:"Instagram"`
	TikTok    TikTokPlatform    `yaml:"TikTok"`
	Reddit    RedditPlatform    `yaml:"Reddit"`
}

// NSQ 内容就绪队列配置
// 上游内容生成完成后通过该队列触发编排
type NSQ struct {
	Topic                       string   `yaml:"Topic"`                       // 消息主题
	Channel                     string   `yaml:"Channel"`                     // 消费者通道
	NsqdTCPAddrs                []string `yaml:"NsqdTCPAddrs"`                // NSQD TCP 地址列表
	LookupdHTTPAddrs            []string `yaml:"LookupdHTTPAddrs"`            // Lookupd HTTP 地址列表
	MaxInFlight                 int      `yaml:"MaxInFlight"`                 // 最大并发消息数
	Concurrency                 int      `yaml:"Concurrency"`                 // 处理并发数
	ProducerAddr                string   `yaml:"ProducerAddr"`                // 生产者地址
	ConsumerEnabled             bool     `yaml:"ConsumerEnabled"`             // 是否启用消费
	DLQTopic                    string   `yaml:"DLQTopic"`                    // 死信队列主题
	MaxConsumeAttemptsBeforeDLQ int      `yaml:"MaxConsumeAttemptsBeforeDLQ"` // 进入死信队列前最大尝试次数
}

// Events 终态事件总线配置
type Events struct {
	Topic string `yaml:"Topic"` // 事件主题,留空时使用默认值
}

// App 应用全局配置
type App struct {
	Addr           string        `yaml:"Addr"`           // HTTP 监听地址
	RequestTimeout time.Duration `yaml:"RequestTimeout"` // HTTP 请求超时
	IdempotencyTTL time.Duration `yaml:"IdempotencyTTL"` // 幂等键过期时间
}

// Storage 存储配置
// 包含 Redis 缓存和 MySQL 持久化配置
type Storage struct {
	RedisAddr string        `yaml:"RedisAddr"` // Redis 地址
	Namespace string        `yaml:"Namespace"` // Redis 键前缀
	MaxKeep   int64         `yaml:"MaxKeep"`   // 最大保留记录数
	RecordTTL time.Duration `yaml:"RecordTTL"` // 发布记录过期时间
	StatusTTL time.Duration `yaml:"StatusTTL"` // 任务状态过期时间
	MySQL     MySQLConfig   `yaml:"MySQL"`     // MySQL 配置
	Archive   ArchiveConfig `yaml:"Archive"`   // 异步落库配置
}

// MySQLConfig MySQL 数据库连接配置
type MySQLConfig struct {
	DSN             string        `yaml:"DSN"`             // 数据源配置
	MaxOpenConns    int           `yaml:"MaxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int           `yaml:"MaxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `yaml:"ConnMaxLifetime"` // 连接最大生命周期
}

// ArchiveConfig 异步落库配置
// 控制批量写入和后台同步行为
type ArchiveConfig struct {
	Enabled       bool          `yaml:"Enabled"`       // 是否启用异步写入
	BatchSize     int           `yaml:"BatchSize"`     // 批量写入大小
	FlushInterval time.Duration `yaml:"FlushInterval"` // 刷新间隔
	RetryAttempts int           `yaml:"RetryAttempts"` // 重试次数
	WorkerCount   int           `yaml:"WorkerCount"`   // 工作协程数
}

// Config 应用完整配置
type Config struct {
	App       App       `yaml:"App"`
	Storage   Storage   `yaml:"Storage"`
	NSQ       NSQ       `yaml:"NSQ"`
	Events    Events    `yaml:"Events"`
	Platforms Platforms `yaml:"Platforms"`
}

// MustLoad 加载 YAML 配置文件
// 加载失败时直接 panic(用于应用启动阶段)
func MustLoad(configPath string) Config {
	fileContent, err := os.ReadFile(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to read config file: %v", err))
	}

	var config Config
	if err := yaml.Unmarshal(fileContent, &config); err != nil {
		panic(fmt.Sprintf("failed to unmarshal config: %v", err))
	}

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("config validation failed: %v", err))
	}

	return config
}

// validate 校验配置并设置默认值
func (config *Config) validate() error {
	if err := config.validateNSQConfig(); err != nil {
		return err
	}

	if err := config.validateAppConfig(); err != nil {
		return err
	}

	if err := config.validateStorageConfig(); err != nil {
		return err
	}

	config.validatePlatformConfig()

	if config.Events.Topic == "" {
		config.Events.Topic = DefaultEventsTopic
	}

	return nil
}

// validateNSQConfig 校验 NSQ 配置并设置默认值
func (config *Config) validateNSQConfig() error {
	if config.NSQ.Topic == "" {
		config.NSQ.Topic = DefaultNSQTopic
	}

	if config.NSQ.Channel == "" {
		config.NSQ.Channel = DefaultNSQChannel
	}

	if config.NSQ.MaxInFlight <= 0 {
		config.NSQ.MaxInFlight = DefaultNSQMaxInFlight
	}

	if config.NSQ.Concurrency <= 0 {
		config.NSQ.Concurrency = DefaultNSQConcurrency
	}

	if config.NSQ.MaxConsumeAttemptsBeforeDLQ <= 0 {
		config.NSQ.MaxConsumeAttemptsBeforeDLQ = DefaultNSQMaxAttempts
	}

	if config.NSQ.DLQTopic == "" {
		config.NSQ.DLQTopic = config.NSQ.Topic + DefaultDLQTopicSuffix
	}

	return nil
}

// validateAppConfig 校验应用配置并设置默认值
func (config *Config) validateAppConfig() error {
	if config.App.Addr == "" {
		config.App.Addr = DefaultHTTPAddress
	}

	if config.App.RequestTimeout <= 0 {
		config.App.RequestTimeout = DefaultRequestTimeout
	}

	if config.App.IdempotencyTTL <= 0 {
		config.App.IdempotencyTTL = DefaultIdempotencyTTL
	}

	return nil
}

// validateStorageConfig 校验存储配置并设置默认值
func (config *Config) validateStorageConfig() error {
	if config.Storage.Namespace == "" {
		config.Storage.Namespace = DefaultRedisNamespace
	}

	if config.Storage.MaxKeep <= 0 {
		config.Storage.MaxKeep = DefaultMaxKeepRecords
	}

	if config.Storage.RecordTTL <= 0 {
		config.Storage.RecordTTL = DefaultRecordTTL
	}

	if config.Storage.StatusTTL <= 0 {
		config.Storage.StatusTTL = DefaultStatusTTL
	}

	return nil
}

// validatePlatformConfig 为各平台的重试策略补齐默认值
func (config *Config) validatePlatformConfig() {
	fillRetryDefaults(&config.Platforms.Instagram.Retry)
	fillRetryDefaults(&config.Platforms.TikTok.Retry)
	fillRetryDefaults(&config.Platforms.Reddit.Retry)
}

// fillRetryDefaults 填充重试策略默认值
func fillRetryDefaults(retry *Retry) {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = DefaultRetryMaxAttempts
	}

	if retry.BaseBackoff <= 0 {
		retry.BaseBackoff = DefaultRetryBaseBackoff
	}

	if retry.MaxBackoff <= 0 {
		retry.MaxBackoff = DefaultRetryMaxBackoff
	}
}
