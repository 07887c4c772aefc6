package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// SQLConfig 定义了关系型数据库的连接配置。
type SQLConfig struct {
	Driver          string `yaml:"driver"`          // "mysql" 或 "sqlite"
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称；sqlite 时为文件路径
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
	AutoMigrate     bool   `yaml:"autoMigrate"`     // 启动时自动建表
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置。
type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Bucket    string `yaml:"bucket"`    // 生成内容的归档桶
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address    string `yaml:"address"`    // MongoDB 服务器地址
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // 知识库集合名称
}

// EtcdConfig 定义了 Etcd 服务发现的连接配置。
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"` // Etcd 节点地址列表
	Username  string   `yaml:"username"`  // 用户名
	Password  string   `yaml:"password"`  // 密码
	LeaseTTL  int64    `yaml:"leaseTTL"`  // 注册租约 (秒)
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`     // Kafka Broker 地址列表
	TaskTopic   string   `yaml:"taskTopic"`   // 任务事件主题
	CreateTopic bool     `yaml:"createTopic"` // 启动时自动创建主题
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	SQL     SQLConfig   `yaml:"sql"`     // 会话、任务、内容与知识库存储
	Redis   RedisConfig `yaml:"redis"`   // 分布式会话锁
	MinIO   MinIOConfig `yaml:"minio"`   // 内容归档
	MongoDB MongoConfig `yaml:"mongodb"` // 可选的知识库
	Etcd    EtcdConfig  `yaml:"etcd"`    // 服务注册
	Kafka   KafkaConfig `yaml:"kafka"`   // 任务事件
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// ServerConfig 定义了 HTTP 服务的监听配置。
type ServerConfig struct {
	Address         string `yaml:"address"`         // 监听地址，例如 ":8080"
	AdvertiseAddr   string `yaml:"advertiseAddr"`   // 注册到 etcd 的地址
	ShutdownTimeout string `yaml:"shutdownTimeout"` // 优雅退出超时，例如 "10s"
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// AuthConfig 用于配置认证。JwtSecret 为空时不启用认证。
type AuthConfig struct {
	JwtSecret string `yaml:"jwtSecret"`
}

// OpenAIConfig 包含了 OpenAI 兼容接口的配置。
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

// OllamaConfig 包含了 Ollama 的配置。
type OllamaConfig struct {
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

// LLMConfig 包含了内容生成器使用的 LLM 配置。
type LLMConfig struct {
	Provider       string               `yaml:"provider"`       // "mock", "openai" 或 "ollama"
	Timeout        string               `yaml:"timeout"`        // 单次生成调用的超时，例如 "60s"
	Temperature    float32              `yaml:"temperature"`    // 采样温度
	MaxTokens      int                  `yaml:"maxTokens"`      // 最大输出长度
	FallbackToMock bool                 `yaml:"fallbackToMock"` // 调用失败时退回模板生成
	OpenAI         OpenAIConfig         `yaml:"openai"`
	Ollama         OllamaConfig         `yaml:"ollama"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// PlannerConfig 定义了规划策略文件与知识提供者的配置。
type PlannerConfig struct {
	PolicyPath      string `yaml:"policyPath"`      // 槽位/知识/任务规则文件
	KnowledgeSource string `yaml:"knowledgeSource"` // "sql" 或 "mongo"
	KnowledgeTTL    string `yaml:"knowledgeTTL"`    // 知识缓存有效期，例如 "5m"；为空时不缓存
	KnowledgeCache  int    `yaml:"knowledgeCache"`  // 知识缓存容量
	LockBackend     string `yaml:"lockBackend"`     // "local" 或 "redis"
	LockTTL         string `yaml:"lockTTL"`         // redis 锁的过期时间
}

// MetricsConfig 定义了 Prometheus 指标配置。
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了按客户端的令牌桶限流配置。
type RateLimiterConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Rate       float64 `yaml:"rate"`       // 每秒速率
	Capacity   int     `yaml:"capacity"`   // 桶容量
	MaxClients int     `yaml:"maxClients"` // 最多跟踪的客户端数量
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	LLM        LLMConfig        `yaml:"llm"`
	Logger     LoggerConfig     `yaml:"logger"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Middleware MiddlewareConfig `yaml:"middleware"`
	Planner    PlannerConfig    `yaml:"planner"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件，并补齐默认值。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	return Parse(yamlFile)
}

// Parse 解析 YAML 内容并补齐默认值。
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "conversation_service"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "mock"
	}
	if c.LLM.Timeout == "" {
		c.LLM.Timeout = "60s"
	}
	if c.Databases.SQL.Driver == "" {
		c.Databases.SQL.Driver = "sqlite"
	}
	if c.Databases.SQL.Driver == "sqlite" && c.Databases.SQL.Database == "" {
		c.Databases.SQL.Database = "geocms.db"
	}
	if c.Databases.Kafka.TaskTopic == "" {
		c.Databases.Kafka.TaskTopic = "planner_task_events"
	}
	if c.Databases.MinIO.Bucket == "" {
		c.Databases.MinIO.Bucket = "geocms-content"
	}
	if c.Databases.MongoDB.Collection == "" {
		c.Databases.MongoDB.Collection = "knowledge"
	}
	if c.Databases.Etcd.LeaseTTL == 0 {
		c.Databases.Etcd.LeaseTTL = 10
	}
	if c.Planner.PolicyPath == "" {
		c.Planner.PolicyPath = "prompts/planner_agent.yaml"
	}
	if c.Planner.KnowledgeSource == "" {
		c.Planner.KnowledgeSource = "sql"
	}
	if c.Planner.KnowledgeCache == 0 {
		c.Planner.KnowledgeCache = 256
	}
	if c.Planner.LockBackend == "" {
		c.Planner.LockBackend = "local"
	}
	if c.Planner.LockTTL == "" {
		c.Planner.LockTTL = "30s"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Middleware.RateLimiter.MaxClients == 0 {
		c.Middleware.RateLimiter.MaxClients = 10000
	}
}

// Validate 检查取值范围，时长字段必须可解析。
func (c *AppConfig) Validate() error {
	durations := map[string]string{
		"server.shutdownTimeout": c.Server.ShutdownTimeout,
		"llm.timeout":            c.LLM.Timeout,
		"planner.lockTTL":        c.Planner.LockTTL,
	}
	if c.Planner.KnowledgeTTL != "" {
		durations["planner.knowledgeTTL"] = c.Planner.KnowledgeTTL
	}
	if c.Middleware.CircuitBreaker.Enabled {
		durations["middleware.circuitBreaker.timeout"] = c.Middleware.CircuitBreaker.Timeout
	}
	if c.LLM.CircuitBreaker.Enabled {
		durations["llm.circuitBreaker.timeout"] = c.LLM.CircuitBreaker.Timeout
	}
	for field, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("配置项 %s 的时长 '%s' 无效: %w", field, value, err)
		}
	}
	switch c.Databases.SQL.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Databases.SQL.Driver)
	}
	switch c.LLM.Provider {
	case "mock", "openai", "ollama":
	default:
		return fmt.Errorf("不支持的 LLM 提供商: %s", c.LLM.Provider)
	}
	switch c.Planner.LockBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("不支持的锁后端: %s", c.Planner.LockBackend)
	}
	switch c.Planner.KnowledgeSource {
	case "sql", "mongo":
	default:
		return fmt.Errorf("不支持的知识来源: %s", c.Planner.KnowledgeSource)
	}
	return nil
}

// Duration 解析一个已通过校验的时长字段。空串返回 0。
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
