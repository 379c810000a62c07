package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper" // 导入 Viper
)

// Config 结构体包含所有应用的配置
type Config struct {
	Server        ServerConfig        `mapstructure:"server"` // `mapstructure` 标签用于Viper绑定结构体
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Cache         CacheConfig         `mapstructure:"cache"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	AliyunOSS     AliyunOSSConfig     `mapstructure:"aliyun_oss"`
	RabbitMQ      RabbitMQConfig      `mapstructure:"rabbitmq"`
	Identity      IdentityConfig      `mapstructure:"identity"`
	Security      SecurityConfig      `mapstructure:"security"`
	Quota         QuotaConfig         `mapstructure:"quota"`
	Share         ShareConfig         `mapstructure:"share"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Log           LogConfig           `mapstructure:"log"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`     // debug / release / test
	BaseURL string `mapstructure:"base_url"` // 用于拼接分享链接
}

// DatabaseConfig 元数据库配置，driver 支持 mysql / postgres / sqlite
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig 缓存后端选择: redis 适用于多进程部署, memory 适用于单节点
type CacheConfig struct {
	Type string `mapstructure:"type"`
	Size int    `mapstructure:"size"` // memory 模式下的最大条目数
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

type AliyunOSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"` // 例如: oss-cn-hangzhou.aliyuncs.com
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// RabbitMQConfig RabbitMQ配置，URL 为空时删除任务同步执行
type RabbitMQConfig struct {
	URL string `mapstructure:"url"`
}

// IdentityConfig 身份提供方(例如 Keycloak)签发的访问令牌校验配置
type IdentityConfig struct {
	Issuer       string `mapstructure:"issuer"`
	Audience     string `mapstructure:"audience"`
	HMACSecret   string `mapstructure:"hmac_secret"`    // HS256 校验密钥
	PublicKeyPEM string `mapstructure:"public_key_pem"` // RS256 公钥，优先于 HMACSecret
}

// SecurityConfig 密钥托管与分享访问令牌配置
type SecurityConfig struct {
	MasterKey         string        `mapstructure:"master_key"`          // 用于包裹文件密钥的主密钥
	AccessTokenSecret string        `mapstructure:"access_token_secret"` // 分享访问令牌签名密钥
	AccessTokenTTL    time.Duration `mapstructure:"access_token_ttl"`
}

// QuotaConfig 每个用户的配额
type QuotaConfig struct {
	StorageLimitBytes uint64 `mapstructure:"storage_limit_bytes"`
	MaxShareLinks     int64  `mapstructure:"max_share_links"`
	MaxUploadBytes    uint64 `mapstructure:"max_upload_bytes"`
}

type ShareConfig struct {
	DefaultExpiryHours int `mapstructure:"default_expiry_hours"`
}

type StorageConfig struct {
	LocalBasePath string `mapstructure:"local_base_path"`
	Type          string `mapstructure:"type"` // minio / aliyun_oss / local
}

type SchedulerConfig struct {
	ReconcileSpec string `mapstructure:"reconcile_spec"` // cron 表达式，为空则不启用
}

// zap日志配置
type LogConfig struct {
	OutputPath string `mapstructure:"output_path"`
	ErrorPath  string `mapstructure:"error_path"`
	Level      string `mapstructure:"level"`
}

// ElasticsearchConfig 定义 Elasticsearch 连接配置，Addresses 为空时不镜像访问记录
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

var AppConfig *Config // 全局应用配置实例

// SetDefaults 注册默认值，LoadConfig 和测试共用
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("cache.type", "redis")
	v.SetDefault("cache.size", 10000)
	v.SetDefault("storage.type", "minio")
	v.SetDefault("storage.local_base_path", "./uploads/data")
	v.SetDefault("security.access_token_ttl", time.Hour)
	v.SetDefault("quota.storage_limit_bytes", uint64(2*1024*1024*1024)) // 2GB
	v.SetDefault("quota.max_share_links", 100)
	v.SetDefault("quota.max_upload_bytes", uint64(5*1024*1024)) // 5MB
	v.SetDefault("share.default_expiry_hours", 24)
	v.SetDefault("elasticsearch.index", "access-events")
	v.SetDefault("log.output_path", "logs/app.log")
	v.SetDefault("log.error_path", "logs/error.log")
	v.SetDefault("log.level", "info")
}

// LoadConfig 加载配置
func LoadConfig() (*Config, error) {
	// .env 文件是可选的，仅用于本地开发
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on process environment.")
	}

	v := viper.New()
	v.SetConfigName("config")              // 配置文件名 (不带扩展名)
	v.SetConfigType("yaml")                // 配置文件类型
	v.AddConfigPath(".")                   // 在当前目录查找配置文件
	v.AddConfigPath("./configs")           // 也可以添加其他路径，例如 ./configs/
	v.AddConfigPath("/etc/go-securedisk/") // 生产环境常见路径

	// 例如：GO_SECURE_DISK_SERVER_PORT 对应 server.port
	v.SetEnvPrefix("GO_SECURE_DISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件未找到不是致命错误，可以依赖环境变量和默认值
		log.Println("Warning: config file not found, using environment variables or default values.")
	}

	cfg, err := Unmarshal(v)
	if err != nil {
		return nil, err
	}
	AppConfig = cfg
	log.Println("Configuration loaded successfully with Viper.")
	return cfg, nil
}

// Unmarshal 将 viper 中的配置绑定到结构体并校验
func Unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查启动所必需的配置项
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	switch c.Storage.Type {
	case "minio", "aliyun_oss", "local":
	default:
		return fmt.Errorf("不支持的存储类型: %q", c.Storage.Type)
	}
	switch c.Cache.Type {
	case "redis", "memory":
	default:
		return fmt.Errorf("不支持的缓存类型: %q", c.Cache.Type)
	}
	if len(c.Security.MasterKey) < 32 {
		return errors.New("security.master_key 至少需要 32 个字符")
	}
	if c.Security.AccessTokenSecret == "" {
		return errors.New("security.access_token_secret 不能为空")
	}
	if c.Identity.PublicKeyPEM == "" && c.Identity.HMACSecret == "" {
		return errors.New("identity.public_key_pem 与 identity.hmac_secret 至少配置一个")
	}
	if c.Quota.StorageLimitBytes == 0 || c.Quota.MaxShareLinks <= 0 {
		return errors.New("quota 配置必须为正数")
	}
	return nil
}
