package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации контрольной плоскости.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Registry RegistryConfig `mapstructure:"registry"`
	Consent  ConsentConfig  `mapstructure:"consent"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MetricsPort  int           `mapstructure:"metrics_port"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub сигналы присутствия и решений).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RegistryConfig задает пороги производного статуса агентов.
// Инвариант online_ttl < offline_ttl проверяется при загрузке.
type RegistryConfig struct {
	OnlineTTL  time.Duration `mapstructure:"online_ttl"`
	OfflineTTL time.Duration `mapstructure:"offline_ttl"`
}

// ConsentConfig настраивает движок согласий.
type ConsentConfig struct {
	GrantTTL      time.Duration `mapstructure:"grant_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// ReuseGrants включает ветку "сначала проверь действующее разрешение".
	// По умолчанию выключено: переспрашиваем каждый раз.
	ReuseGrants bool `mapstructure:"reuse_grants"`
}

// EngineConfig — настройки аудита и обвязки надежности вокруг диспатча.
type EngineConfig struct {
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`

	DispatchRateLimit float64       `mapstructure:"dispatch_rate_limit"`
	DispatchBurst     int           `mapstructure:"dispatch_burst"`
	DispatchTimeout   time.Duration `mapstructure:"dispatch_timeout"`
	DispatchRetries   uint          `mapstructure:"dispatch_retries"`

	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT для админ-роутов.
type AuthConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	PublicKey      []byte
	PrivateKey     []byte
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// ENV перекрывает файл: REGISTRY_ONLINE_TTL=30s перекроет registry.online_ttl
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Файла нет — работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if cfg.Registry.OnlineTTL <= 0 || cfg.Registry.OfflineTTL <= cfg.Registry.OnlineTTL {
		return nil, fmt.Errorf("registry: online_ttl must be positive and less than offline_ttl (got %v / %v)",
			cfg.Registry.OnlineTTL, cfg.Registry.OfflineTTL)
	}

	// PEM-ключи могут прилетать напрямую через ENV (Docker/K8s) либо из файла
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("registry.online_ttl", 60*time.Second)
	v.SetDefault("registry.offline_ttl", 300*time.Second)
	v.SetDefault("consent.grant_ttl", 600*time.Second)
	v.SetDefault("consent.sweep_interval", 60*time.Second)
	v.SetDefault("consent.reuse_grants", false)
	v.SetDefault("engine.audit_buffer_size", 10000)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.audit_flush_interval", 500*time.Millisecond)
	v.SetDefault("engine.dispatch_rate_limit", 100)
	v.SetDefault("engine.dispatch_burst", 20)
	v.SetDefault("engine.dispatch_timeout", 30*time.Second)
	v.SetDefault("engine.dispatch_retries", 3)
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 5*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource читает PEM из ENV или по пути из конфига.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
