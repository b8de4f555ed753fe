package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type App struct {
	Env             string `yaml:"env"`
	Port            int    `yaml:"port"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

func (a *App) PortString() string { return fmt.Sprintf("%d", a.Port) }

type Mongo struct {
	URI string `yaml:"uri"`
	DB  string `yaml:"db"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Kafka struct {
	Brokers             []string `yaml:"brokers"`
	TopicMessageCreated string   `yaml:"topic_message_created"`
}

type JWT struct {
	Alg           string `yaml:"alg"`
	PublicKeyPath string `yaml:"public_key_path"`
	HSSecret      string `yaml:"hs_secret"`
}

type Sync struct {
	MaxAttempts         int `yaml:"max_attempts"`
	RetryBaseMillis     int `yaml:"retry_base_millis"`
	SetupTimeoutSeconds int `yaml:"setup_timeout_seconds"`
}

type WS struct {
	PingIntervalSeconds  int   `yaml:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `yaml:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64 `yaml:"max_message_size_bytes"`
}

type Config struct {
	App   App   `yaml:"app"`
	Mongo Mongo `yaml:"mongo"`
	Redis Redis `yaml:"redis"`
	Kafka Kafka `yaml:"kafka"`
	JWT   JWT   `yaml:"jwt"`
	Sync  Sync  `yaml:"sync"`
	WS    WS    `yaml:"ws"`

	// derived
	RetryBase     time.Duration
	SetupTimeout  time.Duration
	PingInterval  time.Duration
	WriteDeadline time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		b, _ := os.ReadFile("config.yaml")
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()
	overrideFromEnv(cfg)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("SERVICE_PORT"); v != "" {
		n, _ := strconv.Atoi(v)
		cfg.App.Port = n
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("MONGO_DB"); v != "" {
		cfg.Mongo.DB = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JWT_PUBLIC_KEY_PATH"); v != "" {
		cfg.JWT.PublicKeyPath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.HSSecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.RateLimitPerMin == 0 {
		cfg.App.RateLimitPerMin = 300
	}
	if cfg.Sync.MaxAttempts == 0 {
		cfg.Sync.MaxAttempts = 3
	}
	if cfg.Sync.RetryBaseMillis == 0 {
		cfg.Sync.RetryBaseMillis = 500
	}
	if cfg.Sync.SetupTimeoutSeconds == 0 {
		cfg.Sync.SetupTimeoutSeconds = 10
	}
	if cfg.WS.PingIntervalSeconds == 0 {
		cfg.WS.PingIntervalSeconds = 25
	}
	if cfg.WS.WriteDeadlineSeconds == 0 {
		cfg.WS.WriteDeadlineSeconds = 10
	}
	if cfg.WS.MaxMessageSizeBytes == 0 {
		cfg.WS.MaxMessageSizeBytes = 64 * 1024
	}
	if cfg.Kafka.TopicMessageCreated == "" {
		cfg.Kafka.TopicMessageCreated = "chat.message.created"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "chat"
	}
	if cfg.JWT.Alg == "" {
		cfg.JWT.Alg = "HS256"
	}

	cfg.RetryBase = time.Duration(cfg.Sync.RetryBaseMillis) * time.Millisecond
	cfg.SetupTimeout = time.Duration(cfg.Sync.SetupTimeoutSeconds) * time.Second
	cfg.PingInterval = time.Duration(cfg.WS.PingIntervalSeconds) * time.Second
	cfg.WriteDeadline = time.Duration(cfg.WS.WriteDeadlineSeconds) * time.Second
}

func validate(cfg *Config) error {
	if cfg.App.Port == 0 {
		return errors.New("app.port missing or invalid")
	}
	if cfg.Mongo.URI == "" {
		return errors.New("mongo.uri missing")
	}
	if cfg.Mongo.DB == "" {
		return errors.New("mongo.db missing")
	}
	if cfg.Redis.Addr == "" {
		return errors.New("redis.addr missing")
	}
	if cfg.JWT.Alg == "RS256" && cfg.JWT.PublicKeyPath == "" {
		return errors.New("jwt.public_key_path missing for RS256")
	}
	if cfg.JWT.Alg == "HS256" && cfg.JWT.HSSecret == "" {
		return errors.New("jwt.hs_secret missing for HS256")
	}
	return nil
}
