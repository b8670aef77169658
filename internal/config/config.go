package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type WorkersConfig struct {
	OutboxInterval       time.Duration `mapstructure:"outbox_interval"`
	ReconcilerInterval   time.Duration `mapstructure:"reconciler_interval"`
	ReconcilerBatchSize  int           `mapstructure:"reconciler_batch_size"`
	ReconcilerBatchDelay time.Duration `mapstructure:"reconciler_batch_delay"`
}

type StreamConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HubBufferSize     int           `mapstructure:"hub_buffer_size"`
	ReplayBufferSize  int           `mapstructure:"replay_buffer_size"`
}

type AuthConfig struct {
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("TIERGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.environment", "dev")
	viper.SetDefault("server.port", ":8080")
	viper.SetDefault("mysql.dsn", "root:root@tcp(127.0.0.1:3306)/tiergate?charset=utf8mb4&parseTime=True&loc=Local")
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("etcd.endpoints", []string{"127.0.0.1:2379"})
	viper.SetDefault("etcd.dial_timeout", 5*time.Second)
	viper.SetDefault("workers.outbox_interval", 5*time.Second)
	viper.SetDefault("workers.reconciler_interval", 5*time.Minute)
	viper.SetDefault("workers.reconciler_batch_size", 100)
	viper.SetDefault("workers.reconciler_batch_delay", 50*time.Millisecond)
	viper.SetDefault("stream.heartbeat_interval", 15*time.Second)
	viper.SetDefault("stream.hub_buffer_size", 512)
	viper.SetDefault("stream.replay_buffer_size", 1000)
	viper.SetDefault("auth.access_token_ttl", 15*time.Minute)
	viper.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	viper.SetDefault("ratelimit.requests_per_second", 5)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}
