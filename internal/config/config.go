package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

type SessionConfig struct {
	// CacheTTL bounds warm-cache entries for session snapshots.
	CacheTTL time.Duration
	// IdleGrace is how long a silent handle survives before the reaper
	// removes it; tolerates brief network drops.
	IdleGrace time.Duration
}

type RoomConfig struct {
	DefaultMaxMembers int
	// IdleTTL is how long a room may sit empty and inactive before
	// auto-cleanup deletes it.
	IdleTTL  time.Duration
	CacheTTL time.Duration
}

type ModerationConfig struct {
	MaxMessageLength int
	Cooldown         time.Duration
	DefaultMute      time.Duration
	DefaultBan       time.Duration
	DefaultTimeout   time.Duration
	WarnThreshold    int
	EscalationMute   time.Duration
	SpamMute         time.Duration
	SweepInterval    time.Duration
	HistoryLimit     int
}

type ActivityConfig struct {
	// Retention bounds the trailing sample history per room.
	Retention      time.Duration
	SampleInterval time.Duration
}

type AppConfig struct {
	Environment string
	Service     string
	Postgres    PostgresConfig
	Redis       RedisConfig
	AMQP        AMQPConfig
	Tracing     TracingConfig
	Session     SessionConfig
	Rooms       RoomConfig
	Moderation  ModerationConfig
	Activity    ActivityConfig
}

// Load reads config.yaml (if present) and AGENT_-prefixed environment
// variables into a typed config tree with sane defaults.
func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("AGENT")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration without touching files or the
// environment. Tests build isolated managers from it.
func Default() *AppConfig {
	v := viper.New()
	setDefaults(v)

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("service", "classroom-core")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 20)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "classroom.events")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")

	v.SetDefault("session.cachettl", "30m")
	v.SetDefault("session.idlegrace", "90s")

	v.SetDefault("rooms.defaultmaxmembers", 50)
	v.SetDefault("rooms.idlettl", "24h")
	v.SetDefault("rooms.cachettl", "1h")

	v.SetDefault("moderation.maxmessagelength", 2000)
	v.SetDefault("moderation.cooldown", "2s")
	v.SetDefault("moderation.defaultmute", "30m")
	v.SetDefault("moderation.defaultban", "24h")
	v.SetDefault("moderation.defaulttimeout", "5m")
	v.SetDefault("moderation.warnthreshold", 3)
	v.SetDefault("moderation.escalationmute", "10m")
	v.SetDefault("moderation.spammute", "5m")
	v.SetDefault("moderation.sweepinterval", "60s")
	v.SetDefault("moderation.historylimit", 500)

	v.SetDefault("activity.retention", "24h")
	v.SetDefault("activity.sampleinterval", "60s")
}
