package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	LedgerToleranceCents  int64
	LockTimeoutMS         int
	ReportCacheTTLSeconds int
	KafkaBrokers          []string
	KafkaTopic            string
	OutboxIntervalMS      int
	WorkerID              string
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("LEDGER_TOLERANCE_CENTS", 1)
	v.SetDefault("LOCK_TIMEOUT_MS", 2000)
	v.SetDefault("REPORT_CACHE_TTL_SECONDS", 30)
	v.SetDefault("KAFKA_TOPIC", "shift-ledger-events")
	v.SetDefault("OUTBOX_INTERVAL_MS", 250)
}

func Load() Config {
	v := viper.New()
	v.AutomaticEnv()
	defaults(v)

	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}
	tolerance := v.GetInt64("LEDGER_TOLERANCE_CENTS")
	if tolerance < 0 {
		tolerance = 1
	}
	lockTimeout := v.GetInt("LOCK_TIMEOUT_MS")
	if lockTimeout < 1 {
		lockTimeout = 2000
	}
	cacheTTL := v.GetInt("REPORT_CACHE_TTL_SECONDS")
	if cacheTTL < 1 {
		cacheTTL = 30
	}
	outboxInterval := v.GetInt("OUTBOX_INTERVAL_MS")
	if outboxInterval < 1 {
		outboxInterval = 250
	}
	workerID := strings.TrimSpace(v.GetString("WORKER_ID"))
	if workerID == "" {
		workerID, _ = os.Hostname()
	}

	cfg := Config{
		Port:                  v.GetString("PORT"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           v.GetString("DATABASE_URL"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ManagerPIN:            strings.TrimSpace(v.GetString("MANAGER_PIN")),
		LedgerToleranceCents:  tolerance,
		LockTimeoutMS:         lockTimeout,
		ReportCacheTTLSeconds: cacheTTL,
		KafkaBrokers:          splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:            v.GetString("KAFKA_TOPIC"),
		OutboxIntervalMS:      outboxInterval,
		WorkerID:              workerID,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

func (c Config) OutboxInterval() time.Duration {
	return time.Duration(c.OutboxIntervalMS) * time.Millisecond
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
