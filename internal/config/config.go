package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port          string
	AllowedOrigin string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DeviceID      string

	LookupCacheTTLSeconds int
	AuthSecret            string
	AccessTokenTTLMinutes int

	Monitoring MonitoringThresholds
}

// MonitoringThresholds are the escalation policy knobs for opname
// monitoring. They are configuration, not constants: deployments tune them
// per store.
type MonitoringThresholds struct {
	WarnConsecutive int
	CritConsecutive int
	WarnValueCents  int64
	CritValueCents  int64
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	lookupTTL := getEnvInt("LOOKUP_CACHE_TTL_SECONDS", 30)
	tokenTTL := getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 480)

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		DeviceID:              getEnv("DEFAULT_DEVICE_ID", "main-device"),
		LookupCacheTTLSeconds: lookupTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		Monitoring: MonitoringThresholds{
			WarnConsecutive: getEnvInt("SO_WARN_CONSECUTIVE", 2),
			CritConsecutive: getEnvInt("SO_CRIT_CONSECUTIVE", 3),
			WarnValueCents:  getEnvInt64("SO_WARN_VALUE_CENTS", 500000),
			CritValueCents:  getEnvInt64("SO_CRIT_VALUE_CENTS", 2000000),
		},
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}

func getEnvInt64(key string, fallback int64) int64 {
	val, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
