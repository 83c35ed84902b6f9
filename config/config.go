package config

import (
	"os"
	"strconv"
	"strings"

	"commerce-core/pkg/database"

	"go.uber.org/zap"
)

type Config struct {
	Port        string
	DB          DB
	Redis       Redis
	Kafka       Kafka
	Reservation Reservation
}

type DB struct {
	database.Config
}

type Redis struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type Kafka struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type Reservation struct {
	DefaultTTLMinutes    int
	MaxTTLMinutes        int
	MaxExtensionMinutes  int
	SweepIntervalSeconds int
}

func Load(log *zap.Logger) *Config {
	return &Config{
		Port: getEnv("APP_PORT", log),
		DB: DB{
			Config: database.Config{
				Host:     getEnv("DB_HOST", log),
				Port:     getEnv("DB_PORT", log),
				User:     getEnv("DB_USER", log),
				Password: getEnv("DB_PASSWORD", log),
				Name:     getEnv("DB_NAME", log),
				SSLMode:  getEnv("DB_SSLMODE", log),
			},
		},
		Redis: Redis{
			Enabled:  getEnv("REDIS_ENABLED", log) == "true",
			Addr:     getEnv("REDIS_ADDR", log),
			Password: getEnv("REDIS_PASSWORD", log),
			DB:       atoiDefault(getEnv("REDIS_DB", log), 0),
		},
		Kafka: Kafka{
			Enabled: getEnv("KAFKA_ENABLED", log) == "true",
			Brokers: splitAndTrim(getEnv("KAFKA_BROKERS", log)),
			Topic:   getEnv("KAFKA_TOPIC", log),
		},
		Reservation: Reservation{
			DefaultTTLMinutes:    atoiDefault(getEnv("RESERVATION_DEFAULT_TTL_MINUTES", log), 15),
			MaxTTLMinutes:        atoiDefault(getEnv("RESERVATION_MAX_TTL_MINUTES", log), 60),
			MaxExtensionMinutes:  atoiDefault(getEnv("RESERVATION_MAX_EXTENSION_MINUTES", log), 15),
			SweepIntervalSeconds: atoiDefault(getEnv("RESERVATION_SWEEP_INTERVAL_SECONDS", log), 60),
		},
	}
}

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("Обязательная переменная окружения не установлена", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
