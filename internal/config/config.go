package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAppName         = "etiktak"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultChallengeDigits = 5
	maxChallengeDigits     = 18
	defaultMessageTemplate = "Your etiktak verification code is %s"
	defaultSmsTopic        = "sms.outbound"
	defaultReportTopic     = "sms.delivery-reports"
	defaultConsumerGroup   = "etiktak-verification"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	ChallengeDigits int
	MessageTemplate string
	BcryptCost      int

	KafkaBrokers       []string
	KafkaSmsTopic      string
	KafkaReportTopic   string
	KafkaConsumerGroup string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:            getEnv("APP_NAME", defaultAppName),
		AppEnv:             getEnv("APP_ENV", defaultAppEnv),
		Port:               getEnv("PORT", defaultPort),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		ChallengeDigits:    defaultChallengeDigits,
		MessageTemplate:    getEnv("SMS_MESSAGE_TEMPLATE", defaultMessageTemplate),
		BcryptCost:         bcrypt.DefaultCost,
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaSmsTopic:      getEnv("KAFKA_SMS_TOPIC", defaultSmsTopic),
		KafkaReportTopic:   getEnv("KAFKA_REPORT_TOPIC", defaultReportTopic),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", defaultConsumerGroup),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("SMS_CHALLENGE_DIGITS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SMS_CHALLENGE_DIGITS: %w", err)
		}
		if n < 1 || n > maxChallengeDigits {
			return Config{}, fmt.Errorf("SMS_CHALLENGE_DIGITS must be between 1 and %d", maxChallengeDigits)
		}
		cfg.ChallengeDigits = n
	}

	if strings.Count(cfg.MessageTemplate, "%s") != 1 || strings.Count(cfg.MessageTemplate, "%") != 1 {
		return Config{}, fmt.Errorf("SMS_MESSAGE_TEMPLATE must contain exactly one %%s")
	}

	if v := os.Getenv("BCRYPT_COST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BCRYPT_COST: %w", err)
		}
		if n < bcrypt.MinCost || n > bcrypt.MaxCost {
			return Config{}, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
		}
		cfg.BcryptCost = n
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service may run without Postgres and Redis.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// KafkaEnabled reports whether SMS should go through Kafka.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
