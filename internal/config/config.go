package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	JudgeBaseURL   string
	JudgeAuthToken string
	JudgeTimeout   time.Duration

	BatchSize      int
	PollMaxRetries int
	PollInterval   time.Duration
	JobMaxAttempts int
	StepCacheTTL   time.Duration
	JobRecordTTL   time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CODEWAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Codeway API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("judge.timeout", "30s")
	v.SetDefault("judge.batch_size", 20)
	v.SetDefault("judge.poll_max_retries", 15)
	v.SetDefault("judge.poll_interval", "500ms")
	v.SetDefault("job.max_attempts", 3)
	v.SetDefault("job.record_ttl", "24h")
	v.SetDefault("step_cache.ttl", "5m")

	judgeTimeout, err := parseDuration(v, "judge.timeout")
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := parseDuration(v, "judge.poll_interval")
	if err != nil {
		return Config{}, err
	}
	stepCacheTTL, err := parseDuration(v, "step_cache.ttl")
	if err != nil {
		return Config{}, err
	}
	jobRecordTTL, err := parseDuration(v, "job.record_ttl")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:        v.GetString("app.name"),
		AppEnv:         v.GetString("app.env"),
		AppPort:        v.GetString("app.port"),
		DatabaseURL:    v.GetString("database.url"),
		RedisURL:       v.GetString("redis.url"),
		NATSURL:        v.GetString("nats.url"),
		JWTSecret:      v.GetString("jwt.secret"),
		JudgeBaseURL:   v.GetString("judge.base_url"),
		JudgeAuthToken: v.GetString("judge.auth_token"),
		JudgeTimeout:   judgeTimeout,
		BatchSize:      v.GetInt("judge.batch_size"),
		PollMaxRetries: v.GetInt("judge.poll_max_retries"),
		PollInterval:   pollInterval,
		JobMaxAttempts: v.GetInt("job.max_attempts"),
		StepCacheTTL:   stepCacheTTL,
		JobRecordTTL:   jobRecordTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	if cfg.JudgeBaseURL == "" {
		return Config{}, fmt.Errorf("judge base url must be provided")
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.PollMaxRetries <= 0 {
		cfg.PollMaxRetries = 15
	}
	if cfg.JobMaxAttempts <= 0 {
		cfg.JobMaxAttempts = 3
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}
