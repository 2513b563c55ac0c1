package buildCFG

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"confdesk/internal/consumerWorker"
	"confdesk/internal/gateway"
	"confdesk/internal/mailer"
	"confdesk/internal/payment"
	"confdesk/internal/rabbit"
	"confdesk/internal/telemetry"
)

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret []byte
	Issuer    string
}

// fromEnv prefers the environment variable over the yaml key so secrets can
// live in .env.
func fromEnv(cfg *config.Config, key, env string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	return cfg.GetString(key)
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		log.Warn().Msg("server.port is not set, using 8080")
		port = "8080"
	}
	timeout := cfg.GetDuration("server.shutdown_timeout")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return ServerConfig{Port: port, ShutdownTimeout: timeout}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	master := fromEnv(cfg, "database.master_dsn", "DATABASE_URL")
	if master == "" {
		return "", nil, nil, errors.New("database.master_dsn is required")
	}
	slaves := cfg.GetStringSlice("database.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("database.conn_max_lifetime"),
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 20
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	log.Info().
		Int("slaves", len(slaves)).
		Int("max_open_conns", opts.MaxOpenConns).
		Msg("database config loaded")
	return master, slaves, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (rabbit.Config, error) {
	rc := rabbit.Config{
		URL:      fromEnv(cfg, "rabbitmq.url", "RABBITMQ_URL"),
		Exchange: cfg.GetString("rabbitmq.exchange"),
		Queue:    cfg.GetString("rabbitmq.queue"),
		Prefetch: cfg.GetInt("rabbitmq.prefetch"),
	}
	if rc.URL == "" {
		return rabbit.Config{}, errors.New("rabbitmq.url is required")
	}
	if rc.Exchange == "" {
		rc.Exchange = "confdesk.delayed"
	}
	if rc.Queue == "" {
		rc.Queue = "confdesk.reconcile"
	}
	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("rabbitmq config loaded")
	return rc, nil
}

func BuildGatewayConfig(cfg *config.Config, log *zerolog.Logger) (gateway.Config, error) {
	gc := gateway.Config{
		Provider:  cfg.GetString("gateway.provider"),
		BaseURL:   cfg.GetString("gateway.base_url"),
		KeyID:     fromEnv(cfg, "gateway.key_id", "GATEWAY_KEY_ID"),
		KeySecret: fromEnv(cfg, "gateway.key_secret", "GATEWAY_KEY_SECRET"),
		Timeout:   cfg.GetDuration("gateway.timeout"),
	}
	if gc.KeySecret == "" {
		return gateway.Config{}, errors.New("gateway.key_secret is required to verify payment signatures")
	}
	if gc.Provider == "" || gc.Provider == "stub" {
		log.Warn().Msg("using the in-process stub payment gateway")
	}
	return gc, nil
}

func BuildPaymentConfig(cfg *config.Config, gc gateway.Config) payment.Config {
	return payment.Config{
		Secret:           gc.KeySecret,
		Currency:         cfg.GetString("payment.currency"),
		GatewayTimeout:   gc.Timeout,
		GatewayAttempts:  cfg.GetInt("payment.gateway_attempts"),
		RetryBaseDelay:   cfg.GetDuration("payment.retry_base_delay"),
		ReconcileAfter:   cfg.GetDuration("reconcile.after"),
		SweepConcurrency: cfg.GetInt("reconcile.concurrency"),
		NotifyTimeout:    cfg.GetDuration("mailer.timeout"),
	}
}

func BuildReconcileConfig(cfg *config.Config) consumerWorker.Config {
	return consumerWorker.Config{
		SweepInterval: cfg.GetDuration("reconcile.sweep_interval"),
		SweepBatch:    cfg.GetInt("reconcile.sweep_batch"),
	}
}

func BuildMailerConfig(cfg *config.Config) mailer.Config {
	return mailer.Config{
		Enabled:  cfg.GetBool("mailer.enabled"),
		Host:     cfg.GetString("mailer.host"),
		Port:     cfg.GetInt("mailer.port"),
		Username: cfg.GetString("mailer.username"),
		Password: fromEnv(cfg, "mailer.password", "SMTP_PASSWORD"),
		From:     cfg.GetString("mailer.from"),
	}
}

func BuildAuthConfig(cfg *config.Config) (AuthConfig, error) {
	secret := fromEnv(cfg, "auth.jwt_secret", "JWT_SECRET")
	if len(secret) < 16 {
		return AuthConfig{}, fmt.Errorf("auth.jwt_secret must be at least 16 bytes, got %d", len(secret))
	}
	return AuthConfig{JWTSecret: []byte(secret), Issuer: cfg.GetString("auth.issuer")}, nil
}

func BuildTelemetryConfig(cfg *config.Config) telemetry.Config {
	return telemetry.Config{
		Enabled:     cfg.GetBool("telemetry.enabled"),
		Endpoint:    cfg.GetString("telemetry.endpoint"),
		ServiceName: cfg.GetString("telemetry.service_name"),
		SampleRatio: cfg.GetFloat64("telemetry.sample_ratio"),
	}
}
