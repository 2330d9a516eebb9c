// Package config loads service configuration from the environment (and an
// optional .env file) through viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Auth     AuthConfig
	NATS     NATSConfig
	Metrics  MetricsConfig
	Workflow WorkflowConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
	Timezone    string
}

// ServerConfig holds the HTTP and gRPC listener settings.
type ServerConfig struct {
	Port            int
	GRPCPort        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig holds PostgreSQL pool settings.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
	AutoMigrate bool
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver   string // postgres | memory
	SeedFile string // JSON directory seed for the memory driver
}

// AuthConfig holds bearer-token verification settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// NATSConfig configures the notification event publisher. An empty URL
// disables publishing and notifications are only logged.
type NATSConfig struct {
	URL            string
	SubjectPrefix  string
	PublishTimeout time.Duration
}

// MetricsConfig configures the statsd client.
type MetricsConfig struct {
	Enabled      bool
	StatsdAddr   string
	SamplingRate float64
}

// WorkflowConfig tunes the approval engine.
type WorkflowConfig struct {
	EnforceStepOrder  bool
	ArrivalGrace      time.Duration
	TrackingCodeTries int
	NotifyTimeout     time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Service: ServiceConfig{
			Name:        v.GetString("service.name"),
			Version:     v.GetString("service.version"),
			Environment: v.GetString("service.environment"),
			LogLevel:    v.GetString("log.level"),
			Timezone:    v.GetString("service.timezone"),
		},
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			GRPCPort:        v.GetInt("grpc.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			CORSOrigins:     splitList(v.GetString("server.cors_origins")),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("database.host"),
			Port:        v.GetInt("database.port"),
			User:        v.GetString("database.user"),
			Password:    v.GetString("database.password"),
			Database:    v.GetString("database.name"),
			SSLMode:     v.GetString("database.sslmode"),
			MaxConns:    v.GetInt32("database.max_conns"),
			MinConns:    v.GetInt32("database.min_conns"),
			MaxConnTime: v.GetDuration("database.max_conn_time"),
			MaxIdleTime: v.GetDuration("database.max_idle_time"),
			HealthCheck: v.GetDuration("database.health_check"),
			AutoMigrate: v.GetBool("database.auto_migrate"),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(v.GetString("store.driver")),
			SeedFile: v.GetString("store.seed_file"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("jwt.secret"),
			Issuer:    v.GetString("jwt.issuer"),
		},
		NATS: NATSConfig{
			URL:            v.GetString("nats.url"),
			SubjectPrefix:  v.GetString("nats.subject_prefix"),
			PublishTimeout: v.GetDuration("nats.publish_timeout"),
		},
		Metrics: MetricsConfig{
			Enabled:      v.GetBool("metrics.enabled"),
			StatsdAddr:   v.GetString("metrics.statsd_addr"),
			SamplingRate: v.GetFloat64("metrics.sampling_rate"),
		},
		Workflow: WorkflowConfig{
			EnforceStepOrder:  v.GetBool("workflow.enforce_step_order"),
			ArrivalGrace:      v.GetDuration("workflow.arrival_grace"),
			TrackingCodeTries: v.GetInt("workflow.tracking_code_tries"),
			NotifyTimeout:     v.GetDuration("workflow.notify_timeout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	if _, err := time.LoadLocation(c.Service.Timezone); err != nil {
		return fmt.Errorf("invalid SERVICE_TIMEZONE %q: %w", c.Service.Timezone, err)
	}
	if c.Workflow.TrackingCodeTries < 1 {
		return fmt.Errorf("WORKFLOW_TRACKING_CODE_TRIES must be at least 1")
	}
	return nil
}

// Location returns the timezone used for calendar-date rules.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Service.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "be-visitor-gatepass")
	v.SetDefault("service.version", "dev")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.timezone", "UTC")
	v.SetDefault("log.level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("grpc.port", 9090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)
	v.SetDefault("server.cors_origins", "*")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "gatepass")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_time", time.Hour)
	v.SetDefault("database.max_idle_time", 30*time.Minute)
	v.SetDefault("database.health_check", time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.seed_file", "")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "notifications.visitors")
	v.SetDefault("nats.publish_timeout", 5*time.Second)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.statsd_addr", "localhost:8125")
	v.SetDefault("metrics.sampling_rate", 1.0)

	v.SetDefault("workflow.enforce_step_order", false)
	v.SetDefault("workflow.arrival_grace", 15*time.Minute)
	v.SetDefault("workflow.tracking_code_tries", 10)
	v.SetDefault("workflow.notify_timeout", 10*time.Second)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
