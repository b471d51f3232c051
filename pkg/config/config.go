package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Business  BusinessConfig
	Scheduler SchedulerConfig
	Resolver  ResolverConfig
	Waitlist  WaitlistConfig
	Balancer  BalancerConfig
	Directory DirectoryConfig
	Events    EventsConfig
	Intake    IntakeConfig
	Exports   ExportsConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts int
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	PoolSize  int
	// Namespace prefixes every key and channel the engine writes.
	Namespace string
}

// Addr returns the host:port pair used by redis clients.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds the shared secret used to verify operator tokens issued by the auth collaborator.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BusinessConfig describes salon opening hours that bound every staff window.
type BusinessConfig struct {
	Timezone              string
	Open                  string
	Close                 string
	ClosedDays            []string
	SlotGranularity       int
	DefaultMinBreak       int
	DefaultMaxConsecutive int
}

// SchedulerConfig tunes placement and scoring.
type SchedulerConfig struct {
	MaxCandidateAttempts int
	AutoConfirm          bool
	Workers              int
	WeightProximity      float64
	WeightBalance        float64
	WeightUrgency        float64
}

// ResolverConfig governs conflict remediation.
type ResolverConfig struct {
	AutoApply     bool
	RevenueAtRisk string
	ReconcileCron string
}

// WaitlistConfig governs waitlist cadence and offer holds.
type WaitlistConfig struct {
	SweepCron string
	OfferTTL  time.Duration
}

// BalancerConfig governs the workload balancer cadence.
type BalancerConfig struct {
	Enabled     bool
	Cron        string
	HorizonDays int
	Threshold   float64
}

// DirectoryConfig selects where resources and services are loaded from.
type DirectoryConfig struct {
	Source      string
	File        string
	RefreshCron string
	CacheTTL    time.Duration
}

// EventsConfig selects the outbound notification transport.
type EventsConfig struct {
	Transport  string
	Channel    string
	AsynqQueue string
}

// IntakeConfig rate limits booking intake per customer.
type IntakeConfig struct {
	RatePerMinute int
	Burst         int
}

// ExportsConfig controls calendar export storage and signed links.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
		ConnectAttempts: positiveInt(v.GetInt("DB_CONNECT_ATTEMPTS"), 1),
	}

	cfg.Redis = RedisConfig{
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		PoolSize:  v.GetInt("REDIS_POOL_SIZE"),
		Namespace: v.GetString("REDIS_NAMESPACE"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Business = BusinessConfig{
		Timezone:              v.GetString("BUSINESS_TIMEZONE"),
		Open:                  v.GetString("BUSINESS_OPEN"),
		Close:                 v.GetString("BUSINESS_CLOSE"),
		ClosedDays:            splitAndTrim(strings.ToLower(v.GetString("BUSINESS_CLOSED_DAYS"))),
		SlotGranularity:       positiveInt(v.GetInt("SLOT_GRANULARITY_MINUTES"), 15),
		DefaultMinBreak:       positiveInt(v.GetInt("DEFAULT_MIN_BREAK_MINUTES"), 15),
		DefaultMaxConsecutive: v.GetInt("DEFAULT_MAX_CONSECUTIVE_MINUTES"),
	}

	cfg.Scheduler = SchedulerConfig{
		MaxCandidateAttempts: positiveInt(v.GetInt("SCHEDULER_MAX_CANDIDATE_ATTEMPTS"), 5),
		AutoConfirm:          v.GetBool("SCHEDULER_AUTO_CONFIRM"),
		Workers:              positiveInt(v.GetInt("SCHEDULER_WORKERS"), 4),
		WeightProximity:      v.GetFloat64("SCORING_WEIGHT_PROXIMITY"),
		WeightBalance:        v.GetFloat64("SCORING_WEIGHT_BALANCE"),
		WeightUrgency:        v.GetFloat64("SCORING_WEIGHT_URGENCY"),
	}

	cfg.Resolver = ResolverConfig{
		AutoApply:     v.GetBool("RESOLVER_AUTO_APPLY"),
		RevenueAtRisk: v.GetString("RESOLVER_REVENUE_AT_RISK"),
		ReconcileCron: v.GetString("RESOLVER_RECONCILE_CRON"),
	}

	cfg.Waitlist = WaitlistConfig{
		SweepCron: v.GetString("WAITLIST_SWEEP_CRON"),
		OfferTTL:  parseDuration(v.GetString("WAITLIST_OFFER_TTL"), 2*time.Hour),
	}

	cfg.Balancer = BalancerConfig{
		Enabled:     v.GetBool("BALANCER_ENABLED"),
		Cron:        v.GetString("BALANCER_CRON"),
		HorizonDays: positiveInt(v.GetInt("BALANCER_HORIZON_DAYS"), 7),
		Threshold:   v.GetFloat64("BALANCER_THRESHOLD"),
	}

	cfg.Directory = DirectoryConfig{
		Source:      strings.ToLower(v.GetString("DIRECTORY_SOURCE")),
		File:        v.GetString("DIRECTORY_FILE"),
		RefreshCron: v.GetString("DIRECTORY_REFRESH_CRON"),
		CacheTTL:    parseDuration(v.GetString("DIRECTORY_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Events = EventsConfig{
		Transport:  strings.ToLower(v.GetString("EVENTS_TRANSPORT")),
		Channel:    v.GetString("EVENTS_CHANNEL"),
		AsynqQueue: v.GetString("EVENTS_ASYNQ_QUEUE"),
	}

	cfg.Intake = IntakeConfig{
		RatePerMinute: positiveInt(v.GetInt("INTAKE_RATE_PER_MINUTE"), 30),
		Burst:         positiveInt(v.GetInt("INTAKE_RATE_BURST"), 5),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "salon_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_CONNECT_ATTEMPTS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 20)
	v.SetDefault("REDIS_NAMESPACE", "salon")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BUSINESS_TIMEZONE", "UTC")
	v.SetDefault("BUSINESS_OPEN", "09:00")
	v.SetDefault("BUSINESS_CLOSE", "19:00")
	v.SetDefault("BUSINESS_CLOSED_DAYS", "sunday")
	v.SetDefault("SLOT_GRANULARITY_MINUTES", 15)
	v.SetDefault("DEFAULT_MIN_BREAK_MINUTES", 15)
	v.SetDefault("DEFAULT_MAX_CONSECUTIVE_MINUTES", 240)

	v.SetDefault("SCHEDULER_MAX_CANDIDATE_ATTEMPTS", 5)
	v.SetDefault("SCHEDULER_AUTO_CONFIRM", true)
	v.SetDefault("SCHEDULER_WORKERS", 4)
	v.SetDefault("SCORING_WEIGHT_PROXIMITY", 0.6)
	v.SetDefault("SCORING_WEIGHT_BALANCE", 0.3)
	v.SetDefault("SCORING_WEIGHT_URGENCY", 0.1)

	v.SetDefault("RESOLVER_AUTO_APPLY", true)
	v.SetDefault("RESOLVER_REVENUE_AT_RISK", "150.00")
	v.SetDefault("RESOLVER_RECONCILE_CRON", "@every 10m")

	v.SetDefault("WAITLIST_SWEEP_CRON", "@every 5m")
	v.SetDefault("WAITLIST_OFFER_TTL", "2h")

	v.SetDefault("BALANCER_ENABLED", true)
	v.SetDefault("BALANCER_CRON", "0 6 * * *")
	v.SetDefault("BALANCER_HORIZON_DAYS", 7)
	v.SetDefault("BALANCER_THRESHOLD", 0.15)

	v.SetDefault("DIRECTORY_SOURCE", "postgres")
	v.SetDefault("DIRECTORY_FILE", "./directory.yaml")
	v.SetDefault("DIRECTORY_REFRESH_CRON", "@every 10m")
	v.SetDefault("DIRECTORY_CACHE_TTL", "10m")

	v.SetDefault("EVENTS_TRANSPORT", "pubsub")
	v.SetDefault("EVENTS_CHANNEL", "scheduling-events")
	v.SetDefault("EVENTS_ASYNQ_QUEUE", "notifications")

	v.SetDefault("INTAKE_RATE_PER_MINUTE", 30)
	v.SetDefault("INTAKE_RATE_BURST", 5)

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func positiveInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
