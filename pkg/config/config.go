package config

import (
	"errors"
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

// Catalog sources.
const (
	CatalogSourcePostgres = "postgres"
	CatalogSourceFile     = "file"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Catalog   CatalogConfig
	Exports   ExportsConfig
	Jobs      JobsConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrateOnStart bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes timetable generation.
type SchedulerConfig struct {
	Enabled        bool
	ProposalTTL    time.Duration
	SweepSchedule  string
	DefaultTimeout time.Duration
	MaxBacktracks  int
	WorkingDays    []string
	Parallel       bool
}

// CatalogConfig selects where reference data is read from.
type CatalogConfig struct {
	Source string
	Path   string
}

// ExportsConfig controls timetable export rendering.
type ExportsConfig struct {
	Timezone      string
	CalendarName  string
	DocumentTitle string
	CSVDelimiter  string
}

// JobsConfig sizes the asynchronous generation queue.
type JobsConfig struct {
	Concurrency int
	Retries     int
	ResultTTL   time.Duration
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

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrateOnStart: v.GetBool("DB_MIGRATE_ON_START"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		CacheTTL: parseDuration(v.GetString("TIMETABLE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxBacktracks := v.GetInt("SCHEDULER_MAX_BACKTRACKS")
	if maxBacktracks <= 0 {
		maxBacktracks = 5000
	}
	cfg.Scheduler = SchedulerConfig{
		Enabled:        v.GetBool("ENABLE_SCHEDULER"),
		ProposalTTL:    parseDuration(v.GetString("SCHEDULER_PROPOSAL_TTL"), 30*time.Minute),
		SweepSchedule:  v.GetString("SCHEDULER_SWEEP_SCHEDULE"),
		DefaultTimeout: parseDuration(v.GetString("SCHEDULER_DEFAULT_TIMEOUT"), 30*time.Second),
		MaxBacktracks:  maxBacktracks,
		WorkingDays:    splitAndTrim(v.GetString("SCHEDULER_WORKING_DAYS")),
		Parallel:       v.GetBool("SCHEDULER_PARALLEL"),
	}

	cfg.Catalog = CatalogConfig{
		Source: strings.ToLower(v.GetString("CATALOG_SOURCE")),
		Path:   v.GetString("CATALOG_PATH"),
	}

	cfg.Exports = ExportsConfig{
		Timezone:      v.GetString("EXPORT_TIMEZONE"),
		CalendarName:  v.GetString("EXPORT_CALENDAR_NAME"),
		DocumentTitle: v.GetString("EXPORT_DOCUMENT_TITLE"),
		CSVDelimiter:  v.GetString("EXPORT_CSV_DELIMITER"),
	}

	concurrency := v.GetInt("JOBS_CONCURRENCY")
	if concurrency <= 0 {
		concurrency = 1
	}
	cfg.Jobs = JobsConfig{
		Concurrency: concurrency,
		Retries:     v.GetInt("JOBS_RETRIES"),
		ResultTTL:   parseDuration(v.GetString("JOBS_RESULT_TTL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MIGRATE_ON_START", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("TIMETABLE_CACHE_TTL", "5m")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_SCHEDULER", true)
	v.SetDefault("SCHEDULER_PROPOSAL_TTL", "30m")
	v.SetDefault("SCHEDULER_SWEEP_SCHEDULE", "@every 5m")
	v.SetDefault("SCHEDULER_DEFAULT_TIMEOUT", "30s")
	v.SetDefault("SCHEDULER_MAX_BACKTRACKS", 5000)
	v.SetDefault("SCHEDULER_WORKING_DAYS", "Monday,Tuesday,Wednesday,Thursday,Friday")
	v.SetDefault("SCHEDULER_PARALLEL", false)

	v.SetDefault("CATALOG_SOURCE", CatalogSourcePostgres)
	v.SetDefault("CATALOG_PATH", "./dataset.yaml")

	v.SetDefault("EXPORT_TIMEZONE", "UTC")
	v.SetDefault("EXPORT_CALENDAR_NAME", "Campus Timetable")
	v.SetDefault("EXPORT_DOCUMENT_TITLE", "Weekly Timetable")
	v.SetDefault("EXPORT_CSV_DELIMITER", ",")

	v.SetDefault("JOBS_CONCURRENCY", 1)
	v.SetDefault("JOBS_RETRIES", 0)
	v.SetDefault("JOBS_RESULT_TTL", "1h")
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

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
