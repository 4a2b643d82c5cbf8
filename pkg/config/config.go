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

// Miss policies for the read path (spec'd as a deliberate either/or).
const (
	MissPolicyReject    = "reject"
	MissPolicyRecompute = "recompute"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Source   SourceConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Batch    BatchConfig
	Schedule ScheduleConfig
	Schema   SchemaConfig
	CORS     CORSConfig
	Log      LogConfig
}

// SourceConfig addresses the external spreadsheet holding the whiteboard.
type SourceConfig struct {
	BaseURL       string
	SpreadsheetID string
	APIKey        string
	Timeout       time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig bounds the schedule cache. MaxEntryBytes limits a single
// PersonSchedule value, MaxTotalBytes the aggregate across all entries; TTL is
// uniform per run and capped at MaxTTL.
type CacheConfig struct {
	TTL           time.Duration
	MaxTTL        time.Duration
	MaxEntryBytes int
	MaxTotalBytes int
}

// BatchConfig tunes the materializer.
type BatchConfig struct {
	Timezone        string
	WindowDays      int
	SearchBoundDays int
	QuietStart      string
	QuietEnd        string
	CronSpec        string
	LockTTL         time.Duration
}

// ScheduleConfig tunes the read path.
type ScheduleConfig struct {
	DefaultName string
	MaxDays     int
	MissPolicy  string
}

// SchemaConfig carries the cell-range layout of one whiteboard sheet. Ranges
// are configuration, not constants: the upstream sheet layout has drifted
// before and the materializer runs a drift check against these values.
type SchemaConfig struct {
	SupervisionRange  string
	FlyingRange       string
	GroundRange       string
	NotAvailableRange string
	RosterRanges      []RosterRange
}

// RosterRange maps one roster column range to a category and role.
type RosterRange struct {
	Range    string
	Category string
	Role     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
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
		// With an explicit config file viper surfaces a plain *fs.PathError
		// when the file is absent; ConfigFileNotFoundError only comes from
		// the search-path API. A missing .env is fine either way.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Source = SourceConfig{
		BaseURL:       v.GetString("SHEETS_BASE_URL"),
		SpreadsheetID: v.GetString("SHEETS_SPREADSHEET_ID"),
		APIKey:        v.GetString("SHEETS_API_KEY"),
		Timeout:       parseDuration(v.GetString("SHEETS_TIMEOUT"), 30*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		TTL:           parseDuration(v.GetString("CACHE_TTL"), 6*time.Hour),
		MaxTTL:        parseDuration(v.GetString("CACHE_MAX_TTL"), 24*time.Hour),
		MaxEntryBytes: v.GetInt("CACHE_MAX_ENTRY_BYTES"),
		MaxTotalBytes: v.GetInt("CACHE_MAX_TOTAL_BYTES"),
	}
	if cfg.Cache.TTL > cfg.Cache.MaxTTL {
		cfg.Cache.TTL = cfg.Cache.MaxTTL
	}

	cfg.Batch = BatchConfig{
		Timezone:        v.GetString("BATCH_TIMEZONE"),
		WindowDays:      v.GetInt("BATCH_WINDOW_DAYS"),
		SearchBoundDays: v.GetInt("BATCH_SEARCH_BOUND_DAYS"),
		QuietStart:      v.GetString("BATCH_QUIET_START"),
		QuietEnd:        v.GetString("BATCH_QUIET_END"),
		CronSpec:        v.GetString("BATCH_CRON"),
		LockTTL:         parseDuration(v.GetString("BATCH_LOCK_TTL"), 5*time.Minute),
	}

	cfg.Schedule = ScheduleConfig{
		DefaultName: v.GetString("SCHEDULE_DEFAULT_NAME"),
		MaxDays:     v.GetInt("SCHEDULE_MAX_DAYS"),
		MissPolicy:  strings.ToLower(v.GetString("SCHEDULE_MISS_POLICY")),
	}
	if cfg.Schedule.MissPolicy != MissPolicyRecompute {
		cfg.Schedule.MissPolicy = MissPolicyReject
	}

	rosterRanges, err := parseRosterRanges(v.GetString("SHEET_ROSTER_RANGES"))
	if err != nil {
		return nil, err
	}
	cfg.Schema = SchemaConfig{
		SupervisionRange:  v.GetString("SHEET_RANGE_SUPERVISION"),
		FlyingRange:       v.GetString("SHEET_RANGE_FLYING"),
		GroundRange:       v.GetString("SHEET_RANGE_GROUND"),
		NotAvailableRange: v.GetString("SHEET_RANGE_NOT_AVAILABLE"),
		RosterRanges:      rosterRanges,
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("SHEETS_BASE_URL", "https://sheets.googleapis.com/v4")
	v.SetDefault("SHEETS_SPREADSHEET_ID", "")
	v.SetDefault("SHEETS_API_KEY", "")
	v.SetDefault("SHEETS_TIMEOUT", "30s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("CACHE_TTL", "6h")
	v.SetDefault("CACHE_MAX_TTL", "24h")
	v.SetDefault("CACHE_MAX_ENTRY_BYTES", 256*1024)
	v.SetDefault("CACHE_MAX_TOTAL_BYTES", 10*1024*1024)

	v.SetDefault("BATCH_TIMEZONE", "America/Chicago")
	v.SetDefault("BATCH_WINDOW_DAYS", 7)
	v.SetDefault("BATCH_SEARCH_BOUND_DAYS", 30)
	v.SetDefault("BATCH_QUIET_START", "20:00")
	v.SetDefault("BATCH_QUIET_END", "04:00")
	v.SetDefault("BATCH_CRON", "*/30 5-19 * * *")
	v.SetDefault("BATCH_LOCK_TTL", "5m")

	v.SetDefault("SCHEDULE_DEFAULT_NAME", "")
	v.SetDefault("SCHEDULE_MAX_DAYS", 7)
	v.SetDefault("SCHEDULE_MISS_POLICY", MissPolicyReject)

	v.SetDefault("SHEET_RANGE_SUPERVISION", "A3:H10")
	v.SetDefault("SHEET_RANGE_FLYING", "A13:P40")
	v.SetDefault("SHEET_RANGE_GROUND", "A43:M60")
	v.SetDefault("SHEET_RANGE_NOT_AVAILABLE", "A63:K80")
	v.SetDefault("SHEET_ROSTER_RANGES", "R3:R30|alpha students|student,S3:S30|bravo students|student,T3:T30|staff|staff")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// parseRosterRanges decodes "range|category|role" tuples joined by commas.
func parseRosterRanges(raw string) ([]RosterRange, error) {
	parts := splitAndTrim(raw)
	ranges := make([]RosterRange, 0, len(parts))
	for _, part := range parts {
		fields := strings.Split(part, "|")
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid roster range %q, expected range|category|role", part)
		}
		ranges = append(ranges, RosterRange{
			Range:    strings.TrimSpace(fields[0]),
			Category: strings.TrimSpace(fields[1]),
			Role:     strings.ToLower(strings.TrimSpace(fields[2])),
		})
	}
	return ranges, nil
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
