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

// Spreadsheet MIME types accepted by the upload drop zone.
const (
	MIMETypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMETypeXLS  = "application/vnd.ms-excel"
	MIMETypeCSV  = "text/csv"
)

type Config struct {
	Env  string
	Port int

	CORS      CORSConfig
	Log       LogConfig
	Backend   BackendConfig
	Upload    UploadConfig
	Poller    PollerConfig
	Reports   ReportsConfig
	Session   SessionConfig
	Dashboard DashboardConfig
	Metrics   MetricsConfig
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BackendConfig points at the report generation service.
type BackendConfig struct {
	BaseURL string
	// Timeout of zero leaves the transport default in place.
	Timeout time.Duration
}

// UploadConfig governs client file validation and staging.
type UploadConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	StagingDir       string
	StagingTTL       time.Duration
}

// PollerConfig tunes task progress polling.
type PollerConfig struct {
	Interval time.Duration
}

// ReportsConfig controls the donor report table and download links.
type ReportsConfig struct {
	PageSize        int
	SigningSecret   string
	DownloadLinkTTL time.Duration
}

// SessionConfig controls dashboard session lifetime.
type SessionConfig struct {
	CookieName      string
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

// DashboardConfig groups presentation behaviour.
type DashboardConfig struct {
	NotificationTTL   time.Duration
	RefreshOnComplete bool
}

type MetricsConfig struct {
	Enabled bool
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

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Backend = BackendConfig{
		BaseURL: strings.TrimRight(v.GetString("BACKEND_BASE_URL"), "/"),
		Timeout: parseDuration(v.GetString("BACKEND_TIMEOUT"), 0),
	}

	maxSize := v.GetInt64("UPLOAD_MAX_FILE_SIZE")
	if maxSize <= 0 {
		maxSize = 5 * 1024 * 1024
	}
	cfg.Upload = UploadConfig{
		MaxFileSizeBytes: maxSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("UPLOAD_ALLOWED_MIME_TYPES")),
		StagingDir:       v.GetString("UPLOAD_STAGING_DIR"),
		StagingTTL:       parseDuration(v.GetString("UPLOAD_STAGING_TTL"), time.Hour),
	}

	cfg.Poller = PollerConfig{
		Interval: parseDuration(v.GetString("POLL_INTERVAL"), 2*time.Second),
	}

	pageSize := v.GetInt("REPORTS_PAGE_SIZE")
	if pageSize <= 0 {
		pageSize = 10
	}
	cfg.Reports = ReportsConfig{
		PageSize:        pageSize,
		SigningSecret:   v.GetString("DOWNLOAD_SIGNING_SECRET"),
		DownloadLinkTTL: parseDuration(v.GetString("DOWNLOAD_LINK_TTL"), 15*time.Minute),
	}

	cfg.Session = SessionConfig{
		CookieName:      v.GetString("SESSION_COOKIE_NAME"),
		IdleTTL:         parseDuration(v.GetString("SESSION_IDLE_TTL"), 30*time.Minute),
		CleanupInterval: parseDuration(v.GetString("SESSION_CLEANUP_INTERVAL"), 5*time.Minute),
	}

	cfg.Dashboard = DashboardConfig{
		NotificationTTL:   parseDuration(v.GetString("NOTIFICATION_TTL"), 6*time.Second),
		RefreshOnComplete: v.GetBool("DASHBOARD_REFRESH_ON_COMPLETE"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 3000)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BACKEND_BASE_URL", "http://localhost:8000")
	v.SetDefault("BACKEND_TIMEOUT", "0s")

	v.SetDefault("UPLOAD_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("UPLOAD_ALLOWED_MIME_TYPES", strings.Join([]string{MIMETypeXLSX, MIMETypeXLS, MIMETypeCSV}, ","))
	v.SetDefault("UPLOAD_STAGING_DIR", "./staging")
	v.SetDefault("UPLOAD_STAGING_TTL", "1h")

	v.SetDefault("POLL_INTERVAL", "2s")

	v.SetDefault("REPORTS_PAGE_SIZE", 10)
	v.SetDefault("DOWNLOAD_SIGNING_SECRET", "dev_download_secret")
	v.SetDefault("DOWNLOAD_LINK_TTL", "15m")

	v.SetDefault("SESSION_COOKIE_NAME", "dashboard_session")
	v.SetDefault("SESSION_IDLE_TTL", "30m")
	v.SetDefault("SESSION_CLEANUP_INTERVAL", "5m")

	v.SetDefault("NOTIFICATION_TTL", "6s")
	v.SetDefault("DASHBOARD_REFRESH_ON_COMPLETE", true)

	v.SetDefault("ENABLE_METRICS", true)
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
