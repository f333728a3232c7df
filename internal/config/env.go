package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/local/figcrop/internal/engine"
	"github.com/local/figcrop/internal/mask"
	"github.com/local/figcrop/internal/region"
	"github.com/local/figcrop/internal/trim"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// EngineConfig holds the figure heuristics and render settings. Fields can
// be overridden from the YAML file named by ENGINE_CONFIG_FILE.
type EngineConfig struct {
	Region          region.Params `yaml:"region"`
	MinFigurePixels int           `yaml:"min_figure_pixels"`
	MaskMarginPx    float64       `yaml:"mask_margin_px"`
	MaskColor       string        `yaml:"mask_color"`
	RenderZoom      float64       `yaml:"render_zoom"`
	PreviewZoom     float64       `yaml:"preview_zoom"`
	TrimReference   string        `yaml:"trim_reference"` // "white"|"corner"
	TrimScale       float64       `yaml:"trim_scale"`
	TrimOffset      float64       `yaml:"trim_offset"`
	PageWorkers     int           `yaml:"page_workers"`
}

// StorageConfig defines where uploads and exports live.
type StorageConfig struct {
	UploadDir    string
	Bucket       string
	ExportPrefix string
	Region       string
	AccessKey    string
	SecretKey    string
	// DeckFont is a UTF-8 TrueType font for slide captions.
	DeckFont string
}

// RedisConfig defines session status storage. An empty URL keeps status in memory.
type RedisConfig struct {
	URL    string
	TTL    time.Duration
	Prefix string
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Port          string
	MaxUploadMB   int
	MaxInflight   int
	SessionIdle   time.Duration
	FetchTimeout  time.Duration
	ShutdownGrace time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Engine  EngineConfig
	Storage StorageConfig
	Redis   RedisConfig
	Server  ServerConfig
}

// Load reads an optional .env file, the environment, then the YAML engine
// overlay when ENGINE_CONFIG_FILE is set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := FromEnv()
	if path := os.Getenv("ENGINE_CONFIG_FILE"); path != "" {
		if err := cfg.Engine.Overlay(path); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/figcrop.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_figcrop",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	def := region.DefaultParams()
	cfg.Engine = EngineConfig{
		Region: region.Params{
			ColumnMargin:         parseFloat(getEnv("COLUMN_MARGIN", ""), def.ColumnMargin),
			FullWidthRatio:       parseFloat(getEnv("FULL_WIDTH_RATIO", ""), def.FullWidthRatio),
			HeaderMargin:         parseFloat(getEnv("HEADER_MARGIN", ""), def.HeaderMargin),
			BackgroundCoverRatio: parseFloat(getEnv("BACKGROUND_COVER_RATIO", ""), def.BackgroundCoverRatio),
			MinRegionHeight:      parseFloat(getEnv("MIN_REGION_HEIGHT", ""), def.MinRegionHeight),
		},
		MinFigurePixels: parseInt(getEnv("MIN_FIGURE_PIXELS", "20"), 20),
		MaskMarginPx:    parseFloat(getEnv("MASK_MARGIN_PX", "2"), 2),
		MaskColor:       getEnv("MASK_COLOR", "#ffffff"),
		RenderZoom:      parseFloat(getEnv("RENDER_ZOOM", "8.33"), 8.33),
		PreviewZoom:     parseFloat(getEnv("PREVIEW_ZOOM", "2"), 2),
		TrimReference:   getEnv("TRIM_REFERENCE", "white"),
		TrimScale:       parseFloat(getEnv("TRIM_SCALE", "2.0"), 2.0),
		TrimOffset:      parseFloat(getEnv("TRIM_OFFSET", "-100"), -100),
		PageWorkers:     parseInt(getEnv("PAGE_WORKERS", "4"), 4),
	}

	cfg.Storage = StorageConfig{
		UploadDir:    getEnv("UPLOAD_DIR", os.TempDir()),
		Bucket:       getEnv("AWS_S3_BUCKET", ""),
		ExportPrefix: getEnv("EXPORT_PREFIX", "exports/"),
		Region:       getEnv("AWS_REGION", "us-east-1"),
		AccessKey:    getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DeckFont:     getEnv("DECK_FONT_FILE", ""),
	}

	cfg.Redis = RedisConfig{
		URL:    getEnv("REDIS_URL", ""),
		TTL:    parseDuration(getEnv("SESSION_STATUS_TTL", "24h"), 24*time.Hour),
		Prefix: getEnv("SESSION_STATUS_PREFIX", "session"),
	}

	cfg.Server = ServerConfig{
		Port:          getEnv("PORT", "8080"),
		MaxUploadMB:   parseInt(getEnv("MAX_UPLOAD_MB", "200"), 200),
		MaxInflight:   parseInt(getEnv("SESSION_MAX_INFLIGHT", "2"), 2),
		SessionIdle:   parseDuration(getEnv("SESSION_IDLE_TIMEOUT", "2h"), 2*time.Hour),
		FetchTimeout:  parseDuration(getEnv("FETCH_TIMEOUT", "60s"), 60*time.Second),
		ShutdownGrace: parseDuration(getEnv("SHUTDOWN_GRACE", "10s"), 10*time.Second),
	}

	return cfg
}

// Overlay merges the YAML file at path into c. Keys absent from the file
// keep their current values.
func (c *EngineConfig) Overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read engine config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse engine config %s: %w", path, err)
	}
	return nil
}

// Options converts c into engine options.
func (c EngineConfig) Options() (engine.Options, error) {
	col, err := mask.ParseColor(c.MaskColor)
	if err != nil {
		return engine.Options{}, fmt.Errorf("MASK_COLOR: %w", err)
	}
	return engine.Options{
		Region: c.Region,
		Trim: trim.Options{
			Reference: trim.ParseReference(c.TrimReference),
			Scale:     c.TrimScale,
			Offset:    c.TrimOffset,
		},
		Mask:            mask.Options{MarginPx: c.MaskMarginPx, Color: col},
		RenderZoom:      c.RenderZoom,
		MinFigurePixels: c.MinFigurePixels,
		PageWorkers:     c.PageWorkers,
	}, nil
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
