package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Extraction holds the scalar knobs of the keyframe pipeline. Values are
// read once at startup; nothing reconfigures them at runtime.
type Extraction struct {
	// MinKeyframeDensity is the shots-per-second floor below which fallback
	// sampling is used. The default is one shot per ten seconds.
	MinKeyframeDensity  float64 `env:"MIN_KEYFRAME_DENSITY"  envDefault:"0.1"`
	FallbackIntervalSec float64 `env:"FALLBACK_INTERVAL_SEC" envDefault:"1"`
	MaxProbe            int     `env:"MAX_PROBE"             envDefault:"15"`
	EnableFallback      bool    `env:"ENABLE_FALLBACK"       envDefault:"false"`
	ClusterEps          float64 `env:"CLUSTER_EPS"           envDefault:"0.1"`
	ClusterMinSamples   int     `env:"CLUSTER_MIN_SAMPLES"   envDefault:"1"`
	JPEGQuality         int     `env:"JPEG_QUALITY"          envDefault:"95"`
}

type Config struct {
	Extraction

	OutputDir string `env:"OUTPUT_DIR" envDefault:"output"`
	Workers   int    `env:"WORKERS"    envDefault:"4"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`

	// ShotsDir holds precomputed boundaries, one file per video. When empty
	// the ffmpeg scene filter is used instead.
	ShotsDir       string  `env:"SHOTS_DIR"`
	SceneThreshold float64 `env:"SCENE_THRESHOLD" envDefault:"0.3"`

	EmbedderURL       string `env:"EMBEDDER_URL"`
	EmbedModel        string `env:"EMBED_MODEL"         envDefault:"ViT-B/32"`
	EmbedBatchSize    int    `env:"EMBED_BATCH_SIZE"    envDefault:"16"`
	EmbedWorkers      int    `env:"EMBED_WORKERS"       envDefault:"2"`
	EmbedTimeoutSec   int    `env:"EMBED_TIMEOUT_SEC"   envDefault:"60"`
	EmbedDimensions   int    `env:"EMBED_DIMENSIONS"    envDefault:"0"`
	HistogramGridSize int    `env:"HISTOGRAM_GRID_SIZE" envDefault:"2"`

	DatabaseURL string `env:"DATABASE_URL"`

	MinIOEndpoint  string `env:"MINIO_ENDPOINT"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL"    envDefault:"false"`
	MinIOBucket    string `env:"MINIO_BUCKET"     envDefault:"keyframes"`

	MetricsAddr string `env:"METRICS_ADDR"`
}

// Load reads the configuration from KEYFRAMER_* environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "KEYFRAMER_"}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Extraction.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output dir must not be empty"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.EmbedBatchSize < 1 {
		errs = append(errs, fmt.Errorf("embed batch size must be >= 1, got %d", c.EmbedBatchSize))
	}
	if c.EmbedWorkers < 1 {
		errs = append(errs, fmt.Errorf("embed workers must be >= 1, got %d", c.EmbedWorkers))
	}
	if c.SceneThreshold <= 0 || c.SceneThreshold >= 1 {
		errs = append(errs, fmt.Errorf("scene threshold must be in (0,1), got %v", c.SceneThreshold))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e Extraction) Validate() error {
	var errs []error
	if e.MinKeyframeDensity < 0 {
		errs = append(errs, fmt.Errorf("min keyframe density must be >= 0, got %v", e.MinKeyframeDensity))
	}
	if e.FallbackIntervalSec <= 0 {
		errs = append(errs, fmt.Errorf("fallback interval must be > 0, got %v", e.FallbackIntervalSec))
	}
	if e.MaxProbe < 0 {
		errs = append(errs, fmt.Errorf("max probe must be >= 0, got %d", e.MaxProbe))
	}
	if e.ClusterEps <= 0 || e.ClusterEps > 2 {
		errs = append(errs, fmt.Errorf("cluster eps must be in (0,2], got %v", e.ClusterEps))
	}
	if e.ClusterMinSamples < 1 {
		errs = append(errs, fmt.Errorf("cluster min samples must be >= 1, got %d", e.ClusterMinSamples))
	}
	if e.JPEGQuality < 1 || e.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg quality must be in [1,100], got %d", e.JPEGQuality))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name onto slog's levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
