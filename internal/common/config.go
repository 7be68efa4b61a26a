package common

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Remote    RemoteConfig
	Image     ImageConfig
	Translate TranslateConfig
	Offline   OfflineConfig
}

// ServerConfig holds gateway-related configuration
type ServerConfig struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
}

// RemoteConfig holds tagging/translation endpoint configuration
type RemoteConfig struct {
	TaggerBase   string
	TranslateURL string
	Timeout      time.Duration
	DefaultTopK  int
}

// ImageConfig holds the resize/re-encode budgets
type ImageConfig struct {
	UploadMaxDim  int
	PreviewMaxDim int
	JPEGQuality   int
}

// TranslateConfig holds translation-cache configuration
type TranslateConfig struct {
	Languages    []string
	CacheDBPath  string
	CacheCeiling int
}

// OfflineConfig holds the asset-cache gateway configuration
type OfflineConfig struct {
	Generation  string
	UpstreamURL string
	CacheDir    string
	Manifest    []string
	ShellPath   string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Remote: RemoteConfig{
			TaggerBase:   getEnv("TAGGER_ENDPOINT", ""),
			TranslateURL: getEnv("TRANSLATE_ENDPOINT", ""),
			Timeout:      getEnvAsDuration("REMOTE_TIMEOUT", 45*time.Second),
			DefaultTopK:  getEnvAsInt("TOPK_DEFAULT", 30),
		},
		Image: ImageConfig{
			UploadMaxDim:  getEnvAsInt("UPLOAD_MAX_DIM", 1024),
			PreviewMaxDim: getEnvAsInt("PREVIEW_MAX_DIM", 1600),
			JPEGQuality:   getEnvAsInt("JPEG_QUALITY", 86),
		},
		Translate: TranslateConfig{
			Languages:    getEnvAsList("TARGET_LANGS", []string{"ja", "zh", "ko"}),
			CacheDBPath:  getEnv("TRANSLATION_CACHE_DB", "data/translations.db"),
			CacheCeiling: getEnvAsInt("TRANSLATION_CACHE_CEILING", 500),
		},
		Offline: OfflineConfig{
			Generation:  getEnv("ASSET_GENERATION", "photo-tagger-pwa-v1"),
			UpstreamURL: getEnv("ASSET_UPSTREAM", ""),
			CacheDir:    getEnv("ASSET_CACHE_DIR", "data/assets"),
			Manifest: getEnvAsList("ASSET_MANIFEST", []string{
				"/", "/index.html", "/app.js", "/manifest.json",
				"/icons/icon-192.png", "/icons/icon-512.png",
			}),
			ShellPath: getEnv("ASSET_SHELL", "/index.html"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would misbehave at runtime
// rather than clamping them silently.
func (c *Config) Validate() error {
	if c.Image.UploadMaxDim < 1 || c.Image.PreviewMaxDim < 1 {
		return fmt.Errorf("image dimension bounds must be positive")
	}
	if c.Image.PreviewMaxDim < c.Image.UploadMaxDim {
		return fmt.Errorf("preview bound %d below upload bound %d", c.Image.PreviewMaxDim, c.Image.UploadMaxDim)
	}
	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality %d out of range", c.Image.JPEGQuality)
	}
	if c.Translate.CacheCeiling < 1 {
		return fmt.Errorf("translation cache ceiling must be positive")
	}
	for _, raw := range []string{c.Remote.TaggerBase, c.Remote.TranslateURL, c.Offline.UpstreamURL} {
		if raw == "" {
			continue
		}
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("invalid endpoint url %q: %w", raw, err)
		}
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
