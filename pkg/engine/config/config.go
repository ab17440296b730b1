// Package config reads engine-service process configuration from the
// environment, following the teacher's main.go style of os.Getenv/
// os.LookupEnv with hardcoded defaults rather than a config-file or flags
// layer (the teacher never reaches for viper/koanf, so neither does this).
package config

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Config is the engine-service process configuration.
type Config struct {
	// SettingsPath is the file pkg/engine/settings.Store reads and writes.
	SettingsPath string
	// CatalogPath, if non-empty, is an external JSON/YAML catalog file
	// loaded in addition to the compile-time registered runners.
	CatalogPath string
	// MetricsAddr is the bind address for the Prometheus /metrics endpoint.
	// Empty disables the endpoint, mirroring the teacher's DISABLE_METRICS
	// env var.
	MetricsAddr string
	// LogLevel is the logrus level to log at (e.g. logrus.InfoLevel,
	// logrus.DebugLevel).
	LogLevel logrus.Level
	// LogBackend selects the Logger implementation: "logrus" (default) or
	// "slog", mirroring the teacher's gradual logrus-to-slog migration path.
	LogBackend string
	// ModelsPath is the model directory read from ENGINE_MODELS_PATH. No
	// component of the service reads it; enginectl's resolve command takes
	// its own --models-path flag, defaulting from the same variable.
	ModelsPath string
}

// FromEnv reads a Config from the process environment, applying defaults for
// anything unset.
func FromEnv() (Config, error) {
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}

	cfg := Config{
		SettingsPath: getenv("ENGINE_SETTINGS_PATH", filepath.Join(userHomeDir, ".edgerunner", "settings.json")),
		CatalogPath:  os.Getenv("ENGINE_CATALOG_PATH"),
		MetricsAddr:  getenv("ENGINE_METRICS_ADDR", ":9090"),
		ModelsPath:   getenv("ENGINE_MODELS_PATH", filepath.Join(userHomeDir, ".edgerunner", "models")),
		LogBackend:   getenv("ENGINE_LOG_BACKEND", "logrus"),
	}

	if _, disabled := os.LookupEnv("ENGINE_DISABLE_METRICS"); disabled {
		cfg.MetricsAddr = ""
	}

	level := logrus.InfoLevel
	if s := os.Getenv("ENGINE_LOG_LEVEL"); s != "" {
		parsed, err := logrus.ParseLevel(s)
		if err != nil {
			return Config{}, err
		}
		level = parsed
	}
	cfg.LogLevel = level

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
