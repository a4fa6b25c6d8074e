// Package config loads drishti runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Default runtime configuration.
const (
	DefaultAddr         = ":8080"
	DefaultCameraID     = 0
	DefaultScreenWidth  = 1920
	DefaultScreenHeight = 1080
	DefaultSchema       = "geometric"
	DefaultLambda       = 1.0
	DefaultLogLevel     = "info"
)

// Config holds process-wide settings.
type Config struct {
	Addr         string
	DataDir      string
	WebDir       string
	PluginDir    string
	CameraID     int
	ScreenWidth  int
	ScreenHeight int
	Schema       string  // feature schema name, see features.SchemaByName
	Lambda       float64 // ridge penalty for calibration fits
	LogLevel     string
	Tray         bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	dataDir := ".drishti"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".drishti")
	}
	return Config{
		Addr:         DefaultAddr,
		DataDir:      dataDir,
		PluginDir:    filepath.Join(dataDir, "plugins"),
		CameraID:     DefaultCameraID,
		ScreenWidth:  DefaultScreenWidth,
		ScreenHeight: DefaultScreenHeight,
		Schema:       DefaultSchema,
		Lambda:       DefaultLambda,
		LogLevel:     DefaultLogLevel,
	}
}

// Load reads an optional .env file and then builds the configuration from
// DRISHTI_* environment variables.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv overlays DRISHTI_* environment variables on DefaultConfig.
func FromEnv() Config {
	cfg := DefaultConfig()
	cfg.Addr = getEnv("DRISHTI_ADDR", cfg.Addr)
	cfg.DataDir = getEnv("DRISHTI_DATA_DIR", cfg.DataDir)
	cfg.WebDir = getEnv("DRISHTI_WEB_DIR", cfg.WebDir)
	cfg.PluginDir = getEnv("DRISHTI_PLUGIN_DIR", filepath.Join(cfg.DataDir, "plugins"))
	cfg.CameraID = getEnvInt("DRISHTI_CAMERA_ID", cfg.CameraID)
	cfg.ScreenWidth = getEnvInt("DRISHTI_SCREEN_WIDTH", cfg.ScreenWidth)
	cfg.ScreenHeight = getEnvInt("DRISHTI_SCREEN_HEIGHT", cfg.ScreenHeight)
	cfg.Schema = getEnv("DRISHTI_SCHEMA", cfg.Schema)
	cfg.Lambda = getEnvFloat("DRISHTI_LAMBDA", cfg.Lambda)
	cfg.LogLevel = getEnv("DRISHTI_LOG_LEVEL", cfg.LogLevel)
	cfg.Tray = getEnvBool("DRISHTI_TRAY", cfg.Tray)
	return cfg
}

// Validate reports configuration values that cannot be used.
func (c Config) Validate() error {
	if c.ScreenWidth <= 0 || c.ScreenHeight <= 0 {
		return fmt.Errorf("invalid screen size %dx%d", c.ScreenWidth, c.ScreenHeight)
	}
	if c.Lambda < 0 {
		return fmt.Errorf("lambda must be non-negative, got %g", c.Lambda)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	return nil
}

// DBPath returns the SQLite database location inside DataDir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "drishti.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
