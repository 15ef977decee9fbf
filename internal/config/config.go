// Package config provides centralized configuration management.
// Defaults live here; environment variables override them, and an optional
// YAML world file describes the grid, its tiles and the starting bodies.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	CORSOrigins     []string // nil means the router's localhost defaults
	RateLimitRPS    float64
	RateLimitBurst  int
	ShutdownTimeout time.Duration
	AdminToken      string // Bearer token for mutating routes; empty leaves them open
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:            3000,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		ShutdownTimeout: 5 * time.Second,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if origins := getEnvList("CORS_ORIGINS"); origins != nil {
		cfg.CORSOrigins = origins
	}
	if rps := getEnvFloat("RATE_LIMIT_RPS", 0); rps > 0 {
		cfg.RateLimitRPS = rps
	}
	if b := getEnvInt("RATE_LIMIT_BURST", 0); b > 0 {
		cfg.RateLimitBurst = b
	}
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	return cfg
}

// =============================================================================
// DEBUG SERVER CONFIGURATION
// =============================================================================

// DebugConfig controls the pprof/metrics listener.
type DebugConfig struct {
	Enabled       bool
	ListenAddr    string
	BasicAuthUser string
	BasicAuthPass string
}

// DefaultDebug binds to localhost only.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// DebugFromEnv returns debug configuration with environment variable overrides.
func DebugFromEnv() DebugConfig {
	cfg := DefaultDebug()

	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.Enabled = false
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.BasicAuthUser = os.Getenv("DEBUG_USER")
	cfg.BasicAuthPass = os.Getenv("DEBUG_PASS")

	return cfg
}

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig holds simulation settings.
type WorldConfig struct {
	TickRate     int    // Steps per second
	MaxBodies    int    // Hard cap on bodies
	EventLogPath string // Empty disables the JSONL event log
	WorldFile    string // Optional YAML world description

	// Used when no world file is given
	GridWidth  int
	GridHeight int
	CellSize   float64
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		TickRate:     30,
		MaxBodies:    1024,
		EventLogPath: "events.jsonl",
		GridWidth:    32,
		GridHeight:   18,
		CellSize:     32,
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	if tr := getEnvInt("TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	if mb := getEnvInt("MAX_BODIES", 0); mb > 0 {
		cfg.MaxBodies = mb
	}
	if v, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		cfg.EventLogPath = v
	}
	cfg.WorldFile = os.Getenv("WORLD_FILE")
	if w := getEnvInt("GRID_WIDTH", 0); w > 0 {
		cfg.GridWidth = w
	}
	if h := getEnvInt("GRID_HEIGHT", 0); h > 0 {
		cfg.GridHeight = h
	}
	if cs := getEnvFloat("CELL_SIZE", 0); cs > 0 {
		cfg.CellSize = cs
	}

	return cfg
}

// =============================================================================
// LOGGING CONFIGURATION
// =============================================================================

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string
	Format string
}

// LogFromEnv reads LOG_LEVEL and LOG_FORMAT.
func LogFromEnv() LogConfig {
	return LogConfig{
		Level:  getEnvWithDefault("LOG_LEVEL", "info"),
		Format: getEnvWithDefault("LOG_FORMAT", "json"),
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server ServerConfig
	Debug  DebugConfig
	World  WorldConfig
	Log    LogConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server: ServerFromEnv(),
		Debug:  DebugFromEnv(),
		World:  WorldFromEnv(),
		Log:    LogFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvWithDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
