// Package config provides configuration management for the CueDeck agent.
// Configuration is loaded from environment variables (optionally seeded from a
// .env file in the working directory) with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort             = 8787
	DefaultLogLevel         = "info"
	DefaultDataDir          = ".cuedeck"
	DefaultFFplay           = "ffplay"
	DefaultFFprobe          = "ffprobe"
	DefaultFreesoundBaseURL = "https://freesound.org/apiv2"

	// Environment variable names
	EnvPort         = "CUEDECK_PORT"
	EnvLogLevel     = "CUEDECK_LOG_LEVEL"
	EnvLogFile      = "CUEDECK_LOG_FILE"
	EnvDataDir      = "CUEDECK_DATA_DIR"
	EnvHeadless     = "CUEDECK_HEADLESS"
	EnvProduction   = "CUEDECK_PRODUCTION"
	EnvScanMaxDepth = "CUEDECK_SCAN_MAX_DEPTH"
	EnvFFplay       = "CUEDECK_FFPLAY"
	EnvFFprobe      = "CUEDECK_FFPROBE"
	EnvAutoplay     = "CUEDECK_AUTOPLAY"

	// Freesound environment variable names
	EnvFreesoundAPIKey  = "FREESOUND_API_KEY"
	EnvFreesoundBaseURL = "FREESOUND_BASE_URL"

	// Database filename
	DBFilename = "cuedeck.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFile() string
	DataDir() string
	DBPath() string
	Headless() bool
	ProductionPath() string
	ScanMaxDepth() int
	FFplayPath() string
	FFprobePath() string
	Autoplay() bool
	FreesoundAPIKey() string
	FreesoundBaseURL() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port         int
	logLevel     string
	logFile      string
	dataDir      string
	headless     bool
	production   string
	scanMaxDepth int
	ffplay       string
	ffprobe      string
	autoplay     bool

	freesoundAPIKey  string
	freesoundBaseURL string
}

// New creates a new EnvConfig with defaults and environment variable overrides.
// A .env file in the working directory is loaded first; it never overrides
// variables that are already set.
func New() (*EnvConfig, error) {
	_ = godotenv.Load()

	cfg := &EnvConfig{
		port:             DefaultPort,
		logLevel:         DefaultLogLevel,
		dataDir:          defaultDataDir(),
		ffplay:           DefaultFFplay,
		ffprobe:          DefaultFFprobe,
		autoplay:         true,
		freesoundBaseURL: DefaultFreesoundBaseURL,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}
	cfg.logFile = os.Getenv(EnvLogFile)

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	cfg.production = os.Getenv(EnvProduction)

	if d := os.Getenv(EnvScanMaxDepth); d != "" {
		depth, err := strconv.Atoi(d)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvScanMaxDepth, err)
		}
		if depth < 0 {
			return nil, fmt.Errorf("invalid %s: depth must not be negative", EnvScanMaxDepth)
		}
		cfg.scanMaxDepth = depth
	}

	if p := os.Getenv(EnvFFplay); p != "" {
		cfg.ffplay = p
	}
	if p := os.Getenv(EnvFFprobe); p != "" {
		cfg.ffprobe = p
	}

	if a := os.Getenv(EnvAutoplay); a != "" {
		autoplay, err := strconv.ParseBool(a)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvAutoplay, err)
		}
		cfg.autoplay = autoplay
	}

	cfg.freesoundAPIKey = os.Getenv(EnvFreesoundAPIKey)
	if u := os.Getenv(EnvFreesoundBaseURL); u != "" {
		cfg.freesoundBaseURL = strings.TrimRight(u, "/")
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFile returns the rotating log file path, or empty for stdout only
func (c *EnvConfig) LogFile() string {
	return c.logFile
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

// ProductionPath returns the production script path. Empty selects the
// embedded sample production.
func (c *EnvConfig) ProductionPath() string {
	return c.production
}

// ScanMaxDepth returns the directory scan depth cap; 0 means unlimited.
func (c *EnvConfig) ScanMaxDepth() int {
	return c.scanMaxDepth
}

func (c *EnvConfig) FFplayPath() string {
	return c.ffplay
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobe
}

// Autoplay reports whether a freshly loaded track starts playing immediately.
func (c *EnvConfig) Autoplay() bool {
	return c.autoplay
}

func (c *EnvConfig) FreesoundAPIKey() string {
	return c.freesoundAPIKey
}

func (c *EnvConfig) FreesoundBaseURL() string {
	return c.freesoundBaseURL
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
