package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Grading    GradingConfig    `yaml:"grading"`
	Assessment AssessmentConfig `yaml:"assessment"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

type SandboxConfig struct {
	// Images maps a build-tool kind to the container image its long-lived
	// sandbox runs.
	Images        map[string]string `yaml:"images"`
	ExecTimeout   time.Duration     `yaml:"exec_timeout"`
	StuckWindow   time.Duration     `yaml:"stuck_window"`
	WorkspaceRoot string            `yaml:"workspace_root"`
}

type GradingConfig struct {
	// DefaultTool is the build-tool kind used when a request omits one or
	// names a kind the registry doesn't know.
	DefaultTool string `yaml:"default_tool"`
}

type AssessmentConfig struct {
	// GraceWindow is added to an assignment's time limit when sizing the
	// attempt store TTL, so finished attempts stay queryable for a while.
	GraceWindow time.Duration `yaml:"grace_window"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    200 * time.Second, // > exec_timeout + copy overhead
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  4 << 20, // 4MB of submitted source
		},
		Sandbox: SandboxConfig{
			Images: map[string]string{
				"gradle": "docker.io/library/gradle:8.7-jdk17",
				"maven":  "docker.io/library/maven:3.9-eclipse-temurin-17",
			},
			ExecTimeout:   180 * time.Second,
			StuckWindow:   60 * time.Second,
			WorkspaceRoot: "/workspace",
		},
		Grading: GradingConfig{
			DefaultTool: "gradle",
		},
		Assessment: AssessmentConfig{
			GraceWindow: 10 * time.Minute,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Sandbox.ExecTimeout <= 0 {
		return fmt.Errorf("sandbox.exec_timeout must be positive")
	}
	if c.Sandbox.StuckWindow <= 0 {
		return fmt.Errorf("sandbox.stuck_window must be positive")
	}
	if c.Sandbox.StuckWindow > c.Sandbox.ExecTimeout {
		return fmt.Errorf("sandbox.stuck_window (%s) must be <= exec_timeout (%s)",
			c.Sandbox.StuckWindow, c.Sandbox.ExecTimeout)
	}
	if len(c.Sandbox.Images) == 0 {
		return fmt.Errorf("sandbox.images must configure at least one build-tool kind")
	}
	if !strings.HasPrefix(c.Sandbox.WorkspaceRoot, "/") {
		return fmt.Errorf("sandbox.workspace_root must be an absolute container path")
	}
	if c.Grading.DefaultTool == "" {
		return fmt.Errorf("grading.default_tool is required")
	}
	if _, ok := c.Sandbox.Images[c.Grading.DefaultTool]; !ok {
		return fmt.Errorf("grading.default_tool %q has no sandbox.images entry", c.Grading.DefaultTool)
	}
	if c.Assessment.GraceWindow < 0 {
		return fmt.Errorf("assessment.grace_window must not be negative")
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable, connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
