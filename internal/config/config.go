package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/vitality/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the TOML runtime configuration.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Logging    LoggingConfig    `toml:"logging"`
	Groups     GroupsConfig     `toml:"groups"`
	Activities ActivitiesConfig `toml:"activities"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds runtime logger settings.
type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the logfmt file sink used in dev mode. An empty Dir
// selects the platform log directory.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// GroupsConfig holds hierarchy defaults.
type GroupsConfig struct {
	CodePrefix        string `toml:"code_prefix"`
	LongNameSeparator string `toml:"long_name_separator"`
}

// ActivitiesConfig holds activity defaults.
type ActivitiesConfig struct {
	DefaultPoints       int    `toml:"default_points"`
	DefaultExpiryPeriod string `toml:"default_expiry_period"`
}

// Default returns the built-in configuration for dbPath.
func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
			},
		},
		Groups: GroupsConfig{
			CodePrefix:        "ugid",
			LongNameSeparator: domain.DefaultLongNameSeparator,
		},
		Activities: ActivitiesConfig{
			DefaultPoints:       domain.DefaultActivityPoints,
			DefaultExpiryPeriod: string(domain.ExpirySixMonths),
		},
	}
}

// Load reads path over defaults. A missing or empty file yields defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if _, err := charmLog.ParseLevel(strings.TrimSpace(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if prefix := strings.TrimSpace(c.Groups.CodePrefix); prefix != "" && !domain.IsValidGroupCode(prefix) {
		return fmt.Errorf("invalid groups.code_prefix: %q", c.Groups.CodePrefix)
	}

	if c.Activities.DefaultPoints < 0 {
		return errors.New("activities.default_points must be >= 0")
	}
	if raw := strings.TrimSpace(c.Activities.DefaultExpiryPeriod); raw != "" {
		period, err := domain.ParseExpiryPeriod(raw)
		if err != nil {
			return fmt.Errorf("invalid activities.default_expiry_period: %q", c.Activities.DefaultExpiryPeriod)
		}
		if period == domain.ExpiryCustom {
			return errors.New("activities.default_expiry_period cannot be custom")
		}
	}

	return nil
}

// ExpiryPeriod returns the parsed default expiry period, empty when unset.
func (c ActivitiesConfig) ExpiryPeriod() domain.ExpiryPeriod {
	period, err := domain.ParseExpiryPeriod(c.DefaultExpiryPeriod)
	if err != nil {
		return ""
	}
	return period
}

// Save writes cfg to path as TOML, creating the parent directory.
func Save(path string, cfg Config) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EnsureConfigDir creates the directory holding path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
