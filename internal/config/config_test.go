package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hylla/vitality/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/vitality.db")
	if cfg.Database.Path != "/tmp/vitality.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "info" || !cfg.Logging.DevFile.Enabled {
		t.Fatalf("unexpected logging defaults %#v", cfg.Logging)
	}
	if cfg.Groups.CodePrefix != "ugid" || cfg.Groups.LongNameSeparator != domain.DefaultLongNameSeparator {
		t.Fatalf("unexpected group defaults %#v", cfg.Groups)
	}
	if cfg.Activities.ExpiryPeriod() != domain.ExpirySixMonths {
		t.Fatalf("unexpected default expiry period %q", cfg.Activities.DefaultExpiryPeriod)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/vitality.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
path = "/custom/vitality.db"

[logging]
level = "debug"

[logging.dev_file]
enabled = false

[groups]
code_prefix = "org"
long_name_separator = " > "

[activities]
default_points = 3
default_expiry_period = "1y"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/vitality.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.DevFile.Enabled {
		t.Fatalf("unexpected logging override %#v", cfg.Logging)
	}
	if cfg.Logging.DevFile.Dir != "" {
		t.Fatalf("expected untouched dev file dir to stay empty, got %q", cfg.Logging.DevFile.Dir)
	}
	if cfg.Groups.CodePrefix != "org" || cfg.Groups.LongNameSeparator != " > " {
		t.Fatalf("unexpected groups override %#v", cfg.Groups)
	}
	if cfg.Activities.DefaultPoints != 3 || cfg.Activities.ExpiryPeriod() != domain.ExpiryOneYear {
		t.Fatalf("unexpected activities override %#v", cfg.Activities)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"level":   "[logging]\nlevel = \"loud\"\n",
		"prefix":  "[groups]\ncode_prefix = \"has space\"\n",
		"points":  "[activities]\ndefault_points = -1\n",
		"period":  "[activities]\ndefault_expiry_period = \"fortnight\"\n",
		"custom":  "[activities]\ndefault_expiry_period = \"custom\"\n",
		"db path": "[database]\npath = \"  \"\n",
	}
	for name, content := range cases {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if _, err := Load(path, Default("/tmp/default.db")); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default("/tmp/saved.db")
	cfg.Activities.DefaultPoints = 7
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path, Default("/tmp/other.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Database.Path != "/tmp/saved.db" || loaded.Activities.DefaultPoints != 7 {
		t.Fatalf("unexpected loaded config %#v", loaded)
	}

	bad := Default("")
	if err := Save(filepath.Join(t.TempDir(), "config.toml"), bad); err == nil {
		t.Fatal("expected Save() to reject an invalid config")
	}
}

func TestEnsureConfigDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "config.toml")
	if err := EnsureConfigDir(target); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		t.Fatalf("expected dir to exist, stat error %v", err)
	}
}
