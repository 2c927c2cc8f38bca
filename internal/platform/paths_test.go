package platform

import (
	"path/filepath"
	"testing"
)

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestHostResolve(t *testing.T) {
	tests := []struct {
		name       string
		host       Host
		wantConfig string
		wantData   string
		wantLog    string
	}{
		{
			name: "linux with xdg",
			host: Host{GOOS: "linux", HomeDir: "/home/me", UserConfigDir: "/home/me/.config", Getenv: envOf(map[string]string{
				"XDG_CONFIG_HOME": "/xdg/config",
				"XDG_DATA_HOME":   "/xdg/data",
				"XDG_STATE_HOME":  "/xdg/state",
			})},
			wantConfig: "/xdg/config/vitality/config.toml",
			wantData:   "/xdg/data/vitality",
			wantLog:    "/xdg/state/vitality/log",
		},
		{
			name:       "linux without xdg",
			host:       Host{GOOS: "linux", HomeDir: "/home/me", UserConfigDir: "/ignored"},
			wantConfig: "/home/me/.config/vitality/config.toml",
			wantData:   "/home/me/.local/share/vitality",
			wantLog:    "/home/me/.local/state/vitality/log",
		},
		{
			name: "windows app data",
			host: Host{GOOS: "windows", HomeDir: "/users/me", UserConfigDir: "/fallback", Getenv: envOf(map[string]string{
				"APPDATA":      "/roaming",
				"LOCALAPPDATA": "/local",
			})},
			wantConfig: "/roaming/vitality/config.toml",
			wantData:   "/local/vitality",
			wantLog:    "/local/vitality/log",
		},
		{
			name: "darwin ignores xdg",
			host: Host{GOOS: "darwin", HomeDir: "/Users/me", UserConfigDir: "/Users/me/Library/Application Support", Getenv: envOf(map[string]string{
				"XDG_CONFIG_HOME": "/ignored",
			})},
			wantConfig: "/Users/me/Library/Application Support/vitality/config.toml",
			wantData:   "/Users/me/Library/Application Support/vitality",
			wantLog:    "/Users/me/Library/Application Support/vitality/log",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.host.Resolve(Request{})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.ConfigPath != filepath.FromSlash(tt.wantConfig) {
				t.Fatalf("unexpected config path %q, want %q", got.ConfigPath, tt.wantConfig)
			}
			if got.DataDir != filepath.FromSlash(tt.wantData) {
				t.Fatalf("unexpected data dir %q, want %q", got.DataDir, tt.wantData)
			}
			if want := filepath.Join(got.DataDir, "vitality.db"); got.DBPath != want || got.DBOverridden {
				t.Fatalf("unexpected db path %q (overridden %t), want %q", got.DBPath, got.DBOverridden, want)
			}
			if got.LogDir != filepath.FromSlash(tt.wantLog) {
				t.Fatalf("unexpected log dir %q, want %q", got.LogDir, tt.wantLog)
			}
		})
	}
}

func TestHostResolveOverrides(t *testing.T) {
	host := Host{GOOS: "linux", HomeDir: "/home/me", UserConfigDir: "/home/me/.config", Getenv: envOf(map[string]string{
		EnvConfig: " /env/config.toml ",
		EnvDBPath: "/env/vitality.db",
	})}

	got, err := host.Resolve(Request{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ConfigPath != "/env/config.toml" || got.DBPath != "/env/vitality.db" || !got.DBOverridden {
		t.Fatalf("expected env overrides, got %#v", got)
	}

	got, err = host.Resolve(Request{ConfigPath: "/flag/config.toml", DBPath: "/flag/vitality.db"})
	if err != nil {
		t.Fatalf("Resolve(flags) error = %v", err)
	}
	if got.ConfigPath != "/flag/config.toml" || got.DBPath != "/flag/vitality.db" || !got.DBOverridden {
		t.Fatalf("expected flags to win, got %#v", got)
	}
}

func TestHostResolveDevInstance(t *testing.T) {
	host := Host{GOOS: "darwin", HomeDir: "/Users/me", UserConfigDir: "/support"}
	got, err := host.Resolve(Request{AppName: " team ", DevMode: true})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if filepath.Base(filepath.Dir(got.ConfigPath)) != "team-dev" {
		t.Fatalf("expected dev config dir suffix, got %q", got.ConfigPath)
	}
	if filepath.Base(got.DBPath) != "team-dev.db" {
		t.Fatalf("expected dev db name, got %q", got.DBPath)
	}
	if InstanceName("", false) != DefaultAppName {
		t.Fatalf("InstanceName() = %q, want %q", InstanceName("", false), DefaultAppName)
	}
}

func TestHostResolveRejectsEmptyBase(t *testing.T) {
	if _, err := (Host{GOOS: "linux", UserConfigDir: "/cfg"}).Resolve(Request{}); err == nil {
		t.Fatal("expected error for empty home dir")
	}
	if _, err := (Host{GOOS: "darwin", HomeDir: "/Users/me"}).Resolve(Request{}); err == nil {
		t.Fatal("expected error for empty config dir")
	}
}

func TestResolveSmoke(t *testing.T) {
	got, err := Resolve(Request{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ConfigPath == "" || got.DBPath == "" || got.DataDir == "" || got.LogDir == "" {
		t.Fatalf("expected non-empty paths, got %#v", got)
	}
}
