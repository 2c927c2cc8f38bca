package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultAppName names the config, data and state directories.
const DefaultAppName = "vitality"

// Environment variables that override the resolved locations.
const (
	EnvConfig = "VITALITY_CONFIG"
	EnvDBPath = "VITALITY_DB_PATH"
)

// Layout is where one vitality instance keeps its files.
type Layout struct {
	ConfigPath string
	DataDir    string
	DBPath     string
	LogDir     string
	// DBOverridden reports that DBPath came from a flag or EnvDBPath and must win over config.
	DBOverridden bool
}

// Request selects the instance and carries explicit overrides, usually from flags.
type Request struct {
	AppName    string
	DevMode    bool
	ConfigPath string
	DBPath     string
}

// Host describes the machine paths are resolved on.
type Host struct {
	GOOS          string
	HomeDir       string
	UserConfigDir string
	Getenv        func(string) string
}

// CurrentHost reads the running OS and user directories.
func CurrentHost() (Host, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return Host{}, fmt.Errorf("user config dir: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Host{}, fmt.Errorf("user home dir: %w", err)
	}
	return Host{GOOS: runtime.GOOS, HomeDir: home, UserConfigDir: configDir, Getenv: os.Getenv}, nil
}

// Resolve builds the layout for req on the current host.
func Resolve(req Request) (Layout, error) {
	host, err := CurrentHost()
	if err != nil {
		return Layout{}, err
	}
	return host.Resolve(req)
}

// InstanceName returns the directory name of one instance; dev mode adds a -dev suffix.
func InstanceName(appName string, devMode bool) string {
	name := strings.TrimSpace(appName)
	if name == "" {
		name = DefaultAppName
	}
	if devMode {
		name += "-dev"
	}
	return name
}

// Resolve builds the layout for req. Flags beat environment variables, which beat the
// per-OS defaults. Linux follows XDG and keeps logs under the state home.
func (h Host) Resolve(req Request) (Layout, error) {
	if strings.TrimSpace(h.UserConfigDir) == "" || strings.TrimSpace(h.HomeDir) == "" {
		return Layout{}, errors.New("empty base dirs")
	}
	env := h.env
	name := InstanceName(req.AppName, req.DevMode)

	configRoot, dataRoot, stateRoot := h.UserConfigDir, h.UserConfigDir, ""
	switch h.GOOS {
	case "linux":
		configRoot = firstNonEmpty(env("XDG_CONFIG_HOME"), filepath.Join(h.HomeDir, ".config"))
		dataRoot = firstNonEmpty(env("XDG_DATA_HOME"), filepath.Join(h.HomeDir, ".local", "share"))
		stateRoot = firstNonEmpty(env("XDG_STATE_HOME"), filepath.Join(h.HomeDir, ".local", "state"))
	case "windows":
		configRoot = firstNonEmpty(env("APPDATA"), h.UserConfigDir)
		dataRoot = firstNonEmpty(env("LOCALAPPDATA"), h.UserConfigDir)
	}

	out := Layout{DataDir: filepath.Join(dataRoot, name)}
	out.LogDir = filepath.Join(out.DataDir, "log")
	if stateRoot != "" {
		out.LogDir = filepath.Join(stateRoot, name, "log")
	}
	out.ConfigPath = firstNonEmpty(req.ConfigPath, env(EnvConfig), filepath.Join(configRoot, name, "config.toml"))
	if db := firstNonEmpty(req.DBPath, env(EnvDBPath)); db != "" {
		out.DBPath = db
		out.DBOverridden = true
	} else {
		out.DBPath = filepath.Join(out.DataDir, name+".db")
	}
	return out, nil
}

func (h Host) env(key string) string {
	if h.Getenv == nil {
		return ""
	}
	return strings.TrimSpace(h.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
