package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/hylla/vitality/internal/adapters/storage/sqlite"
	"github.com/hylla/vitality/internal/app"
	"github.com/hylla/vitality/internal/config"
	"github.com/hylla/vitality/internal/id"
	"github.com/hylla/vitality/internal/platform"
	"github.com/spf13/cobra"
)

// version is stamped at build time.
var version = "dev"

func main() {
	root := newRootCommand(os.Stdout, os.Stderr)
	if err := fang.Execute(context.Background(), root, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// run executes one command line against fresh command state.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// rootOptions holds persistent flag values shared by every subcommand.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	quiet      bool
	actor      string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("VITALITY_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultApp := platform.DefaultAppName
	if envApp := strings.TrimSpace(os.Getenv("VITALITY_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}

	root := &cobra.Command{
		Use:           "vitality",
		Short:         "Organizational hierarchies, activities and points",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	flags.StringVar(&opts.actor, "actor", "", "user id recorded in audit fields")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "silence console logging; the dev log file still records")

	root.AddCommand(
		newPathsCommand(opts),
		newConfigCommand(opts),
		newLevelCommand(opts),
		newGroupCommand(opts),
		newMemberCommand(opts),
		newTemplateCommand(opts),
		newActivityCommand(opts),
		newMilestoneCommand(opts),
		newPointsCommand(opts),
		newExpiryCommand(),
		newExportCommand(opts),
		newImportCommand(opts),
	)
	return root
}

func (o *rootOptions) resolvePaths() (platform.Layout, error) {
	return platform.Resolve(platform.Request{
		AppName:    o.appName,
		DevMode:    o.devMode,
		ConfigPath: o.configPath,
		DBPath:     o.dbPath,
	})
}

// appRuntime is the wired service stack for one command invocation.
type appRuntime struct {
	logger *runtimeLogger
	repo   *sqlite.Repository
	svc    *app.Service
	dbPath string
}

// openRuntime loads config, configures logging, opens sqlite and builds the service.
func (o *rootOptions) openRuntime() (*appRuntime, error) {
	paths, err := o.resolvePaths()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigPath, config.Default(paths.DBPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", paths.ConfigPath, err)
	}
	if paths.DBOverridden {
		cfg.Database.Path = paths.DBPath
	}

	console := o.stderr
	if o.quiet {
		console = io.Discard
	}
	logger, err := newRuntimeLogger(console, o.appName, o.devMode, cfg.Logging, paths.LogDir, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Debug("runtime paths resolved", "config_path", paths.ConfigPath, "data_dir", paths.DataDir, "db_path", paths.DBPath)
	logger.Info("configuration loaded", "config_path", paths.ConfigPath, "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Debug("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")

	svc := app.NewService(repo, id.Generator("vt"), nil, app.ServiceConfig{
		CodePrefix:          cfg.Groups.CodePrefix,
		LongNameSeparator:   cfg.Groups.LongNameSeparator,
		DefaultPoints:       cfg.Activities.DefaultPoints,
		DefaultExpiryPeriod: cfg.Activities.ExpiryPeriod(),
		Logger:              logger.ServiceLogger(),
	})
	return &appRuntime{logger: logger, repo: repo, svc: svc, dbPath: cfg.Database.Path}, nil
}

// Close releases the repository and the dev log sink. Failures after the sink is
// closed reach the console only.
func (r *appRuntime) Close() {
	if closeErr := r.repo.Close(); closeErr != nil {
		r.logger.Warn("sqlite close failed", "db_path", r.dbPath, "err", closeErr)
	}
	if closeErr := r.logger.Close(); closeErr != nil {
		r.logger.Warn("close runtime log sink failed", "err", closeErr)
	}
}

// serviceFunc is the body of a command that needs the application service.
type serviceFunc func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error

// withService wires the runtime around fn and logs the command flow.
func (o *rootOptions) withService(fn serviceFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := o.openRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if actor := strings.TrimSpace(o.actor); actor != "" {
			ctx = app.WithActor(ctx, app.Actor{UserID: actor})
		}
		name := cmd.CommandPath()
		rt.logger.Info("command flow start", "command", name)
		if err := fn(ctx, cmd, rt.svc, args); err != nil {
			rt.logger.Error("command flow failed", "command", name, "err", err)
			return err
		}
		rt.logger.Info("command flow complete", "command", name)
		return nil
	}
}

// parseBoolEnv returns the parsed value and whether the variable held a valid bool.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
