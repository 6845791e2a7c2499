package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrmdev/linkloom/internal/api"
	"github.com/jrmdev/linkloom/internal/bookmarks"
	"github.com/jrmdev/linkloom/internal/config"
	"github.com/jrmdev/linkloom/internal/sync"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagServerURL  string
	flagAPIToken   string
	flagDataDir    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "linkloom",
		Short:   "LinkLoom bookmark sync client",
		Long:    "Keeps a local bookmark tree synchronized with a LinkLoom server.",
		Version: version,
		// Silence Cobra's default error/usage printing; main() handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "LinkLoom server base URL")
	cmd.PersistentFlags().StringVar(&flagAPIToken, "token", "", "API token")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "database directory")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newFirstSyncCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newRmCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig() error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		ServerURL:  flagServerURL,
		APIToken:   flagAPIToken,
		DataDir:    flagDataDir,
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if resolvedCfg != nil && resolvedCfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// app bundles the wired components a command needs. Close releases the
// databases.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *sync.StateStore
	tree   *bookmarks.SQLiteTree
	engine *sync.Engine
}

// newApp opens the databases, seeds durable settings from config, and wires
// the engine. Every command that touches sync state goes through here.
func newApp(ctx context.Context) (*app, error) {
	logger := buildLogger()
	dataDir := resolvedCfg.Sync.DataDir

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	store, err := sync.NewStateStore(ctx, config.StateDBPath(dataDir), logger)
	if err != nil {
		return nil, err
	}

	tree, err := bookmarks.NewSQLiteTree(ctx, config.TreeDBPath(dataDir), logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	settings, err := seedSettings(ctx, store, resolvedCfg)
	if err != nil {
		store.Close()
		tree.Close()

		return nil, err
	}

	httpClient := &http.Client{
		Timeout: time.Duration(resolvedCfg.Network.TimeoutSeconds) * time.Second,
	}
	remote := api.NewClient(settings.ServerURL, settings.APIToken, httpClient, logger)

	engine := sync.NewEngine(store, tree, remote, logger)
	engine.SetPullLimit(resolvedCfg.Sync.PullLimit)

	return &app{
		cfg:    resolvedCfg,
		logger: logger,
		store:  store,
		tree:   tree,
		engine: engine,
	}, nil
}

func (a *app) Close() {
	a.tree.Close()
	a.store.Close()
}

// seedSettings overlays config-file server values onto the durable settings
// and persists any change. The state database stays authoritative for values
// the config file does not provide.
func seedSettings(ctx context.Context, store *sync.StateStore, cfg *config.Config) (sync.Settings, error) {
	settings, err := store.Settings(ctx)
	if err != nil {
		return sync.Settings{}, err
	}

	changed := false

	if cfg.Server.URL != "" && cfg.Server.URL != settings.ServerURL {
		settings.ServerURL = cfg.Server.URL
		changed = true
	}

	if cfg.Server.APIToken != "" && cfg.Server.APIToken != settings.APIToken {
		settings.APIToken = cfg.Server.APIToken
		changed = true
	}

	if cfg.Sync.PollIntervalMinutes > 0 && settings.PollIntervalMinutes != cfg.Sync.PollIntervalMinutes {
		settings.PollIntervalMinutes = cfg.Sync.PollIntervalMinutes
		changed = true
	}

	if changed {
		if err := store.SaveSettings(ctx, settings); err != nil {
			return sync.Settings{}, err
		}
	}

	return settings, nil
}
