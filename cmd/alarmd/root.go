package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/alarmd/internal/app"
	"github.com/sandeepkv93/alarmd/internal/audio"
	"github.com/sandeepkv93/alarmd/internal/platform"
	"github.com/sandeepkv93/alarmd/internal/trigger"
)

type globalFlags struct {
	configPath string
	backend    string
	storePath  string
	logLevel   string
}

// cli carries what every subcommand needs once flags are resolved.
type cli struct {
	flags  globalFlags
	cfg    app.RuntimeConfig
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "alarmd",
		Short:         "Alarm clock daemon with snooze budgets and wake-up missions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.resolve(cmd.ErrOrStderr())
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configPath, "config", "", "YAML config file")
	pf.StringVar(&c.flags.backend, "backend", "", "store backend: sqlite, json or badger")
	pf.StringVar(&c.flags.storePath, "store", "", "store location")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newRunCmd(c),
		newAddCmd(c),
		newListCmd(c),
		newRemoveCmd(c),
		newToggleCmd(c),
		newNextCmd(c),
		newExportCmd(c),
		newAutostartCmd(c),
		newPurgeCmd(c),
	)
	return root
}

// resolve layers defaults, the config file, ALARMD_* variables and flags.
func (c *cli) resolve(logOut io.Writer) error {
	cfg := app.DefaultRuntimeConfig()
	if c.flags.configPath != "" {
		var err error
		if cfg, err = app.RuntimeConfigFromFile(cfg, c.flags.configPath); err != nil {
			return err
		}
	}
	cfg = app.RuntimeConfigFromEnv(cfg)
	if c.flags.backend != "" {
		cfg.StoreBackend = strings.ToLower(c.flags.backend)
	}
	if c.flags.storePath != "" {
		cfg.StorePath = c.flags.storePath
	}
	if c.flags.logLevel != "" {
		cfg.LogLevel = c.flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = app.NewLogger(logOut, cfg.LogLevel)
	return nil
}

// openService opens the configured store and loads the alarm set. The
// returned close func releases the store.
func (c *cli) openService(ctx context.Context, logger *slog.Logger) (*app.Service, func(), error) {
	store, err := app.OpenStore(c.cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	var notifier platform.Notifier = platform.NoopNotifier{}
	if c.cfg.DesktopNotifications {
		notifier = platform.NewExecNotifier()
	}
	svc, err := app.NewService(app.Options{
		Config:    c.cfg,
		Store:     store,
		Audio:     audio.NewPlayer(c.cfg.SoundDir, logger),
		Gate:      trigger.NewBoard(trigger.BoardConfig{}),
		Notifier:  notifier,
		WatchPath: app.WatchPath(c.cfg),
		Logger:    logger,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	if err := svc.Load(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing store failed", "error", err)
		}
	}
	return svc, closeFn, nil
}

func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("usage: alarmd %s", usage)
		}
		return nil
	}
}

func logFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
