package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/alarmd/internal/app"
	"github.com/sandeepkv93/alarmd/internal/tui"
)

func newRunCmd(c *cli) *cobra.Command {
	var headless bool
	var logPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the alarm service with the terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if headless {
				return runHeadless(ctx, c)
			}
			if logPath == "" {
				logPath = filepath.Join(filepath.Dir(c.cfg.StorePath), "alarmd.log")
			}
			return runInteractive(ctx, c, logPath)
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "run without the terminal UI")
	cmd.Flags().StringVar(&logPath, "log-file", "", "log destination while the UI owns the terminal")
	return cmd
}

func runHeadless(ctx context.Context, c *cli) error {
	svc, closeStore, err := c.openService(ctx, c.logger)
	if err != nil {
		return err
	}
	defer closeStore()
	return svc.Run(ctx)
}

func runInteractive(ctx context.Context, c *cli, logPath string) error {
	f, err := logFile(logPath)
	if err != nil {
		return err
	}
	defer f.Close()
	logger := app.NewLogger(f, c.cfg.LogLevel)

	svc, closeStore, err := c.openService(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	program := tea.NewProgram(tui.NewModel(ctx, svc), tea.WithAltScreen(), tea.WithContext(ctx))
	_, uiErr := program.Run()
	if errors.Is(uiErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		uiErr = nil
	}
	cancel()
	return errors.Join(uiErr, <-runErr)
}
