package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/alarmd/internal/platform"
)

func newAutostartCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Manage starting alarmd at login",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Start alarmd run --headless at login",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return setAutostart(cmd, c, true)
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Stop starting alarmd at login",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return setAutostart(cmd, c, false)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether alarmd starts at login",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				as, err := newLoginItem(c)
				if err != nil {
					return err
				}
				state := "disabled"
				if as.Enabled() {
					state = "enabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "autostart %s: %s\n", state, strings.Join(as.Command(), " "))
				return nil
			},
		},
	)
	return cmd
}

func setAutostart(cmd *cobra.Command, c *cli, enable bool) error {
	as, err := newLoginItem(c)
	if err != nil {
		return err
	}
	if err := as.Set(enable); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "autostart %s\n", map[bool]string{true: "enabled", false: "disabled"}[enable])
	return nil
}

// newLoginItem registers the headless service with the resolved store so the
// login session uses the same alarms as this shell.
func newLoginItem(c *cli) (*platform.Autostart, error) {
	args := []string{"run", "--headless", "--backend", c.cfg.StoreBackend, "--store", c.cfg.StorePath}
	if c.flags.configPath != "" {
		args = append(args, "--config", c.flags.configPath)
	}
	return platform.NewAutostart(args, c.logger)
}
