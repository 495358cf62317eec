package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/alarmd/internal/export"
)

func newExportCmd(c *cli) *cobra.Command {
	var outPath string
	var all bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the alarms as an iCalendar file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStore, err := c.openService(cmd.Context(), c.logger)
			if err != nil {
				return err
			}
			defer closeStore()

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			alarms := svc.List()
			if err := export.WriteICS(w, alarms, export.Options{Now: time.Now(), IncludeInactive: all}); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if outPath != "" && outPath != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d alarm(s) to %s\n", len(alarms), outPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&all, "all", false, "include inactive alarms")
	return cmd
}
