package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/alarmd/internal/commands"
	"github.com/sandeepkv93/alarmd/internal/model"
	"github.com/sandeepkv93/alarmd/internal/tui"
	"github.com/sandeepkv93/alarmd/internal/views"
)

func newAddCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "add HH:MM [days] [snooze:N] [max:N] [missions:a,b] [count:N] [sound:name] [vol:N] [label...]",
		Short: "Create an alarm",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := commands.Parse("add " + strings.Join(args, " "))
			if err != nil {
				return err
			}
			svc, closeStore, err := c.openService(cmd.Context(), c.logger)
			if err != nil {
				return err
			}
			defer closeStore()

			a, err := svc.Create(cmd.Context(), parsed.Add.Alarm())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s %s (%s)\n", a.ID, a.Time, a.RepeatDays, a.Label)
			if reg, ok := svc.Status().Next[a.ID]; ok {
				fmt.Fprintf(cmd.OutOrStdout(), "next: %s\n", reg.ScheduledAt.Format("Mon Jan 2 15:04"))
			}
			return nil
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	var markdown bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alarms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStore, err := c.openService(cmd.Context(), c.logger)
			if err != nil {
				return err
			}
			defer closeStore()

			rows := tui.AlarmRows(svc.List(), svc.Status())
			out := cmd.OutOrStdout()
			if markdown {
				fmt.Fprintln(out, views.RenderMarkdown(views.AlarmTableMarkdown(rows)))
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tTIME\tDAYS\tON\tNEXT\tLABEL\tPOLICY")
			for _, r := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.Position, r.ID, r.Time, r.Days, yesNo(r.Active), r.Next, r.Label, r.Flags)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "render as a markdown table")
	return cmd
}

func newRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID|#",
		Aliases: []string{"delete"},
		Short:   "Delete an alarm",
		Args:    exactArgs(1, "rm ID|#"),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStore, err := c.openService(cmd.Context(), c.logger)
			if err != nil {
				return err
			}
			defer closeStore()

			a, err := lookupAlarm(svc.List(), args[0])
			if err != nil {
				return err
			}
			if err := svc.Delete(cmd.Context(), a.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", a.ID, a.Time)
			return nil
		},
	}
}

func newToggleCmd(c *cli) *cobra.Command {
	var on, off bool
	cmd := &cobra.Command{
		Use:   "toggle ID|#",
		Short: "Switch an alarm on or off",
		Args:  exactArgs(1, "toggle ID|# [--on|--off]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStore, err := c.openService(cmd.Context(), c.logger)
			if err != nil {
				return err
			}
			defer closeStore()

			a, err := lookupAlarm(svc.List(), args[0])
			if err != nil {
				return err
			}
			active := !a.IsActive
			switch {
			case on:
				active = true
			case off:
				active = false
			}
			updated, err := svc.SetActive(cmd.Context(), a.ID, active)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is %s\n", updated.ID, updated.Time, onOff(updated.IsActive))
			return nil
		},
	}
	cmd.Flags().BoolVar(&on, "on", false, "switch on")
	cmd.Flags().BoolVar(&off, "off", false, "switch off")
	cmd.MarkFlagsMutuallyExclusive("on", "off")
	return cmd
}

func newNextCmd(c *cli) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "next [ID|#]",
		Short: "Preview upcoming fire times",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStore, err := c.openService(cmd.Context(), c.logger)
			if err != nil {
				return err
			}
			defer closeStore()

			alarms := svc.List()
			if len(args) == 1 {
				a, err := lookupAlarm(alarms, args[0])
				if err != nil {
					return err
				}
				alarms = []model.Alarm{a}
			}
			now := time.Now()
			out := cmd.OutOrStdout()
			for _, a := range alarms {
				if !a.IsActive {
					continue
				}
				fmt.Fprintf(out, "%s %s %s\n", a.ID, a.Time, a.Label)
				for _, at := range model.Preview(a, now, count) {
					fmt.Fprintf(out, "  %s\n", at.Format("Mon Jan 2 15:04"))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 3, "occurrences per alarm")
	return cmd
}

// lookupAlarm accepts a 1-based list position or an exact id.
func lookupAlarm(alarms []model.Alarm, target string) (model.Alarm, error) {
	if n, err := strconv.Atoi(target); err == nil && n >= 1 && n <= len(alarms) {
		return alarms[n-1], nil
	}
	for _, a := range alarms {
		if a.ID == target {
			return a, nil
		}
	}
	return model.Alarm{}, fmt.Errorf("no alarm %q", target)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
