package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/alarmd/internal/app"
	"github.com/sandeepkv93/alarmd/internal/storage"
)

func newPurgeCmd(c *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every stored alarm and reset the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("purge deletes every alarm; pass --yes to confirm")
			}
			store, err := app.OpenStore(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if p, ok := store.(storage.Purger); ok {
				err = p.Purge(cmd.Context())
			} else {
				err = store.SaveAll(cmd.Context(), nil)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s store %s\n", c.cfg.StoreBackend, c.cfg.StorePath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting every alarm")
	return cmd
}
