package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached shops",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "warm [shop-id...]",
		Short: "Write shops in the logical expiry form (defaults to cache.hot_shops)",
		RunE: func(cmd *cobra.Command, args []string) error {
			infra, err := c.connect(cmd)
			if err != nil {
				return err
			}
			ids := infra.Config.Cache.HotShops
			if len(args) > 0 {
				ids = make([]int64, 0, len(args))
				for _, a := range args {
					id, err := parseID(a)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("no shop ids given and cache.hot_shops is empty")
			}

			shops, client, err := infra.ShopService()
			if err != nil {
				return err
			}
			defer client.Wait()
			if err := shops.Warm(cmd.Context(), ids); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "warmed %d shops\n", len(ids))
			return err
		},
	})
	return cmd
}
