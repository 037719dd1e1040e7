package main

import (
	"context"

	"github.com/spf13/cobra"

	"flash-sale/internal/app"
)

type opener func(ctx context.Context, logLevel string) (*app.Infra, error)

// cli carries the infrastructure opened by the root command to subcommands.
type cli struct {
	open     opener
	logLevel string
	infra    *app.Infra
}

// newRootCommand returns the command tree and a function closing whatever
// the invoked subcommand connected to.
func newRootCommand(open opener) (*cobra.Command, func() error) {
	c := &cli{open: open}
	cmd := &cobra.Command{
		Use:           "seckillctl",
		Short:         "Operate the flash-sale coordination store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(newVoucherCommand(c), newCacheCommand(c), newQueueCommand(c))
	return cmd, c.close
}

func (c *cli) close() error {
	if c.infra == nil {
		return nil
	}
	err := c.infra.Close()
	c.infra = nil
	return err
}

// connect opens the infrastructure once per invocation.
func (c *cli) connect(cmd *cobra.Command) (*app.Infra, error) {
	if c.infra != nil {
		return c.infra, nil
	}
	infra, err := c.open(cmd.Context(), c.logLevel)
	if err != nil {
		return nil, err
	}
	c.infra = infra
	return infra, nil
}
