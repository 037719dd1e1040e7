package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newQueueCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and recover the order stream",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "pending",
			Short: "Show unacknowledged entries per consumer",
			RunE: func(cmd *cobra.Command, args []string) error {
				infra, err := c.connect(cmd)
				if err != nil {
					return err
				}
				if infra.Stream == nil {
					return fmt.Errorf("queue.backend is %q, pending entries only exist on the stream", infra.Config.Queue.Backend)
				}
				total, perConsumer, err := infra.Stream.PendingSummary(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "pending: %d\n", total)
				consumers := make([]string, 0, len(perConsumer))
				for name := range perConsumer {
					consumers = append(consumers, name)
				}
				sort.Strings(consumers)
				for _, name := range consumers {
					fmt.Fprintf(out, "  %s: %d\n", name, perConsumer[name])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Process pending entries once as the configured worker consumer",
			RunE: func(cmd *cobra.Command, args []string) error {
				infra, err := c.connect(cmd)
				if err != nil {
					return err
				}
				if infra.Stream == nil {
					return fmt.Errorf("queue.backend is %q, nothing to sweep", infra.Config.Queue.Backend)
				}
				if err := infra.Processor().Sweep(cmd.Context()); err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "sweep complete")
				return err
			},
		},
	)
	return cmd
}
