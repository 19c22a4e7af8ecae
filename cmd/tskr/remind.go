package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonocairns/tskr/internal/server"
)

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Run a single reminder pass and exit",
		Long: `Evaluate every reminder type once and deliver the ones that are due.

Useful from cron when the long-running scheduler is disabled
(TSKR_REMINDERS_ENABLED=false). Deliveries share the send lock with
running schedulers, so a member never gets the same reminder twice a day.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if !e.cfg.PushEnabled() {
				return fmt.Errorf("push is not configured: set TSKR_VAPID_PUBLIC_KEY and TSKR_VAPID_PRIVATE_KEY")
			}

			srv := server.New(e.db, e.cfg, e.logger)
			res := srv.Scheduler().RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "pass %s: eligible=%d sent=%d failed=%d\n", res.ID, res.Eligible, res.Sent, res.Failed)
			return nil
		},
	}
}
