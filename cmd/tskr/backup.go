package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jonocairns/tskr/internal/backup"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage encrypted database snapshots in object storage",
	}
	cmd.AddCommand(backupRunCmd(), backupListCmd(), backupRestoreCmd())
	return cmd
}

// withBackups runs fn with a manager built from the loaded configuration.
func withBackups(cmd *cobra.Command, fn func(*backup.Manager) error) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	m := backup.NewManager(e.cfg.Backup(), e.db, e.logger)
	if !m.Enabled() {
		return backup.ErrDisabled
	}
	return fn(m)
}

func backupRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Take a snapshot now and prune expired ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackups(cmd, func(m *backup.Manager) error {
				obj, err := m.Run(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d bytes)\n", obj.Key, obj.Size)
				return nil
			})
		},
	}
}

func backupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackups(cmd, func(m *backup.Manager) error {
				objects, err := m.List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tSIZE\tCREATED")
				for _, o := range objects {
					fmt.Fprintf(w, "%s\t%d\t%s\n", o.Key, o.Size, o.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}
}

func backupRestoreCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "restore KEY",
		Short: "Download and decrypt a snapshot to a new file",
		Long: `Download the snapshot stored under KEY, decrypt it with
TSKR_BACKUP_PASSPHRASE, verify its integrity, and write it to --out.

The running database is never touched. Stop the server and point
TSKR_DB_PATH at the restored file to switch over.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackups(cmd, func(m *backup.Manager) error {
				if err := m.Restore(cmd.Context(), args[0], out); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %s to %s\n", args[0], out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "tskr-restored.db", "path of the restored database (must not exist)")
	return cmd
}
