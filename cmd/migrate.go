package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/grovetools/tabwatt/cli"
	"github.com/grovetools/tabwatt/logging"
	"github.com/grovetools/tabwatt/pkg/daemon"
	"github.com/grovetools/tabwatt/pkg/models"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/spf13/cobra"
)

// NewMigrateCmd manages the legacy-score migration and its backups.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate legacy energy scores to watts and manage backups",
	}
	cmd.AddCommand(newMigrateRunCmd())
	cmd.AddCommand(newMigrateStatusCmd())
	cmd.AddCommand(newMigrateRestoreCmd())
	cmd.AddCommand(newMigrateCleanupCmd())
	return cmd
}

func newMigrateRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Convert legacy history entries, after taking a backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c daemon.Client) error {
				res, err := daemon.Call[models.MigrationResult](ctx, c, protocol.MigrateLegacyData{})
				if err != nil {
					return err
				}
				if cli.GetOptions(cmd).JSONOutput {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				p := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
				switch {
				case res.Skipped:
					p.Success("Nothing to migrate")
				case res.Success:
					p.Success(fmt.Sprintf("Migrated %d entries", res.Stats.MigratedCount))
				default:
					p.Error("Migration failed", fmt.Errorf("%s", res.Error))
				}
				p.Field("Already migrated", res.Stats.AlreadyMigratedCount)
				p.Field("Failed", res.Stats.FailedCount)
				if res.BackupKey != "" {
					p.Field("Backup", res.BackupKey)
				}
				return nil
			})
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the migration marker and the available backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c daemon.Client) error {
				st, err := daemon.Call[models.MigrationStatus](ctx, c, protocol.GetMigrationStatus{})
				if err != nil {
					return err
				}
				if cli.GetOptions(cmd).JSONOutput {
					return writeJSON(cmd.OutOrStdout(), st)
				}
				renderMigrationStatus(cmd, st, time.Now())
				return nil
			})
		},
	}
}

func renderMigrationStatus(cmd *cobra.Command, st models.MigrationStatus, now time.Time) {
	out := cmd.OutOrStdout()
	p := logging.NewPrettyLogger().WithWriter(out)
	p.Field("Schema version", st.CurrentVersion)
	p.Field("Needs migration", st.NeedsMigration)
	p.Field("Legacy entries", st.LegacyEntries)
	if st.Marker != nil {
		p.Field("Last attempt", humanize.RelTime(st.Marker.LastAttempt, now, "ago", "from now"))
		if st.Marker.LastError != "" {
			p.Field("Last error", st.Marker.LastError)
		}
	}
	if st.NextAttemptFrom != nil {
		p.Field("Next attempt", humanize.RelTime(*st.NextAttemptFrom, now, "ago", "from now"))
	}
	if len(st.Backups) == 0 {
		return
	}

	t := newTable("BACKUP", "CREATED", "SIZE", "KEYS")
	for _, b := range st.Backups {
		t.Row(b.Key, humanize.RelTime(b.CreatedAt, now, "ago", "from now"),
			humanize.Bytes(uint64(b.Size)), fmt.Sprint(len(b.Keys)))
	}
	fmt.Fprintln(out, t.Render())
}

func newMigrateRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-key>",
		Short: "Restore history and settings from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c daemon.Client) error {
				resp, err := c.Request(ctx, protocol.RestoreFromBackup{BackupKey: args[0]})
				if err != nil {
					return err
				}
				if err := resp.Err(); err != nil {
					return err
				}
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Restored " + args[0])
				return nil
			})
		},
	}
}

func newMigrateCleanupCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete all but the newest backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}
			return withClient(cmd, func(ctx context.Context, c daemon.Client) error {
				res, err := daemon.Call[protocol.CleanupResult](ctx, c, protocol.CleanupOldBackups{KeepCount: keep})
				if err != nil {
					return err
				}
				if cli.GetOptions(cmd).JSONOutput {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				p := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
				p.Success(fmt.Sprintf("Removed %d backups, kept %d", len(res.Removed), res.Kept))
				for _, key := range res.Removed {
					p.Field("Removed", key)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "Backups to keep (0 uses history.backup_keep)")
	return cmd
}
