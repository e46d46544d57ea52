package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"finpulse/internal/backup"
	"finpulse/internal/log"
	"finpulse/internal/seed"
	"finpulse/internal/storage"
)

var errImportNotConfirmed = errors.New("import replaces all existing data; rerun with --force to continue")

func newSeedCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the default categories, account and settings where missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := seed.EnsureDefaults(ctx, app.res.Store); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, kind := range storage.Kinds {
				n, err := app.res.Store.Count(ctx, kind)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\n", kind, n)
			}
			return tw.Flush()
		},
	}
}

func newBackupCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore a full JSON snapshot",
	}

	var file string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write every record to a backup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := backup.NewService(app.res.Store)
			snap, err := svc.Export(cmd.Context())
			if err != nil {
				return err
			}
			path := file
			if path == "" {
				path = filepath.Join(app.backupDir, backup.FileName(snap.ExportedAt))
			}
			if err := backup.WriteFile(path, snap); err != nil {
				return err
			}
			app.logger.Info("Backup written", log.FieldPath, path, "records", snap.Records())
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", snap.Records(), path)
			return nil
		},
	}
	export.Flags().StringVarP(&file, "file", "f", "", "Output file (default: BACKUP_DIR/finpulse-backup-<time>.json)")

	var force bool
	restore := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace all data with the contents of a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errImportNotConfirmed
			}
			snap, err := backup.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := backup.NewService(app.res.Store).Import(cmd.Context(), snap); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from %s\n", snap.Records(), args[0])
			return nil
		},
	}
	restore.Flags().BoolVar(&force, "force", false, "Confirm that existing data will be replaced")

	cmd.AddCommand(export, restore)
	return cmd
}
