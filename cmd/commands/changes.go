package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yourusername/dashdiff/internal/changes"
	"github.com/yourusername/dashdiff/internal/report"
)

// ErrChangesDetected is returned by --fail-on-change and --fail-on-drift so
// that the process exits non-zero.
var ErrChangesDetected = errors.New("changes detected")

type changesOptions struct {
	original   string
	edited     string
	migrated   string
	saveTime   bool
	saveVars   bool
	saveFresh  bool
	normalized string
	failOn     bool
}

// NewChangesCmd creates the changes command
func NewChangesCmd(root *rootOptions) *cobra.Command {
	opts := &changesOptions{}

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Show what saving an edited dashboard would change",
		Long: `Compare an edited dashboard with the migrated version of what was last
saved. Time range, refresh and variable values are reverted to the saved
ones unless --save-time-range, --save-refresh or --save-variables is set,
so they only show up in the diff when they would be saved.

Snapshots are read from files, from s3://bucket/key or from "-" (stdin).`,
		Example: `  dashdiff changes --original saved.json --edited edited.json
  dashdiff changes --original saved.json --migrated migrated.json --edited - -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChanges(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.original, "original", "", "Dashboard as last saved")
	cmd.Flags().StringVar(&opts.edited, "edited", "", "Dashboard with the user's edits")
	cmd.Flags().StringVar(&opts.migrated, "migrated", "", "Original after schema migration (defaults to --original)")
	cmd.Flags().BoolVar(&opts.saveTime, "save-time-range", false, "Save the edited time range")
	cmd.Flags().BoolVar(&opts.saveVars, "save-variables", false, "Save the edited variable values")
	cmd.Flags().BoolVar(&opts.saveFresh, "save-refresh", false, "Save the edited refresh interval")
	cmd.Flags().StringVar(&opts.normalized, "normalized", "", "Write the normalized edited dashboard to this file")
	cmd.Flags().BoolVar(&opts.failOn, "fail-on-change", false, "Exit non-zero when changes are found")

	_ = cmd.MarkFlagRequired("original")
	_ = cmd.MarkFlagRequired("edited")

	return cmd
}

func runChanges(cmd *cobra.Command, root *rootOptions, opts *changesOptions) error {
	ctx := cmd.Context()
	loader := root.loader(cmd)

	original, err := loader.Dashboard(ctx, opts.original)
	if err != nil {
		return fmt.Errorf("failed to load original dashboard: %w", err)
	}
	edited, err := loader.Dashboard(ctx, opts.edited)
	if err != nil {
		return fmt.Errorf("failed to load edited dashboard: %w", err)
	}

	migrated := original
	if opts.migrated != "" {
		migrated, err = loader.Dashboard(ctx, opts.migrated)
		if err != nil {
			return fmt.Errorf("failed to load migrated dashboard: %w", err)
		}
	}

	result, err := root.detector().Compute(original, edited, migrated, saveOptions(cmd, root, opts))
	if err != nil {
		return fmt.Errorf("failed to compute changes: %w", err)
	}

	if opts.normalized != "" {
		if err := writeDashboardJSON(opts.normalized, result); err != nil {
			return err
		}
	}

	rep, err := report.FromResult(result)
	if err != nil {
		return err
	}
	rep.Source = opts.original
	rep.Target = opts.edited

	if err := root.write(cmd, rep); err != nil {
		return err
	}

	if opts.failOn && result.HasChanges {
		return fmt.Errorf("%w: %d difference(s)", ErrChangesDetected, result.DiffCount)
	}
	return nil
}

// saveOptions starts from the configured save options and applies the flags
// that were set explicitly.
func saveOptions(cmd *cobra.Command, root *rootOptions, opts *changesOptions) changes.Options {
	save := root.cfg.ChangeOptions()
	flags := cmd.Flags()
	if flags.Changed("save-time-range") {
		save.SaveTimeRange = opts.saveTime
	}
	if flags.Changed("save-variables") {
		save.SaveVariables = opts.saveVars
	}
	if flags.Changed("save-refresh") {
		save.SaveRefresh = opts.saveFresh
	}
	return save
}

func writeDashboardJSON(path string, result *changes.Result) error {
	data, err := json.MarshalIndent(result.Edited, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode normalized dashboard: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write normalized dashboard: %w", err)
	}
	return nil
}
