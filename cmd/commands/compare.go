package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourusername/dashdiff/internal/dashboard"
	"github.com/yourusername/dashdiff/internal/report"
)

// NewCompareCmd creates the compare command
func NewCompareCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compare BASE TARGET",
		Short: "Compare two saved versions of a dashboard",
		Long: `Compare two saved versions of a dashboard. Nothing is reverted: every
difference between BASE and TARGET is listed, grouped by top-level key.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, root, args[0], args[1])
		},
	}
}

func runCompare(cmd *cobra.Command, root *rootOptions, baseRef, targetRef string) error {
	ctx := cmd.Context()
	loader := root.loader(cmd)

	base, err := loader.Dashboard(ctx, baseRef)
	if err != nil {
		return fmt.Errorf("failed to load base version: %w", err)
	}
	target, err := loader.Dashboard(ctx, targetRef)
	if err != nil {
		return fmt.Errorf("failed to load target version: %w", err)
	}

	rep, err := compareReport(root, base, target)
	if err != nil {
		return err
	}
	rep.Source = baseRef
	rep.Target = targetRef

	return root.write(cmd, rep)
}

func compareReport(root *rootOptions, base, target *dashboard.Dashboard) (*report.Report, error) {
	diffs, err := root.detector().CompareVersions(base, target)
	if err != nil {
		return nil, err
	}

	before, err := base.Tree()
	if err != nil {
		return nil, err
	}
	after, err := target.Tree()
	if err != nil {
		return nil, err
	}

	rep := report.FromDiffs(diffs, before, after)
	rep.Title = target.Title()
	rep.UID = target.UID()
	return rep, nil
}
