package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourusername/dashdiff/internal/report"
)

// NewPanelCmd creates the panel command
func NewPanelCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "panel ORIGINAL EDITED",
		Short: "Show the changes made to a single panel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPanel(cmd, root, args[0], args[1])
		},
	}
}

func runPanel(cmd *cobra.Command, root *rootOptions, originalRef, editedRef string) error {
	ctx := cmd.Context()
	loader := root.loader(cmd)

	original, err := loader.Panel(ctx, originalRef)
	if err != nil {
		return fmt.Errorf("failed to load original panel: %w", err)
	}
	edited, err := loader.Panel(ctx, editedRef)
	if err != nil {
		return fmt.Errorf("failed to load edited panel: %w", err)
	}

	result, err := root.detector().ComputePanel(original, edited)
	if err != nil {
		return fmt.Errorf("failed to compute panel changes: %w", err)
	}

	rep, err := report.FromPanelResult(result)
	if err != nil {
		return err
	}
	rep.Source = originalRef
	rep.Target = editedRef

	return root.write(cmd, rep)
}
