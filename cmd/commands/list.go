package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/dashdiff/internal/terraform"
)

// NewListCmd creates a new list command
func NewListCmd(root *rootOptions) *cobra.Command {
	var (
		tfState string
		tfDir   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List Grafana dashboards managed by Terraform",
		Long: `List all grafana_dashboard resources in the specified Terraform state
file or configuration directory. These are the dashboards detect can check
for drift.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, root, tfState, tfDir)
		},
	}

	cmd.Flags().StringVarP(&tfState, "tf-state", "s", "", "Path to Terraform state file (terraform show -json)")
	cmd.Flags().StringVarP(&tfDir, "tf-dir", "d", ".", "Path to Terraform configuration directory")

	cmd.MarkFlagsMutuallyExclusive("tf-state", "tf-dir")

	return cmd
}

// loadManaged reads the managed dashboards from a state file when one is
// given, otherwise from the configuration directory.
func loadManaged(root *rootOptions, tfState, tfDir string) ([]*terraform.ManagedDashboard, error) {
	if tfState == "" && tfDir == "" {
		return nil, fmt.Errorf("either --tf-state or --tf-dir must be specified")
	}

	parser := root.parser()
	if tfState != "" {
		root.log.Debug("Parsing Terraform state file", "path", tfState)
		return parser.ParseState(tfState)
	}
	root.log.Debug("Parsing Terraform configuration", "path", tfDir)
	return parser.ParseHCL(tfDir)
}

func runList(cmd *cobra.Command, root *rootOptions, tfState, tfDir string) error {
	managed, err := loadManaged(root, tfState, tfDir)
	if errors.Is(err, terraform.ErrDashboardNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "No grafana_dashboard resources found in the Terraform files.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list dashboards from Terraform: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tUID\tFOLDER\tSOURCE")
	for _, m := range managed {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			orDash(m.Address),
			orDash(m.UID),
			orDash(m.Folder),
			orDash(m.Source),
		)
	}
	return w.Flush()
}

// orDash uses "-" for empty values to improve readability
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
