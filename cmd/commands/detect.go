package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourusername/dashdiff/internal/dashboard"
	"github.com/yourusername/dashdiff/internal/report"
	"github.com/yourusername/dashdiff/internal/terraform"
)

// UIDPlaceholder is replaced with the dashboard uid in the --live reference.
const UIDPlaceholder = "{uid}"

type detectOptions struct {
	tfState   string
	tfDir     string
	dashboard string
	live      string
	failOn    bool
}

// NewDetectCmd creates a new detect command
func NewDetectCmd(root *rootOptions) *cobra.Command {
	opts := &detectOptions{}

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect drift between Terraform-managed dashboards and live copies",
		Long: `Detect drift for Grafana dashboards managed by Terraform by comparing the
config_json in Terraform with a live snapshot of each dashboard.

--live names the live snapshot. It may be a file or an s3://bucket/key
reference and should contain {uid}, which is replaced with each dashboard's
uid. Without --dashboard every managed dashboard is checked; live copies
are read concurrently, and s3:// copies are fetched as one batch.`,
		Example: `  dashdiff detect --tf-state state.json --live 's3://grafana-backups/prod/{uid}.json'
  dashdiff detect --tf-dir ./grafana --dashboard cpu-overview --live live/cpu.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.tfState, "tf-state", "s", "", "Path to Terraform state file (terraform show -json)")
	cmd.Flags().StringVarP(&opts.tfDir, "tf-dir", "d", ".", "Path to Terraform configuration directory")
	cmd.Flags().StringVarP(&opts.dashboard, "dashboard", "D", "", "Only check the dashboard with this uid, resource name or address")
	cmd.Flags().StringVarP(&opts.live, "live", "l", "", "Live snapshot reference, with {uid} as placeholder")
	cmd.Flags().BoolVar(&opts.failOn, "fail-on-drift", false, "Exit non-zero when drift is found")

	_ = cmd.MarkFlagRequired("live")
	cmd.MarkFlagsMutuallyExclusive("tf-state", "tf-dir")

	return cmd
}

func runDetect(cmd *cobra.Command, root *rootOptions, opts *detectOptions) error {
	log := root.log

	log.Info("Parsing Terraform configuration...")
	managed, err := loadManaged(root, opts.tfState, opts.tfDir)
	if err != nil {
		return fmt.Errorf("failed to load managed dashboards: %w", err)
	}

	if opts.dashboard != "" {
		m, err := terraform.Find(managed, opts.dashboard)
		if err != nil {
			return err
		}
		managed = []*terraform.ManagedDashboard{m}
	}

	if len(managed) > 1 && !strings.Contains(opts.live, UIDPlaceholder) {
		return fmt.Errorf("--live must contain %s when checking %d dashboards", UIDPlaceholder, len(managed))
	}

	refs := make([]string, len(managed))
	desired := make([]*dashboard.Dashboard, len(managed))
	for i, m := range managed {
		if m.UID == "" && strings.Contains(opts.live, UIDPlaceholder) {
			return fmt.Errorf("%s: dashboard has no uid", m.Address)
		}
		if desired[i], err = m.Dashboard(); err != nil {
			return err
		}
		refs[i] = strings.ReplaceAll(opts.live, UIDPlaceholder, m.UID)
	}

	log.Info("Fetching live dashboards...", "count", len(refs))
	live, err := root.loader(cmd).Dashboards(cmd.Context(), refs)
	if err != nil {
		return fmt.Errorf("failed to load live dashboards: %w", err)
	}

	reports := make([]*report.Report, len(managed))
	for i, m := range managed {
		rep, err := compareReport(root, desired[i], live[i])
		if err != nil {
			return fmt.Errorf("%s: %w", m.Address, err)
		}
		rep.Source = m.Address
		rep.Target = refs[i]
		if rep.UID == "" {
			rep.UID = m.UID
		}
		reports[i] = rep
	}

	drifted := 0
	for _, rep := range reports {
		if rep.HasChanges {
			drifted++
		}
	}
	log.Info("Drift detection complete", "dashboards", len(reports), "drifted", drifted)

	if err := root.write(cmd, reports...); err != nil {
		return err
	}

	if opts.failOn && drifted > 0 {
		return fmt.Errorf("%w: %d of %d dashboard(s) drifted", ErrChangesDetected, drifted, len(reports))
	}
	return nil
}
