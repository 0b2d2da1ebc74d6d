package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/yourusername/dashdiff/internal/aws"
	"github.com/yourusername/dashdiff/internal/changes"
	"github.com/yourusername/dashdiff/internal/config"
	"github.com/yourusername/dashdiff/internal/logger"
	"github.com/yourusername/dashdiff/internal/report"
	"github.com/yourusername/dashdiff/internal/source"
	"github.com/yourusername/dashdiff/internal/terraform"
)

// rootOptions holds the global flags and everything built from them once
// the configuration is loaded.
type rootOptions struct {
	configPath string
	output     string
	region     string
	logLevel   string
	ignore     []string

	cfg *config.Config
	log *logger.Logger

	// newStore overrides the S3 store, used by tests
	newStore source.StoreFactory
}

// NewRootCmd creates a new root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dashdiff",
		Short: "Detect changes between Grafana dashboard snapshots",
		Long: `dashdiff compares Grafana dashboard JSON snapshots and reports what a
save would change.

It separates edits made by a user from changes made by schema migration,
keeps time range, refresh and variable values unless they are chosen to be
saved, and can check dashboards managed by Terraform for drift against
their live copies on disk or in S3.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default $HOME/.dashdiff/config.yaml)")
	flags.StringVarP(&opts.output, "output", "o", "", "Output format (text, json, yaml, patch)")
	flags.StringVarP(&opts.region, "region", "r", "", "AWS region for s3:// snapshots (defaults to AWS_REGION environment variable)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringSliceVar(&opts.ignore, "ignore", nil, "JSON pointer paths to leave out of diffs, e.g. /version")

	rootCmd.AddCommand(NewChangesCmd(opts))
	rootCmd.AddCommand(NewPanelCmd(opts))
	rootCmd.AddCommand(NewCompareCmd(opts))
	rootCmd.AddCommand(NewListCmd(opts))
	rootCmd.AddCommand(NewDetectCmd(opts))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Format = o.output
	}
	if flags.Changed("region") {
		cfg.AWS.Region = o.region
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("ignore") {
		cfg.Diff.Ignore = append(cfg.Diff.Ignore, o.ignore...)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	o.cfg = cfg
	o.log = cfg.Logger(cmd.ErrOrStderr())
	return nil
}

func (o *rootOptions) storeFactory() source.StoreFactory {
	if o.newStore != nil {
		return o.newStore
	}
	return func(ctx context.Context) (source.Fetcher, error) {
		region := o.cfg.AWS.Region
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		o.log.Debug("Initializing S3 snapshot store", "region", region)
		return aws.NewSnapshotStore(ctx, region, o.cfg.AWS.MaxAttempts)
	}
}

func (o *rootOptions) loader(cmd *cobra.Command) *source.Loader {
	return source.NewLoader(o.storeFactory(),
		source.WithStdin(cmd.InOrStdin()),
		source.WithLogger(o.log),
		source.WithConcurrency(o.cfg.Detect.Concurrency),
	)
}

func (o *rootOptions) detector() *changes.Detector {
	return changes.NewDetector(
		changes.WithLogger(o.log),
		changes.WithIgnoredPaths(o.cfg.Diff.Ignore...),
	)
}

func (o *rootOptions) parser() terraform.Parser {
	return terraform.NewParser(o.log)
}

func (o *rootOptions) write(cmd *cobra.Command, reports ...*report.Report) error {
	return report.WriteAll(cmd.OutOrStdout(), report.FormatType(o.cfg.Output.Format), reports)
}
