// Package changes works out what a user changed in a dashboard before it is
// saved.
//
// Three snapshots take part: the dashboard as it was loaded (original), the
// same dashboard after schema migration (migrated) and the dashboard as the
// user left it (edited). Edits are measured against the migrated snapshot so
// that schema upgrades are not reported as user changes; the upgrade itself
// is reported separately as the migration diff.
package changes

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yourusername/dashdiff/internal/dashboard"
	"github.com/yourusername/dashdiff/internal/detector"
	"github.com/yourusername/dashdiff/internal/logger"
)

// ErrNilSnapshot is returned when one of the snapshots is missing.
var ErrNilSnapshot = errors.New("dashboard snapshot is nil")

// Options selects which parts of the edited snapshot are saved. Parts that
// are not saved are reverted to the migrated values.
type Options struct {
	SaveTimeRange bool
	SaveVariables bool
	SaveRefresh   bool
}

// Result is the outcome of Compute.
type Result struct {
	// Edited is the normalized edited snapshot, ready to be saved
	Edited *dashboard.Dashboard
	// Migrated is the migrated snapshot with legacy fields removed
	Migrated *dashboard.Dashboard
	Original *dashboard.Dashboard

	// MigrationDiff lists the changes made by the schema migration
	MigrationDiff detector.Diffs
	// Diffs lists the user changes, migrated to edited
	Diffs     detector.Diffs
	DiffCount int

	HasChanges              bool
	HasTimeChanges          bool
	HasRefreshChange        bool
	HasVariableValueChanges bool
	IsNew                   bool
}

// PanelResult is the outcome of ComputePanel.
type PanelResult struct {
	Edited     dashboard.Panel
	Original   dashboard.Panel
	Diffs      detector.Diffs
	DiffCount  int
	HasChanges bool
}

// Detector computes dashboard and panel changes.
type Detector struct {
	differ *detector.Differ
	logger *logger.Logger
}

// Option configures a Detector
type Option func(*Detector)

// WithLogger sets the logger used by the detector
func WithLogger(l *logger.Logger) Option {
	return func(d *Detector) {
		d.logger = l
	}
}

// WithIgnoredPaths excludes paths from both diffs. Flags are not affected.
func WithIgnoredPaths(paths ...string) Option {
	return func(d *Detector) {
		d.differ = detector.NewDiffer(detector.WithIgnoredPaths(paths...))
	}
}

// NewDetector creates a new change detector
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		differ: detector.NewDiffer(),
		logger: logger.DefaultLogger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Compute runs Detector.Compute with default settings.
func Compute(original, edited, migrated *dashboard.Dashboard, opts Options) (*Result, error) {
	return NewDetector().Compute(original, edited, migrated, opts)
}

// ComputePanel runs Detector.ComputePanel with default settings.
func ComputePanel(original, edited dashboard.Panel) (*PanelResult, error) {
	return NewDetector().ComputePanel(original, edited)
}

// Compute compares edited with migrated and original with migrated.
//
// Flags are taken before any masking, so HasTimeChanges and
// HasRefreshChange describe what the user did even when that part is not
// saved. The snapshots passed in are never modified: the returned Edited
// and Migrated are fresh copies.
func (d *Detector) Compute(original, edited, migrated *dashboard.Dashboard, opts Options) (*Result, error) {
	if original == nil || edited == nil || migrated == nil {
		return nil, ErrNilSnapshot
	}

	log := d.logger.WithFields(map[string]interface{}{
		"uid": edited.UID(),
	})

	editedCopy, err := edited.Clone()
	if err != nil {
		return nil, err
	}
	migratedCopy, err := migrated.Clone()
	if err != nil {
		return nil, err
	}

	hasTimeChanges := HasTimeChanged(editedCopy, migratedCopy)

	hasVariableChanges, err := reconcileVariables(editedCopy.Variables(), migratedCopy.Variables(), opts.SaveVariables)
	if err != nil {
		return nil, fmt.Errorf("comparing variables: %w", err)
	}

	hasRefreshChange := !editedCopy.Refresh.Equal(migratedCopy.Refresh)

	if !opts.SaveTimeRange {
		if err := editedCopy.RestoreTime(migratedCopy); err != nil {
			return nil, err
		}
	}
	if !opts.SaveRefresh {
		editedCopy.RestoreRefresh(migratedCopy)
	}

	originalTree, err := original.Tree()
	if err != nil {
		return nil, err
	}
	migratedTree, err := migratedCopy.Tree()
	if err != nil {
		return nil, err
	}
	editedTree, err := editedCopy.Tree()
	if err != nil {
		return nil, err
	}

	migrationDiff := d.differ.Diff(originalTree, migratedTree)
	diffs := d.differ.Diff(migratedTree, editedTree)
	diffCount := diffs.Count()

	result := &Result{
		Edited:                  editedCopy,
		Migrated:                migratedCopy,
		Original:                original,
		MigrationDiff:           migrationDiff,
		Diffs:                   diffs,
		DiffCount:               diffCount,
		HasChanges:              diffCount > 0,
		HasTimeChanges:          hasTimeChanges,
		HasRefreshChange:        hasRefreshChange,
		HasVariableValueChanges: hasVariableChanges,
		IsNew:                   editedCopy.Version.Equal(dashboard.NewValue(json.Number("0"))),
	}

	log.Debug("Computed dashboard changes",
		"diffCount", diffCount,
		"migrationChanges", migrationDiff.Count(),
		"timeChanged", hasTimeChanges,
		"refreshChanged", hasRefreshChange,
		"variablesChanged", hasVariableChanges,
	)

	return result, nil
}

// ComputePanel diffs a single panel, original to edited. Nothing is masked.
func (d *Detector) ComputePanel(original, edited dashboard.Panel) (*PanelResult, error) {
	originalTree, err := dashboard.ToTree(original)
	if err != nil {
		return nil, err
	}
	editedTree, err := dashboard.ToTree(edited)
	if err != nil {
		return nil, err
	}

	diffs := d.differ.Diff(originalTree, editedTree)
	count := diffs.Count()

	d.logger.Debug("Computed panel changes", "diffCount", count)

	return &PanelResult{
		Edited:     edited,
		Original:   original,
		Diffs:      diffs,
		DiffCount:  count,
		HasChanges: count > 0,
	}, nil
}

// CompareVersions diffs two stored versions of a dashboard, base to target.
// Nothing is masked and no flags are derived.
func (d *Detector) CompareVersions(base, target *dashboard.Dashboard) (detector.Diffs, error) {
	if base == nil || target == nil {
		return nil, ErrNilSnapshot
	}
	baseTree, err := base.Tree()
	if err != nil {
		return nil, err
	}
	targetTree, err := target.Tree()
	if err != nil {
		return nil, err
	}
	return d.differ.Diff(baseTree, targetTree), nil
}
