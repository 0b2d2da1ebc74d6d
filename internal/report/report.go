package report

import (
	"github.com/yourusername/dashdiff/internal/changes"
	"github.com/yourusername/dashdiff/internal/dashboard"
	"github.com/yourusername/dashdiff/internal/detector"
)

// Report is the printable outcome of one comparison.
type Report struct {
	Title      string            `json:"title,omitempty" yaml:"title,omitempty"`
	UID        string            `json:"uid,omitempty" yaml:"uid,omitempty"`
	Source     string            `json:"source,omitempty" yaml:"source,omitempty"`
	Target     string            `json:"target,omitempty" yaml:"target,omitempty"`
	HasChanges bool              `json:"has_changes" yaml:"has_changes"`
	DiffCount  int               `json:"diff_count" yaml:"diff_count"`
	Flags      *Flags            `json:"flags,omitempty" yaml:"flags,omitempty"`
	Changes    []detector.Change `json:"changes" yaml:"changes"`
	// MigrationChanges is only set for dashboard reports
	MigrationChanges []detector.Change `json:"migration_changes,omitempty" yaml:"migration_changes,omitempty"`

	// Trees the changes were computed from, used to build JSON patches
	Before any `json:"-" yaml:"-"`
	After  any `json:"-" yaml:"-"`
}

// Flags are the derived dashboard flags.
type Flags struct {
	TimeChanged      bool `json:"time_changed" yaml:"time_changed"`
	RefreshChanged   bool `json:"refresh_changed" yaml:"refresh_changed"`
	VariablesChanged bool `json:"variables_changed" yaml:"variables_changed"`
	IsNew            bool `json:"is_new" yaml:"is_new"`
}

// FromResult builds a report for a dashboard change result.
func FromResult(r *changes.Result) (*Report, error) {
	before, err := r.Migrated.Tree()
	if err != nil {
		return nil, err
	}
	after, err := r.Edited.Tree()
	if err != nil {
		return nil, err
	}

	rep := FromDiffs(r.Diffs, before, after)
	rep.Title = r.Edited.Title()
	rep.UID = r.Edited.UID()
	rep.Flags = &Flags{
		TimeChanged:      r.HasTimeChanges,
		RefreshChanged:   r.HasRefreshChange,
		VariablesChanged: r.HasVariableValueChanges,
		IsNew:            r.IsNew,
	}
	rep.MigrationChanges = r.MigrationDiff.Changes()
	return rep, nil
}

// FromPanelResult builds a report for a panel change result.
func FromPanelResult(r *changes.PanelResult) (*Report, error) {
	before, err := dashboard.ToTree(r.Original)
	if err != nil {
		return nil, err
	}
	after, err := dashboard.ToTree(r.Edited)
	if err != nil {
		return nil, err
	}

	rep := FromDiffs(r.Diffs, before, after)
	if title, ok := r.Edited["title"].(string); ok {
		rep.Title = title
	}
	return rep, nil
}

// FromDiffs builds a bare report from a diff record and the trees it was
// computed from.
func FromDiffs(diffs detector.Diffs, before, after any) *Report {
	all := diffs.Changes()
	return &Report{
		HasChanges: len(all) > 0,
		DiffCount:  len(all),
		Changes:    all,
		Before:     before,
		After:      after,
	}
}
