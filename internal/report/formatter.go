package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/wI2L/jsondiff"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/dashdiff/internal/detector"
)

// Formatter defines the interface for formatting change reports
type Formatter interface {
	Format(report *Report) (string, error)
}

// FormatType represents the output format for the report
type FormatType string

const (
	// FormatJSON outputs the report in JSON format
	FormatJSON FormatType = "json"
	// FormatYAML outputs the report in YAML format
	FormatYAML FormatType = "yaml"
	// FormatText outputs the report in human-readable text format
	FormatText FormatType = "text"
	// FormatPatch outputs an RFC 6902 JSON patch from the compared trees
	FormatPatch FormatType = "patch"
)

// NewFormatter creates a new formatter based on the specified format
func NewFormatter(format FormatType) (Formatter, error) {
	switch format {
	case FormatJSON:
		return &jsonFormatter{}, nil
	case FormatYAML:
		return &yamlFormatter{}, nil
	case FormatText:
		return &textFormatter{}, nil
	case FormatPatch:
		return &patchFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

type jsonFormatter struct{}

func (f *jsonFormatter) Format(report *Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("cannot format nil report")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	return string(data), nil
}

type yamlFormatter struct{}

func (f *yamlFormatter) Format(report *Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("cannot format nil report")
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to YAML: %w", err)
	}
	return string(data), nil
}

type patchFormatter struct{}

func (f *patchFormatter) Format(report *Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("cannot format nil report")
	}

	patch, err := jsondiff.Compare(report.Before, report.After)
	if err != nil {
		return "", fmt.Errorf("failed to build JSON patch: %w", err)
	}
	if len(patch) == 0 {
		return "[]", nil
	}

	data, err := json.MarshalIndent(patch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON patch: %w", err)
	}
	return string(data), nil
}

type textFormatter struct{}

func (f *textFormatter) Format(report *Report) (string, error) {
	if report == nil {
		return "No report data available\n", nil
	}

	var sb strings.Builder

	sb.WriteString("Dashboard Change Report\n")
	if report.Title != "" || report.UID != "" {
		sb.WriteString(fmt.Sprintf("Dashboard: %s\n", displayName(report)))
	}
	if report.Source != "" {
		sb.WriteString(fmt.Sprintf("Source: %s\n", report.Source))
	}
	if report.Target != "" {
		sb.WriteString(fmt.Sprintf("Target: %s\n", report.Target))
	}
	sb.WriteString(fmt.Sprintf("Changes Detected: %t\n", report.HasChanges))

	if flags := report.Flags; flags != nil {
		sb.WriteString(fmt.Sprintf("Time Range Changed: %t\n", flags.TimeChanged))
		sb.WriteString(fmt.Sprintf("Refresh Changed: %t\n", flags.RefreshChanged))
		sb.WriteString(fmt.Sprintf("Variable Values Changed: %t\n", flags.VariablesChanged))
		sb.WriteString(fmt.Sprintf("New Dashboard: %t\n", flags.IsNew))
	}

	if !report.HasChanges {
		sb.WriteString("\nNo changes detected.\n")
	} else {
		sb.WriteString(fmt.Sprintf("\nFound %d change(s):\n", report.DiffCount))
		writeGrouped(&sb, report.Changes)
	}

	if n := len(report.MigrationChanges); n > 0 {
		sb.WriteString(fmt.Sprintf("\nSchema migration made %d change(s).\n", n))
	}

	return sb.String(), nil
}

// writeGrouped lists changes under their top-level key, the way the version
// history view shows them.
func writeGrouped(sb *strings.Builder, all []detector.Change) {
	groups := make(map[string][]detector.Change)
	for _, c := range all {
		key := ""
		if len(c.Path) > 0 {
			key = c.Path[0]
		}
		groups[key] = append(groups[key], c)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	i := 0
	for _, key := range keys {
		if key == "" {
			sb.WriteString("\n(root)\n")
		} else {
			sb.WriteString(fmt.Sprintf("\n%s\n", key))
		}
		for _, c := range groups[key] {
			i++
			sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", i, c.Kind, c.Path))
			switch c.Kind {
			case detector.ChangeAdded:
				sb.WriteString(fmt.Sprintf("   Value: %s\n", formatValue(c.Value)))
			case detector.ChangeRemoved:
				sb.WriteString(fmt.Sprintf("   Original: %s\n", formatValue(c.OriginalValue)))
			case detector.ChangeUpdated:
				sb.WriteString(fmt.Sprintf("   Original: %s\n", formatValue(c.OriginalValue)))
				sb.WriteString(fmt.Sprintf("   Value: %s\n", formatValue(c.Value)))
			}
		}
	}
}

func displayName(r *Report) string {
	switch {
	case r.Title == "":
		return r.UID
	case r.UID == "":
		return r.Title
	default:
		return fmt.Sprintf("%s (%s)", r.Title, r.UID)
	}
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case string:
		if val == "" {
			return "<empty>"
		}
		return val
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}
