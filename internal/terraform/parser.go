// Package terraform reads grafana_dashboard resources from Terraform
// configuration and state so that the dashboards they manage can be compared
// with live snapshots.
package terraform

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	hcljson "github.com/hashicorp/hcl/v2/json"
	tfjson "github.com/hashicorp/terraform-json"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/yourusername/dashdiff/internal/dashboard"
	"github.com/yourusername/dashdiff/internal/logger"
)

// ResourceType is the Terraform resource type that manages a dashboard.
const ResourceType = "grafana_dashboard"

// ErrDashboardNotFound is returned when no matching grafana_dashboard
// resource exists.
var ErrDashboardNotFound = errors.New("grafana_dashboard not found")

// ManagedDashboard is a grafana_dashboard resource and the dashboard JSON it
// manages.
type ManagedDashboard struct {
	// Address is the resource address, e.g. module.team.grafana_dashboard.cpu
	Address string
	Name    string
	UID     string
	Folder  string
	// ConfigJSON is the config_json attribute as written by Terraform
	ConfigJSON string
	// Source is the file the resource was read from
	Source string
}

// Dashboard decodes the managed dashboard JSON.
func (m *ManagedDashboard) Dashboard() (*dashboard.Dashboard, error) {
	d, err := dashboard.Parse([]byte(m.ConfigJSON), dashboard.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("%s: config_json: %w", m.Address, err)
	}
	return d, nil
}

// Parser is an interface for parsing Terraform configurations and state files
type Parser interface {
	// ParseHCL reads a .tf or .tf.json file, or every such file in a directory
	ParseHCL(path string) ([]*ManagedDashboard, error)
	// ParseState reads the JSON output of `terraform show -json`
	ParseState(filePath string) ([]*ManagedDashboard, error)
}

type terraformParser struct {
	logger *logger.Logger
}

// NewParser creates a new Terraform parser
func NewParser(log *logger.Logger) Parser {
	if log == nil {
		log = logger.DefaultLogger
	}
	return &terraformParser{
		logger: log.WithFields(map[string]interface{}{"component": "terraform"}),
	}
}

// Find returns the dashboard whose uid, resource name or address is key.
func Find(dashboards []*ManagedDashboard, key string) (*ManagedDashboard, error) {
	for _, d := range dashboards {
		if d.UID == key || d.Name == key || d.Address == key {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDashboardNotFound, key)
}

// ParseState parses a Terraform state file and returns every managed
// dashboard, including those in child modules.
func (p *terraformParser) ParseState(filePath string) ([]*ManagedDashboard, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	stateContent, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state tfjson.State
	if err := json.Unmarshal(stateContent, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	if state.Values == nil || state.Values.RootModule == nil {
		return nil, fmt.Errorf("%w in state file %s", ErrDashboardNotFound, filePath)
	}

	var all []*ManagedDashboard
	p.collectModule(state.Values.RootModule, filePath, &all)

	if len(all) == 0 {
		return nil, fmt.Errorf("%w in state file %s", ErrDashboardNotFound, filePath)
	}

	p.logger.Debug("Parsed Terraform state", "path", filePath, "dashboards", len(all))
	return all, nil
}

func (p *terraformParser) collectModule(module *tfjson.StateModule, source string, out *[]*ManagedDashboard) {
	for i, resource := range module.Resources {
		if resource == nil {
			p.logger.Warn("Skipping nil resource", "module", module.Address, "index", i)
			continue
		}
		if resource.Type != ResourceType || resource.Mode != tfjson.ManagedResourceMode {
			continue
		}

		d, err := parseStateResource(resource)
		if err != nil {
			p.logger.Warn("Skipping dashboard resource", "address", resource.Address, "error", err)
			continue
		}
		d.Source = source
		*out = append(*out, d)
	}

	for _, child := range module.ChildModules {
		if child == nil {
			continue
		}
		p.collectModule(child, source, out)
	}
}

func parseStateResource(resource *tfjson.StateResource) (*ManagedDashboard, error) {
	configJSON, ok := resource.AttributeValues["config_json"].(string)
	if !ok || configJSON == "" {
		return nil, fmt.Errorf("resource has no config_json")
	}

	d := &ManagedDashboard{
		Address:    resource.Address,
		Name:       resource.Name,
		ConfigJSON: configJSON,
	}
	if uid, ok := resource.AttributeValues["uid"].(string); ok {
		d.UID = uid
	}
	if folder, ok := resource.AttributeValues["folder"].(string); ok {
		d.Folder = folder
	}
	if d.UID == "" {
		d.UID = uidFromConfig(configJSON)
	}
	return d, nil
}

// ParseHCL parses a Terraform configuration file, or every configuration
// file of a directory.
func (p *terraformParser) ParseHCL(path string) ([]*ManagedDashboard, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", path, err)
	}

	dir := path
	files := []string{path}
	if info.IsDir() {
		files, err = configFiles(path)
		if err != nil {
			return nil, err
		}
	} else {
		dir = filepath.Dir(path)
	}

	ctx, err := p.evalContext(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load variables: %w", err)
	}

	var all []*ManagedDashboard
	for _, file := range files {
		dashboards, err := p.parseConfigFile(file, ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, dashboards...)
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrDashboardNotFound, path)
	}
	return all, nil
}

var resourceSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "resource", LabelNames: []string{"type", "name"}},
	},
}

var dashboardSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "config_json", Required: true},
		{Name: "folder"},
	},
}

func (p *terraformParser) parseConfigFile(filePath string, ctx *hcl.EvalContext) ([]*ManagedDashboard, error) {
	file, err := parseFile(filePath)
	if err != nil {
		return nil, err
	}

	content, _, diags := file.Body.PartialContent(resourceSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %v", filePath, diags)
	}

	var out []*ManagedDashboard
	for _, block := range content.Blocks {
		if block.Labels[0] != ResourceType {
			continue
		}
		name := block.Labels[1]
		address := ResourceType + "." + name

		attrs, _, diags := block.Body.PartialContent(dashboardSchema)
		if diags.HasErrors() {
			p.logger.Warn("Skipping dashboard resource", "address", address, "error", diags.Error())
			continue
		}

		configVal, err := evaluateExpression(attrs.Attributes["config_json"].Expr, ctx)
		if err != nil {
			p.logger.Warn("Failed to evaluate config_json", "address", address, "error", err)
			continue
		}
		if configVal.IsNull() || !configVal.IsKnown() || configVal.Type() != cty.String {
			p.logger.Warn("config_json is not a known string", "address", address)
			continue
		}

		d := &ManagedDashboard{
			Address:    address,
			Name:       name,
			ConfigJSON: configVal.AsString(),
			Source:     filePath,
		}
		d.UID = uidFromConfig(d.ConfigJSON)

		if attr, ok := attrs.Attributes["folder"]; ok {
			val, err := evaluateExpression(attr.Expr, ctx)
			if err == nil && !val.IsNull() && val.IsKnown() && val.Type() == cty.String {
				d.Folder = val.AsString()
			}
		}

		p.logger.Debug("Found dashboard resource", "address", address, "uid", d.UID)
		out = append(out, d)
	}
	return out, nil
}

func parseFile(filePath string) (*hcl.File, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	switch {
	case strings.HasSuffix(filePath, ".tf.json"):
		file, diags = hcljson.Parse(src, filePath)
	case strings.HasSuffix(filePath, ".tf"):
		file, diags = hclsyntax.ParseConfig(src, filePath, hcl.Pos{Line: 1, Column: 1})
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", filepath.Ext(filePath))
	}
	if file == nil || diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %v", filePath, diags)
	}
	return file, nil
}

func configFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(name, ".tf") || strings.HasSuffix(name, ".tf.json") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// evalContext builds the context config_json expressions are evaluated in:
// var.* from variable defaults, path.module, and the functions dashboards
// are usually written with.
func (p *terraformParser) evalContext(dir string) (*hcl.EvalContext, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"path": cty.ObjectVal(map[string]cty.Value{
				"module": cty.StringVal(dir),
				"root":   cty.StringVal(dir),
			}),
		},
		Functions: functions(dir),
	}

	variables, err := p.loadVariables(dir, ctx)
	if err != nil {
		return nil, err
	}
	ctx.Variables["var"] = cty.ObjectVal(variables)
	return ctx, nil
}

func functions(dir string) map[string]function.Function {
	return map[string]function.Function{
		"file":       fileFunc(dir),
		"jsonencode": stdlib.JSONEncodeFunc,
		"jsondecode": stdlib.JSONDecodeFunc,
		"trimspace":  stdlib.TrimSpaceFunc,
		"merge":      stdlib.MergeFunc,
	}
}

// fileFunc reads a file relative to the configuration directory.
func fileFunc(dir string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{
				Name: "path",
				Type: cty.String,
			},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			path := args[0].AsString()
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return cty.NilVal, fmt.Errorf("failed to read %s: %w", path, err)
			}
			return cty.StringVal(string(src)), nil
		},
	})
}

// loadVariables evaluates the defaults of the variable blocks in dir.
func (p *terraformParser) loadVariables(dir string, ctx *hcl.EvalContext) (map[string]cty.Value, error) {
	files, err := configFiles(dir)
	if err != nil {
		return nil, err
	}

	variableSchema := &hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{{Type: "variable", LabelNames: []string{"name"}}},
	}
	defaultSchema := &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{{Name: "default"}},
	}

	variables := make(map[string]cty.Value)
	for _, filePath := range files {
		file, err := parseFile(filePath)
		if err != nil {
			return nil, err
		}
		content, _, diags := file.Body.PartialContent(variableSchema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %v", filePath, diags)
		}

		for _, block := range content.Blocks {
			name := block.Labels[0]
			val := cty.NullVal(cty.DynamicPseudoType)

			attrs, _, diags := block.Body.PartialContent(defaultSchema)
			if !diags.HasErrors() {
				if attr, ok := attrs.Attributes["default"]; ok {
					v, diags := attr.Expr.Value(ctx)
					if diags.HasErrors() {
						p.logger.Warn("Failed to evaluate default value", "variable", name, "error", diags.Error())
					} else {
						val = v
					}
				}
			}
			variables[name] = val
		}
	}
	return variables, nil
}

// evaluateExpression evaluates expr. References the context cannot resolve,
// such as other resources, evaluate to null.
func evaluateExpression(expr hcl.Expression, ctx *hcl.EvalContext) (cty.Value, error) {
	if expr == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}

	val, diags := expr.Value(ctx)
	if diags.HasErrors() {
		for _, diag := range diags {
			if diag.Summary == "Unknown variable" || diag.Summary == "Unsupported attribute" {
				return cty.NullVal(cty.DynamicPseudoType), nil
			}
		}
		return cty.NullVal(cty.DynamicPseudoType), fmt.Errorf("error evaluating expression: %v", diags)
	}
	return val, nil
}

func uidFromConfig(configJSON string) string {
	var head struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal([]byte(configJSON), &head); err != nil {
		return ""
	}
	return head.UID
}
