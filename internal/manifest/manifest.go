// Package manifest describes the artifacts an analysis consumes and
// produces, plus the JSON Schema its parameters must satisfy. The manifest
// drives upload validation, output collection, and the discovery document
// served to the orchestrator.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Artifact describes one named file the analysis reads or writes.
type Artifact struct {
	Key         string `json:"key" yaml:"key"`
	Name        string `json:"name" yaml:"name"`
	Dtype       string `json:"dtype" yaml:"dtype"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required" yaml:"required"`
}

// Manifest is the full artifact and parameter contract for one analysis.
type Manifest struct {
	Capabilities    []string       `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Inputs          []Artifact     `json:"input_files" yaml:"inputs"`
	Outputs         []Artifact     `json:"output_files" yaml:"outputs"`
	Processed       []Artifact     `json:"processed_files,omitempty" yaml:"processed,omitempty"`
	ParameterSchema map[string]any `json:"parameter_schema,omitempty" yaml:"parameter_schema,omitempty"`
}

// Default returns the built-in template manifest: two required CSV inputs
// converted into two XLSX workbooks plus a JSON results document, with a
// scratch file under processing/.
func Default() Manifest {
	return Manifest{
		Capabilities: []string{"csv_processing", "data_analysis"},
		Inputs: []Artifact{
			{Key: "file1", Name: "file1.csv", Dtype: "csv", Description: "First CSV input file", Required: true},
			{Key: "file2", Name: "file2.csv", Dtype: "csv", Description: "Second CSV input file", Required: true},
		},
		Outputs: []Artifact{
			{Key: "output1", Name: "output1.xlsx", Dtype: "xlsx", Description: "First processed file saved as XLSX", Required: true},
			{Key: "output2", Name: "output2.xlsx", Dtype: "xlsx", Description: "Second processed file saved as XLSX", Required: true},
			{Key: "results", Name: "results.json", Dtype: "json", Description: "Analysis results and KPIs", Required: true},
		},
		Processed: []Artifact{
			{Key: "temp_data", Name: "temp_data.csv", Dtype: "csv", Description: "Temporary data file for processing"},
		},
		ParameterSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"analysis_type": map[string]any{
					"type":        "string",
					"enum":        []any{"delivery_time", "route_optimization", "cost_analysis"},
					"description": "Type of analysis to perform",
				},
				"date_range": map[string]any{
					"type":        "string",
					"enum":        []any{"last_7_days", "last_30_days", "last_3_months", "custom"},
					"description": "Date range for analysis",
				},
				"region": map[string]any{
					"type":        "string",
					"enum":        []any{"all", "north", "south", "east", "west"},
					"description": "Geographic region to analyze",
				},
				"priority": map[string]any{
					"type":        "string",
					"enum":        []any{"normal", "high", "urgent"},
					"description": "Analysis priority level",
				},
			},
		},
	}
}

// Load reads a manifest from a YAML or JSON file, chosen by extension.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Manifest{}, fmt.Errorf("parse manifest yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return Manifest{}, fmt.Errorf("parse manifest json: %w", err)
		}
	default:
		return Manifest{}, fmt.Errorf("unsupported manifest format: %s", filepath.Ext(path))
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks structural requirements on the manifest.
func (m Manifest) Validate() error {
	if len(m.Inputs) == 0 {
		return fmt.Errorf("manifest must declare at least one input")
	}
	seen := map[string]bool{}
	for _, group := range [][]Artifact{m.Inputs, m.Outputs, m.Processed} {
		for _, a := range group {
			if a.Key == "" || a.Name == "" {
				return fmt.Errorf("artifact key and name are required (key=%q name=%q)", a.Key, a.Name)
			}
			if seen[a.Key] {
				return fmt.Errorf("duplicate artifact key %q", a.Key)
			}
			seen[a.Key] = true
			if filepath.Base(a.Name) != a.Name {
				return fmt.Errorf("artifact name %q must not contain path separators", a.Name)
			}
		}
	}
	return nil
}

// RequiredInputs returns the inputs every submission must include.
func (m Manifest) RequiredInputs() []Artifact {
	var out []Artifact
	for _, a := range m.Inputs {
		if a.Required {
			out = append(out, a)
		}
	}
	return out
}

// InputByName finds an input artifact by filename.
func (m Manifest) InputByName(name string) (Artifact, bool) {
	for _, a := range m.Inputs {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// OutputByName finds an output artifact by filename.
func (m Manifest) OutputByName(name string) (Artifact, bool) {
	for _, a := range m.Outputs {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// SupportedFormats returns the distinct input dtypes, sorted.
func (m Manifest) SupportedFormats() []string {
	set := map[string]bool{}
	for _, a := range m.Inputs {
		if a.Dtype != "" {
			set[a.Dtype] = true
		}
	}
	out := make([]string, 0, len(set))
	for dtype := range set {
		out = append(out, dtype)
	}
	sort.Strings(out)
	return out
}
