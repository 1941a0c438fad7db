package salesync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const (
	profileVersionV1 = "1"
	// ProfileVersion exposes the current profile format version for tooling.
	ProfileVersion = profileVersionV1
)

// Profile is a YAML document describing which dashboard panels to render and
// the default filter to load them under.
type Profile struct {
	Version string        `json:"version" yaml:"version"`
	Name    string        `json:"name,omitempty" yaml:"name,omitempty"`
	Filter  ProfileFilter `json:"filter,omitempty" yaml:"filter,omitempty"`
	Panels  []Panel       `json:"panels" yaml:"panels"`
}

// ProfileFilter is the persisted default filter; zero year means current.
type ProfileFilter struct {
	Year       int    `json:"year,omitempty" yaml:"year,omitempty"`
	CategoryID string `json:"category_id,omitempty" yaml:"category_id,omitempty"`
}

// Panel is a single dashboard panel entry.
type Panel struct {
	Code   string         `json:"code" yaml:"code"`
	Title  string         `json:"title,omitempty" yaml:"title,omitempty"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// panelSchemas holds the configuration schema per known panel code.
var panelSchemas = map[string]map[string]any{
	"sales.monthly_chart": {
		"type": "object",
		"properties": map[string]any{
			"chart": map[string]any{
				"type": "string",
				"enum": []any{"line", "bar"},
			},
			"theme": map[string]any{"type": "string"},
		},
		"additionalProperties": false,
	},
	"sales.summary": {
		"type": "object",
		"properties": map[string]any{
			"show_profit_estimate": map[string]any{"type": "boolean"},
		},
		"additionalProperties": false,
	},
	"catalog.category_share": {
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": false,
	},
}

// DefaultProfile returns a profile rendering every known panel.
func DefaultProfile() *Profile {
	return &Profile{
		Version: ProfileVersion,
		Name:    "default",
		Panels: []Panel{
			{Code: "sales.summary", Title: "Summary"},
			{Code: "sales.monthly_chart", Title: "Monthly sales", Config: map[string]any{"chart": "line"}},
			{Code: "catalog.category_share", Title: "Categories"},
		},
	}
}

// ReadProfile loads and validates a profile document from disk.
func ReadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("salesync: read profile %s: %w", path, err)
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("salesync: parse profile %s: %w", path, err)
	}
	if profile.Version != profileVersionV1 {
		return nil, fmt.Errorf("salesync: unsupported profile version %q", profile.Version)
	}
	validator := NewPanelValidator()
	for _, panel := range profile.Panels {
		if err := validator.Validate(panel); err != nil {
			return nil, err
		}
	}
	return &profile, nil
}

// WriteProfile persists a profile document to disk.
func WriteProfile(path string, profile *Profile) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("salesync: create profile %s: %w", path, err)
	}
	defer file.Close()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(2)
	defer encoder.Close()
	if err := encoder.Encode(profile); err != nil {
		return fmt.Errorf("salesync: write profile: %w", err)
	}
	return nil
}

// PanelValidator validates panel configuration against the panel's schema.
type PanelValidator struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

// NewPanelValidator builds a validator backed by jsonschema v5.
func NewPanelValidator() *PanelValidator {
	return &PanelValidator{compiled: make(map[string]*jsonschema.Schema)}
}

// Validate ensures the panel is known and its configuration satisfies the
// panel schema.
func (v *PanelValidator) Validate(panel Panel) error {
	schemaDoc, ok := panelSchemas[panel.Code]
	if !ok {
		return fmt.Errorf("salesync: unknown panel %q", panel.Code)
	}
	schema, err := v.schemaFor(panel.Code, schemaDoc)
	if err != nil {
		return err
	}
	payload := map[string]any{}
	if panel.Config != nil {
		data, err := json.Marshal(panel.Config)
		if err != nil {
			return fmt.Errorf("salesync: marshal config for %s: %w", panel.Code, err)
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("salesync: normalize config for %s: %w", panel.Code, err)
		}
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("salesync: configuration for %s failed validation: %w", panel.Code, err)
	}
	return nil
}

func (v *PanelValidator) schemaFor(code string, doc map[string]any) (*jsonschema.Schema, error) {
	v.mu.RLock()
	schema, ok := v.compiled[code]
	v.mu.RUnlock()
	if ok {
		return schema, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("salesync: marshal schema %s: %w", code, err)
	}
	compiler := jsonschema.NewCompiler()
	name := code + ".json"
	if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("salesync: load schema %s: %w", code, err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("salesync: compile schema %s: %w", code, err)
	}
	v.mu.Lock()
	v.compiled[code] = compiled
	v.mu.Unlock()
	return compiled, nil
}
