// Package config loads Registry configuration, contextual rule-catalog
// overrides, and allow/deny lists from YAML, per SPEC_FULL §9.
//
// Grounded on internal/router/config.go's LoadConfig (read file,
// yaml.Unmarshal, return typed struct) and internal/auditor/rules.go's
// ParseRulesConfig (validate after unmarshal). Load checks enum-valued
// fields and override ids; it fills no defaults and compiles no regex.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vura/sentinel/pkg/piitypes"
)

// File is the top-level YAML configuration document.
type File struct {
	DefaultAction              string                `yaml:"default_action"`
	Environment                string                `yaml:"environment"`
	Sensitivity                string                `yaml:"sensitivity"`
	ConfidenceThreshold        *float64              `yaml:"confidence_threshold"`
	ValidationStrictness       string                `yaml:"validation_strictness"`
	EnableConfidenceScoring    *bool                 `yaml:"enable_confidence_scoring"`
	EnableContextualConfidence *bool                 `yaml:"enable_contextual_confidence"`
	ContextualSuppression      *bool                 `yaml:"contextual_suppression_enabled"`
	ContextualBoost            *bool                 `yaml:"contextual_boost_enabled"`
	EnableJSONDetection        *bool                 `yaml:"enable_json_detection"`
	ContextHints               []string              `yaml:"context_hints"`
	Rules                      []TypeRuleEntry       `yaml:"rules"`
	AllowDeny                  AllowDenyFile         `yaml:"allow_deny"`
	RuleCatalogOverrides       []RuleOverride        `yaml:"rule_catalog_overrides"`
}

// TypeRuleEntry is one per-type redaction-action override.
type TypeRuleEntry struct {
	Type          string `yaml:"type"`
	Action        string `yaml:"action"`
	PreserveLast4 bool   `yaml:"preserve_last4"`
}

// AllowDenyFile is the allow/deny section of the YAML document.
type AllowDenyFile struct {
	Allow             map[string][]string `yaml:"allow"`
	Deny              map[string][]string `yaml:"deny"`
	AllowPrivateIPs   bool                `yaml:"allow_private_ips"`
	AllowTestPatterns bool                `yaml:"allow_test_patterns"`
}

// RuleOverride overrides one contextual-rule-catalog entry's multiplier/
// offset without requiring a recompile, per SPEC_FULL §10.
type RuleOverride struct {
	ID         string   `yaml:"id"`
	Multiplier *float64 `yaml:"multiplier"`
	Offset     *float64 `yaml:"offset"`
	Enabled    *bool    `yaml:"enabled"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

var validActions = map[string]bool{"mask": true, "remove": true, "tokenize": true, "": true}
var validEnvs = map[string]bool{"production": true, "development": true, "test": true, "": true}
var validSensitivity = map[string]bool{"strict": true, "balanced": true, "relaxed": true, "": true}
var validStrictness = map[string]bool{"fast": true, "balanced": true, "strict": true, "": true}

func (f *File) validate() error {
	if !validActions[f.DefaultAction] {
		return fmt.Errorf("config: invalid default_action %q", f.DefaultAction)
	}
	if !validEnvs[f.Environment] {
		return fmt.Errorf("config: invalid environment %q", f.Environment)
	}
	if !validSensitivity[f.Sensitivity] {
		return fmt.Errorf("config: invalid sensitivity %q", f.Sensitivity)
	}
	if !validStrictness[f.ValidationStrictness] {
		return fmt.Errorf("config: invalid validation_strictness %q", f.ValidationStrictness)
	}
	for _, r := range f.Rules {
		if !validActions[r.Action] {
			return fmt.Errorf("config: rule %s: invalid action %q", r.Type, r.Action)
		}
	}
	for _, o := range f.RuleCatalogOverrides {
		if o.ID == "" {
			return fmt.Errorf("config: rule_catalog_overrides entry missing id")
		}
	}
	return nil
}

// RuleTypeMap converts the YAML rules section into the
// map[PIIType]TypeRuleEntry shape the applier config expects.
func (f *File) RuleTypeMap() map[piitypes.PIIType]TypeRuleEntry {
	out := make(map[piitypes.PIIType]TypeRuleEntry, len(f.Rules))
	for _, r := range f.Rules {
		out[piitypes.PIIType(r.Type)] = r
	}
	return out
}

// ApplyOverrides returns a new slice holding the catalog's rules with
// multiplier/offset/enabled overrides applied; the input catalog is not
// modified. Unknown rule
// ids in overrides are ignored (no compile-time coupling between the
// shipped catalog and operator overrides).
func ApplyOverrides(catalog []piitypes.Rule, overrides []RuleOverride) []piitypes.Rule {
	if len(overrides) == 0 {
		return catalog
	}
	byID := make(map[string]RuleOverride, len(overrides))
	for _, o := range overrides {
		byID[o.ID] = o
	}
	out := make([]piitypes.Rule, 0, len(catalog))
	for _, r := range catalog {
		o, ok := byID[r.ID]
		if !ok {
			out = append(out, r)
			continue
		}
		if o.Enabled != nil && !*o.Enabled {
			continue
		}
		if o.Multiplier != nil {
			r.Multiplier = *o.Multiplier
		}
		if o.Offset != nil {
			r.Offset = *o.Offset
		}
		out = append(out, r)
	}
	return out
}
