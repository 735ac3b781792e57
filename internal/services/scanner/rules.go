package scanner

import (
	"fmt"
	"os"
	"path"
	"slices"

	"gopkg.in/yaml.v3"
)

// Rule forbids members matching any of its patterns from holding any of its
// roles on resources of the selected type. An empty ResourceType or empty
// Roles list matches everything.
type Rule struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	ResourceType string   `yaml:"resource_type"`
	Roles        []string `yaml:"roles"`
	Forbidden    []string `yaml:"forbidden_members"`
	Severity     string   `yaml:"severity"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

var validSeverities = []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

// LoadRules reads and validates the rules file.
func LoadRules(rulesPath string) ([]Rule, error) {
	data, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return parseRules(data)
}

func parseRules(data []byte) ([]Rule, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rules file defines no rules")
	}

	seen := make(map[string]bool, len(rf.Rules))
	for i := range rf.Rules {
		r := &rf.Rules[i]
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("rule %q defined more than once", r.Name)
		}
		seen[r.Name] = true

		if len(r.Forbidden) == 0 {
			return nil, fmt.Errorf("rule %q: forbidden_members is required", r.Name)
		}
		for _, pattern := range r.Forbidden {
			if _, err := path.Match(pattern, ""); err != nil {
				return nil, fmt.Errorf("rule %q: bad pattern %q: %w", r.Name, pattern, err)
			}
		}

		if r.Severity == "" {
			r.Severity = "MEDIUM"
		}
		if !slices.Contains(validSeverities, r.Severity) {
			return nil, fmt.Errorf("rule %q: severity %q (valid: %v)", r.Name, r.Severity, validSeverities)
		}
	}
	return rf.Rules, nil
}

// Matches reports whether the binding violates the rule.
func (r *Rule) Matches(resourceType, role, member string) bool {
	if r.ResourceType != "" && r.ResourceType != resourceType {
		return false
	}
	if len(r.Roles) > 0 && !slices.Contains(r.Roles, role) {
		return false
	}
	for _, pattern := range r.Forbidden {
		if ok, _ := path.Match(pattern, member); ok {
			return true
		}
	}
	return false
}
