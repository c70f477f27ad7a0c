package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Bucket   string   `yaml:"bucket"`
	Keywords []string `yaml:"keywords"`
}

// LoadRulesFile reads an ordered rule list from YAML:
//
//	rules:
//	  - bucket: travel
//	    keywords: [trip, flight]
//
// File order is evaluation order.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule list. Entries without a bucket or without
// any usable keyword are rejected, as is the reserved unknown bucket.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("rules file defines no rules")
	}

	rules := make([]Rule, 0, len(f.Rules))
	for i, e := range f.Rules {
		if e.Bucket == "" {
			return nil, fmt.Errorf("rule %d: bucket is required", i)
		}
		if Bucket(e.Bucket) == BucketUnknown {
			return nil, fmt.Errorf("rule %d: %q is reserved", i, e.Bucket)
		}
		r := NewRule(Bucket(e.Bucket), e.Keywords...)
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("rule %d (%s): at least one keyword is required", i, e.Bucket)
		}
		rules = append(rules, r)
	}
	return rules, nil
}
