package template

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/replybot/replybot/internal/logging"
)

// ParseBundle decodes a base64 encoded template bundle. The payload may be
// JSON or YAML with the shape {bucket: {variant: text}}.
func ParseBundle(encoded string) (Set, error) {
	set, _, err := parseBundle(encoded)
	return set, err
}

// parseBundle also returns the buckets in the order the bundle declares them.
func parseBundle(encoded string) (Set, []string, error) {
	raw, err := decodeBase64(strings.TrimSpace(encoded))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode template bundle: %w", err)
	}

	var set Set
	if jsonErr := json.Unmarshal(raw, &set); jsonErr != nil {
		set = nil
		if yamlErr := yaml.Unmarshal(raw, &set); yamlErr != nil {
			return nil, nil, fmt.Errorf("failed to parse template bundle: %w", jsonErr)
		}
	}
	if len(set) == 0 {
		return nil, nil, fmt.Errorf("template bundle defines no buckets")
	}
	return set, declaredOrder(raw, set), nil
}

// declaredOrder reads the top-level keys in document order. JSON is read as
// YAML here; when that fails the buckets come back sorted.
func declaredOrder(raw []byte, set Set) []string {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err == nil && len(doc.Content) > 0 && doc.Content[0].Kind == yaml.MappingNode {
		root := doc.Content[0]
		keys := make([]string, 0, len(root.Content)/2)
		for i := 0; i+1 < len(root.Content); i += 2 {
			keys = append(keys, root.Content[i].Value)
		}
		return keys
	}
	keys := make([]string, 0, len(set))
	for b := range set {
		keys = append(keys, b)
	}
	sort.Strings(keys)
	return keys
}

// firstUsable returns the first declared bucket with an initial template.
func firstUsable(set Set, order []string) string {
	for _, b := range order {
		if set[b][VariantInitial] != "" {
			return b
		}
	}
	return ""
}

func decodeBase64(s string) ([]byte, error) {
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// Load builds the process-wide template store. An empty bundle selects the
// built-in set; a bundle that cannot be decoded or validated is logged and
// the built-in set is used instead. With no fallback configured, a bundle
// falls back to its first declared bucket. Load never fails.
func Load(encoded, fallback string, logger logging.Logger) *Store {
	if strings.TrimSpace(encoded) == "" {
		return defaultWithFallback(fallback, logger)
	}

	set, order, err := parseBundle(encoded)
	if err != nil {
		logger.WithError(err).Error("Template bundle rejected, using built-in templates")
		return defaultWithFallback(fallback, logger)
	}

	effective := fallback
	if effective == "" {
		effective = firstUsable(set, order)
	}
	store, dropped, err := NewStore(set, effective)
	if len(dropped) > 0 {
		logger.WithFields(logging.Fields{
			"buckets": dropped,
		}).Warn("Template buckets without an initial variant were ignored")
	}
	if err != nil {
		logger.WithError(err).WithFields(logging.Fields{
			"available": order,
			"fallback":  effective,
		}).Error("Template bundle rejected, using built-in templates")
		return defaultWithFallback(fallback, logger)
	}

	logger.WithFields(logging.Fields{
		"buckets":  store.Buckets(),
		"fallback": store.Fallback(),
	}).Info("Loaded template bundle")
	return store
}

func defaultWithFallback(fallback string, logger logging.Logger) *Store {
	if fallback == "" || fallback == DefaultFallback {
		return Default()
	}
	store, _, err := NewStore(DefaultSet(), fallback)
	if err != nil {
		logger.WithFields(logging.Fields{
			"fallback": fallback,
		}).Warn("Configured fallback bucket is not in the built-in templates, using " + DefaultFallback)
		return Default()
	}
	return store
}
