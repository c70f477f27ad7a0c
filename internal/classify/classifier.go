package classify

import (
	"regexp"
	"strings"
)

// Bucket is the topical category assigned to inbound text.
type Bucket string

const (
	BucketTravel   Bucket = "travel"
	BucketGrowth   Bucket = "growth"
	BucketBusiness Bucket = "business"
	BucketUnknown  Bucket = "unknown" // No rule matched
)

// Rule maps a keyword pattern to a bucket. Patterns match anywhere in the
// lower-cased text, not on word boundaries.
type Rule struct {
	Bucket   Bucket
	Keywords []string
	pattern  *regexp.Regexp
}

// NewRule compiles keywords into a single alternation. Keywords are quoted,
// so regexp metacharacters in them are matched literally.
func NewRule(bucket Bucket, keywords ...string) Rule {
	quoted := make([]string, 0, len(keywords))
	kept := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		kept = append(kept, k)
		quoted = append(quoted, regexp.QuoteMeta(k))
	}
	r := Rule{Bucket: bucket, Keywords: kept}
	if len(quoted) > 0 {
		r.pattern = regexp.MustCompile(strings.Join(quoted, "|"))
	}
	return r
}

// Match reports whether any keyword occurs in already lower-cased text.
func (r Rule) Match(lower string) bool {
	return r.pattern != nil && r.pattern.MatchString(lower)
}

// Default rules, evaluated in order. A text can hit several of them (for
// example "curso de viaje"); the earliest rule wins.
var defaultRules = []Rule{
	NewRule(BucketTravel,
		"trip", "destination", "cruise", "route", "flight", "suitcase",
		"viaje", "destino", "crucero", "ruta", "vuelo", "maleta"),
	NewRule(BucketGrowth,
		"routine", "habit", "mindset", "challenge", "30",
		"rutina", "hábito", "habito", "mentalidad", "reto"),
	NewRule(BucketBusiness,
		"launch", "course", "entrepreneur", "funnel", "webinar", "email", "sale",
		"lanzo", "lanzamiento", "curso", "emprend", "venta"),
}

// DefaultRules returns a copy of the built-in ordered rule list.
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}

// Classifier assigns a bucket to free-form text using an ordered rule list.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// New creates a classifier over rules. An empty list uses the defaults.
func New(rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify returns the bucket of the first matching rule, or BucketUnknown
// when the text is empty or nothing matches.
func (c *Classifier) Classify(text string) Bucket {
	if text == "" {
		return BucketUnknown
	}
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		if r.Match(lower) {
			return r.Bucket
		}
	}
	return BucketUnknown
}

// Rules returns the active rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}
