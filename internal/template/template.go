package template

import (
	"fmt"
	"regexp"
	"sort"
)

// Variant names every bucket may define. Only VariantInitial is mandatory.
const (
	VariantInitial     = "initial"
	VariantFollowup48h = "followup_48h"
	VariantFollowup7d  = "followup_7d"
	VariantDerivation  = "derivation"
)

// DefaultFallback is the bucket used when a lookup names a bucket the set does not have.
const DefaultFallback = "travel"

// Set maps bucket -> variant -> template text.
type Set map[string]map[string]string

// Vars holds per-event placeholder values.
type Vars map[string]string

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

var defaultSet = Set{
	"travel": {
		VariantInitial:     "Hola {nombre} ✈️ — gracias por comentar en «{post_titulo}». ¿maleta ligera o todo incluido?",
		VariantFollowup48h: "Hola {nombre} — ¿te mando la mini-guía por aquí o prefieres WhatsApp? {wa_link}",
		VariantFollowup7d:  "Hola {nombre} — si quieres la guía solo di 'sí' y te la paso.",
		VariantDerivation:  "Te lo paso por WhatsApp: {wa_link}",
	},
	"growth": {
		VariantInitial:     "Hola {nombre} 🌱 — gracias por comentar. ¿Quieres una mini-rutina de 5 minutos?",
		VariantFollowup48h: "Hola {nombre}, ¿te interesa la guía de 30 días? {form_link}",
		VariantFollowup7d:  "Hola {nombre} — si quieres la rutina adaptada dímelo y te la envío.",
		VariantDerivation:  "Descarga la guía: {form_link} o escríbeme por WhatsApp: {wa_link}",
	},
	"business": {
		VariantInitial:     "Hola {nombre} 🚀 — gracias por comentar. ¿Quieres la plantilla para validar en 7 días?",
		VariantFollowup48h: "Hola {nombre}, ¿te la envío por WhatsApp? {wa_link}",
		VariantFollowup7d:  "Hola {nombre} — ¿te doy feedback en 3 líneas si me cuentas tu idea?",
		VariantDerivation:  "Validemos por WhatsApp: {wa_link} o descarga aquí: {form_link}",
	},
}

// DefaultSet returns a copy of the built-in template set.
func DefaultSet() Set {
	return defaultSet.clone()
}

func (s Set) clone() Set {
	out := make(Set, len(s))
	for bucket, variants := range s {
		vs := make(map[string]string, len(variants))
		for name, text := range variants {
			vs[name] = text
		}
		out[bucket] = vs
	}
	return out
}

// Store renders reply templates. It is immutable once built and safe for
// concurrent use.
type Store struct {
	set      Set
	fallback string
}

// NewStore validates set and wraps it. Buckets without an initial variant are
// removed, so lookups for them go to the fallback bucket, which must survive
// that pruning.
func NewStore(set Set, fallback string) (*Store, []string, error) {
	if len(set) == 0 {
		return nil, nil, fmt.Errorf("template set is empty")
	}
	if fallback == "" {
		fallback = DefaultFallback
	}

	pruned := set.clone()
	var dropped []string
	for bucket, variants := range pruned {
		if variants[VariantInitial] == "" {
			delete(pruned, bucket)
			dropped = append(dropped, bucket)
		}
	}
	sort.Strings(dropped)

	if _, ok := pruned[fallback]; !ok {
		return nil, dropped, fmt.Errorf("fallback bucket %q has no %s template", fallback, VariantInitial)
	}
	return &Store{set: pruned, fallback: fallback}, dropped, nil
}

// Default returns a store over the built-in set.
func Default() *Store {
	return &Store{set: DefaultSet(), fallback: DefaultFallback}
}

// Resolve returns the bucket whose templates a lookup for bucket will use.
func (s *Store) Resolve(bucket string) string {
	if _, ok := s.set[bucket]; ok {
		return bucket
	}
	return s.fallback
}

// Has reports whether the set defines bucket.
func (s *Store) Has(bucket string) bool {
	_, ok := s.set[bucket]
	return ok
}

// Fallback returns the bucket substituted for unknown buckets.
func (s *Store) Fallback() string { return s.fallback }

// Render fills the variant template of bucket with vars. Unknown buckets use
// the fallback bucket; an undefined variant renders as "".
func (s *Store) Render(bucket, variant string, vars Vars) string {
	return Fill(s.set[s.Resolve(bucket)][variant], vars)
}

// Fill replaces every {name} token (name = word characters) with vars[name],
// or "" when the variable is absent. Other brace text is left untouched.
func Fill(text string, vars Vars) string {
	if text == "" {
		return ""
	}
	return placeholder.ReplaceAllStringFunc(text, func(tok string) string {
		return vars[tok[1:len(tok)-1]]
	})
}

// Buckets returns the defined buckets in sorted order.
func (s *Store) Buckets() []string {
	out := make([]string, 0, len(s.set))
	for b := range s.set {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Variants returns the variants defined for bucket in sorted order.
func (s *Store) Variants(bucket string) []string {
	variants := s.set[bucket]
	out := make([]string, 0, len(variants))
	for v := range variants {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
