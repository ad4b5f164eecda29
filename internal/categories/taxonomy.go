// Package categories maps free-form category strings from extraction onto
// the controlled taxonomy used for navigation.
package categories

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Taxonomy struct {
	Canonical []string          `yaml:"canonical"`
	Synonyms  map[string]string `yaml:"synonyms"`

	canonical map[string]bool
	synonyms  map[string]string
}

var defaultCanonical = []string{
	"padel", "pickleball", "badminton", "tennis", "squash", "table_tennis",
	"gym", "swimming", "spa", "cafe", "restaurant", "chess", "escape room",
	"climbing", "martial arts", "yoga", "pilates", "football",
}

var defaultSynonyms = map[string]string{
	// racquet sports
	"paddle tennis":     "padel",
	"padel tennis":      "padel",
	"glass-back squash": "squash",
	"ping pong":         "table_tennis",
	"table tennis":      "table_tennis",

	"swimming pool": "swimming",
	"indoor pool":   "swimming",
	"outdoor pool":  "swimming",
	"aqua aerobics": "swimming",

	"wellness":    "spa",
	"sauna":       "spa",
	"steam room":  "spa",
	"hydro pool":  "spa",
	"hot tub":     "spa",
	"spa retreat": "spa",

	"creche":       "family",
	"childcare":    "family",
	"kids":         "family",
	"kids club":    "family",
	"junior":       "family",
	"holiday club": "family",

	"dining": "restaurant",
	"coffee": "cafe",

	"5-a-side football": "football",
	"7-a-side football": "football",
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	t := &Taxonomy{
		Canonical: append([]string{}, defaultCanonical...),
		Synonyms:  make(map[string]string, len(defaultSynonyms)),
	}
	for k, v := range defaultSynonyms {
		t.Synonyms[k] = v
	}
	t.index()
	return t
}

// Load reads a yaml taxonomy file and layers it over the defaults.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	var extra Taxonomy
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse taxonomy yaml: %w", err)
	}
	t := Default()
	t.Canonical = append(t.Canonical, extra.Canonical...)
	for k, v := range extra.Synonyms {
		t.Synonyms[k] = v
	}
	t.index()
	return t, nil
}

func (t *Taxonomy) index() {
	t.canonical = make(map[string]bool, len(t.Canonical))
	for _, c := range t.Canonical {
		t.canonical[normalizeToken(c)] = true
	}
	t.synonyms = make(map[string]string, len(t.Synonyms))
	for k, v := range t.Synonyms {
		t.synonyms[normalizeToken(k)] = normalizeToken(v)
	}
}

// Map converts raw category strings into sorted, de-duplicated canonical
// categories. Unrecognised entries are dropped.
func (t *Taxonomy) Map(raw []string) []string {
	mapped := make(map[string]bool)
	for _, item := range raw {
		key := normalizeToken(item)
		if key == "" {
			continue
		}
		if c, ok := t.synonyms[key]; ok {
			mapped[c] = true
			continue
		}
		if t.canonical[key] {
			mapped[key] = true
		}
	}
	out := make([]string, 0, len(mapped))
	for c := range mapped {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Strings extracts the string items of a JSON-like list value.
func Strings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{x}
	}
	return nil
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
