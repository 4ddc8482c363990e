// Package vocab holds the caliber and brand vocabularies used to extract
// normalized attributes from raw listing titles.
package vocab

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// UnknownToken is the extraction result for a title that matches nothing.
// Records carrying it still get matched, under deliberately low confidence.
const UnknownToken = "Unknown"

// caliberAliases maps lowercase title substrings to the canonical caliber
// label. Longer aliases are checked first so "9mm luger" wins over "9mm"
// ordering collisions within one title.
var caliberAliases = map[string]string{
	"9mm luger":     "9mm Luger",
	"9x19":          "9mm Luger",
	"9 mm":          "9mm Luger",
	"9mm":           "9mm Luger",
	".45 acp":       "45 ACP",
	"45 acp":        "45 ACP",
	".45acp":        "45 ACP",
	"45 auto":       "45 ACP",
	".40 s&w":       "40 S&W",
	"40 s&w":        "40 S&W",
	"40sw":          "40 S&W",
	".380 acp":      "380 ACP",
	"380 acp":       "380 ACP",
	"380 auto":      "380 ACP",
	"5.56 nato":     "5.56 NATO",
	"5.56x45":       "5.56 NATO",
	"5.56":          "5.56 NATO",
	".223 rem":      "223 Remington",
	"223 rem":       "223 Remington",
	".223":          "223 Remington",
	"223":           "223 Remington",
	"7.62x39":       "7.62x39",
	"7.62 nato":     "308 Winchester",
	".308 win":      "308 Winchester",
	"308 win":       "308 Winchester",
	".308":          "308 Winchester",
	"308":           "308 Winchester",
	"6.5 creedmoor": "6.5 Creedmoor",
	"6.5cm":         "6.5 Creedmoor",
	".22 lr":        "22 LR",
	"22 lr":         "22 LR",
	"22lr":          "22 LR",
	".22lr":         "22 LR",
	"12 gauge":      "12 Gauge",
	"12 ga":         "12 Gauge",
	"12ga":          "12 Gauge",
	"20 gauge":      "20 Gauge",
	"20 ga":         "20 Gauge",
	"20ga":          "20 Gauge",
	".30-06":        "30-06 Springfield",
	"30-06":         "30-06 Springfield",
	".357 mag":      "357 Magnum",
	"357 mag":       "357 Magnum",
	".357":          "357 Magnum",
	".38 special":   "38 Special",
	"38 special":    "38 Special",
	"38 spl":        "38 Special",
	"10mm":          "10mm Auto",
	"300 blackout":  "300 Blackout",
	"300 blk":       "300 Blackout",
	"300blk":        "300 Blackout",
}

// brandNames maps lowercase brand substrings to the canonical brand label.
var brandNames = map[string]string{
	"federal":        "Federal",
	"winchester":     "Winchester",
	"remington":      "Remington",
	"hornady":        "Hornady",
	"cci":            "CCI",
	"blazer":         "Blazer",
	"speer":          "Speer",
	"fiocchi":        "Fiocchi",
	"sellier":        "Sellier & Bellot",
	"s&b":            "Sellier & Bellot",
	"pmc":            "PMC",
	"magtech":        "Magtech",
	"tula":           "Tula",
	"wolf":           "Wolf",
	"norma":          "Norma",
	"aguila":         "Aguila",
	"sig sauer":      "Sig Sauer",
	"sig":            "Sig Sauer",
	"browning":       "Browning",
	"underwood":      "Underwood",
	"buffalo bore":   "Buffalo Bore",
	"nosler":         "Nosler",
	"barnes":         "Barnes",
	"american eagle": "American Eagle",
	"winclean":       "Winchester",
}

// Vocabulary resolves raw title text to normalized caliber and brand tokens.
type Vocabulary struct {
	calibers map[string]string
	brands   map[string]string
	// ordered longest-first for deterministic substring matching
	caliberKeys []string
	brandKeys   []string
}

// Overlay is the YAML shape operators use to extend the built-in
// vocabularies without a rebuild.
type Overlay struct {
	Calibers map[string]string `yaml:"calibers"`
	Brands   map[string]string `yaml:"brands"`
}

// Default returns the built-in vocabulary.
func Default() *Vocabulary {
	return build(nil)
}

// Load returns the built-in vocabulary extended with the YAML overlay at
// path. An empty path yields the defaults.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vocab: read overlay %s", path)
	}
	var ov Overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, eris.Wrapf(err, "vocab: parse overlay %s", path)
	}
	return build(&ov), nil
}

func build(ov *Overlay) *Vocabulary {
	v := &Vocabulary{
		calibers: make(map[string]string, len(caliberAliases)),
		brands:   make(map[string]string, len(brandNames)),
	}
	for k, val := range caliberAliases {
		v.calibers[k] = val
	}
	for k, val := range brandNames {
		v.brands[k] = val
	}
	if ov != nil {
		for k, val := range ov.Calibers {
			v.calibers[strings.ToLower(k)] = val
		}
		for k, val := range ov.Brands {
			v.brands[strings.ToLower(k)] = val
		}
	}
	v.caliberKeys = sortedByLength(v.calibers)
	v.brandKeys = sortedByLength(v.brands)
	return v
}

// sortedByLength orders keys longest first, ties broken lexicographically so
// matching is deterministic.
func sortedByLength(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Caliber returns the canonical caliber label found in the title, or
// UnknownToken when nothing matches.
func (v *Vocabulary) Caliber(title string) string {
	lower := strings.ToLower(title)
	for _, key := range v.caliberKeys {
		if strings.Contains(lower, key) {
			return v.calibers[key]
		}
	}
	return UnknownToken
}

// Brand returns the canonical brand label found in the title, or UnknownToken
// when nothing matches.
func (v *Vocabulary) Brand(title string) string {
	lower := strings.ToLower(title)
	for _, key := range v.brandKeys {
		if strings.Contains(lower, key) {
			return v.brands[key]
		}
	}
	return UnknownToken
}

// CaliberCount returns the number of known caliber aliases.
func (v *Vocabulary) CaliberCount() int { return len(v.calibers) }

// BrandCount returns the number of known brand aliases.
func (v *Vocabulary) BrandCount() int { return len(v.brands) }
