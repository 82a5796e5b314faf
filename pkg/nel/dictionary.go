package nel

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/OFFIS-RIT/macrokg/pkg/common"

	"gopkg.in/yaml.v3"
)

// Dictionary maps aliases to canonical entities.
type Dictionary struct {
	entities map[string]common.Entity
	order    []string
	exact    map[string]string
	stripped map[string]string
	surfaces []string
}

func NewDictionary() *Dictionary {
	return &Dictionary{
		entities: map[string]common.Entity{},
		exact:    map[string]string{},
		stripped: map[string]string{},
	}
}

// DefaultDictionary returns the built-in macro entity dictionary.
func DefaultDictionary() *Dictionary {
	d := NewDictionary()
	for _, e := range builtinEntities {
		d.Add(e)
	}
	return d
}

// Add registers e under its name and aliases. Adding an existing id merges
// the aliases. The first entity to claim an alias keeps it.
func (d *Dictionary) Add(e common.Entity) {
	if e.ID == "" || e.Name == "" {
		return
	}
	if existing, ok := d.entities[e.ID]; ok {
		existing.Aliases = append(existing.Aliases, e.Aliases...)
		e = existing
	} else {
		d.order = append(d.order, e.ID)
	}
	d.entities[e.ID] = e

	for _, alias := range append([]string{e.Name}, e.Aliases...) {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		if k := normalizeMention(alias); k != "" {
			if _, taken := d.exact[k]; !taken {
				d.exact[k] = e.ID
			}
		}
		if k := stripPunctuation(alias); k != "" {
			if _, taken := d.stripped[k]; !taken {
				d.stripped[k] = e.ID
			}
		}
		d.addSurface(alias)
	}
}

func (d *Dictionary) addSurface(s string) {
	for _, existing := range d.surfaces {
		if existing == s {
			return
		}
	}
	d.surfaces = append(d.surfaces, s)
	// longest first so "Federal Reserve Board" wins over "Federal Reserve"
	sort.SliceStable(d.surfaces, func(i, j int) bool {
		return len(d.surfaces[i]) > len(d.surfaces[j])
	})
}

func (d *Dictionary) Entity(id string) (common.Entity, bool) {
	e, ok := d.entities[id]
	return e, ok
}

func (d *Dictionary) Len() int { return len(d.order) }

// Surfaces returns the aliases as written, longest first.
func (d *Dictionary) Surfaces() []string {
	return append([]string(nil), d.surfaces...)
}

// normalizeMention lower-cases s, collapses whitespace and drops a leading
// "the".
func normalizeMention(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	s = strings.TrimPrefix(s, "the ")
	return strings.TrimSpace(s)
}

// stripPunctuation is normalizeMention with dots and apostrophes removed
// and every other non-alphanumeric rune turned into a space, so "U.S." and
// "US-" both become "us".
func stripPunctuation(s string) string {
	s = normalizeMention(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == '\'' || r == '’':
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

type aliasFile struct {
	Entities []common.Entity `yaml:"entities"`
}

// LoadAliases extends d with the entities listed in a YAML file:
//
//	entities:
//	  - id: ent:bank_of_japan
//	    name: Bank of Japan
//	    type: central_bank
//	    aliases: [BOJ, BoJ]
func (d *Dictionary) LoadAliases(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read alias file: %w", err)
	}
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse alias file: %w", err)
	}
	for _, e := range f.Entities {
		d.Add(e)
	}
	return nil
}
