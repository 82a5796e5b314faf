// Package normalize holds the fixed lookup tables that map free text onto
// the graph's controlled vocabulary: country codes, news categories, macro
// themes and economic indicators.
package normalize

import (
	"sort"
	"strings"
	"unicode"
)

// Theme is a MacroTheme node.
type Theme struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Indicator is an EconomicIndicator node.
type Indicator struct {
	Code     string   `yaml:"code" json:"code"`
	Name     string   `yaml:"name" json:"name"`
	Country  string   `yaml:"country" json:"country"`
	Unit     string   `yaml:"unit" json:"unit"`
	Themes   []string `yaml:"themes" json:"themes"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Tables is one consistent set of lookup tables. The zero value is empty;
// use Default for the built-in set.
type Tables struct {
	countries  map[string]string
	supported  map[string]bool
	categories map[string]string
	themes     []Theme
	themeByID  map[string]int
	indicators []Indicator
	indByCode  map[string]int
}

var defaultTables = Default()

// Default returns a fresh copy of the built-in tables.
func Default() *Tables {
	t := &Tables{
		countries:  map[string]string{},
		supported:  map[string]bool{},
		categories: map[string]string{},
		themeByID:  map[string]int{},
		indByCode:  map[string]int{},
	}
	for code, aliases := range builtinCountries {
		t.AddCountry(code, aliases...)
	}
	for _, code := range builtinSupported {
		t.supported[code] = true
	}
	for category, theme := range builtinCategories {
		t.categories[Key(category)] = theme
	}
	for _, th := range builtinThemes {
		t.AddTheme(th)
	}
	for _, ind := range builtinIndicators {
		t.AddIndicator(ind)
	}
	return t
}

// SetDefault replaces the tables used by the package-level helpers.
func SetDefault(t *Tables) {
	if t != nil {
		defaultTables = t
	}
}

// Key is the lookup form of free text: lower case, punctuation dropped,
// whitespace collapsed.
func Key(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '/':
			space = true
		}
	}
	return b.String()
}

// AddCountry registers code and its aliases. The code itself is always an alias.
func (t *Tables) AddCountry(code string, aliases ...string) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return
	}
	t.countries[Key(code)] = code
	for _, a := range aliases {
		if k := Key(a); k != "" {
			t.countries[k] = code
		}
	}
}

// CountryCode maps free text such as "United States" or "U.S." to a country code.
func (t *Tables) CountryCode(text string) (string, bool) {
	code, ok := t.countries[Key(text)]
	return code, ok
}

func (t *Tables) IsSupportedCountry(code string) bool {
	return t.supported[strings.ToUpper(strings.TrimSpace(code))]
}

// SupportedCountries returns the allow-list in sorted order.
func (t *Tables) SupportedCountries() []string {
	out := make([]string, 0, len(t.supported))
	for c := range t.supported {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// CategoryTheme maps a news category to a theme id.
func (t *Tables) CategoryTheme(category string) (string, bool) {
	id, ok := t.categories[Key(category)]
	return id, ok
}

// AddTheme registers th or merges its keywords into an existing theme.
func (t *Tables) AddTheme(th Theme) {
	if th.ID == "" {
		return
	}
	if i, ok := t.themeByID[th.ID]; ok {
		existing := &t.themes[i]
		existing.Keywords = mergeKeywords(existing.Keywords, th.Keywords)
		if existing.Name == "" {
			existing.Name = th.Name
		}
		return
	}
	th.Keywords = mergeKeywords(nil, th.Keywords)
	t.themeByID[th.ID] = len(t.themes)
	t.themes = append(t.themes, th)
}

// AddIndicator registers ind or merges keywords and themes into an existing one.
func (t *Tables) AddIndicator(ind Indicator) {
	if ind.Code == "" {
		return
	}
	if i, ok := t.indByCode[ind.Code]; ok {
		existing := &t.indicators[i]
		existing.Keywords = mergeKeywords(existing.Keywords, ind.Keywords)
		existing.Themes = mergeKeywords(existing.Themes, ind.Themes)
		return
	}
	ind.Keywords = mergeKeywords(nil, ind.Keywords)
	t.indByCode[ind.Code] = len(t.indicators)
	t.indicators = append(t.indicators, ind)
}

func mergeKeywords(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst)+len(src))
	out := make([]string, 0, len(dst)+len(src))
	for _, list := range [][]string{dst, src} {
		for _, k := range list {
			k = strings.ToLower(strings.TrimSpace(k))
			if k == "" {
				continue
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func (t *Tables) Themes() []Theme {
	return append([]Theme(nil), t.themes...)
}

func (t *Tables) Theme(id string) (Theme, bool) {
	i, ok := t.themeByID[id]
	if !ok {
		return Theme{}, false
	}
	return t.themes[i], true
}

func (t *Tables) Indicators() []Indicator {
	return append([]Indicator(nil), t.indicators...)
}

func (t *Tables) Indicator(code string) (Indicator, bool) {
	i, ok := t.indByCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Indicator{}, false
	}
	return t.indicators[i], true
}

// ThemeID normalizes a model-provided theme label ("Monetary Policy",
// "monetary-policy") to a known theme id.
func (t *Tables) ThemeID(label string) (string, bool) {
	k := strings.ReplaceAll(Key(label), " ", "_")
	if _, ok := t.themeByID[k]; ok {
		return k, true
	}
	for _, th := range t.themes {
		if Key(th.Name) == Key(label) {
			return th.ID, true
		}
	}
	return "", false
}

type scored struct {
	id    string
	score int
	order int
}

func rank(items []scored) []string {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].order < items[j].order
	})
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s.id
	}
	return out
}

// keywordHits counts whole-phrase keyword occurrences in the padded key
// form of text.
func keywordHits(padded string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		k := Key(kw)
		if k == "" {
			continue
		}
		hits += strings.Count(padded, " "+k+" ")
	}
	return hits
}

// ThemesForText ranks theme ids by keyword hits in text, most hits first.
func (t *Tables) ThemesForText(text string) []string {
	padded := " " + Key(text) + " "
	var items []scored
	for i, th := range t.themes {
		if n := keywordHits(padded, append([]string{th.Name}, th.Keywords...)); n > 0 {
			items = append(items, scored{id: th.ID, score: n, order: i})
		}
	}
	return rank(items)
}

// IndicatorsForText ranks indicator codes by keyword hits in text.
func (t *Tables) IndicatorsForText(text string) []string {
	padded := " " + Key(text) + " "
	var items []scored
	for i, ind := range t.indicators {
		kws := append([]string{ind.Code, ind.Name}, ind.Keywords...)
		if n := keywordHits(padded, kws); n > 0 {
			items = append(items, scored{id: ind.Code, score: n, order: i})
		}
	}
	return rank(items)
}

// IndicatorsForTheme lists indicator codes tagged with themeID.
func (t *Tables) IndicatorsForTheme(themeID string) []string {
	var out []string
	for _, ind := range t.indicators {
		for _, th := range ind.Themes {
			if th == themeID {
				out = append(out, ind.Code)
				break
			}
		}
	}
	return out
}

func CountryCode(text string) (string, bool)        { return defaultTables.CountryCode(text) }
func IsSupportedCountry(code string) bool           { return defaultTables.IsSupportedCountry(code) }
func CategoryTheme(category string) (string, bool)  { return defaultTables.CategoryTheme(category) }
func ThemeID(label string) (string, bool)           { return defaultTables.ThemeID(label) }
func ThemesForText(text string) []string            { return defaultTables.ThemesForText(text) }
func IndicatorsForText(text string) []string        { return defaultTables.IndicatorsForText(text) }
func Themes() []Theme                               { return defaultTables.Themes() }
func Indicators() []Indicator                       { return defaultTables.Indicators() }
func LookupIndicator(code string) (Indicator, bool) { return defaultTables.Indicator(code) }
