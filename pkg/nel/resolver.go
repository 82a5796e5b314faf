// Package nel detects entity mentions in text and links them to canonical
// entities through a tiered alias lookup.
package nel

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
)

type Kind string

const (
	KindAcronym    Kind = "acronym"
	KindPerson     Kind = "person"
	KindDefinite   Kind = "definite"
	KindTicker     Kind = "ticker"
	KindDictionary Kind = "dictionary"
	KindCandidate  Kind = "candidate"
)

type Tier string

const (
	TierExact     Tier = "exact"
	TierStripped  Tier = "stripped"
	TierSubstring Tier = "substring"
)

// Fixed confidence per lookup tier.
var tierConfidence = map[Tier]float64{
	TierExact:     0.95,
	TierStripped:  0.9,
	TierSubstring: 0.75,
}

const (
	DefaultMinConfidence = 0.7
	minSubstringLen      = 3
)

// Mention is a span of text and, when resolved, the entity it refers to.
// Start and End are byte offsets; both are -1 for candidates not found in
// the text.
type Mention struct {
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Kind       Kind    `json:"kind"`
	Resolved   bool    `json:"resolved"`
	EntityID   string  `json:"entity_id,omitempty"`
	Name       string  `json:"name,omitempty"`
	EntityType string  `json:"entity_type,omitempty"`
	Tier       Tier    `json:"tier,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Entity returns the canonical entity of a resolved mention.
func (m Mention) Entity() common.Entity {
	return common.Entity{ID: m.EntityID, Name: m.Name, Type: m.EntityType}
}

// Match is a dictionary lookup result.
type Match struct {
	Entity     common.Entity
	Tier       Tier
	Confidence float64
}

// Unresolved is a frequently seen mention with no dictionary entry.
type Unresolved struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

type ResolverParams struct {
	Dictionary    *Dictionary
	MinConfidence float64
	// Tickers are extra symbols detected as ticker mentions, on top of the
	// upper-case dictionary aliases.
	Tickers []string
}

// Resolver is safe for concurrent use.
type Resolver struct {
	dict     *Dictionary
	minConf  float64
	tickers  []string
	surfaces []string

	mu         sync.Mutex
	unresolved map[string]int
	display    map[string]string
}

var (
	reAcronym  = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,5}\b|\b(?:[A-Z]\.){2,}`)
	rePerson   = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z]\.)? [A-Z][a-z]+\b`)
	reDefinite = regexp.MustCompile(`\b[Tt]he ([A-Z][\w&-]*(?: (?:of |for |and )?[A-Z][\w&-]*)*)`)
)

// common capitalized words that start person-like spans at sentence starts
var personStopwords = map[string]bool{
	"The": true, "This": true, "That": true, "In": true, "On": true, "At": true,
	"But": true, "And": true, "For": true, "While": true, "After": true,
	"Before": true, "When": true, "New": true, "Last": true, "Next": true,
}

func NewResolver(params ResolverParams) *Resolver {
	dict := params.Dictionary
	if dict == nil {
		dict = DefaultDictionary()
	}
	minConf := params.MinConfidence
	if minConf <= 0 {
		minConf = DefaultMinConfidence
	}
	r := &Resolver{
		dict:       dict,
		minConf:    minConf,
		unresolved: map[string]int{},
		display:    map[string]string{},
	}
	r.tickers = longestFirst(params.Tickers)
	var surfaces []string
	for _, s := range dict.Surfaces() {
		first, _ := utf8.DecodeRuneInString(s)
		// lower-case aliases like "won" or "dollar" only resolve via lookup
		if unicode.IsUpper(first) || first > unicode.MaxASCII {
			surfaces = append(surfaces, s)
		}
	}
	r.surfaces = longestFirst(surfaces)
	return r
}

// findSurfaces locates every occurrence of the given literal forms that
// sits on word boundaries. Longer forms claim overlapping text first.
func findSurfaces(text string, forms []string) [][2]int {
	if len(forms) == 0 {
		return nil
	}
	var found [][2]int
	covered := func(start, end int) bool {
		for _, f := range found {
			if start < f[1] && end > f[0] {
				return true
			}
		}
		return false
	}
	for _, form := range forms {
		if form == "" {
			continue
		}
		for offset := 0; offset < len(text); {
			i := strings.Index(text[offset:], form)
			if i < 0 {
				break
			}
			start := offset + i
			end := start + len(form)
			offset = start + 1
			if !boundaryBefore(text, start) || !boundaryAfter(text, end) || covered(start, end) {
				continue
			}
			found = append(found, [2]int{start, end})
		}
	}
	return found
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func longestFirst(words []string) []string {
	sorted := append([]string(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	return sorted
}

// Lookup resolves a mention string through the exact, punctuation-stripped
// and substring tiers, in that order.
func (r *Resolver) Lookup(text string) (Match, bool) {
	exact := normalizeMention(text)
	if exact == "" {
		return Match{}, false
	}
	if id, ok := r.dict.exact[exact]; ok {
		return r.match(id, TierExact), true
	}
	stripped := stripPunctuation(text)
	if id, ok := r.dict.stripped[stripped]; ok {
		return r.match(id, TierStripped), true
	}
	if utf8.RuneCountInString(stripped) < minSubstringLen {
		return Match{}, false
	}

	bestID, bestLen := "", 0
	keys := make([]string, 0, len(r.dict.stripped))
	for k := range r.dict.stripped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, alias := range keys {
		if utf8.RuneCountInString(alias) < minSubstringLen {
			continue
		}
		if !containsWord(alias, stripped) && !containsWord(stripped, alias) {
			continue
		}
		if len(alias) > bestLen {
			bestID, bestLen = r.dict.stripped[alias], len(alias)
		}
	}
	if bestID == "" {
		return Match{}, false
	}
	return r.match(bestID, TierSubstring), true
}

// containsWord reports whether needle occurs in haystack on word boundaries.
func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	padded := " " + haystack + " "
	return strings.Contains(padded, " "+needle+" ")
}

func (r *Resolver) match(id string, tier Tier) Match {
	e, _ := r.dict.Entity(id)
	return Match{Entity: e, Tier: tier, Confidence: tierConfidence[tier]}
}

func (r *Resolver) accept(m Match, ok bool) bool {
	return ok && m.Confidence >= r.minConf
}

// Link is Lookup gated by the minimum confidence. It does not touch the
// unresolved counter.
func (r *Resolver) Link(text string) (common.Entity, bool) {
	m, ok := r.Lookup(text)
	if !r.accept(m, ok) {
		return common.Entity{}, false
	}
	return m.Entity, true
}

// Resolve detects pattern and dictionary mentions in text and returns the
// resolved ones ordered by position, one per entity.
func (r *Resolver) Resolve(text string) []Mention {
	return r.ResolveWithCandidates(text, nil)
}

// ResolveWithCandidates is Resolve plus externally supplied entity names,
// such as names proposed by the extraction model. Candidates are always
// returned, resolved or not.
func (r *Resolver) ResolveWithCandidates(text string, candidates []string) []Mention {
	spans := r.detect(text)

	seen := map[string]bool{}
	var out []Mention
	for _, sp := range spans {
		m, ok := r.Lookup(sp.Text)
		if !r.accept(m, ok) {
			r.countUnresolved(sp.Text)
			continue
		}
		if seen[m.Entity.ID] {
			continue
		}
		seen[m.Entity.ID] = true
		out = append(out, resolvedMention(sp, m))
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		sp := Mention{Text: c, Start: -1, End: -1, Kind: KindCandidate}
		if start, end, ok := indexFold(text, c); ok {
			sp.Start, sp.End = start, end
		}
		m, ok := r.Lookup(c)
		if !r.accept(m, ok) {
			r.countUnresolved(c)
			key := "raw:" + normalizeMention(c)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, sp)
			continue
		}
		if seen[m.Entity.ID] {
			continue
		}
		seen[m.Entity.ID] = true
		out = append(out, resolvedMention(sp, m))
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Start, out[j].Start
		if pi < 0 {
			pi = len(text) + 1
		}
		if pj < 0 {
			pj = len(text) + 1
		}
		return pi < pj
	})
	return out
}

// indexFold finds the first case-insensitive occurrence of sub and returns
// its byte span in text. Folding can change byte lengths, so the span is
// measured on text itself.
func indexFold(text, sub string) (int, int, bool) {
	n := utf8.RuneCountInString(sub)
	for start := 0; start < len(text); {
		end := start
		for k := 0; k < n && end < len(text); k++ {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
		}
		if strings.EqualFold(text[start:end], sub) {
			return start, end, true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		start += size
	}
	return 0, 0, false
}

func resolvedMention(sp Mention, m Match) Mention {
	sp.Resolved = true
	sp.EntityID = m.Entity.ID
	sp.Name = m.Entity.Name
	sp.EntityType = m.Entity.Type
	sp.Tier = m.Tier
	sp.Confidence = m.Confidence
	return sp
}

// detect returns candidate spans from the patterns, longest span first at
// each position.
func (r *Resolver) detect(text string) []Mention {
	var spans []Mention
	add := func(kind Kind, start, end int) {
		if start < 0 || end <= start {
			return
		}
		spans = append(spans, Mention{Text: text[start:end], Start: start, End: end, Kind: kind})
	}

	for _, loc := range findSurfaces(text, r.surfaces) {
		add(KindDictionary, loc[0], loc[1])
	}
	for _, loc := range findSurfaces(text, r.tickers) {
		add(KindTicker, loc[0], loc[1])
	}
	for _, loc := range reDefinite.FindAllStringSubmatchIndex(text, -1) {
		add(KindDefinite, loc[2], loc[3])
	}
	for _, loc := range reAcronym.FindAllStringIndex(text, -1) {
		add(KindAcronym, loc[0], loc[1])
	}
	for _, loc := range rePerson.FindAllStringIndex(text, -1) {
		first := text[loc[0]:loc[1]]
		if sp := strings.IndexByte(first, ' '); sp > 0 && personStopwords[first[:sp]] {
			continue
		}
		add(KindPerson, loc[0], loc[1])
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End-spans[i].Start > spans[j].End-spans[j].Start
	})
	out := spans[:0]
	for _, sp := range spans {
		if n := len(out); n > 0 && sp.Start == out[n-1].Start && sp.End == out[n-1].End {
			continue
		}
		out = append(out, sp)
	}
	return out
}

func (r *Resolver) countUnresolved(text string) {
	k := normalizeMention(text)
	if k == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unresolved[k]++
	if _, ok := r.display[k]; !ok {
		r.display[k] = strings.TrimSpace(text)
	}
}

// TopUnresolved returns the n most frequent unresolved mentions, most
// frequent first. Ties sort alphabetically.
func (r *Resolver) TopUnresolved(n int) []Unresolved {
	r.mu.Lock()
	out := make([]Unresolved, 0, len(r.unresolved))
	for k, c := range r.unresolved {
		out = append(out, Unresolved{Text: r.display[k], Count: c})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Text < out[j].Text
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ResetUnresolved clears the unresolved-frequency table.
func (r *Resolver) ResetUnresolved() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unresolved = map[string]int{}
	r.display = map[string]string{}
}
