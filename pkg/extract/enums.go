package extract

import (
	"sort"
	"strconv"
	"strings"
)

// Enum maps free-text model output onto a closed set of values. Anything
// that matches no value or alias becomes Default.
type Enum struct {
	Name    string
	Default string
	values  []string
	aliases map[string]string
}

func enumKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '/', '.':
			return '_'
		}
		return r
	}, s)
}

// NewEnum builds an Enum from canonical values and their aliases. Each
// canonical value is also an alias of itself.
func NewEnum(name, def string, values map[string][]string) *Enum {
	e := &Enum{Name: name, Default: def, aliases: map[string]string{}}
	for v, as := range values {
		e.values = append(e.values, v)
		e.aliases[enumKey(v)] = v
		for _, a := range as {
			e.aliases[enumKey(a)] = v
		}
	}
	sort.Strings(e.values)
	return e
}

// Normalize returns the canonical value for raw.
func (e *Enum) Normalize(raw string) string {
	if v, ok := e.aliases[enumKey(raw)]; ok {
		return v
	}
	return e.Default
}

// Lookup is Normalize without the default.
func (e *Enum) Lookup(raw string) (string, bool) {
	v, ok := e.aliases[enumKey(raw)]
	return v, ok
}

func (e *Enum) Values() []string {
	return append([]string(nil), e.values...)
}

var FactTypes = NewEnum("fact_type", "statement", map[string][]string{
	"statistic":       {"stat", "data", "data_release", "figure", "number", "metric", "statistics", "economic_data"},
	"policy_decision": {"policy", "decision", "rate_decision", "policy_action", "regulation"},
	"forecast":        {"projection", "outlook", "estimate", "expectation", "guidance"},
	"statement":       {"fact", "event", "other", "general", "announcement"},
	"market_move":     {"market", "price_move", "market_movement", "price", "rally", "selloff", "sell_off"},
})

var ClaimTypes = NewEnum("claim_type", "assessment", map[string][]string{
	"prediction":  {"forecast", "projection", "expectation", "predict"},
	"opinion":     {"view", "belief", "commentary", "editorial"},
	"assessment":  {"analysis", "evaluation", "judgement", "judgment", "interpretation"},
	"attribution": {"quote", "quotation", "statement", "said", "attributed"},
})

var Sentiments = NewEnum("sentiment", "neutral", map[string][]string{
	"positive": {"pos", "bullish", "optimistic", "upbeat", "favorable", "favourable", "good", "+"},
	"negative": {"neg", "bearish", "pessimistic", "unfavorable", "unfavourable", "bad", "-"},
	"neutral":  {"none", "n_a", "na", "flat", "unchanged", "balanced"},
	"mixed":    {"ambiguous", "uncertain", "both"},
})

var LinkRelationships = NewEnum("relationship", "RELATED_TO", map[string][]string{
	"AFFECTS":     {"affect", "impacts", "impact", "influences", "influence", "moves"},
	"CAUSES":      {"cause", "caused", "leads_to", "triggers", "results_in", "drives"},
	"MENTIONS":    {"mention", "mentioned", "references", "refers_to"},
	"ABOUT_THEME": {"about", "theme", "about_topic", "topic"},
	"RELATED_TO":  {"related", "relates_to", "associated", "associated_with", "linked"},
})

var Confidences = NewEnum("confidence", "medium", map[string][]string{
	"high":   {"very_high", "strong", "certain", "confident"},
	"medium": {"moderate", "mid", "average", "med"},
	"low":    {"very_low", "weak", "uncertain", "speculative"},
})

var ImpactLevels = NewEnum("impact_level", "medium", map[string][]string{
	"high":   {"major", "significant", "strong", "large", "severe"},
	"medium": {"moderate", "mid", "med"},
	"low":    {"minor", "small", "limited", "weak", "negligible"},
})

var Polarities = NewEnum("polarity", "neutral", map[string][]string{
	"positive": {"up", "increase", "increases", "rise", "higher", "pos", "+", "bullish"},
	"negative": {"down", "decrease", "decreases", "fall", "lower", "neg", "-", "bearish"},
	"neutral":  {"none", "flat", "unchanged", "unclear", "mixed"},
})

var levelScore = map[string]float64{
	"high":   0.9,
	"medium": 0.6,
	"low":    0.3,
}

// ConfidenceScore turns a label ("high") or a number ("0.8", "80%", "80")
// into a score in [0,1]. Bare numbers below 2 are read on the unit scale,
// so a slight overshoot like 1.2 clamps to 1.
func ConfidenceScore(raw string) float64 {
	s := strings.TrimSpace(raw)
	pct := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if pct || f >= 2 {
			f /= 100
		}
		return min(max(f, 0), 1)
	}
	return levelScore[Confidences.Normalize(raw)]
}

// ImpactWeight is the initial AFFECTS weight for an impact level.
func ImpactWeight(level string) float64 {
	return levelScore[ImpactLevels.Normalize(level)]
}

// parseValue reads a numeric fact value out of strings like "3.2%",
// "1,200" or "-0.5".
func parseValue(raw string) *float64 {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
