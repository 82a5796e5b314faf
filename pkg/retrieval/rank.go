package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/normalize"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "what": true, "how": true,
	"why": true, "are": true, "was": true, "were": true, "has": true, "have": true,
	"did": true, "does": true, "this": true, "that": true, "from": true, "into": true,
	"about": true, "over": true, "last": true, "past": true, "week": true, "weeks": true,
	"month": true, "months": true, "days": true, "recent": true, "recently": true,
	"been": true, "will": true, "which": true, "who": true, "when": true, "there": true,
}

// queryTerms are the distinct non-stopword terms of a question in order.
func queryTerms(question string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range util.Terms(question, 2) {
		if stopwords[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// rankByOverlap scores documents by the distinct question terms found in
// their text, with title hits counting twice. Documents without any hit are
// dropped; equal scores keep their input order.
func rankByOverlap(docs []Document, terms []string) []Document {
	if len(terms) == 0 {
		return nil
	}
	var out []Document
	for _, d := range docs {
		title := termSet(d.Title)
		body := termSet(d.text)
		score := 0
		for _, t := range terms {
			if title[t] {
				score += 2
			} else if body[t] {
				score++
			}
		}
		if score == 0 {
			continue
		}
		d.Score = float64(score)
		d.Origin = "fallback"
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func termSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, t := range util.Terms(s, 2) {
		out[t] = true
	}
	return out
}

// mergeDocuments concatenates the lists in precedence order and keeps the
// first occurrence of every id.
func mergeDocuments(lists ...[]Document) []Document {
	seen := map[string]bool{}
	var out []Document
	for _, l := range lists {
		for _, d := range l {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			out = append(out, d)
		}
	}
	return out
}

func inScope(rowCountry, want string, tables *normalize.Tables) bool {
	switch {
	case rowCountry == "":
		return true
	case !tables.IsSupportedCountry(rowCountry):
		return false
	default:
		return want == "" || rowCountry == want
	}
}

func admitted(docs []Document, want string, tables *normalize.Tables) []Document {
	var out []Document
	for _, d := range docs {
		if inScope(d.Country, want, tables) {
			out = append(out, d)
		}
	}
	return out
}

// admit counts the scope warning a row raises and reports whether it stays.
func (w *ScopeWarnings) admit(rowCountry, want string, tables *normalize.Tables) bool {
	switch {
	case rowCountry == "":
		if want != "" {
			w.MissingCountry++
		}
		return true
	case !tables.IsSupportedCountry(rowCountry):
		w.OutOfScope++
		return false
	case want != "" && rowCountry != want:
		w.CountryMismatch++
		return false
	}
	return true
}

func (w *ScopeWarnings) filterDocuments(docs []Document, want string, tables *normalize.Tables) []Document {
	out := docs[:0]
	for _, d := range docs {
		if w.admit(d.Country, want, tables) {
			out = append(out, d)
		}
	}
	return out
}

func (w *ScopeWarnings) filterEvents(events []Event, want string, tables *normalize.Tables) []Event {
	out := events[:0]
	for _, e := range events {
		if w.admit(e.Country, want, tables) {
			out = append(out, e)
		}
	}
	return out
}

func (w *ScopeWarnings) summarize() {
	if w.MissingCountry > 0 {
		w.Messages = append(w.Messages, fmt.Sprintf("%d rows without a country were kept", w.MissingCountry))
	}
	if w.CountryMismatch > 0 {
		w.Messages = append(w.Messages, fmt.Sprintf("%d rows of another country were dropped", w.CountryMismatch))
	}
	if w.OutOfScope > 0 {
		w.Messages = append(w.Messages, fmt.Sprintf("%d rows outside the supported countries were dropped", w.OutOfScope))
	}
}

// frequentThemes returns the n themes attached to the most documents.
func frequentThemes(docs []Document, n int) []string {
	counts := map[string]int{}
	for _, d := range docs {
		for _, th := range d.Themes {
			counts[th]++
		}
	}
	out := make([]string, 0, len(counts))
	for th := range counts {
		out = append(out, th)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func maxWeight(e Event) float64 {
	best := 0.0
	for _, a := range e.Affects {
		best = max(best, a.Weight)
	}
	return best
}

// selectEvents keeps events about any of themes or affecting any of
// indicators, strongest AFFECTS weight first. Without themes and
// indicators every event qualifies.
func selectEvents(events []Event, themes, indicators []string, limit int) []Event {
	want := map[string]bool{}
	for _, th := range themes {
		want["t:"+th] = true
	}
	for _, c := range indicators {
		want["i:"+c] = true
	}
	var out []Event
	for _, e := range events {
		match := len(want) == 0
		for _, th := range e.Themes {
			match = match || want["t:"+th]
		}
		for _, a := range e.Affects {
			match = match || want["i:"+a.Code]
		}
		if match {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return maxWeight(out[i]) > maxWeight(out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// selectStories puts stories of the requested themes first.
func selectStories(stories []Story, themes []string, limit int) []Story {
	want := map[string]bool{}
	for _, th := range themes {
		want[th] = true
	}
	out := append([]Story(nil), stories...)
	sort.SliceStable(out, func(i, j int) bool { return want[out[i].Theme] && !want[out[j].Theme] })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *Retriever) themeName(id string) string {
	if th, ok := r.tables.Theme(id); ok {
		return th.Name
	}
	return id
}

func (r *Retriever) indicatorName(code string) string {
	if ind, ok := r.tables.Indicator(code); ok {
		return ind.Name
	}
	return code
}

// assemble flattens the typed results into nodes and links.
func (r *Retriever) assemble(resp *Response) {
	seen := map[string]bool{}
	add := func(n Node) {
		key := n.Kind + "|" + n.ID
		if seen[key] {
			return
		}
		seen[key] = true
		resp.Nodes = append(resp.Nodes, n)
	}
	themes := map[string]bool{}
	for _, th := range resp.Themes {
		themes[th] = true
		add(Node{ID: th, Kind: NodeTheme, Label: r.themeName(th)})
	}
	for _, c := range resp.Indicators {
		add(Node{ID: c, Kind: NodeIndicator, Label: r.indicatorName(c)})
	}

	docs := map[string]bool{}
	for i := range resp.Documents {
		resp.Documents[i].Snippet = util.TruncateRunes(util.CollapseWhitespace(resp.Documents[i].text), snippetRunes)
	}
	for _, d := range resp.Documents {
		docs[d.ID] = true
		add(Node{ID: d.ID, Kind: NodeDocument, Label: d.Title, Date: d.Date, Props: map[string]any{
			"snippet": d.Snippet,
			"country": d.Country,
			"origin":  d.Origin,
			"score":   d.Score,
		}})
		for _, th := range d.Themes {
			if themes[th] {
				resp.Links = append(resp.Links, Link{Source: d.ID, Target: th, Type: graphdb.RelAboutTheme})
			}
		}
	}
	for _, e := range resp.Events {
		add(Node{ID: e.ID, Kind: NodeEvent, Label: e.Name, Date: e.Date, Props: map[string]any{
			"description": e.Description,
			"sentiment":   e.Sentiment,
			"country":     e.Country,
		}})
		if docs[e.DocumentID] {
			resp.Links = append(resp.Links, Link{Source: e.DocumentID, Target: e.ID, Type: graphdb.RelMentionsEvent})
		}
		for _, th := range e.Themes {
			if themes[th] {
				resp.Links = append(resp.Links, Link{Source: e.ID, Target: th, Type: graphdb.RelAboutTheme})
			}
		}
		for _, a := range e.Affects {
			add(Node{ID: a.Code, Kind: NodeIndicator, Label: r.indicatorName(a.Code)})
			resp.Links = append(resp.Links, Link{Source: e.ID, Target: a.Code, Type: graphdb.RelAffects, Props: map[string]any{
				"weight":   a.Weight,
				"polarity": a.Polarity,
			}})
		}
	}

	for _, s := range resp.Stories {
		add(Node{ID: s.ID, Kind: NodeStory, Label: s.Name, Date: s.Start, Props: map[string]any{
			"end":       s.End,
			"doc_count": s.DocCount,
		}})
		add(Node{ID: s.Theme, Kind: NodeTheme, Label: r.themeName(s.Theme)})
		resp.Links = append(resp.Links, Link{Source: s.ID, Target: s.Theme, Type: graphdb.RelAboutTheme})
	}
}

// suggestions renders up to three follow-up questions from the top theme,
// indicator and story.
func (r *Retriever) suggestions(resp *Response) []string {
	var out []string
	if len(resp.Themes) > 0 {
		out = append(out, fmt.Sprintf("What is driving %s over the last %s?",
			strings.ToLower(r.themeName(resp.Themes[0])), resp.TimeRange))
	}
	if len(resp.Indicators) > 0 {
		out = append(out, fmt.Sprintf("Which recent events moved the %s?", r.indicatorName(resp.Indicators[0])))
	} else if len(resp.Events) > 0 && len(resp.Events[0].Affects) > 0 {
		out = append(out, fmt.Sprintf("How did %q affect the %s?",
			resp.Events[0].Name, r.indicatorName(resp.Events[0].Affects[0].Code)))
	}
	if len(resp.Stories) > 0 {
		out = append(out, fmt.Sprintf("How has the %s story developed since %s?",
			strings.ToLower(r.themeName(resp.Stories[0].Theme)), resp.Stories[0].Start))
	}
	if len(out) == 0 {
		out = append(out, fmt.Sprintf("What are the dominant macro themes over the last %s?", resp.TimeRange))
	}
	return out
}
