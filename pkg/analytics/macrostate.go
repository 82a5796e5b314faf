package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

const (
	DefaultStateLookback   = 7
	DefaultStateTopThemes  = 3
	DefaultStateTopSignals = 5
)

type MacroStateOptions struct {
	LookbackDays int
	TopThemes    int
	TopSignals   int
}

func (o MacroStateOptions) withDefaults() MacroStateOptions {
	if o.LookbackDays <= 0 {
		o.LookbackDays = DefaultStateLookback
	}
	if o.TopThemes <= 0 {
		o.TopThemes = DefaultStateTopThemes
	}
	if o.TopSignals <= 0 {
		o.TopSignals = DefaultStateTopSignals
	}
	return o
}

type ThemeCount struct {
	Theme string  `json:"theme"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

type Signal struct {
	Code       string  `json:"code"`
	Score      float64 `json:"score"`
	Polarity   string  `json:"polarity"`
	EventCount int     `json:"event_count"`
}

// DominantThemes counts documents per theme and returns the top n, most
// frequent first.
func DominantThemes(docs []ThemedDocument, n int) []ThemeCount {
	counts := map[string]int{}
	for _, d := range docs {
		for _, th := range d.Themes {
			counts[th]++
		}
	}
	out := make([]ThemeCount, 0, len(counts))
	for th, c := range counts {
		out = append(out, ThemeCount{Theme: th, Count: c, Share: float64(c) / float64(max(len(docs), 1))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Theme < out[j].Theme
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// TopSignals ranks indicators by their strongest AFFECTS weight. Polarity
// is the sign of the weight-signed polarity sum.
func TopSignals(edges []AffectsEdge, n int) []Signal {
	type acc struct {
		best   float64
		signed float64
		events int
	}
	by := map[string]*acc{}
	for _, e := range edges {
		a := by[e.Code]
		if a == nil {
			a = &acc{}
			by[e.Code] = a
		}
		a.best = math.Max(a.best, e.Weight)
		a.events++
		switch e.Polarity {
		case "positive":
			a.signed += e.Weight
		case "negative":
			a.signed -= e.Weight
		}
	}
	out := make([]Signal, 0, len(by))
	for code, a := range by {
		s := Signal{Code: code, Score: a.best, EventCount: a.events, Polarity: "neutral"}
		if a.signed > 0 {
			s.Polarity = "positive"
		} else if a.signed < 0 {
			s.Polarity = "negative"
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Code < out[j].Code
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// BuildMacroState regenerates the MacroState of date. Its DOMINANT_THEME
// and TOP_SIGNAL relationships are replaced in full.
func (a *Analyzer) BuildMacroState(ctx context.Context, date time.Time, opts MacroStateOptions) JobReport {
	report, started := a.start("macro_state")
	opts = opts.withDefaults()
	if date.IsZero() {
		date = a.today()
	}
	day := graphdb.FormatDate(date)
	from := graphdb.FormatDate(date.AddDate(0, 0, -opts.LookbackDays))
	report.Params["date"] = day
	report.Params["lookback_days"] = opts.LookbackDays

	docs, err := a.loadThemedDocuments(ctx, from, day)
	if err != nil {
		return a.fail(report, started, "[MacroState]", err)
	}
	edges, err := a.loadAffects(ctx, from, day)
	if err != nil {
		return a.fail(report, started, "[MacroState]", err)
	}
	report.Processed = len(docs) + len(edges)
	themes := DominantThemes(docs, opts.TopThemes)
	signals := TopSignals(edges, opts.TopSignals)
	if len(themes) == 0 && len(signals) == 0 {
		return a.done(report, started, "no documents or signals in lookback")
	}

	names := make([]string, len(themes))
	for i, t := range themes {
		names[i] = t.Theme
	}
	codes := make([]string, len(signals))
	for i, s := range signals {
		codes[i] = s.Code
	}

	ref := graphdb.MacroStateRef(day)
	now := graphdb.FormatTime(a.now())
	stmts := []graphdb.Statement{
		graphdb.MergeNode(ref, map[string]any{
			"document_count": len(docs),
			"event_count":    len(edges),
			"themes":         names,
			"signals":        codes,
			"summary":        fmt.Sprintf("themes: %s; signals: %s", strings.Join(names, ", "), strings.Join(codes, ", ")),
			"lookback_days":  opts.LookbackDays,
			"computed_at":    now,
		}, nil),
		graphdb.DeleteRelationships(ref, graphdb.RelDominantTheme, nil),
		graphdb.DeleteRelationships(ref, graphdb.RelTopSignal, nil),
	}
	for i, t := range themes {
		stmts = append(stmts, graphdb.MergeRelationship(ref, graphdb.RelDominantTheme, graphdb.ThemeRef(t.Theme), nil,
			map[string]any{"rank": i + 1, "count": t.Count, "share": t.Share}, nil))
	}
	for i, s := range signals {
		stmts = append(stmts, graphdb.MergeRelationship(ref, graphdb.RelTopSignal, graphdb.IndicatorRef(s.Code), nil,
			map[string]any{"rank": i + 1, "score": s.Score, "polarity": s.Polarity, "event_count": s.EventCount}, nil))
	}

	sum, err := graphdb.Exec(ctx, a.store, stmts...)
	if err != nil {
		return a.fail(report, started, "[MacroState]", fmt.Errorf("write macro state: %w", err))
	}
	report.Summary = sum
	report.Written = len(themes) + len(signals)
	logger.Info("[MacroState] Macro state built", "date", day, "themes", len(themes), "signals", len(signals))
	return a.done(report, started, fmt.Sprintf("%d themes, %d signals for %s", len(themes), len(signals), day))
}
