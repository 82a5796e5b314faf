// Package analytics runs the batch jobs that derive statistical signals
// from the knowledge graph: derived features, event impact deltas, AFFECTS
// recalibration, indicator correlations, story clusters and the daily
// macro state.
//
// Jobs are not re-entrant for the same window. Callers serialize them.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

const writeChunkSize = 500

// JobReport is the outcome of one analytics job.
type JobReport struct {
	Job       string               `json:"job"`
	Status    common.Status        `json:"status"`
	Message   string               `json:"message"`
	Processed int                  `json:"processed"`
	Written   int                  `json:"written"`
	Skipped   int                  `json:"skipped"`
	Summary   graphdb.WriteSummary `json:"summary"`
	Elapsed   time.Duration        `json:"elapsed"`
	Params    map[string]any       `json:"params,omitempty"`
}

// Analyzer runs the analytics jobs against one graph store.
type Analyzer struct {
	store graphdb.Store
	now   func() time.Time
}

type NewAnalyzerParams struct {
	Store graphdb.Store
	Now   func() time.Time
}

func NewAnalyzer(params NewAnalyzerParams) *Analyzer {
	a := &Analyzer{store: params.Store, now: params.Now}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

func (a *Analyzer) today() time.Time {
	return a.now().UTC().Truncate(24 * time.Hour)
}

func (a *Analyzer) start(job string) (JobReport, time.Time) {
	return JobReport{Job: job, Params: map[string]any{}}, a.now()
}

func (a *Analyzer) fail(r JobReport, started time.Time, tag string, err error) JobReport {
	logger.Error(tag+" Job failed", "job", r.Job, "err", err)
	r.Status = common.StatusError
	r.Message = err.Error()
	r.Elapsed = a.now().Sub(started)
	return r
}

func (a *Analyzer) done(r JobReport, started time.Time, msg string) JobReport {
	r.Elapsed = a.now().Sub(started)
	if r.Written == 0 && r.Status == "" {
		r.Status = common.StatusNoData
	}
	if r.Status == "" {
		r.Status = common.StatusSuccess
	}
	r.Message = msg
	return r
}

// exec writes stmts in bounded transactions.
func (a *Analyzer) exec(ctx context.Context, stmts []graphdb.Statement) (graphdb.WriteSummary, error) {
	var total graphdb.WriteSummary
	for start := 0; start < len(stmts); start += writeChunkSize {
		end := min(start+writeChunkSize, len(stmts))
		sum, err := graphdb.Exec(ctx, a.store, stmts[start:end]...)
		if err != nil {
			return total, err
		}
		total.Add(sum)
	}
	return total, nil
}

// Point is one dated value of a series.
type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Series holds the observations of one indicator and its delta_1d feature,
// both ordered by date.
type Series struct {
	Code   string
	Points []Point
	Deltas []Point
}

// ObservationsQuery returns every observation dated on or after $since
// together with its delta_1d feature when one exists.
const ObservationsQuery = `
MATCH (i:EconomicIndicator)-[:HAS_OBSERVATION]->(o:IndicatorObservation)
WHERE o.date >= $since
OPTIONAL MATCH (o)-[:HAS_FEATURE]->(f:DerivedFeature {feature: 'delta_1d'})
RETURN i.code AS code, o.date AS date, o.value AS value, f.value AS delta_1d
ORDER BY code, date`

func (a *Analyzer) loadSeries(ctx context.Context, since string) (map[string]*Series, error) {
	rows, err := a.store.RunRead(ctx, ObservationsQuery, map[string]any{"since": since})
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	out := map[string]*Series{}
	for _, r := range rows {
		code, date := r.String("code"), r.String("date")
		v, ok := r.FloatOK("value")
		if code == "" || date == "" || !ok {
			continue
		}
		s := out[code]
		if s == nil {
			s = &Series{Code: code}
			out[code] = s
		}
		s.Points = append(s.Points, Point{Date: date, Value: v})
		if d, ok := r.FloatOK("delta_1d"); ok {
			s.Deltas = append(s.Deltas, Point{Date: date, Value: d})
		}
	}
	for _, s := range out {
		sortPoints(s.Points)
		sortPoints(s.Deltas)
	}
	return out, nil
}

func sortPoints(p []Point) {
	sort.SliceStable(p, func(i, j int) bool { return p[i].Date < p[j].Date })
}

// AffectsQuery returns every Event → EconomicIndicator edge whose event is
// dated in [$from, $to].
const AffectsQuery = `
MATCH (e:Event)-[r:AFFECTS]->(i:EconomicIndicator)
WHERE e.date >= $from AND e.date <= $to
RETURN e.id AS event_id, e.date AS date, e.name AS name, i.code AS code,
       r.weight AS weight, r.polarity AS polarity, r.confidence AS confidence,
       r.observed_delta AS observed_delta
ORDER BY date, event_id, code`

// AffectsEdge is one Event → EconomicIndicator edge.
type AffectsEdge struct {
	EventID       string
	EventName     string
	Date          string
	Code          string
	Weight        float64
	Polarity      string
	Confidence    float64
	ObservedDelta float64
	HasDelta      bool
}

func (a *Analyzer) loadAffects(ctx context.Context, from, to string) ([]AffectsEdge, error) {
	rows, err := a.store.RunRead(ctx, AffectsQuery, map[string]any{"from": from, "to": to})
	if err != nil {
		return nil, fmt.Errorf("load affects edges: %w", err)
	}
	out := make([]AffectsEdge, 0, len(rows))
	for _, r := range rows {
		e := AffectsEdge{
			EventID:    r.String("event_id"),
			EventName:  r.String("name"),
			Date:       r.String("date"),
			Code:       r.String("code"),
			Weight:     r.Float("weight"),
			Polarity:   r.String("polarity"),
			Confidence: r.Float("confidence"),
		}
		e.ObservedDelta, e.HasDelta = r.FloatOK("observed_delta")
		if e.EventID == "" || e.Code == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// DocumentThemesQuery returns the documents published in [$from, $to] with
// the themes of their category and of their events.
const DocumentThemesQuery = `
MATCH (d:Document)
WHERE d.published_date >= $from AND d.published_date <= $to
OPTIONAL MATCH (d)-[:ABOUT_THEME]->(t1:MacroTheme)
OPTIONAL MATCH (d)-[:MENTIONS_EVENT]->(:Event)-[:ABOUT_THEME]->(t2:MacroTheme)
WITH d, collect(DISTINCT t1.id) + collect(DISTINCT t2.id) AS themes
RETURN d.id AS id, d.published_date AS date, themes
ORDER BY date, id`

// ThemedDocument is a document and its distinct themes.
type ThemedDocument struct {
	ID     string
	Date   string
	Themes []string
}

func (a *Analyzer) loadThemedDocuments(ctx context.Context, from, to string) ([]ThemedDocument, error) {
	rows, err := a.store.RunRead(ctx, DocumentThemesQuery, map[string]any{"from": from, "to": to})
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	out := make([]ThemedDocument, 0, len(rows))
	for _, r := range rows {
		doc := ThemedDocument{ID: r.String("id"), Date: r.String("date")}
		seen := map[string]bool{}
		for _, th := range r.Strings("themes") {
			if !seen[th] {
				seen[th] = true
				doc.Themes = append(doc.Themes, th)
			}
		}
		sort.Strings(doc.Themes)
		if doc.ID != "" && doc.Date != "" {
			out = append(out, doc)
		}
	}
	return out, nil
}

func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse(graphdb.DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func addDays(date string, n int) string {
	t, ok := parseDate(date)
	if !ok {
		return date
	}
	return graphdb.FormatDate(t.AddDate(0, 0, n))
}

// epochDay counts whole days since 1970-01-01.
func epochDay(t time.Time) int64 {
	return t.UTC().Unix() / 86400
}

func sortedCodes(series map[string]*Series) []string {
	codes := make([]string, 0, len(series))
	for c := range series {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
