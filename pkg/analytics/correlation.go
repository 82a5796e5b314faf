package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

const (
	DefaultCorrelationWindow = 90
	DefaultMinOverlap        = 20
	DefaultCorrThreshold     = 0.6
	DefaultMinEdges          = 5
	DefaultMaxLag            = 5
	DefaultLeadThreshold     = 0.65
	CorrelationMethod        = "pearson"
)

type CorrelationOptions struct {
	WindowDays int
	MinOverlap int
	Threshold  float64
	// MinEdges pairs are kept even below Threshold. Negative disables the
	// fill.
	MinEdges      int
	MaxLag        int
	LeadThreshold float64
}

func (o CorrelationOptions) withDefaults() CorrelationOptions {
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultCorrelationWindow
	}
	if o.MinOverlap <= 1 {
		o.MinOverlap = DefaultMinOverlap
	}
	if o.Threshold <= 0 {
		o.Threshold = DefaultCorrThreshold
	}
	if o.MinEdges < 0 {
		o.MinEdges = 0
	} else if o.MinEdges == 0 {
		o.MinEdges = DefaultMinEdges
	}
	if o.MaxLag <= 0 {
		o.MaxLag = DefaultMaxLag
	}
	if o.LeadThreshold <= 0 {
		o.LeadThreshold = DefaultLeadThreshold
	}
	return o
}

// Pair is the Pearson correlation of two indicators with A < B.
type Pair struct {
	A              string  `json:"a"`
	B              string  `json:"b"`
	Corr           float64 `json:"corr"`
	N              int     `json:"n"`
	AboveThreshold bool    `json:"above_threshold"`
}

// Lead records that Leader's series, shifted forward by LagDays, best
// correlates with Follower.
type Lead struct {
	Leader   string  `json:"leader"`
	Follower string  `json:"follower"`
	LagDays  int     `json:"lag_days"`
	Corr     float64 `json:"corr"`
	N        int     `json:"n"`
}

type CorrelationResult struct {
	Pairs     []Pair `json:"pairs"`
	Leads     []Lead `json:"leads"`
	Evaluated int    `json:"evaluated"`
}

func byDate(points []Point) map[string]float64 {
	m := make(map[string]float64, len(points))
	for _, p := range points {
		m[p.Date] = p.Value
	}
	return m
}

// aligned pairs x[d] with y[d+lag] for every date d of x.
func aligned(x []Point, y map[string]float64, lag int) ([]float64, []float64) {
	var xs, ys []float64
	for _, p := range x {
		d := p.Date
		if lag != 0 {
			d = addDays(d, lag)
		}
		if v, ok := y[d]; ok {
			xs = append(xs, p.Value)
			ys = append(ys, v)
		}
	}
	return xs, ys
}

func pearson(xs, ys []float64, minOverlap int) (float64, bool) {
	if len(xs) < minOverlap {
		return 0, false
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}

// Correlate computes pairwise Pearson correlations over shared dates. Pairs
// at or above Threshold are kept; when fewer than MinEdges qualify, the
// strongest remaining pairs fill up to MinEdges. Pairs with fewer than
// MinOverlap shared dates or a constant series are not evaluated.
func Correlate(series map[string][]Point, opts CorrelationOptions) CorrelationResult {
	opts = opts.withDefaults()
	codes := make([]string, 0, len(series))
	for c := range series {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	lookup := make(map[string]map[string]float64, len(codes))
	for _, c := range codes {
		lookup[c] = byDate(series[c])
	}

	var res CorrelationResult
	var all []Pair
	for i := 0; i < len(codes); i++ {
		for j := i + 1; j < len(codes); j++ {
			a, b := codes[i], codes[j]
			xs, ys := aligned(series[a], lookup[b], 0)
			r, ok := pearson(xs, ys, opts.MinOverlap)
			if !ok {
				continue
			}
			res.Evaluated++
			all = append(all, Pair{A: a, B: b, Corr: r, N: len(xs), AboveThreshold: math.Abs(r) >= opts.Threshold})
			if lead, ok := bestLag(a, b, series, lookup, opts); ok {
				res.Leads = append(res.Leads, lead)
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if ai, aj := math.Abs(all[i].Corr), math.Abs(all[j].Corr); ai != aj {
			return ai > aj
		}
		if all[i].A != all[j].A {
			return all[i].A < all[j].A
		}
		return all[i].B < all[j].B
	})
	for _, p := range all {
		if p.AboveThreshold || len(res.Pairs) < opts.MinEdges {
			res.Pairs = append(res.Pairs, p)
		}
	}
	return res
}

// bestLag tries every shift in 1..MaxLag in both directions and keeps the
// strongest. It reports false when no shift beats LeadThreshold.
func bestLag(a, b string, series map[string][]Point, lookup map[string]map[string]float64, opts CorrelationOptions) (Lead, bool) {
	var best Lead
	found := false
	try := func(leader, follower string, lag int) {
		xs, ys := aligned(series[leader], lookup[follower], lag)
		r, ok := pearson(xs, ys, opts.MinOverlap)
		if !ok {
			return
		}
		if !found || math.Abs(r) > math.Abs(best.Corr) {
			best = Lead{Leader: leader, Follower: follower, LagDays: lag, Corr: r, N: len(xs)}
			found = true
		}
	}
	for lag := 1; lag <= opts.MaxLag; lag++ {
		try(a, b, lag)
		try(b, a, lag)
	}
	if !found || math.Abs(best.Corr) <= opts.LeadThreshold {
		return Lead{}, false
	}
	return best, true
}

// GenerateCorrelations replaces the CORRELATED_WITH and LEADS edges of this
// method and window with freshly computed ones.
func (a *Analyzer) GenerateCorrelations(ctx context.Context, opts CorrelationOptions) JobReport {
	report, started := a.start("correlations")
	opts = opts.withDefaults()
	since := graphdb.FormatDate(a.today().AddDate(0, 0, -opts.WindowDays))
	report.Params["window_days"] = opts.WindowDays
	report.Params["threshold"] = opts.Threshold

	loaded, err := a.loadSeries(ctx, since)
	if err != nil {
		return a.fail(report, started, "[Correlation]", err)
	}
	series := make(map[string][]Point, len(loaded))
	for code, s := range loaded {
		series[code] = s.Points
	}
	res := Correlate(series, opts)
	report.Processed = res.Evaluated
	if len(res.Pairs) == 0 {
		return a.done(report, started, "not enough overlapping observations")
	}

	identity := map[string]any{"method": CorrelationMethod, "window_days": opts.WindowDays}
	now := graphdb.FormatTime(a.now())
	stmts := []graphdb.Statement{
		graphdb.DeleteRelationships(graphdb.NodeRef{}, graphdb.RelCorrelatedWith, identity),
		graphdb.DeleteRelationships(graphdb.NodeRef{}, graphdb.RelLeads, identity),
	}
	for _, p := range res.Pairs {
		stmts = append(stmts, graphdb.MergeRelationship(
			graphdb.IndicatorRef(p.A), graphdb.RelCorrelatedWith, graphdb.IndicatorRef(p.B), identity,
			map[string]any{
				"corr":            p.Corr,
				"n":               p.N,
				"above_threshold": p.AboveThreshold,
				"computed_at":     now,
			}, nil))
	}
	for _, l := range res.Leads {
		stmts = append(stmts, graphdb.MergeRelationship(
			graphdb.IndicatorRef(l.Leader), graphdb.RelLeads, graphdb.IndicatorRef(l.Follower), identity,
			map[string]any{
				"lag_days":    l.LagDays,
				"corr":        l.Corr,
				"n":           l.N,
				"computed_at": now,
			}, nil))
	}

	// one transaction so readers never see the window without edges
	sum, err := graphdb.Exec(ctx, a.store, stmts...)
	if err != nil {
		return a.fail(report, started, "[Correlation]", fmt.Errorf("write correlations: %w", err))
	}
	report.Summary = sum
	report.Written = len(res.Pairs) + len(res.Leads)
	logger.Info("[Correlation] Correlations generated",
		"evaluated", res.Evaluated, "edges", len(res.Pairs), "leads", len(res.Leads))
	return a.done(report, started, fmt.Sprintf("%d correlation edges, %d lead-lag edges", len(res.Pairs), len(res.Leads)))
}
