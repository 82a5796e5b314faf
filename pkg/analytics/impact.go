package analytics

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

// Impact estimate quality, best first.
const (
	QualityFeature     = "feature"
	QualityObservation = "observation"
	QualityNearest     = "nearest"
	QualityProxy       = "proxy"
)

var qualityConfidence = map[string]float64{
	QualityFeature:     1.0,
	QualityObservation: 0.8,
	QualityNearest:     0.5,
	QualityProxy:       0.25,
}

const (
	DefaultImpactWindow = 3
	DefaultImpactMaxGap = 7
	DefaultImpactSince  = 90
)

type ImpactOptions struct {
	// WindowDays is the length of the pre and post windows.
	WindowDays int
	// MaxGapDays bounds the nearest-observation fallback.
	MaxGapDays int
	// Since limits which events are scored. Zero means the last 90 days.
	Since time.Time
}

func (o ImpactOptions) withDefaults(today time.Time) ImpactOptions {
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultImpactWindow
	}
	if o.MaxGapDays <= 0 {
		o.MaxGapDays = DefaultImpactMaxGap
	}
	if o.Since.IsZero() {
		o.Since = today.AddDate(0, 0, -DefaultImpactSince)
	}
	return o
}

// ImpactEstimate is the observed indicator move around one event.
type ImpactEstimate struct {
	Delta      float64
	Quality    string
	Confidence float64
	PreN       int
	PostN      int
}

func windowValues(points []Point, from, to string) []float64 {
	var out []float64
	for _, p := range points {
		if p.Date >= from && p.Date < to {
			out = append(out, p.Value)
		}
	}
	return out
}

func windowDelta(points []Point, date string, window int) (float64, int, int, bool) {
	pre := windowValues(points, addDays(date, -window), date)
	post := windowValues(points, date, addDays(date, window))
	if len(pre) == 0 || len(post) == 0 {
		return 0, len(pre), len(post), false
	}
	return stat.Mean(post, nil) - stat.Mean(pre, nil), len(pre), len(post), true
}

// EstimateImpact computes mean(post) − mean(pre) around date, walking the
// fallback chain: delta_1d features, raw observations, the nearest pair
// within maxGap days, and finally the two most recent observations. It
// reports false only when the series has fewer than two observations and
// no window data.
func EstimateImpact(s *Series, date string, window, maxGap int) (ImpactEstimate, bool) {
	if s == nil {
		return ImpactEstimate{}, false
	}
	if d, pre, post, ok := windowDelta(s.Deltas, date, window); ok {
		return ImpactEstimate{Delta: d, Quality: QualityFeature, Confidence: qualityConfidence[QualityFeature], PreN: pre, PostN: post}, true
	}
	if d, pre, post, ok := windowDelta(s.Points, date, window); ok {
		return ImpactEstimate{Delta: d, Quality: QualityObservation, Confidence: qualityConfidence[QualityObservation], PreN: pre, PostN: post}, true
	}

	var before, after *Point
	lo, hi := addDays(date, -maxGap), addDays(date, maxGap)
	for i := range s.Points {
		p := &s.Points[i]
		if p.Date < date && p.Date >= lo {
			before = p
		}
		if p.Date >= date && p.Date <= hi && after == nil {
			after = p
		}
	}
	if before != nil && after != nil {
		return ImpactEstimate{Delta: after.Value - before.Value, Quality: QualityNearest,
			Confidence: qualityConfidence[QualityNearest], PreN: 1, PostN: 1}, true
	}

	if n := len(s.Points); n >= 2 {
		return ImpactEstimate{Delta: s.Points[n-1].Value - s.Points[n-2].Value, Quality: QualityProxy,
			Confidence: qualityConfidence[QualityProxy], PreN: 1, PostN: 1}, true
	}
	return ImpactEstimate{}, false
}

// ComputeEventImpact scores every AFFECTS edge of events since opts.Since
// with the observed indicator move. Edges without any usable observation
// are left unscored and counted as skipped.
func (a *Analyzer) ComputeEventImpact(ctx context.Context, opts ImpactOptions) JobReport {
	report, started := a.start("event_impact")
	opts = opts.withDefaults(a.today())
	since := graphdb.FormatDate(opts.Since)
	report.Params["window_days"] = opts.WindowDays
	report.Params["max_gap_days"] = opts.MaxGapDays
	report.Params["since"] = since

	edges, err := a.loadAffects(ctx, since, "9999-12-31")
	if err != nil {
		return a.fail(report, started, "[Impact]", err)
	}
	if len(edges) == 0 {
		return a.done(report, started, "no AFFECTS edges in range")
	}
	series, err := a.loadSeries(ctx, "")
	if err != nil {
		return a.fail(report, started, "[Impact]", err)
	}

	now := graphdb.FormatTime(a.now())
	byQuality := map[string]int{}
	var stmts []graphdb.Statement
	for _, e := range edges {
		report.Processed++
		est, ok := EstimateImpact(series[e.Code], e.Date, opts.WindowDays, opts.MaxGapDays)
		if !ok {
			report.Skipped++
			logger.Debug("[Impact] No observations for edge", "event_id", e.EventID, "code", e.Code)
			continue
		}
		byQuality[est.Quality]++
		stmts = append(stmts, graphdb.MergeRelationship(
			graphdb.EventRef(e.EventID), graphdb.RelAffects, graphdb.IndicatorRef(e.Code), nil,
			map[string]any{
				"observed_delta":     est.Delta,
				"impact_quality":     est.Quality,
				"impact_confidence":  est.Confidence,
				"impact_window_days": opts.WindowDays,
				"impact_pre_n":       est.PreN,
				"impact_post_n":      est.PostN,
				"impact_computed_at": now,
			}, nil))
		report.Written++
	}

	sum, err := a.exec(ctx, stmts)
	if err != nil {
		return a.fail(report, started, "[Impact]", fmt.Errorf("write impacts: %w", err))
	}
	report.Summary = sum
	report.Params["by_quality"] = byQuality
	logger.Info("[Impact] Event impact computed",
		"edges", report.Processed, "scored", report.Written, "skipped", report.Skipped,
		"feature", byQuality[QualityFeature], "observation", byQuality[QualityObservation],
		"nearest", byQuality[QualityNearest], "proxy", byQuality[QualityProxy])
	return a.done(report, started, fmt.Sprintf("%d of %d edges scored", report.Written, report.Processed))
}
