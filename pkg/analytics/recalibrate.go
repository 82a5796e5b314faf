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
	DefaultRecalibrationWindow = 30
	DefaultMinSupport          = 3

	maxZ = 6.0
	// zero-variance samples with a non-zero mean get this score
	constantZ = 3.0
)

type RecalibrateOptions struct {
	WindowDays int
	MinSupport int
}

func (o RecalibrateOptions) withDefaults() RecalibrateOptions {
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultRecalibrationWindow
	}
	if o.MinSupport <= 0 {
		o.MinSupport = DefaultMinSupport
	}
	return o
}

// Calibration is the recomputed weight for one indicator.
type Calibration struct {
	Support  int     `json:"support"`
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Z        float64 `json:"z"`
	Weight   float64 `json:"weight"`
	Polarity string  `json:"polarity"`
}

// Recalibrate maps observed deltas to a weight in [0, 1) via
// z = |mean| / std and weight = 2/(1+e^-z) − 1. Polarity is the sign of
// the mean.
func Recalibrate(samples []float64) Calibration {
	c := Calibration{Support: len(samples), Polarity: "neutral"}
	if len(samples) == 0 {
		return c
	}
	c.Mean = stat.Mean(samples, nil)
	if len(samples) > 1 {
		c.Std = stat.StdDev(samples, nil)
	}
	switch {
	case c.Std > 0:
		c.Z = math.Abs(c.Mean) / c.Std
	case c.Mean != 0:
		c.Z = constantZ
	}
	c.Z = math.Min(c.Z, maxZ)
	c.Weight = 2/(1+math.Exp(-c.Z)) - 1
	switch {
	case c.Mean > 0:
		c.Polarity = "positive"
	case c.Mean < 0:
		c.Polarity = "negative"
	}
	return c
}

// RecalibrateAffects replaces the weight and polarity of every AFFECTS edge
// whose event falls in the window and carries an observed delta.
// Indicators with fewer than MinSupport such events are left alone.
func (a *Analyzer) RecalibrateAffects(ctx context.Context, opts RecalibrateOptions) JobReport {
	report, started := a.start("recalibrate")
	opts = opts.withDefaults()
	today := a.today()
	from, to := graphdb.FormatDate(today.AddDate(0, 0, -opts.WindowDays)), graphdb.FormatDate(today)
	report.Params["window_days"] = opts.WindowDays
	report.Params["min_support"] = opts.MinSupport

	edges, err := a.loadAffects(ctx, from, to)
	if err != nil {
		return a.fail(report, started, "[Recalibrate]", err)
	}
	byCode := map[string][]AffectsEdge{}
	for _, e := range edges {
		if e.HasDelta {
			byCode[e.Code] = append(byCode[e.Code], e)
		}
	}
	codes := make([]string, 0, len(byCode))
	for c := range byCode {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	now := graphdb.FormatTime(a.now())
	var stmts []graphdb.Statement
	for _, code := range codes {
		group := byCode[code]
		report.Processed++
		if len(group) < opts.MinSupport {
			report.Skipped++
			continue
		}
		samples := make([]float64, len(group))
		for i, e := range group {
			samples[i] = e.ObservedDelta
		}
		cal := Recalibrate(samples)
		for _, e := range group {
			stmts = append(stmts, graphdb.MergeRelationship(
				graphdb.EventRef(e.EventID), graphdb.RelAffects, graphdb.IndicatorRef(code), nil,
				map[string]any{
					"weight":              cal.Weight,
					"polarity":            cal.Polarity,
					"method":              "recalibration",
					"source":              "analytics",
					"recalib_z":           cal.Z,
					"recalib_support":     cal.Support,
					"recalib_window_days": opts.WindowDays,
					"recalibrated_at":     now,
				}, nil))
			report.Written++
		}
		logger.Debug("[Recalibrate] Indicator recalibrated",
			"code", code, "support", cal.Support, "mean", cal.Mean, "z", cal.Z, "weight", cal.Weight)
	}

	sum, err := a.exec(ctx, stmts)
	if err != nil {
		return a.fail(report, started, "[Recalibrate]", fmt.Errorf("write weights: %w", err))
	}
	report.Summary = sum
	logger.Info("[Recalibrate] AFFECTS weights recalibrated",
		"indicators", report.Processed, "skipped", report.Skipped, "edges", report.Written)
	return a.done(report, started, fmt.Sprintf("%d edges over %d indicators", report.Written, report.Processed-report.Skipped))
}
