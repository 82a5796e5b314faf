package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

// Derived feature names.
const (
	FeatureDelta1D     = "delta_1d"
	FeaturePctChange1D = "pct_change_1d"
)

// featureLookback is how far before Since the previous observation is
// searched for.
const featureLookback = 31

type FeatureOptions struct {
	// Since limits the dates features are computed for. Zero means all.
	Since time.Time
}

// FeatureValue is one computed feature.
type FeatureValue struct {
	Code    string
	Feature string
	Date    string
	Value   float64
}

// DailyFeatures computes delta_1d and pct_change_1d for every point after
// the first. pct_change_1d is omitted when the previous value is zero.
func DailyFeatures(code string, points []Point, since string) []FeatureValue {
	var out []FeatureValue
	for i := 1; i < len(points); i++ {
		cur, prev := points[i], points[i-1]
		if cur.Date < since {
			continue
		}
		delta := cur.Value - prev.Value
		out = append(out, FeatureValue{Code: code, Feature: FeatureDelta1D, Date: cur.Date, Value: delta})
		if prev.Value != 0 {
			out = append(out, FeatureValue{
				Code: code, Feature: FeaturePctChange1D, Date: cur.Date,
				Value: delta / math.Abs(prev.Value) * 100,
			})
		}
	}
	return out
}

// ComputeDerivedFeatures MERGEs DerivedFeature nodes for every indicator
// observation since opts.Since.
func (a *Analyzer) ComputeDerivedFeatures(ctx context.Context, opts FeatureOptions) JobReport {
	report, started := a.start("derived_features")
	since := ""
	loadFrom := ""
	if !opts.Since.IsZero() {
		since = graphdb.FormatDate(opts.Since)
		loadFrom = graphdb.FormatDate(opts.Since.AddDate(0, 0, -featureLookback))
	}
	report.Params["since"] = since

	series, err := a.loadSeries(ctx, loadFrom)
	if err != nil {
		return a.fail(report, started, "[Features]", err)
	}

	now := graphdb.FormatTime(a.now())
	var stmts []graphdb.Statement
	for _, code := range sortedCodes(series) {
		s := series[code]
		report.Processed++
		values := DailyFeatures(code, s.Points, since)
		if len(values) == 0 {
			report.Skipped++
			continue
		}
		for _, fv := range values {
			ref := graphdb.FeatureRef(graphdb.FeatureID(fv.Code, fv.Feature, fv.Date))
			stmts = append(stmts,
				graphdb.MergeNode(ref, map[string]any{
					"code":        fv.Code,
					"feature":     fv.Feature,
					"date":        fv.Date,
					"value":       fv.Value,
					"computed_at": now,
				}, nil),
				graphdb.MergeRelationship(graphdb.ObservationRef(graphdb.ObservationID(fv.Code, fv.Date)),
					graphdb.RelHasFeature, ref, nil, nil, nil),
			)
			report.Written++
		}
	}

	sum, err := a.exec(ctx, stmts)
	if err != nil {
		return a.fail(report, started, "[Features]", fmt.Errorf("write features: %w", err))
	}
	report.Summary = sum
	logger.Info("[Features] Derived features computed",
		"indicators", report.Processed, "features", report.Written, "nodes_created", sum.NodesCreated)
	return a.done(report, started, fmt.Sprintf("%d features for %d indicators", report.Written, report.Processed))
}
