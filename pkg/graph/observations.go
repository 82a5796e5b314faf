package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
)

// ObservationStatements merges one IndicatorObservation per data point and
// attaches it to its indicator. Repeated observations for the same day
// overwrite the value.
func (w *Writer) ObservationStatements(obs []common.Observation) []graphdb.Statement {
	now := graphdb.FormatTime(w.now())
	seen := map[string]bool{}
	var stmts []graphdb.Statement
	for _, o := range obs {
		code := strings.ToUpper(strings.TrimSpace(o.Code))
		if code == "" || o.Date.IsZero() {
			continue
		}
		if !seen[code] {
			seen[code] = true
			stmts = append(stmts, w.indicatorNode(code))
		}
		date := graphdb.FormatDate(o.Date)
		ref := graphdb.ObservationRef(graphdb.ObservationID(code, date))
		stmts = append(stmts,
			graphdb.MergeNode(ref, map[string]any{
				"code":      code,
				"date":      date,
				"value":     o.Value,
				"synced_at": now,
			}, nil),
			graphdb.MergeRelationship(graphdb.IndicatorRef(code), graphdb.RelHasObservation, ref, nil, nil, nil),
		)
	}
	return stmts
}

// UpsertObservations writes observations in one transaction.
func (w *Writer) UpsertObservations(ctx context.Context, obs []common.Observation) (graphdb.WriteSummary, error) {
	sum, err := graphdb.Exec(ctx, w.store, w.ObservationStatements(obs)...)
	if err != nil {
		return sum, fmt.Errorf("upsert observations: %w", err)
	}
	return sum, nil
}
