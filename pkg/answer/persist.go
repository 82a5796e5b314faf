package answer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/retrieval"
)

// CachedRunQuery finds the newest reusable run of an identical request.
const CachedRunQuery = `
MATCH (r:AnalysisRun)
WHERE r.question = $question AND r.model = $model AND r.time_range = $time_range
  AND r.country = $country AND r.as_of_date = $as_of_date AND r.status IN $statuses
RETURN r.id AS id, r.response AS response, r.key_points AS key_points,
       r.citations AS citations, r.confidence AS confidence, r.status AS status,
       r.message AS message, r.model AS model, r.duration_ms AS duration_ms
ORDER BY r.created_at DESC
LIMIT 1
`

// reusable lists the run statuses a cache lookup may return. Skipped and
// failed runs are retried.
var reusable = []string{string(common.StatusSuccess), string(common.StatusNoData)}

func (g *Generator) cachedRun(ctx context.Context, req Request, scope retrieval.Scope) (*Response, error) {
	rows, err := g.store.RunRead(ctx, CachedRunQuery, map[string]any{
		"question":   req.Question,
		"model":      req.Model,
		"time_range": scope.TimeRange,
		"country":    scope.Country,
		"as_of_date": scope.To,
		"statuses":   reusable,
	})
	if err != nil {
		return nil, fmt.Errorf("lookup cached run: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	resp := &Response{
		Answer:        row.String("response"),
		KeyPoints:     row.Strings("key_points"),
		Confidence:    row.String("confidence"),
		Citations:     []Citation{},
		AnalysisRunID: row.String("id"),
		Status:        common.Status(row.String("status")),
		Message:       row.String("message"),
		CacheHit:      true,
		Model:         row.String("model"),
		DurationMs:    int64(row.Int("duration_ms")),
	}
	if resp.KeyPoints == nil {
		resp.KeyPoints = []string{}
	}
	if raw := row.String("citations"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &resp.Citations); err != nil {
			return nil, fmt.Errorf("decode cached citations of %s: %w", resp.AnalysisRunID, err)
		}
	}
	return resp, nil
}

// persist writes the AnalysisRun node and, when links is set, its USED_*
// relationships to the nodes rendered into the prompt.
func (g *Generator) persist(ctx context.Context, req Request, scope retrieval.Scope, resp *Response, p prompt, links bool) (string, error) {
	id, err := g.newID()
	if err != nil {
		return "", fmt.Errorf("new run id: %w", err)
	}
	cites, err := json.Marshal(resp.Citations)
	if err != nil {
		return "", fmt.Errorf("encode citations: %w", err)
	}
	run := graphdb.RunRef(id)
	stmts := []graphdb.Statement{graphdb.MergeNode(run, map[string]any{
		"question":       req.Question,
		"response":       resp.Answer,
		"key_points":     resp.KeyPoints,
		"citations":      string(cites),
		"citation_count": len(resp.Citations),
		"confidence":     resp.Confidence,
		"model":          resp.Model,
		"duration_ms":    resp.DurationMs,
		"time_range":     scope.TimeRange,
		"country":        scope.Country,
		"as_of_date":     scope.To,
		"status":         string(resp.Status),
		"message":        resp.Message,
		"created_at":     graphdb.FormatTime(g.now()),
	}, nil)}

	if links {
		cited := make(map[string]bool, len(resp.Citations))
		for _, c := range resp.Citations {
			cited[c.EvidenceID] = true
		}
		docs := map[string]bool{}
		link := func(rel string, to graphdb.NodeRef, props map[string]any) {
			stmts = append(stmts, graphdb.MergeRelationship(run, rel, to, nil, props, nil))
		}
		for _, e := range p.Evidences {
			link(graphdb.RelUsedEvidence, graphdb.EvidenceRef(e.ID), map[string]any{"cited": cited[e.ID]})
			docs[e.DocumentID] = true
		}
		for _, d := range p.Documents {
			docs[d.ID] = true
		}
		for _, d := range resp.Context.Documents {
			if docs[d.ID] {
				link(graphdb.RelUsedDocument, graphdb.DocumentRef(d.ID), nil)
				delete(docs, d.ID)
			}
		}
		for _, e := range p.Events {
			link(graphdb.RelUsedEvent, graphdb.EventRef(e.ID), nil)
		}
		for _, s := range p.Stories {
			link(graphdb.RelUsedStory, graphdb.StoryRef(s.ID), nil)
		}
		for _, th := range resp.Context.Themes {
			link(graphdb.RelUsedTheme, graphdb.ThemeRef(th), nil)
		}
		for _, c := range resp.Context.Indicators {
			link(graphdb.RelUsedIndicator, graphdb.IndicatorRef(c), nil)
		}
	}

	if _, err := graphdb.Exec(ctx, g.store, stmts...); err != nil {
		return "", fmt.Errorf("write analysis run %s: %w", id, err)
	}
	return id, nil
}
