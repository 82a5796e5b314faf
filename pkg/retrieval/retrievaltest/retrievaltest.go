// Package retrievaltest wires the context retrieval queries to an
// in-memory graph so packages built on retrieval can test end to end.
package retrievaltest

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/extract"
	"github.com/OFFIS-RIT/macrokg/pkg/graph"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb/memgraph"
	"github.com/OFFIS-RIT/macrokg/pkg/retrieval"
)

// Wire registers handlers for every retrieval query except the full-text
// search, which then fails like a missing index would.
func Wire(g *memgraph.Graph) {
	g.Handle(retrieval.WindowDocumentsQuery, func(g *memgraph.Graph, params map[string]any) ([]graphdb.Record, error) {
		docs := windowDocuments(g, params)
		return limit(docs, params), nil
	})
	g.Handle(retrieval.ThemeDocumentsQuery, func(g *memgraph.Graph, params map[string]any) ([]graphdb.Record, error) {
		want := map[string]bool{}
		for _, th := range params["themes"].([]string) {
			want[th] = true
		}
		var out []graphdb.Record
		for _, d := range windowDocuments(g, params) {
			var matched []string
			for _, th := range d.Strings("themes") {
				if want[th] {
					matched = append(matched, th)
				}
			}
			if len(matched) > 0 {
				d["themes"] = matched
				out = append(out, d)
			}
		}
		return limit(out, params), nil
	})
	g.Handle(retrieval.EventsQuery, events)
	g.Handle(retrieval.StoriesQuery, stories)
	g.Handle(retrieval.EvidenceQuery, evidence)
}

// WireFulltext emulates the full-text index: a document scores one point
// per query term found in its title or text.
func WireFulltext(g *memgraph.Graph) {
	g.Handle(retrieval.FulltextDocumentsQuery, func(g *memgraph.Graph, params map[string]any) ([]graphdb.Record, error) {
		terms := strings.Split(params["query"].(string), " OR ")
		var out []graphdb.Record
		for _, d := range windowDocuments(g, params) {
			words := map[string]bool{}
			for _, w := range util.Terms(d.String("title")+" "+d.String("text"), 1) {
				words[w] = true
			}
			score := 0
			for _, t := range terms {
				if words[t] {
					score++
				}
			}
			if score > 0 {
				d["score"] = float64(score)
				out = append(out, d)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Float("score") > out[j].Float("score") })
		return limit(out, params), nil
	})
}

func themesByNode(g *memgraph.Graph, fromLabel string) map[string][]string {
	out := map[string][]string{}
	for _, r := range g.Relationships(graphdb.RelAboutTheme) {
		if r.FromLabel == fromLabel {
			id := r.From.String("id")
			out[id] = append(out[id], r.To.String("id"))
		}
	}
	return out
}

func windowDocuments(g *memgraph.Graph, params map[string]any) []graphdb.Record {
	from, to := params["from"].(string), params["to"].(string)
	themes := themesByNode(g, graphdb.LabelDocument)
	var out []graphdb.Record
	for _, d := range g.Nodes(graphdb.LabelDocument) {
		date := d.String("published_date")
		if date < from || date > to {
			continue
		}
		text := coalesce(d, "translated_text", "text")
		out = append(out, graphdb.Record{
			"id": d["id"], "title": d["title"], "text": text, "url": d["url"],
			"country": d["country"], "category": d["category"], "date": date,
			"published_at": d["published_at"], "themes": themes[d.String("id")],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].String("published_at") > out[j].String("published_at")
	})
	return out
}

// coalesce returns the first property that is present and not null, the
// way Cypher's coalesce does. An empty string counts as a value.
func coalesce(props map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := props[k]; ok && v != nil {
			s, _ := v.(string)
			return s
		}
	}
	return ""
}

func limit(rows []graphdb.Record, params map[string]any) []graphdb.Record {
	if n, ok := params["limit"].(int); ok && len(rows) > n {
		return rows[:n]
	}
	return rows
}

func events(g *memgraph.Graph, params map[string]any) ([]graphdb.Record, error) {
	from, to := params["from"].(string), params["to"].(string)
	themes := themesByNode(g, graphdb.LabelEvent)
	affects := map[string][]any{}
	for _, r := range g.Relationships(graphdb.RelAffects) {
		id := r.From.String("id")
		affects[id] = append(affects[id], map[string]any{
			"code": r.To["code"], "weight": r.Props["weight"], "polarity": r.Props["polarity"],
			"observed_delta": r.Props["observed_delta"],
		})
	}
	var out []graphdb.Record
	for _, e := range g.Nodes(graphdb.LabelEvent) {
		date := e.String("date")
		if date < from || date > to {
			continue
		}
		out = append(out, graphdb.Record{
			"id": e["id"], "name": e["name"], "description": e["description"], "date": date,
			"country": e["country"], "sentiment": e["sentiment"], "document_id": e["document_id"],
			"themes": themes[e.String("id")], "affects": affects[e.String("id")],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].String("date") > out[j].String("date") })
	return limit(out, params), nil
}

func stories(g *memgraph.Graph, params map[string]any) ([]graphdb.Record, error) {
	from, to := params["from"].(string), params["to"].(string)
	var out []graphdb.Record
	for _, s := range g.Nodes(graphdb.LabelStory) {
		if s.String("end") < from || s.String("start") > to {
			continue
		}
		out = append(out, graphdb.Record{
			"id": s["id"], "theme": s["theme"], "name": s["name"], "start": s["start"],
			"end": s["end"], "doc_count": s["doc_count"],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Int("doc_count") != out[j].Int("doc_count") {
			return out[i].Int("doc_count") > out[j].Int("doc_count")
		}
		return out[i].String("start") > out[j].String("start")
	})
	return out, nil
}

func evidence(g *memgraph.Graph, params map[string]any) ([]graphdb.Record, error) {
	want := map[string]bool{}
	for _, id := range params["doc_ids"].([]string) {
		want[id] = true
	}
	type owner struct {
		doc, kind string
		node      graphdb.Record
	}
	owners := map[string]owner{}
	for _, rel := range []string{graphdb.RelHasFact, graphdb.RelHasClaim} {
		kind := "fact"
		if rel == graphdb.RelHasClaim {
			kind = "claim"
		}
		for _, r := range g.Relationships(rel) {
			if want[r.From.String("id")] {
				owners[r.To.String("id")] = owner{doc: r.From.String("id"), kind: kind, node: r.To}
			}
		}
	}
	var out []graphdb.Record
	for _, r := range g.Relationships(graphdb.RelSupportedBy) {
		o, ok := owners[r.From.String("id")]
		if !ok {
			continue
		}
		out = append(out, graphdb.Record{
			"id": r.To["id"], "text": r.To["text"], "document_id": o.doc,
			"statement_id": o.node["id"], "kind": o.kind,
			"statement": o.node["statement"], "confidence": o.node["confidence"],
		})
	}
	return out, nil
}

// Corpus names the ids SeedCorpus writes.
type Corpus struct {
	EventID       string
	FactID        string
	FactEvidence  string
	ClaimEvidence string
}

// SeedCorpus writes six documents around asOf:
//
//	news:1  US  inflation  asOf-1d  with one event, a fact and a claim
//	news:2  KR  fx         asOf-2d
//	news:3  --  inflation  asOf-3d  (no country)
//	news:4  JP  inflation  asOf-1d  (unsupported country)
//	news:5  US  inflation  asOf-40d
//	news:6  KR  fx         asOf
func SeedCorpus(ctx context.Context, g *memgraph.Graph, asOf time.Time) (Corpus, error) {
	w := graph.NewWriter(graph.NewWriterParams{Store: g, Now: func() time.Time { return asOf }})
	day := func(n int) time.Time { return asOf.AddDate(0, 0, -n) }
	docs := []common.Document{
		{Source: "news", SourceID: "1", Title: "Fed holds rates as inflation stays high",
			Text:     "The Fed held rates steady. Consumer prices rose 3.2% in March.",
			Category: "inflation", Country: "US", PublishedAt: day(1)},
		{Source: "news", SourceID: "2", Title: "Won slides against dollar",
			Text: "The won weakened past 1,400 per dollar.", Category: "currency", Country: "KR", PublishedAt: day(2)},
		{Source: "news", SourceID: "3", Title: "Inflation worries spread",
			Text: "Analysts see sticky prices.", Category: "inflation", PublishedAt: day(3)},
		{Source: "news", SourceID: "4", Title: "Japan inflation edges up",
			Text: "Tokyo prices rose.", Category: "inflation", Country: "JP", PublishedAt: day(1)},
		{Source: "news", SourceID: "5", Title: "Old inflation print",
			Text: "Inflation was high last quarter.", Category: "inflation", Country: "US", PublishedAt: day(40)},
		{Source: "news", SourceID: "6", Title: "Markets",
			Text: "Dollar and won both moved.", Category: "currency", Country: "KR", PublishedAt: asOf},
	}
	for i := range docs {
		docs[i].ID = common.DocumentID(docs[i].Source, docs[i].SourceID)
		if _, err := w.UpsertDocument(ctx, docs[i]); err != nil {
			return Corpus{}, err
		}
	}

	d1 := docs[0]
	c := Corpus{
		EventID: util.HashID("evt", d1.ID, "fed holds rates"),
		FactID:  util.HashID("fact", d1.ID, "consumer prices rose 3.2%"),
	}
	c.FactEvidence = util.HashID("evd", c.FactID, "0")
	claimID := util.HashID("claim", d1.ID, "inflation is too high")
	c.ClaimEvidence = util.HashID("evd", claimID, "0")
	res := &extract.Result{
		DocID: d1.ID,
		Events: []common.Event{{
			ID: c.EventID, DocumentID: d1.ID, Name: "Fed holds rates", Date: day(1), Country: "US",
			Sentiment: "neutral", ThemeIDs: []string{"inflation"},
			Impacts: []common.IndicatorImpact{{Code: "CPI_US", Polarity: "positive", Weight: 0.7, Confidence: 0.8}},
		}},
		Facts: []common.Fact{{
			ID: c.FactID, DocumentID: d1.ID, EventID: c.EventID, Statement: "Consumer prices rose 3.2%",
			FactType: "statistic", Confidence: 0.9,
			Evidence: []common.Evidence{{ID: c.FactEvidence, Text: "Consumer prices rose 3.2% in March.", DocumentID: d1.ID}},
		}},
		Claims: []common.Claim{{
			ID: claimID, DocumentID: d1.ID, Statement: "Inflation is too high", ClaimType: "assessment",
			Confidence: 0.6,
			Evidence:   []common.Evidence{{ID: c.ClaimEvidence, Text: "Inflation stays high, analysts said.", DocumentID: d1.ID}},
		}},
	}
	if _, err := w.WriteExtraction(ctx, d1, res); err != nil {
		return Corpus{}, err
	}
	return c, nil
}
