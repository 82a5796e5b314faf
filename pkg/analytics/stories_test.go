package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/graph"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb/memgraph"
)

func TestStoryAttempts(t *testing.T) {
	tests := []struct {
		name string
		opts StoryOptions
		want []StoryConfig
	}{
		{"defaults", StoryOptions{}, []StoryConfig{{7, 3}, {14, 7}, {30, 7}, {30, 14}}},
		{"capped", StoryOptions{MaxAttempts: 2}, []StoryConfig{{7, 3}, {14, 7}}},
		{"custom first", StoryOptions{WindowDays: 10, BucketDays: 5}, []StoryConfig{{10, 5}, {14, 7}, {30, 7}, {30, 14}}},
		{"wide start", StoryOptions{WindowDays: 30, BucketDays: 7, MaxAttempts: 10}, []StoryConfig{{30, 7}, {30, 14}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.opts.Attempts()
			if len(got) != len(tc.want) {
				t.Fatalf("Attempts() = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("Attempts() = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestBucketStories(t *testing.T) {
	docs := []ThemedDocument{
		{ID: "news:1", Date: "2026-03-17", Themes: []string{"inflation"}},
		{ID: "news:2", Date: "2026-03-17", Themes: []string{"inflation", "rates"}},
		{ID: "news:3", Date: "2026-03-18", Themes: []string{"inflation"}},
		{ID: "news:4", Date: "2026-03-18", Themes: []string{"rates"}},
		{ID: "news:5", Date: "2026-03-01", Themes: []string{"inflation"}},
	}
	got := BucketStories(docs, today.Truncate(24*time.Hour), StoryConfig{WindowDays: 7, BucketDays: 3}, 3)
	if len(got) != 1 {
		t.Fatalf("BucketStories() = %+v, want one story", got)
	}
	s := got[0]
	if s.Theme != "inflation" || s.Start != "2026-03-17" || s.End != "2026-03-19" || len(s.DocIDs) != 3 {
		t.Fatalf("story = %+v", s)
	}
	if s.ID != StoryID("inflation", "2026-03-17", 3) {
		t.Fatalf("story id = %s, want %s", s.ID, StoryID("inflation", "2026-03-17", 3))
	}

	loose := BucketStories(docs, today.Truncate(24*time.Hour), StoryConfig{WindowDays: 7, BucketDays: 3}, 2)
	if len(loose) != 2 || loose[0].Theme != "inflation" || loose[1].Theme != "rates" {
		t.Fatalf("BucketStories(minDocs=2) = %+v", loose)
	}
}

func seedDocument(t *testing.T, g *memgraph.Graph, id, category string, published time.Time) {
	t.Helper()
	w := graph.NewWriter(graph.NewWriterParams{Store: g, Now: fixedNow})
	_, err := w.UpsertDocument(context.Background(), common.Document{
		ID: id, Source: "news", SourceID: id, Title: id, Text: "body", Category: category,
		Country: "US", PublishedAt: published,
	})
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
}

func TestClusterStories_StableAndReplacing(t *testing.T) {
	g := newGraph()
	for _, d := range []struct {
		id, category string
		at           time.Time
	}{
		{"news:1", "inflation", today.AddDate(0, 0, -1)},
		{"news:2", "prices", today.AddDate(0, 0, -1)},
		{"news:3", "inflation", today},
		{"news:4", "bonds", today},
		{"news:5", "bonds", today.AddDate(0, 0, -1)},
	} {
		seedDocument(t, g, d.id, d.category, d.at)
	}
	mustExec(t, g, graphdb.MergeNode(graphdb.StoryRef("story:stale"),
		map[string]any{"method": StoryMethod, "window_days": 7, "theme": "fx"}, nil))

	a := NewAnalyzer(NewAnalyzerParams{Store: g, Now: fixedNow})
	first := a.ClusterStories(context.Background(), StoryOptions{})
	if first.Status != common.StatusSuccess || first.Written != 1 {
		t.Fatalf("ClusterStories() = %+v", first)
	}
	if first.Params["window_days"] != 7 {
		t.Fatalf("chosen window = %v, want the first attempt since no config beats it", first.Params["window_days"])
	}
	if _, ok := g.Node(graphdb.LabelStory, "id", "story:stale"); ok {
		t.Fatal("stale story of the same method and window survived")
	}
	id := StoryID("inflation", "2026-03-17", 3)
	s, ok := g.Node(graphdb.LabelStory, "id", id)
	if !ok || s.Int("doc_count") != 3 {
		t.Fatalf("story = %v, %v", s, ok)
	}
	if got := g.CountRelationships(graphdb.RelIncludes); got != 3 {
		t.Fatalf("INCLUDES = %d, want 3", got)
	}

	second := a.ClusterStories(context.Background(), StoryOptions{})
	if second.Summary.NodesCreated != 0 {
		t.Fatalf("second ClusterStories() created %d nodes", second.Summary.NodesCreated)
	}
	if got := g.CountNodes(graphdb.LabelStory); got != 1 {
		t.Fatalf("stories after rerun = %d, want 1", got)
	}
	if got := g.CountRelationships(graphdb.RelIncludes); got != 3 {
		t.Fatalf("INCLUDES after rerun = %d, want 3", got)
	}
}

func TestClusterStories_NoData(t *testing.T) {
	g := newGraph()
	seedDocument(t, g, "news:1", "inflation", today)
	a := NewAnalyzer(NewAnalyzerParams{Store: g, Now: fixedNow})
	report := a.ClusterStories(context.Background(), StoryOptions{})
	if report.Status != common.StatusNoData {
		t.Fatalf("ClusterStories() = %+v, want no_data", report)
	}
}

func TestBuildMacroState_ReplacesRelationships(t *testing.T) {
	g := newGraph()
	seedDocument(t, g, "news:1", "inflation", today)
	seedDocument(t, g, "news:2", "inflation", today.AddDate(0, 0, -1))
	seedDocument(t, g, "news:3", "bonds", today.AddDate(0, 0, -2))
	seedEvent(t, g, "evt:a", graphdb.FormatDate(today), "UST2Y", map[string]any{"weight": 0.8, "polarity": "positive"})
	seedEvent(t, g, "evt:b", graphdb.FormatDate(today), "USDKRW", map[string]any{"weight": 0.4, "polarity": "negative"})
	a := NewAnalyzer(NewAnalyzerParams{Store: g, Now: fixedNow})

	report := a.BuildMacroState(context.Background(), today, MacroStateOptions{TopThemes: 1})
	if report.Status != common.StatusSuccess {
		t.Fatalf("BuildMacroState() = %+v", report)
	}
	rels := g.Relationships(graphdb.RelDominantTheme)
	if len(rels) != 1 || rels[0].To.String("id") != "inflation" {
		t.Fatalf("DOMINANT_THEME = %+v", rels)
	}
	signals := g.Relationships(graphdb.RelTopSignal)
	if len(signals) != 2 || signals[0].To.String("code") != "UST2Y" || signals[0].Props.Int("rank") != 1 {
		t.Fatalf("TOP_SIGNAL = %+v", signals)
	}

	seedDocument(t, g, "news:4", "bonds", today)
	seedDocument(t, g, "news:5", "bonds", today)
	a.BuildMacroState(context.Background(), today, MacroStateOptions{TopThemes: 1})
	rels = g.Relationships(graphdb.RelDominantTheme)
	if len(rels) != 1 || rels[0].To.String("id") != "rates" {
		t.Fatalf("DOMINANT_THEME after rebuild = %+v, want only rates", rels)
	}
	if got := g.CountRelationships(graphdb.RelTopSignal); got != 2 {
		t.Fatalf("TOP_SIGNAL after rebuild = %d, want 2", got)
	}
	if got := g.CountNodes(graphdb.LabelMacroState); got != 1 {
		t.Fatalf("MacroState nodes = %d, want 1", got)
	}
}

func TestTopSignals(t *testing.T) {
	got := TopSignals([]AffectsEdge{
		{Code: "UST2Y", Weight: 0.5, Polarity: "positive"},
		{Code: "UST2Y", Weight: 0.7, Polarity: "negative"},
		{Code: "WTI", Weight: 0.9, Polarity: "positive"},
		{Code: "KOSPI", Weight: 0.1},
	}, 2)
	if len(got) != 2 || got[0].Code != "WTI" || got[1].Code != "UST2Y" {
		t.Fatalf("TopSignals() = %+v", got)
	}
	if got[1].Polarity != "negative" || got[1].EventCount != 2 || got[1].Score != 0.7 {
		t.Fatalf("UST2Y signal = %+v", got[1])
	}
}
