package graph

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/extract"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb/memgraph"
	"github.com/OFFIS-RIT/macrokg/pkg/nel"
	"github.com/OFFIS-RIT/macrokg/pkg/normalize"
)

var t0 = time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newGraph returns a memgraph with the candidate query wired to the same
// rules ListCandidates applies.
func newGraph() *memgraph.Graph {
	g := memgraph.New()
	g.Handle(ListCandidatesQuery, func(g *memgraph.Graph, params map[string]any) ([]graphdb.Record, error) {
		before := params["retry_before"].(string)
		limit := params["limit"].(int)
		var out []graphdb.Record
		for _, d := range g.Nodes(graphdb.LabelDocument) {
			status := d.String("extraction_status")
			updated := d.String("extraction_updated_at")
			if status != "" && status != StatusPending && !(status == StatusFailed && (updated == "" || updated < before)) {
				continue
			}
			out = append(out, graphdb.Record{
				"id": d["id"], "title": d["title"], "text": d["text"], "category": d["category"],
				"country": d["country"], "published_at": d["published_at"],
				"status": d["extraction_status"], "updated_at": d["extraction_updated_at"],
			})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].String("published_at") > out[j].String("published_at") })
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	})
	return g
}

func testDoc(id string, published time.Time) common.Document {
	return common.Document{
		ID:          id,
		Source:      "news",
		SourceID:    id,
		Title:       "Fed holds rates as inflation stays high",
		Text:        "The Fed held rates steady. Consumer prices rose 3.2% in March.",
		Category:    "inflation",
		Country:     "United States",
		PublishedAt: published,
	}
}

func testResult(docID string) *extract.Result {
	evID := util.HashID("evt", docID, "fed holds rates")
	factID := util.HashID("fact", docID, "consumer prices rose 3.2%")
	value := 3.2
	return &extract.Result{
		DocID: docID,
		Events: []common.Event{{
			ID: evID, DocumentID: docID, Name: "Fed holds rates", Date: t0, Country: "US",
			Sentiment: "neutral", ThemeIDs: []string{"inflation", "monetary_policy"},
			Impacts: []common.IndicatorImpact{{Code: "UST2Y", Polarity: "positive", ImpactLevel: "high",
				Weight: 0.9, Confidence: 0.9, HorizonDays: 5, Method: "extraction"}},
		}},
		Facts: []common.Fact{{
			ID: factID, DocumentID: docID, EventID: evID, Statement: "Consumer prices rose 3.2%",
			FactType: "statistic", Value: &value, Sentiment: "negative", Confidence: 0.8,
			EntityIDs: []string{"ent:bls"},
			Evidence:  []common.Evidence{{ID: util.HashID("evd", factID, "x"), Text: "Consumer prices rose 3.2% in March.", DocumentID: docID}},
		}},
		Claims: []common.Claim{{
			ID: util.HashID("claim", docID, "too high"), DocumentID: docID, Statement: "Inflation is too high",
			ClaimType: "assessment", Sentiment: "negative",
			Evidence: []common.Evidence{{ID: util.HashID("evd", "claim", "y"), Text: "Inflation remains too high.", DocumentID: docID}},
		}},
		Links: []common.Link{
			{ID: "l1", DocumentID: docID, Source: evID, SourceType: common.EndpointEvent,
				Target: "ent:federal_reserve", TargetType: common.EndpointEntity, Relationship: "RELATED_TO",
				Evidence: []common.Evidence{{ID: util.HashID("evd", "l1", "z"), Text: "The Fed held rates steady.", DocumentID: docID}}},
			{ID: "l2", DocumentID: docID, Source: "Something", Target: "Else", Relationship: "CAUSES"},
		},
		Entities: []common.Entity{
			{ID: "ent:federal_reserve", Name: "Federal Reserve", Type: "central_bank"},
			{ID: "ent:bls", Name: "Bureau of Labor Statistics", Type: "government"},
		},
		Mentions: []nel.Mention{
			{Text: "Fed", Resolved: true, EntityID: "ent:federal_reserve", Name: "Federal Reserve"},
			{Text: "Acme", Resolved: false},
		},
	}
}

func TestIsCandidate(t *testing.T) {
	cooldown := 60 * time.Minute
	tests := []struct {
		name    string
		status  string
		updated time.Time
		now     time.Time
		want    bool
	}{
		{"missing status", "", time.Time{}, t0, true},
		{"pending", StatusPending, t0, t0, true},
		{"success", StatusSuccess, t0, t0.Add(24 * time.Hour), false},
		{"failed inside cooldown", StatusFailed, t0, t0.Add(cooldown - time.Minute), false},
		{"failed at cooldown", StatusFailed, t0, t0.Add(cooldown), false},
		{"failed after cooldown", StatusFailed, t0, t0.Add(cooldown + time.Minute), true},
		{"failed without timestamp", StatusFailed, time.Time{}, t0, true},
		{"unknown status", "archived", time.Time{}, t0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsCandidate(tc.status, tc.updated, tc.now, cooldown); got != tc.want {
				t.Fatalf("IsCandidate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUpsertDocument_Idempotent(t *testing.T) {
	ctx := context.Background()
	g := newGraph()
	w := NewWriter(NewWriterParams{Store: g, Now: func() time.Time { return t0 }})
	doc := testDoc("news:1", t0)

	first, err := w.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if first.NodesCreated != 3 || first.RelationshipsCreated != 2 {
		t.Fatalf("first UpsertDocument() = %+v, want 3 nodes 2 relationships", first)
	}
	n, _ := g.Node(graphdb.LabelDocument, "id", "news:1")
	if n.String("extraction_status") != StatusPending || n.String("country") != "US" {
		t.Fatalf("document = %v", n)
	}

	if err := w.MarkSuccess(ctx, "news:1", "m", "v1", t0); err != nil {
		t.Fatalf("MarkSuccess() error = %v", err)
	}
	doc.Title = "updated title"
	second, err := w.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if second.Created() {
		t.Fatalf("second UpsertDocument() created elements: %+v", second)
	}
	n, _ = g.Node(graphdb.LabelDocument, "id", "news:1")
	if n.String("extraction_status") != StatusSuccess {
		t.Fatalf("re-sync reset status to %q", n.String("extraction_status"))
	}
	if n.String("title") != "updated title" {
		t.Fatalf("title = %q, want updated title", n.String("title"))
	}
}

func TestWriteExtraction_Idempotent(t *testing.T) {
	ctx := context.Background()
	g := newGraph()
	w := NewWriter(NewWriterParams{Store: g, Now: func() time.Time { return t0 }})
	doc := testDoc("news:1", t0)
	if _, err := w.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	res := testResult(doc.ID)

	first, err := w.WriteExtraction(ctx, doc, res)
	if err != nil {
		t.Fatalf("WriteExtraction() error = %v", err)
	}
	if !first.Created() {
		t.Fatalf("first WriteExtraction() created nothing")
	}
	nodes := map[string]int{}
	for _, l := range []string{graphdb.LabelEvent, graphdb.LabelFact, graphdb.LabelClaim, graphdb.LabelEvidence, graphdb.LabelEntity, graphdb.LabelAlias} {
		nodes[l] = g.CountNodes(l)
	}

	second, err := w.WriteExtraction(ctx, doc, res)
	if err != nil {
		t.Fatalf("WriteExtraction() error = %v", err)
	}
	if second.NodesCreated != 0 || second.RelationshipsCreated != 0 {
		t.Fatalf("second WriteExtraction() = %+v, want zero creations", second)
	}
	for l, n := range nodes {
		if got := g.CountNodes(l); got != n {
			t.Fatalf("%s count = %d after rerun, want %d", l, got, n)
		}
	}

	wantCounts := map[string]int{
		graphdb.RelMentionsEvent: 1,
		graphdb.RelHasFact:       1,
		graphdb.RelHasClaim:      1,
		graphdb.RelSupportedBy:   2,
		graphdb.RelFromDocument:  3,
		graphdb.RelAffects:       1,
		graphdb.RelMentions:      2,
		graphdb.RelAliasOf:       1,
		graphdb.RelLinked:        1,
		graphdb.RelAboutEntity:   1,
	}
	for rel, want := range wantCounts {
		if got := g.CountRelationships(rel); got != want {
			t.Errorf("%s relationships = %d, want %d", rel, got, want)
		}
	}

	var eventThemes []string
	for _, r := range g.Relationships(graphdb.RelAboutTheme) {
		if r.FromLabel == graphdb.LabelEvent {
			eventThemes = append(eventThemes, r.To.String("id"))
		}
	}
	sort.Strings(eventThemes)
	if len(eventThemes) != 2 || eventThemes[0] != "inflation" {
		t.Fatalf("event themes = %v", eventThemes)
	}

	aff := g.Relationships(graphdb.RelAffects)[0]
	if aff.Props.String("source") != "llm" || aff.Props.String("method") != "extraction" || aff.Props.Float("weight") != 0.9 {
		t.Fatalf("AFFECTS props = %v", aff.Props)
	}
}

func TestWriteExtraction_WeightOnlyOnCreate(t *testing.T) {
	ctx := context.Background()
	g := newGraph()
	w := NewWriter(NewWriterParams{Store: g, Now: func() time.Time { return t0 }})
	doc := testDoc("news:1", t0)
	_, _ = w.UpsertDocument(ctx, doc)
	res := testResult(doc.ID)
	_, _ = w.WriteExtraction(ctx, doc, res)

	g.SetRelProps(graphdb.RelAffects, func(memgraph.RelView) bool { return true },
		map[string]any{"weight": 0.42, "method": "recalibration"})
	if _, err := w.WriteExtraction(ctx, doc, res); err != nil {
		t.Fatalf("WriteExtraction() error = %v", err)
	}
	aff := g.Relationships(graphdb.RelAffects)[0]
	if aff.Props.Float("weight") != 0.42 || aff.Props.String("method") != "recalibration" {
		t.Fatalf("AFFECTS props after rewrite = %v", aff.Props)
	}
}

func TestWriteExtraction_Links(t *testing.T) {
	evID := util.HashID("evt", "news:1", "fed holds rates")
	tests := []struct {
		name     string
		link     common.Link
		from, to string
	}{
		{"entity to entity", common.Link{ID: "l3", Source: "ent:jerome_powell", SourceType: common.EndpointEntity,
			Target: "ent:federal_reserve", TargetType: common.EndpointEntity, Relationship: "RELATED_TO"},
			"ent:jerome_powell", "ent:federal_reserve"},
		{"entity to event", common.Link{ID: "l4", Source: "ent:ecb", SourceType: common.EndpointEntity,
			Target: evID, TargetType: common.EndpointEvent, Relationship: "CAUSES"},
			"ent:ecb", evID},
		{"unknown entity", common.Link{ID: "l5", Source: evID, SourceType: common.EndpointEvent,
			Target: "ent:acme", TargetType: common.EndpointEntity, Relationship: "RELATED_TO"},
			evID, "ent:acme"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			g := newGraph()
			w := NewWriter(NewWriterParams{Store: g, Now: func() time.Time { return t0 }})
			doc := testDoc("news:1", t0)
			_, _ = w.UpsertDocument(ctx, doc)
			res := testResult(doc.ID)
			res.Links = []common.Link{tc.link}

			if _, err := w.WriteExtraction(ctx, doc, res); err != nil {
				t.Fatalf("WriteExtraction() error = %v", err)
			}
			links := g.Relationships(graphdb.RelLinked)
			if len(links) != 1 {
				t.Fatalf("LINKED relationships = %d, want 1", len(links))
			}
			if got := links[0].From.String("id") + " -> " + links[0].To.String("id"); got != tc.from+" -> "+tc.to {
				t.Fatalf("LINKED = %s, want %s -> %s", got, tc.from, tc.to)
			}
			for _, id := range []string{tc.from, tc.to} {
				n, ok := g.Node(graphdb.LabelEntity, "id", id)
				if strings.HasPrefix(id, "ent:") && (!ok || n.String("name") == "") {
					t.Fatalf("entity %s = %v, want a named node", id, n)
				}
			}
		})
	}
}

func TestWriteExtraction_LinkEntityFromDictionary(t *testing.T) {
	ctx := context.Background()
	g := newGraph()
	w := NewWriter(NewWriterParams{Store: g})
	doc := testDoc("news:1", t0)
	_, _ = w.UpsertDocument(ctx, doc)
	res := testResult(doc.ID)
	res.Links = []common.Link{{ID: "l4", Source: "ent:ecb", SourceType: common.EndpointEntity,
		Target: res.Events[0].ID, TargetType: common.EndpointEvent, Relationship: "CAUSES"}}
	if _, err := w.WriteExtraction(ctx, doc, res); err != nil {
		t.Fatalf("WriteExtraction() error = %v", err)
	}
	n, _ := g.Node(graphdb.LabelEntity, "id", "ent:ecb")
	if n.String("name") != "European Central Bank" || n.String("type") != "central_bank" {
		t.Fatalf("entity = %v, want the dictionary name and type", n)
	}
}

func TestWriteExtraction_ImpactCalibrationSurvivesRerun(t *testing.T) {
	ctx := context.Background()
	g := newGraph()
	w := NewWriter(NewWriterParams{Store: g, Now: func() time.Time { return t0 }})
	doc := testDoc("news:1", t0)
	_, _ = w.UpsertDocument(ctx, doc)
	res := testResult(doc.ID)
	_, _ = w.WriteExtraction(ctx, doc, res)

	g.SetRelProps(graphdb.RelAffects, func(memgraph.RelView) bool { return true },
		map[string]any{"polarity": "negative", "method": "recalibration"})
	if _, err := w.WriteExtraction(ctx, doc, res); err != nil {
		t.Fatalf("WriteExtraction() error = %v", err)
	}
	aff := g.Relationships(graphdb.RelAffects)[0]
	if got := aff.Props.String("polarity"); got != "negative" {
		t.Fatalf("AFFECTS polarity after rerun = %q, want negative", got)
	}
}

func TestUpsertDocument_TranslatedText(t *testing.T) {
	tests := []struct {
		name       string
		translated string
		want       any
		stored     bool
	}{
		{"none", "", nil, false},
		{"blank", "  \n ", nil, false},
		{"present", "Die Fed hielt die Zinsen.", "Die Fed hielt die Zinsen.", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := newGraph()
			w := NewWriter(NewWriterParams{Store: g, Now: func() time.Time { return t0 }})
			doc := testDoc("news:1", t0)
			doc.TranslatedText = tc.translated
			if _, err := w.UpsertDocument(context.Background(), doc); err != nil {
				t.Fatalf("UpsertDocument() error = %v", err)
			}
			n, _ := g.Node(graphdb.LabelDocument, "id", "news:1")
			got, ok := n["translated_text"]
			if ok != tc.stored || got != tc.want {
				t.Fatalf("translated_text = %v (stored %v), want %v (stored %v)", got, ok, tc.want, tc.stored)
			}
		})
	}

	// a translation removed upstream clears the stored one
	g := newGraph()
	w := NewWriter(NewWriterParams{Store: g, Now: func() time.Time { return t0 }})
	doc := testDoc("news:1", t0)
	doc.TranslatedText = "Die Fed hielt die Zinsen."
	_, _ = w.UpsertDocument(context.Background(), doc)
	doc.TranslatedText = ""
	_, _ = w.UpsertDocument(context.Background(), doc)
	if n, _ := g.Node(graphdb.LabelDocument, "id", "news:1"); n["translated_text"] != nil {
		t.Fatalf("translated_text after clearing = %v, want removed", n["translated_text"])
	}
}

func TestSeedTaxonomy(t *testing.T) {
	ctx := context.Background()
	g := newGraph()
	w := NewWriter(NewWriterParams{Store: g})
	if _, err := w.SeedTaxonomy(ctx); err != nil {
		t.Fatalf("SeedTaxonomy() error = %v", err)
	}
	if got, want := g.CountNodes(graphdb.LabelTheme), len(normalize.Themes()); got != want {
		t.Fatalf("themes = %d, want %d", got, want)
	}
	if got, want := g.CountNodes(graphdb.LabelIndicator), len(normalize.Indicators()); got != want {
		t.Fatalf("indicators = %d, want %d", got, want)
	}
	again, err := w.SeedTaxonomy(ctx)
	if err != nil {
		t.Fatalf("SeedTaxonomy() error = %v", err)
	}
	if again.Created() {
		t.Fatalf("second SeedTaxonomy() created elements: %+v", again)
	}
}

type fakeExtractor struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeExtractor) ExtractDocument(_ context.Context, doc common.Document) extract.Result {
	f.mu.Lock()
	f.calls = append(f.calls, doc.ID)
	f.mu.Unlock()
	if f.fail[doc.ID] {
		return extract.Result{DocID: doc.ID, ErrorMessages: []string{"model call: timeout"}}
	}
	return *testResult(doc.ID)
}

func (f *fakeExtractor) Model() string   { return "fake-model" }
func (f *fakeExtractor) Version() string { return "v1" }

func seedDocs(t *testing.T, w *Writer, n int) {
	t.Helper()
	for i := range n {
		id := "news:" + string(rune('a'+i))
		if _, err := w.UpsertDocument(context.Background(), testDoc(id, t0.Add(-time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("UpsertDocument() error = %v", err)
		}
	}
}

func TestBacklog_PartialFailureAndCooldown(t *testing.T) {
	ctx := context.Background()
	g := newGraph()
	clk := &clock{now: t0}
	w := NewWriter(NewWriterParams{Store: g, Now: clk.Now})
	seedDocs(t, w, 3)
	ex := &fakeExtractor{fail: map[string]bool{"news:b": true}}
	backlog := NewBacklog(w, ex)
	opts := BacklogOptions{BatchSize: 10, MaxBatches: 3, RetryAfter: time.Hour}

	report := backlog.Run(ctx, opts)
	if report.Processed != 3 || report.Succeeded != 2 || report.Failed != 1 {
		t.Fatalf("Run() = %+v", report)
	}
	if len(report.FailedIDs) != 1 || report.FailedIDs[0] != "news:b" {
		t.Fatalf("FailedIDs = %v, want [news:b]", report.FailedIDs)
	}
	if report.Status != common.StatusSuccess {
		t.Fatalf("Status = %q", report.Status)
	}
	n, _ := g.Node(graphdb.LabelDocument, "id", "news:b")
	if n.String("extraction_status") != StatusFailed || n.String("extraction_error") == "" {
		t.Fatalf("failed document = %v", n)
	}
	n, _ = g.Node(graphdb.LabelDocument, "id", "news:a")
	if n.String("extraction_status") != StatusSuccess || n.String("extraction_model") != "fake-model" {
		t.Fatalf("succeeded document = %v", n)
	}

	clk.Advance(59 * time.Minute)
	report = backlog.Run(ctx, opts)
	if report.Processed != 0 || report.Status != common.StatusNoData {
		t.Fatalf("Run() inside cooldown = %+v", report)
	}

	clk.Advance(2 * time.Minute)
	ex.fail = nil
	report = backlog.Run(ctx, opts)
	if report.Processed != 1 || report.Succeeded != 1 {
		t.Fatalf("Run() after cooldown = %+v", report)
	}
}

func TestBacklog_Bounded(t *testing.T) {
	g := newGraph()
	w := NewWriter(NewWriterParams{Store: g, Now: func() time.Time { return t0 }})
	seedDocs(t, w, 5)
	ex := &fakeExtractor{}

	report := NewBacklog(w, ex).Run(context.Background(), BacklogOptions{BatchSize: 2, MaxBatches: 2})
	if report.Processed != 4 || report.Batches != 2 {
		t.Fatalf("Run() = %+v, want 4 processed in 2 batches", report)
	}
	if len(ex.calls) != 4 || ex.calls[0] != "news:a" {
		t.Fatalf("extractor calls = %v", ex.calls)
	}
}

func TestBacklog_ListError(t *testing.T) {
	g := memgraph.New()
	w := NewWriter(NewWriterParams{Store: g})
	g.Handle(ListCandidatesQuery, func(*memgraph.Graph, map[string]any) ([]graphdb.Record, error) {
		return nil, errors.New("connection refused")
	})
	report := NewBacklog(w, &fakeExtractor{}).Run(context.Background(), BacklogOptions{})
	if report.Status != common.StatusError {
		t.Fatalf("Status = %q, want error", report.Status)
	}
}

func TestBacklog_UnmarkedSuccessIsRetried(t *testing.T) {
	tests := []struct {
		name      string
		failMarks int
		succeeded int
		unmarked  []string
		status    string
	}{
		{"transient", 1, 2, []string{}, StatusSuccess},
		{"persistent", 100, 1, []string{"news:a"}, StatusPending},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := newGraph()
			w := NewWriter(NewWriterParams{Store: g, Now: func() time.Time { return t0 }})
			seedDocs(t, w, 2)
			left := tc.failMarks
			g.FailWrite = func(st graphdb.Statement) error {
				sp := st.Spec
				if sp == nil || sp.Kind != graphdb.SpecUpdateNode || sp.From.Key != "news:a" ||
					sp.Props["extraction_status"] != StatusSuccess || left == 0 {
					return nil
				}
				left--
				return errors.New("leader changed")
			}

			report := NewBacklog(w, &fakeExtractor{}).Run(context.Background(), BacklogOptions{BatchSize: 10, MaxBatches: 3})
			if report.Succeeded != tc.succeeded || report.Failed != 0 {
				t.Fatalf("Run() = %+v, want %d succeeded", report, tc.succeeded)
			}
			if !slices.Equal(report.UnmarkedIDs, tc.unmarked) {
				t.Fatalf("UnmarkedIDs = %v, want %v", report.UnmarkedIDs, tc.unmarked)
			}
			n, _ := g.Node(graphdb.LabelDocument, "id", "news:a")
			if got := n.String("extraction_status"); got != tc.status {
				t.Fatalf("extraction_status = %q, want %q", got, tc.status)
			}
		})
	}
}
