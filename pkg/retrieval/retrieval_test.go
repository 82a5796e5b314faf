package retrieval_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/graph"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb/memgraph"
	"github.com/OFFIS-RIT/macrokg/pkg/retrieval"
	"github.com/OFFIS-RIT/macrokg/pkg/retrieval/retrievaltest"
)

var asOf = time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, fulltext bool) (*retrieval.Retriever, retrievaltest.Corpus) {
	t.Helper()
	g := memgraph.New()
	retrievaltest.Wire(g)
	if fulltext {
		retrievaltest.WireFulltext(g)
	}
	corpus, err := retrievaltest.SeedCorpus(context.Background(), g, asOf)
	if err != nil {
		t.Fatalf("SeedCorpus() error = %v", err)
	}
	return retrieval.NewRetriever(retrieval.NewRetrieverParams{Store: g, Now: func() time.Time { return asOf }}), corpus
}

func docIDs(docs []retrieval.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestValidate(t *testing.T) {
	r := retrieval.NewRetriever(retrieval.NewRetrieverParams{Store: memgraph.New(), Now: func() time.Time { return asOf }})
	tests := []struct {
		name    string
		req     retrieval.Request
		err     error
		country string
		from    string
	}{
		{"defaults", retrieval.Request{Question: "inflation?"}, nil, "", "2026-02-16"},
		{"empty question", retrieval.Request{Question: "  "}, retrieval.ErrEmptyQuestion, "", ""},
		{"bad range", retrieval.Request{Question: "q", TimeRange: "1y"}, retrieval.ErrInvalidTimeRange, "", ""},
		{"unsupported code", retrieval.Request{Question: "q", CountryCode: "FR"}, retrieval.ErrUnsupportedCountry, "", ""},
		{"unknown country", retrieval.Request{Question: "q", Country: "Atlantis"}, retrieval.ErrUnsupportedCountry, "", ""},
		{"supported code", retrieval.Request{Question: "q", TimeRange: "7d", CountryCode: "US"}, nil, "US", "2026-03-11"},
		{"country name", retrieval.Request{Question: "q", TimeRange: "90D", Country: "South Korea"}, nil, "KR", "2025-12-18"},
		{"code wins", retrieval.Request{Question: "q", Country: "Korea", CountryCode: "us"}, nil, "US", "2026-02-16"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			scope, err := r.Validate(tc.req)
			if tc.err != nil {
				if !errors.Is(err, tc.err) || !errors.Is(err, common.ErrValidation) {
					t.Fatalf("Validate() error = %v, want %v", err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if scope.Country != tc.country || scope.From != tc.from || scope.To != "2026-03-18" {
				t.Fatalf("Validate() = %+v, want country %q from %s", scope, tc.country, tc.from)
			}
		})
	}
}

func TestBuildContext_ScopeValidation(t *testing.T) {
	r, _ := setup(t, false)
	if _, err := r.BuildContext(context.Background(), retrieval.Request{Question: "inflation", CountryCode: "FR"}); !errors.Is(err, retrieval.ErrUnsupportedCountry) {
		t.Fatalf("BuildContext(FR) error = %v, want ErrUnsupportedCountry", err)
	}
	if _, err := r.BuildContext(context.Background(), retrieval.Request{Question: "inflation", CountryCode: "US"}); err != nil {
		t.Fatalf("BuildContext(US) error = %v", err)
	}
}

func TestBuildContext_FallbackWithoutIndex(t *testing.T) {
	r, corpus := setup(t, false)
	trace := retrieval.NewTrace()
	resp, err := r.BuildContext(context.Background(), retrieval.Request{
		Question: "Is US inflation still high?", TimeRange: "7d", CountryCode: "US", Tracer: trace,
	})
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	if resp.Status != common.StatusSuccess {
		t.Fatalf("Status = %s (%s)", resp.Status, resp.Message)
	}
	if !resp.Warnings.FulltextUnavailable {
		t.Fatal("FulltextUnavailable = false, want true without index")
	}
	if got, want := docIDs(resp.Documents), []string{"news:1", "news:3"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Documents = %v, want %v", got, want)
	}
	if resp.Documents[0].Origin != "fallback" {
		t.Fatalf("Origin = %s, want fallback", resp.Documents[0].Origin)
	}
	if resp.Warnings.MissingCountry != 1 || resp.Warnings.OutOfScope != 1 || resp.Warnings.CountryMismatch != 0 {
		t.Fatalf("Warnings = %+v", resp.Warnings)
	}
	if resp.ThemeSource != "keyword" || !reflect.DeepEqual(resp.Themes, []string{"inflation"}) {
		t.Fatalf("Themes = %v (%s)", resp.Themes, resp.ThemeSource)
	}
	if len(resp.Events) != 1 || resp.Events[0].ID != corpus.EventID {
		t.Fatalf("Events = %+v", resp.Events)
	}
	if got, want := resp.EvidenceIDs(), []string{corpus.FactEvidence, corpus.ClaimEvidence}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Evidences = %v, want %v", got, want)
	}
	if len(resp.SuggestedQueries) == 0 {
		t.Fatal("SuggestedQueries is empty")
	}

	snap := trace.Snapshot()
	if !reflect.DeepEqual(snap.Used, []string{"news:1", "news:3"}) {
		t.Fatalf("trace used = %v", snap.Used)
	}
	if snap.Errors[retrieval.TraceFulltext] == "" {
		t.Fatal("trace did not record the full-text failure")
	}
}

func TestBuildContext_FulltextFirst(t *testing.T) {
	r, _ := setup(t, true)
	resp, err := r.BuildContext(context.Background(), retrieval.Request{Question: "dollar won", TimeRange: "7d"})
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	if resp.Warnings.FulltextUnavailable {
		t.Fatal("FulltextUnavailable = true with index")
	}
	// the title-weighted fallback would rank news:2 first
	if got, want := docIDs(resp.Documents), []string{"news:6", "news:2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Documents = %v, want %v", got, want)
	}
	for _, d := range resp.Documents {
		if d.Origin != "fulltext" {
			t.Fatalf("%s origin = %s, want fulltext", d.ID, d.Origin)
		}
	}
	if len(resp.Evidences) != 0 {
		t.Fatalf("Evidences = %v, want none", resp.Evidences)
	}
}

func TestBuildContext_FrequentThemes(t *testing.T) {
	r, _ := setup(t, false)
	resp, err := r.BuildContext(context.Background(), retrieval.Request{Question: "What happened?", TimeRange: "7d"})
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	if resp.ThemeSource != "frequency" || !reflect.DeepEqual(resp.Themes, []string{"fx", "inflation"}) {
		t.Fatalf("Themes = %v (%s), want frequency fallback", resp.Themes, resp.ThemeSource)
	}
	if got := len(resp.Documents); got != 4 {
		t.Fatalf("Documents = %v, want 4 in-scope documents", docIDs(resp.Documents))
	}
	for _, d := range resp.Documents {
		if d.Origin != "graph" {
			t.Fatalf("%s origin = %s, want graph", d.ID, d.Origin)
		}
	}
}

func TestBuildContext_NoData(t *testing.T) {
	g := memgraph.New()
	retrievaltest.Wire(g)
	r := retrieval.NewRetriever(retrieval.NewRetrieverParams{Store: g, Now: func() time.Time { return asOf }})
	resp, err := r.BuildContext(context.Background(), retrieval.Request{Question: "inflation"})
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	if resp.Status != common.StatusNoData {
		t.Fatalf("Status = %s, want no_data", resp.Status)
	}
}

func TestBuildContext_UntranslatedBody(t *testing.T) {
	g := memgraph.New()
	retrievaltest.Wire(g)
	if _, err := retrievaltest.SeedCorpus(context.Background(), g, asOf); err != nil {
		t.Fatalf("SeedCorpus() error = %v", err)
	}
	w := graph.NewWriter(graph.NewWriterParams{Store: g, Now: func() time.Time { return asOf }})
	doc := common.Document{
		Source: "news", SourceID: "9", Title: "Market wrap", Country: "US",
		Text: "Copper futures surged on smelter outages.", PublishedAt: asOf.AddDate(0, 0, -1),
	}
	if _, err := w.UpsertDocument(context.Background(), doc); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}

	r := retrieval.NewRetriever(retrieval.NewRetrieverParams{Store: g, Now: func() time.Time { return asOf }})
	resp, err := r.BuildContext(context.Background(), retrieval.Request{Question: "What happened to copper futures?", TimeRange: "7d"})
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	var got *retrieval.Document
	for i := range resp.Documents {
		if resp.Documents[i].ID == "news:9" {
			got = &resp.Documents[i]
		}
	}
	if got == nil {
		t.Fatalf("Documents = %v, want news:9", docIDs(resp.Documents))
	}
	if got.Origin != "fallback" || !strings.Contains(got.Snippet, "smelter outages") {
		t.Fatalf("Document = %s %q, want a fallback hit with the body snippet", got.Origin, got.Snippet)
	}
}
