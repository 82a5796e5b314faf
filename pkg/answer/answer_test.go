package answer_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/macrokg/pkg/ai"
	"github.com/OFFIS-RIT/macrokg/pkg/answer"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb/memgraph"
	"github.com/OFFIS-RIT/macrokg/pkg/retrieval"
	"github.com/OFFIS-RIT/macrokg/pkg/retrieval/retrievaltest"
)

var asOf = time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

type fakeAI struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []string
	opts    []ai.GenerateOptions
}

func (f *fakeAI) GenerateCompletion(_ context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, ai.ApplyOptions(ai.GenerateOptions{}, opts...))
	return f.reply, f.err
}

func (f *fakeAI) GenerateCompletionWithFormat(context.Context, string, string, string, any, ...ai.GenerateOption) error {
	return errors.New("not used")
}

func (f *fakeAI) ResetMetrics()               {}
func (f *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type fixture struct {
	graph  *memgraph.Graph
	corpus retrievaltest.Corpus
	ai     *fakeAI
	gen    *answer.Generator
	tokens int
}

func wireRuns(g *memgraph.Graph) {
	g.Handle(answer.CachedRunQuery, func(g *memgraph.Graph, params map[string]any) ([]graphdb.Record, error) {
		var out []graphdb.Record
		for _, r := range g.Nodes(graphdb.LabelRun) {
			if r.String("question") == params["question"] && r.String("model") == params["model"] &&
				r.String("time_range") == params["time_range"] && r.String("country") == params["country"] &&
				r.String("as_of_date") == params["as_of_date"] &&
				slices.Contains(params["statuses"].([]string), r.String("status")) {
				out = append(out, r)
			}
		}
		return out, nil
	})
}

func setup(t *testing.T, reply string, budget int) *fixture {
	t.Helper()
	f := &fixture{graph: memgraph.New(), ai: &fakeAI{reply: reply}}
	retrievaltest.Wire(f.graph)
	wireRuns(f.graph)
	corpus, err := retrievaltest.SeedCorpus(context.Background(), f.graph, asOf)
	if err != nil {
		t.Fatalf("SeedCorpus() error = %v", err)
	}
	f.corpus = corpus
	now := func() time.Time { return asOf }
	n := 0
	f.gen = answer.NewGenerator(answer.NewGeneratorParams{
		Retriever: retrieval.NewRetriever(retrieval.NewRetrieverParams{Store: f.graph, Now: now}),
		AI:        f.ai,
		Store:     f.graph,
		Now:       now,
		NewID: func() (string, error) {
			n++
			return fmt.Sprintf("run:test-%d", n), nil
		},
		CountTokens: func(s string) int {
			f.tokens++
			return len(strings.Fields(s))
		},
		DefaultModel: "gpt-test",
		TokenBudget:  budget,
	})
	return f
}

func usRequest() answer.Request {
	return answer.Request{Request: retrieval.Request{
		Question: "Is US inflation still high?", TimeRange: "7d", CountryCode: "US",
	}}
}

func TestGenerate_CitationsStayGrounded(t *testing.T) {
	f := setup(t, "", 0)
	c := f.corpus
	f.ai.reply = fmt.Sprintf(`{"answer": "Prices rose 3.2%% [[%s]] while others disagree [[evd:made-up]].",
		"key_points": ["CPI up", " "], "evidence_ids": ["%s", "evd:other", "%s"], "confidence": "High"}`,
		c.FactEvidence, c.ClaimEvidence, c.FactEvidence)

	resp, err := f.gen.Generate(context.Background(), usRequest())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Status != common.StatusSuccess {
		t.Fatalf("Status = %s (%s), want success", resp.Status, resp.Message)
	}
	var got []string
	for _, cit := range resp.Citations {
		got = append(got, cit.EvidenceID)
	}
	if want := []string{c.FactEvidence, c.ClaimEvidence}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Citations = %v, want %v", got, want)
	}
	if resp.Citations[0].DocumentID != "news:1" || resp.Citations[0].Text == "" {
		t.Fatalf("Citation = %+v, want text and document", resp.Citations[0])
	}
	if strings.Contains(resp.Answer, "made-up") || !strings.Contains(resp.Answer, "[["+c.FactEvidence+"]]") {
		t.Fatalf("Answer = %q", resp.Answer)
	}
	if !reflect.DeepEqual(resp.KeyPoints, []string{"CPI up"}) || resp.Confidence != "high" {
		t.Fatalf("KeyPoints = %v, Confidence = %q", resp.KeyPoints, resp.Confidence)
	}
	if resp.AnalysisRunID != "run:test-1" || resp.CacheHit {
		t.Fatalf("AnalysisRunID = %q, CacheHit = %v", resp.AnalysisRunID, resp.CacheHit)
	}

	if len(f.ai.prompts) != 1 || !strings.Contains(f.ai.prompts[0], "[["+c.ClaimEvidence+"]]") {
		t.Fatal("prompt does not list the context evidence")
	}
	if o := f.ai.opts[0]; o.Model != "gpt-test" || o.Timeout != answer.DefaultTimeout || len(o.SystemPrompts) != 1 {
		t.Fatalf("options = %+v", o)
	}

	run, ok := f.graph.Node(graphdb.LabelRun, "id", "run:test-1")
	if !ok {
		t.Fatal("AnalysisRun not written")
	}
	if run.Int("citation_count") != 2 || run.String("as_of_date") != "2026-03-18" || run.String("country") != "US" {
		t.Fatalf("run = %v", run)
	}
	counts := map[string]int{
		graphdb.RelUsedEvidence:  2,
		graphdb.RelUsedDocument:  2,
		graphdb.RelUsedEvent:     1,
		graphdb.RelUsedTheme:     1,
		graphdb.RelUsedIndicator: 1,
		graphdb.RelUsedStory:     0,
	}
	for rel, want := range counts {
		if got := f.graph.CountRelationships(rel); got != want {
			t.Errorf("%s = %d, want %d", rel, got, want)
		}
	}
	for _, r := range f.graph.Relationships(graphdb.RelUsedEvidence) {
		if !r.Props["cited"].(bool) {
			t.Errorf("%s cited = false, want true", r.To.String("id"))
		}
	}
}

func TestGenerate_CacheHit(t *testing.T) {
	f := setup(t, "", 0)
	f.ai.reply = fmt.Sprintf(`{"answer": "Yes [[%s]]", "key_points": ["sticky"], "evidence_ids": [], "confidence": "medium"}`,
		f.corpus.FactEvidence)
	req := usRequest()
	req.ReuseCachedRun = true

	first, err := f.gen.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := f.gen.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() second error = %v", err)
	}
	if f.ai.calls != 1 {
		t.Fatalf("model calls = %d, want 1", f.ai.calls)
	}
	if !second.CacheHit || second.AnalysisRunID != first.AnalysisRunID {
		t.Fatalf("second = %+v, want cache hit of %s", second, first.AnalysisRunID)
	}
	if second.Answer != first.Answer || !reflect.DeepEqual(second.Citations, first.Citations) ||
		!reflect.DeepEqual(second.KeyPoints, first.KeyPoints) {
		t.Fatalf("cached response differs: %+v vs %+v", second, first)
	}
	if got := f.graph.CountNodes(graphdb.LabelRun); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}

	other := req
	other.TimeRange = "30d"
	if _, err := f.gen.Generate(context.Background(), other); err != nil {
		t.Fatalf("Generate(30d) error = %v", err)
	}
	if f.ai.calls != 2 {
		t.Fatalf("model calls = %d, want a miss for another time range", f.ai.calls)
	}
}

func TestGenerate_Degrades(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"unparsable", "[1, 2, 3]", nil},
		{"empty answer", `{"answer": "  ", "evidence_ids": []}`, nil},
		{"provider error", "", context.DeadlineExceeded},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t, tc.reply, 0)
			f.ai.err = tc.err
			req := usRequest()
			req.ReuseCachedRun = true
			resp, err := f.gen.Generate(context.Background(), req)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if resp.Status != common.StatusSkipped || resp.Answer != answer.InsufficientEvidence {
				t.Fatalf("Generate() = %s %q, want skipped placeholder", resp.Status, resp.Answer)
			}
			if len(resp.Citations) != 0 || resp.Message == "" {
				t.Fatalf("Citations = %v, Message = %q", resp.Citations, resp.Message)
			}
			if _, err := f.gen.Generate(context.Background(), req); err != nil {
				t.Fatalf("Generate() retry error = %v", err)
			}
			if f.ai.calls != 2 {
				t.Fatalf("model calls = %d, want skipped runs not reused", f.ai.calls)
			}
		})
	}
}

func TestGenerate_NoEvidence(t *testing.T) {
	f := setup(t, `{"answer": "unused"}`, 0)
	resp, err := f.gen.Generate(context.Background(), answer.Request{Request: retrieval.Request{
		Question: "Why did the won slide?", TimeRange: "7d", CountryCode: "KR",
	}})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Status != common.StatusNoData || resp.Answer != answer.InsufficientEvidence {
		t.Fatalf("Generate() = %s %q, want no_data", resp.Status, resp.Answer)
	}
	if f.ai.calls != 0 {
		t.Fatalf("model calls = %d, want none", f.ai.calls)
	}
	if got := f.graph.CountRelationships(graphdb.RelUsedEvidence); got != 0 {
		t.Fatalf("USED_EVIDENCE = %d, want 0", got)
	}
}

func TestGenerate_Validation(t *testing.T) {
	f := setup(t, "", 0)
	_, err := f.gen.Generate(context.Background(), answer.Request{Request: retrieval.Request{Question: " "}})
	if !errors.Is(err, answer.ErrEmptyQuestion) || !errors.Is(err, common.ErrValidation) {
		t.Fatalf("Generate() error = %v, want ErrEmptyQuestion", err)
	}
	_, err = f.gen.Generate(context.Background(), answer.Request{Request: retrieval.Request{Question: "q", TimeRange: "2w"}})
	if !errors.Is(err, retrieval.ErrInvalidTimeRange) {
		t.Fatalf("Generate() error = %v, want ErrInvalidTimeRange", err)
	}
	if f.ai.calls != 0 {
		t.Fatalf("model calls = %d, want none", f.ai.calls)
	}
}

func TestGenerate_TokenBudget(t *testing.T) {
	f := setup(t, `{"answer": "ok", "evidence_ids": []}`, 1)
	resp, err := f.gen.Generate(context.Background(), usRequest())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Status != common.StatusSuccess {
		t.Fatalf("Status = %s (%s)", resp.Status, resp.Message)
	}
	if f.tokens == 0 {
		t.Fatal("token counter was not used")
	}
	if got := f.graph.CountRelationships(graphdb.RelUsedEvidence); got != 1 {
		t.Fatalf("USED_EVIDENCE = %d, want only the first evidence", got)
	}
	if got := f.graph.CountRelationships(graphdb.RelUsedEvent); got != 0 {
		t.Fatalf("USED_EVENT = %d, want 0 over budget", got)
	}
	if strings.Contains(f.ai.prompts[0], f.corpus.ClaimEvidence) {
		t.Fatal("prompt contains evidence beyond the budget")
	}
}

func TestGenerate_PersistFlags(t *testing.T) {
	f := setup(t, `{"answer": "ok", "evidence_ids": []}`, 0)
	off := false
	req := usRequest()
	req.PersistLinks = &off
	resp, err := f.gen.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.AnalysisRunID == "" || f.graph.CountRelationships(graphdb.RelUsedEvidence) != 0 {
		t.Fatalf("run %q written with links", resp.AnalysisRunID)
	}

	req.PersistRun = &off
	resp, err = f.gen.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.AnalysisRunID != "" || f.graph.CountNodes(graphdb.LabelRun) != 1 {
		t.Fatalf("AnalysisRunID = %q, runs = %d", resp.AnalysisRunID, f.graph.CountNodes(graphdb.LabelRun))
	}
}

func TestGenerate_PersistFailureIsNotFatal(t *testing.T) {
	f := setup(t, `{"answer": "ok", "evidence_ids": []}`, 0)
	f.graph.FailWrite = func(st graphdb.Statement) error {
		if st.Spec != nil && st.Spec.From.Label == graphdb.LabelRun {
			return errors.New("disk full")
		}
		return nil
	}
	resp, err := f.gen.Generate(context.Background(), usRequest())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Status != common.StatusSuccess || resp.AnalysisRunID != "" {
		t.Fatalf("Generate() = %s run %q", resp.Status, resp.AnalysisRunID)
	}
}
