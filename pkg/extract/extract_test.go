package extract

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/OFFIS-RIT/macrokg/pkg/ai"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
)

type fakeClient struct {
	mu      sync.Mutex
	payload rawExtraction
	err     error
	calls   int
	models  []string
}

func (f *fakeClient) GenerateCompletion(context.Context, string, ...ai.GenerateOption) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeClient) GenerateCompletionWithFormat(
	_ context.Context,
	_ string,
	_ string,
	_ string,
	out any,
	opts ...ai.GenerateOption,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.models = append(f.models, ai.ApplyOptions(ai.GenerateOptions{}, opts...).Model)
	if f.err != nil {
		return f.err
	}
	*out.(*rawExtraction) = f.payload
	return nil
}

func (f *fakeClient) ResetMetrics()               {}
func (f *fakeClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

const fedText = "The Fed held rates steady on Wednesday. Consumer prices rose 3.2% in March, " +
	"above expectations. Jerome Powell said inflation remains too high."

func fedPayload() rawExtraction {
	return rawExtraction{
		Events: []rawEvent{{
			Name:        "Fed holds rates",
			Description: "The Federal Reserve kept its policy rate unchanged.",
			Date:        "2026-03-18",
			Country:     "United States",
			Sentiment:   "Hawkish-ish",
			Themes:      []string{"Inflation", "monetary policy"},
			Impacts: []rawImpact{
				{Indicator: "UST2Y", Polarity: "up", ImpactLevel: "major", Confidence: "high", HorizonDays: 5},
				{Indicator: "NOPE", Polarity: "down"},
			},
		}},
		Facts: []rawFact{
			{Statement: "Consumer prices rose 3.2% in March", FactType: "Data Release", Value: "3.2%", Unit: "%",
				Sentiment: "Bearish", Confidence: "0.8", Event: "Fed holds rates",
				Entities: []string{"BLS"}, Evidence: "Consumer prices rose 3.2% in March, above expectations."},
			{Statement: "Rates were held", FactType: "weird", Evidence: ""},
		},
		Claims: []rawClaim{
			{Statement: "Inflation remains too high", ClaimType: "quote", Speaker: "Jerome Powell",
				Sentiment: "???", Confidence: "strong", Evidence: "too high"},
		},
		Links: []rawLink{
			{Source: "Fed holds rates", Target: "the Fed", Relationship: "relates to", Evidence: ""},
			{Source: "Something", Target: "Else", Relationship: "causes"},
		},
		Entities: []string{"Federal Reserve", "Acme Widgets"},
	}
}

func newTestExtractor(client ai.GraphAIClient) *Extractor {
	return NewExtractor(Params{Client: client, Model: "gpt-4o-mini", Version: "v1"})
}

func TestExtract_Scenario(t *testing.T) {
	client := &fakeClient{payload: fedPayload()}
	ex := newTestExtractor(client)

	res := ex.Extract(context.Background(), "news:1", fedText, "Fed holds as inflation bites")
	if res.Failed() {
		t.Fatalf("Extract() errors = %v", res.ErrorMessages)
	}
	if len(res.Events) != 1 {
		t.Fatalf("Extract() events = %d, want 1", len(res.Events))
	}
	ev := res.Events[0]
	if !slices.Contains(ev.ThemeIDs, "inflation") {
		t.Fatalf("event themes = %v, want inflation", ev.ThemeIDs)
	}
	if ev.Country != "US" {
		t.Fatalf("event country = %q, want US", ev.Country)
	}
	if ev.Sentiment != "neutral" {
		t.Fatalf("event sentiment = %q, want neutral", ev.Sentiment)
	}
	if len(ev.Impacts) != 1 || ev.Impacts[0].Code != "UST2Y" || ev.Impacts[0].Polarity != "positive" ||
		ev.Impacts[0].ImpactLevel != "high" {
		t.Fatalf("event impacts = %+v", ev.Impacts)
	}

	var ids []string
	for _, e := range res.Entities {
		ids = append(ids, e.ID)
	}
	if !slices.Contains(ids, "ent:federal_reserve") {
		t.Fatalf("entities = %v, want ent:federal_reserve", ids)
	}

	again := ex.Extract(context.Background(), "news:1", fedText, "Fed holds as inflation bites")
	if !again.CacheHit {
		t.Fatalf("second Extract() CacheHit = false")
	}
	if client.calls != 1 {
		t.Fatalf("model calls = %d, want 1", client.calls)
	}
	if len(again.Events) != 1 || again.Events[0].ID != ev.ID {
		t.Fatalf("cached events = %+v", again.Events)
	}
}

func TestExtract_EvidenceInvariant(t *testing.T) {
	ex := newTestExtractor(&fakeClient{payload: fedPayload()})
	res := ex.Extract(context.Background(), "news:2", fedText, "title")

	check := func(kind string, evs []common.Evidence) {
		t.Helper()
		if len(evs) == 0 {
			t.Fatalf("%s without evidence", kind)
		}
		for _, e := range evs {
			if utf8.RuneCountInString(e.Text) < MinEvidenceLen {
				t.Fatalf("%s evidence %q shorter than %d", kind, e.Text, MinEvidenceLen)
			}
			if e.ID == "" || e.DocumentID != "news:2" {
				t.Fatalf("%s evidence = %+v", kind, e)
			}
		}
	}
	for _, f := range res.Facts {
		check("fact", f.Evidence)
	}
	for _, c := range res.Claims {
		check("claim", c.Evidence)
	}
	for _, l := range res.Links {
		check("link", l.Evidence)
	}
	if len(res.Facts) != 2 || len(res.Claims) != 1 {
		t.Fatalf("facts=%d claims=%d", len(res.Facts), len(res.Claims))
	}
}

func TestExtract_Normalization(t *testing.T) {
	ex := newTestExtractor(&fakeClient{payload: fedPayload()})
	res := ex.Extract(context.Background(), "news:3", fedText, "title")

	f := res.Facts[0]
	if f.FactType != "statistic" || f.Sentiment != "negative" || f.Confidence != 0.8 {
		t.Fatalf("fact = %+v", f)
	}
	if f.Value == nil || *f.Value != 3.2 {
		t.Fatalf("fact value = %v, want 3.2", f.Value)
	}
	if f.EventID != res.Events[0].ID {
		t.Fatalf("fact event id = %q, want %q", f.EventID, res.Events[0].ID)
	}
	if !slices.Contains(f.EntityIDs, "ent:bls") {
		t.Fatalf("fact entity ids = %v, want ent:bls", f.EntityIDs)
	}
	if res.Facts[1].FactType != "statement" {
		t.Fatalf("unknown fact type = %q, want statement", res.Facts[1].FactType)
	}

	c := res.Claims[0]
	if c.ClaimType != "attribution" || c.Sentiment != "neutral" || c.Confidence != 0.9 {
		t.Fatalf("claim = %+v", c)
	}
}

func TestExtract_LinkEndpoints(t *testing.T) {
	ex := newTestExtractor(&fakeClient{payload: fedPayload()})
	res := ex.Extract(context.Background(), "news:4", fedText, "title")

	if len(res.Links) != 2 {
		t.Fatalf("links = %d, want 2", len(res.Links))
	}
	l := res.Links[0]
	if l.SourceType != common.EndpointEvent || l.Source != res.Events[0].ID {
		t.Fatalf("link source = %q (%s)", l.Source, l.SourceType)
	}
	if l.TargetType != common.EndpointEntity || l.Target != "ent:federal_reserve" {
		t.Fatalf("link target = %q (%s)", l.Target, l.TargetType)
	}
	if l.Relationship != "RELATED_TO" {
		t.Fatalf("link relationship = %q", l.Relationship)
	}
	if res.Links[1].SourceType != "" || res.Links[1].Relationship != "CAUSES" {
		t.Fatalf("unresolved link = %+v", res.Links[1])
	}
}

func TestExtract_ModelErrorIsNotCached(t *testing.T) {
	client := &fakeClient{err: context.DeadlineExceeded}
	ex := newTestExtractor(client)

	res := ex.Extract(context.Background(), "news:5", fedText, "title")
	if !res.Failed() || !res.Empty() {
		t.Fatalf("Extract() = %+v, want failed empty result", res)
	}
	if !strings.Contains(res.ErrorMessages[0], "deadline") {
		t.Fatalf("error message = %q", res.ErrorMessages[0])
	}

	ex.Extract(context.Background(), "news:5", fedText, "title")
	if client.calls != 2 {
		t.Fatalf("model calls = %d, want 2", client.calls)
	}
}

func TestExtract_EmptyDocument(t *testing.T) {
	client := &fakeClient{payload: fedPayload()}
	res := newTestExtractor(client).Extract(context.Background(), "news:6", "  ", "")
	if !res.Failed() {
		t.Fatalf("Extract() on empty document did not fail")
	}
	if client.calls != 0 {
		t.Fatalf("model calls = %d, want 0", client.calls)
	}
}

func TestNewExtractor_ModelFallback(t *testing.T) {
	client := &fakeClient{payload: fedPayload()}
	ex := NewExtractor(Params{Client: client, Model: "some-unknown-model"})
	if ex.Model() != DefaultModel {
		t.Fatalf("Model() = %q, want %q", ex.Model(), DefaultModel)
	}
	ex.Extract(context.Background(), "news:7", fedText, "title")
	if client.models[0] != DefaultModel {
		t.Fatalf("called model = %q, want %q", client.models[0], DefaultModel)
	}
}

func TestExtractDocument_Defaults(t *testing.T) {
	payload := fedPayload()
	payload.Events[0].Date = ""
	payload.Events[0].Country = ""
	payload.Events[0].Themes = nil
	payload.Events[0].Name = "Quiet day"
	payload.Events[0].Description = "Nothing happened"
	ex := newTestExtractor(&fakeClient{payload: payload})

	published := time.Date(2026, 3, 18, 14, 30, 0, 0, time.UTC)
	res := ex.ExtractDocument(context.Background(), common.Document{
		ID: "news:8", Title: "t", Text: fedText, Category: "economy", Country: "korea", PublishedAt: published,
	})
	ev := res.Events[0]
	if !ev.Date.Equal(time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("event date = %v", ev.Date)
	}
	if ev.Country != "KR" {
		t.Fatalf("event country = %q, want KR", ev.Country)
	}
	if len(ev.ThemeIDs) != 1 || ev.ThemeIDs[0] != "growth" {
		t.Fatalf("event themes = %v, want [growth]", ev.ThemeIDs)
	}
}

func fedEntity() common.Entity {
	return common.Entity{ID: "ent:federal_reserve", Name: "Federal Reserve", Type: "central_bank"}
}
