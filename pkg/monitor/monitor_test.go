package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/macrokg/pkg/ai"
	"github.com/OFFIS-RIT/macrokg/pkg/answer"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/retrieval"
)

type fakeAI struct {
	replies []string
	err     error
	metrics ai.ModelMetrics
}

func (f *fakeAI) GenerateCompletion(context.Context, string, ...ai.GenerateOption) (string, error) {
	f.metrics.InputTokens += 10
	f.metrics.OutputTokens += 3
	if f.err != nil {
		return "", f.err
	}
	out := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return out, nil
}

func (f *fakeAI) GenerateCompletionWithFormat(_ context.Context, _, _, _ string, out any, _ ...ai.GenerateOption) error {
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.replies[0]), out)
}

func (f *fakeAI) ResetMetrics()               { f.metrics = ai.ModelMetrics{} }
func (f *fakeAI) GetMetrics() ai.ModelMetrics { return f.metrics }

func TestLoggedClient_RecordsCalls(t *testing.T) {
	sink := NewMemorySink()
	inner := &fakeAI{replies: []string{"a", "a", "b"}}
	c := NewLoggedClient(inner, sink)
	c.now = func() time.Time { return time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	for range 3 {
		if _, err := c.GenerateCompletion(ctx, "same prompt", ai.WithModel("gpt-test")); err != nil {
			t.Fatalf("GenerateCompletion() error = %v", err)
		}
	}
	inner.err = fmt.Errorf("finish_reason length: %w", ai.ErrEmptyResponse)
	if _, err := c.GenerateCompletion(ctx, "other"); !errors.Is(err, ai.ErrEmptyResponse) {
		t.Fatalf("GenerateCompletion() error = %v, want the inner error", err)
	}

	logs, _ := sink.CallLogs(ctx, time.Time{})
	if len(logs) != 4 {
		t.Fatalf("logs = %d, want 4", len(logs))
	}
	first := logs[0]
	if first.Model != "gpt-test" || first.Operation != "completion" || !first.Success ||
		first.InputTokens != 10 || first.OutputTokens != 3 {
		t.Fatalf("log = %+v", first)
	}
	if logs[0].PromptHash != logs[2].PromptHash || logs[0].ResponseHash == logs[2].ResponseHash {
		t.Fatal("hashes do not follow prompt and response")
	}
	if last := logs[3]; last.Success || last.ErrorKind != KindEmpty || last.ResponseHash != "" {
		t.Fatalf("failed log = %+v", last)
	}
}

func TestLoggedClient_FormatCalls(t *testing.T) {
	sink := NewMemorySink()
	c := NewLoggedClient(&fakeAI{replies: []string{`{"n": 1}`}}, sink)
	var out struct{ N int }
	if err := c.GenerateCompletionWithFormat(context.Background(), "extraction", "", "p", &out); err != nil {
		t.Fatalf("GenerateCompletionWithFormat() error = %v", err)
	}
	logs, _ := sink.CallLogs(context.Background(), time.Time{})
	if len(logs) != 1 || logs[0].Operation != "extraction" || logs[0].ResponseHash == "" {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", ai.ErrEmptyResponse), KindEmpty},
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("unmarshal failed after repair: input=x"), KindParse},
		{errors.New("429 too many requests"), KindProvider},
	}
	for _, tc := range tests {
		if got := classify(tc.err); got != tc.want {
			t.Errorf("classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestAggregate(t *testing.T) {
	logs := []CallLog{
		{Operation: "completion", Model: "m", PromptHash: "p1", ResponseHash: "r1", DurationMs: 10, Success: true, InputTokens: 5},
		{Operation: "completion", Model: "m", PromptHash: "p1", ResponseHash: "r1", DurationMs: 20, Success: true},
		{Operation: "completion", Model: "m", PromptHash: "p2", ResponseHash: "r1", DurationMs: 30, Success: true},
		{Operation: "completion", Model: "m", PromptHash: "p2", ResponseHash: "r2", DurationMs: 40, Success: true},
		{Operation: "extraction", Model: "m", PromptHash: "p3", DurationMs: 100, ErrorKind: KindParse},
	}
	m := Aggregate(logs)
	if m.Calls != 5 || m.Status != common.StatusSuccess {
		t.Fatalf("Aggregate() = %+v", m)
	}
	if m.Quality.SuccessRate != 0.8 || m.Quality.ParseFailureRate != 0.2 {
		t.Fatalf("Quality = %+v", m.Quality)
	}
	if m.Reproducibility != (Reproducibility{RepeatedPrompts: 2, Consistent: 1, ConsistentShare: 0.5}) {
		t.Fatalf("Reproducibility = %+v", m.Reproducibility)
	}
	if m.Performance.P50Ms != 30 || m.Performance.P95Ms != 100 || m.Performance.MeanMs != 40 {
		t.Fatalf("Performance = %+v", m.Performance)
	}
	if !reflect.DeepEqual(m.ByOperation, map[string]int{"completion": 4, "extraction": 1}) {
		t.Fatalf("ByOperation = %v", m.ByOperation)
	}
	if got := Aggregate(nil); got.Status != common.StatusNoData {
		t.Fatalf("Aggregate(nil).Status = %s, want no_data", got.Status)
	}
}

func TestLoadGoldenSet(t *testing.T) {
	set, err := LoadGoldenSet("testdata/golden.yaml")
	if err != nil {
		t.Fatalf("LoadGoldenSet() error = %v", err)
	}
	if set.Name != "smoke" || set.Model != "gpt-test" || len(set.Questions) != 2 {
		t.Fatalf("set = %+v", set)
	}
	q := set.Questions[0]
	if q.ID != "q1" || q.ExpectStatus != "success" || q.MinCitations != 1 || len(q.ExpectKeywords) != 2 {
		t.Fatalf("question = %+v", q)
	}
	if set.Questions[1].ID != "kr-won" || set.Questions[1].ExpectStatus != "no_data" {
		t.Fatalf("question = %+v", set.Questions[1])
	}
	if _, err := ParseGoldenSet([]byte("questions:\n  - id: x\n")); err == nil {
		t.Fatal("ParseGoldenSet() accepted an empty question")
	}
}

type fakeAnswerer struct {
	byQuestion map[string]*answer.Response
	requests   []answer.Request
}

func (f *fakeAnswerer) Generate(_ context.Context, req answer.Request) (*answer.Response, error) {
	f.requests = append(f.requests, req)
	resp, ok := f.byQuestion[req.Question]
	if !ok {
		return nil, errors.New("boom")
	}
	return resp, nil
}

func contextWith(ids ...string) *retrieval.Response {
	resp := &retrieval.Response{}
	for _, id := range ids {
		resp.Evidences = append(resp.Evidences, retrieval.Evidence{ID: id})
	}
	return resp
}

func TestRunRegression(t *testing.T) {
	set := &GoldenSet{Name: "t", Model: "gpt-test", Questions: []GoldenQuestion{
		{ID: "ok", Question: "q1", ExpectKeywords: []string{"inflation", "cpi|prices"}, MinCitations: 1, ExpectStatus: "success"},
		{ID: "ungrounded", Question: "q2", ExpectStatus: "success"},
		{ID: "keywords", Question: "q3", ExpectKeywords: []string{"won"}, ExpectStatus: "success"},
		{ID: "nodata", Question: "q4", ExpectStatus: "no_data"},
		{ID: "error", Question: "q5", ExpectStatus: "success"},
	}}
	a := &fakeAnswerer{byQuestion: map[string]*answer.Response{
		"q1": {Status: common.StatusSuccess, Answer: "Inflation and Prices rose [[e1]]",
			Citations: []answer.Citation{{EvidenceID: "e1"}}, Context: contextWith("e1")},
		"q2": {Status: common.StatusSuccess, Answer: "x",
			Citations: []answer.Citation{{EvidenceID: "e9"}}, Context: contextWith("e1")},
		"q3": {Status: common.StatusSuccess, Answer: "the dollar", Context: contextWith()},
		"q4": {Status: common.StatusNoData, Answer: answer.InsufficientEvidence, Context: contextWith()},
	}}

	report, err := RunRegression(context.Background(), a, set)
	if err != nil {
		t.Fatalf("RunRegression() error = %v", err)
	}
	if !strings.HasPrefix(report.ID, "reg-") || report.Status != common.StatusSuccess {
		t.Fatalf("report = %s %s", report.ID, report.Status)
	}
	passed := map[string]bool{}
	for _, c := range report.Cases {
		passed[c.ID] = c.Passed
	}
	want := map[string]bool{"ok": true, "ungrounded": false, "keywords": false, "nodata": true, "error": false}
	if !reflect.DeepEqual(passed, want) {
		t.Fatalf("passed = %v, want %v", passed, want)
	}
	if report.Passed != 2 || report.Failed != 3 || report.PassRate != 0.4 {
		t.Fatalf("report = %d/%d %.2f", report.Passed, report.Failed, report.PassRate)
	}
	if a.requests[0].Model != "gpt-test" || a.requests[0].ReuseCachedRun {
		t.Fatalf("request = %+v", a.requests[0])
	}
}

func TestKeywordCoverage(t *testing.T) {
	cov, missing := keywordCoverage("CPI rose", []string{"cpi|pce", "fed"})
	if cov != 0.5 || !reflect.DeepEqual(missing, []string{"fed"}) {
		t.Fatalf("keywordCoverage() = %v, %v", cov, missing)
	}
}

type memStore map[string][]byte

func (m memStore) PutObject(_ context.Context, key string, body []byte, _ string) error {
	m[key] = body
	return nil
}

func TestArchive(t *testing.T) {
	store := memStore{}
	key, err := Archive(context.Background(), store, &Report{ID: "reg-1", Name: "t"})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if key != "reports/regression/reg-1.json" {
		t.Fatalf("Archive() key = %s", key)
	}
	var back Report
	if err := json.Unmarshal(store[key], &back); err != nil || back.Name != "t" {
		t.Fatalf("archived body = %s (%v)", store[key], err)
	}
}
