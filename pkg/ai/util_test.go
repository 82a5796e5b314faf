package ai

import (
	"errors"
	"strings"
	"testing"
)

type answerPayload struct {
	Answer      string   `json:"answer"`
	KeyPoints   []string `json:"key_points"`
	EvidenceIDs []string `json:"evidence_ids"`
	Confidence  string   `json:"confidence"`
}

func TestUnmarshalFlexible_AnswerVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "valid json", input: `{"answer":"CPI rose"}`, want: "CPI rose"},
		{name: "unquoted key and single quotes", input: `{answer: 'CPI rose'}`, want: "CPI rose"},
		{name: "trailing comma", input: `{"answer":"CPI rose",}`, want: "CPI rose"},
		{name: "missing end bracket", input: `{"answer":"CPI rose`, want: "CPI rose"},
		{name: "stringified", input: `"{\"answer\": \"CPI rose\"}"`, want: "CPI rose"},
		{name: "duplicate leading brace", input: "{\n{\n  \"answer\": \"CPI rose\"\n}\n", want: "CPI rose"},
		{name: "code fence", input: "```json\n{\"answer\": \"CPI rose\"}\n```", want: "CPI rose"},
		{name: "bare code fence", input: "```\n{\"answer\": \"CPI rose\"}\n```", want: "CPI rose"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got answerPayload
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got.Answer != tc.want {
				t.Fatalf("UnmarshalFlexible() answer = %q, want %q", got.Answer, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_Lists(t *testing.T) {
	input := `{"answer":"x","key_points":['a','b',],"evidence_ids":["evd:1"]}`
	var got answerPayload
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got.KeyPoints) != 2 || got.KeyPoints[1] != "b" {
		t.Fatalf("UnmarshalFlexible() key_points = %v, want [a b]", got.KeyPoints)
	}
	if len(got.EvidenceIDs) != 1 || got.EvidenceIDs[0] != "evd:1" {
		t.Fatalf("UnmarshalFlexible() evidence_ids = %v, want [evd:1]", got.EvidenceIDs)
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	var got answerPayload
	if err := UnmarshalFlexible("hello", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for unrecoverable input")
	}
}

func TestUnmarshalFlexible_Empty(t *testing.T) {
	var got answerPayload
	err := UnmarshalFlexible("   ", &got)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("UnmarshalFlexible() error = %v, want ErrEmptyResponse", err)
	}
}

func TestGenerateSchema_NoAdditionalProperties(t *testing.T) {
	schema := GenerateSchema(&answerPayload{})
	if schema == nil {
		t.Fatalf("GenerateSchema() = nil")
	}
}

func TestApplyOptions(t *testing.T) {
	got := ApplyOptions(
		GenerateOptions{Model: "a", Temperature: 0.3},
		WithModel("b"),
		WithSystemPrompts("s1", "s2"),
	)
	if got.Model != "b" || got.Temperature != 0.3 || len(got.SystemPrompts) != 2 {
		t.Fatalf("ApplyOptions() = %+v", got)
	}
}

func TestModelMetricsAdd(t *testing.T) {
	var m ModelMetrics
	m.Add(ModelMetrics{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, DurationMs: 1000})
	m.Add(ModelMetrics{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, DurationMs: 1000})
	if m.Calls != 2 || m.TotalTokens != 30 {
		t.Fatalf("Add() = %+v", m)
	}
	if m.TokenPerSecond != 15 {
		t.Fatalf("TokenPerSecond = %v, want 15", m.TokenPerSecond)
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("é", maxExcerpt+10)
	got := excerpt(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != maxExcerpt+3 {
		t.Fatalf("excerpt() = %d runes", len([]rune(got)))
	}
	if excerpt("short") != "short" {
		t.Fatalf("excerpt(short) = %q", excerpt("short"))
	}
}
