package util

import (
	"reflect"
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"GoDuration", "90s", 90 * time.Second},
		{"Hours", "24h", 24 * time.Hour},
		{"PlainSeconds", "30", 30 * time.Second},
		{"Invalid", "soon", time.Minute},
		{"Blank", " ", time.Minute},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tc.value)
			if got := GetEnvDuration("TEST_DURATION", time.Minute); got != tc.want {
				t.Fatalf("GetEnvDuration(%q) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", "gpt-4o-mini, ,llama3.1:8b,")
	got := GetEnvList("TEST_LIST", nil)
	want := []string{"gpt-4o-mini", "llama3.1:8b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GetEnvList = %v, want %v", got, want)
	}
	if got := GetEnvList("TEST_LIST_MISSING", []string{"a"}); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("GetEnvList default = %v", got)
	}
}

func TestGetEnvNumericAndBool(t *testing.T) {
	t.Setenv("TEST_NUM", "0.75")
	if got := GetEnvNumeric("TEST_NUM", 1); got != 0.75 {
		t.Fatalf("GetEnvNumeric = %v, want 0.75", got)
	}
	t.Setenv("TEST_NUM", "x")
	if got := GetEnvInt("TEST_NUM", 5); got != 5 {
		t.Fatalf("GetEnvInt fallback = %v, want 5", got)
	}
	t.Setenv("TEST_BOOL", "yes")
	if got := GetEnvBool("TEST_BOOL", true); !got {
		t.Fatalf("GetEnvBool with unparsable value should return default")
	}
}
