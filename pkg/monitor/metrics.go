package monitor

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
)

type Quality struct {
	SuccessRate      float64 `json:"success_rate"`
	EmptyRate        float64 `json:"empty_rate"`
	ParseFailureRate float64 `json:"parse_failure_rate"`
	TimeoutRate      float64 `json:"timeout_rate"`
}

// Reproducibility looks at prompts sent more than once. Consistent counts
// the repeated prompts that always produced the same response.
type Reproducibility struct {
	RepeatedPrompts int     `json:"repeated_prompts"`
	Consistent      int     `json:"consistent"`
	ConsistentShare float64 `json:"consistent_share"`
}

type Performance struct {
	P50Ms        float64 `json:"p50_ms"`
	P95Ms        float64 `json:"p95_ms"`
	MeanMs       float64 `json:"mean_ms"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
}

type Metrics struct {
	Calls           int             `json:"calls"`
	Quality         Quality         `json:"quality"`
	Reproducibility Reproducibility `json:"reproducibility"`
	Performance     Performance     `json:"performance"`
	ByOperation     map[string]int  `json:"by_operation"`
	ByModel         map[string]int  `json:"by_model"`
	Status          common.Status   `json:"status"`
}

// Aggregate summarizes logs. An empty slice yields no_data.
func Aggregate(logs []CallLog) Metrics {
	m := Metrics{ByOperation: map[string]int{}, ByModel: map[string]int{}, Calls: len(logs)}
	if len(logs) == 0 {
		m.Status = common.StatusNoData
		return m
	}
	m.Status = common.StatusSuccess

	var ok, empty, parse, timeout int
	durations := make([]float64, 0, len(logs))
	responses := map[string]map[string]bool{}
	seen := map[string]int{}
	for _, l := range logs {
		m.ByOperation[l.Operation]++
		if l.Model != "" {
			m.ByModel[l.Model]++
		}
		durations = append(durations, float64(l.DurationMs))
		m.Performance.InputTokens += l.InputTokens
		m.Performance.OutputTokens += l.OutputTokens
		if l.Success {
			ok++
		}
		switch l.ErrorKind {
		case KindEmpty:
			empty++
		case KindParse:
			parse++
		case KindTimeout:
			timeout++
		}
		if l.PromptHash == "" || !l.Success {
			continue
		}
		seen[l.PromptHash]++
		if responses[l.PromptHash] == nil {
			responses[l.PromptHash] = map[string]bool{}
		}
		responses[l.PromptHash][l.ResponseHash] = true
	}

	n := float64(len(logs))
	m.Quality = Quality{
		SuccessRate:      float64(ok) / n,
		EmptyRate:        float64(empty) / n,
		ParseFailureRate: float64(parse) / n,
		TimeoutRate:      float64(timeout) / n,
	}

	for hash, count := range seen {
		if count < 2 {
			continue
		}
		m.Reproducibility.RepeatedPrompts++
		if len(responses[hash]) == 1 {
			m.Reproducibility.Consistent++
		}
	}
	if m.Reproducibility.RepeatedPrompts > 0 {
		m.Reproducibility.ConsistentShare = float64(m.Reproducibility.Consistent) / float64(m.Reproducibility.RepeatedPrompts)
	}

	sort.Float64s(durations)
	m.Performance.P50Ms = stat.Quantile(0.5, stat.Empirical, durations, nil)
	m.Performance.P95Ms = stat.Quantile(0.95, stat.Empirical, durations, nil)
	m.Performance.MeanMs = stat.Mean(durations, nil)
	return m
}
