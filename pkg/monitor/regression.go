package monitor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gopkg.in/yaml.v3"

	"github.com/OFFIS-RIT/macrokg/pkg/answer"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
	"github.com/OFFIS-RIT/macrokg/pkg/retrieval"
)

// GoldenQuestion is one regression case. A keyword may list alternatives
// separated by "|".
type GoldenQuestion struct {
	ID             string   `yaml:"id" json:"id"`
	Question       string   `yaml:"question" json:"question"`
	TimeRange      string   `yaml:"time_range" json:"time_range"`
	Country        string   `yaml:"country" json:"country,omitempty"`
	ExpectKeywords []string `yaml:"expect_keywords" json:"expect_keywords,omitempty"`
	MinCitations   int      `yaml:"min_citations" json:"min_citations"`
	ExpectStatus   string   `yaml:"expect_status" json:"expect_status,omitempty"`
}

type GoldenSet struct {
	Name      string           `yaml:"name" json:"name"`
	Model     string           `yaml:"model" json:"model,omitempty"`
	Questions []GoldenQuestion `yaml:"questions" json:"questions"`
}

// LoadGoldenSet reads a YAML golden set. Cases without an id are numbered.
func LoadGoldenSet(path string) (*GoldenSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read golden set: %w", err)
	}
	return ParseGoldenSet(data)
}

func ParseGoldenSet(data []byte) (*GoldenSet, error) {
	var set GoldenSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse golden set: %w", err)
	}
	for i := range set.Questions {
		q := &set.Questions[i]
		if strings.TrimSpace(q.Question) == "" {
			return nil, fmt.Errorf("golden question %d has no question", i+1)
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if q.ExpectStatus == "" {
			q.ExpectStatus = string(common.StatusSuccess)
		}
	}
	return &set, nil
}

type Answerer interface {
	Generate(ctx context.Context, req answer.Request) (*answer.Response, error)
}

type CaseResult struct {
	ID              string        `json:"id"`
	Question        string        `json:"question"`
	Status          common.Status `json:"status"`
	Answer          string        `json:"answer"`
	Citations       int           `json:"citations"`
	KeywordCoverage float64       `json:"keyword_coverage"`
	MissingKeywords []string      `json:"missing_keywords,omitempty"`
	Grounded        bool          `json:"grounded"`
	Passed          bool          `json:"passed"`
	Failures        []string      `json:"failures,omitempty"`
	Error           string        `json:"error,omitempty"`
	DurationMs      int64         `json:"duration_ms"`
	AnalysisRunID   string        `json:"analysis_run_id,omitempty"`
}

type Report struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	StartedAt time.Time     `json:"started_at"`
	Cases     []CaseResult  `json:"cases"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	PassRate  float64       `json:"pass_rate"`
	Status    common.Status `json:"status"`
}

// RunRegression answers every golden question without the run cache and
// checks status, keywords, citation count and grounding.
func RunRegression(ctx context.Context, a Answerer, set *GoldenSet) (*Report, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	report := &Report{ID: "reg-" + id, Name: set.Name, StartedAt: time.Now().UTC(), Cases: []CaseResult{}}
	if len(set.Questions) == 0 {
		report.Status = common.StatusNoData
		return report, nil
	}

	for i, q := range set.Questions {
		res := runCase(ctx, a, set.Model, q)
		report.Cases = append(report.Cases, res)
		if res.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		logger.Info("[Regression] Case finished",
			"progress", fmt.Sprintf("%d/%d", i+1, len(set.Questions)),
			"id", q.ID, "passed", res.Passed, "status", res.Status,
			"coverage", fmt.Sprintf("%.2f", res.KeywordCoverage), "citations", res.Citations)
	}
	report.PassRate = float64(report.Passed) / float64(len(report.Cases))
	report.Status = common.StatusSuccess
	logger.Info("[Regression] Run finished", "id", report.ID, "passed", report.Passed,
		"failed", report.Failed, "pass_rate", fmt.Sprintf("%.2f", report.PassRate))
	return report, nil
}

func runCase(ctx context.Context, a Answerer, model string, q GoldenQuestion) CaseResult {
	res := CaseResult{ID: q.ID, Question: q.Question}
	start := time.Now()
	resp, err := a.Generate(ctx, answer.Request{
		Request: retrieval.Request{Question: q.Question, TimeRange: q.TimeRange, Country: q.Country},
		Model:   model,
	})
	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Status = common.StatusError
		res.Error = err.Error()
		res.Failures = []string{"error: " + err.Error()}
		return res
	}
	res.Status = resp.Status
	res.Answer = resp.Answer
	res.Citations = len(resp.Citations)
	res.AnalysisRunID = resp.AnalysisRunID
	res.KeywordCoverage, res.MissingKeywords = keywordCoverage(resp.Answer, q.ExpectKeywords)
	res.Grounded = grounded(resp)

	if string(resp.Status) != q.ExpectStatus {
		res.Failures = append(res.Failures, fmt.Sprintf("status %s, want %s", resp.Status, q.ExpectStatus))
	}
	if len(res.MissingKeywords) > 0 {
		res.Failures = append(res.Failures, "missing keywords: "+strings.Join(res.MissingKeywords, ", "))
	}
	if res.Citations < q.MinCitations {
		res.Failures = append(res.Failures, fmt.Sprintf("%d citations, want at least %d", res.Citations, q.MinCitations))
	}
	if !res.Grounded {
		res.Failures = append(res.Failures, "citation outside the retrieved evidence")
	}
	res.Passed = len(res.Failures) == 0
	return res
}

// keywordCoverage is the share of keywords found in text, case-insensitively.
func keywordCoverage(text string, keywords []string) (float64, []string) {
	if len(keywords) == 0 {
		return 1, nil
	}
	lower := strings.ToLower(text)
	var missing []string
	for _, kw := range keywords {
		found := false
		for _, alt := range strings.Split(kw, "|") {
			if alt = strings.ToLower(strings.TrimSpace(alt)); alt != "" && strings.Contains(lower, alt) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, kw)
		}
	}
	return float64(len(keywords)-len(missing)) / float64(len(keywords)), missing
}

// grounded reports whether every citation belongs to the context evidence.
func grounded(resp *answer.Response) bool {
	if len(resp.Citations) == 0 {
		return true
	}
	if resp.Context == nil {
		return false
	}
	ids := map[string]bool{}
	for _, id := range resp.Context.EvidenceIDs() {
		ids[id] = true
	}
	for _, c := range resp.Citations {
		if !ids[c.EvidenceID] {
			return false
		}
	}
	return true
}
