// Package answer turns a retrieved context into an evidence-cited answer
// and records every answer as an AnalysisRun in the graph.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/ai"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
	"github.com/OFFIS-RIT/macrokg/pkg/normalize"
	"github.com/OFFIS-RIT/macrokg/pkg/retrieval"
)

var ErrEmptyQuestion = retrieval.ErrEmptyQuestion

// InsufficientEvidence is the answer given whenever no grounded answer
// could be produced.
const InsufficientEvidence = "Insufficient evidence to answer this question from the retrieved context."

const (
	DefaultMaxPromptEvidences = 20
	DefaultTokenBudget        = 6000
	DefaultTimeout            = 60 * time.Second
)

type Request struct {
	retrieval.Request

	Model              string        `json:"model,omitempty"`
	Timeout            time.Duration `json:"-"`
	MaxPromptEvidences int           `json:"max_prompt_evidences,omitempty"`
	ReuseCachedRun     bool          `json:"reuse_cached_run,omitempty"`
	PersistRun         *bool         `json:"persist_run,omitempty"`
	PersistLinks       *bool         `json:"persist_links,omitempty"`
}

func (r Request) withDefaults(model string) Request {
	if strings.TrimSpace(r.Model) == "" {
		r.Model = model
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultTimeout
	}
	if r.MaxPromptEvidences <= 0 {
		r.MaxPromptEvidences = DefaultMaxPromptEvidences
	}
	if r.PersistRun == nil {
		r.PersistRun = ptr(true)
	}
	if r.PersistLinks == nil {
		r.PersistLinks = ptr(true)
	}
	return r
}

func ptr[T any](v T) *T { return &v }

type Citation struct {
	EvidenceID string `json:"evidence_id"`
	Text       string `json:"text"`
	DocumentID string `json:"document_id"`
}

type Response struct {
	Answer        string        `json:"answer"`
	KeyPoints     []string      `json:"key_points"`
	Confidence    string        `json:"confidence,omitempty"`
	Citations     []Citation    `json:"citations"`
	AnalysisRunID string        `json:"analysis_run_id,omitempty"`
	Status        common.Status `json:"status"`
	Message       string        `json:"message"`
	CacheHit      bool          `json:"cache_hit"`
	Model         string        `json:"model"`
	DurationMs    int64         `json:"duration_ms"`

	Context *retrieval.Response `json:"context,omitempty"`
}

// ContextBuilder is the part of retrieval answer generation depends on.
type ContextBuilder interface {
	Validate(req retrieval.Request) (retrieval.Scope, error)
	BuildContext(ctx context.Context, req retrieval.Request) (*retrieval.Response, error)
}

// Generator answers questions over retrieved context.
//
// A Generator should be created using NewGenerator.
type Generator struct {
	retriever    ContextBuilder
	ai           ai.GraphAIClient
	store        graphdb.Store
	tables       *normalize.Tables
	now          func() time.Time
	newID        func() (string, error)
	countTokens  func(string) int
	defaultModel string
	tokenBudget  int
}

type NewGeneratorParams struct {
	Retriever ContextBuilder
	AI        ai.GraphAIClient
	Store     graphdb.Store
	Tables    *normalize.Tables
	Now       func() time.Time
	// NewID returns AnalysisRun ids; defaults to "run:" plus a nanoid.
	NewID        func() (string, error)
	CountTokens  func(string) int
	DefaultModel string
	TokenBudget  int
}

func NewGenerator(params NewGeneratorParams) *Generator {
	g := &Generator{
		retriever:    params.Retriever,
		ai:           params.AI,
		store:        params.Store,
		tables:       params.Tables,
		now:          params.Now,
		newID:        params.NewID,
		countTokens:  params.CountTokens,
		defaultModel: params.DefaultModel,
		tokenBudget:  params.TokenBudget,
	}
	if g.tables == nil {
		g.tables = normalize.Default()
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.newID == nil {
		g.newID = func() (string, error) {
			id, err := gonanoid.New()
			if err != nil {
				return "", err
			}
			return "run:" + id, nil
		}
	}
	if g.countTokens == nil {
		g.countTokens = ai.CountTokens
	}
	if g.tokenBudget <= 0 {
		g.tokenBudget = DefaultTokenBudget
	}
	return g
}

type payload struct {
	Answer      string   `json:"answer"`
	KeyPoints   []string `json:"key_points"`
	EvidenceIDs []string `json:"evidence_ids"`
	Confidence  string   `json:"confidence"`
}

// Generate answers req. Validation errors and context read failures are
// returned; model and parse failures are reported as a skipped response
// carrying the insufficient evidence placeholder.
func (g *Generator) Generate(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()
	req = req.withDefaults(g.defaultModel)
	scope, err := g.retriever.Validate(req.Request)
	if err != nil {
		return nil, err
	}

	if req.ReuseCachedRun && g.store != nil {
		cached, err := g.cachedRun(ctx, req, scope)
		if err != nil {
			logger.Warn("[Answer] Cached run lookup failed", "err", err)
		} else if cached != nil {
			logger.Info("[Answer] Reusing cached run", "run_id", cached.AnalysisRunID, "model", req.Model)
			return cached, nil
		}
	}

	cctx, err := g.retriever.BuildContext(ctx, req.Request)
	if err != nil {
		return nil, err
	}
	resp := &Response{Model: req.Model, Context: cctx, KeyPoints: []string{}, Citations: []Citation{}}
	var used prompt
	if len(cctx.Evidences) == 0 {
		resp.Answer = InsufficientEvidence
		resp.Status = common.StatusNoData
		resp.Message = "no evidence in context: " + cctx.Message
	} else {
		used = g.render(cctx, req.MaxPromptEvidences)
		g.answer(ctx, req, scope, cctx, used, resp)
	}
	resp.DurationMs = time.Since(started).Milliseconds()

	if *req.PersistRun && g.store != nil {
		id, err := g.persist(ctx, req, scope, resp, used, *req.PersistLinks)
		if err != nil {
			logger.Error("[Answer] Failed to persist analysis run", "err", err)
		} else {
			resp.AnalysisRunID = id
		}
	}

	logger.Info("[Answer] Answer generated",
		"status", resp.Status, "model", resp.Model, "citations", len(resp.Citations),
		"evidences", len(cctx.Evidences), "prompt_evidences", len(used.Evidences),
		"run_id", resp.AnalysisRunID, "duration_ms", resp.DurationMs)
	return resp, nil
}

func (g *Generator) answer(ctx context.Context, req Request, scope retrieval.Scope, cctx *retrieval.Response, p prompt, resp *Response) {
	country := scope.Country
	if country == "" {
		country = "all supported countries (" + strings.Join(g.tables.SupportedCountries(), ", ") + ")"
	}
	text := fmt.Sprintf(ai.AnswerPrompt, scope.TimeRange, country, p.Text, req.Question)
	raw, err := g.ai.GenerateCompletion(ctx, text,
		ai.WithModel(req.Model),
		ai.WithSystemPrompts(ai.AnswerSystemPrompt),
		ai.WithTimeout(req.Timeout),
	)
	if err != nil {
		logger.Warn("[Answer] Model call failed", "model", req.Model, "err", err)
		placeholder(resp, fmt.Sprintf("model call failed: %v", err))
		return
	}
	var out payload
	if err := ai.UnmarshalFlexible(raw, &out); err != nil {
		logger.Warn("[Answer] Unparsable model output", "model", req.Model, "err", err)
		placeholder(resp, fmt.Sprintf("model output could not be parsed: %v", err))
		return
	}
	if strings.TrimSpace(out.Answer) == "" {
		placeholder(resp, "model returned an empty answer")
		return
	}

	byID := make(map[string]retrieval.Evidence, len(cctx.Evidences))
	for _, e := range cctx.Evidences {
		byID[e.ID] = e
	}
	resp.Citations = citations(append(util.CitationMarkers(out.Answer), out.EvidenceIDs...), byID)
	resp.Answer = util.NormalizeMarkers(out.Answer, func(id string) bool {
		_, ok := byID[id]
		return ok
	})
	for _, kp := range out.KeyPoints {
		if kp = strings.TrimSpace(kp); kp != "" {
			resp.KeyPoints = append(resp.KeyPoints, kp)
		}
	}
	resp.Confidence = strings.ToLower(strings.TrimSpace(out.Confidence))
	resp.Status = common.StatusSuccess
	resp.Message = fmt.Sprintf("%d citations from %d prompt evidences", len(resp.Citations), len(p.Evidences))
}

func placeholder(resp *Response, msg string) {
	resp.Answer = InsufficientEvidence
	resp.KeyPoints = []string{}
	resp.Citations = []Citation{}
	resp.Status = common.StatusSkipped
	resp.Message = msg
}

// citations resolves ids against the context evidence in order. Unknown and
// repeated ids are dropped.
func citations(ids []string, byID map[string]retrieval.Evidence) []Citation {
	seen := map[string]bool{}
	out := []Citation{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		e, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Citation{EvidenceID: id, Text: e.Text, DocumentID: e.DocumentID})
	}
	return out
}
