// Package extract turns news documents into typed events, facts, claims
// and links with an LLM, normalizing its output into closed enums.
package extract

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/ai"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
	"github.com/OFFIS-RIT/macrokg/pkg/nel"
	"github.com/OFFIS-RIT/macrokg/pkg/normalize"
)

// ErrModelNotAllowed is logged when the configured model is outside the
// allow-list. Extraction then proceeds with the default model.
var ErrModelNotAllowed = errors.New("model not in allow-list")

var DefaultAllowedModels = []string{"gpt-4o-mini", "gpt-4.1-mini", "gpt-4o", "llama3.1:8b"}

const (
	DefaultModel         = "gpt-4o-mini"
	DefaultVersion       = "v1"
	DefaultTimeout       = 120 * time.Second
	DefaultMaxInputRunes = 12000
)

// Result is the transient output of one extraction.
type Result struct {
	DocID         string          `json:"doc_id"`
	Model         string          `json:"model"`
	Version       string          `json:"version"`
	Events        []common.Event  `json:"events"`
	Facts         []common.Fact   `json:"facts"`
	Claims        []common.Claim  `json:"claims"`
	Links         []common.Link   `json:"links"`
	Entities      []common.Entity `json:"entities"`
	Mentions      []nel.Mention   `json:"mentions,omitempty"`
	ErrorMessages []string        `json:"error_messages,omitempty"`
	CacheHit      bool            `json:"cache_hit"`
}

// Empty reports whether nothing was extracted.
func (r *Result) Empty() bool {
	return len(r.Events) == 0 && len(r.Facts) == 0 && len(r.Claims) == 0 && len(r.Links) == 0
}

// Failed reports whether the extraction recorded an error.
func (r *Result) Failed() bool {
	return len(r.ErrorMessages) > 0
}

// Err joins the error messages, or returns nil.
func (r *Result) Err() error {
	if !r.Failed() {
		return nil
	}
	return errors.New(strings.Join(r.ErrorMessages, "; "))
}

type Params struct {
	Client   ai.GraphAIClient
	Resolver *nel.Resolver
	Tables   *normalize.Tables
	Cache    Cache

	Model         string
	AllowedModels []string
	Version       string
	Timeout       time.Duration
	MaxInputRunes int
}

// Extractor is safe for concurrent use when its Client and Cache are.
type Extractor struct {
	client   ai.GraphAIClient
	resolver *nel.Resolver
	tables   *normalize.Tables
	cache    Cache

	model         string
	version       string
	timeout       time.Duration
	maxInputRunes int
}

func NewExtractor(params Params) *Extractor {
	allowed := params.AllowedModels
	if len(allowed) == 0 {
		allowed = DefaultAllowedModels
	}
	model := params.Model
	if model == "" {
		model = DefaultModel
	}
	if !slices.Contains(allowed, model) {
		logger.Warn("[Extract] Model not in allow-list, falling back",
			"model", model, "fallback", DefaultModel, "err", ErrModelNotAllowed)
		model = DefaultModel
	}

	e := &Extractor{
		client:        params.Client,
		resolver:      params.Resolver,
		tables:        params.Tables,
		cache:         params.Cache,
		model:         model,
		version:       params.Version,
		timeout:       params.Timeout,
		maxInputRunes: params.MaxInputRunes,
	}
	if e.resolver == nil {
		e.resolver = nel.NewResolver(nel.ResolverParams{})
	}
	if e.tables == nil {
		e.tables = normalize.Default()
	}
	if e.cache == nil {
		e.cache = NewMemoryCache()
	}
	if e.version == "" {
		e.version = DefaultVersion
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.maxInputRunes <= 0 {
		e.maxInputRunes = DefaultMaxInputRunes
	}
	return e
}

func (e *Extractor) Model() string   { return e.model }
func (e *Extractor) Version() string { return e.version }

// Extract runs the model over one document. It never returns an error:
// failures land in Result.ErrorMessages.
func (e *Extractor) Extract(ctx context.Context, docID, text, title string) (res Result) {
	res = Result{DocID: docID, Model: e.model, Version: e.version}
	defer func() {
		if r := recover(); r != nil {
			res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("panic during extraction: %v", r))
		}
	}()

	key := CacheKey{DocID: docID, Version: e.version, Model: e.model}
	if cached, ok, err := e.cache.Get(ctx, key); err != nil {
		logger.Warn("[Extract] Cache read failed", "doc_id", docID, "err", err)
	} else if ok {
		cached.CacheHit = true
		logger.Debug("[Extract] Cache hit", "doc_id", docID, "model", e.model)
		return *cached
	}

	if strings.TrimSpace(text) == "" && strings.TrimSpace(title) == "" {
		res.ErrorMessages = append(res.ErrorMessages, "document has no text")
		return res
	}
	if e.client == nil {
		res.ErrorMessages = append(res.ErrorMessages, "no ai client configured")
		return res
	}

	var raw rawExtraction
	start := time.Now()
	err := e.client.GenerateCompletionWithFormat(
		ctx,
		"macro_extraction",
		"Events, facts, claims and links extracted from a news article",
		e.prompt(text, title),
		&raw,
		ai.WithModel(e.model),
		ai.WithSystemPrompts(ai.ExtractionSystemPrompt),
		ai.WithTimeout(e.timeout),
	)
	if err != nil {
		logger.Error("[Extract] Model call failed", "doc_id", docID, "model", e.model, "err", err)
		res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("model call: %v", err))
		return res
	}

	e.build(&res, raw, text, title)
	logger.Debug("[Extract] Extracted document",
		"doc_id", docID,
		"events", len(res.Events),
		"facts", len(res.Facts),
		"claims", len(res.Claims),
		"links", len(res.Links),
		"duration", time.Since(start))

	if err := e.cache.Put(ctx, key, &res); err != nil {
		logger.Warn("[Extract] Cache write failed", "doc_id", docID, "err", err)
	}
	return res
}

// ExtractDocument runs Extract and fills gaps from document metadata:
// undated events get the publish date, events without country inherit the
// document country, and the category theme backs events without theme.
func (e *Extractor) ExtractDocument(ctx context.Context, doc common.Document) Result {
	res := e.Extract(ctx, doc.ID, doc.Body(), doc.Title)
	categoryTheme, hasCategory := e.tables.CategoryTheme(doc.Category)
	country, _ := e.tables.CountryCode(doc.Country)
	for i := range res.Events {
		ev := &res.Events[i]
		if ev.Date.IsZero() && !doc.PublishedAt.IsZero() {
			ev.Date = doc.PublishedAt.UTC().Truncate(24 * time.Hour)
		}
		if ev.Country == "" {
			ev.Country = country
		}
		if len(ev.ThemeIDs) == 0 && hasCategory {
			ev.ThemeIDs = []string{categoryTheme}
		}
	}
	return res
}

func (e *Extractor) prompt(text, title string) string {
	themes := e.tables.Themes()
	themeIDs := make([]string, len(themes))
	for i, th := range themes {
		themeIDs[i] = th.ID
	}
	inds := e.tables.Indicators()
	codes := make([]string, len(inds))
	for i, ind := range inds {
		codes[i] = ind.Code
	}
	body := util.TruncateRunes(util.SanitizePostgresText(text), e.maxInputRunes)
	return fmt.Sprintf(ai.ExtractionPrompt,
		strings.Join(themeIDs, ", "),
		strings.Join(codes, ", "),
		title,
		body,
	)
}

func lowerKey(s string) string {
	return strings.ToLower(util.CollapseWhitespace(s))
}

func (e *Extractor) build(res *Result, raw rawExtraction, text, title string) {
	docID := res.DocID
	eventByName := map[string]string{}

	for _, re := range raw.Events {
		name := util.CollapseWhitespace(re.Name)
		if name == "" {
			continue
		}
		id := util.HashID("evt", docID, lowerKey(name))
		if _, dup := eventByName[lowerKey(name)]; dup {
			continue
		}
		eventByName[lowerKey(name)] = id
		ev := common.Event{
			ID:          id,
			DocumentID:  docID,
			Name:        name,
			Description: util.CollapseWhitespace(re.Description),
			Sentiment:   Sentiments.Normalize(re.Sentiment),
			ThemeIDs:    e.eventThemes(re),
			Impacts:     e.eventImpacts(re),
		}
		if d, err := time.Parse("2006-01-02", strings.TrimSpace(re.Date)); err == nil {
			ev.Date = d
		}
		if code, ok := e.tables.CountryCode(re.Country); ok {
			ev.Country = code
		}
		res.Events = append(res.Events, ev)
	}

	var candidates []string
	candidates = append(candidates, raw.Entities...)

	seenFact := map[string]bool{}
	for _, rf := range raw.Facts {
		stmt := util.CollapseWhitespace(rf.Statement)
		if stmt == "" || seenFact[lowerKey(stmt)] {
			continue
		}
		seenFact[lowerKey(stmt)] = true
		id := util.HashID("fact", docID, lowerKey(stmt))
		f := common.Fact{
			ID:         id,
			DocumentID: docID,
			EventID:    eventByName[lowerKey(rf.Event)],
			Statement:  stmt,
			FactType:   FactTypes.Normalize(rf.FactType),
			Value:      parseValue(rf.Value),
			Unit:       strings.TrimSpace(rf.Unit),
			Sentiment:  Sentiments.Normalize(rf.Sentiment),
			Confidence: ConfidenceScore(rf.Confidence),
			Evidence:   buildEvidence(id, rf.Evidence, stmt, docID, text, title),
		}
		for _, name := range rf.Entities {
			candidates = append(candidates, name)
			if ent, ok := e.resolver.Link(name); ok && !slices.Contains(f.EntityIDs, ent.ID) {
				f.EntityIDs = append(f.EntityIDs, ent.ID)
			}
		}
		res.Facts = append(res.Facts, f)
	}

	seenClaim := map[string]bool{}
	for _, rc := range raw.Claims {
		stmt := util.CollapseWhitespace(rc.Statement)
		if stmt == "" || seenClaim[lowerKey(stmt)] {
			continue
		}
		seenClaim[lowerKey(stmt)] = true
		id := util.HashID("claim", docID, lowerKey(stmt))
		speaker := util.CollapseWhitespace(rc.Speaker)
		if speaker != "" {
			candidates = append(candidates, speaker)
		}
		res.Claims = append(res.Claims, common.Claim{
			ID:         id,
			DocumentID: docID,
			EventID:    eventByName[lowerKey(rc.Event)],
			Statement:  stmt,
			ClaimType:  ClaimTypes.Normalize(rc.ClaimType),
			Speaker:    speaker,
			Sentiment:  Sentiments.Normalize(rc.Sentiment),
			Confidence: ConfidenceScore(rc.Confidence),
			Evidence:   buildEvidence(id, rc.Evidence, stmt, docID, text, title),
		})
	}

	for _, rl := range raw.Links {
		src, dst := util.CollapseWhitespace(rl.Source), util.CollapseWhitespace(rl.Target)
		if src == "" || dst == "" {
			continue
		}
		rel := LinkRelationships.Normalize(rl.Relationship)
		id := util.HashID("link", docID, lowerKey(src), rel, lowerKey(dst))
		l := common.Link{
			ID:           id,
			DocumentID:   docID,
			Source:       src,
			Target:       dst,
			Relationship: rel,
			Confidence:   ConfidenceScore(rl.Confidence),
			Evidence:     buildEvidence(id, rl.Evidence, src+" "+dst, docID, text, title),
		}
		l.Source, l.SourceType = e.endpoint(src, eventByName)
		l.Target, l.TargetType = e.endpoint(dst, eventByName)
		res.Links = append(res.Links, l)
	}

	res.Mentions = e.resolver.ResolveWithCandidates(title+"\n"+text, candidates)
	seenEnt := map[string]bool{}
	for _, m := range res.Mentions {
		if !m.Resolved || seenEnt[m.EntityID] {
			continue
		}
		seenEnt[m.EntityID] = true
		res.Entities = append(res.Entities, m.Entity())
	}
}

// endpoint resolves a link endpoint to an event of this document or to a
// canonical entity.
func (e *Extractor) endpoint(name string, events map[string]string) (string, string) {
	if id, ok := events[lowerKey(name)]; ok {
		return id, common.EndpointEvent
	}
	if ent, ok := e.resolver.Link(name); ok {
		return ent.ID, common.EndpointEntity
	}
	return name, ""
}

// eventThemes normalizes model themes through the taxonomy, falling back to
// keyword matching over the event text.
func (e *Extractor) eventThemes(re rawEvent) []string {
	var out []string
	for _, label := range re.Themes {
		if id, ok := e.tables.ThemeID(label); ok && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	if len(out) > 0 {
		return out
	}
	return e.tables.ThemesForText(re.Name + " " + re.Description)
}

func (e *Extractor) eventImpacts(re rawEvent) []common.IndicatorImpact {
	var out []common.IndicatorImpact
	seen := map[string]bool{}
	for _, ri := range re.Impacts {
		code := ""
		if ind, ok := e.tables.Indicator(ri.Indicator); ok {
			code = ind.Code
		} else if codes := e.tables.IndicatorsForText(ri.Indicator); len(codes) > 0 {
			code = codes[0]
		}
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		horizon := ri.HorizonDays
		if horizon <= 0 {
			horizon = 7
		}
		out = append(out, common.IndicatorImpact{
			Code:        code,
			Polarity:    Polarities.Normalize(ri.Polarity),
			ImpactLevel: ImpactLevels.Normalize(ri.ImpactLevel),
			Weight:      ImpactWeight(ri.ImpactLevel),
			Confidence:  ConfidenceScore(ri.Confidence),
			HorizonDays: horizon,
			Method:      "extraction",
		})
	}
	if len(out) > 0 {
		return out
	}
	for _, code := range e.tables.IndicatorsForText(re.Name + " " + re.Description) {
		out = append(out, common.IndicatorImpact{
			Code:        code,
			Polarity:    "neutral",
			ImpactLevel: "low",
			Weight:      ImpactWeight("low"),
			Confidence:  levelScore["low"],
			HorizonDays: 7,
			Method:      "keyword",
		})
	}
	return out
}
