// Package retrieval assembles the question-driven subgraph that answer
// generation reasons over: documents, events, stories and evidence of one
// time window, filtered by country scope and by the themes and indicators
// the question mentions.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
	"github.com/OFFIS-RIT/macrokg/pkg/normalize"
)

var (
	ErrEmptyQuestion      = fmt.Errorf("%w: question is empty", common.ErrValidation)
	ErrInvalidTimeRange   = fmt.Errorf("%w: time_range must be one of 7d, 30d, 90d", common.ErrValidation)
	ErrUnsupportedCountry = fmt.Errorf("%w: country is outside the supported scope", common.ErrValidation)
)

const (
	DefaultTimeRange     = "30d"
	DefaultTopKEvents    = 20
	DefaultTopKDocuments = 20
	DefaultTopKStories   = 5
	DefaultTopKEvidences = 30
	DefaultScanLimit     = 500

	fallbackThemes = 3
	snippetRunes   = 600
)

var timeRanges = map[string]int{"7d": 7, "30d": 30, "90d": 90}

// TimeRangeDays returns the window length of a time range literal.
func TimeRangeDays(tr string) (int, bool) {
	d, ok := timeRanges[strings.ToLower(strings.TrimSpace(tr))]
	return d, ok
}

type Request struct {
	Question      string    `json:"question"`
	TimeRange     string    `json:"time_range"`
	Country       string    `json:"country,omitempty"`
	CountryCode   string    `json:"country_code,omitempty"`
	AsOf          time.Time `json:"as_of,omitempty"`
	TopKEvents    int       `json:"top_k_events,omitempty"`
	TopKDocuments int       `json:"top_k_documents,omitempty"`
	TopKStories   int       `json:"top_k_stories,omitempty"`
	TopKEvidences int       `json:"top_k_evidences,omitempty"`

	Tracer Tracer `json:"-"`
}

func (r Request) withDefaults() Request {
	if strings.TrimSpace(r.TimeRange) == "" {
		r.TimeRange = DefaultTimeRange
	}
	r.TimeRange = strings.ToLower(strings.TrimSpace(r.TimeRange))
	if r.TopKEvents <= 0 {
		r.TopKEvents = DefaultTopKEvents
	}
	if r.TopKDocuments <= 0 {
		r.TopKDocuments = DefaultTopKDocuments
	}
	if r.TopKStories <= 0 {
		r.TopKStories = DefaultTopKStories
	}
	if r.TopKEvidences <= 0 {
		r.TopKEvidences = DefaultTopKEvidences
	}
	return r
}

// Scope is a validated request window.
type Scope struct {
	TimeRange string
	Days      int
	From      string
	To        string
	Country   string
	AsOf      time.Time
}

// Node kinds.
const (
	NodeDocument  = "document"
	NodeEvent     = "event"
	NodeStory     = "story"
	NodeTheme     = "theme"
	NodeIndicator = "indicator"
)

type Node struct {
	ID    string         `json:"id"`
	Kind  string         `json:"kind"`
	Label string         `json:"label"`
	Date  string         `json:"date,omitempty"`
	Props map[string]any `json:"props,omitempty"`
}

type Link struct {
	Source string         `json:"source"`
	Target string         `json:"target"`
	Type   string         `json:"type"`
	Props  map[string]any `json:"props,omitempty"`
}

// Document is a retrieved news item. Origin names the path that found it
// first: fulltext, fallback or graph.
type Document struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Snippet  string   `json:"snippet"`
	URL      string   `json:"url,omitempty"`
	Country  string   `json:"country,omitempty"`
	Category string   `json:"category,omitempty"`
	Date     string   `json:"date"`
	Themes   []string `json:"themes,omitempty"`
	Score    float64  `json:"score"`
	Origin   string   `json:"origin"`

	text string
}

type Affect struct {
	Code          string  `json:"code"`
	Weight        float64 `json:"weight"`
	Polarity      string  `json:"polarity"`
	ObservedDelta float64 `json:"observed_delta,omitempty"`
}

type Event struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Date        string   `json:"date"`
	Country     string   `json:"country,omitempty"`
	Sentiment   string   `json:"sentiment,omitempty"`
	DocumentID  string   `json:"document_id,omitempty"`
	Themes      []string `json:"themes,omitempty"`
	Affects     []Affect `json:"affects,omitempty"`
}

type Story struct {
	ID       string `json:"id"`
	Theme    string `json:"theme"`
	Name     string `json:"name"`
	Start    string `json:"start"`
	End      string `json:"end"`
	DocCount int    `json:"doc_count"`
}

// Evidence is a verbatim quote behind a fact or claim of a retrieved
// document.
type Evidence struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	DocumentID  string  `json:"document_id"`
	StatementID string  `json:"statement_id"`
	Kind        string  `json:"kind"`
	Statement   string  `json:"statement,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// ScopeWarnings counts rows that did not fit the requested scope. They are
// advisory and never fail a request.
type ScopeWarnings struct {
	MissingCountry      int      `json:"missing_country"`
	CountryMismatch     int      `json:"country_mismatch"`
	OutOfScope          int      `json:"out_of_scope"`
	FulltextUnavailable bool     `json:"fulltext_unavailable,omitempty"`
	Messages            []string `json:"messages,omitempty"`
}

func (w ScopeWarnings) Any() bool {
	return w.MissingCountry > 0 || w.CountryMismatch > 0 || w.OutOfScope > 0 || w.FulltextUnavailable
}

type Response struct {
	Nodes            []Node        `json:"nodes"`
	Links            []Link        `json:"links"`
	Evidences        []Evidence    `json:"evidences"`
	SuggestedQueries []string      `json:"suggested_queries"`
	Themes           []string      `json:"themes"`
	ThemeSource      string        `json:"theme_source,omitempty"`
	Indicators       []string      `json:"indicators"`
	Warnings         ScopeWarnings `json:"warnings"`
	TimeRange        string        `json:"time_range"`
	From             string        `json:"from"`
	To               string        `json:"to"`
	Country          string        `json:"country,omitempty"`
	Status           common.Status `json:"status"`
	Message          string        `json:"message"`

	Documents []Document `json:"-"`
	Events    []Event    `json:"-"`
	Stories   []Story    `json:"-"`
}

// EvidenceIDs lists the evidence ids of the response in order.
func (r *Response) EvidenceIDs() []string {
	out := make([]string, len(r.Evidences))
	for i, e := range r.Evidences {
		out[i] = e.ID
	}
	return out
}

// Retriever builds context responses from the graph.
//
// A Retriever should be created using NewRetriever.
type Retriever struct {
	store     graphdb.Store
	tables    *normalize.Tables
	now       func() time.Time
	scanLimit int
}

type NewRetrieverParams struct {
	Store     graphdb.Store
	Tables    *normalize.Tables
	Now       func() time.Time
	ScanLimit int
}

func NewRetriever(params NewRetrieverParams) *Retriever {
	r := &Retriever{store: params.Store, tables: params.Tables, now: params.Now, scanLimit: params.ScanLimit}
	if r.tables == nil {
		r.tables = normalize.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.scanLimit <= 0 {
		r.scanLimit = DefaultScanLimit
	}
	return r
}

// Validate checks the question, time range and country of req and resolves
// its window. CountryCode wins over Country.
func (r *Retriever) Validate(req Request) (Scope, error) {
	req = req.withDefaults()
	if strings.TrimSpace(req.Question) == "" {
		return Scope{}, ErrEmptyQuestion
	}
	days, ok := TimeRangeDays(req.TimeRange)
	if !ok {
		return Scope{}, fmt.Errorf("%w: got %q", ErrInvalidTimeRange, req.TimeRange)
	}
	country := ""
	raw := strings.TrimSpace(req.CountryCode)
	if raw == "" {
		raw = strings.TrimSpace(req.Country)
	}
	if raw != "" {
		code, ok := r.tables.CountryCode(raw)
		if !ok || !r.tables.IsSupportedCountry(code) {
			return Scope{}, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedCountry, raw,
				strings.Join(r.tables.SupportedCountries(), ", "))
		}
		country = code
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = r.now()
	}
	asOf = asOf.UTC()
	return Scope{
		TimeRange: req.TimeRange,
		Days:      days,
		From:      graphdb.FormatDate(asOf.AddDate(0, 0, -days)),
		To:        graphdb.FormatDate(asOf),
		Country:   country,
		AsOf:      asOf,
	}, nil
}

// BuildContext retrieves the subgraph for req. Full-text failures degrade
// to the fallback scan; other read failures are returned.
func (r *Retriever) BuildContext(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()
	req = req.withDefaults()
	scope, err := r.Validate(req)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		TimeRange: scope.TimeRange,
		From:      scope.From,
		To:        scope.To,
		Country:   scope.Country,
	}
	resp.Themes = r.tables.ThemesForText(req.Question)
	resp.Indicators = r.tables.IndicatorsForText(req.Question)
	if len(resp.Themes) > 0 {
		resp.ThemeSource = "keyword"
	}
	terms := queryTerms(req.Question)
	window := map[string]any{"from": scope.From, "to": scope.To}

	var (
		fulltext []Document
		ftErr    error
		scanned  []Document
		events   []Event
		stories  []Story
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(terms) == 0 {
			return nil
		}
		t := time.Now()
		fulltext, ftErr = r.fulltext(gctx, terms, scope, req.TopKDocuments*3)
		record(req.Tracer, TraceFulltext, documentIDs(fulltext), time.Since(t).Milliseconds(), ftErr)
		return nil
	})
	g.Go(func() error {
		var err error
		scanned, err = r.documents(gctx, WindowDocumentsQuery, with(window, "limit", r.scanLimit), "fallback")
		return err
	})
	g.Go(func() error {
		var err error
		events, err = r.events(gctx, with(window, "limit", r.scanLimit))
		return err
	})
	g.Go(func() error {
		var err error
		stories, err = r.stories(gctx, window)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	if ftErr != nil {
		resp.Warnings.FulltextUnavailable = true
		resp.Warnings.Messages = append(resp.Warnings.Messages, "full-text search unavailable, used keyword fallback")
		logger.Warn("[Context] Full-text search failed, using fallback scan", "err", ftErr)
	}
	if len(resp.Themes) == 0 {
		resp.Themes = frequentThemes(admitted(scanned, scope.Country, r.tables), fallbackThemes)
		if len(resp.Themes) > 0 {
			resp.ThemeSource = "frequency"
		}
	}

	var fallback []Document
	if ftErr != nil || len(admitted(fulltext, scope.Country, r.tables)) < req.TopKDocuments {
		fallback = rankByOverlap(scanned, terms)
		record(req.Tracer, TraceFallback, documentIDs(fallback), 0, nil)
	}
	var graphDocs []Document
	if len(resp.Themes) > 0 {
		graphDocs, err = r.documents(ctx, ThemeDocumentsQuery,
			with(with(window, "themes", resp.Themes), "limit", req.TopKDocuments*3), "graph")
		if err != nil {
			return nil, fmt.Errorf("build context: %w", err)
		}
		record(req.Tracer, TraceGraph, documentIDs(graphDocs), 0, nil)
	}

	docs := mergeDocuments(fulltext, fallback, graphDocs)
	docs = resp.Warnings.filterDocuments(docs, scope.Country, r.tables)
	if len(docs) > req.TopKDocuments {
		docs = docs[:req.TopKDocuments]
	}
	resp.Documents = docs
	resp.Events = selectEvents(resp.Warnings.filterEvents(events, scope.Country, r.tables),
		resp.Themes, resp.Indicators, req.TopKEvents)
	resp.Stories = selectStories(stories, resp.Themes, req.TopKStories)
	record(req.Tracer, TraceUsed, documentIDs(docs), 0, nil)

	if len(docs) > 0 {
		resp.Evidences, err = r.evidence(ctx, docs, req.TopKEvidences)
		if err != nil {
			return nil, fmt.Errorf("build context: %w", err)
		}
	}

	resp.Warnings.summarize()
	r.assemble(resp)
	resp.SuggestedQueries = r.suggestions(resp)
	if len(resp.Documents) == 0 && len(resp.Events) == 0 && len(resp.Evidences) == 0 {
		resp.Status = common.StatusNoData
		resp.Message = fmt.Sprintf("no documents, events or evidence between %s and %s", scope.From, scope.To)
	} else {
		resp.Status = common.StatusSuccess
		resp.Message = fmt.Sprintf("%d documents, %d events, %d stories, %d evidences",
			len(resp.Documents), len(resp.Events), len(resp.Stories), len(resp.Evidences))
	}

	logger.Info("[Context] Context built",
		"time_range", scope.TimeRange, "country", scope.Country,
		"fulltext", len(fulltext), "fallback", len(fallback), "graph", len(graphDocs),
		"documents", len(resp.Documents), "events", len(resp.Events),
		"stories", len(resp.Stories), "evidences", len(resp.Evidences),
		"elapsed", time.Since(started))
	return resp, nil
}

func with(params map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out[key] = value
	return out
}

func (r *Retriever) fulltext(ctx context.Context, terms []string, scope Scope, limit int) ([]Document, error) {
	docs, err := r.documents(ctx, FulltextDocumentsQuery, map[string]any{
		"index": graphdb.FulltextIndex,
		"query": strings.Join(terms, " OR "),
		"from":  scope.From,
		"to":    scope.To,
		"limit": limit,
	}, "fulltext")
	if err != nil {
		return nil, fmt.Errorf("fulltext search: %w", err)
	}
	return docs, nil
}

func (r *Retriever) documents(ctx context.Context, query string, params map[string]any, origin string) ([]Document, error) {
	rows, err := r.store.RunRead(ctx, query, params)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(rows))
	for _, row := range rows {
		id := row.String("id")
		if id == "" {
			continue
		}
		out = append(out, Document{
			ID:       id,
			Title:    row.String("title"),
			URL:      row.String("url"),
			Country:  strings.ToUpper(row.String("country")),
			Category: row.String("category"),
			Date:     row.String("date"),
			Themes:   row.Strings("themes"),
			Score:    row.Float("score"),
			Origin:   origin,
			text:     row.String("text"),
		})
	}
	return out, nil
}

func (r *Retriever) events(ctx context.Context, params map[string]any) ([]Event, error) {
	rows, err := r.store.RunRead(ctx, EventsQuery, params)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		ev := Event{
			ID:          row.String("id"),
			Name:        row.String("name"),
			Description: row.String("description"),
			Date:        row.String("date"),
			Country:     strings.ToUpper(row.String("country")),
			Sentiment:   row.String("sentiment"),
			DocumentID:  row.String("document_id"),
			Themes:      row.Strings("themes"),
		}
		for _, a := range row.Records("affects") {
			if a.String("code") == "" {
				continue
			}
			ev.Affects = append(ev.Affects, Affect{
				Code:          a.String("code"),
				Weight:        a.Float("weight"),
				Polarity:      a.String("polarity"),
				ObservedDelta: a.Float("observed_delta"),
			})
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *Retriever) stories(ctx context.Context, params map[string]any) ([]Story, error) {
	rows, err := r.store.RunRead(ctx, StoriesQuery, params)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	out := make([]Story, 0, len(rows))
	for _, row := range rows {
		out = append(out, Story{
			ID:       row.String("id"),
			Theme:    row.String("theme"),
			Name:     row.String("name"),
			Start:    row.String("start"),
			End:      row.String("end"),
			DocCount: row.Int("doc_count"),
		})
	}
	return out, nil
}

func (r *Retriever) evidence(ctx context.Context, docs []Document, limit int) ([]Evidence, error) {
	ids := documentIDs(docs)
	rows, err := r.store.RunRead(ctx, EvidenceQuery, map[string]any{"doc_ids": ids})
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	byDoc := map[string][]Evidence{}
	for _, row := range rows {
		ev := Evidence{
			ID:          row.String("id"),
			Text:        row.String("text"),
			DocumentID:  row.String("document_id"),
			StatementID: row.String("statement_id"),
			Kind:        row.String("kind"),
			Statement:   row.String("statement"),
			Confidence:  row.Float("confidence"),
		}
		if ev.ID == "" || strings.TrimSpace(ev.Text) == "" {
			continue
		}
		byDoc[ev.DocumentID] = append(byDoc[ev.DocumentID], ev)
	}
	seen := map[string]bool{}
	var out []Evidence
	for _, id := range ids {
		for _, ev := range byDoc[id] {
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true
			out = append(out, ev)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func documentIDs(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

// IsValidation reports whether err is a caller input error.
func IsValidation(err error) bool {
	return errors.Is(err, common.ErrValidation)
}
