// Package graph writes documents and extraction results into the knowledge
// graph and drives the extraction backlog.
package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/extract"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/nel"
	"github.com/OFFIS-RIT/macrokg/pkg/normalize"
)

// Writer turns documents and extraction results into idempotent MERGE
// statements keyed by deterministic ids.
//
// A Writer should be created using NewWriter.
type Writer struct {
	store  graphdb.Store
	tables *normalize.Tables
	dict   *nel.Dictionary
	now    func() time.Time
}

// NewWriterParams configures a Writer. Tables defaults to the built-in
// normalization tables, Dictionary to the built-in entities and Now to
// time.Now.
type NewWriterParams struct {
	Store      graphdb.Store
	Tables     *normalize.Tables
	Dictionary *nel.Dictionary
	Now        func() time.Time
}

func NewWriter(params NewWriterParams) *Writer {
	w := &Writer{store: params.Store, tables: params.Tables, dict: params.Dictionary, now: params.Now}
	if w.tables == nil {
		w.tables = normalize.Default()
	}
	if w.dict == nil {
		w.dict = nel.DefaultDictionary()
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

func (w *Writer) Store() graphdb.Store { return w.store }

// SeedTaxonomy merges every MacroTheme and EconomicIndicator node and the
// indicator → theme links.
func (w *Writer) SeedTaxonomy(ctx context.Context) (graphdb.WriteSummary, error) {
	var stmts []graphdb.Statement
	for _, th := range w.tables.Themes() {
		stmts = append(stmts, graphdb.MergeNode(graphdb.ThemeRef(th.ID), map[string]any{
			"name":     th.Name,
			"keywords": th.Keywords,
		}, nil))
	}
	for _, ind := range w.tables.Indicators() {
		stmts = append(stmts, graphdb.MergeNode(graphdb.IndicatorRef(ind.Code), map[string]any{
			"name":    ind.Name,
			"country": ind.Country,
			"unit":    ind.Unit,
		}, nil))
		for _, th := range ind.Themes {
			stmts = append(stmts, graphdb.MergeRelationship(
				graphdb.IndicatorRef(ind.Code), graphdb.RelAboutTheme, graphdb.ThemeRef(th), nil, nil, nil))
		}
	}
	sum, err := graphdb.Exec(ctx, w.store, stmts...)
	if err != nil {
		return sum, fmt.Errorf("seed taxonomy: %w", err)
	}
	return sum, nil
}

// DocumentStatements builds the upsert of one document. The extraction
// status is only initialized when the node is created, so re-syncing never
// resets a processed document.
func (w *Writer) DocumentStatements(doc common.Document) []graphdb.Statement {
	now := graphdb.FormatTime(w.now())
	country, _ := w.tables.CountryCode(doc.Country)
	ref := graphdb.DocumentRef(doc.ID)

	props := map[string]any{
		"source":          doc.Source,
		"source_id":       doc.SourceID,
		"title":           doc.Title,
		"text":            util.SanitizePostgresText(doc.Text),
		"translated_text": optionalText(doc.TranslatedText),
		"url":             doc.URL,
		"category":        strings.ToLower(strings.TrimSpace(doc.Category)),
		"country":         country,
		"published_at":    graphdb.FormatTime(doc.PublishedAt),
		"published_date":  graphdb.FormatDate(doc.PublishedAt),
		"synced_at":       now,
	}
	stmts := []graphdb.Statement{
		graphdb.MergeNode(ref, props, map[string]any{
			"extraction_status": StatusPending,
			"created_at":        now,
		}),
	}
	if theme, ok := w.tables.CategoryTheme(doc.Category); ok {
		stmts = append(stmts,
			w.themeNode(theme),
			graphdb.MergeRelationship(ref, graphdb.RelAboutTheme, graphdb.ThemeRef(theme), nil,
				map[string]any{"source": "category"}, nil),
		)
	}
	if country != "" {
		stmts = append(stmts,
			graphdb.MergeNode(graphdb.CountryRef(country), nil, nil),
			graphdb.MergeRelationship(ref, graphdb.RelInCountry, graphdb.CountryRef(country), nil, nil, nil),
		)
	}
	return stmts
}

// optionalText is nil for blank text so the property is never stored empty
// and coalesce falls through to the original body.
func optionalText(s string) any {
	s = util.SanitizePostgresText(s)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// UpsertDocument merges a document and its category/country links in one
// transaction.
func (w *Writer) UpsertDocument(ctx context.Context, doc common.Document) (graphdb.WriteSummary, error) {
	if doc.ID == "" {
		doc.ID = common.DocumentID(doc.Source, doc.SourceID)
	}
	sum, err := graphdb.Exec(ctx, w.store, w.DocumentStatements(doc)...)
	if err != nil {
		return sum, fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	return sum, nil
}

func (w *Writer) themeNode(id string) graphdb.Statement {
	onCreate := map[string]any{}
	if th, ok := w.tables.Theme(id); ok {
		onCreate["name"] = th.Name
	}
	return graphdb.MergeNode(graphdb.ThemeRef(id), nil, onCreate)
}

func (w *Writer) indicatorNode(code string) graphdb.Statement {
	onCreate := map[string]any{}
	if ind, ok := w.tables.Indicator(code); ok {
		onCreate["name"] = ind.Name
		onCreate["country"] = ind.Country
	}
	return graphdb.MergeNode(graphdb.IndicatorRef(code), nil, onCreate)
}

func evidenceStatements(owner graphdb.NodeRef, docRef graphdb.NodeRef, evs []common.Evidence) []graphdb.Statement {
	var stmts []graphdb.Statement
	for _, ev := range evs {
		if ev.ID == "" || ev.Text == "" {
			continue
		}
		ref := graphdb.EvidenceRef(ev.ID)
		stmts = append(stmts,
			graphdb.MergeNode(ref, map[string]any{"text": ev.Text, "document_id": ev.DocumentID}, nil),
			graphdb.MergeRelationship(owner, graphdb.RelSupportedBy, ref, nil, nil, nil),
			graphdb.MergeRelationship(ref, graphdb.RelFromDocument, docRef, nil, nil, nil),
		)
	}
	return stmts
}

func evidenceIDs(evs []common.Evidence) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.ID)
	}
	return out
}

// ExtractionStatements builds every statement for one extraction result.
// The document node must already exist.
func (w *Writer) ExtractionStatements(doc common.Document, res *extract.Result) []graphdb.Statement {
	docRef := graphdb.DocumentRef(doc.ID)
	now := graphdb.FormatTime(w.now())
	var stmts []graphdb.Statement

	for _, ev := range res.Events {
		ref := graphdb.EventRef(ev.ID)
		stmts = append(stmts,
			graphdb.MergeNode(ref, map[string]any{
				"name":        ev.Name,
				"description": ev.Description,
				"date":        graphdb.FormatDate(ev.Date),
				"country":     ev.Country,
				"sentiment":   ev.Sentiment,
				"document_id": doc.ID,
			}, map[string]any{"created_at": now}),
			graphdb.MergeRelationship(docRef, graphdb.RelMentionsEvent, ref, nil, nil, nil),
		)
		for _, th := range ev.ThemeIDs {
			stmts = append(stmts,
				w.themeNode(th),
				graphdb.MergeRelationship(ref, graphdb.RelAboutTheme, graphdb.ThemeRef(th), nil, nil, nil),
			)
		}
		for _, imp := range ev.Impacts {
			method := imp.Method
			if method == "" {
				method = "extraction"
			}
			stmts = append(stmts,
				w.indicatorNode(imp.Code),
				graphdb.MergeRelationship(ref, graphdb.RelAffects, graphdb.IndicatorRef(imp.Code), nil,
					map[string]any{
						"impact_level": imp.ImpactLevel,
						"confidence":   imp.Confidence,
						"horizon_days": imp.HorizonDays,
					},
					// calibrated fields are owned by recalibration after the first write
					map[string]any{
						"polarity":   imp.Polarity,
						"weight":     imp.Weight,
						"source":     "llm",
						"method":     method,
						"created_at": now,
					}),
			)
		}
	}

	for _, f := range res.Facts {
		ref := graphdb.FactRef(f.ID)
		props := map[string]any{
			"statement":    f.Statement,
			"fact_type":    f.FactType,
			"unit":         f.Unit,
			"sentiment":    f.Sentiment,
			"confidence":   f.Confidence,
			"document_id":  doc.ID,
			"event_id":     f.EventID,
			"evidence_ids": evidenceIDs(f.Evidence),
		}
		if f.Value != nil {
			props["value"] = *f.Value
		}
		stmts = append(stmts,
			graphdb.MergeNode(ref, props, nil),
			graphdb.MergeRelationship(docRef, graphdb.RelHasFact, ref, nil, nil, nil),
		)
		for _, id := range f.EntityIDs {
			stmts = append(stmts, graphdb.MergeRelationship(ref, graphdb.RelAboutEntity, graphdb.EntityRef(id), nil, nil, nil))
		}
		stmts = append(stmts, evidenceStatements(ref, docRef, f.Evidence)...)
	}

	for _, c := range res.Claims {
		ref := graphdb.ClaimRef(c.ID)
		stmts = append(stmts,
			graphdb.MergeNode(ref, map[string]any{
				"statement":    c.Statement,
				"claim_type":   c.ClaimType,
				"speaker":      c.Speaker,
				"sentiment":    c.Sentiment,
				"confidence":   c.Confidence,
				"document_id":  doc.ID,
				"event_id":     c.EventID,
				"evidence_ids": evidenceIDs(c.Evidence),
			}, nil),
			graphdb.MergeRelationship(docRef, graphdb.RelHasClaim, ref, nil, nil, nil),
		)
		stmts = append(stmts, evidenceStatements(ref, docRef, c.Evidence)...)
	}

	// entities first so fact and link relationships find their endpoints
	entityStmts := w.entityStatements(docRef, res)
	stmts = append(entityStmts, stmts...)

	known := map[string]bool{}
	for _, e := range res.Entities {
		known[e.ID] = true
	}
	for _, l := range res.Links {
		from, okFrom := linkEndpoint(l.Source, l.SourceType)
		to, okTo := linkEndpoint(l.Target, l.TargetType)
		if !okFrom || !okTo {
			continue
		}
		// endpoints resolved from link text alone carry no mention
		for _, ref := range []graphdb.NodeRef{from, to} {
			id, _ := ref.Key.(string)
			if ref.Label != graphdb.LabelEntity || known[id] {
				continue
			}
			known[id] = true
			stmts = append(stmts,
				graphdb.MergeNode(ref, nil, w.entityProps(id)),
				graphdb.MergeRelationship(docRef, graphdb.RelMentions, ref, nil, nil, nil),
			)
		}
		stmts = append(stmts,
			graphdb.MergeRelationship(from, graphdb.RelLinked, to,
				map[string]any{"type": l.Relationship},
				map[string]any{
					"confidence":   l.Confidence,
					"document_id":  doc.ID,
					"evidence_ids": evidenceIDs(l.Evidence),
				}, nil),
		)
		for _, ev := range l.Evidence {
			ref := graphdb.EvidenceRef(ev.ID)
			stmts = append(stmts,
				graphdb.MergeNode(ref, map[string]any{"text": ev.Text, "document_id": ev.DocumentID}, nil),
				graphdb.MergeRelationship(ref, graphdb.RelFromDocument, docRef, nil, nil, nil),
			)
		}
	}
	return stmts
}

// linkEndpoint maps a typed link endpoint to its node. Untyped endpoints
// did not resolve and are not written.
func linkEndpoint(id, typ string) (graphdb.NodeRef, bool) {
	switch typ {
	case common.EndpointEvent:
		return graphdb.EventRef(id), true
	case common.EndpointEntity:
		return graphdb.EntityRef(id), true
	default:
		return graphdb.NodeRef{}, false
	}
}

// entityProps are the create-time properties of an entity known only by id.
func (w *Writer) entityProps(id string) map[string]any {
	if e, ok := w.dict.Entity(id); ok {
		return map[string]any{"name": e.Name, "type": e.Type}
	}
	return map[string]any{"name": strings.TrimPrefix(id, "ent:")}
}

func (w *Writer) entityStatements(docRef graphdb.NodeRef, res *extract.Result) []graphdb.Statement {
	var stmts []graphdb.Statement
	for _, e := range res.Entities {
		stmts = append(stmts,
			graphdb.MergeNode(graphdb.EntityRef(e.ID), map[string]any{"name": e.Name, "type": e.Type}, nil),
			graphdb.MergeRelationship(docRef, graphdb.RelMentions, graphdb.EntityRef(e.ID), nil, nil, nil),
		)
	}
	seen := map[string]bool{}
	for _, m := range res.Mentions {
		if !m.Resolved {
			continue
		}
		text := strings.ToLower(util.CollapseWhitespace(m.Text))
		if text == "" || text == strings.ToLower(m.Name) || seen[text] {
			continue
		}
		seen[text] = true
		ref := graphdb.AliasRef(util.HashID("alias", text))
		stmts = append(stmts,
			graphdb.MergeNode(ref, map[string]any{"text": text}, nil),
			graphdb.MergeRelationship(ref, graphdb.RelAliasOf, graphdb.EntityRef(m.EntityID), nil, nil, nil),
		)
	}
	return stmts
}

// WriteExtraction writes one extraction result in a single transaction.
// Re-running it for the same result creates nothing new.
func (w *Writer) WriteExtraction(ctx context.Context, doc common.Document, res *extract.Result) (graphdb.WriteSummary, error) {
	sum, err := graphdb.Exec(ctx, w.store, w.ExtractionStatements(doc, res)...)
	if err != nil {
		return sum, fmt.Errorf("write extraction %s: %w", doc.ID, err)
	}
	return sum, nil
}
