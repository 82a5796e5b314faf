package graphdb

import (
	"context"
	"fmt"
)

// FulltextIndex is the name of the document full-text index queried by
// context retrieval.
const FulltextIndex = "document_fulltext"

var uniqueKeys = []struct{ label, prop string }{
	{"Document", "id"},
	{"Entity", "id"},
	{"EntityAlias", "id"},
	{"Event", "id"},
	{"Fact", "id"},
	{"Claim", "id"},
	{"Evidence", "id"},
	{"MacroTheme", "id"},
	{"EconomicIndicator", "code"},
	{"IndicatorObservation", "id"},
	{"DerivedFeature", "id"},
	{"Story", "id"},
	{"AnalysisRun", "id"},
	{"MacroState", "date"},
	{"Country", "code"},
}

// SchemaStatements lists the constraint and index definitions in the order
// EnsureSchema applies them.
func SchemaStatements() []string {
	stmts := make([]string, 0, len(uniqueKeys)+4)
	for _, k := range uniqueKeys {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
			k.label, k.prop, k.label, k.prop,
		))
	}
	stmts = append(stmts,
		"CREATE INDEX document_published_at IF NOT EXISTS FOR (d:Document) ON (d.published_at)",
		"CREATE INDEX document_extraction_status IF NOT EXISTS FOR (d:Document) ON (d.extraction_status)",
		"CREATE INDEX observation_date IF NOT EXISTS FOR (o:IndicatorObservation) ON (o.date)",
		fmt.Sprintf(
			"CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (d:Document) ON EACH [d.title, d.text, d.translated_text]",
			FulltextIndex,
		),
	)
	return stmts
}

// EnsureSchema creates constraints and indexes. Statements are idempotent.
func EnsureSchema(ctx context.Context, store Store) error {
	for _, q := range SchemaStatements() {
		if _, err := store.RunWrite(ctx, q, nil); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
