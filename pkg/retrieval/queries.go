package retrieval

// FulltextDocumentsQuery ranks documents of the window through the
// document full-text index.
const FulltextDocumentsQuery = `
CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score
WHERE node.published_date >= $from AND node.published_date <= $to
OPTIONAL MATCH (node)-[:ABOUT_THEME]->(t:MacroTheme)
WITH node, score, collect(DISTINCT t.id) AS themes
RETURN node.id AS id, node.title AS title, CASE WHEN coalesce(node.translated_text, '') <> '' THEN node.translated_text ELSE node.text END AS text,
       node.url AS url, node.country AS country, node.category AS category,
       node.published_date AS date, themes, score
ORDER BY score DESC
LIMIT $limit`

// WindowDocumentsQuery lists the newest documents of the window. It feeds
// the term-overlap fallback and the theme-frequency fallback.
const WindowDocumentsQuery = `
MATCH (d:Document)
WHERE d.published_date >= $from AND d.published_date <= $to
OPTIONAL MATCH (d)-[:ABOUT_THEME]->(t:MacroTheme)
WITH d, collect(DISTINCT t.id) AS themes
RETURN d.id AS id, d.title AS title, CASE WHEN coalesce(d.translated_text, '') <> '' THEN d.translated_text ELSE d.text END AS text,
       d.url AS url, d.country AS country, d.category AS category,
       d.published_date AS date, themes
ORDER BY d.published_at DESC
LIMIT $limit`

// ThemeDocumentsQuery lists documents of the window attached to any of
// $themes.
const ThemeDocumentsQuery = `
MATCH (d:Document)-[:ABOUT_THEME]->(t:MacroTheme)
WHERE t.id IN $themes AND d.published_date >= $from AND d.published_date <= $to
WITH d, collect(DISTINCT t.id) AS themes
RETURN d.id AS id, d.title AS title, CASE WHEN coalesce(d.translated_text, '') <> '' THEN d.translated_text ELSE d.text END AS text,
       d.url AS url, d.country AS country, d.category AS category,
       d.published_date AS date, themes
ORDER BY d.published_at DESC
LIMIT $limit`

// EventsQuery lists events of the window with their themes and AFFECTS
// edges.
const EventsQuery = `
MATCH (e:Event)
WHERE e.date >= $from AND e.date <= $to
OPTIONAL MATCH (e)-[:ABOUT_THEME]->(t:MacroTheme)
WITH e, collect(DISTINCT t.id) AS themes
OPTIONAL MATCH (e)-[a:AFFECTS]->(i:EconomicIndicator)
WITH e, themes, collect({code: i.code, weight: a.weight, polarity: a.polarity, observed_delta: a.observed_delta}) AS affects
RETURN e.id AS id, e.name AS name, e.description AS description, e.date AS date,
       e.country AS country, e.sentiment AS sentiment, e.document_id AS document_id,
       themes, affects
ORDER BY e.date DESC
LIMIT $limit`

// StoriesQuery lists stories whose bucket overlaps the window.
const StoriesQuery = `
MATCH (s:Story)
WHERE s.end >= $from AND s.start <= $to
RETURN s.id AS id, s.theme AS theme, s.name AS name, s.start AS start, s.end AS end,
       s.doc_count AS doc_count
ORDER BY s.doc_count DESC, s.start DESC`

// EvidenceQuery lists the evidence behind facts and claims of $doc_ids.
const EvidenceQuery = `
MATCH (d:Document)-[:HAS_FACT|HAS_CLAIM]->(s)-[:SUPPORTED_BY]->(ev:Evidence)
WHERE d.id IN $doc_ids
RETURN ev.id AS id, ev.text AS text, d.id AS document_id, s.id AS statement_id,
       CASE WHEN s:Fact THEN 'fact' ELSE 'claim' END AS kind,
       s.statement AS statement, s.confidence AS confidence`
