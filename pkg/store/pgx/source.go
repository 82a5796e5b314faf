package pgx

import (
	"context"
	"fmt"
	"strings"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/ingest"
)

const (
	DefaultNewsTable        = "news_articles"
	DefaultObservationTable = "indicator_observations"
)

type SourceReaderParams struct {
	// NewsTable and ObservationTable may be schema qualified ("raw.news").
	NewsTable        string
	ObservationTable string
	Source           string
}

// SourceReader reads the news and indicator tables the graph is built from.
//
// A SourceReader should be created using NewSourceReader.
type SourceReader struct {
	conn    pgxIConn
	newsSQL string
	obsSQL  string
	source  string
}

func NewSourceReader(conn pgxIConn, params SourceReaderParams) *SourceReader {
	if params.NewsTable == "" {
		params.NewsTable = DefaultNewsTable
	}
	if params.ObservationTable == "" {
		params.ObservationTable = DefaultObservationTable
	}
	if params.Source == "" {
		params.Source = "news"
	}
	news := tableIdent(params.NewsTable)
	obs := tableIdent(params.ObservationTable)
	return &SourceReader{
		conn:   conn,
		source: params.Source,
		newsSQL: fmt.Sprintf(`
SELECT id::text, coalesce(title, ''), coalesce(content, ''), coalesce(translated_content, ''),
       coalesce(url, ''), coalesce(category, ''), coalesce(country, ''), published_at
FROM %s
WHERE (published_at, id::text) > ($1, $2)
ORDER BY published_at ASC, id::text ASC
LIMIT $3`, news),
		obsSQL: fmt.Sprintf(`
SELECT indicator_code, observed_on, value
FROM %s
WHERE observed_on >= $1 AND value IS NOT NULL
ORDER BY indicator_code ASC, observed_on ASC`, obs),
	}
}

func tableIdent(name string) string {
	return pgxv5.Identifier(strings.Split(name, ".")).Sanitize()
}

// ListNews returns up to limit rows strictly after the cursor.
func (r *SourceReader) ListNews(ctx context.Context, after ingest.Cursor, limit int) ([]common.Document, error) {
	rows, err := r.conn.Query(ctx, r.newsSQL, after.PublishedAt.UTC(), after.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}
	docs, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Document, error) {
		d := common.Document{Source: r.source}
		err := row.Scan(&d.SourceID, &d.Title, &d.Text, &d.TranslatedText,
			&d.URL, &d.Category, &d.Country, &d.PublishedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan news: %w", err)
	}
	return docs, nil
}

func (r *SourceReader) ListObservations(ctx context.Context, since time.Time) ([]common.Observation, error) {
	rows, err := r.conn.Query(ctx, r.obsSQL, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	obs, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.Observation, error) {
		var o common.Observation
		err := row.Scan(&o.Code, &o.Date, &o.Value)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan observations: %w", err)
	}
	return obs, nil
}
