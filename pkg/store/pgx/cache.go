package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/OFFIS-RIT/macrokg/pkg/extract"
)

const getExtractionSQL = `
SELECT payload FROM extraction_cache
WHERE doc_id = $1 AND version = $2 AND model = $3
`

const putExtractionSQL = `
INSERT INTO extraction_cache (doc_id, version, model, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (doc_id, version, model) DO UPDATE
SET payload = EXCLUDED.payload, created_at = now()
`

// ExtractionCache stores extraction results keyed by document, extractor
// version and model.
type ExtractionCache struct {
	conn pgxIConn
}

func NewExtractionCache(conn pgxIConn) *ExtractionCache {
	return &ExtractionCache{conn: conn}
}

func (c *ExtractionCache) Get(ctx context.Context, key extract.CacheKey) (*extract.Result, bool, error) {
	var payload []byte
	err := c.conn.QueryRow(ctx, getExtractionSQL, key.DocID, key.Version, key.Model).Scan(&payload)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read extraction cache %s: %w", key, err)
	}
	var res extract.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, false, fmt.Errorf("decode extraction cache %s: %w", key, err)
	}
	return &res, true, nil
}

func (c *ExtractionCache) Put(ctx context.Context, key extract.CacheKey, res *extract.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode extraction %s: %w", key, err)
	}
	if _, err := c.conn.Exec(ctx, putExtractionSQL, key.DocID, key.Version, key.Model, payload); err != nil {
		return fmt.Errorf("write extraction cache %s: %w", key, err)
	}
	return nil
}
