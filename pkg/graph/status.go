package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
)

// Document extraction states. A missing status counts as pending.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

const maxErrorLen = 500

// IsCandidate reports whether a document with the given extraction state
// should be extracted at now. Failed documents wait out the cooldown.
func IsCandidate(status string, updatedAt, now time.Time, cooldown time.Duration) bool {
	switch status {
	case "", StatusPending:
		return true
	case StatusFailed:
		return updatedAt.IsZero() || now.Sub(updatedAt) > cooldown
	default:
		return false
	}
}

// ListCandidatesQuery selects extraction candidates, newest first.
const ListCandidatesQuery = `
MATCH (d:Document)
WHERE d.extraction_status IS NULL
   OR d.extraction_status = 'pending'
   OR (d.extraction_status = 'failed'
       AND (d.extraction_updated_at IS NULL OR d.extraction_updated_at < $retry_before))
RETURN d.id AS id, d.source AS source, d.source_id AS source_id, d.title AS title,
       d.text AS text, d.translated_text AS translated_text, d.url AS url,
       d.category AS category, d.country AS country, d.published_at AS published_at,
       d.extraction_status AS status, d.extraction_updated_at AS updated_at
ORDER BY d.published_at DESC, d.id
LIMIT $limit`

// Candidate is a document awaiting extraction.
type Candidate struct {
	Document  common.Document
	Status    string
	UpdatedAt time.Time
}

// ListCandidates returns up to limit documents that are candidates at now.
func (w *Writer) ListCandidates(ctx context.Context, limit int, now time.Time, cooldown time.Duration) ([]Candidate, error) {
	rows, err := w.store.RunRead(ctx, ListCandidatesQuery, map[string]any{
		"retry_before": graphdb.FormatTime(now.Add(-cooldown)),
		"limit":        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	out := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		c := Candidate{
			Document: common.Document{
				ID:             r.String("id"),
				Source:         r.String("source"),
				SourceID:       r.String("source_id"),
				Title:          r.String("title"),
				Text:           r.String("text"),
				TranslatedText: r.String("translated_text"),
				URL:            r.String("url"),
				Category:       r.String("category"),
				Country:        r.String("country"),
				PublishedAt:    r.Time("published_at"),
			},
			Status:    r.String("status"),
			UpdatedAt: r.Time("updated_at"),
		}
		if !IsCandidate(c.Status, c.UpdatedAt, now, cooldown) {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkSuccess records a successful extraction.
func (w *Writer) MarkSuccess(ctx context.Context, docID, model, version string, now time.Time) error {
	_, err := graphdb.Exec(ctx, w.store, graphdb.UpdateNode(graphdb.DocumentRef(docID), map[string]any{
		"extraction_status":     StatusSuccess,
		"extraction_updated_at": graphdb.FormatTime(now),
		"extraction_error":      "",
		"extraction_model":      model,
		"extraction_version":    version,
	}))
	if err != nil {
		return fmt.Errorf("mark success %s: %w", docID, err)
	}
	return nil
}

// MarkFailed records a failed extraction and its last error.
func (w *Writer) MarkFailed(ctx context.Context, docID string, cause error, model, version string, now time.Time) error {
	msg := ""
	if cause != nil {
		msg = util.TruncateRunes(cause.Error(), maxErrorLen)
	}
	_, err := graphdb.Exec(ctx, w.store, graphdb.UpdateNode(graphdb.DocumentRef(docID), map[string]any{
		"extraction_status":     StatusFailed,
		"extraction_updated_at": graphdb.FormatTime(now),
		"extraction_error":      msg,
		"extraction_model":      model,
		"extraction_version":    version,
	}))
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", docID, err)
	}
	return nil
}
