// Package ingest mirrors news articles and indicator observations from the
// relational source into the knowledge graph.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/graph"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
	"github.com/OFFIS-RIT/macrokg/pkg/normalize"
)

// Cursor is a keyset position in the news table.
type Cursor struct {
	PublishedAt time.Time
	ID          string
}

// Source reads the relational tables the graph is built from. News pages
// are ordered by (published_at, id) ascending and start strictly after the
// cursor.
type Source interface {
	ListNews(ctx context.Context, after Cursor, limit int) ([]common.Document, error)
	ListObservations(ctx context.Context, since time.Time) ([]common.Observation, error)
}

const (
	DefaultPageSize        = 200
	DefaultObservationSize = 500
)

type SyncerParams struct {
	Source   Source
	Writer   *graph.Writer
	Tables   *normalize.Tables
	PageSize int
}

type Syncer struct {
	source   Source
	writer   *graph.Writer
	tables   *normalize.Tables
	pageSize int
}

func NewSyncer(params SyncerParams) *Syncer {
	s := &Syncer{
		source:   params.Source,
		writer:   params.Writer,
		tables:   params.Tables,
		pageSize: params.PageSize,
	}
	if s.tables == nil {
		s.tables = normalize.Default()
	}
	if s.pageSize <= 0 {
		s.pageSize = DefaultPageSize
	}
	return s
}

type SyncReport struct {
	Read    int                  `json:"read"`
	Written int                  `json:"written"`
	Skipped int                  `json:"skipped"`
	Summary graphdb.WriteSummary `json:"summary"`
	Status  common.Status        `json:"status"`
	Message string               `json:"message"`
}

// Prepare cleans and normalizes one source row. It reports false for rows
// with nothing to extract from.
func (s *Syncer) Prepare(doc common.Document) (common.Document, bool) {
	doc.Source = strings.ToLower(strings.TrimSpace(doc.Source))
	if doc.Source == "" {
		doc.Source = "news"
	}
	doc.SourceID = strings.TrimSpace(doc.SourceID)
	if doc.SourceID == "" {
		return doc, false
	}
	doc.ID = common.DocumentID(doc.Source, doc.SourceID)
	doc.Title = strings.TrimSpace(StripTags(doc.Title))
	doc.Text = CleanText(doc.Text, doc.URL)
	if doc.TranslatedText != "" {
		doc.TranslatedText = CleanText(doc.TranslatedText, doc.URL)
	}
	if code, ok := s.tables.CountryCode(doc.Country); ok {
		doc.Country = code
	}
	doc.Category = strings.ToLower(strings.TrimSpace(doc.Category))
	doc.PublishedAt = doc.PublishedAt.UTC()
	if doc.Title == "" && doc.Body() == "" {
		return doc, false
	}
	return doc, true
}

// SyncDocuments upserts every news row published after since, page by
// page. A failing page stops the sync; rows already written stay.
func (s *Syncer) SyncDocuments(ctx context.Context, since time.Time) SyncReport {
	var report SyncReport
	cursor := Cursor{PublishedAt: since}
	for {
		if err := ctx.Err(); err != nil {
			return s.finish(report, err)
		}
		page, err := s.source.ListNews(ctx, cursor, s.pageSize)
		if err != nil {
			return s.finish(report, fmt.Errorf("list news: %w", err))
		}
		if len(page) == 0 {
			break
		}
		report.Read += len(page)

		var stmts []graphdb.Statement
		for _, row := range page {
			doc, ok := s.Prepare(row)
			if !ok {
				report.Skipped++
				continue
			}
			stmts = append(stmts, s.writer.DocumentStatements(doc)...)
			report.Written++
		}
		sum, err := graphdb.Exec(ctx, s.writer.Store(), stmts...)
		if err != nil {
			return s.finish(report, fmt.Errorf("upsert documents: %w", err))
		}
		report.Summary.Add(sum)

		last := page[len(page)-1]
		cursor = Cursor{PublishedAt: last.PublishedAt, ID: last.SourceID}
		logger.Debug("[Ingest] News page synced", "rows", len(page), "cursor", graphdb.FormatTime(cursor.PublishedAt))
		if len(page) < s.pageSize {
			break
		}
	}
	logger.Info("[Ingest] Documents synced",
		"read", report.Read,
		"written", report.Written,
		"skipped", report.Skipped,
		"nodes_created", report.Summary.NodesCreated)
	return s.finish(report, nil)
}

// SyncObservations merges every indicator observation dated on or after
// since.
func (s *Syncer) SyncObservations(ctx context.Context, since time.Time) SyncReport {
	var report SyncReport
	obs, err := s.source.ListObservations(ctx, since)
	if err != nil {
		return s.finish(report, fmt.Errorf("list observations: %w", err))
	}
	report.Read = len(obs)

	for start := 0; start < len(obs); start += DefaultObservationSize {
		end := min(start+DefaultObservationSize, len(obs))
		chunk := obs[start:end]
		sum, err := s.writer.UpsertObservations(ctx, chunk)
		if err != nil {
			return s.finish(report, err)
		}
		report.Summary.Add(sum)
		for _, o := range chunk {
			if o.Code == "" || o.Date.IsZero() {
				report.Skipped++
			} else {
				report.Written++
			}
		}
	}
	logger.Info("[Ingest] Observations synced", "read", report.Read, "written", report.Written)
	return s.finish(report, nil)
}

func (s *Syncer) finish(report SyncReport, err error) SyncReport {
	switch {
	case err != nil:
		logger.Error("[Ingest] Sync failed", "err", err)
		report.Status = common.StatusError
		report.Message = err.Error()
	case report.Written == 0:
		report.Status = common.StatusNoData
		report.Message = "no new rows"
	default:
		report.Status = common.StatusSuccess
		report.Message = fmt.Sprintf("%d written, %d skipped", report.Written, report.Skipped)
	}
	return report
}
