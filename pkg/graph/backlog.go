package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/extract"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

// DocumentExtractor is the part of extract.Extractor the backlog needs.
type DocumentExtractor interface {
	ExtractDocument(ctx context.Context, doc common.Document) extract.Result
	Model() string
	Version() string
}

const (
	DefaultBatchSize  = 20
	DefaultMaxBatches = 5
	DefaultRetryAfter = 60 * time.Minute
)

type BacklogOptions struct {
	BatchSize  int
	MaxBatches int
	RetryAfter time.Duration
}

func (o BacklogOptions) withDefaults() BacklogOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxBatches <= 0 {
		o.MaxBatches = DefaultMaxBatches
	}
	if o.RetryAfter <= 0 {
		o.RetryAfter = DefaultRetryAfter
	}
	return o
}

type BacklogReport struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids"`
	// UnmarkedIDs were written but their success status was not recorded.
	// They stay candidates.
	UnmarkedIDs []string      `json:"unmarked_ids"`
	Batches     int           `json:"batches"`
	Elapsed     time.Duration `json:"elapsed"`
	Status      common.Status `json:"status"`
	Message     string        `json:"message"`
}

// Backlog extracts pending documents in bounded batches, one document at a
// time.
type Backlog struct {
	writer    *Writer
	extractor DocumentExtractor
	now       func() time.Time
}

func NewBacklog(writer *Writer, extractor DocumentExtractor) *Backlog {
	return &Backlog{writer: writer, extractor: extractor, now: writer.now}
}

// Run processes at most BatchSize × MaxBatches documents. A failing
// document is marked failed and the batch continues.
func (b *Backlog) Run(ctx context.Context, opts BacklogOptions) BacklogReport {
	opts = opts.withDefaults()
	report := BacklogReport{FailedIDs: []string{}, UnmarkedIDs: []string{}}
	progress := util.NewThroughput(opts.BatchSize * opts.MaxBatches)
	seen := map[string]bool{}
	unmarked := map[string]bool{}

	logger.Info("[Backlog] Starting extraction backlog",
		"batch_size", opts.BatchSize, "max_batches", opts.MaxBatches, "retry_after", opts.RetryAfter)

	for report.Batches < opts.MaxBatches {
		if err := ctx.Err(); err != nil {
			report.Message = "cancelled: " + err.Error()
			break
		}
		candidates, err := b.writer.ListCandidates(ctx, opts.BatchSize, b.now(), opts.RetryAfter)
		if err != nil {
			logger.Error("[Backlog] Failed to list candidates", "err", err)
			report.Status = common.StatusError
			report.Message = err.Error()
			report.Elapsed = progress.Elapsed()
			return report
		}
		var batch []Candidate
		for _, c := range candidates {
			if !seen[c.Document.ID] {
				seen[c.Document.ID] = true
				batch = append(batch, c)
			}
		}
		if len(batch) == 0 {
			break
		}
		report.Batches++

		for _, c := range batch {
			id := c.Document.ID
			switch b.process(ctx, c.Document) {
			case outcomeSucceeded:
				delete(unmarked, id)
				report.Succeeded++
				report.Processed++
			case outcomeFailed:
				delete(unmarked, id)
				report.Failed++
				report.FailedIDs = append(report.FailedIDs, id)
				report.Processed++
			case outcomeUnmarked:
				// still pending in the store, so a later batch may retry it
				delete(seen, id)
				unmarked[id] = true
			}
			progress.Add(1)
		}

		logger.Info("[Backlog] Batch done",
			"batch", report.Batches,
			"processed", report.Processed,
			"failed", report.Failed,
			"elapsed", util.FormatDuration(progress.Elapsed()),
			"rate_per_min", math.Round(progress.RatePerMinute()*10)/10,
			"eta", util.FormatDuration(progress.ETA()))
	}

	report.Elapsed = progress.Elapsed()
	for id := range unmarked {
		report.UnmarkedIDs = append(report.UnmarkedIDs, id)
	}
	sort.Strings(report.UnmarkedIDs)
	switch {
	case report.Processed == 0 && len(report.UnmarkedIDs) > 0:
		report.Status = common.StatusError
		report.Message = fmt.Sprintf("%d documents written but not marked", len(report.UnmarkedIDs))
	case report.Processed == 0:
		report.Status = common.StatusNoData
		if report.Message == "" {
			report.Message = "no extraction candidates"
		}
	case report.Failed == report.Processed:
		report.Status = common.StatusError
		report.Message = fmt.Sprintf("all %d documents failed", report.Failed)
	default:
		report.Status = common.StatusSuccess
		report.Message = fmt.Sprintf("%d succeeded, %d failed", report.Succeeded, report.Failed)
	}
	return report
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeUnmarked
)

func (b *Backlog) process(ctx context.Context, doc common.Document) outcome {
	model, version := b.extractor.Model(), b.extractor.Version()
	res := b.extractor.ExtractDocument(ctx, doc)
	if res.Failed() {
		b.fail(ctx, doc.ID, res.Err(), model, version)
		return outcomeFailed
	}

	sum, err := b.writer.WriteExtraction(ctx, doc, &res)
	if err != nil {
		b.fail(ctx, doc.ID, err, model, version)
		return outcomeFailed
	}
	if err := b.writer.MarkSuccess(ctx, doc.ID, model, version, b.now()); err != nil {
		logger.Error("[Backlog] Failed to mark success", "doc_id", doc.ID, "err", err)
		return outcomeUnmarked
	}
	logger.Debug("[Backlog] Document extracted",
		"doc_id", doc.ID,
		"cache_hit", res.CacheHit,
		"nodes_created", sum.NodesCreated,
		"relationships_created", sum.RelationshipsCreated)
	return outcomeSucceeded
}

func (b *Backlog) fail(ctx context.Context, docID string, cause error, model, version string) {
	logger.Warn("[Backlog] Document extraction failed", "doc_id", docID, "err", cause)
	if err := b.writer.MarkFailed(ctx, docID, cause, model, version, b.now()); err != nil {
		logger.Error("[Backlog] Failed to mark failure", "doc_id", docID, "err", err)
	}
}
