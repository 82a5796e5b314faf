package analytics

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

const (
	StoryMethod = "bucket"

	DefaultStoryWindow      = 7
	DefaultStoryBucket      = 3
	DefaultStoryMinDocs     = 3
	DefaultStoryMinStories  = 3
	DefaultStoryMaxAttempts = 4
)

// StoryConfig is one (window, bucket) clustering configuration.
type StoryConfig struct {
	WindowDays int `json:"window_days"`
	BucketDays int `json:"bucket_days"`
}

// widening is tried in order after the requested configuration.
var widening = []StoryConfig{{7, 3}, {14, 7}, {30, 7}, {30, 14}}

type StoryOptions struct {
	WindowDays  int
	BucketDays  int
	MinDocs     int
	MinStories  int
	MaxAttempts int
}

func (o StoryOptions) withDefaults() StoryOptions {
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultStoryWindow
	}
	if o.BucketDays <= 0 {
		o.BucketDays = DefaultStoryBucket
	}
	if o.MinDocs <= 0 {
		o.MinDocs = DefaultStoryMinDocs
	}
	if o.MinStories <= 0 {
		o.MinStories = DefaultStoryMinStories
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultStoryMaxAttempts
	}
	return o
}

// Attempts lists the configurations ClusterStories tries, the requested
// one first, without duplicates and capped at MaxAttempts.
func (o StoryOptions) Attempts() []StoryConfig {
	o = o.withDefaults()
	out := []StoryConfig{{o.WindowDays, o.BucketDays}}
	for _, c := range widening {
		if len(out) >= o.MaxAttempts {
			break
		}
		if c.WindowDays < o.WindowDays || c == out[0] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Story is a theme bucket with enough documents.
type Story struct {
	ID         string   `json:"id"`
	Theme      string   `json:"theme"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	BucketDays int      `json:"bucket_days"`
	WindowDays int      `json:"window_days"`
	DocIDs     []string `json:"doc_ids"`
}

// StoryID is stable for a theme, bucket start and bucket size.
func StoryID(theme, start string, bucketDays int) string {
	return util.HashID("story", theme, start, strconv.Itoa(bucketDays))
}

// BucketStories groups documents dated in (today − window, today] by
// (theme, floor(epochDay / bucket)) and keeps buckets with at least
// minDocs documents.
func BucketStories(docs []ThemedDocument, today time.Time, cfg StoryConfig, minDocs int) []Story {
	from := graphdb.FormatDate(today.AddDate(0, 0, -cfg.WindowDays+1))
	to := graphdb.FormatDate(today)
	type key struct {
		theme  string
		bucket int64
	}
	buckets := map[key][]string{}
	for _, d := range docs {
		if d.Date < from || d.Date > to {
			continue
		}
		t, ok := parseDate(d.Date)
		if !ok {
			continue
		}
		b := epochDay(t) / int64(cfg.BucketDays)
		for _, th := range d.Themes {
			k := key{th, b}
			buckets[k] = append(buckets[k], d.ID)
		}
	}

	var out []Story
	for k, ids := range buckets {
		if len(ids) < minDocs {
			continue
		}
		startDay := time.Unix(k.bucket*int64(cfg.BucketDays)*86400, 0).UTC()
		start := graphdb.FormatDate(startDay)
		sort.Strings(ids)
		out = append(out, Story{
			ID:         StoryID(k.theme, start, cfg.BucketDays),
			Theme:      k.theme,
			Start:      start,
			End:        graphdb.FormatDate(startDay.AddDate(0, 0, cfg.BucketDays-1)),
			BucketDays: cfg.BucketDays,
			WindowDays: cfg.WindowDays,
			DocIDs:     ids,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Theme < out[j].Theme
	})
	return out
}

// SelectStories runs the attempts in order, stops at the first one with at
// least MinStories stories and otherwise keeps the one with the most.
func SelectStories(docs []ThemedDocument, today time.Time, opts StoryOptions) (StoryConfig, []Story) {
	opts = opts.withDefaults()
	attempts := opts.Attempts()
	bestCfg := attempts[0]
	var best []Story
	for i, cfg := range attempts {
		stories := BucketStories(docs, today, cfg, opts.MinDocs)
		if i == 0 || len(stories) > len(best) {
			bestCfg, best = cfg, stories
		}
		if len(stories) >= opts.MinStories {
			break
		}
	}
	return bestCfg, best
}

// ExistingStoriesQuery lists stories produced by one method and window.
const ExistingStoriesQuery = `
MATCH (s:Story)
WHERE s.method = $method AND s.window_days = $window_days
RETURN s.id AS id`

// ClusterStories materializes the story clusters of the best configuration.
// Stories of the same method and window that no longer qualify are
// deleted; surviving ones keep their id and get their membership rewritten.
func (a *Analyzer) ClusterStories(ctx context.Context, opts StoryOptions) JobReport {
	report, started := a.start("stories")
	opts = opts.withDefaults()
	today := a.today()

	maxWindow := 0
	for _, c := range opts.Attempts() {
		maxWindow = max(maxWindow, c.WindowDays)
	}
	docs, err := a.loadThemedDocuments(ctx, graphdb.FormatDate(today.AddDate(0, 0, -maxWindow)), graphdb.FormatDate(today))
	if err != nil {
		return a.fail(report, started, "[Stories]", err)
	}
	report.Processed = len(docs)

	cfg, stories := SelectStories(docs, today, opts)
	report.Params["window_days"] = cfg.WindowDays
	report.Params["bucket_days"] = cfg.BucketDays
	if len(stories) == 0 {
		logger.Info("[Stories] No bucket reached the minimum size", "documents", len(docs), "min_docs", opts.MinDocs)
		return a.done(report, started, "no stories")
	}

	rows, err := a.store.RunRead(ctx, ExistingStoriesQuery, map[string]any{
		"method": StoryMethod, "window_days": cfg.WindowDays,
	})
	if err != nil {
		return a.fail(report, started, "[Stories]", fmt.Errorf("list stories: %w", err))
	}
	keep := map[string]bool{}
	for _, s := range stories {
		keep[s.ID] = true
	}

	now := graphdb.FormatTime(a.now())
	var stmts []graphdb.Statement
	for _, r := range rows {
		if id := r.String("id"); id != "" && !keep[id] {
			stmts = append(stmts, graphdb.DeleteNodes(graphdb.LabelStory, map[string]any{"id": id}))
		}
	}
	for _, s := range stories {
		ref := graphdb.StoryRef(s.ID)
		stmts = append(stmts,
			graphdb.MergeNode(ref, map[string]any{
				"theme":       s.Theme,
				"name":        fmt.Sprintf("%s %s to %s", s.Theme, s.Start, s.End),
				"start":       s.Start,
				"end":         s.End,
				"doc_count":   len(s.DocIDs),
				"method":      StoryMethod,
				"window_days": s.WindowDays,
				"bucket_days": s.BucketDays,
				"computed_at": now,
			}, map[string]any{"created_at": now}),
			graphdb.DeleteRelationships(ref, graphdb.RelIncludes, nil),
			graphdb.MergeRelationship(ref, graphdb.RelAboutTheme, graphdb.ThemeRef(s.Theme), nil, nil, nil),
		)
		for _, id := range s.DocIDs {
			stmts = append(stmts, graphdb.MergeRelationship(ref, graphdb.RelIncludes, graphdb.DocumentRef(id), nil, nil, nil))
		}
	}

	sum, err := graphdb.Exec(ctx, a.store, stmts...)
	if err != nil {
		return a.fail(report, started, "[Stories]", fmt.Errorf("write stories: %w", err))
	}
	report.Summary = sum
	report.Written = len(stories)
	logger.Info("[Stories] Stories clustered",
		"documents", len(docs), "stories", len(stories),
		"window_days", cfg.WindowDays, "bucket_days", cfg.BucketDays, "deleted", sum.NodesDeleted)
	return a.done(report, started, fmt.Sprintf("%d stories (window %dd, bucket %dd)", len(stories), cfg.WindowDays, cfg.BucketDays))
}
