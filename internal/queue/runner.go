package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/macrokg/pkg/analytics"
	"github.com/OFFIS-RIT/macrokg/pkg/common"
	"github.com/OFFIS-RIT/macrokg/pkg/graph"
	"github.com/OFFIS-RIT/macrokg/pkg/ingest"
	"github.com/OFFIS-RIT/macrokg/pkg/leaselock"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
	"github.com/OFFIS-RIT/macrokg/pkg/monitor"
)

type DocumentSyncer interface {
	SyncDocuments(ctx context.Context, since time.Time) ingest.SyncReport
	SyncObservations(ctx context.Context, since time.Time) ingest.SyncReport
}

type BacklogRunner interface {
	Run(ctx context.Context, opts graph.BacklogOptions) graph.BacklogReport
}

// Analytics is implemented by *analytics.Analyzer.
type Analytics interface {
	ComputeDerivedFeatures(ctx context.Context, opts analytics.FeatureOptions) analytics.JobReport
	ComputeEventImpact(ctx context.Context, opts analytics.ImpactOptions) analytics.JobReport
	RecalibrateAffects(ctx context.Context, opts analytics.RecalibrateOptions) analytics.JobReport
	GenerateCorrelations(ctx context.Context, opts analytics.CorrelationOptions) analytics.JobReport
	ClusterStories(ctx context.Context, opts analytics.StoryOptions) analytics.JobReport
	BuildMacroState(ctx context.Context, date time.Time, opts analytics.MacroStateOptions) analytics.JobReport
}

// JobOptions are the configured defaults of every job. A message window
// overrides the window of the job it names.
type JobOptions struct {
	SyncLookbackDays int
	Backlog          graph.BacklogOptions
	Correlation      analytics.CorrelationOptions
	Impact           analytics.ImpactOptions
	Recalibrate      analytics.RecalibrateOptions
	Stories          analytics.StoryOptions
	MacroState       analytics.MacroStateOptions
	FeatureDays      int
}

type RunnerParams struct {
	Locker    leaselock.Locker
	LeaseTTL  time.Duration
	Syncer    DocumentSyncer
	Backlog   BacklogRunner
	Analytics Analytics
	Answerer  monitor.Answerer
	// GoldenFile is read on every regression run.
	GoldenFile string
	// Archive is optional. Regression reports are only logged without it.
	Archive monitor.ObjectStore
	Options JobOptions
	Now     func() time.Time
}

// JobResult is the outcome of one job run.
type JobResult struct {
	Job        string        `json:"job"`
	WindowDays int           `json:"window_days"`
	Status     common.Status `json:"status"`
	Message    string        `json:"message"`
	Details    any           `json:"details,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Runner runs batch jobs, one lease per job and window.
//
// A Runner should be created using NewRunner.
type Runner struct {
	locker    leaselock.Locker
	ttl       time.Duration
	syncer    DocumentSyncer
	backlog   BacklogRunner
	analytics Analytics
	answerer  monitor.Answerer
	golden    string
	archive   monitor.ObjectStore
	opts      JobOptions
	now       func() time.Time
}

func NewRunner(params RunnerParams) *Runner {
	r := &Runner{
		locker:    params.Locker,
		ttl:       params.LeaseTTL,
		syncer:    params.Syncer,
		backlog:   params.Backlog,
		analytics: params.Analytics,
		answerer:  params.Answerer,
		golden:    params.GoldenFile,
		archive:   params.Archive,
		opts:      params.Options,
		now:       params.Now,
	}
	if r.locker == nil {
		r.locker = leaselock.NewMemoryLocker()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.opts.SyncLookbackDays <= 0 {
		r.opts.SyncLookbackDays = 30
	}
	if r.opts.FeatureDays <= 0 {
		r.opts.FeatureDays = 90
	}
	return r
}

// Window is the window a job runs over when msg names none.
func (r *Runner) Window(msg JobMsg) int {
	if msg.WindowDays > 0 {
		return msg.WindowDays
	}
	switch msg.Job {
	case JobSync:
		return r.opts.SyncLookbackDays
	case JobDerivedFeatures:
		return r.opts.FeatureDays
	case JobEventImpact:
		return analytics.DefaultImpactSince
	case JobRecalibrate:
		return orDefault(r.opts.Recalibrate.WindowDays, analytics.DefaultRecalibrationWindow)
	case JobCorrelations:
		return orDefault(r.opts.Correlation.WindowDays, analytics.DefaultCorrelationWindow)
	case JobStories:
		return orDefault(r.opts.Stories.WindowDays, analytics.DefaultStoryWindow)
	case JobMacroState:
		return orDefault(r.opts.MacroState.LookbackDays, analytics.DefaultStateLookback)
	}
	return 0
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Handle runs msg under the lease job:<name>:<window>. It returns
// leaselock.ErrBusy when the same job and window is already running and
// an error when the job itself failed.
func (r *Runner) Handle(ctx context.Context, msg JobMsg) (JobResult, error) {
	if err := msg.Validate(); err != nil {
		return JobResult{Job: msg.Job, Status: common.StatusError, Message: err.Error()}, err
	}
	window := r.Window(msg)
	res := JobResult{Job: msg.Job, WindowDays: window}
	start := r.now()

	err := r.locker.WithLease(ctx, leaselock.JobKey(msg.Job, window), leaselock.Options{TTL: r.ttl},
		func(ctx context.Context) error {
			res.Status, res.Message, res.Details = r.dispatch(ctx, msg.Job, window)
			return nil
		})
	res.Elapsed = r.now().Sub(start)
	if errors.Is(err, leaselock.ErrBusy) {
		res.Status, res.Message = common.StatusSkipped, fmt.Sprintf("%s is already running for %dd", msg.Job, window)
		return res, err
	}
	if err != nil {
		res.Status, res.Message = common.StatusError, err.Error()
		return res, err
	}

	logger.Info("[Jobs] Job finished", "job", res.Job, "window", window,
		"status", res.Status, "message", res.Message, "elapsed", res.Elapsed)
	if res.Status == common.StatusError {
		return res, fmt.Errorf("job %s failed: %s", res.Job, res.Message)
	}
	return res, nil
}

func (r *Runner) since(window int) time.Time {
	return r.now().UTC().AddDate(0, 0, -window)
}

func (r *Runner) dispatch(ctx context.Context, job string, window int) (common.Status, string, any) {
	switch job {
	case JobSync:
		if r.syncer == nil {
			return missing(job)
		}
		docs := r.syncer.SyncDocuments(ctx, r.since(window))
		if docs.Status == common.StatusError {
			return docs.Status, docs.Message, []ingest.SyncReport{docs}
		}
		obs := r.syncer.SyncObservations(ctx, r.since(window))
		status := obs.Status
		if status != common.StatusError && (docs.Status == common.StatusSuccess || obs.Status == common.StatusSuccess) {
			status = common.StatusSuccess
		}
		return status, fmt.Sprintf("documents: %s; observations: %s", docs.Message, obs.Message),
			[]ingest.SyncReport{docs, obs}
	case JobExtractBacklog:
		if r.backlog == nil {
			return missing(job)
		}
		rep := r.backlog.Run(ctx, r.opts.Backlog)
		return rep.Status, rep.Message, rep
	case JobRegression:
		return r.regression(ctx)
	}

	if r.analytics == nil {
		return missing(job)
	}
	var rep analytics.JobReport
	switch job {
	case JobDerivedFeatures:
		rep = r.analytics.ComputeDerivedFeatures(ctx, analytics.FeatureOptions{Since: r.since(window)})
	case JobEventImpact:
		opts := r.opts.Impact
		opts.Since = r.since(window)
		rep = r.analytics.ComputeEventImpact(ctx, opts)
	case JobRecalibrate:
		opts := r.opts.Recalibrate
		opts.WindowDays = window
		rep = r.analytics.RecalibrateAffects(ctx, opts)
	case JobCorrelations:
		opts := r.opts.Correlation
		opts.WindowDays = window
		rep = r.analytics.GenerateCorrelations(ctx, opts)
	case JobStories:
		opts := r.opts.Stories
		opts.WindowDays = window
		rep = r.analytics.ClusterStories(ctx, opts)
	case JobMacroState:
		opts := r.opts.MacroState
		opts.LookbackDays = window
		rep = r.analytics.BuildMacroState(ctx, r.now().UTC(), opts)
	}
	return rep.Status, rep.Message, rep
}

func (r *Runner) regression(ctx context.Context) (common.Status, string, any) {
	if r.answerer == nil || r.golden == "" {
		return missing(JobRegression)
	}
	set, err := monitor.LoadGoldenSet(r.golden)
	if err != nil {
		return common.StatusError, err.Error(), nil
	}
	report, err := monitor.RunRegression(ctx, r.answerer, set)
	if err != nil {
		return common.StatusError, err.Error(), nil
	}
	msg := fmt.Sprintf("%d/%d passed", report.Passed, len(report.Cases))
	if r.archive != nil && report.Status == common.StatusSuccess {
		key, err := monitor.Archive(ctx, r.archive, report)
		if err != nil {
			logger.Error("[Jobs] Failed to archive regression report", "id", report.ID, "err", err)
		} else {
			msg += ", archived to " + key
		}
	}
	return report.Status, msg, report
}

func missing(job string) (common.Status, string, any) {
	return common.StatusSkipped, job + " is not configured on this worker", nil
}
