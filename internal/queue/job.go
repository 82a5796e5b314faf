package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/OFFIS-RIT/macrokg/pkg/common"
)

// Batch jobs.
const (
	JobSync            = "sync"
	JobExtractBacklog  = "extract_backlog"
	JobDerivedFeatures = "derived_features"
	JobEventImpact     = "event_impact"
	JobRecalibrate     = "recalibrate"
	JobCorrelations    = "correlations"
	JobStories         = "stories"
	JobMacroState      = "macro_state"
	JobRegression      = "regression"
)

var Jobs = []string{
	JobSync, JobExtractBacklog, JobDerivedFeatures, JobEventImpact, JobRecalibrate,
	JobCorrelations, JobStories, JobMacroState, JobRegression,
}

const maxWindowDays = 3650

var ErrUnknownJob = fmt.Errorf("%w: unknown job", common.ErrValidation)

// JobMsg requests one run of a batch job. WindowDays zero selects the job's
// configured window.
type JobMsg struct {
	Job         string    `json:"job" validate:"required"`
	WindowDays  int       `json:"window_days,omitempty" validate:"min=0,max=3650"`
	RequestedAt time.Time `json:"requested_at"`
}

func (m JobMsg) Validate() error {
	if !slices.Contains(Jobs, m.Job) {
		return fmt.Errorf("%w: %q", ErrUnknownJob, m.Job)
	}
	if m.WindowDays < 0 || m.WindowDays > maxWindowDays {
		return fmt.Errorf("%w: window_days %d out of range", common.ErrValidation, m.WindowDays)
	}
	return nil
}

func ParseJobMsg(body []byte) (JobMsg, error) {
	var m JobMsg
	if err := json.Unmarshal(body, &m); err != nil {
		return m, fmt.Errorf("%w: decode job message: %w", common.ErrValidation, err)
	}
	return m, m.Validate()
}

// PublishJob validates msg and puts it on the jobs queue.
func PublishJob(ctx context.Context, p Publisher, queueName string, msg JobMsg) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.RequestedAt.IsZero() {
		msg.RequestedAt = time.Now().UTC()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := publish(ctx, p, queueName, body, nil); err != nil {
		return fmt.Errorf("publish %s job: %w", msg.Job, err)
	}
	return nil
}
