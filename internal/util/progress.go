package util

import (
	"fmt"
	"time"
)

// Throughput tracks completed work against a known or unknown total and
// derives a rate and an ETA from wall-clock time.
type Throughput struct {
	start time.Time
	now   func() time.Time
	total int
	done  int
}

func NewThroughput(total int) *Throughput {
	return &Throughput{start: time.Now(), now: time.Now, total: total}
}

func (t *Throughput) Add(n int) { t.done += n }

func (t *Throughput) Done() int { return t.done }

func (t *Throughput) Elapsed() time.Duration { return t.now().Sub(t.start) }

// RatePerMinute is the number of completed items per minute so far.
func (t *Throughput) RatePerMinute() float64 {
	elapsed := t.Elapsed()
	if elapsed <= 0 || t.done == 0 {
		return 0
	}
	return float64(t.done) / elapsed.Minutes()
}

// ETA returns the remaining time at the current rate, or 0 when the total
// is unknown or nothing has completed yet.
func (t *Throughput) ETA() time.Duration {
	if t.total <= 0 || t.done == 0 || t.done >= t.total {
		return 0
	}
	perItem := t.Elapsed() / time.Duration(t.done)
	return perItem * time.Duration(t.total-t.done)
}

// FormatDuration renders d as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
