// Package monitor records model calls, aggregates them into quality,
// reproducibility and latency metrics, and runs the golden-question
// regression harness against answer generation.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/macrokg/internal/util"
	"github.com/OFFIS-RIT/macrokg/pkg/ai"
	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

// Error kinds of failed calls.
const (
	KindEmpty    = "empty"
	KindParse    = "parse"
	KindTimeout  = "timeout"
	KindProvider = "provider"
)

// CallLog is one model call.
type CallLog struct {
	Operation    string    `json:"operation"`
	Model        string    `json:"model"`
	PromptHash   string    `json:"prompt_hash"`
	ResponseHash string    `json:"response_hash,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Success      bool      `json:"success"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type CallLogSink interface {
	RecordCall(ctx context.Context, log CallLog) error
}

type CallLogReader interface {
	CallLogs(ctx context.Context, since time.Time) ([]CallLog, error)
}

// MemorySink keeps call logs in process.
type MemorySink struct {
	mu   sync.Mutex
	logs []CallLog
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) RecordCall(_ context.Context, log CallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

// CallLogs returns the logs created at or after since, oldest first.
func (s *MemorySink) CallLogs(_ context.Context, since time.Time) ([]CallLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CallLog
	for _, l := range s.logs {
		if !l.CreatedAt.Before(since) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// LoggedClient wraps a GraphAIClient and records every call. Sink failures
// are logged and never fail the call.
//
// A LoggedClient should be created using NewLoggedClient.
type LoggedClient struct {
	next ai.GraphAIClient
	sink CallLogSink
	now  func() time.Time
}

func NewLoggedClient(next ai.GraphAIClient, sink CallLogSink) *LoggedClient {
	return &LoggedClient{next: next, sink: sink, now: time.Now}
}

func (c *LoggedClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	var out string
	err := c.observe(ctx, "completion", prompt, opts, func() (string, error) {
		var err error
		out, err = c.next.GenerateCompletion(ctx, prompt, opts...)
		return out, err
	})
	return out, err
}

func (c *LoggedClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	return c.observe(ctx, name, prompt, opts, func() (string, error) {
		if err := c.next.GenerateCompletionWithFormat(ctx, name, description, prompt, out, opts...); err != nil {
			return "", err
		}
		raw, err := json.Marshal(out)
		if err != nil {
			return "", nil
		}
		return string(raw), nil
	})
}

func (c *LoggedClient) ResetMetrics()               { c.next.ResetMetrics() }
func (c *LoggedClient) GetMetrics() ai.ModelMetrics { return c.next.GetMetrics() }

func (c *LoggedClient) observe(ctx context.Context, op, prompt string, opts []ai.GenerateOption, call func() (string, error)) error {
	options := ai.ApplyOptions(ai.GenerateOptions{}, opts...)
	log := CallLog{
		Operation:  op,
		Model:      options.Model,
		PromptHash: util.ShortHash(strings.Join(options.SystemPrompts, "\n") + "\n" + prompt),
		CreatedAt:  c.now().UTC(),
	}

	// token deltas are approximate while calls overlap
	before := c.next.GetMetrics()
	start := time.Now()
	response, err := call()
	log.DurationMs = time.Since(start).Milliseconds()
	after := c.next.GetMetrics()

	log.InputTokens = max(after.InputTokens-before.InputTokens, 0)
	log.OutputTokens = max(after.OutputTokens-before.OutputTokens, 0)
	log.Success = err == nil
	if err != nil {
		log.ErrorKind = classify(err)
		log.Error = err.Error()
	} else if response != "" {
		log.ResponseHash = util.ShortHash(response)
	}

	if c.sink != nil {
		if serr := c.sink.RecordCall(context.WithoutCancel(ctx), log); serr != nil {
			logger.Warn("[Monitor] Failed to record call log", "operation", op, "err", serr)
		}
	}
	return err
}

func classify(err error) string {
	switch {
	case errors.Is(err, ai.ErrEmptyResponse):
		return KindEmpty
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	msg := err.Error()
	if strings.Contains(msg, "unmarshal") || strings.Contains(msg, "json repair") {
		return KindParse
	}
	return KindProvider
}
