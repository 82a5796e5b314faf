package retrieval

import (
	"sort"
	"sync"
)

type TraceEventKind string

const (
	TraceFulltext TraceEventKind = "fulltext"
	TraceFallback TraceEventKind = "fallback"
	TraceGraph    TraceEventKind = "graph"
	TraceUsed     TraceEventKind = "used"
)

// TraceEvent reports the document ids one retrieval path produced.
type TraceEvent struct {
	Kind        TraceEventKind
	DocumentIDs []string
	DurationMs  int64
	Error       string
}

// Tracer is a sink for retrieval trace events.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fans out events to several tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func record(t Tracer, kind TraceEventKind, ids []string, ms int64, err error) {
	if t == nil {
		return
	}
	ev := TraceEvent{Kind: kind, DocumentIDs: ids, DurationMs: ms}
	if err != nil {
		ev.Error = err.Error()
	}
	t.Record(ev)
}

// Trace collects which documents each path considered and which ended up in
// the response. Trace is safe for concurrent use.
type Trace struct {
	mu         sync.Mutex
	considered map[TraceEventKind]map[string]struct{}
	used       map[string]struct{}
	errors     map[TraceEventKind]string
}

type TraceSnapshot struct {
	Considered map[TraceEventKind][]string `json:"considered"`
	Used       []string                    `json:"used"`
	Errors     map[TraceEventKind]string   `json:"errors,omitempty"`
}

func NewTrace() *Trace {
	return &Trace{
		considered: make(map[TraceEventKind]map[string]struct{}),
		used:       make(map[string]struct{}),
		errors:     make(map[TraceEventKind]string),
	}
}

func (t *Trace) Record(event TraceEvent) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Error != "" {
		t.errors[event.Kind] = event.Error
	}
	if event.Kind == TraceUsed {
		for _, id := range event.DocumentIDs {
			if id != "" {
				t.used[id] = struct{}{}
			}
		}
		return
	}
	set := t.considered[event.Kind]
	if set == nil {
		set = make(map[string]struct{})
		t.considered[event.Kind] = set
	}
	for _, id := range event.DocumentIDs {
		if id != "" {
			set[id] = struct{}{}
		}
	}
}

func (t *Trace) Snapshot() TraceSnapshot {
	if t == nil {
		return TraceSnapshot{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	s := TraceSnapshot{
		Considered: make(map[TraceEventKind][]string, len(t.considered)),
		Used:       make([]string, 0, len(t.used)),
	}
	for kind, set := range t.considered {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		s.Considered[kind] = ids
	}
	for id := range t.used {
		s.Used = append(s.Used, id)
	}
	sort.Strings(s.Used)
	if len(t.errors) > 0 {
		s.Errors = make(map[TraceEventKind]string, len(t.errors))
		for k, v := range t.errors {
			s.Errors[k] = v
		}
	}
	return s
}
