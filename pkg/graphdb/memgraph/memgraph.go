// Package memgraph is an in-memory graphdb.Store for tests. It applies the
// canonical statements built by graphdb (MERGE node, MERGE relationship and
// the delete helpers) with real upsert semantics and answers every other
// query through handlers registered by the test.
package memgraph

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
)

// Node is a stored node.
type Node struct {
	Label string
	Props map[string]any
}

// Rel is a stored relationship between two nodes.
type Rel struct {
	Type  string
	From  *Node
	To    *Node
	Props map[string]any
}

// ReadHandler answers a non-canonical read query.
type ReadHandler func(g *Graph, params map[string]any) ([]graphdb.Record, error)

// WriteHandler applies a non-canonical write query.
type WriteHandler func(g *Graph, params map[string]any) (graphdb.WriteSummary, error)

type handler struct {
	pattern string
	read    ReadHandler
	write   WriteHandler
}

// Graph implements graphdb.Store and graphdb.BatchWriter.
type Graph struct {
	mu       sync.Mutex
	nodes    map[string]map[string]*Node
	rels     []*Rel
	handlers []handler

	// FailWrite, when set, is consulted before each statement is applied.
	FailWrite func(st graphdb.Statement) error

	Reads  []string
	Writes int
}

func New() *Graph {
	return &Graph{nodes: map[string]map[string]*Node{}}
}

// Handle registers a read handler for queries equal to or containing pattern.
// Exact matches win over substring matches; later registrations win over
// earlier ones.
func (g *Graph) Handle(pattern string, fn ReadHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers = append(g.handlers, handler{pattern: pattern, read: fn})
}

// HandleWrite registers a write handler the same way Handle does.
func (g *Graph) HandleWrite(pattern string, fn WriteHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers = append(g.handlers, handler{pattern: pattern, write: fn})
}

func (g *Graph) lookup(query string, write bool) (handler, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var best handler
	found := false
	for i := len(g.handlers) - 1; i >= 0; i-- {
		h := g.handlers[i]
		if (write && h.write == nil) || (!write && h.read == nil) {
			continue
		}
		if h.pattern == query {
			return h, true
		}
		if !found && strings.Contains(query, h.pattern) {
			best, found = h, true
		}
	}
	return best, found
}

func (g *Graph) RunRead(ctx context.Context, query string, params map[string]any) ([]graphdb.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.Reads = append(g.Reads, query)
	g.mu.Unlock()
	h, ok := g.lookup(query, false)
	if !ok {
		return nil, fmt.Errorf("memgraph: no read handler for query: %s", query)
	}
	return h.read(g, params)
}

func (g *Graph) RunWrite(ctx context.Context, query string, params map[string]any) (graphdb.WriteSummary, error) {
	return g.RunWriteBatch(ctx, []graphdb.Statement{{Query: query, Params: params}})
}

// RunWriteBatch applies stmts in order. A failing statement rolls back the
// whole batch.
func (g *Graph) RunWriteBatch(ctx context.Context, stmts []graphdb.Statement) (graphdb.WriteSummary, error) {
	if err := ctx.Err(); err != nil {
		return graphdb.WriteSummary{}, err
	}
	snapshot := g.snapshot()
	var total graphdb.WriteSummary
	for _, st := range stmts {
		sum, err := g.apply(st)
		if err != nil {
			g.restore(snapshot)
			return graphdb.WriteSummary{}, err
		}
		total.Add(sum)
	}
	g.mu.Lock()
	g.Writes++
	g.mu.Unlock()
	return total, nil
}

func (g *Graph) apply(st graphdb.Statement) (graphdb.WriteSummary, error) {
	if g.FailWrite != nil {
		if err := g.FailWrite(st); err != nil {
			return graphdb.WriteSummary{}, err
		}
	}
	if st.Spec == nil || st.Spec.Kind == graphdb.SpecRaw {
		if isSchema(st.Query) {
			return graphdb.WriteSummary{}, nil
		}
		h, ok := g.lookup(st.Query, true)
		if !ok {
			return graphdb.WriteSummary{}, fmt.Errorf("memgraph: no write handler for query: %s", st.Query)
		}
		return h.write(g, st.Params)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	sp := st.Spec
	switch sp.Kind {
	case graphdb.SpecMergeNode:
		return g.mergeNode(sp), nil
	case graphdb.SpecMergeRelationship:
		return g.mergeRel(sp), nil
	case graphdb.SpecDeleteNodes:
		return g.deleteNodes(sp), nil
	case graphdb.SpecDeleteRelationships:
		return g.deleteRels(sp), nil
	case graphdb.SpecUpdateNode:
		if n := g.find(sp.From); n != nil {
			return graphdb.WriteSummary{PropertiesSet: setProps(n.Props, sp.Props)}, nil
		}
		return graphdb.WriteSummary{}, nil
	}
	return graphdb.WriteSummary{}, fmt.Errorf("memgraph: unsupported spec kind %d", sp.Kind)
}

func isSchema(q string) bool {
	q = strings.TrimSpace(q)
	return strings.HasPrefix(q, "CREATE CONSTRAINT") || strings.HasPrefix(q, "CREATE INDEX") ||
		strings.HasPrefix(q, "CREATE FULLTEXT INDEX")
}

func nodeKey(ref graphdb.NodeRef) string {
	return ref.KeyProp + "=" + fmt.Sprint(ref.Key)
}

func (g *Graph) find(ref graphdb.NodeRef) *Node {
	byKey := g.nodes[ref.Label]
	if byKey == nil {
		return nil
	}
	return byKey[nodeKey(ref)]
}

func (g *Graph) mergeNode(sp *graphdb.Spec) graphdb.WriteSummary {
	var sum graphdb.WriteSummary
	n := g.find(sp.From)
	if n == nil {
		n = &Node{Label: sp.From.Label, Props: map[string]any{sp.From.KeyProp: sp.From.Key}}
		if g.nodes[sp.From.Label] == nil {
			g.nodes[sp.From.Label] = map[string]*Node{}
		}
		g.nodes[sp.From.Label][nodeKey(sp.From)] = n
		sum.NodesCreated = 1
		sum.LabelsAdded = 1
		sum.PropertiesSet++
		sum.PropertiesSet += setProps(n.Props, sp.OnCreate)
	}
	sum.PropertiesSet += setProps(n.Props, sp.Props)
	return sum
}

func (g *Graph) mergeRel(sp *graphdb.Spec) graphdb.WriteSummary {
	var sum graphdb.WriteSummary
	from, to := g.find(sp.From), g.find(sp.To)
	if from == nil || to == nil {
		return sum
	}
	var r *Rel
	for _, cand := range g.rels {
		if cand.Type == sp.RelType && cand.From == from && cand.To == to && matches(cand.Props, sp.Identity) {
			r = cand
			break
		}
	}
	if r == nil {
		r = &Rel{Type: sp.RelType, From: from, To: to, Props: map[string]any{}}
		sum.PropertiesSet += setProps(r.Props, sp.Identity)
		sum.PropertiesSet += setProps(r.Props, sp.OnCreate)
		g.rels = append(g.rels, r)
		sum.RelationshipsCreated = 1
	}
	sum.PropertiesSet += setProps(r.Props, sp.Props)
	return sum
}

func (g *Graph) deleteNodes(sp *graphdb.Spec) graphdb.WriteSummary {
	var sum graphdb.WriteSummary
	byKey := g.nodes[sp.From.Label]
	for key, n := range byKey {
		if !matches(n.Props, sp.Match) {
			continue
		}
		kept := g.rels[:0]
		for _, r := range g.rels {
			if r.From == n || r.To == n {
				sum.RelationshipsDeleted++
				continue
			}
			kept = append(kept, r)
		}
		g.rels = kept
		delete(byKey, key)
		sum.NodesDeleted++
	}
	return sum
}

func (g *Graph) deleteRels(sp *graphdb.Spec) graphdb.WriteSummary {
	var sum graphdb.WriteSummary
	var anchor *Node
	if sp.From.Label != "" {
		anchor = g.find(sp.From)
		if anchor == nil {
			return sum
		}
	}
	kept := g.rels[:0]
	for _, r := range g.rels {
		if r.Type == sp.RelType && (anchor == nil || r.From == anchor) && matches(r.Props, sp.Match) {
			sum.RelationshipsDeleted++
			continue
		}
		kept = append(kept, r)
	}
	g.rels = kept
	return sum
}

// setProps follows SET n += $props: a nil value removes the property.
func setProps(dst, src map[string]any) int {
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
	return len(src)
}

func matches(props, want map[string]any) bool {
	for k, v := range want {
		if !equal(props[k], v) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

type state struct {
	nodes map[string]map[string]*Node
	rels  []*Rel
}

func (g *Graph) snapshot() state {
	g.mu.Lock()
	defer g.mu.Unlock()
	copies := map[*Node]*Node{}
	nodes := make(map[string]map[string]*Node, len(g.nodes))
	for label, byKey := range g.nodes {
		nodes[label] = make(map[string]*Node, len(byKey))
		for k, n := range byKey {
			c := &Node{Label: n.Label, Props: maps.Clone(n.Props)}
			copies[n] = c
			nodes[label][k] = c
		}
	}
	rels := make([]*Rel, len(g.rels))
	for i, r := range g.rels {
		rels[i] = &Rel{Type: r.Type, From: copies[r.From], To: copies[r.To], Props: maps.Clone(r.Props)}
	}
	return state{nodes: nodes, rels: rels}
}

func (g *Graph) restore(s state) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = s.nodes
	g.rels = s.rels
}

// Nodes returns copies of the properties of every node with label, ordered
// by key.
func (g *Graph) Nodes(label string) []graphdb.Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	byKey := g.nodes[label]
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]graphdb.Record, len(keys))
	for i, k := range keys {
		out[i] = maps.Clone(byKey[k].Props)
	}
	return out
}

// Node returns the properties of a single node.
func (g *Graph) Node(label, keyProp string, key any) (graphdb.Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.find(graphdb.NodeRef{Label: label, KeyProp: keyProp, Key: key})
	if n == nil {
		return nil, false
	}
	return maps.Clone(n.Props), true
}

// SetNodeProps overwrites properties of an existing node, for arranging test
// state that no canonical statement produces.
func (g *Graph) SetNodeProps(label, keyProp string, key any, props map[string]any) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.find(graphdb.NodeRef{Label: label, KeyProp: keyProp, Key: key})
	if n == nil {
		return false
	}
	setProps(n.Props, props)
	return true
}

// RelView is a read-only copy of a relationship.
type RelView struct {
	Type      string
	FromLabel string
	From      graphdb.Record
	ToLabel   string
	To        graphdb.Record
	Props     graphdb.Record
}

// Relationships returns copies of every relationship of relType in
// insertion order. An empty relType returns all relationships.
func (g *Graph) Relationships(relType string) []RelView {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []RelView
	for _, r := range g.rels {
		if relType != "" && r.Type != relType {
			continue
		}
		out = append(out, RelView{
			Type:      r.Type,
			FromLabel: r.From.Label,
			From:      maps.Clone(r.From.Props),
			ToLabel:   r.To.Label,
			To:        maps.Clone(r.To.Props),
			Props:     maps.Clone(r.Props),
		})
	}
	return out
}

// SetRelProps overwrites properties on every relationship selected by match.
func (g *Graph) SetRelProps(relType string, match func(RelView) bool, props map[string]any) int {
	views := g.Relationships(relType)
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	i := 0
	for _, r := range g.rels {
		if relType != "" && r.Type != relType {
			continue
		}
		if match(views[i]) {
			setProps(r.Props, props)
			n++
		}
		i++
	}
	return n
}

func (g *Graph) CountNodes(label string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes[label])
}

func (g *Graph) CountRelationships(relType string) int {
	return len(g.Relationships(relType))
}
