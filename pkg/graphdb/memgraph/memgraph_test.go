package memgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/macrokg/pkg/graphdb"
)

func doc(id string) graphdb.NodeRef {
	return graphdb.NodeRef{Label: "Document", KeyProp: "id", Key: id}
}

func TestMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := New()
	stmts := []graphdb.Statement{
		graphdb.MergeNode(doc("d1"), map[string]any{"title": "CPI"}, map[string]any{"extraction_status": "pending"}),
		graphdb.MergeNode(graphdb.NodeRef{Label: "MacroTheme", KeyProp: "id", Key: "inflation"}, nil, nil),
		graphdb.MergeRelationship(doc("d1"), "ABOUT_THEME", graphdb.NodeRef{Label: "MacroTheme", KeyProp: "id", Key: "inflation"}, nil, nil, nil),
	}
	first, err := graphdb.Exec(ctx, g, stmts...)
	if err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if first.NodesCreated != 2 || first.RelationshipsCreated != 1 {
		t.Fatalf("first summary = %+v", first)
	}
	second, err := graphdb.Exec(ctx, g, stmts...)
	if err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if second.Created() {
		t.Fatalf("second run created elements: %+v", second)
	}
	if g.CountNodes("Document") != 1 || g.CountRelationships("ABOUT_THEME") != 1 {
		t.Fatal("duplicate elements after rerun")
	}
}

func TestOnCreateOnlyAppliedOnce(t *testing.T) {
	ctx := context.Background()
	g := New()
	_, _ = graphdb.Exec(ctx, g, graphdb.MergeNode(doc("d1"), nil, map[string]any{"extraction_status": "pending"}))
	g.SetNodeProps("Document", "id", "d1", map[string]any{"extraction_status": "success"})
	_, _ = graphdb.Exec(ctx, g, graphdb.MergeNode(doc("d1"), nil, map[string]any{"extraction_status": "pending"}))

	n, _ := g.Node("Document", "id", "d1")
	if n.String("extraction_status") != "success" {
		t.Fatalf("status overwritten on match: %v", n["extraction_status"])
	}
}

func TestBatchRollback(t *testing.T) {
	ctx := context.Background()
	g := New()
	boom := errors.New("boom")
	g.FailWrite = func(st graphdb.Statement) error {
		if st.Spec != nil && st.Spec.Kind == graphdb.SpecMergeRelationship {
			return boom
		}
		return nil
	}
	_, err := graphdb.Exec(ctx, g,
		graphdb.MergeNode(doc("d1"), nil, nil),
		graphdb.MergeRelationship(doc("d1"), "SELF", doc("d1"), nil, nil, nil),
	)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if g.CountNodes("Document") != 0 {
		t.Fatal("failed batch left nodes behind")
	}
}

func TestDeleteHelpers(t *testing.T) {
	ctx := context.Background()
	g := New()
	story := func(id string, window int) graphdb.Statement {
		return graphdb.MergeNode(graphdb.NodeRef{Label: "Story", KeyProp: "id", Key: id},
			map[string]any{"method": "bucket", "window_days": window}, nil)
	}
	_, _ = graphdb.Exec(ctx, g, story("s1", 7), story("s2", 7), story("s3", 14), graphdb.MergeNode(doc("d1"), nil, nil),
		graphdb.MergeRelationship(graphdb.NodeRef{Label: "Story", KeyProp: "id", Key: "s1"}, "INCLUDES", doc("d1"), nil, nil, nil))

	sum, err := graphdb.Exec(ctx, g, graphdb.DeleteNodes("Story", map[string]any{"method": "bucket", "window_days": int64(7)}))
	if err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if sum.NodesDeleted != 2 || sum.RelationshipsDeleted != 1 {
		t.Fatalf("delete summary = %+v", sum)
	}
	if g.CountNodes("Story") != 1 {
		t.Fatalf("remaining stories = %d, want 1", g.CountNodes("Story"))
	}
}

func TestReadHandlers(t *testing.T) {
	g := New()
	g.Handle("MATCH (d:Document)", func(g *Graph, params map[string]any) ([]graphdb.Record, error) {
		return []graphdb.Record{{"id": "generic"}}, nil
	})
	g.Handle("MATCH (d:Document) RETURN d.id AS id", func(g *Graph, params map[string]any) ([]graphdb.Record, error) {
		return []graphdb.Record{{"id": "exact"}}, nil
	})

	rows, err := g.RunRead(context.Background(), "MATCH (d:Document) RETURN d.id AS id", nil)
	if err != nil || len(rows) != 1 || rows[0].String("id") != "exact" {
		t.Fatalf("exact handler not preferred: %v %v", rows, err)
	}
	rows, _ = g.RunRead(context.Background(), "MATCH (d:Document) WHERE d.x RETURN d", nil)
	if rows[0].String("id") != "generic" {
		t.Fatalf("substring handler not used: %v", rows)
	}
	if _, err := g.RunRead(context.Background(), "MATCH (x:Other) RETURN x", nil); err == nil {
		t.Fatal("expected error for unhandled query")
	}
}

func TestUpdateNodeNeverCreates(t *testing.T) {
	ctx := context.Background()
	g := New()
	sum, err := graphdb.Exec(ctx, g, graphdb.UpdateNode(doc("missing"), map[string]any{"extraction_status": "success"}))
	if err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if sum.NodesCreated != 0 || g.CountNodes("Document") != 0 {
		t.Fatalf("UpdateNode created a node: %+v", sum)
	}

	_, _ = graphdb.Exec(ctx, g, graphdb.MergeNode(doc("d1"), nil, nil))
	sum, _ = graphdb.Exec(ctx, g, graphdb.UpdateNode(doc("d1"), map[string]any{"extraction_status": "success"}))
	if sum.PropertiesSet != 1 {
		t.Fatalf("UpdateNode summary = %+v", sum)
	}
	n, _ := g.Node("Document", "id", "d1")
	if n.String("extraction_status") != "success" {
		t.Fatalf("status = %v, want success", n["extraction_status"])
	}
}
