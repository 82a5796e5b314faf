package graphdb

import (
	"strings"
	"testing"
)

func TestMergeNodeQuery(t *testing.T) {
	st := MergeNode(NodeRef{Label: "Event", KeyProp: "id", Key: "evt:1"},
		map[string]any{"name": "Rate hike"}, map[string]any{"created_at": "2026-01-01T00:00:00Z"})

	want := "MERGE (n:Event {id: $key}) ON CREATE SET n += $on_create SET n += $props"
	if st.Query != want {
		t.Fatalf("Query = %q, want %q", st.Query, want)
	}
	if st.Params["key"] != "evt:1" {
		t.Fatalf("key param = %v", st.Params["key"])
	}
	if st.Spec == nil || st.Spec.Kind != SpecMergeNode {
		t.Fatalf("Spec = %+v", st.Spec)
	}
}

func TestMergeRelationshipIdentity(t *testing.T) {
	st := MergeRelationship(
		NodeRef{Label: "Event", KeyProp: "id", Key: "evt:1"},
		"LINKED",
		NodeRef{Label: "Entity", KeyProp: "id", Key: "ent:fed"},
		map[string]any{"type": "MENTIONS"},
		map[string]any{"confidence": 0.8},
		nil,
	)
	if !strings.Contains(st.Query, "MERGE (a)-[r:LINKED {type: $id_type}]->(b)") {
		t.Fatalf("identity not in pattern: %s", st.Query)
	}
	if st.Params["id_type"] != "MENTIONS" {
		t.Fatalf("identity param = %v", st.Params["id_type"])
	}
	if _, ok := st.Params["on_create"].(map[string]any); !ok {
		t.Fatal("nil onCreate must become an empty map")
	}
}

func TestDeleteStatements(t *testing.T) {
	st := DeleteNodes("Story", map[string]any{"method": "bucket", "window_days": 7})
	want := "MATCH (n:Story) WHERE n.method = $m_method AND n.window_days = $m_window_days DETACH DELETE n"
	if st.Query != want {
		t.Fatalf("Query = %q, want %q", st.Query, want)
	}

	rel := DeleteRelationships(NodeRef{Label: "MacroState", KeyProp: "date", Key: "2026-01-02"}, "TOP_SIGNAL", nil)
	if rel.Query != "MATCH (a:MacroState {date: $from})-[r:TOP_SIGNAL]->() DELETE r" {
		t.Fatalf("Query = %q", rel.Query)
	}
}

func TestInvalidIdentifierPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for injected label")
		}
	}()
	MergeNode(NodeRef{Label: "Event) DETACH DELETE (x", KeyProp: "id", Key: 1}, nil, nil)
}
