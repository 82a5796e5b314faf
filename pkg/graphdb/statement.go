package graphdb

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Statement is a parameterized query. Statements produced by the builders
// below also carry a Spec describing the mutation in structured form so
// that test stores can apply it without parsing Cypher.
type Statement struct {
	Query  string
	Params map[string]any
	Spec   *Spec
}

type SpecKind int

const (
	SpecRaw SpecKind = iota
	SpecMergeNode
	SpecMergeRelationship
	SpecDeleteNodes
	SpecDeleteRelationships
	SpecUpdateNode
)

// NodeRef addresses a node by label and unique key property.
type NodeRef struct {
	Label   string
	KeyProp string
	Key     any
}

// Spec is the structured form of a canonical statement.
//
// For SpecMergeNode, From is the node. For SpecMergeRelationship, From and
// To are the endpoints and Identity holds relationship properties that take
// part in the MERGE pattern. Props are set on every write, OnCreate only
// when the element is created. For deletes, Match restricts which elements
// are removed and From optionally anchors relationship deletes.
type Spec struct {
	Kind     SpecKind
	From     NodeRef
	To       NodeRef
	RelType  string
	Identity map[string]any
	Props    map[string]any
	OnCreate map[string]any
	Match    map[string]any
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func mustIdent(kind, s string) string {
	if !identRe.MatchString(s) {
		panic(fmt.Sprintf("graphdb: invalid %s %q", kind, s))
	}
	return s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		mustIdent("property", k)
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// MergeNode upserts a node identified by ref.
func MergeNode(ref NodeRef, props, onCreate map[string]any) Statement {
	label := mustIdent("label", ref.Label)
	key := mustIdent("property", ref.KeyProp)
	q := fmt.Sprintf(
		"MERGE (n:%s {%s: $key}) ON CREATE SET n += $on_create SET n += $props",
		label, key,
	)
	return Statement{
		Query: q,
		Params: map[string]any{
			"key":       ref.Key,
			"props":     orEmpty(props),
			"on_create": orEmpty(onCreate),
		},
		Spec: &Spec{Kind: SpecMergeNode, From: ref, Props: props, OnCreate: onCreate},
	}
}

// UpdateNode sets props on an existing node and never creates one.
func UpdateNode(ref NodeRef, props map[string]any) Statement {
	q := fmt.Sprintf("MATCH (n:%s {%s: $key}) SET n += $props",
		mustIdent("label", ref.Label), mustIdent("property", ref.KeyProp))
	return Statement{
		Query:  q,
		Params: map[string]any{"key": ref.Key, "props": orEmpty(props)},
		Spec:   &Spec{Kind: SpecUpdateNode, From: ref, Props: props},
	}
}

// MergeRelationship upserts a (from)-[:relType]->(to) relationship. Both
// endpoints must already exist; otherwise nothing is written.
func MergeRelationship(from NodeRef, relType string, to NodeRef, identity, props, onCreate map[string]any) Statement {
	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (a:%s {%s: $from}) MATCH (b:%s {%s: $to}) MERGE (a)-[r:%s",
		mustIdent("label", from.Label), mustIdent("property", from.KeyProp),
		mustIdent("label", to.Label), mustIdent("property", to.KeyProp),
		mustIdent("relationship type", relType),
	)
	params := map[string]any{
		"from":      from.Key,
		"to":        to.Key,
		"props":     orEmpty(props),
		"on_create": orEmpty(onCreate),
	}
	if keys := sortedKeys(identity); len(keys) > 0 {
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: $id_%s", k, k)
			params["id_"+k] = identity[k]
		}
		b.WriteString(" {" + strings.Join(parts, ", ") + "}")
	}
	b.WriteString("]->(b) ON CREATE SET r += $on_create SET r += $props")
	return Statement{
		Query:  b.String(),
		Params: params,
		Spec: &Spec{
			Kind: SpecMergeRelationship, From: from, To: to, RelType: relType,
			Identity: identity, Props: props, OnCreate: onCreate,
		},
	}
}

func whereClause(alias string, match map[string]any, params map[string]any) string {
	keys := sortedKeys(match)
	if len(keys) == 0 {
		return ""
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s.%s = $m_%s", alias, k, k)
		params["m_"+k] = match[k]
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

// DeleteNodes detach-deletes every node with label whose properties equal match.
func DeleteNodes(label string, match map[string]any) Statement {
	params := map[string]any{}
	q := fmt.Sprintf("MATCH (n:%s)%s DETACH DELETE n", mustIdent("label", label), whereClause("n", match, params))
	return Statement{
		Query:  q,
		Params: params,
		Spec:   &Spec{Kind: SpecDeleteNodes, From: NodeRef{Label: label}, Match: match},
	}
}

// DeleteRelationships removes relType relationships whose properties equal
// match. A non-empty from.Label anchors the delete to outgoing edges of that
// node.
func DeleteRelationships(from NodeRef, relType string, match map[string]any) Statement {
	params := map[string]any{}
	var pattern string
	if from.Label != "" {
		pattern = fmt.Sprintf("(a:%s {%s: $from})-[r:%s]->()",
			mustIdent("label", from.Label), mustIdent("property", from.KeyProp), mustIdent("relationship type", relType))
		params["from"] = from.Key
	} else {
		pattern = fmt.Sprintf("()-[r:%s]->()", mustIdent("relationship type", relType))
	}
	q := fmt.Sprintf("MATCH %s%s DELETE r", pattern, whereClause("r", match, params))
	return Statement{
		Query:  q,
		Params: params,
		Spec:   &Spec{Kind: SpecDeleteRelationships, From: from, RelType: relType, Match: match},
	}
}

// Raw wraps an arbitrary query.
func Raw(query string, params map[string]any) Statement {
	return Statement{Query: query, Params: params, Spec: &Spec{Kind: SpecRaw}}
}
