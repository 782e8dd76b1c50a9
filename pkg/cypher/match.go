package cypher

import (
	"fmt"

	"github.com/ooddaa/mango-sub002/pkg/criteria"
	"github.com/ooddaa/mango-sub002/pkg/graph"
)

// MatchNodes finds current nodes of a label set. A hashed node is matched on
// its hash; otherwise every given non-private property must be equal.
// Records carry `n`.
func MatchNodes(n *graph.Node) Statement {
	if hash := n.Hash(); hash != "" {
		return Statement{
			Name:   NameMatchNodes,
			Cypher: fmt.Sprintf("MATCH (n%s) WHERE n._hash = $hash AND %s RETURN n", labelExpr(n.Labels), current("n")),
			Params: map[string]any{"hash": hash},
		}
	}

	props := map[string]any{}
	for k, v := range n.Properties {
		if !graph.IsPrivate(k) {
			props[k] = v
		}
	}
	return Statement{
		Name: NameMatchNodes,
		Cypher: fmt.Sprintf(`MATCH (n%s)
WHERE all(k IN keys($props) WHERE n[k] = $props[k]) AND %s
RETURN n`, labelExpr(n.Labels), current("n")),
		Params: map[string]any{"props": props},
	}
}

// MatchNodeByID finds a node by element id. Records carry `n`.
func MatchNodeByID(id string) Statement {
	return Statement{
		Name:   NameMatchNodeByID,
		Cypher: "MATCH (n) WHERE elementId(n) = $id RETURN n",
		Params: map[string]any{"id": id},
	}
}

// MatchRelationships finds relationships of a type. A hashed relationship is
// matched on its hash; otherwise on its endpoint hashes and given
// non-private properties. Records carry `s`, `r` and `e`.
func MatchRelationships(r *graph.Relationship) Statement {
	relType := "`" + SanitizeLabel(r.Label) + "`"
	if hash := r.Hash(); hash != "" {
		return Statement{
			Name:   NameMatchRelationships,
			Cypher: fmt.Sprintf("MATCH (s)-[r:%s]->(e) WHERE r._hash = $hash RETURN s, r, e", relType),
			Params: map[string]any{"hash": hash},
		}
	}

	props := map[string]any{}
	for k, v := range r.Properties {
		if !graph.IsPrivate(k) {
			props[k] = v
		}
	}
	params := map[string]any{"props": props}
	where := "all(k IN keys($props) WHERE r[k] = $props[k])"
	if h := r.StartHash(); h != "" {
		where += " AND s._hash = $start"
		params["start"] = h
	}
	if h := r.EndHash(); h != "" {
		where += " AND e._hash = $end"
		params["end"] = h
	}
	return Statement{
		Name:   NameMatchRelationships,
		Cypher: fmt.Sprintf("MATCH (s)-[r:%s]->(e)\nWHERE %s\nRETURN s, r, e", relType, where),
		Params: params,
	}
}

// MatchRelationshipByID finds a relationship by element id. Records carry
// `s`, `r` and `e`.
func MatchRelationshipByID(id string) Statement {
	return Statement{
		Name:   NameMatchRelByID,
		Cypher: "MATCH (s)-[r]->(e) WHERE elementId(r) = $id RETURN s, r, e",
		Params: map[string]any{"id": id},
	}
}

// MatchPartialNodes compiles a partial node into a match. Records carry `n`.
func MatchPartialNodes(p criteria.PartialNode) (Statement, error) {
	params := criteria.NewParams("c")
	where, err := criteria.Compile(p, "n", params)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		Name:   NameMatchPartialNodes,
		Cypher: fmt.Sprintf("MATCH (n%s)\nWHERE %s\nRETURN n", labelExpr(p.Labels), where),
		Params: params.Values(),
	}, nil
}

// Neighbourhood returns the root node and every relationship on a path of
// at most hops steps from it. The root is located by element id when known,
// otherwise by hash. The first record column `root` repeats on every row;
// relationship columns `s`, `r` and `e` are null when the root is isolated.
func Neighbourhood(n *graph.Node, hops int) Statement {
	if hops < 1 {
		hops = 1
	}
	where, params := locate("root", n)
	query := fmt.Sprintf(`MATCH (root) WHERE %s
OPTIONAL MATCH p = (root)-[*1..%d]-()
WITH root, [x IN collect(p) | relationships(x)] AS paths
WITH root, reduce(acc = [], rs IN paths | acc + rs) AS rels
UNWIND (CASE WHEN size(rels) = 0 THEN [null] ELSE rels END) AS r
WITH DISTINCT root, r
RETURN root, startNode(r) AS s, r, endNode(r) AS e`, where, hops)
	return Statement{Name: NameNeighbourhood, Cypher: query, Params: params}
}

// locate renders a WHERE predicate finding n by element id, or the current
// node carrying its hash.
func locate(variable string, n *graph.Node) (string, map[string]any) {
	if n.Identity != "" {
		return fmt.Sprintf("elementId(%s) = $id", variable), map[string]any{"id": n.Identity}
	}
	return fmt.Sprintf("%s._hash = $hash AND %s", variable, current(variable)), map[string]any{"hash": n.Hash()}
}

// current is true for nodes that have not been superseded by an update.
// Nodes written before versioning carry no flag and count as current.
func current(variable string) string {
	return fmt.Sprintf("coalesce(%s.%s, true) = true", variable, graph.KeyIsCurrent)
}
