package uml

import "sort"

// KindConflict records a carried edge whose endpoint pair also appears in
// the fresh graph with a different kind. Both edges are kept.
type KindConflict struct {
	From      string
	To        string
	Carried   EdgeKind
	FreshKind EdgeKind
}

// MergeWithLastGood combines a fresh parse result with the previously
// accepted graph so files that failed to parse keep their last known
// structure:
//
//  1. start from the fresh nodes and edges;
//  2. carry previous nodes whose path failed and whose id is absent;
//  3. re-add previous edges missing by id when both endpoints are known and
//     at least one endpoint is a carried node;
//  4. add placeholders for failed paths that still have no node;
//  5. mark nodes invalid exactly when their path failed.
//
// srcRoot is used to derive placeholder ids. prev may be nil.
func MergeWithLastGood(prev *Graph, fresh Graph, srcRoot string) (Graph, []KindConflict) {
	merged := fresh.Clone()
	known := merged.dedupeNodes()

	failed := make(map[string]bool, len(fresh.FailedFiles))
	for _, p := range fresh.FailedFiles {
		failed[pathKey(p)] = true
	}

	carried := make(map[string]bool)
	if prev != nil && len(failed) > 0 {
		for _, n := range prev.Nodes {
			if !failed[pathKey(n.Path)] || known[n.ID] {
				continue
			}
			n.Fields = append([]Field(nil), n.Fields...)
			n.Methods = append([]Method(nil), n.Methods...)
			merged.Nodes = append(merged.Nodes, n)
			known[n.ID] = true
			carried[n.ID] = true
		}
	}

	// Fresh edges may name a carried node; they are valid once it is back.
	merged.pruneEdges(known)

	var conflicts []KindConflict
	if len(carried) > 0 {
		edgeIDs := make(map[string]bool, len(merged.Edges))
		freshKinds := make(map[[2]string][]EdgeKind)
		for _, e := range merged.Edges {
			edgeIDs[e.ID] = true
			pair := [2]string{e.From, e.To}
			freshKinds[pair] = append(freshKinds[pair], e.Kind)
		}
		for _, e := range prev.Edges {
			if e.ID == "" {
				e.ID = EdgeID(e.From, e.Kind, e.To)
			}
			if edgeIDs[e.ID] {
				continue
			}
			if !known[e.From] || !known[e.To] {
				continue
			}
			if !carried[e.From] && !carried[e.To] {
				continue
			}
			for _, kind := range freshKinds[[2]string{e.From, e.To}] {
				if kind != e.Kind {
					conflicts = append(conflicts, KindConflict{From: e.From, To: e.To, Carried: e.Kind, FreshKind: kind})
				}
			}
			merged.Edges = append(merged.Edges, e)
			edgeIDs[e.ID] = true
		}
	}

	covered := make(map[string]bool, len(merged.Nodes))
	for _, n := range merged.Nodes {
		covered[pathKey(n.Path)] = true
	}
	var missing []string
	for _, p := range fresh.FailedFiles {
		key := pathKey(p)
		if key == "" || covered[key] {
			continue
		}
		covered[key] = true
		missing = append(missing, p)
	}
	sort.Strings(missing)
	for _, p := range missing {
		node := Placeholder(srcRoot, p)
		if known[node.ID] {
			continue
		}
		known[node.ID] = true
		merged.Nodes = append(merged.Nodes, node)
	}

	for i := range merged.Nodes {
		merged.Nodes[i].IsInvalid = failed[pathKey(merged.Nodes[i].Path)]
	}
	return merged, conflicts
}
