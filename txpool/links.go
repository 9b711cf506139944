package txpool

import "github.com/nervosnetwork/ckb-sub009/types"

// links maintains, for each pooled transaction, the set of other pooled
// transactions it directly spends from (parents) and that directly spend
// from it (children), keyed by ProposalShortId per spec.md §4.6. Ancestor
// and descendant sets are derived from this graph by BFS on demand rather
// than kept incrementally, matching spec.md's own description of how
// they're computed.
type links struct {
	parents  map[types.ProposalShortId]map[types.ProposalShortId]struct{}
	children map[types.ProposalShortId]map[types.ProposalShortId]struct{}
}

func newLinks() *links {
	return &links{
		parents:  make(map[types.ProposalShortId]map[types.ProposalShortId]struct{}),
		children: make(map[types.ProposalShortId]map[types.ProposalShortId]struct{}),
	}
}

func (l *links) add(id types.ProposalShortId, parentIDs []types.ProposalShortId) {
	if _, ok := l.parents[id]; !ok {
		l.parents[id] = make(map[types.ProposalShortId]struct{})
	}
	if _, ok := l.children[id]; !ok {
		l.children[id] = make(map[types.ProposalShortId]struct{})
	}
	for _, p := range parentIDs {
		l.parents[id][p] = struct{}{}
		if _, ok := l.children[p]; !ok {
			l.children[p] = make(map[types.ProposalShortId]struct{})
		}
		l.children[p][id] = struct{}{}
	}
}

func (l *links) remove(id types.ProposalShortId) {
	for p := range l.parents[id] {
		delete(l.children[p], id)
	}
	delete(l.parents, id)
	for c := range l.children[id] {
		delete(l.parents[c], id)
	}
	delete(l.children, id)
}

// ancestors returns every id reachable by following parent edges from id,
// not including id itself.
func (l *links) ancestors(id types.ProposalShortId) map[types.ProposalShortId]struct{} {
	out := make(map[types.ProposalShortId]struct{})
	queue := make([]types.ProposalShortId, 0, len(l.parents[id]))
	for p := range l.parents[id] {
		queue = append(queue, p)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, seen := out[cur]; seen {
			continue
		}
		out[cur] = struct{}{}
		for p := range l.parents[cur] {
			queue = append(queue, p)
		}
	}
	return out
}

// descendants returns every id reachable by following child edges from id,
// not including id itself.
func (l *links) descendants(id types.ProposalShortId) map[types.ProposalShortId]struct{} {
	out := make(map[types.ProposalShortId]struct{})
	queue := make([]types.ProposalShortId, 0, len(l.children[id]))
	for c := range l.children[id] {
		queue = append(queue, c)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, seen := out[cur]; seen {
			continue
		}
		out[cur] = struct{}{}
		for c := range l.children[cur] {
			queue = append(queue, c)
		}
	}
	return out
}
