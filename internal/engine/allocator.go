package engine

import (
	"sort"

	"github.com/flowsim/flowsim/pkg/collections"
)

// updateStates runs max-min water filling with group-atomic freezing over
// every Flow belonging to a currently-active Collective, assigning each a
// throughput. Active/frozen membership is tracked with integer-id bitsets
// (arena ids double as bitset indices), per round, mirroring the original
// pointer-set-based algorithm without needing identity-keyed sets.
func (e *Engine) updateStates() {
	activeFlowIDs := e.collectActiveFlows()
	for _, fid := range activeFlowIDs {
		e.Flows[fid].Throughput = 0
	}

	linkFlows := make(map[int][]int)
	linkThroughput := make(map[int]float64)
	for _, fid := range activeFlowIDs {
		for _, lid := range e.Flows[fid].PathLinks {
			linkFlows[lid] = append(linkFlows[lid], fid)
			if _, ok := linkThroughput[lid]; !ok {
				linkThroughput[lid] = 0
			}
		}
	}
	for lid := range linkFlows {
		sort.Ints(linkFlows[lid])
	}

	var activeLinkIDs []int
	for lid := range linkFlows {
		activeLinkIDs = append(activeLinkIDs, lid)
	}
	sort.Ints(activeLinkIDs)

	flowActive := collections.NewBitset(len(e.Flows) + 1)
	for _, fid := range activeFlowIDs {
		flowActive.Set(fid)
	}
	linkActive := collections.NewBitset(len(e.Topo.Links) + 1)
	for _, lid := range activeLinkIDs {
		linkActive.Set(lid)
	}

	for len(activeFlowIDs) > 0 && len(activeLinkIDs) > 0 {
		minAug := Inf
		for _, lid := range activeLinkIDs {
			cnt := len(linkFlows[lid])
			aug := (e.Topo.Links[lid].Capacity - linkThroughput[lid]) / float64(cnt)
			if aug < minAug {
				minAug = aug
			}
		}

		for _, fid := range activeFlowIDs {
			e.Flows[fid].Throughput += minAug
		}
		for _, lid := range activeLinkIDs {
			linkThroughput[lid] += minAug * float64(len(linkFlows[lid]))
		}

		frozenLinks := collections.NewBitset(len(e.Topo.Links) + 1)
		for _, lid := range activeLinkIDs {
			if linkThroughput[lid] >= e.Topo.Links[lid].Capacity-Epsilon {
				frozenLinks.Set(lid)
			}
		}

		frozenFlows := collections.NewBitset(len(e.Flows) + 1)
		for _, lid := range activeLinkIDs {
			if !frozenLinks.Test(lid) {
				continue
			}
			for _, fid := range linkFlows[lid] {
				frozenFlows.Set(fid)
			}
		}
		// group-atomic freezing: freeze every other flow in the same Collective.
		frozenFlows.Iterate(func(fid int) bool {
			cid := e.Flows[fid].CollectiveID
			for _, sibling := range e.Collectives[cid].FlowIDs {
				frozenFlows.Set(sibling)
			}
			return true
		})

		if frozenFlows.Count() == 0 {
			break
		}

		activeFlowIDs = removeSet(activeFlowIDs, frozenFlows)

		var nextLinks []int
		for _, lid := range activeLinkIDs {
			if frozenLinks.Test(lid) {
				continue
			}
			nextLinks = append(nextLinks, lid)
		}
		activeLinkIDs = nextLinks
	}

	// Flows that never touched a saturating link (zero-hop or disjoint
	// paths) receive +Inf throughput, completing instantly next round.
	for _, fid := range activeFlowIDs {
		e.Flows[fid].Throughput = Inf
	}
}

// recordLinkPeaks updates e.linkPeak with the fraction of each link's
// capacity allocated to flows in the round just settled by updateStates.
// Only called when Detailed is set; cheap relative to updateStates itself.
func (e *Engine) recordLinkPeaks() {
	if e.linkPeak == nil {
		e.linkPeak = make(map[int]float64)
	}
	linkThroughput := make(map[int]float64)
	for _, fid := range e.collectActiveFlows() {
		rate := e.Flows[fid].Throughput
		if rate == Inf {
			continue
		}
		for _, lid := range e.Flows[fid].PathLinks {
			linkThroughput[lid] += rate
		}
	}
	for lid, tput := range linkThroughput {
		capacity := e.Topo.Links[lid].Capacity
		if capacity <= 0 {
			continue
		}
		util := tput / capacity
		if util > e.linkPeak[lid] {
			e.linkPeak[lid] = util
		}
	}
}

func removeSet(ids []int, remove *collections.Bitset) []int {
	out := ids[:0:0]
	for _, id := range ids {
		if !remove.Test(id) {
			out = append(out, id)
		}
	}
	return out
}

// collectActiveFlows returns the sorted, deduplicated union of Flow ids
// belonging to every GroupTask's currently-active Collective.
func (e *Engine) collectActiveFlows() []int {
	seen := collections.NewBitset(len(e.Flows) + 1)
	var ids []int
	for i := range e.GroupTasks {
		gt := &e.GroupTasks[i]
		if gt.ActiveCollective < 0 {
			continue
		}
		for _, fid := range e.Collectives[gt.ActiveCollective].FlowIDs {
			if !seen.Test(fid) {
				seen.Set(fid)
				ids = append(ids, fid)
			}
		}
	}
	sort.Ints(ids)
	return ids
}
