package engine

import (
	"sort"

	apperrors "github.com/flowsim/flowsim/pkg/errors"
	"github.com/flowsim/flowsim/internal/workload"
)

// GroupEvent is the ⟨fromRankId, microbatch⟩ invocation tuple pushed into a
// GroupTask's event queue by a member RankTask.
type GroupEvent struct {
	FromRank   int
	Microbatch int
}

// GroupTask coordinates one communication group: it accumulates invocation
// events into Collectives, linearizes them into a FIFO waiting queue, and
// runs at most one at a time.
type GroupTask struct {
	GroupID          int
	Kind             workload.GroupKind
	ActiveCollective int // -1 means none
	Waiting          []int
	Accumulating     map[int]int // microbatch -> collective id
	Events           []GroupEvent
	SenderIDs        []int
	ReceiverIDs      []int
}

func newGroupTask(g *workload.Group) GroupTask {
	gt := GroupTask{
		GroupID:          g.ID,
		Kind:             g.Kind,
		ActiveCollective: -1,
		Accumulating:     make(map[int]int),
	}
	switch g.Kind {
	case workload.PP:
		gt.SenderIDs = []int{g.RankIDs[0]}
		gt.ReceiverIDs = []int{g.RankIDs[1]}
	default: // TP, DP: every member is both sender and receiver
		ranks := append([]int(nil), g.RankIDs...)
		gt.SenderIDs = ranks
		gt.ReceiverIDs = append([]int(nil), ranks...)
	}
	return gt
}

func (e *Engine) pushGroupEvent(groupID int, ev GroupEvent) {
	e.GroupTasks[groupID].Events = append(e.GroupTasks[groupID].Events, ev)
}

// groupHandleEvents drains every queued invocation event into its
// accumulating Collective (creating one on first sight of a microbatch),
// then promotes any Collective whose accumulation is complete from the
// accumulating map to the tail of the waiting FIFO, in deterministic
// (sorted by microbatch) order.
func (e *Engine) groupHandleEvents(idx int) (int, error) {
	gt := &e.GroupTasks[idx]
	consumed := len(gt.Events)
	if consumed == 0 {
		return 0, nil
	}

	for _, ev := range gt.Events {
		cid, ok := gt.Accumulating[ev.Microbatch]
		if !ok {
			cid = e.newCollective(gt.GroupID, ev.Microbatch)
			gt.Accumulating[ev.Microbatch] = cid
		}
		c := &e.Collectives[cid]
		c.AccumulatedInvocations++
		if c.AccumulatedInvocations > c.AccumulatedSize {
			return consumed, apperrors.Invariant(
				"group %d: collective for microbatch %d accumulated %d invocations, exceeds size %d",
				gt.GroupID, ev.Microbatch, c.AccumulatedInvocations, c.AccumulatedSize,
			)
		}
	}
	gt.Events = nil

	ready := make([]int, 0, len(gt.Accumulating))
	for mb := range gt.Accumulating {
		cid := gt.Accumulating[mb]
		if e.Collectives[cid].AccumulatedInvocations == e.Collectives[cid].AccumulatedSize {
			ready = append(ready, mb)
		}
	}
	sort.Ints(ready)
	for _, mb := range ready {
		gt.Waiting = append(gt.Waiting, gt.Accumulating[mb])
		delete(gt.Accumulating, mb)
	}

	return consumed, nil
}

// groupStableTime returns +Inf with nothing active or waiting, 0 when a
// waiting Collective can be activated immediately, or the active
// Collective's own stableTime otherwise.
func (e *Engine) groupStableTime(idx int) float64 {
	gt := &e.GroupTasks[idx]
	if gt.ActiveCollective < 0 {
		if len(gt.Waiting) == 0 {
			return Inf
		}
		return 0
	}
	return e.collectiveStableTime(gt.ActiveCollective)
}

func (e *Engine) collectiveStableTime(cid int) float64 {
	c := &e.Collectives[cid]
	best := Inf
	for _, fid := range c.FlowIDs {
		f := &e.Flows[fid]
		var t float64
		switch {
		case f.RemainingSize <= Epsilon:
			t = 0
		case f.Throughput <= 0:
			t = Inf
		default:
			t = f.RemainingSize / f.Throughput
		}
		if t < best {
			best = t
		}
	}
	return best
}

// groupProgress activates a waiting Collective if none is running,
// advances the active one by dt, and on completion broadcasts SENT/RECV to
// the group's senders/receivers and pops the next waiting Collective.
func (e *Engine) groupProgress(idx int, dt float64) {
	gt := &e.GroupTasks[idx]
	if gt.ActiveCollective < 0 {
		if len(gt.Waiting) == 0 {
			return
		}
		gt.ActiveCollective = gt.Waiting[0]
		gt.Waiting = gt.Waiting[1:]
	}

	cid := gt.ActiveCollective
	c := &e.Collectives[cid]
	for _, fid := range c.FlowIDs {
		f := &e.Flows[fid]
		f.RemainingSize -= f.Throughput * dt
	}

	if e.Flows[c.FlowIDs[0]].RemainingSize <= Epsilon {
		for _, rid := range gt.SenderIDs {
			e.RankTasks[rid].push(RankEvent{Kind: Sent, Group: gt.Kind, Microbatch: c.Microbatch})
		}
		for _, rid := range gt.ReceiverIDs {
			e.RankTasks[rid].push(RankEvent{Kind: Recv, Group: gt.Kind, Microbatch: c.Microbatch})
		}
		gt.ActiveCollective = -1
		if len(gt.Waiting) > 0 {
			gt.ActiveCollective = gt.Waiting[0]
			gt.Waiting = gt.Waiting[1:]
		}
	}
}

// newCollective constructs a Collective and its Flows for the given group
// and microbatch, per the construction rules: a ring of Flows with the
// 2(N-1)/N all-reduce volume factor for TP/DP groups, a single
// point-to-point Flow for PP groups.
func (e *Engine) newCollective(groupID, microbatch int) int {
	g := &e.WL.Groups[groupID]

	size := 1
	if g.Kind == workload.TP || g.Kind == workload.DP {
		size = len(g.RankIDs)
	}

	col := Collective{
		ID:              len(e.Collectives),
		GroupID:         groupID,
		Microbatch:      microbatch,
		AccumulatedSize: size,
	}

	switch g.Kind {
	case workload.TP:
		base := e.WL.FwdTPSize
		if microbatch < 0 {
			base = e.WL.BwdTPSize
		}
		perFlow := base * ringFactor(len(g.RankIDs))
		for _, conn := range g.Connections {
			col.FlowIDs = append(col.FlowIDs, e.newFlow(col.ID, conn.PathLinks, perFlow))
		}

	case workload.DP:
		perFlow := e.WL.DPSize * ringFactor(len(g.RankIDs))
		for _, conn := range g.Connections {
			col.FlowIDs = append(col.FlowIDs, e.newFlow(col.ID, conn.PathLinks, perFlow))
		}

	case workload.PP:
		base := e.WL.FwdPPSize
		if microbatch < 0 {
			base = e.WL.BwdPPSize
		}
		col.FlowIDs = append(col.FlowIDs, e.newFlow(col.ID, g.Connections[0].PathLinks, base))
	}

	e.Collectives = append(e.Collectives, col)
	return col.ID
}

func (e *Engine) newFlow(collectiveID int, pathLinks []int, size float64) int {
	f := Flow{
		ID:            len(e.Flows),
		CollectiveID:  collectiveID,
		PathLinks:     pathLinks,
		InitialSize:   size,
		RemainingSize: size,
	}
	e.Flows = append(e.Flows, f)
	return f.ID
}

// ringFactor is the per-rank byte-volume multiplier 2(N-1)/N of a ring
// all-reduce across N participants.
func ringFactor(n int) float64 {
	return 2 * float64(n-1) / float64(n)
}
