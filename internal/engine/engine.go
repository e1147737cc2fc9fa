package engine

import (
	"sort"

	"github.com/flowsim/flowsim/internal/topology"
	"github.com/flowsim/flowsim/internal/workload"
	apperrors "github.com/flowsim/flowsim/pkg/errors"
	"github.com/flowsim/flowsim/pkg/utils"
)

// Engine is the top-level simulation driver: the context record threaded
// through every task operation, owning every arena (RankTasks, GroupTasks,
// Collectives, Flows) for the lifetime of one run.
type Engine struct {
	Topo *topology.Topology
	WL   *workload.Workload

	RankTasks   []RankTask
	GroupTasks  []GroupTask
	Collectives []Collective
	Flows       []Flow

	Logger utils.Logger

	// GlobalTime accumulates completed rounds' dt; valid after Run returns.
	GlobalTime float64
	Rounds     int

	// Detailed, when set before Run, makes the engine record a per-round
	// Trace and per-link peak utilization in addition to the scalar
	// GlobalTime. Left false it costs nothing beyond the flag check.
	Detailed bool
	Trace    []RoundSample
	linkPeak map[int]float64
}

// RoundSample records one round of the event loop: its duration and the
// cumulative GlobalTime after it was applied. Only populated when Detailed.
type RoundSample struct {
	Round      int
	DeltaTime  float64
	GlobalTime float64
}

// LinkPeak records a link's peak fraction of capacity ever allocated to
// flows across the run. Only populated when Detailed.
type LinkPeak struct {
	LinkID          int
	PeakUtilization float64
}

// LinkPeaks returns the recorded per-link peak utilizations sorted by link
// id. Empty unless Detailed was set before Run.
func (e *Engine) LinkPeaks() []LinkPeak {
	if len(e.linkPeak) == 0 {
		return nil
	}
	ids := make([]int, 0, len(e.linkPeak))
	for lid := range e.linkPeak {
		ids = append(ids, lid)
	}
	sort.Ints(ids)
	peaks := make([]LinkPeak, len(ids))
	for i, lid := range ids {
		peaks[i] = LinkPeak{LinkID: lid, PeakUtilization: e.linkPeak[lid]}
	}
	return peaks
}

// New builds an Engine bound to the given Topology and Workload and seeds
// every RankTask's bootstrapping events, per the bootstrapping rules: every
// rank starts in PP_WAIT at microbatch 1; stage-0 ranks are pre-seeded with
// their full forward RECV sequence (no upstream to send it); last-stage
// ranks are pre-seeded with their full backward RECV sequence plus a
// synthesized final SENT (they never transmit their own last backward).
func New(topo *topology.Topology, wl *workload.Workload) (*Engine, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{Topo: topo, WL: wl, Logger: &utils.NullLogger{}}

	e.RankTasks = make([]RankTask, len(wl.Ranks))
	for i := range wl.Ranks {
		e.RankTasks[i] = newRankTask(wl.Ranks[i].ID)
	}

	e.GroupTasks = make([]GroupTask, len(wl.Groups))
	for i := range wl.Groups {
		e.GroupTasks[i] = newGroupTask(&wl.Groups[i])
	}

	for i := range wl.Ranks {
		r := &wl.Ranks[i]
		if r.HostNode < 0 {
			return nil, apperrors.Structural("rank %d has not been placed on a host node", r.ID)
		}
		rt := &e.RankTasks[r.ID]

		if r.PP == 0 {
			for mb := 1; mb <= wl.Microbatches; mb++ {
				rt.push(RankEvent{Kind: Recv, Group: workload.PP, Microbatch: mb})
			}
		}
		if r.PP == wl.PP-1 {
			for mb := 1; mb <= wl.Microbatches; mb++ {
				rt.push(RankEvent{Kind: Recv, Group: workload.PP, Microbatch: -mb})
			}
			rt.push(RankEvent{Kind: Sent, Group: workload.PP, Microbatch: -wl.Microbatches})
		}
	}

	return e, nil
}

// Run drives the event-fixed-point / allocate / advance loop to completion
// and returns the accumulated globalTime.
func (e *Engine) Run() (float64, error) {
	for {
		for {
			n := 0
			for ri := range e.RankTasks {
				c, err := e.rankHandleEvents(ri)
				if err != nil {
					return e.GlobalTime, err
				}
				n += c
			}
			for gi := range e.GroupTasks {
				c, err := e.groupHandleEvents(gi)
				if err != nil {
					return e.GlobalTime, err
				}
				n += c
			}
			if n == 0 {
				break
			}
		}

		e.updateStates()
		if e.Detailed {
			e.recordLinkPeaks()
		}

		dt := Inf
		for ri := range e.RankTasks {
			if t := e.rankStableTime(ri); t < dt {
				dt = t
			}
		}
		for gi := range e.GroupTasks {
			if t := e.groupStableTime(gi); t < dt {
				dt = t
			}
		}

		if dt == Inf {
			if !e.allDone() {
				return e.GlobalTime, e.deadlockError()
			}
			break
		}

		for ri := range e.RankTasks {
			e.rankProgress(ri, dt)
		}
		for gi := range e.GroupTasks {
			e.groupProgress(gi, dt)
		}
		e.GlobalTime += dt
		e.Rounds++
		if e.Detailed {
			e.Trace = append(e.Trace, RoundSample{Round: e.Rounds, DeltaTime: dt, GlobalTime: e.GlobalTime})
		}
	}

	return e.GlobalTime, nil
}

// allDone reports whether every RankTask has reached DONE and every
// GroupTask has no active or waiting Collective — the termination
// condition implied by every stableTime being +Inf.
func (e *Engine) allDone() bool {
	for i := range e.RankTasks {
		if e.RankTasks[i].State != Done {
			return false
		}
	}
	for i := range e.GroupTasks {
		if e.GroupTasks[i].ActiveCollective >= 0 || len(e.GroupTasks[i].Waiting) > 0 {
			return false
		}
	}
	return true
}

func (e *Engine) deadlockError() error {
	var stuck []int
	for i := range e.RankTasks {
		if e.RankTasks[i].State != Done {
			stuck = append(stuck, e.RankTasks[i].RankID)
		}
	}
	return apperrors.Deadlock("event fixed point reached with no task progressable; ranks not done: %v", stuck)
}
