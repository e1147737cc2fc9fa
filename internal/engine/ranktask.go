package engine

import (
	apperrors "github.com/flowsim/flowsim/pkg/errors"
	"github.com/flowsim/flowsim/internal/workload"
)

// RankEvent is the ⟨endpoint, groupKind, microbatch⟩ tuple a RankTask's
// event queue carries. Microbatch is positive for forward, negative for
// backward, zero for the DP all-reduce.
type RankEvent struct {
	Kind       EventKind
	Group      workload.GroupKind
	Microbatch int
}

// RankTask drives one pipeline-stage replica through the 1F1B schedule.
type RankTask struct {
	RankID        int
	State         RankState
	Microbatch    int
	RemainingTime float64
	Events        []RankEvent
}

func newRankTask(rankID int) RankTask {
	return RankTask{RankID: rankID, State: PPWait, Microbatch: 1}
}

// rankHandleEvents scans a RankTask's event queue once, consuming every
// event that matches the task's current (possibly just-updated) state and
// retaining the rest in order. It returns the number of events consumed.
func (e *Engine) rankHandleEvents(idx int) (int, error) {
	rt := &e.RankTasks[idx]
	if len(rt.Events) == 0 {
		return 0, nil
	}

	kept := rt.Events[:0:0]
	consumed := 0
	for _, ev := range rt.Events {
		ok, err := e.rankTryConsume(idx, ev)
		if err != nil {
			return consumed, err
		}
		if ok {
			consumed++
		} else {
			kept = append(kept, ev)
		}
	}
	rt.Events = kept
	return consumed, nil
}

// rankTryConsume applies the single state transition triggered by ev, if
// ev's kind/group/microbatch match what the task's current state is
// waiting for. It implements the transition table of the RankTask state
// machine, including the side effects that push events into neighboring
// GroupTasks.
func (e *Engine) rankTryConsume(idx int, ev RankEvent) (bool, error) {
	rt := &e.RankTasks[idx]
	rank := &e.WL.Ranks[rt.RankID]

	switch rt.State {
	case PPWait:
		if ev.Kind == Recv && ev.Group == workload.PP && ev.Microbatch == rt.Microbatch {
			rt.State = Compute
			if rt.Microbatch > 0 {
				rt.RemainingTime = e.WL.FwdCompTime
			} else {
				rt.RemainingTime = e.WL.BwdCompTime
			}
			return true, nil
		}

	case TPComm:
		if ev.Kind != Recv || ev.Group != workload.TP {
			return false, nil
		}
		if ev.Microbatch != rt.Microbatch {
			return false, apperrors.Invariant(
				"rank %d: TP completion for microbatch %d does not match outstanding microbatch %d",
				rt.RankID, ev.Microbatch, rt.Microbatch,
			)
		}

		mb := rt.Microbatch
		if mb > 0 {
			if rank.PPFwdGroupID >= 0 {
				e.pushGroupEvent(rank.PPFwdGroupID, GroupEvent{FromRank: rt.RankID, Microbatch: mb})
			}
		} else {
			if rank.PPBwdGroupID >= 0 {
				e.pushGroupEvent(rank.PPBwdGroupID, GroupEvent{FromRank: rt.RankID, Microbatch: mb})
			}
		}

		if next, ok := e.WL.NextMicrobatch[workload.ScheduleKey{Stage: rank.PP, Microbatch: mb}]; ok {
			rt.Microbatch = next
			rt.State = PPWait
		} else {
			rt.State = DPWait
		}
		return true, nil

	case DPWait:
		if ev.Kind == Sent && ev.Group == workload.PP && ev.Microbatch == -e.WL.Microbatches {
			rt.State = DPComm
			e.pushGroupEvent(rank.DPGroupID, GroupEvent{FromRank: rt.RankID, Microbatch: 0})
			return true, nil
		}

	case DPComm:
		if ev.Kind == Recv && ev.Group == workload.DP && ev.Microbatch == 0 {
			rt.State = Done
			return true, nil
		}
	}
	return false, nil
}

// rankStableTime returns the remaining compute duration if the task is
// COMPUTE, else +Inf.
func (e *Engine) rankStableTime(idx int) float64 {
	rt := &e.RankTasks[idx]
	if rt.State == Compute {
		return rt.RemainingTime
	}
	return Inf
}

// rankProgress advances a COMPUTE task's remaining time by dt; once it
// reaches zero, the task transitions to TP_COMM and invokes its TP group.
func (e *Engine) rankProgress(idx int, dt float64) {
	rt := &e.RankTasks[idx]
	if rt.State != Compute {
		return
	}
	rt.RemainingTime -= dt
	if rt.RemainingTime <= Epsilon {
		rt.RemainingTime = 0
		rt.State = TPComm
		rank := &e.WL.Ranks[rt.RankID]
		e.pushGroupEvent(rank.TPGroupID, GroupEvent{FromRank: rt.RankID, Microbatch: rt.Microbatch})
	}
}

func (rt *RankTask) push(ev RankEvent) {
	rt.Events = append(rt.Events, ev)
}
