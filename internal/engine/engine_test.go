package engine

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsim/flowsim/internal/topology"
	"github.com/flowsim/flowsim/internal/workload"
)

func buildScenario(t *testing.T, numHosts int, capacity float64, params workload.Params) *Engine {
	t.Helper()

	topo := topology.GenerateOneBigSwitch(numHosts, capacity)
	wl, err := workload.New(params)
	require.NoError(t, err)

	require.NoError(t, workload.Place(wl, topo))
	require.NoError(t, workload.Route(wl, topo, rand.New(rand.NewSource(1))))

	e, err := New(topo, wl)
	require.NoError(t, err)
	return e
}

func TestScenario_S1_SingleRankSingleMicrobatch(t *testing.T) {
	e := buildScenario(t, 1, 1.0, workload.Params{
		PP: 1, DP: 1, TP: 1, Microbatches: 1,
		FwdCompTime: 0.1, BwdCompTime: 0.2,
	})

	got, err := e.Run()
	require.NoError(t, err)
	assert.InDelta(t, 0.3, got, 1e-9)

	assert.Equal(t, -1, e.WL.NextMicrobatch[workload.ScheduleKey{Stage: 0, Microbatch: 1}])
}

func TestScenario_S2_TwoStagePipelineOneMicrobatch(t *testing.T) {
	e := buildScenario(t, 2, 100.0, workload.Params{
		PP: 2, DP: 1, TP: 1, Microbatches: 1,
		FwdCompTime: 1.0, BwdCompTime: 1.0,
		FwdPPSize: 100, BwdPPSize: 100,
	})

	got, err := e.Run()
	require.NoError(t, err)
	assert.InDelta(t, 6.0, got, 1e-9)
}

func TestScenario_S3_1F1BWarmupSteadyCooldown(t *testing.T) {
	e := buildScenario(t, 2, 1.0, workload.Params{
		PP: 2, DP: 1, TP: 1, Microbatches: 3,
		FwdCompTime: 1.0, BwdCompTime: 1.0,
	})

	got, err := e.Run()
	require.NoError(t, err)
	assert.InDelta(t, 8.0, got, 1e-9)
}

func TestScenario_S4_TPRingAllReduceBottleneck(t *testing.T) {
	const S = 10.0
	e := buildScenario(t, 4, 1.0, workload.Params{
		PP: 1, DP: 1, TP: 4, Microbatches: 1,
		FwdCompTime: 0, BwdCompTime: 0,
		FwdTPSize: S,
	})

	got, err := e.Run()
	require.NoError(t, err)
	assert.InDelta(t, 1.5*S, got, 1e-6)
}

func TestScenario_S5_DPOnly(t *testing.T) {
	const D, C = 20.0, 4.0
	e := buildScenario(t, 2, C, workload.Params{
		PP: 1, DP: 2, TP: 1, Microbatches: 1,
		DPSize: D,
	})

	got, err := e.Run()
	require.NoError(t, err)
	assert.InDelta(t, D/C, got, 1e-6)
}

func TestScenario_S6_DeterminismAcrossSeeds(t *testing.T) {
	run := func(seed int64) float64 {
		topo := topology.GenerateOneBigSwitch(4, 1.0)
		wl, err := workload.New(workload.Params{PP: 1, DP: 1, TP: 4, Microbatches: 1, FwdTPSize: 10.0})
		require.NoError(t, err)
		require.NoError(t, workload.Place(wl, topo))
		require.NoError(t, workload.Route(wl, topo, rand.New(rand.NewSource(seed))))
		e, err := New(topo, wl)
		require.NoError(t, err)
		got, err := e.Run()
		require.NoError(t, err)
		return got
	}

	a := run(1)
	b := run(2)
	assert.InDelta(t, a, b, 1e-9, "one-big-switch topology admits only one path; globalTime must not depend on seed")

	// Same seed, rerun: must be bit-identical.
	c := run(1)
	assert.Equal(t, a, c)
}

func TestProperty_LinkCapacityNeverExceeded(t *testing.T) {
	e := buildScenario(t, 4, 1.0, workload.Params{
		PP: 1, DP: 1, TP: 4, Microbatches: 1,
		FwdTPSize: 10.0,
	})

	for !e.allDone() {
		n := 1
		for n != 0 {
			n = 0
			for ri := range e.RankTasks {
				c, err := e.rankHandleEvents(ri)
				require.NoError(t, err)
				n += c
			}
			for gi := range e.GroupTasks {
				c, err := e.groupHandleEvents(gi)
				require.NoError(t, err)
				n += c
			}
		}
		e.updateStates()

		for lid, link := range e.Topo.Links {
			var sum float64
			for _, f := range e.Flows {
				for _, pl := range f.PathLinks {
					if pl == lid {
						sum += f.Throughput
						break
					}
				}
			}
			if !math.IsInf(sum, 1) {
				assert.LessOrEqual(t, sum, link.Capacity+Epsilon)
			}
		}

		dt := Inf
		for ri := range e.RankTasks {
			if tt := e.rankStableTime(ri); tt < dt {
				dt = tt
			}
		}
		for gi := range e.GroupTasks {
			if tt := e.groupStableTime(gi); tt < dt {
				dt = tt
			}
		}
		if dt == Inf {
			break
		}
		for ri := range e.RankTasks {
			e.rankProgress(ri, dt)
		}
		for gi := range e.GroupTasks {
			e.groupProgress(gi, dt)
		}
	}
}

func TestProperty_EventIdempotence(t *testing.T) {
	e := buildScenario(t, 1, 1.0, workload.Params{PP: 1, DP: 1, TP: 1, Microbatches: 1, FwdCompTime: 0.1, BwdCompTime: 0.2})

	_, err := e.Run()
	require.NoError(t, err)

	for ri := range e.RankTasks {
		c, err := e.rankHandleEvents(ri)
		require.NoError(t, err)
		assert.Zero(t, c)
	}
	for gi := range e.GroupTasks {
		c, err := e.groupHandleEvents(gi)
		require.NoError(t, err)
		assert.Zero(t, c)
	}
}

func TestDetailed_RecordsTraceAndLinkPeaks(t *testing.T) {
	e := buildScenario(t, 2, 100.0, workload.Params{
		PP: 2, DP: 1, TP: 1, Microbatches: 3,
		FwdCompTime: 1.0, BwdCompTime: 1.0,
		FwdPPSize: 100, BwdPPSize: 100,
	})
	e.Detailed = true

	got, err := e.Run()
	require.NoError(t, err)

	require.NotEmpty(t, e.Trace)
	assert.Equal(t, e.Rounds, len(e.Trace))
	assert.InDelta(t, got, e.Trace[len(e.Trace)-1].GlobalTime, 1e-9)

	peaks := e.LinkPeaks()
	require.NotEmpty(t, peaks)
	for _, p := range peaks {
		assert.GreaterOrEqual(t, p.PeakUtilization, 0.0)
		assert.LessOrEqual(t, p.PeakUtilization, 1.0+1e-9)
	}
}

func TestDetailed_FalseLeavesTraceEmpty(t *testing.T) {
	e := buildScenario(t, 1, 1.0, workload.Params{PP: 1, DP: 1, TP: 1, Microbatches: 1, FwdCompTime: 0.1, BwdCompTime: 0.2})

	_, err := e.Run()
	require.NoError(t, err)

	assert.Empty(t, e.Trace)
	assert.Empty(t, e.LinkPeaks())
}

// TestUpdateStates_SharedLinkDivisorStaysFixedAfterFreeze builds a 3-flow,
// 2-link scenario by hand (A only on link L, B on both L and M, C only on
// M) where L saturates first, group-freezing A and B while M is still
// active. M's divisor must stay the count of flows originally routed
// through it (B and C), not shrink to 1 once B freezes.
func TestUpdateStates_SharedLinkDivisorStaysFixedAfterFreeze(t *testing.T) {
	topo := &topology.Topology{
		Links: []topology.Link{
			{ID: 0, Src: 0, Dst: 1, Capacity: 4},  // L
			{ID: 1, Src: 1, Dst: 2, Capacity: 10}, // M
		},
	}

	e := &Engine{
		Topo: topo,
		Flows: []Flow{
			{ID: 0, CollectiveID: 0, PathLinks: []int{0}},    // A: L only
			{ID: 1, CollectiveID: 1, PathLinks: []int{0, 1}}, // B: L and M
			{ID: 2, CollectiveID: 2, PathLinks: []int{1}},    // C: M only
		},
		Collectives: []Collective{
			{ID: 0, FlowIDs: []int{0}},
			{ID: 1, FlowIDs: []int{1}},
			{ID: 2, FlowIDs: []int{2}},
		},
		GroupTasks: []GroupTask{
			{GroupID: 0, ActiveCollective: 0},
			{GroupID: 1, ActiveCollective: 1},
			{GroupID: 2, ActiveCollective: 2},
		},
	}

	e.updateStates()

	assert.InDelta(t, 2.0, e.Flows[0].Throughput, 1e-9, "A: frozen once L saturates")
	assert.InDelta(t, 2.0, e.Flows[1].Throughput, 1e-9, "B: frozen alongside A once L saturates")
	assert.InDelta(t, 5.0, e.Flows[2].Throughput, 1e-9, "C: M's divisor stays 2 (B, C) even after B freezes")
}

func TestInvariant_MismatchedTPMicrobatchIsAnError(t *testing.T) {
	e := buildScenario(t, 1, 1.0, workload.Params{PP: 1, DP: 1, TP: 1, Microbatches: 1, FwdCompTime: 0.1, BwdCompTime: 0.1})

	e.RankTasks[0].State = TPComm
	e.RankTasks[0].Microbatch = 1
	e.RankTasks[0].Events = append(e.RankTasks[0].Events, RankEvent{Kind: Recv, Group: workload.TP, Microbatch: 2})

	_, err := e.rankHandleEvents(0)
	require.Error(t, err)
}
