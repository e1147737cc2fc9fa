package workload

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsim/flowsim/internal/topology"
)

func TestNew_RankAndGroupCounts(t *testing.T) {
	w, err := New(Params{PP: 2, DP: 2, TP: 2, Microbatches: 2})
	require.NoError(t, err)

	assert.Len(t, w.Ranks, 8) // PP*DP*TP

	tpGroups, dpGroups, ppGroups := 0, 0, 0
	for _, g := range w.Groups {
		switch g.Kind {
		case TP:
			tpGroups++
		case DP:
			dpGroups++
		case PP:
			ppGroups++
		}
	}
	assert.Equal(t, 4, tpGroups) // PP*DP
	assert.Equal(t, 4, dpGroups) // PP*TP
	assert.Equal(t, 8, ppGroups) // (PP-1)*TP*DP pipeline edges, one fwd + one bwd group each
}

func TestPPGroup_HasExactlyTwoMembers(t *testing.T) {
	w, err := New(Params{PP: 3, DP: 1, TP: 1, Microbatches: 3})
	require.NoError(t, err)

	for _, g := range w.Groups {
		if g.Kind == PP {
			assert.Len(t, g.RankIDs, 2)
			assert.Len(t, g.Connections, 1)
		}
	}
}

func TestTPDPGroup_RingConnections(t *testing.T) {
	w, err := New(Params{PP: 1, DP: 1, TP: 4, Microbatches: 1})
	require.NoError(t, err)

	for _, g := range w.Groups {
		if g.Kind == TP {
			require.Len(t, g.Connections, 4)
			for i, conn := range g.Connections {
				assert.Equal(t, i, conn.SrcRankID)
				assert.Equal(t, (i+1)%4, conn.DstRankID)
			}
		}
	}
}

func TestConfigureParallelism_S1Schedule(t *testing.T) {
	w, err := New(Params{PP: 1, DP: 1, TP: 1, Microbatches: 1})
	require.NoError(t, err)

	assert.Equal(t, -1, w.NextMicrobatch[ScheduleKey{Stage: 0, Microbatch: 1}])
	assert.Len(t, w.NextMicrobatch, 1)
}

func TestConfigureParallelism_TwoStageThreeMicrobatch(t *testing.T) {
	w, err := New(Params{PP: 2, DP: 1, TP: 1, Microbatches: 3})
	require.NoError(t, err)

	// stage 0 runs forward microbatches 1 and 2 (a warm-up of PP-1 forwards
	// plus the first steady-state forward) before its first backward, so
	// forward 1 is followed by forward 2.
	next, ok := w.NextMicrobatch[ScheduleKey{Stage: 0, Microbatch: 1}]
	require.True(t, ok)
	assert.Equal(t, 2, next)
}

func TestPlace_BijectiveWhenHostsMatchRanks(t *testing.T) {
	w, err := New(Params{PP: 1, DP: 1, TP: 4, Microbatches: 1})
	require.NoError(t, err)

	topo := topology.GenerateOneBigSwitch(4, 1.0)
	require.NoError(t, Place(w, topo))

	seen := map[int]bool{}
	for _, r := range w.Ranks {
		assert.False(t, seen[r.HostNode])
		seen[r.HostNode] = true
	}
	assert.Len(t, seen, 4)
}

func TestPlace_RoundRobinWhenFewerHosts(t *testing.T) {
	w, err := New(Params{PP: 1, DP: 1, TP: 4, Microbatches: 1})
	require.NoError(t, err)

	topo := topology.GenerateOneBigSwitch(2, 1.0)
	require.NoError(t, Place(w, topo))

	assert.Equal(t, w.Ranks[0].HostNode, w.Ranks[2].HostNode)
	assert.Equal(t, w.Ranks[1].HostNode, w.Ranks[3].HostNode)
}

func TestRoute_PopulatesPathLinks(t *testing.T) {
	w, err := New(Params{PP: 1, DP: 1, TP: 2, Microbatches: 1})
	require.NoError(t, err)

	topo := topology.GenerateOneBigSwitch(2, 1.0)
	require.NoError(t, Place(w, topo))
	require.NoError(t, Route(w, topo, rand.New(rand.NewSource(7))))

	for _, g := range w.Groups {
		for _, conn := range g.Connections {
			if w.Ranks[conn.SrcRankID].HostNode == w.Ranks[conn.DstRankID].HostNode {
				assert.Empty(t, conn.PathLinks)
			} else {
				assert.NotEmpty(t, conn.PathLinks)
			}
		}
	}
}

func TestNew_RejectsInvalidParams(t *testing.T) {
	_, err := New(Params{PP: 0, DP: 1, TP: 1, Microbatches: 1})
	assert.Error(t, err)

	_, err = New(Params{PP: 2, DP: 1, TP: 1, Microbatches: 1})
	assert.Error(t, err, "microbatches must be >= PP")

	_, err = New(Params{PP: 1, DP: 1, TP: 1, Microbatches: 1, FwdCompTime: -1})
	assert.Error(t, err)
}
