// Package workload builds the Rank/Group/Connection graph of a 3D-parallel
// training job and the 1F1B pipeline schedule table that drives it. Like
// package topology, this is an external-input adapter: the simulation core
// only consumes the finished Workload value, never this package's
// construction logic.
package workload

import (
	"math/rand"
	"sort"

	apperrors "github.com/flowsim/flowsim/pkg/errors"
	"github.com/flowsim/flowsim/internal/topology"
)

// GroupKind identifies which parallelism dimension a Group coordinates.
type GroupKind int

const (
	TP GroupKind = iota
	DP
	PP
)

func (k GroupKind) String() string {
	switch k {
	case TP:
		return "TP"
	case DP:
		return "DP"
	case PP:
		return "PP"
	default:
		return "UNKNOWN"
	}
}

// Rank is one pipeline-stage replica: a single process participating in
// exactly one TP group, one DP group, and zero or one forward/backward PP
// group (stage boundaries have none).
type Rank struct {
	ID int
	PP, DP, TP int

	HostNode int // topology.Node id this rank is bound to, -1 until placement

	TPGroupID     int
	DPGroupID     int
	PPFwdGroupID  int // -1 if this is the last stage
	PPBwdGroupID  int // -1 if this is the first stage
}

// Connection is one ring/point-to-point edge within a Group: a directed
// src->dst Rank pair plus (after routing) its Node path and derived Link
// path.
type Connection struct {
	SrcRankID, DstRankID int
	Path                 topology.Path
	PathLinks            []int
}

// Group coordinates one collective communication domain: a TP ring, a DP
// ring, or a single PP point-to-point edge.
type Group struct {
	ID          int
	Kind        GroupKind
	RankIDs     []int
	Connections []Connection
}

// ScheduleKey indexes the 1F1B next-microbatch table by (stage, current
// microbatch).
type ScheduleKey struct {
	Stage      int
	Microbatch int
}

// Params is the single configuration record describing a 3D-parallel
// workload, matching the external workload parameters input.
type Params struct {
	PP, DP, TP    int
	Microbatches  int
	FwdCompTime   float64
	BwdCompTime   float64
	FwdTPSize     float64
	BwdTPSize     float64
	FwdPPSize     float64
	BwdPPSize     float64
	DPSize        float64
}

// Workload is the fully-constructed Rank/Group/Connection graph plus the
// 1F1B schedule table, the complete set of external inputs the engine core
// consumes besides the Topology.
type Workload struct {
	Params

	Ranks  []Rank
	Groups []Group

	// NextMicrobatch maps (stage, currentMicrobatch) -> nextMicrobatch.
	// Absence means "no more microbatches for this stage".
	NextMicrobatch map[ScheduleKey]int
}

// New constructs the Rank and Group graph (including Connection src/dst
// pairing) for the given parallelism parameters, then computes the 1F1B
// schedule table. Placement and routing (which need a Topology) are
// performed separately by Place and Route.
func New(p Params) (*Workload, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}

	w := &Workload{Params: p}
	w.buildRanksAndGroups()
	w.configureParallelism()
	return w, nil
}

func validateParams(p Params) error {
	if p.PP <= 0 || p.DP <= 0 || p.TP <= 0 {
		return apperrors.Structural("PP, DP, TP must all be positive (got PP=%d DP=%d TP=%d)", p.PP, p.DP, p.TP)
	}
	if p.Microbatches <= 0 {
		return apperrors.Structural("microbatches must be positive (got %d)", p.Microbatches)
	}
	if p.Microbatches < p.PP {
		return apperrors.Structural("microbatches (%d) must be >= PP (%d)", p.Microbatches, p.PP)
	}
	sizes := []float64{p.FwdCompTime, p.BwdCompTime, p.FwdTPSize, p.BwdTPSize, p.FwdPPSize, p.BwdPPSize, p.DPSize}
	for _, v := range sizes {
		if v < 0 {
			return apperrors.Numeric("workload parameters must be non-negative, got %v", v)
		}
	}
	return nil
}

type rankKey struct{ pp, dp, tp int }

func (w *Workload) buildRanksAndGroups() {
	rankIDs := make(map[rankKey]int, w.PP*w.DP*w.TP)

	rankID := 0
	for i := 0; i < w.PP; i++ {
		for j := 0; j < w.DP; j++ {
			for k := 0; k < w.TP; k++ {
				w.Ranks = append(w.Ranks, Rank{
					ID: rankID, PP: i, DP: j, TP: k,
					HostNode: -1, TPGroupID: -1, DPGroupID: -1, PPFwdGroupID: -1, PPBwdGroupID: -1,
				})
				rankIDs[rankKey{i, j, k}] = rankID
				rankID++
			}
		}
	}

	type tpKey struct{ pp, dp int }
	type dpKey struct{ pp, tp int }
	tpGroups := make(map[tpKey]int, w.PP*w.DP)
	dpGroups := make(map[dpKey]int, w.PP*w.TP)

	groupID := 0
	for i := 0; i < w.PP; i++ {
		for j := 0; j < w.DP; j++ {
			w.Groups = append(w.Groups, Group{ID: groupID, Kind: TP})
			tpGroups[tpKey{i, j}] = groupID
			groupID++
		}
	}
	for i := 0; i < w.PP; i++ {
		for k := 0; k < w.TP; k++ {
			w.Groups = append(w.Groups, Group{ID: groupID, Kind: DP})
			dpGroups[dpKey{i, k}] = groupID
			groupID++
		}
	}

	for idx := range w.Ranks {
		r := &w.Ranks[idx]
		tgid := tpGroups[tpKey{r.PP, r.DP}]
		r.TPGroupID = tgid
		w.Groups[tgid].RankIDs = append(w.Groups[tgid].RankIDs, r.ID)

		dgid := dpGroups[dpKey{r.PP, r.TP}]
		r.DPGroupID = dgid
		w.Groups[dgid].RankIDs = append(w.Groups[dgid].RankIDs, r.ID)
	}

	for j := 0; j < w.DP; j++ {
		for i := 0; i < w.TP; i++ {
			for k := 0; k < w.PP-1; k++ {
				fwdID := groupID
				w.Groups = append(w.Groups, Group{ID: fwdID, Kind: PP})
				groupID++
				bwdID := groupID
				w.Groups = append(w.Groups, Group{ID: bwdID, Kind: PP})
				groupID++

				r1 := rankIDs[rankKey{k, j, i}]
				r2 := rankIDs[rankKey{k + 1, j, i}]

				w.Groups[fwdID].RankIDs = []int{r1, r2}
				w.Groups[bwdID].RankIDs = []int{r2, r1}

				w.Ranks[r1].PPFwdGroupID = fwdID
				w.Ranks[r2].PPBwdGroupID = bwdID
			}
		}
	}

	for i := range w.Groups {
		w.createConnections(i)
	}
}

// createConnections populates a Group's ring (TP/DP) or single point-to-point
// (PP) Connection list from its member RankIDs.
func (w *Workload) createConnections(groupIdx int) {
	g := &w.Groups[groupIdx]
	switch g.Kind {
	case TP, DP:
		ranks := append([]int(nil), g.RankIDs...)
		sort.Ints(ranks)
		n := len(ranks)
		for i := 0; i < n; i++ {
			g.Connections = append(g.Connections, Connection{
				SrcRankID: ranks[i],
				DstRankID: ranks[(i+1)%n],
			})
		}
	case PP:
		g.Connections = append(g.Connections, Connection{
			SrcRankID: g.RankIDs[0],
			DstRankID: g.RankIDs[1],
		})
	}
}

// configureParallelism computes the 1F1B schedule table by filling a
// stages x 2*(microbatches+stages-1) grid: backward diagonals first (each
// microbatch mb's full backward diagonal, anchored at the bottom-right),
// then forward diagonals for microbatches beyond the warm-up window, then
// the remaining forward warm-up cells scanned left-to-right per row. Once
// the grid is filled, each row's consecutive non-zero entries define a
// from->to microbatch transition for that stage.
func (w *Workload) configureParallelism() {
	stages := w.PP
	mbs := w.Microbatches
	width := 2 * (mbs + stages - 1)

	grid := make([][]int, stages)
	for i := range grid {
		grid[i] = make([]int, width)
	}

	for mb := 1; mb <= mbs; mb++ {
		row := stages - 1
		col := stages + 2*(mb-1)
		for i := 0; i < stages; i++ {
			grid[row-i][col+i] = -mb
		}
	}

	for mb := stages + 1; mb <= mbs; mb++ {
		row := 0
		col := stages*2 + 2*(mb-stages-1)
		for i := 0; i < stages; i++ {
			grid[row+i][col+i] = mb
		}
	}

	for row := 0; row < stages; row++ {
		col := row
		mb := 1
		limit := stages
		if mbs < limit {
			limit = mbs
		}
		for mb <= limit {
			if grid[row][col] == 0 {
				grid[row][col] = mb
				col++
				mb++
			} else {
				col++
			}
		}
	}

	w.NextMicrobatch = make(map[ScheduleKey]int)
	for s := 0; s < stages; s++ {
		for i := s; i < width; i++ {
			j := i + 1
			for ; j < width; j++ {
				if grid[s][j] != 0 {
					break
				}
			}
			if j >= width {
				break
			}
			from := grid[s][i]
			to := grid[s][j]
			w.NextMicrobatch[ScheduleKey{Stage: s, Microbatch: from}] = to
			i = j - 1
		}
	}
}

// Place binds every Rank to a host Node: bijective when the topology has
// exactly as many HOST nodes as ranks, otherwise round-robin by rank id
// modulo the host count (ranks sorted by id, hosts sorted by id).
func Place(w *Workload, topo *topology.Topology) error {
	var hosts []int
	for _, n := range topo.Nodes {
		if n.Kind == topology.Host {
			hosts = append(hosts, n.ID)
		}
	}
	if len(hosts) == 0 {
		return apperrors.Structural("topology has no HOST nodes to place ranks on")
	}
	sort.Ints(hosts)

	for i := range w.Ranks {
		hostID := hosts[w.Ranks[i].ID%len(hosts)]
		w.Ranks[i].HostNode = hostID
		topo.Nodes[hostID].RankID = w.Ranks[i].ID
	}
	return nil
}

// Route resolves every Connection's Node path (via ECMP, seeded by rng) and
// derived Link path, by host.
func Route(w *Workload, topo *topology.Topology, rng *rand.Rand) error {
	for gi := range w.Groups {
		conns := w.Groups[gi].Connections
		for ci := range conns {
			src := w.Ranks[conns[ci].SrcRankID].HostNode
			dst := w.Ranks[conns[ci].DstRankID].HostNode
			path, err := topology.ECMP(rng, topo, src, dst)
			if err != nil {
				return err
			}
			links, err := topo.PathLinks(path)
			if err != nil {
				return err
			}
			conns[ci].Path = path
			conns[ci].PathLinks = links
		}
	}
	return nil
}
