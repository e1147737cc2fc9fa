// Package topology holds the datacenter network graph the simulation core
// runs over: nodes, capacity-carrying links, and the generators/ECMP picker
// that produce them. The core never imports this package's generators — it
// only consumes the finished Topology value.
package topology

import (
	"math"
	"math/rand"

	apperrors "github.com/flowsim/flowsim/pkg/errors"
)

// NodeKind classifies a Node's position in the network.
type NodeKind int

const (
	Host NodeKind = iota
	TOR
	Agg
	Core
)

func (k NodeKind) String() string {
	switch k {
	case Host:
		return "HOST"
	case TOR:
		return "TOR"
	case Agg:
		return "AGG"
	case Core:
		return "CORE"
	default:
		return "UNKNOWN"
	}
}

// Node is one vertex of the network graph. Links holds the ids of the Node's
// outgoing Links. RankID is the id of the Rank bound to this Node, or -1 if
// none (only HOST nodes are ever bound).
type Node struct {
	ID     int
	Kind   NodeKind
	Links  []int
	RankID int
}

// Link is one directed, capacity-bounded edge of the network graph.
// Capacity is in bytes/sec. The simulation engine only reads Capacity; the
// per-round Throughput and flow set are owned by the allocator.
type Link struct {
	ID       int
	Src, Dst int
	Capacity float64
}

// Topology is the immutable (during simulation) network graph: an arena of
// Nodes and an arena of Links, each indexed by its own id.
type Topology struct {
	Nodes []Node
	Links []Link
}

// NewTopology builds an empty topology ready to accept AddNode/AddLink calls.
func NewTopology() *Topology {
	return &Topology{}
}

// AddNode appends a new Node and returns its id.
func (t *Topology) AddNode(kind NodeKind) int {
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{ID: id, Kind: kind, RankID: -1})
	return id
}

// AddLink appends a new directed Link src->dst with the given capacity and
// returns its id. The link is registered in src's outgoing link list.
func (t *Topology) AddLink(src, dst int, capacity float64) int {
	id := len(t.Links)
	t.Links = append(t.Links, Link{ID: id, Src: src, Dst: dst, Capacity: capacity})
	t.Nodes[src].Links = append(t.Nodes[src].Links, id)
	return id
}

// AddBidirectionalLink adds two opposing directed links of equal capacity
// and returns their ids (a->b, b->a); this is the common case for physical
// network cabling.
func (t *Topology) AddBidirectionalLink(a, b int, capacity float64) (int, int) {
	return t.AddLink(a, b, capacity), t.AddLink(b, a, capacity)
}

// Validate checks the structural invariants Engine construction depends on:
// every Link's endpoints must reference Nodes that exist, and capacities
// must be finite and non-negative.
func (t *Topology) Validate() error {
	n := len(t.Nodes)
	for _, l := range t.Links {
		if l.Src < 0 || l.Src >= n || l.Dst < 0 || l.Dst >= n {
			return apperrors.Structural("link %d references unknown node (src=%d dst=%d, %d nodes)", l.ID, l.Src, l.Dst, n)
		}
		if l.Capacity < 0 || math.IsNaN(l.Capacity) || math.IsInf(l.Capacity, 0) {
			return apperrors.Numeric("link %d has negative or non-finite capacity %v", l.ID, l.Capacity)
		}
	}
	return nil
}

// LinkBetween returns the id of the outgoing link of src whose destination
// is dst, or -1 if none exists.
func (t *Topology) LinkBetween(src, dst int) int {
	for _, lid := range t.Nodes[src].Links {
		if t.Links[lid].Dst == dst {
			return lid
		}
	}
	return -1
}

// Path is an ordered sequence of Node ids from src to dst, inclusive.
type Path []int

// ECMP enumerates every simple path from src to dst via depth-first search
// and returns one chosen uniformly at random from rng. It mirrors the
// reference topology generator's routing behavior of considering all simple
// paths, not only shortest ones, so that topologies admitting more than one
// physical route actually exercise ECMP's seeded nondeterminism.
func ECMP(rng *rand.Rand, t *Topology, src, dst int) (Path, error) {
	var paths []Path
	visited := make([]bool, len(t.Nodes))
	var cur Path

	var dfs func(node int)
	dfs = func(node int) {
		visited[node] = true
		cur = append(cur, node)
		if node == dst {
			p := make(Path, len(cur))
			copy(p, cur)
			paths = append(paths, p)
		} else {
			for _, lid := range t.Nodes[node].Links {
				next := t.Links[lid].Dst
				if !visited[next] {
					dfs(next)
				}
			}
		}
		cur = cur[:len(cur)-1]
		visited[node] = false
	}
	dfs(src)

	if len(paths) == 0 {
		return nil, apperrors.Structural("no path from node %d to node %d", src, dst)
	}
	return paths[rng.Intn(len(paths))], nil
}

// PathLinks derives the ordered Link path corresponding to a Node Path: for
// each consecutive pair, the outgoing link of the first whose destination is
// the second. A path of length < 2 (a self-path, e.g. a size-1 TP/DP ring
// whose two endpoints are the same host) has no links at all and yields an
// empty slice rather than an error — the resulting flow is a zero-hop flow
// that saturates no link.
func (t *Topology) PathLinks(path Path) ([]int, error) {
	if len(path) < 2 {
		return []int{}, nil
	}
	links := make([]int, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		lid := t.LinkBetween(path[i], path[i+1])
		if lid < 0 {
			return nil, apperrors.Structural("no link from node %d to node %d in path", path[i], path[i+1])
		}
		links = append(links, lid)
	}
	return links, nil
}
