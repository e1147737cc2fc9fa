package topology

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOneBigSwitch(t *testing.T) {
	topo := GenerateOneBigSwitch(4, 10.0)
	require.NoError(t, topo.Validate())
	assert.Len(t, topo.Nodes, 5)
	assert.Len(t, topo.Links, 8)
}

func TestECMP_UniquePath(t *testing.T) {
	topo := GenerateOneBigSwitch(3, 10.0)
	rng := rand.New(rand.NewSource(1))

	path, err := ECMP(rng, topo, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, Path{1, 0, 2}, path)
}

func TestECMP_Deterministic(t *testing.T) {
	topo := GenerateFatTree(FatTreeParams{SwitchRadix: 4, Capacity: 1.0})
	require.NoError(t, topo.Validate())

	rng1 := rand.New(rand.NewSource(42))
	rng2 := rand.New(rand.NewSource(42))

	p1, err := ECMP(rng1, topo, 0, len(topo.Nodes)-1)
	require.NoError(t, err)
	p2, err := ECMP(rng2, topo, 0, len(topo.Nodes)-1)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
}

func TestPathLinks(t *testing.T) {
	topo := GenerateOneBigSwitch(2, 10.0)
	path := Path{1, 0, 2}

	links, err := topo.PathLinks(path)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, 1, topo.Links[links[0]].Src)
	assert.Equal(t, 0, topo.Links[links[0]].Dst)
	assert.Equal(t, 0, topo.Links[links[1]].Src)
	assert.Equal(t, 2, topo.Links[links[1]].Dst)
}

func TestPathLinks_SelfPathHasNoLinks(t *testing.T) {
	topo := GenerateOneBigSwitch(2, 10.0)

	links, err := topo.PathLinks(Path{1})
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestValidate_RejectsUnknownNode(t *testing.T) {
	topo := NewTopology()
	topo.AddNode(Host)
	topo.Links = append(topo.Links, Link{ID: 0, Src: 0, Dst: 5, Capacity: 1.0})

	err := topo.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsNegativeCapacity(t *testing.T) {
	topo := NewTopology()
	a := topo.AddNode(Host)
	b := topo.AddNode(Core)
	topo.AddLink(a, b, -1.0)

	err := topo.Validate()
	require.Error(t, err)
}
