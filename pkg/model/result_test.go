package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSimulationResult(t *testing.T) {
	res := NewSimulationResult("uuid-123", 8.0, 12)

	assert.Equal(t, "uuid-123", res.RequestUUID)
	assert.Equal(t, 8.0, res.GlobalTime)
	assert.Equal(t, 12, res.Rounds)
	assert.False(t, res.Detailed)
	assert.False(t, res.Failed())
}

func TestSimulationResult_Failed(t *testing.T) {
	res := NewSimulationResult("uuid-123", 0, 0)
	res.Error = "deadlock: ranks not done: [2]"

	assert.True(t, res.Failed())
}

func TestSimulationResult_DetailedFields(t *testing.T) {
	res := NewSimulationResult("uuid-456", 6.0, 4)
	res.Detailed = true
	res.RankTimes = []RankCompletion{{RankID: 0, Time: 6.0}, {RankID: 1, Time: 6.0}}
	res.LinkPeaks = []LinkUtilization{{LinkID: 0, PeakUtilization: 1.0}}
	res.Trace = []RoundTrace{{Round: 0, DeltaTime: 1.0, GlobalTime: 1.0}}

	assert.Len(t, res.RankTimes, 2)
	assert.Len(t, res.LinkPeaks, 1)
	assert.Len(t, res.Trace, 1)
}
