package model

import "testing"

import "github.com/stretchr/testify/assert"

func TestTopologyKind_String(t *testing.T) {
	tests := []struct {
		kind     TopologyKind
		expected string
	}{
		{TopologyOneBigSwitch, "one_big_switch"},
		{TopologyFatTree, "fat_tree"},
		{TopologyKind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestJobStatus_String(t *testing.T) {
	tests := []struct {
		status   JobStatus
		expected string
	}{
		{JobStatusPending, "pending"},
		{JobStatusRunning, "running"},
		{JobStatusCompleted, "completed"},
		{JobStatusFailed, "failed"},
		{JobStatus(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}

func TestNewSimulationRequest(t *testing.T) {
	req := NewSimulationRequest("uuid-456", TopologyInput{Kind: TopologyOneBigSwitch, NumHosts: 4, Capacity: 1.0},
		WorkloadInput{PP: 1, DP: 1, TP: 4, Microbatches: 1})

	assert.Equal(t, "uuid-456", req.RequestUUID)
	assert.Equal(t, JobStatusPending, req.Status)
	assert.Equal(t, 4, req.Topology.NumHosts)
	assert.Equal(t, 4, req.Workload.TP)
}

func TestSimulationRequest_IsHighPriority(t *testing.T) {
	req := &SimulationRequest{Priority: 1}
	assert.True(t, req.IsHighPriority())

	req = &SimulationRequest{Priority: 0}
	assert.False(t, req.IsHighPriority())
}
