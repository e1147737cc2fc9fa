package model

import "time"

// RankCompletion pairs a rank with a logical completion time, part of a
// SimulationResult's optional structural diagnostics. The scheduler fills
// Time with the run's final globalTime for every rank.
type RankCompletion struct {
	RankID int     `json:"rank_id"`
	Time   float64 `json:"time"`
}

// LinkUtilization records the peak fraction of a link's capacity that was
// ever allocated to flows during a run.
type LinkUtilization struct {
	LinkID          int     `json:"link_id"`
	PeakUtilization float64 `json:"peak_utilization"`
}

// RoundTrace records one round of the Engine's event loop, emitted only when
// a SimulationRequest asks for a Detailed result.
type RoundTrace struct {
	Round      int     `json:"round"`
	DeltaTime  float64 `json:"delta_time"`
	GlobalTime float64 `json:"global_time"`
}

// SimulationResult is the output of one Engine.Run call: a strict superset of
// the scalar globalTime the core computes, gated by the request's Detailed
// flag so the common case still returns just the scalar.
type SimulationResult struct {
	ID          int64             `json:"id"`
	RequestUUID string            `json:"request_uuid"`
	GlobalTime  float64           `json:"global_time"`
	Rounds      int               `json:"rounds"`
	Detailed    bool              `json:"detailed"`
	RankTimes   []RankCompletion  `json:"rank_times,omitempty"`
	LinkPeaks   []LinkUtilization `json:"link_peaks,omitempty"`
	Trace       []RoundTrace      `json:"trace,omitempty"`
	ArtifactKey string            `json:"artifact_key,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewSimulationResult builds a non-detailed SimulationResult for the given
// request, to be enriched by the caller when Detailed is set.
func NewSimulationResult(requestUUID string, globalTime float64, rounds int) *SimulationResult {
	return &SimulationResult{
		RequestUUID: requestUUID,
		GlobalTime:  globalTime,
		Rounds:      rounds,
	}
}

// Failed reports whether this result records a run that ended in error.
func (r *SimulationResult) Failed() bool { return r.Error != "" }
