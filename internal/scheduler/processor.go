package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"

	"github.com/flowsim/flowsim/internal/engine"
	"github.com/flowsim/flowsim/internal/repository"
	"github.com/flowsim/flowsim/internal/storage"
	"github.com/flowsim/flowsim/internal/topology"
	"github.com/flowsim/flowsim/internal/workload"
	"github.com/flowsim/flowsim/pkg/compression"
	apperrors "github.com/flowsim/flowsim/pkg/errors"
	"github.com/flowsim/flowsim/pkg/model"
	"github.com/flowsim/flowsim/pkg/utils"
	"github.com/flowsim/flowsim/pkg/writer"
)

// DefaultTaskProcessor implements TaskProcessor by building the topology and
// workload described by a request and driving the simulation core to
// completion.
type DefaultTaskProcessor struct {
	repos  *repository.Repositories
	store  storage.Storage
	logger utils.Logger
}

// ProcessorConfig holds processor configuration.
type ProcessorConfig struct {
	Repos   *repository.Repositories
	Storage storage.Storage
	Logger  utils.Logger
}

// NewDefaultTaskProcessor creates a new DefaultTaskProcessor.
func NewDefaultTaskProcessor(cfg *ProcessorConfig) *DefaultTaskProcessor {
	if cfg.Logger == nil {
		cfg.Logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}

	return &DefaultTaskProcessor{
		repos:  cfg.Repos,
		store:  cfg.Storage,
		logger: cfg.Logger,
	}
}

// Process runs one simulation request to completion and persists its result.
func (p *DefaultTaskProcessor) Process(ctx context.Context, task *Task) error {
	p.logger.Info("Starting simulation for request %s (topology=%s pp=%d dp=%d tp=%d)",
		task.UUID, task.Topology.Kind, task.Workload.PP, task.Workload.DP, task.Workload.TP)

	topo, err := BuildTopology(task.Topology)
	if err != nil {
		return p.fail(ctx, task, fmt.Errorf("failed to build topology: %w", err))
	}

	wl, err := BuildWorkload(task.Workload)
	if err != nil {
		return p.fail(ctx, task, fmt.Errorf("failed to build workload: %w", err))
	}

	if err := workload.Place(wl, topo); err != nil {
		return p.fail(ctx, task, fmt.Errorf("failed to place ranks: %w", err))
	}

	rng := rand.New(rand.NewSource(task.RoutingSeed))
	if err := workload.Route(wl, topo, rng); err != nil {
		return p.fail(ctx, task, fmt.Errorf("failed to route connections: %w", err))
	}

	eng, err := engine.New(topo, wl)
	if err != nil {
		return p.fail(ctx, task, fmt.Errorf("failed to build engine: %w", err))
	}
	eng.Detailed = task.Detailed

	globalTime, err := eng.Run()
	if err != nil {
		return p.fail(ctx, task, err)
	}

	result := model.NewSimulationResult(task.UUID, globalTime, eng.Rounds)
	result.Detailed = task.Detailed
	if task.Detailed {
		result.RankTimes = collectRankCompletions(eng)
		result.LinkPeaks = convertLinkPeaks(eng.LinkPeaks())
		result.Trace = convertTrace(eng.Trace)

		if key, err := p.archiveTrace(ctx, task, result); err != nil {
			p.logger.Warn("Failed to archive trace for request %s: %v", task.UUID, err)
		} else {
			result.ArtifactKey = key
		}
	}

	if err := p.repos.Run.SaveRun(ctx, result); err != nil {
		return fmt.Errorf("failed to save simulation run: %w", err)
	}

	if err := p.repos.Request.UpdateStatus(ctx, task.ID, model.JobStatusCompleted); err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}

	p.logger.Info("Request %s completed: globalTime=%v rounds=%d", task.UUID, globalTime, eng.Rounds)
	return nil
}

// fail records a failed run: the error carries its classifying AppError code
// (if any) in its message, so a client can tell a structural mistake in the
// input from a genuine deadlock.
func (p *DefaultTaskProcessor) fail(ctx context.Context, task *Task, runErr error) error {
	info := runErr.Error()

	result := model.NewSimulationResult(task.UUID, 0, 0)
	result.Error = info
	if saveErr := p.repos.Run.SaveRun(ctx, result); saveErr != nil {
		p.logger.Warn("Failed to save failed run for request %s: %v", task.UUID, saveErr)
	}

	if err := p.repos.Request.UpdateStatusWithInfo(ctx, task.ID, model.JobStatusFailed, info); err != nil {
		p.logger.Warn("Failed to update request status for %s: %v", task.UUID, err)
	}

	return runErr
}

// BuildTopology constructs the network graph described by a TopologyInput.
func BuildTopology(in model.TopologyInput) (*topology.Topology, error) {
	switch in.Kind {
	case model.TopologyOneBigSwitch:
		return topology.GenerateOneBigSwitch(in.NumHosts, in.Capacity), nil
	case model.TopologyFatTree:
		return topology.GenerateFatTree(topology.FatTreeParams{
			SwitchRadix: in.SwitchRadix,
			Capacity:    in.Capacity,
		}), nil
	default:
		return nil, apperrors.Structural("unknown topology kind %v", in.Kind)
	}
}

// BuildWorkload constructs the Rank/Group/Connection graph and 1F1B
// schedule described by a WorkloadInput.
func BuildWorkload(in model.WorkloadInput) (*workload.Workload, error) {
	return workload.New(workload.Params{
		PP:           in.PP,
		DP:           in.DP,
		TP:           in.TP,
		Microbatches: in.Microbatches,
		FwdCompTime:  in.FwdCompTime,
		BwdCompTime:  in.BwdCompTime,
		FwdTPSize:    in.FwdTPSize,
		BwdTPSize:    in.BwdTPSize,
		FwdPPSize:    in.FwdPPSize,
		BwdPPSize:    in.BwdPPSize,
		DPSize:       in.DPSize,
	})
}

// collectRankCompletions reports one entry per rank, each carrying the run's
// final GlobalTime; the engine does not record the time at which an
// individual rank reached DONE.
func collectRankCompletions(eng *engine.Engine) []model.RankCompletion {
	completions := make([]model.RankCompletion, len(eng.RankTasks))
	for i := range eng.RankTasks {
		completions[i] = model.RankCompletion{
			RankID: eng.RankTasks[i].RankID,
			Time:   eng.GlobalTime,
		}
	}
	return completions
}

func convertLinkPeaks(peaks []engine.LinkPeak) []model.LinkUtilization {
	if peaks == nil {
		return nil
	}
	out := make([]model.LinkUtilization, len(peaks))
	for i, p := range peaks {
		out[i] = model.LinkUtilization{LinkID: p.LinkID, PeakUtilization: p.PeakUtilization}
	}
	return out
}

func convertTrace(samples []engine.RoundSample) []model.RoundTrace {
	if samples == nil {
		return nil
	}
	out := make([]model.RoundTrace, len(samples))
	for i, s := range samples {
		out[i] = model.RoundTrace{Round: s.Round, DeltaTime: s.DeltaTime, GlobalTime: s.GlobalTime}
	}
	return out
}

// archiveTrace writes the run's full diagnostics (rank completions, link
// peaks, per-round trace) as a zstd-compressed JSON artifact to object
// storage, returning its key. The database keeps the same data inline for
// convenient querying; the artifact is the durable, downloadable copy.
func (p *DefaultTaskProcessor) archiveTrace(ctx context.Context, task *Task, result *model.SimulationResult) (string, error) {
	if p.store == nil {
		return "", nil
	}

	var buf bytes.Buffer
	jw := writer.NewJSONWriter[*model.SimulationResult]()
	if err := jw.Write(result, &buf); err != nil {
		return "", fmt.Errorf("failed to encode trace artifact: %w", err)
	}

	comp := compression.Default()
	compressed, err := comp.Compress(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to compress trace artifact: %w", err)
	}

	key := fmt.Sprintf("traces/%s.json.%s", task.UUID, comp.Name())
	if err := p.store.Upload(ctx, key, bytes.NewReader(compressed)); err != nil {
		return "", fmt.Errorf("failed to upload trace artifact: %w", err)
	}

	return key, nil
}
