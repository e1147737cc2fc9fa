package webui

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	flowmock "github.com/flowsim/flowsim/internal/mock"
	"github.com/flowsim/flowsim/internal/repository"
	"github.com/flowsim/flowsim/pkg/model"
	"github.com/flowsim/flowsim/pkg/utils"
)

func newTestServer(t *testing.T) (*Server, *flowmock.MockRequestRepository, *flowmock.MockRunRepository, *flowmock.MockStorage) {
	t.Helper()
	requestRepo := &flowmock.MockRequestRepository{}
	runRepo := &flowmock.MockRunRepository{}
	store := &flowmock.MockStorage{}

	srv := NewServer(
		&repository.Repositories{Request: requestRepo, Run: runRepo},
		store,
		0,
		utils.NewDefaultLogger(utils.LevelDebug, io.Discard),
	)
	return srv, requestRepo, runRepo, store
}

func TestHandleListRuns(t *testing.T) {
	srv, requestRepo, runRepo, _ := newTestServer(t)

	req := model.NewSimulationRequest("uuid-1", model.TopologyInput{Kind: model.TopologyOneBigSwitch}, model.WorkloadInput{PP: 1, DP: 1, TP: 1})
	req.Status = model.JobStatusCompleted
	requestRepo.ExpectListRecentRequests(defaultListLimit, 0, []*model.SimulationRequest{req}, nil)
	runRepo.On("GetRunByRequestUUID", mock.Anything, "uuid-1").Return(&model.SimulationResult{RequestUUID: "uuid-1", GlobalTime: 4.5, Rounds: 3}, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	w := httptest.NewRecorder()
	srv.handleListRuns(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var rows []runRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "uuid-1", rows[0].Request.RequestUUID)
	require.NotNil(t, rows[0].Result)
	assert.InDelta(t, 4.5, rows[0].Result.GlobalTime, 1e-9)
}

func TestHandleRunDetail_NotFound(t *testing.T) {
	srv, requestRepo, _, _ := newTestServer(t)
	requestRepo.On("GetRequestByUUID", mock.Anything, "missing").Return(nil, assert.AnError)

	r := httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil)
	r.SetPathValue("uuid", "missing")
	w := httptest.NewRecorder()
	srv.handleRunDetail(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRunArtifact_StreamsDownload(t *testing.T) {
	srv, _, runRepo, store := newTestServer(t)

	runRepo.On("GetRunByRequestUUID", mock.Anything, "uuid-2").Return(&model.SimulationResult{
		RequestUUID: "uuid-2",
		ArtifactKey: "traces/uuid-2.json.zst",
	}, nil)
	store.On("Exists", mock.Anything, "traces/uuid-2.json.zst").Return(true, nil)
	store.On("Download", mock.Anything, "traces/uuid-2.json.zst").Return(io.NopCloser(strings.NewReader("artifact-bytes")), nil)

	r := httptest.NewRequest(http.MethodGet, "/api/runs/uuid-2/artifact", nil)
	r.SetPathValue("uuid", "uuid-2")
	w := httptest.NewRecorder()
	srv.handleRunArtifact(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
}

func TestHandleRunArtifact_NoArtifactKey(t *testing.T) {
	srv, _, runRepo, _ := newTestServer(t)
	runRepo.On("GetRunByRequestUUID", mock.Anything, "uuid-3").Return(&model.SimulationResult{RequestUUID: "uuid-3"}, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/runs/uuid-3/artifact", nil)
	r.SetPathValue("uuid", "uuid-3")
	w := httptest.NewRecorder()
	srv.handleRunArtifact(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
