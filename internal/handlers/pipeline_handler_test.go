package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-pipeline/internal/models"
	"telemetry-pipeline/internal/pipeline"
	"telemetry-pipeline/internal/runlog"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubRunner struct {
	report pipeline.Report
	calls  int
}

func (s *stubRunner) Execute(context.Context) pipeline.Report {
	s.calls++
	return s.report
}

type stubRuns struct {
	runs      []runlog.Run
	err       error
	lastLimit int
}

func (s *stubRuns) Recent(_ context.Context, limit int) ([]runlog.Run, error) {
	s.lastLimit = limit
	return s.runs, s.err
}

func newRouter(runner Runner, runs RunLister) *gin.Engine {
	logger, _ := test.NewNullLogger()
	router := gin.New()
	NewAPI(runner, runs, logger).RegisterRoutes(router)
	return router
}

func perform(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	router := newRouter(&stubRunner{}, nil)
	for _, path := range []string{"/", "/health"} {
		rr := perform(router, http.MethodGet, path)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())
	}
}

func TestRunPipeline(t *testing.T) {
	runID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		runner := &stubRunner{report: pipeline.Report{
			RunID:    runID,
			State:    pipeline.StateDone,
			Devices:  3,
			Rows:     2,
			Inserted: 2,
			Skipped:  []*models.RowError{{Index: 2, Err: errors.New("bad")}},
		}}
		router := newRouter(runner, nil)

		for _, path := range []string{"/", "/api/v1/pipeline/run"} {
			rr := perform(router, http.MethodPost, path)
			assert.Equal(t, http.StatusOK, rr.Code)

			var resp RunResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, "success", resp.Status)
			assert.Equal(t, "Loaded 2 records", resp.Message)
			assert.Equal(t, 3, resp.DeviceCount)
			assert.Equal(t, 2, resp.RowsLoaded)
			assert.Equal(t, 1, resp.RowsSkipped)
			assert.Equal(t, runID.String(), resp.RunID)
		}
		assert.Equal(t, 2, runner.calls)
	})

	t.Run("No Data", func(t *testing.T) {
		runner := &stubRunner{report: pipeline.Report{
			RunID:       runID,
			State:       pipeline.StateFailed,
			FailedStage: pipeline.StateTransforming,
			Err:         fmt.Errorf("%w: snapshot has no devices", models.ErrNoRows),
		}}
		rr := perform(newRouter(runner, nil), http.MethodPost, "/api/v1/pipeline/run")
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

		var apiErr models.APIError
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr))
		assert.Equal(t, "no_data", apiErr.Status)
		assert.Equal(t, models.ErrorCodeNoData, apiErr.Code)
	})

	t.Run("All Records Rejected", func(t *testing.T) {
		runner := &stubRunner{report: pipeline.Report{
			RunID:       runID,
			State:       pipeline.StateFailed,
			FailedStage: pipeline.StateTransforming,
			Devices:     2,
			Skipped: []*models.RowError{
				{Index: 0, Field: "latitude", Err: errors.New("bad latitude")},
				{Index: 1, Err: errors.New("not an object")},
			},
			Err: fmt.Errorf("%w: %w: all 2 device records rejected", models.ErrNoRows, models.ErrRowTransform),
		}}
		rr := perform(newRouter(runner, nil), http.MethodPost, "/api/v1/pipeline/run")
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "error", body["status"])
		assert.Equal(t, models.ErrorCodeRowsRejected, body["code"])
		assert.Equal(t, "All 2 device records were rejected", body["message"])
		details := body["details"].(map[string]interface{})
		assert.Equal(t, float64(2), details["device_count"])
		assert.Equal(t, float64(2), details["rows_skipped"])
	})

	t.Run("Upstream Failure", func(t *testing.T) {
		runner := &stubRunner{report: pipeline.Report{
			RunID:       runID,
			State:       pipeline.StateFailed,
			FailedStage: pipeline.StateFetching,
			Err:         fmt.Errorf("fetch failed: %w", models.ErrNetwork),
		}}
		rr := perform(newRouter(runner, nil), http.MethodPost, "/")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "error", body["status"])
		assert.Equal(t, models.ErrorCodeUpstreamFailure, body["code"])
		assert.Contains(t, body["message"], "tracking api request failed")
		details := body["details"].(map[string]interface{})
		assert.Equal(t, "fetching", details["failed_stage"])
	})

	t.Run("Destination Missing", func(t *testing.T) {
		runner := &stubRunner{report: pipeline.Report{
			State: pipeline.StateFailed,
			Err:   fmt.Errorf("load failed: %w: p.d.t", models.ErrDestinationNotFound),
		}}
		rr := perform(newRouter(runner, nil), http.MethodPost, "/")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Contains(t, rr.Body.String(), models.ErrorCodeDestinationNotFound)
	})
}

func TestListRuns(t *testing.T) {
	t.Run("Run Log Disabled", func(t *testing.T) {
		rr := perform(newRouter(&stubRunner{}, nil), http.MethodGet, "/api/v1/pipeline/runs")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("Returns Recent Runs", func(t *testing.T) {
		runs := &stubRuns{runs: []runlog.Run{
			{ID: uuid.New(), Status: pipeline.StatusSucceeded, Inserted: 4, StartedAt: time.Now().UTC()},
		}}
		rr := perform(newRouter(&stubRunner{}, runs), http.MethodGet, "/api/v1/pipeline/runs?limit=5")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 5, runs.lastLimit)

		var got []runlog.Run
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, 4, got[0].Inserted)
	})

	t.Run("Default Limit", func(t *testing.T) {
		runs := &stubRuns{}
		rr := perform(newRouter(&stubRunner{}, runs), http.MethodGet, "/api/v1/pipeline/runs")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, runlog.DefaultLimit, runs.lastLimit)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("Invalid Limit", func(t *testing.T) {
		for _, limit := range []string{"abc", "0", "100000"} {
			rr := perform(newRouter(&stubRunner{}, &stubRuns{}), http.MethodGet, "/api/v1/pipeline/runs?limit="+limit)
			assert.Equal(t, http.StatusBadRequest, rr.Code, "limit=%s", limit)
			assert.Contains(t, rr.Body.String(), models.ErrorCodeValidation)
		}
	})

	t.Run("Store Error", func(t *testing.T) {
		rr := perform(newRouter(&stubRunner{}, &stubRuns{err: errors.New("db down")}), http.MethodGet, "/api/v1/pipeline/runs")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "db down")
	})
}

func TestRegisterDocs(t *testing.T) {
	router := gin.New()
	RegisterDocs(router)

	rr := perform(router, http.MethodGet, "/swagger/doc.json")
	assert.Equal(t, http.StatusOK, rr.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	paths := doc["paths"].(map[string]interface{})
	assert.Contains(t, paths, "/api/v1/pipeline/run")
	assert.Contains(t, paths, "/api/v1/pipeline/runs")
}
