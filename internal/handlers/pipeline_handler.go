package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"telemetry-pipeline/internal/models"
	"telemetry-pipeline/internal/pipeline"
	"telemetry-pipeline/internal/runlog"
)

// maxRunsLimit caps the limit query parameter of the run history endpoint.
const maxRunsLimit = 500

// Runner executes one pipeline pass.
type Runner interface {
	Execute(ctx context.Context) pipeline.Report
}

// RunLister reads run history.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]runlog.Run, error)
}

// RunResponse is the body of a successful trigger.
type RunResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	DeviceCount int    `json:"device_count"`
	RowsLoaded  int    `json:"rows_loaded"`
	RowsSkipped int    `json:"rows_skipped"`
	RunID       string `json:"run_id"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// API serves the pipeline trigger. runs may be nil when the run log is disabled.
type API struct {
	runner Runner
	runs   RunLister
	logger logrus.FieldLogger
}

func NewAPI(runner Runner, runs RunLister, logger logrus.FieldLogger) *API {
	return &API{runner: runner, runs: runs, logger: logger.WithField("component", "trigger_api")}
}

// RegisterRoutes registers the trigger routes with the given Gin router.
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/", a.Health)
	router.GET("/health", a.Health)
	router.POST("/", a.RunPipeline)

	v1 := router.Group("/api/v1/pipeline")
	{
		v1.POST("/run", a.RunPipeline)
		v1.GET("/runs", a.ListRuns)
	}
}

// Health godoc
// @Summary Health check
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (a *API) Health(c *gin.Context) {
	RespondWithSuccess(c, http.StatusOK, HealthResponse{Status: "healthy"})
}

// RunPipeline godoc
// @Summary Run the pipeline once
// @Description Fetches the device snapshot, normalizes it and loads it into the warehouse.
// @Produce json
// @Success 200 {object} RunResponse
// @Failure 422 {object} models.APIError "No device data to load (status no_data) or every record rejected (code ROWS_REJECTED)"
// @Failure 500 {object} models.APIError "Pipeline failed"
// @Router /api/v1/pipeline/run [post]
func (a *API) RunPipeline(c *gin.Context) {
	a.logger.Info("Pipeline endpoint called")

	// A client hanging up must not abort a load half way.
	report := a.runner.Execute(context.WithoutCancel(c.Request.Context()))

	switch report.Status() {
	case pipeline.StatusSucceeded:
		RespondWithSuccess(c, http.StatusOK, RunResponse{
			Status:      "success",
			Message:     fmt.Sprintf("Loaded %d records", report.Inserted),
			DeviceCount: report.Devices,
			RowsLoaded:  report.Inserted,
			RowsSkipped: len(report.Skipped),
			RunID:       report.RunID.String(),
		})
	case pipeline.StatusNoData:
		RespondWithError(c, http.StatusUnprocessableEntity, "no_data", models.ErrorCodeNoData,
			"No device data to load", gin.H{
				"run_id":       report.RunID.String(),
				"device_count": report.Devices,
				"rows_skipped": len(report.Skipped),
			})
	case pipeline.StatusRejected:
		RespondWithError(c, http.StatusUnprocessableEntity, "error", models.ErrorCodeRowsRejected,
			fmt.Sprintf("All %d device records were rejected", report.Devices), gin.H{
				"run_id":       report.RunID.String(),
				"device_count": report.Devices,
				"rows_skipped": len(report.Skipped),
			})
	default:
		message := "pipeline failed"
		if report.Err != nil {
			message = report.Err.Error()
		}
		RespondWithError(c, http.StatusInternalServerError, "error", models.ErrorCode(report.Err),
			message, gin.H{
				"run_id":       report.RunID.String(),
				"failed_stage": string(report.FailedStage),
			})
	}
}

// ListRuns godoc
// @Summary List recent pipeline runs
// @Produce json
// @Param limit query int false "Maximum number of runs (default 20)"
// @Success 200 {array} runlog.Run
// @Failure 400 {object} models.APIError "Invalid limit"
// @Router /api/v1/pipeline/runs [get]
func (a *API) ListRuns(c *gin.Context) {
	limit := runlog.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunsLimit {
			RespondWithError(c, http.StatusBadRequest, "error", models.ErrorCodeValidation,
				fmt.Sprintf("limit must be an integer between 1 and %d", maxRunsLimit), gin.H{"limit": raw})
			return
		}
		limit = n
	}

	if a.runs == nil {
		RespondWithSuccess(c, http.StatusOK, []runlog.Run{})
		return
	}

	runs, err := a.runs.Recent(c.Request.Context(), limit)
	if err != nil {
		a.logger.WithError(err).Error("Failed to list runs")
		RespondWithError(c, http.StatusInternalServerError, "error", models.ErrorCodeInternalServerError,
			"Failed to list pipeline runs", nil)
		return
	}
	if runs == nil {
		runs = []runlog.Run{}
	}
	RespondWithSuccess(c, http.StatusOK, runs)
}
