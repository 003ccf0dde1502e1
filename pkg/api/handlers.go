package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"

	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
)

// RunStore persists verification runs
type RunStore interface {
	CreateRun(ctx context.Context, run *models.VerificationRun) error
	GetRun(ctx context.Context, id string) (*models.VerificationRun, error)
	ListRuns(ctx context.Context, limit int) ([]models.VerificationRun, error)
	UpdateRunTemporalIDs(ctx context.Context, id, workflowID, runID string) error
	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
	UpdateRunResult(ctx context.Context, id string, result models.VerificationResult) error
}

// WorkflowClient is the part of the Temporal client the API uses
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	CancelWorkflow(ctx context.Context, workflowID string, runID string) error
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// Per-request defaults, matching the standalone runner
const (
	defaultTimeoutSeconds = 30
	defaultListLimit      = 50
)

// Handlers contains API handlers
type Handlers struct {
	store          RunStore
	temporalClient WorkflowClient
	screenshotDir  string
	logger         *zap.Logger
	upgrader       websocket.Upgrader
	pollInterval   time.Duration
}

// NewHandlers creates new API handlers. store may be nil, in which case
// every run endpoint answers 503.
func NewHandlers(store RunStore, temporalClient WorkflowClient, screenshotDir string, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		store:          store,
		temporalClient: temporalClient,
		screenshotDir:  screenshotDir,
		logger:         logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pollInterval: 500 * time.Millisecond,
	}
}

// NewRouter wires every route
func NewRouter(h *Handlers) *mux.Router {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	apiRouter := router.PathPrefix("/api").Subrouter()

	apiRouter.HandleFunc("/verifications", h.ListVerifications).Methods("GET")
	apiRouter.HandleFunc("/verifications", h.CreateVerification).Methods("POST")
	apiRouter.HandleFunc("/verifications/{id}", h.GetVerification).Methods("GET")
	apiRouter.HandleFunc("/verifications/{id}/cancel", h.CancelVerification).Methods("POST")

	// WebSocket for real-time updates
	apiRouter.HandleFunc("/verifications/{id}/stream", h.StreamVerification).Methods("GET")

	// Screenshots
	apiRouter.HandleFunc("/screenshots/{filename}", h.ServeScreenshot).Methods("GET")

	return router
}

// Health reports liveness
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==================== Verification Handlers ====================

// CreateVerification starts a verification workflow
func (h *Handlers) CreateVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	target := models.DefaultTarget()
	if req.URL != "" {
		target.URL = req.URL
	}
	if req.Selector != "" {
		target.Selector = req.Selector
	}
	if err := validateURL(target.URL); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	headless := true
	if req.Headless != nil {
		headless = *req.Headless
	}

	runID := uuid.New().String()
	now := time.Now()
	run := &models.VerificationRun{
		ID:        runID,
		TargetURL: target.URL,
		Selector:  target.Selector,
		Status:    models.StatusPending,
		StartedAt: &now,
	}

	if err := h.store.CreateRun(ctx, run); err != nil {
		http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	input := models.VerificationInput{
		RunID:             runID,
		Target:            target,
		Headless:          headless,
		NavigationTimeout: defaultTimeoutSeconds,
		WaitTimeout:       defaultTimeoutSeconds,
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        workflowIDFor(runID),
		TaskQueue: workflows.TaskQueue,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, "VerificationWorkflow", input)
	if err != nil {
		if uerr := h.store.UpdateRunStatus(ctx, runID, models.StatusFailed, err.Error()); uerr != nil {
			h.logger.Warn("Failed to mark run failed", zap.String("runID", runID), zap.Error(uerr))
		}
		http.Error(w, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.store.UpdateRunTemporalIDs(ctx, runID, we.GetID(), we.GetRunID()); err != nil {
		h.logger.Warn("Failed to store Temporal ids", zap.String("runID", runID), zap.Error(err))
	}

	h.logger.Info("Verification started",
		zap.String("runID", runID),
		zap.String("url", target.URL),
		zap.String("workflowID", we.GetID()))

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id":               runID,
		"temporal_workflow_id": we.GetID(),
		"temporal_run_id":      we.GetRunID(),
		"status":               models.StatusRunning,
	})
}

// ListVerifications lists recent runs
func (h *Handlers) ListVerifications(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, runs)
}

// GetVerification retrieves a run, refreshing its status from Temporal while it is in flight
func (h *Handlers) GetVerification(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.loadRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// CancelVerification cancels a running workflow
func (h *Handlers) CancelVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.store.GetRun(ctx, id)
	if err != nil || run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Status.IsTerminal() {
		http.Error(w, "Run already finished", http.StatusConflict)
		return
	}

	// A pending run may not have its ids stored yet, the workflow id is derived from the run id
	workflowID := run.TemporalWorkflowID
	started := workflowID != ""
	if !started {
		workflowID = workflowIDFor(run.ID)
	}

	// Cancel Temporal workflow
	if err := h.temporalClient.CancelWorkflow(ctx, workflowID, run.TemporalRunID); err != nil {
		if !started {
			h.logger.Warn("No workflow to cancel for pending run", zap.String("runID", id), zap.Error(err))
			http.Error(w, "Run has no workflow to cancel yet", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to cancel workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.store.UpdateRunStatus(ctx, id, models.StatusCanceled, "Cancelled by user"); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusCanceled)})
}

// StreamVerification streams run updates via WebSocket until the run finishes
func (h *Handlers) StreamVerification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var lastStatus models.RunStatus
	for {
		run, err := h.loadRun(ctx, id)
		if err == nil && run != nil && run.Status != lastStatus {
			msg := models.WSMessage{
				Type:    "run_update",
				Payload: run,
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			lastStatus = run.Status

			// Close if completed
			if run.Status.IsTerminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(run.Status)))
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ==================== Screenshot Handlers ====================

// ServeScreenshot serves a screenshot file
func (h *Handlers) ServeScreenshot(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	// Only allow files from the screenshots directory
	filePath := filepath.Join(h.screenshotDir, filepath.Base(filename))

	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		http.Error(w, "Screenshot not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filePath)
}

// ==================== Helpers ====================

// loadRun reads a run and, while it is still in flight, folds in the
// workflow's progress. Terminal results are written back to the store.
func (h *Handlers) loadRun(ctx context.Context, id string) (*models.VerificationRun, error) {
	run, err := h.store.GetRun(ctx, id)
	if err != nil || run == nil {
		return run, err
	}
	if run.Status.IsTerminal() || run.TemporalWorkflowID == "" || h.temporalClient == nil {
		return run, nil
	}

	value, err := h.temporalClient.QueryWorkflow(ctx, run.TemporalWorkflowID, run.TemporalRunID, workflows.ProgressQuery)
	if err != nil {
		h.logger.Debug("Progress query failed", zap.String("runID", id), zap.Error(err))
		return run, nil
	}

	var result models.VerificationResult
	if err := value.Get(&result); err != nil {
		return run, nil
	}

	run.Status = result.Status
	run.ScreenshotPath = result.ScreenshotPath
	run.ErrorMessage = result.ErrorMessage

	if result.Status.IsTerminal() {
		if err := h.store.UpdateRunResult(ctx, id, result); err != nil {
			h.logger.Warn("Failed to persist run result", zap.String("runID", id), zap.Error(err))
		}
	}
	return run, nil
}

func workflowIDFor(runID string) string {
	return fmt.Sprintf("verification-%s", runID)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
