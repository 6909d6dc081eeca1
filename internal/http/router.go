package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/au2001/graph-node/internal/domain"
	"github.com/au2001/graph-node/internal/repository"
	"github.com/au2001/graph-node/internal/service/deployment"
	"github.com/au2001/graph-node/internal/service/restart"
	"github.com/au2001/graph-node/internal/ws"
)

const healthCheckTimeout = 2 * time.Second

// Router wires HTTP endpoints to the deployment services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	deploy   deployment.Service
	restarts *restart.Manager
	hub      *ws.Hub
	upgrader websocket.Upgrader
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, deploySvc deployment.Service, restarts *restart.Manager, hub *ws.Hub, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		deploy:   deploySvc,
		restarts: restarts,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		dbHealth: dbHealth,
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.instrument("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/deployments/pause", r.instrument("/deployments/pause", r.handlePause))
	r.mux.HandleFunc("/deployments/resume", r.instrument("/deployments/resume", r.handleResume))
	r.mux.HandleFunc("/deployments/restart", r.instrument("/deployments/restart", r.handleRestart))
	r.mux.HandleFunc("/deployments/unassign", r.instrument("/deployments/unassign", r.handleUnassign))
	r.mux.HandleFunc("/deployments/reassign", r.instrument("/deployments/reassign", r.handleReassign))
	r.mux.HandleFunc("/executions/", r.instrument("/executions/{id}", r.handleExecution))
	r.mux.HandleFunc("/executions", r.instrument("/executions", r.handleExecutionList))
	// streaming routes are not instrumented: the recorder would hide the
	// Hijacker/Flusher interfaces the upgrades need
	r.mux.HandleFunc("/ws/executions", r.handleExecutionsWS)
	r.mux.HandleFunc("/sse/executions", r.handleExecutionsSSE)
}

// mutationRequest is the shared body for all deployment mutations.
type mutationRequest struct {
	Deployment   domain.DeploymentSelector `json:"deployment"`
	Node         string                    `json:"node,omitempty"`
	DelaySeconds *int                      `json:"delay_seconds,omitempty"`
}

func (r *Router) decodeMutation(w http.ResponseWriter, req *http.Request) (mutationRequest, bool) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return mutationRequest{}, false
	}
	var payload mutationRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return mutationRequest{}, false
	}
	return payload, true
}

func (r *Router) handlePause(w http.ResponseWriter, req *http.Request) {
	payload, ok := r.decodeMutation(w, req)
	if !ok {
		return
	}
	ack, err := r.deploy.Pause(req.Context(), payload.Deployment)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (r *Router) handleResume(w http.ResponseWriter, req *http.Request) {
	payload, ok := r.decodeMutation(w, req)
	if !ok {
		return
	}
	ack, err := r.deploy.Resume(req.Context(), payload.Deployment)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (r *Router) handleUnassign(w http.ResponseWriter, req *http.Request) {
	payload, ok := r.decodeMutation(w, req)
	if !ok {
		return
	}
	ack, err := r.deploy.Unassign(req.Context(), payload.Deployment)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (r *Router) handleReassign(w http.ResponseWriter, req *http.Request) {
	payload, ok := r.decodeMutation(w, req)
	if !ok {
		return
	}
	ack, err := r.deploy.Reassign(req.Context(), payload.Deployment, payload.Node)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (r *Router) handleRestart(w http.ResponseWriter, req *http.Request) {
	payload, ok := r.decodeMutation(w, req)
	if !ok {
		return
	}
	delay := -time.Second // negative selects the manager default
	if payload.DelaySeconds != nil {
		if *payload.DelaySeconds < 0 {
			writeError(w, http.StatusBadRequest, "delay_seconds must not be negative")
			return
		}
		delay = time.Duration(*payload.DelaySeconds) * time.Second
	}
	dep, err := r.deploy.Resolve(req.Context(), payload.Deployment)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	id, err := r.restarts.Submit(req.Context(), *dep, delay)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": id})
}

func (r *Router) handleExecution(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(req.URL.Path, "/executions/")
	if id == "" || strings.Contains(id, "/") {
		r.notFound(w)
		return
	}
	execution, err := r.restarts.Get(req.Context(), id)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalExecution(*execution))
}

func (r *Router) handleExecutionList(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	deploymentID, err := strconv.ParseInt(req.URL.Query().Get("deployment_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "deployment_id query parameter required")
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	executions, err := r.restarts.ListByDeployment(req.Context(), deploymentID, limit)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(executions))
	for _, execution := range executions {
		payload = append(payload, marshalExecution(execution))
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": payload})
}

func (r *Router) handleExecutionsWS(w http.ResponseWriter, req *http.Request) {
	topic := req.URL.Query().Get("execution_id")
	if topic == "" {
		topic = ws.TopicAll
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(topic, client)
	go func() {
		defer func() {
			r.hub.Unregister(topic, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleExecutionsSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	topic := req.URL.Query().Get("execution_id")
	if topic == "" {
		topic = ws.TopicAll
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Register(topic, client)
	defer func() {
		r.hub.Unregister(topic, client)
		client.Close()
	}()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()
	if r.dbHealth != nil {
		if err := r.dbHealth(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps service errors onto HTTP statuses, keeping their
// kind intact in the message.
func (r *Router) writeServiceError(w http.ResponseWriter, err error) {
	var invalidNode domain.InvalidNodeIDError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "deployment not found")
	case errors.Is(err, repository.ErrAmbiguous):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidSelector):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidNode):
		writeError(w, http.StatusBadRequest, invalidNode.Error())
	case errors.Is(err, repository.ErrAlreadyPaused),
		errors.Is(err, repository.ErrNotPaused),
		errors.Is(err, repository.ErrNotAssigned):
		writeError(w, http.StatusConflict, err.Error())
	default:
		r.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func marshalExecution(execution domain.Execution) map[string]any {
	payload := map[string]any{
		"id":            execution.ID,
		"deployment_id": execution.DeploymentID,
		"kind":          execution.Kind,
		"phase":         execution.Phase,
		"delay_seconds": int(execution.Delay / time.Second),
		"created_at":    execution.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    execution.UpdatedAt.Format(time.RFC3339Nano),
	}
	if execution.Error != "" {
		payload["error"] = execution.Error
	}
	if execution.CompletedAt != nil {
		payload["completed_at"] = execution.CompletedAt.Format(time.RFC3339Nano)
	}
	return payload
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
