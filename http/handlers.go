package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"churnguard/api"
	"churnguard/artifact"
	"churnguard/db"
	"churnguard/monitoring"
)

const (
	defaultPredictionLimit = 50
	maxPredictionLimit     = 1000
)

// AuditLog lists recently served predictions.
type AuditLog interface {
	RecentPredictions(ctx context.Context, limit int) ([]db.PredictionRow, error)
}

// Deps are the collaborators of the router. Audit, Hub and Gatherer are
// optional; their routes answer 404 when unset.
type Deps struct {
	Service   *api.Service
	TableName string
	Audit     AuditLog
	Hub       *monitoring.Hub
	Gatherer  prometheus.Gatherer
	Timeout   time.Duration
	Logger    *zap.Logger
}

type handler struct {
	Deps
}

// ModelInfo describes the loaded model to callers.
type ModelInfo struct {
	Version     string            `json:"version"`
	Metadata    artifact.Metadata `json:"metadata"`
	Fields      []string          `json:"fields"`
	Threshold   float64           `json:"threshold"`
	RenameTable string            `json:"rename_table"`
}

// NewRouter registers the API routes.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handler{Deps: deps}
	timeout := TimeoutMiddleware(deps.Timeout)

	mux := http.NewServeMux()
	mux.Handle("POST /api/predict", timeout(http.HandlerFunc(h.handlePredict)))
	mux.Handle("GET /api/health", timeout(http.HandlerFunc(h.handleHealth)))
	mux.Handle("GET /api/model", timeout(http.HandlerFunc(h.handleModel)))
	if deps.Audit != nil {
		mux.Handle("GET /api/predictions", timeout(http.HandlerFunc(h.handlePredictions)))
	}
	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /api/ws/predictions", deps.Hub.HandleWebSocket)
	}
	return mux
}

func (h *handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	body := &readErrorTracker{Reader: r.Body}
	req, err := api.DecodePredictRequest(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(body.err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, api.ErrorBody{
				Error: "request body too large",
				Kind:  api.KindInvalidRequest.String(),
			})
			return
		}
		h.writeError(w, r, err)
		return
	}

	resp, err := h.Service.Predict(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"model_version": h.Service.ModelVersion(),
		"features":      len(h.Service.AcceptedFields()),
	})
}

func (h *handler) handleModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModelInfo{
		Version:     h.Service.ModelVersion(),
		Metadata:    h.Service.Metadata(),
		Fields:      h.Service.AcceptedFields(),
		Threshold:   h.Service.Threshold(),
		RenameTable: h.TableName,
	})
}

func (h *handler) handlePredictions(w http.ResponseWriter, r *http.Request) {
	limit := defaultPredictionLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			writeJSON(w, http.StatusBadRequest, api.ErrorBody{
				Error: "limit must be a positive integer",
				Kind:  api.KindInvalidRequest.String(),
			})
			return
		}
		limit = l
	}
	if limit > maxPredictionLimit {
		limit = maxPredictionLimit
	}

	rows, err := h.Audit.RecentPredictions(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []db.PredictionRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(rows),
		"predictions": rows,
	})
}

// writeError maps err through api.StatusFor. The cause of a 500 stays in the
// log and never reaches the caller.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := api.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("request_id", api.RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, body)
}

// readErrorTracker remembers the last transport error so an oversized body
// can be told apart from malformed JSON.
type readErrorTracker struct {
	io.Reader
	err error
}

func (t *readErrorTracker) Read(p []byte) (int, error) {
	n, err := t.Reader.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
