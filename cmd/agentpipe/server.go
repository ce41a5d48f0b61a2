package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/agentpipe/graph/controller"
)

const maxRequestBytes = 1 << 20

func newHandler(ctrl *controller.Controller, service string, registry *prometheus.Registry, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": service})
	})
	mux.HandleFunc("POST /task", func(w http.ResponseWriter, r *http.Request) {
		var req controller.RunRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: " + err.Error()})
			return
		}
		if strings.TrimSpace(req.UserInput) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_input is required"})
			return
		}
		res := ctrl.Run(r.Context(), req)
		if res.Error != "" {
			logger.Info("task failed", "task_id", res.TaskID, "error", res.Error)
		}
		writeJSON(w, http.StatusOK, res)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
