package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fedchain/node/pkg/config"
)

var (
	currentHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fedchain_current_height",
		Help: "Height of the latest finalized block.",
	})
	currentRound = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fedchain_current_round",
		Help: "Consensus round most recently progressed.",
	})
	commitsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedchain_commits_accepted_total",
		Help: "Commits accepted by the commit-sequence verifier.",
	})
	commitsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fedchain_commits_rejected_total",
		Help: "Commits rejected by the commit-sequence verifier, by commit kind.",
	}, []string{"kind"})
	finalizations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedchain_finalizations_total",
		Help: "Blocks finalized by consensus.",
	})
	finalizationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fedchain_finalization_seconds",
		Help:    "Wall-clock seconds from height start to finalization.",
		Buckets: prometheus.DefBuckets,
	})
)

// healthStatus tracks node health for the /healthz endpoint.
type healthStatus struct {
	mu sync.RWMutex

	status              string // "starting", "ok", "degraded", "error"
	node                string
	height              uint64
	lastFinalizedUnixMS int64

	startTime time.Time
}

func newHealthStatus(nodeName string) *healthStatus {
	return &healthStatus{
		status:    "starting",
		node:      nodeName,
		startTime: time.Now(),
	}
}

func (h *healthStatus) SetStatus(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
}

func (h *healthStatus) SetHeight(height uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.height = height
	h.lastFinalizedUnixMS = time.Now().UnixMilli()
}

func (h *healthStatus) handler(w http.ResponseWriter, _ *http.Request) {
	type report struct {
		Status              string `json:"status"`
		Node                string `json:"node"`
		Height              uint64 `json:"height"`
		LastFinalizedUnixMS int64  `json:"last_finalized_unix_ms"`
		UptimeSeconds       int64  `json:"uptime_seconds"`
	}
	h.mu.RLock()
	snapshot := report{
		Status:              h.status,
		Node:                h.node,
		Height:              h.height,
		LastFinalizedUnixMS: h.lastFinalizedUnixMS,
		UptimeSeconds:       int64(time.Since(h.startTime).Seconds()),
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if snapshot.Status == "error" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(snapshot)
}

// startServers serves /healthz and Prometheus /metrics on their
// configured addresses, returning a shutdown func.
func startServers(cfg *config.Config, health *healthStatus, logger cmtlog.Logger) func() {
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.handler)
	healthSrv := &http.Server{Addr: cfg.HealthAddr, Handler: healthMux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		log.Printf("      health endpoint on %s/healthz", cfg.HealthAddr)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server stopped", "err", err)
		}
	}()
	go func() {
		log.Printf("      metrics endpoint on %s/metrics", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = healthSrv.Shutdown(ctx)
		_ = metricsSrv.Shutdown(ctx)
	}
}
