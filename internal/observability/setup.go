package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	moderationActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_actions_total",
			Help: "Total number of moderation actions taken",
		},
		[]string{"action"},
	)

	attributedInvitesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attributed_invites_total",
			Help: "Total number of newly attributed invitees",
		},
	)

	broadcastDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Broadcast delivery outcomes per destination",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(moderationActionsTotal, attributedInvitesTotal, broadcastDeliveriesTotal)
}

func RecordModerationAction(action string) {
	moderationActionsTotal.WithLabelValues(action).Inc()
}

func RecordAttribution(count int) {
	attributedInvitesTotal.Add(float64(count))
}

func RecordBroadcastDelivery(status string) {
	broadcastDeliveriesTotal.WithLabelValues(status).Inc()
}

// Server exposes /metrics plus the health endpoints on one mux. It implements
// lifecycle.Component.
type Server struct {
	addr    string
	httpSrv *http.Server
	started time.Time
}

func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

func (s *Server) Start(ctx context.Context) error {
	s.started = time.Now()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, map[string]any{
			"status": "running",
			"name":   "expressbot",
			"uptime": time.Since(s.started).Seconds(),
		})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, map[string]any{
			"bot":  "active",
			"mode": "polling",
		})
	})

	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("observability server failed")
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Debug("cant encode health payload")
	}
}
