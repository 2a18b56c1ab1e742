package stats

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Metrics holds the Prometheus collectors on a private registry so several
// trackers (and tests) never collide on the default one.
type Metrics struct {
	registry      *prometheus.Registry
	spots         *prometheus.CounterVec
	lines         *prometheus.CounterVec
	parseFailures *prometheus.CounterVec
	reconnects    *prometheus.CounterVec
	phase         *prometheus.GaugeVec
	streaming     *prometheus.GaugeVec
}

// NewMetrics registers collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		spots: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "spots_delivered_total", Help: "Spots delivered to the sink",
		}, []string{"cluster", "mode"}),
		lines: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "lines_received_total", Help: "Complete lines read from the cluster",
		}, []string{"cluster"}),
		parseFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "parse_failures_total", Help: "Lines dropped because they were not spots",
		}, []string{"cluster"}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconnects_total", Help: "Listener restarts after an unexpected stop",
		}, []string{"cluster"}),
		phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cluster_phase", Help: "Connection phase (0 idle .. 5 failed)",
		}, []string{"cluster"}),
		streaming: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cluster_streaming", Help: "1 while the cluster is streaming spots",
		}, []string{"cluster"}),
	}
}

// Registry exposes the registry for custom handlers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves /metrics, /healthz and /api/stats.
func Handler(m *Metrics, t *Tracker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"uptime_seconds": int64(t.GetUptime().Seconds()),
			"total":          t.GetTotal(),
			"clusters":       t.ClusterCounts(),
			"modes":          t.ModeCounts(),
			"parse_failures": t.ParseFailures(),
		})
	})
	return mux
}

// Serve runs the metrics endpoint until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("Metrics: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
