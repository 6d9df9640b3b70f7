// Package metrics exposes the proxy's Prometheus metrics: counters and
// gauges for packets relayed, active sessions, backend health,
// chunk-refcount drops, and garbage-collected entity ids. Backend
// circuit state is refreshed on the id-GC supervisor's tick; every other
// metric is updated inline by the code that already observes the event.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	packetsRelayed = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "multimc_packets_relayed_total",
		Help: "Packets forwarded to their destination after passing the pipeline.",
	}, []string{"direction"})

	packetsDropped = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "multimc_packets_dropped_total",
		Help: "Packets a pass suppressed before reaching their destination.",
	}, []string{"direction", "reason"})

	activeSessions = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Name: "multimc_active_sessions",
		Help: "Currently connected client sessions.",
	})

	backendCircuitState = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "multimc_backend_circuit_state",
		Help: "Per-backend circuit breaker state (0=closed, 1=open, 2=half-open).",
	}, []string{"backend"})

	chunkRefcountDrops = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "multimc_chunk_refcount_drops_total",
		Help: "Chunk load, light and unload packets suppressed by the chunk refcount pass.",
	})

	entitiesGCed = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "multimc_entities_garbage_collected_total",
		Help: "Entity id mappings reclaimed by the orphan sweep.",
	})

	dummyConnections = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Name: "multimc_dummy_connections",
		Help: "Warm, non-relayed backend connections currently held open across all sessions.",
	})
)

func init() {
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler returns the HTTP handler serving the registry in Prometheus
// exposition format, mounted by internal/admin.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry, Timeout: 10 * time.Second})
}

// ObservePacketRelayed records one forwarded frame.
func ObservePacketRelayed(direction string) {
	packetsRelayed.WithLabelValues(direction).Inc()
}

// ObservePacketDropped records one suppressed frame.
func ObservePacketDropped(direction, reason string) {
	packetsDropped.WithLabelValues(direction, reason).Inc()
}

// SetActiveSessions reports the current session count.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// SetDummyConnections reports the current warm-dummy-connection count
// across all sessions.
func SetDummyConnections(n int) {
	dummyConnections.Set(float64(n))
}

// ObserveChunkRefcountDrop records one chunk packet the refcount pass
// suppressed (a payload the client already has, or an unload while
// another backend still holds the chunk).
func ObserveChunkRefcountDrop() {
	chunkRefcountDrops.Inc()
}

// ObserveEntitiesGCed records how many entity id mappings one GC sweep
// reclaimed.
func ObserveEntitiesGCed(n int) {
	if n > 0 {
		entitiesGCed.Add(float64(n))
	}
}

// circuitStateValue maps the circuit breaker's "state" string to a
// stable gauge value.
func circuitStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "open":
		return 1
	case "half-open":
		return 2
	default:
		return -1
	}
}

// SetBackendCircuitStats reports every backend's circuit breaker state,
// as returned by backend.Registry.Stats().
func SetBackendCircuitStats(stats map[string]any) {
	for name, data := range stats {
		statsMap, ok := data.(map[string]any)
		if !ok {
			continue
		}
		state, _ := statsMap["state"].(string)
		backendCircuitState.WithLabelValues(name).Set(circuitStateValue(state))
	}
}
