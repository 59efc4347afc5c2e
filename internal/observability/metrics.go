package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	MessagesProcessed prometheus.Counter
	Infections        *prometheus.CounterVec
	Cures             *prometheus.CounterVec
	InfectedPlayers   prometheus.Gauge
	ChannelsCreated   prometheus.Counter
	BufferDeletes     *prometheus.CounterVec
	StoreErrors       prometheus.Counter
	RoleSyncFailures  prometheus.Counter
	BridgeConnections prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		MessagesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Inbound message events evaluated by the engine.",
		}),
		Infections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "infections_total",
			Help:      "Infection transitions by trigger.",
		}, []string{"trigger"}),
		Cures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cures_total",
			Help:      "Cure transitions by trigger.",
		}, []string{"trigger"}),
		InfectedPlayers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "infected_players",
			Help:      "Currently infected players; corrected on every sweep.",
		}),
		ChannelsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_created_total",
			Help:      "Channel recency buffers created since startup.",
		}),
		BufferDeletes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_deletes_total",
			Help:      "Recency-buffer delete requests by outcome.",
		}, []string{"outcome"}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Player store or audit sink failures.",
		}),
		RoleSyncFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_sync_failures_total",
			Help:      "Role-sync intents the platform bridge reported as failed.",
		}),
		BridgeConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bridge_connections",
			Help:      "Connected platform-bridge websockets.",
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
