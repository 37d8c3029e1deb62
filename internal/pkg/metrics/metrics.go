package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every agent metric. It is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// NetworkUp is 1 while the wireless link is usable.
	NetworkUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tramcast_network_up",
			Help: "Whether the wireless network link is usable (1=Connected, 0=Disconnected).",
		},
	)

	// SessionUp is 1 while the broker session is connected and subscribed.
	SessionUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tramcast_broker_session_up",
			Help: "Whether the broker session is established (1=Up, 0=Down).",
		},
	)

	// TimeSynced is 1 once the clock is synchronized in the current epoch.
	TimeSynced = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tramcast_time_synced",
			Help: "Whether the wall clock is synchronized in the current epoch.",
		},
	)

	// EpochsTotal counts connectivity epochs by how they ended.
	EpochsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tramcast_epochs_total",
			Help: "Total number of connectivity epochs, by outcome.",
		},
		[]string{"outcome"}, // outcome: reconnect/fatal/canceled
	)

	// MessagesRoutedTotal counts inbound frames by route and result.
	MessagesRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tramcast_messages_routed_total",
			Help: "Total number of inbound broker frames, by route and result.",
		},
		[]string{"route", "result"}, // route: status/ota/confirm/rollback/unknown, result: ok/dropped/fatal
	)

	// BusDroppedTotal counts state events evicted from a full event bus.
	BusDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tramcast_event_bus_dropped_total",
			Help: "Total number of state events evicted because the display did not keep up.",
		},
	)

	// OTABytesWritten is the number of image bytes written by the live transfer.
	OTABytesWritten = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tramcast_ota_bytes_written",
			Help: "Bytes written to the spare slot by the live OTA transfer.",
		},
	)

	// OTATotalBytes is the declared size of the live transfer.
	OTATotalBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tramcast_ota_total_bytes",
			Help: "Declared image size of the live OTA transfer.",
		},
	)

	// OTATransfersTotal counts finished transfers.
	OTATransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tramcast_ota_transfers_total",
			Help: "Total number of OTA transfers, by result.",
		},
		[]string{"result"}, // result: complete/aborted/discarded
	)
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	Registry.MustRegister(NetworkUp)
	Registry.MustRegister(SessionUp)
	Registry.MustRegister(TimeSynced)
	Registry.MustRegister(EpochsTotal)
	Registry.MustRegister(MessagesRoutedTotal)
	Registry.MustRegister(BusDroppedTotal)
	Registry.MustRegister(OTABytesWritten)
	Registry.MustRegister(OTATotalBytes)
	Registry.MustRegister(OTATransfersTotal)
}

// BoolToFloat converts a state flag to a gauge value.
func BoolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
