// Package metrics exposes process-local Prometheus instrumentation for
// the beacon, supervisor, and control server. Pull-only: nothing is
// reported outward.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BeaconSends counts discovery broadcasts sent.
	BeaconSends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spoke_beacon_sends_total",
		Help: "Discovery beacon datagrams sent.",
	})

	// BeaconErrors counts dropped beacon sends.
	BeaconErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spoke_beacon_errors_total",
		Help: "Discovery beacon send attempts dropped on error.",
	})

	// EncoderStarts counts encoder process spawns.
	EncoderStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spoke_encoder_starts_total",
		Help: "Encoder processes spawned by the supervisor.",
	})

	// EncoderExits counts encoder process terminations by reason.
	EncoderExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spoke_encoder_exits_total",
		Help: "Encoder process terminations, by reason.",
	}, []string{"reason"})

	// SupervisorState reflects the supervisor state (0 idle, 1 starting, 2 running).
	SupervisorState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spoke_supervisor_state",
		Help: "Supervisor state: 0 idle, 1 starting, 2 running.",
	})

	// AdoptRequests counts adopt/configure requests by result.
	AdoptRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spoke_adopt_requests_total",
		Help: "Adopt requests handled, by result.",
	}, []string{"result"})
)

// Exit reasons for EncoderExits.
const (
	ExitReasonStopped = "stopped" // terminated by the supervisor
	ExitReasonExited  = "exited"  // exited on its own
)

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
