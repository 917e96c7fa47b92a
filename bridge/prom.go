package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "intelbras2mqtt"

var alarmStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "alarm",
	Name:      "state",
	Help:      "Alarm status: 0 unknown, 1 disarmed, 2 armed away, 3 armed home, 4 triggered.",
})

var connectionStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "panel",
	Name:      "connection_state",
	Help:      "1 for the current connection state.",
}, []string{"state"})

var reconnectCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "panel",
	Name:      "reconnects_total",
	Help:      "Failed connection attempts followed by a backoff.",
})

var reportCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "panel",
	Name:      "reports_total",
	Help:      "Decoded panel reports.",
}, []string{"protocol"})

var invalidFrameCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "panel",
	Name:      "invalid_frames_total",
	Help:      "Frames dropped by the decoder.",
}, []string{"protocol"})

var pollCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "panel",
	Name:      "polls_total",
})

var pollErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "panel",
	Name:      "poll_errors_total",
})

var commandCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "bridge",
	Name:      "commands_total",
	Help:      "Commands by name and result.",
}, []string{"command", "result"})

var publishErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "bridge",
	Name:      "publish_errors_total",
})
