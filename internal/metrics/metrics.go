package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	startTime = time.Now()

	Uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "wolproxy_uptime_seconds",
			Help: "Daemon uptime in seconds",
		}, func() float64 {
			return time.Since(startTime).Seconds()
		})

	LifecycleState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wolproxy_lifecycle_state",
			Help: "Current lifecycle state (0=init, 1=offline, 2=starting, 3=online)",
		})

	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wolproxy_state_transitions_total",
			Help: "Total number of lifecycle state transitions by target state",
		},
		[]string{"to"},
	)

	ProbeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wolproxy_probe_failures_total",
			Help: "Total number of failed liveness probes",
		})

	WakeTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wolproxy_wake_triggers_total",
			Help: "Total number of wake-on-LAN triggers by source",
		},
		[]string{"source"},
	)

	MinecraftConnections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wolproxy_minecraft_connections_total",
			Help: "Total number of accepted Minecraft connections",
		})

	PresenceDatagrams = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wolproxy_presence_datagrams_total",
			Help: "Total number of datagrams received on presence-sink ports",
		})

	AddressClaims = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wolproxy_address_claims_total",
			Help: "Total number of successful IP address claims",
		})

	AddressReleases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wolproxy_address_releases_total",
			Help: "Total number of IP address releases",
		})
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			Uptime,
			LifecycleState,
			StateTransitions,
			ProbeFailures,
			WakeTriggers,
			MinecraftConnections,
			PresenceDatagrams,
			AddressClaims,
			AddressReleases,
		)
	})
}
