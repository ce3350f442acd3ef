// Package proxy contains the orchestrator: the state machine that decides
// when to impersonate the sleeping game server, when to wake it, and when to
// get out of its way.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/MaxxisHub/game-server-wol/internal/app/logger/logging"
	"github.com/MaxxisHub/game-server-wol/internal/config"
	"github.com/MaxxisHub/game-server-wol/internal/mcping"
	"github.com/MaxxisHub/game-server-wol/internal/metrics"
	"github.com/MaxxisHub/game-server-wol/internal/netclaim"
	"github.com/MaxxisHub/game-server-wol/internal/presence"
	"github.com/MaxxisHub/game-server-wol/internal/probe"
	"github.com/MaxxisHub/game-server-wol/internal/sysexec"
	"github.com/MaxxisHub/game-server-wol/internal/wol"
)

// limitedBroadcast is always appended to the wake targets as a fallback for
// hosts the directed broadcast does not reach.
const limitedBroadcast = "255.255.255.255"

// AddressClaimer is the ownership lifecycle of the game server's address.
type AddressClaimer interface {
	Claim(ctx context.Context) error
	Release(ctx context.Context) error
	Claimed() bool
	Broadcasts(ctx context.Context) ([]string, error)
}

// WakeSender sends magic packets to a list of broadcast addresses.
type WakeSender interface {
	Wake(mac string, broadcasts []string) error
}

// Listener is the shared lifecycle of the two protocol listeners.
type Listener interface {
	Start() error
	Stop()
}

// Snapshot is a read-only view of the manager for the console endpoints.
type Snapshot struct {
	State     string `json:"state"`
	Claimed   bool   `json:"claimed"`
	Motd      string `json:"motd"`
	FailCount int    `json:"failCount"`
}

// Manager drives the lifecycle state machine. All state mutations happen on
// the Run loop; the mutex only guards snapshot reads from other goroutines.
type Manager struct {
	cfg     *config.Config
	claimer AddressClaimer
	checker probe.Checker
	waker   WakeSender
	mc      Listener
	sink    Listener
	logger  *slog.Logger

	events chan WakeEvent

	mu           sync.Mutex
	state        State
	motdStarting bool
	failCount    int
	okCount      int
}

// NewManager wires the default collaborators from the configuration.
func NewManager(cfg *config.Config) *Manager {
	runner := sysexec.ExecRunner{}

	var checker probe.Checker
	switch cfg.ProbeMethod {
	case "tcp":
		checker = &probe.TCPChecker{
			Address: net.JoinHostPort(cfg.GameServerIP, strconv.Itoa(cfg.MCPort)),
			Timeout: time.Duration(cfg.PingIntervalSec) * time.Second,
		}
	default:
		checker = &probe.PingChecker{
			Host:    cfg.GameServerIP,
			Timeout: time.Duration(cfg.PingIntervalSec) * time.Second,
			Runner:  runner,
		}
	}

	m := newManager(cfg, netclaim.NewManager(cfg.GameServerIP, cfg.NetCIDR, runner), checker, wol.NewSender(cfg.WolPort))
	m.mc = mcping.NewListener(
		net.JoinHostPort(cfg.GameServerIP, strconv.Itoa(cfg.MCPort)),
		m.statusFor,
		cfg.MCDisconnectMessage,
		func(reason string) { m.enqueue(WakeEvent{Source: "minecraft", Reason: reason}) },
	)
	m.sink = presence.NewSink(
		cfg.GameServerIP,
		cfg.SatisfactoryPorts,
		func(reason string) { m.enqueue(WakeEvent{Source: "presence", Reason: reason}) },
	)
	return m
}

func newManager(cfg *config.Config, claimer AddressClaimer, checker probe.Checker, waker WakeSender) *Manager {
	return &Manager{
		cfg:     cfg,
		claimer: claimer,
		checker: checker,
		waker:   waker,
		logger:  slog.With("component", "proxy", logging.TargetIP(cfg.GameServerIP)),
		events:  make(chan WakeEvent, 16),
		state:   StateInit,
	}
}

// Run executes the control loop until the context is cancelled. On exit the
// listeners are stopped and the address is released so the host network is
// left clean.
func (m *Manager) Run(ctx context.Context) error {
	interval := time.Duration(m.cfg.PingIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		m.ensureReleased(cleanupCtx)
	}()

	m.logger.Info("Control loop started",
		slog.String("interval", interval.String()),
		slog.Int("failThreshold", m.cfg.PingFailThreshold))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.step(ctx)
		case ev := <-m.events:
			m.handleWake(ctx, ev)
		}
	}
}

// step runs one liveness probe and applies the hysteresis rules.
func (m *Manager) step(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.PingIntervalSec)*time.Second)
	err := m.checker.Check(probeCtx)
	cancel()

	if err == nil {
		m.onProbeSuccess(ctx)
	} else {
		m.onProbeFailure(ctx, err)
	}
}

func (m *Manager) onProbeSuccess(ctx context.Context) {
	m.mu.Lock()
	m.failCount = 0
	m.okCount++
	state := m.state
	m.mu.Unlock()

	m.ensureReleased(ctx)

	if state != StateOnline {
		m.mu.Lock()
		m.motdStarting = false
		m.mu.Unlock()
		m.transition(StateOnline, "real server is reachable")
	}
}

func (m *Manager) onProbeFailure(ctx context.Context, probeErr error) {
	metrics.ProbeFailures.Inc()

	m.mu.Lock()
	m.okCount = 0
	m.failCount++
	failCount := m.failCount
	state := m.state
	m.mu.Unlock()

	threshold := m.cfg.PingFailThreshold
	if threshold < 1 {
		threshold = 1
	}
	if failCount < threshold {
		m.logger.Debug("Probe failed below threshold",
			slog.Int("failCount", failCount),
			slog.Int("threshold", threshold),
			logging.Error(probeErr))
		return
	}
	if state == StateStarting {
		// The wake is in flight; the address stays free for the booting
		// server and we keep waiting for a probe success.
		return
	}

	if err := m.ensureClaimedAndListening(ctx); err != nil {
		m.logger.Warn("Could not activate proxy, will retry", logging.Error(err))
		return
	}
	if state != StateOffline {
		m.transition(StateOffline, fmt.Sprintf("%d consecutive probe failures", failCount))
	}
}

// handleWake processes one queued wake event. Events arriving in any state
// but OFFLINE are suppressed, which also collapses multiple join attempts
// within the same outage into a single wake.
func (m *Manager) handleWake(ctx context.Context, ev WakeEvent) {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	if state != StateOffline {
		m.logger.Debug("Ignoring wake event",
			slog.String("state", state.String()),
			slog.String("source", ev.Source))
		return
	}

	m.logger.Info("Wake requested",
		slog.String("source", ev.Source),
		slog.String("reason", ev.Reason))
	metrics.WakeTriggers.WithLabelValues(ev.Source).Inc()

	broadcasts, err := m.claimer.Broadcasts(ctx)
	if err != nil {
		m.logger.Warn("Could not determine broadcast addresses", logging.Error(err))
	}
	broadcasts = append(broadcasts, limitedBroadcast)
	if err := m.waker.Wake(m.cfg.GameServerMAC, broadcasts); err != nil {
		m.logger.Error("Wake-on-LAN failed", logging.Error(err))
	}

	m.mu.Lock()
	m.motdStarting = true
	m.mu.Unlock()
	m.transition(StateStarting, ev.Reason)

	// Free the address and ports immediately so the booting server can
	// bind them.
	m.ensureReleased(ctx)
}

func (m *Manager) ensureClaimedAndListening(ctx context.Context) error {
	wasClaimed := m.claimer.Claimed()
	if err := m.claimer.Claim(ctx); err != nil {
		return err
	}
	if !wasClaimed {
		metrics.AddressClaims.Inc()
	}
	if err := m.mc.Start(); err != nil {
		return err
	}
	if err := m.sink.Start(); err != nil {
		return err
	}
	return nil
}

func (m *Manager) ensureReleased(ctx context.Context) {
	// Listeners go first: their sockets must be unbound before the address
	// disappears underneath them.
	m.mc.Stop()
	m.sink.Stop()

	wasClaimed := m.claimer.Claimed()
	if err := m.claimer.Release(ctx); err != nil {
		m.logger.Warn("Release failed", logging.Error(err))
		return
	}
	if wasClaimed {
		metrics.AddressReleases.Inc()
	}
}

// enqueue hands a wake event to the control loop without ever blocking a
// listener goroutine. A full queue means a wake is already pending, so
// dropping is harmless.
func (m *Manager) enqueue(ev WakeEvent) {
	select {
	case m.events <- ev:
	default:
		m.logger.Debug("Wake queue is full, dropping event",
			slog.String("source", ev.Source))
	}
}

func (m *Manager) transition(to State, reason string) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()

	metrics.LifecycleState.Set(float64(to))
	metrics.StateTransitions.WithLabelValues(to.String()).Inc()
	m.logger.Info("State transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("reason", reason))
}

// statusFor builds the advertised Minecraft status. The protocol version is
// the client's own, the MOTD depends on whether a wake is in flight.
func (m *Manager) statusFor(clientProtocol int) mcping.Status {
	m.mu.Lock()
	starting := m.motdStarting
	m.mu.Unlock()

	motd := m.cfg.MCMotdIdle
	if starting {
		motd = m.cfg.MCMotdStarting
	}
	return mcping.Status{
		Version:     mcping.Version{Name: m.cfg.MCVersionLabel, Protocol: clientProtocol},
		Players:     mcping.Players{Max: 0, Online: 0},
		Description: mcping.Description{Text: motd},
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot renders the manager for the console endpoints.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	state := m.state
	starting := m.motdStarting
	failCount := m.failCount
	m.mu.Unlock()

	motd := m.cfg.MCMotdIdle
	if starting {
		motd = m.cfg.MCMotdStarting
	}
	return Snapshot{
		State:     state.String(),
		Claimed:   m.claimer.Claimed(),
		Motd:      motd,
		FailCount: failCount,
	}
}
