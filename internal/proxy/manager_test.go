package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MaxxisHub/game-server-wol/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClaimer struct {
	mu         sync.Mutex
	claimed    bool
	claimErr   error
	claims     int
	releases   int
	broadcasts []string
}

func (f *fakeClaimer) Claim(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return f.claimErr
	}
	if !f.claimed {
		f.claims++
	}
	f.claimed = true
	return nil
}

func (f *fakeClaimer) Release(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed {
		f.releases++
	}
	f.claimed = false
	return nil
}

func (f *fakeClaimer) Claimed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimed
}

func (f *fakeClaimer) Broadcasts(_ context.Context) ([]string, error) {
	return append([]string(nil), f.broadcasts...), nil
}

type fakeChecker struct {
	err error
}

func (f *fakeChecker) Check(_ context.Context) error { return f.err }

type fakeWaker struct {
	macs  []string
	addrs [][]string
}

func (f *fakeWaker) Wake(mac string, broadcasts []string) error {
	f.macs = append(f.macs, mac)
	f.addrs = append(f.addrs, append([]string(nil), broadcasts...))
	return nil
}

type fakeListener struct {
	running bool
	starts  int
	stops   int
}

func (f *fakeListener) Start() error {
	if !f.running {
		f.starts++
	}
	f.running = true
	return nil
}

func (f *fakeListener) Stop() {
	if f.running {
		f.stops++
	}
	f.running = false
}

func testConfig(threshold int) *config.Config {
	cfg := config.Default()
	cfg.GameServerIP = "10.0.0.50"
	cfg.GameServerMAC = "aa:bb:cc:dd:ee:ff"
	cfg.PingIntervalSec = 1
	cfg.PingFailThreshold = threshold
	return cfg
}

func testManager(threshold int) (*Manager, *fakeClaimer, *fakeChecker, *fakeWaker, *fakeListener, *fakeListener) {
	claimer := &fakeClaimer{broadcasts: []string{"10.0.0.255"}}
	checker := &fakeChecker{err: errors.New("host is down")}
	waker := &fakeWaker{}
	mc := &fakeListener{}
	sink := &fakeListener{}

	m := newManager(testConfig(threshold), claimer, checker, waker)
	m.mc = mc
	m.sink = sink
	return m, claimer, checker, waker, mc, sink
}

func TestInitToOnline(t *testing.T) {
	m, claimer, checker, _, mc, sink := testManager(3)
	checker.err = nil

	m.step(context.Background())

	assert.Equal(t, StateOnline, m.State())
	assert.False(t, claimer.Claimed())
	assert.Zero(t, mc.starts)
	assert.Zero(t, sink.starts)
}

func TestFailureThreshold(t *testing.T) {
	for _, threshold := range []int{1, 2, 5, 10} {
		t.Run(fmt.Sprintf("T=%d", threshold), func(t *testing.T) {
			m, claimer, checker, _, mc, sink := testManager(threshold)
			ctx := context.Background()

			// T-1 failures must not flip the state.
			for i := 0; i < threshold-1; i++ {
				m.step(ctx)
				assert.Equal(t, StateInit, m.State(), "after %d failures", i+1)
			}
			assert.False(t, claimer.Claimed())

			// The T-th failure enters OFFLINE: address claimed, both
			// listeners running.
			m.step(ctx)
			assert.Equal(t, StateOffline, m.State())
			assert.True(t, claimer.Claimed())
			assert.Equal(t, 1, mc.starts)
			assert.Equal(t, 1, sink.starts)

			// A success resets the failure counter and goes back online.
			checker.err = nil
			m.step(ctx)
			assert.Equal(t, StateOnline, m.State())
			m.mu.Lock()
			assert.Zero(t, m.failCount)
			m.mu.Unlock()
			assert.False(t, claimer.Claimed())
		})
	}
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	m, _, checker, _, _, _ := testManager(5)
	ctx := context.Background()

	checker.err = nil
	m.step(ctx)
	require.Equal(t, StateOnline, m.State())

	// Four failures, then a success: counter back at zero, state unchanged.
	checker.err = errors.New("host is down")
	for i := 0; i < 4; i++ {
		m.step(ctx)
	}
	assert.Equal(t, StateOnline, m.State())

	checker.err = nil
	m.step(ctx)
	assert.Equal(t, StateOnline, m.State())
	m.mu.Lock()
	assert.Zero(t, m.failCount)
	m.mu.Unlock()

	// The outage counting starts over after the reset.
	checker.err = errors.New("host is down")
	for i := 0; i < 4; i++ {
		m.step(ctx)
		assert.Equal(t, StateOnline, m.State(), "after %d failures", i+1)
	}
	m.step(ctx)
	assert.Equal(t, StateOffline, m.State())
}

func TestClaimFailureIsRetried(t *testing.T) {
	m, claimer, _, _, mc, _ := testManager(1)
	claimer.claimErr = errors.New("operation not permitted")
	ctx := context.Background()

	m.step(ctx)
	assert.Equal(t, StateInit, m.State(), "claim failed, state must not advance")
	assert.Zero(t, mc.starts)

	claimer.claimErr = nil
	m.step(ctx)
	assert.Equal(t, StateOffline, m.State())
	assert.Equal(t, 1, mc.starts)
}

func TestWakeFlow(t *testing.T) {
	m, claimer, _, waker, mc, sink := testManager(1)
	ctx := context.Background()

	m.step(ctx)
	require.Equal(t, StateOffline, m.State())

	m.handleWake(ctx, WakeEvent{Source: "minecraft", Reason: "login from 10.0.0.7:51234"})

	assert.Equal(t, StateStarting, m.State())
	require.Len(t, waker.macs, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", waker.macs[0])
	assert.Equal(t, []string{"10.0.0.255", "255.255.255.255"}, waker.addrs[0],
		"limited broadcast is appended as a fallback")

	// Listeners stopped and address released, so the booting server can
	// claim its own address.
	assert.False(t, mc.running)
	assert.False(t, sink.running)
	assert.False(t, claimer.Claimed())
	assert.Equal(t, 1, claimer.releases)
}

func TestWakeOncePerOutage(t *testing.T) {
	m, _, _, waker, _, _ := testManager(1)
	ctx := context.Background()

	m.step(ctx)
	require.Equal(t, StateOffline, m.State())

	m.handleWake(ctx, WakeEvent{Source: "minecraft", Reason: "first"})
	m.handleWake(ctx, WakeEvent{Source: "minecraft", Reason: "second"})
	m.handleWake(ctx, WakeEvent{Source: "presence", Reason: "lingering datagram"})

	assert.Len(t, waker.macs, 1, "exactly one wake per OFFLINE->STARTING transition")
	assert.Equal(t, StateStarting, m.State())
}

func TestWakeIgnoredWhenNotOffline(t *testing.T) {
	m, _, checker, waker, _, _ := testManager(1)
	ctx := context.Background()

	m.handleWake(ctx, WakeEvent{Source: "presence", Reason: "too early"})
	assert.Empty(t, waker.macs, "no wake in INIT")

	checker.err = nil
	m.step(ctx)
	require.Equal(t, StateOnline, m.State())

	m.handleWake(ctx, WakeEvent{Source: "presence", Reason: "server already up"})
	assert.Empty(t, waker.macs, "no wake in ONLINE")
}

func TestStartingToOnline(t *testing.T) {
	m, _, checker, _, _, _ := testManager(1)
	ctx := context.Background()

	m.step(ctx)
	m.handleWake(ctx, WakeEvent{Source: "minecraft", Reason: "login"})
	require.Equal(t, StateStarting, m.State())

	// Probe failures while STARTING keep waiting for the boot.
	m.step(ctx)
	assert.Equal(t, StateStarting, m.State())

	checker.err = nil
	m.step(ctx)
	assert.Equal(t, StateOnline, m.State())
}

func TestMotdFollowsLifecycle(t *testing.T) {
	m, _, checker, _, _, _ := testManager(1)
	ctx := context.Background()

	m.step(ctx)
	require.Equal(t, StateOffline, m.State())

	status := m.statusFor(765)
	assert.Equal(t, 765, status.Version.Protocol, "protocol echoes the client")
	assert.Equal(t, m.cfg.MCMotdIdle, status.Description.Text)

	m.handleWake(ctx, WakeEvent{Source: "minecraft", Reason: "login"})
	status = m.statusFor(340)
	assert.Equal(t, 340, status.Version.Protocol)
	assert.Equal(t, m.cfg.MCMotdStarting, status.Description.Text)

	// Back online, back to the idle MOTD.
	checker.err = nil
	m.step(ctx)
	status = m.statusFor(765)
	assert.Equal(t, m.cfg.MCMotdIdle, status.Description.Text)
}

func TestEnqueueNeverBlocks(t *testing.T) {
	m, _, _, _, _, _ := testManager(1)

	for i := 0; i < cap(m.events)+8; i++ {
		m.enqueue(WakeEvent{Source: "presence", Reason: "flood"})
	}
	assert.Len(t, m.events, cap(m.events), "overflow events are dropped")
}

func TestSnapshot(t *testing.T) {
	m, _, _, _, _, _ := testManager(2)
	ctx := context.Background()

	snap := m.Snapshot()
	assert.Equal(t, "INIT", snap.State)
	assert.False(t, snap.Claimed)
	assert.Equal(t, m.cfg.MCMotdIdle, snap.Motd)

	m.step(ctx)
	snap = m.Snapshot()
	assert.Equal(t, 1, snap.FailCount)

	m.step(ctx)
	snap = m.Snapshot()
	assert.Equal(t, "OFFLINE", snap.State)
	assert.True(t, snap.Claimed)
}
