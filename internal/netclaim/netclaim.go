// Package netclaim owns the takeover and handover of the game server's IP
// address. While the real server sleeps, the daemon adds the address as a
// secondary on the interface that routes to it and announces the takeover
// with gratuitous ARP; when the server boots, the address is released again.
package netclaim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MaxxisHub/game-server-wol/internal/app/logger/logging"
	"github.com/MaxxisHub/game-server-wol/internal/sysexec"
)

// ErrDetection marks failures to resolve the interface or prefix length for
// the target address. Claim attempts wrapping it are retried by the control
// loop instead of crashing the daemon.
var ErrDetection = errors.New("detection failed")

var (
	routeDevPattern   = regexp.MustCompile(`dev\s+(\S+)`)
	ifaceAddrPattern  = regexp.MustCompile(`inet\s+(\S+)/(\d+)`)
	broadcastsPattern = regexp.MustCompile(`brd\s+(\S+)`)
)

// Manager claims and releases the target address on the detected interface.
// All methods are safe for concurrent use; Claim and Release are mutually
// exclusive for the same target.
type Manager struct {
	targetIP string

	// configuredPrefix overrides the detected prefix length when non-zero.
	configuredPrefix int

	runner sysexec.Runner
	logger *slog.Logger

	mu         sync.Mutex
	iface      string
	prefix     int
	broadcasts []string
	claimed    bool
}

func NewManager(targetIP string, prefixLen int, runner sysexec.Runner) *Manager {
	return &Manager{
		targetIP:         targetIP,
		configuredPrefix: prefixLen,
		runner:           runner,
		logger:           slog.With("component", "netclaim", logging.TargetIP(targetIP)),
	}
}

// Detect resolves the outbound interface and subnet prefix for the target
// address from the routing table. The result is cached; the interface is
// assumed stable for the process lifetime.
func (m *Manager) Detect(ctx context.Context) (iface string, prefix int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.detectLocked(ctx); err != nil {
		return "", 0, err
	}
	return m.iface, m.prefix, nil
}

func (m *Manager) detectLocked(ctx context.Context) error {
	if m.iface != "" {
		return nil
	}

	res, err := m.runner.Run(ctx, "ip", "route", "get", m.targetIP)
	if err != nil {
		return fmt.Errorf("netclaim: %w: route lookup: %w", ErrDetection, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("netclaim: %w: ip route get exited %d: %s", ErrDetection, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	match := routeDevPattern.FindStringSubmatch(res.Stdout)
	if match == nil {
		return fmt.Errorf("netclaim: %w: no interface in route output: %q", ErrDetection, res.Stdout)
	}
	iface := match[1]

	res, err = m.runner.Run(ctx, "ip", "-o", "-f", "inet", "addr", "show", "dev", iface)
	if err != nil {
		return fmt.Errorf("netclaim: %w: address listing: %w", ErrDetection, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("netclaim: %w: ip addr show exited %d: %s", ErrDetection, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	addrMatch := ifaceAddrPattern.FindStringSubmatch(res.Stdout)
	if addrMatch == nil {
		return fmt.Errorf("netclaim: %w: no inet address on %s: %q", ErrDetection, iface, res.Stdout)
	}

	prefix := m.configuredPrefix
	if prefix == 0 {
		detected, err := strconv.Atoi(addrMatch[2])
		if err != nil {
			return fmt.Errorf("netclaim: %w: bad prefix length %q", ErrDetection, addrMatch[2])
		}
		prefix = detected
	}

	if ifaceIP := addrMatch[1]; !SameSubnet(m.targetIP, ifaceIP, prefix) {
		m.logger.Warn("Target address is outside the interface subnet",
			logging.Iface(iface),
			slog.String("ifaceIp", ifaceIP),
			slog.Int("prefixLen", prefix))
	}

	var broadcasts []string
	for _, brd := range broadcastsPattern.FindAllStringSubmatch(res.Stdout, -1) {
		broadcasts = append(broadcasts, brd[1])
	}

	m.iface = iface
	m.prefix = prefix
	m.broadcasts = broadcasts
	m.logger.Info("Detected network binding",
		logging.Iface(iface),
		slog.Int("prefixLen", prefix),
		slog.Any("broadcasts", broadcasts))
	return nil
}

// Claim adds the target address as a secondary address on the detected
// interface and announces it with two gratuitous ARP broadcasts. Claiming an
// already claimed address is a no-op; an "address already present" failure
// from the add command counts as success.
func (m *Manager) Claim(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.claimed {
		return nil
	}
	if err := m.detectLocked(ctx); err != nil {
		return err
	}

	cidr := fmt.Sprintf("%s/%d", m.targetIP, m.prefix)
	res, err := m.runner.Run(ctx, "ip", "addr", "add", cidr, "dev", m.iface)
	if err != nil {
		return fmt.Errorf("netclaim: claim %s: %w", cidr, err)
	}
	if res.ExitCode != 0 && !strings.Contains(res.Stderr, "File exists") {
		return fmt.Errorf("netclaim: claim %s on %s: %s", cidr, m.iface, strings.TrimSpace(res.Stderr))
	}

	// Two spaced announcements so that neighbours refresh their ARP caches
	// even if the first datagram is lost. Best-effort.
	for i := 0; i < 2; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(300 * time.Millisecond):
			}
			if ctx.Err() != nil {
				break
			}
		}
		if res, err := m.runner.Run(ctx, "arping", "-U", "-I", m.iface, "-c", "1", m.targetIP); err != nil || res.ExitCode != 0 {
			m.logger.Debug("Gratuitous ARP failed", logging.Iface(m.iface), logging.Error(err))
		}
	}

	m.claimed = true
	m.logger.Info("Claimed address", slog.String("cidr", cidr), logging.Iface(m.iface))
	return nil
}

// Release removes the secondary address. Releasing an unclaimed address is a
// no-op; "address not present" and "interface gone" failures are downgraded
// because the address is already effectively released.
func (m *Manager) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.claimed {
		return nil
	}

	cidr := fmt.Sprintf("%s/%d", m.targetIP, m.prefix)
	res, err := m.runner.Run(ctx, "ip", "addr", "del", cidr, "dev", m.iface)
	if err != nil {
		m.claimed = false
		return fmt.Errorf("netclaim: release %s: %w", cidr, err)
	}
	if res.ExitCode != 0 {
		if strings.Contains(res.Stderr, "Cannot assign requested address") ||
			strings.Contains(res.Stderr, "Cannot find device") {
			m.logger.Warn("Address was already gone on release",
				slog.String("cidr", cidr),
				slog.String("stderr", strings.TrimSpace(res.Stderr)))
		} else {
			m.claimed = false
			return fmt.Errorf("netclaim: release %s on %s: %s", cidr, m.iface, strings.TrimSpace(res.Stderr))
		}
	}

	m.claimed = false
	m.logger.Info("Released address", slog.String("cidr", cidr), logging.Iface(m.iface))
	return nil
}

// Claimed reports whether the target address is currently held.
func (m *Manager) Claimed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimed
}

// Broadcasts returns the interface-reported broadcast addresses, falling back
// to the arithmetic subnet broadcast for the target address. The limited
// broadcast 255.255.255.255 is deliberately not included here; the caller
// appends it when waking.
func (m *Manager) Broadcasts(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.detectLocked(ctx); err != nil {
		return nil, err
	}
	if len(m.broadcasts) > 0 {
		return append([]string(nil), m.broadcasts...), nil
	}

	brd, err := SubnetBroadcast(m.targetIP, m.prefix)
	if err != nil {
		return nil, err
	}
	return []string{brd}, nil
}
