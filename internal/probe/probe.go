// Package probe answers the single question the control loop keeps asking:
// is the real game server reachable right now?
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/MaxxisHub/game-server-wol/internal/sysexec"
	"github.com/cenkalti/backoff/v4"
)

const DefaultTimeout = 3 * time.Second

// Checker reports nil when the target host is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

var _ Checker = (*PingChecker)(nil)

// PingChecker probes the host with the system ping binary. Running through
// ping avoids raw-socket privileges the daemon may not hold for ICMP.
type PingChecker struct {
	Host    string
	Timeout time.Duration
	Runner  sysexec.Runner
}

func (c *PingChecker) Check(ctx context.Context) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := int(timeout.Round(time.Second) / time.Second)
	if deadline < 1 {
		deadline = 1
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	res, err := c.Runner.Run(ctx, "ping", "-c", "1", "-w", fmt.Sprint(deadline), c.Host)
	if err != nil {
		return fmt.Errorf("probe: ping %s: %w", c.Host, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("probe: host %s is unreachable: %s", c.Host, strings.TrimSpace(res.Stderr))
	}
	return nil
}

var _ Checker = (*TCPChecker)(nil)

// TCPChecker dials the game port. Useful when ICMP is filtered between the
// daemon and the game server.
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

func (c *TCPChecker) Check(ctx context.Context) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

// RetryUntil re-runs the checker with exponential backoff until it succeeds
// or maxElapsedTime passes.
func RetryUntil(ctx context.Context, checker Checker, maxElapsedTime time.Duration) error {
	exponentialBackOff := backoff.NewExponentialBackOff()
	exponentialBackOff.MaxElapsedTime = maxElapsedTime

	return backoff.RetryNotify(
		func() error { return checker.Check(ctx) },
		backoff.WithContext(exponentialBackOff, ctx),
		func(err error, duration time.Duration) {
			slog.Warn("Host is not up yet, retrying",
				"duration", duration.String(),
				"error", err)
		},
	)
}
