// Package presence is a silent UDP sink. Game server browsers (Satisfactory
// and friends) probe a handful of UDP ports to discover servers; any datagram
// on those ports means somebody is looking for the sleeping machine. The sink
// never answers, it only reports that the probe happened.
package presence

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/MaxxisHub/game-server-wol/internal/app/logger/logging"
	"github.com/MaxxisHub/game-server-wol/internal/metrics"
)

// Sink binds one unconnected UDP socket per configured port on the claimed
// address. Start on a running sink is a no-op.
type Sink struct {
	bindIP  string
	ports   []int
	onProbe func(reason string)
	logger  *slog.Logger

	mu    sync.Mutex
	conns []*net.UDPConn
	wg    sync.WaitGroup
}

func NewSink(bindIP string, ports []int, onProbe func(reason string)) *Sink {
	return &Sink{
		bindIP:  bindIP,
		ports:   ports,
		onProbe: onProbe,
		logger:  slog.With("component", "presence", slog.String("bindIp", bindIP)),
	}
}

// Start binds all configured ports. A failure on any port unbinds the ones
// already opened so that a retry starts from a clean slate.
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.conns) > 0 {
		return nil
	}

	for _, port := range s.ports {
		addr := &net.UDPAddr{IP: net.ParseIP(s.bindIP), Port: port}
		conn, err := net.ListenUDP("udp4", addr)
		if err != nil {
			for _, open := range s.conns {
				_ = open.Close()
			}
			s.conns = nil
			return fmt.Errorf("presence: could not bind %s: %w", addr, err)
		}
		s.conns = append(s.conns, conn)

		s.wg.Add(1)
		go s.readLoop(conn)

		s.logger.Info("Presence sink listening", slog.Int("port", port))
	}
	return nil
}

// Stop closes every socket and waits for the read loops to exit, so the
// ports are free before Stop returns.
func (s *Sink) Stop() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	if len(conns) == 0 {
		return
	}
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			s.logger.Warn("Could not close presence socket", logging.Error(err))
		}
	}
	s.wg.Wait()
	s.logger.Info("Presence sink stopped")
}

// Addrs returns the bound addresses, empty when the sink is stopped.
func (s *Sink) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]net.Addr, 0, len(s.conns))
	for _, conn := range s.conns {
		addrs = append(addrs, conn.LocalAddr())
	}
	return addrs
}

func (s *Sink) readLoop(conn *net.UDPConn) {
	defer s.wg.Done()

	buf := make([]byte, 2048)
	for {
		n, remoteAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Failed to read datagram", logging.Error(err))
			continue
		}
		metrics.PresenceDatagrams.Inc()
		s.logger.Debug("Discovery probe received",
			logging.Peer(remoteAddr.String()),
			slog.Int("size", n))

		// Payload is deliberately ignored. Receiving at all is the signal.
		s.onProbe(fmt.Sprintf("udp probe from %s on port %d", remoteAddr, conn.LocalAddr().(*net.UDPAddr).Port))
	}
}
