// Package mcping pretends to be a Minecraft server just long enough to
// answer a server-list ping or to notice a join attempt. It implements the
// handshake, status and login subsets of the Java protocol and nothing else.
package mcping

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/MaxxisHub/game-server-wol/internal/app/logger/logging"
	"github.com/MaxxisHub/game-server-wol/internal/mcping/packet"
	"github.com/MaxxisHub/game-server-wol/internal/metrics"
	"github.com/google/uuid"
)

const (
	packetIDHandshake  = 0x00
	packetIDStatusReq  = 0x00
	packetIDStatusResp = 0x00
	packetIDPing       = 0x01
	packetIDLoginStart = 0x00
	packetIDDisconnect = 0x00

	nextStateStatus = 1
	nextStateLogin  = 2

	readTimeout = 5 * time.Second
)

// Listener answers Minecraft server-list pings on the claimed address and
// reports login attempts through the onLogin callback. At most one listening
// socket exists per Listener; Start on a running listener is a no-op.
type Listener struct {
	addr              string
	disconnectMessage string
	status            StatusProvider
	onLogin           func(reason string)
	logger            *slog.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewListener(addr string, status StatusProvider, disconnectMessage string, onLogin func(reason string)) *Listener {
	return &Listener{
		addr:              addr,
		disconnectMessage: disconnectMessage,
		status:            status,
		onLogin:           onLogin,
		logger:            slog.With("component", "mcping", slog.String("addr", addr)),
		conns:             map[net.Conn]struct{}{},
	}
}

// Start binds the TCP socket and begins accepting connections.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp4", l.addr)
	if err != nil {
		return fmt.Errorf("mcping: could not listen on %s: %w", l.addr, err)
	}
	l.ln = ln

	l.wg.Add(1)
	go l.acceptLoop(ln)

	l.logger.Info("Minecraft listener started")
	return nil
}

// Stop closes the listening socket and abruptly closes in-flight
// connections. The socket is unbound before Stop returns, so the real server
// can bind the same address immediately afterwards.
func (l *Listener) Stop() {
	l.mu.Lock()
	ln := l.ln
	l.ln = nil
	for conn := range l.conns {
		_ = conn.Close()
	}
	l.mu.Unlock()

	if ln == nil {
		return
	}
	if err := ln.Close(); err != nil {
		l.logger.Warn("Could not close listener", logging.Error(err))
	}
	l.wg.Wait()
	l.logger.Info("Minecraft listener stopped")
}

// Addr returns the bound address, or nil when the listener is stopped.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *Listener) acceptLoop(ln net.Listener) {
	defer l.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("Error when accepting incoming connection", logging.Error(err))
			continue
		}
		metrics.MinecraftConnections.Inc()

		l.mu.Lock()
		l.conns[conn] = struct{}{}
		l.mu.Unlock()

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer func() {
				l.mu.Lock()
				delete(l.conns, conn)
				l.mu.Unlock()
				_ = conn.Close()
			}()

			if err := l.handleConn(conn); err != nil {
				l.logger.Debug("Client session ended with error",
					logging.Peer(conn.RemoteAddr().String()),
					logging.Error(err))
			}
		}()
	}
}

// handleConn drives one connection through handshake and then either the
// status or the login flow. Any protocol violation aborts only this
// connection.
func (l *Listener) handleConn(conn net.Conn) error {
	session := uuid.New().String()
	logger := l.logger.With(slog.String("session", session), logging.Peer(conn.RemoteAddr().String()))

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	frame, err := packet.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("handshake read: %w", err)
	}

	rd := packet.NewReader(frame)
	packetID, err := rd.ReadVarint()
	if err != nil {
		return fmt.Errorf("handshake packet id: %w", err)
	}
	if packetID != packetIDHandshake {
		return fmt.Errorf("unexpected first packet id: 0x%02x", packetID)
	}
	clientProtocol, err := rd.ReadVarint()
	if err != nil {
		return fmt.Errorf("protocol version: %w", err)
	}
	if _, err := rd.ReadString(); err != nil {
		return fmt.Errorf("server address: %w", err)
	}
	if _, err := rd.ReadUint16(); err != nil {
		return fmt.Errorf("server port: %w", err)
	}
	nextState, err := rd.ReadVarint()
	if err != nil {
		return fmt.Errorf("next state: %w", err)
	}

	switch nextState {
	case nextStateStatus:
		return l.handleStatus(conn, logger, int(clientProtocol))
	case nextStateLogin:
		return l.handleLogin(conn, logger)
	default:
		logger.Debug("Unknown next state, closing", slog.Uint64("nextState", uint64(nextState)))
		return nil
	}
}

func (l *Listener) handleStatus(conn net.Conn, logger *slog.Logger, clientProtocol int) error {
	// Status request. The payload is irrelevant, it only paces the flow.
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	if _, err := packet.ReadFrame(conn); err != nil {
		return fmt.Errorf("status request: %w", err)
	}

	body, err := json.Marshal(l.status(clientProtocol))
	if err != nil {
		return fmt.Errorf("status document: %w", err)
	}
	payload := packet.AppendVarint(nil, packetIDStatusResp)
	payload = packet.AppendString(payload, string(body))
	if err := packet.WriteFrame(conn, payload); err != nil {
		return fmt.Errorf("status response: %w", err)
	}
	logger.Debug("Answered status request", slog.Int("clientProtocol", clientProtocol))

	// Optional ping. Clients may close right after the status response, so
	// a short read here is not an error.
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	ping, err := packet.ReadFrame(conn)
	if err != nil {
		return nil
	}
	if len(ping) >= 9 && ping[0] == packetIDPing {
		if err := packet.WriteFrame(conn, ping); err != nil {
			return fmt.Errorf("pong: %w", err)
		}
	}
	return nil
}

func (l *Listener) handleLogin(conn net.Conn, logger *slog.Logger) error {
	// Login start. The username inside is ignored; reading the frame only
	// keeps the client happy until the disconnect packet lands.
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	if _, err := packet.ReadFrame(conn); err != nil {
		logger.Debug("Login start was not readable", logging.Error(err))
	}

	logger.Info("Join attempt, triggering wake")
	l.onLogin(fmt.Sprintf("login from %s", conn.RemoteAddr()))

	body, err := json.Marshal(Description{Text: l.disconnectMessage})
	if err != nil {
		return fmt.Errorf("disconnect document: %w", err)
	}
	payload := packet.AppendVarint(nil, packetIDDisconnect)
	payload = packet.AppendString(payload, string(body))
	if err := packet.WriteFrame(conn, payload); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}
