// Package wol builds and sends Wake-on-LAN magic packets.
package wol

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"syscall"

	"github.com/MaxxisHub/game-server-wol/internal/app/logger/logging"
	"github.com/scylladb/go-set/strset"
	"golang.org/x/sys/unix"
)

// DefaultPort is the conventional discard-port used for WOL datagrams.
const DefaultPort = 9

// NormalizeMAC canonicalizes a hardware address to six lower-case
// colon-separated hex octets. Hyphen separators are accepted.
func NormalizeMAC(mac string) (net.HardwareAddr, error) {
	normalized := strings.ToLower(strings.ReplaceAll(mac, "-", ":"))
	parts := strings.Split(normalized, ":")
	if len(parts) != 6 {
		return nil, fmt.Errorf("wol: invalid MAC address: %q", mac)
	}
	hw := make(net.HardwareAddr, 0, 6)
	for _, part := range parts {
		if len(part) != 2 {
			return nil, fmt.Errorf("wol: invalid MAC address: %q", mac)
		}
		b, err := hex.DecodeString(part)
		if err != nil {
			return nil, fmt.Errorf("wol: invalid MAC address: %q", mac)
		}
		hw = append(hw, b[0])
	}
	return hw, nil
}

// MagicPacket returns the 102-byte payload: six 0xFF bytes followed by the
// hardware address repeated sixteen times.
func MagicPacket(hw net.HardwareAddr) []byte {
	pkt := make([]byte, 0, 102)
	for i := 0; i < 6; i++ {
		pkt = append(pkt, 0xFF)
	}
	for i := 0; i < 16; i++ {
		pkt = append(pkt, hw...)
	}
	return pkt
}

// Sender sends magic packets to a set of broadcast domains.
type Sender struct {
	Port int

	logger *slog.Logger

	// dial is swapped out in tests.
	dial func(addr string) (net.Conn, error)
}

func NewSender(port int) *Sender {
	if port == 0 {
		port = DefaultPort
	}
	return &Sender{
		Port:   port,
		logger: slog.With("component", "wol"),
		dial:   dialBroadcast,
	}
}

// Wake sends one magic packet per broadcast address. The address list is
// deduplicated preserving order. An invalid MAC fails before any packet is
// sent; a failed send on one address does not stop the remaining ones, and
// an error is returned only when every send failed.
func (s *Sender) Wake(mac string, broadcasts []string) error {
	hw, err := NormalizeMAC(mac)
	if err != nil {
		return err
	}
	pkt := MagicPacket(hw)

	var sent int
	var lastErr error
	seen := strset.New()
	for _, addr := range broadcasts {
		if addr == "" || seen.Has(addr) {
			continue
		}
		seen.Add(addr)

		if err := s.sendTo(addr, pkt); err != nil {
			s.logger.Warn("Failed to send magic packet", logging.Peer(addr), logging.Error(err))
			lastErr = err
			continue
		}
		sent++
		s.logger.Info("Magic packet sent",
			slog.String("mac", hw.String()),
			logging.Peer(net.JoinHostPort(addr, strconv.Itoa(s.Port))))
	}

	if sent == 0 && lastErr != nil {
		return fmt.Errorf("wol: all sends failed: %w", lastErr)
	}
	return nil
}

func (s *Sender) sendTo(addr string, pkt []byte) error {
	conn, err := s.dial(net.JoinHostPort(addr, strconv.Itoa(s.Port)))
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write(pkt); err != nil {
		return err
	}
	return nil
}

// dialBroadcast opens a UDP socket with SO_BROADCAST set, so that directed
// and limited broadcast destinations are accepted by the kernel.
func dialBroadcast(addr string) (net.Conn, error) {
	dialer := net.Dialer{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
	return dialer.Dial("udp4", addr)
}
