// Package config loads and persists the daemon configuration. The file format
// stays compatible with the config.json written by earlier releases.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/MaxxisHub/game-server-wol/internal/wol"
)

const DefaultPath = "/opt/wol-proxy/config.json"

type Config struct {
	// GameServerIP is the address of the real (sleeping) game server. The
	// daemon claims it as a secondary address while the server is down.
	GameServerIP  string `json:"game_server_ip"`
	GameServerMAC string `json:"game_server_mac"`

	// NetCIDR is the subnet prefix length. Zero means auto-detect from the
	// interface that routes to the game server.
	NetCIDR int `json:"net_cidr"`

	MCPort              int    `json:"mc_port"`
	MCMotdIdle          string `json:"mc_motd_idle"`
	MCMotdStarting      string `json:"mc_motd_starting"`
	MCVersionLabel      string `json:"mc_version_label"`
	MCDisconnectMessage string `json:"mc_disconnect_message"`

	// SatisfactoryPorts are UDP ports watched for server-browser discovery
	// probes. Any datagram on them counts as a join attempt.
	SatisfactoryPorts []int `json:"satisfactory_ports"`

	PingIntervalSec   int `json:"ping_interval_sec"`
	PingFailThreshold int `json:"ping_fail_threshold"`

	// ProbeMethod selects how liveness is checked: "icmp" (system ping) or
	// "tcp" (dial the Minecraft port).
	ProbeMethod string `json:"probe_method"`

	WolPort int `json:"wol_port"`
}

func Default() *Config {
	return &Config{
		NetCIDR:             0,
		MCPort:              25565,
		MCMotdIdle:          "Join to start Server",
		MCMotdStarting:      "Starting...",
		MCVersionLabel:      "Offline",
		MCDisconnectMessage: "Server is starting please try again in 60 seconds",
		SatisfactoryPorts:   []int{15000, 15777, 7777},
		PingIntervalSec:     3,
		PingFailThreshold:   10,
		ProbeMethod:         "icmp",
		WolPort:             9,
	}
}

// Load reads the configuration file and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: could not read %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: could not parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: could not create directory for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: could not encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: could not write %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	ip := net.ParseIP(c.GameServerIP)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("config: invalid game_server_ip: %q", c.GameServerIP)
	}
	if _, err := wol.NormalizeMAC(c.GameServerMAC); err != nil {
		return fmt.Errorf("config: invalid game_server_mac: %q", c.GameServerMAC)
	}
	if c.NetCIDR < 0 || c.NetCIDR > 32 {
		return fmt.Errorf("config: invalid net_cidr: %d", c.NetCIDR)
	}
	if c.MCPort <= 0 || c.MCPort > 65535 {
		return fmt.Errorf("config: invalid mc_port: %d", c.MCPort)
	}
	for _, port := range c.SatisfactoryPorts {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("config: invalid satisfactory port: %d", port)
		}
	}
	if c.PingIntervalSec < 1 {
		return fmt.Errorf("config: ping_interval_sec must be at least 1, got %d", c.PingIntervalSec)
	}
	if c.PingFailThreshold < 1 {
		return fmt.Errorf("config: ping_fail_threshold must be at least 1, got %d", c.PingFailThreshold)
	}
	switch c.ProbeMethod {
	case "icmp", "tcp":
	default:
		return fmt.Errorf("config: unknown probe_method: %q", c.ProbeMethod)
	}
	if c.WolPort <= 0 || c.WolPort > 65535 {
		return fmt.Errorf("config: invalid wol_port: %d", c.WolPort)
	}
	return nil
}
