package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Fills defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"game_server_ip": "10.0.0.50",
			"game_server_mac": "aa:bb:cc:dd:ee:ff"
		}`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 25565, cfg.MCPort)
		assert.Equal(t, []int{15000, 15777, 7777}, cfg.SatisfactoryPorts)
		assert.Equal(t, 3, cfg.PingIntervalSec)
		assert.Equal(t, 10, cfg.PingFailThreshold)
		assert.Equal(t, "icmp", cfg.ProbeMethod)
		assert.Equal(t, 9, cfg.WolPort)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.GameServerIP = "192.168.1.42"
	cfg.GameServerMAC = "aa-bb-cc-dd-ee-ff"
	cfg.NetCIDR = 24
	cfg.MCMotdIdle = "Zzz"
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.GameServerIP = "10.0.0.50"
		cfg.GameServerMAC = "aa:bb:cc:dd:ee:ff"
		return cfg
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Missing IP", func(c *Config) { c.GameServerIP = "" }},
		{"IPv6 target", func(c *Config) { c.GameServerIP = "::1" }},
		{"Missing MAC", func(c *Config) { c.GameServerMAC = "" }},
		{"Malformed MAC", func(c *Config) { c.GameServerMAC = "aa:bb:cc" }},
		{"Bad prefix", func(c *Config) { c.NetCIDR = 33 }},
		{"Bad MC port", func(c *Config) { c.MCPort = 0 }},
		{"Bad presence port", func(c *Config) { c.SatisfactoryPorts = []int{70000} }},
		{"Zero interval", func(c *Config) { c.PingIntervalSec = 0 }},
		{"Zero threshold", func(c *Config) { c.PingFailThreshold = 0 }},
		{"Unknown probe method", func(c *Config) { c.ProbeMethod = "carrier-pigeon" }},
		{"Bad WOL port", func(c *Config) { c.WolPort = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWaitForFile(t *testing.T) {
	t.Run("Already present", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

		require.NoError(t, WaitForFile(context.Background(), path))
	})

	t.Run("Appears later", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")

		done := make(chan error, 1)
		go func() {
			done <- WaitForFile(context.Background(), path)
		}()

		time.Sleep(100 * time.Millisecond)
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("WaitForFile did not notice the new file")
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := WaitForFile(ctx, filepath.Join(t.TempDir(), "never.json"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
