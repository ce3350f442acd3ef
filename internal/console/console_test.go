package console

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MaxxisHub/game-server-wol/internal/config"
	"github.com/MaxxisHub/game-server-wol/internal/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConsole(t *testing.T) *Console {
	t.Helper()
	cfg := config.Default()
	cfg.GameServerIP = "10.0.0.50"
	cfg.GameServerMAC = "aa:bb:cc:dd:ee:ff"
	return NewConsole("127.0.0.1:0", proxy.NewManager(cfg))
}

func TestHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(testConsole(t).HttpRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/_health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "INIT", body["state"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(testConsole(t).HttpRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/_metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	srv := httptest.NewServer(testConsole(t).HttpRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snap proxy.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "INIT", snap.State)
	assert.False(t, snap.Claimed)
	assert.Equal(t, config.Default().MCMotdIdle, snap.Motd)
}
