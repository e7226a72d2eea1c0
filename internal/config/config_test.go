package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
swcore:
  switch:
    pool_bytes: 131072
    cache_size: 32
    traffic_filter: 0x88F7
    ports:
      - name: uplink
        enabled: true
        policy: mandatory
        vid: 10
        pcp: 5
      - name: access
        enabled: true
        policy: admit_all
  vlan:
    locked: true
    vlans:
      - vid: 10
        ports: [0, 1]
        rate:
          policy: strict
          rate_bits: 1000000
          burst_bytes: 4096
  route:
    default_gateway: 192.168.1.1
    static:
      - subnet: 192.168.1.0/24
        gateway: local
  ptp:
    enabled: true
    controller: pi
    tau_secs: 5.0
    ref_scale: 1.14e-10
  log:
    level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 131072, cfg.Switch.PoolBytes)
	assert.Equal(t, 32, cfg.Switch.CacheSize)
	assert.EqualValues(t, 0x88F7, cfg.Switch.TrafficFilter)
	require.Len(t, cfg.Switch.Ports, 2)
	assert.Equal(t, "mandatory", cfg.Switch.Ports[0].Policy)
	assert.EqualValues(t, 10, cfg.Switch.Ports[0].VID)

	assert.True(t, cfg.Vlan.Locked)
	require.Len(t, cfg.Vlan.Vlans, 1)
	assert.Equal(t, "strict", cfg.Vlan.Vlans[0].Rate.Policy)

	assert.Equal(t, "192.168.1.1", cfg.Route.DefaultGateway)
	assert.True(t, cfg.Ptp.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "swcore: {}\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 262144, cfg.Switch.PoolBytes)
	assert.Equal(t, 64, cfg.Switch.CacheSize)
	assert.Equal(t, 8, cfg.Route.TableSize)
	assert.Equal(t, "pi", cfg.Ptp.Controller)
	assert.InDelta(t, 5.0, cfg.Ptp.TauSecs, 1e-9)
	assert.Equal(t, ":9091", cfg.Metrics.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/swcore.yaml")
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad policy", `
swcore:
  switch:
    ports:
      - name: p0
        policy: sideways
`},
		{"vid range", `
swcore:
  switch:
    ports:
      - name: p0
        vid: 5000
`},
		{"too many ports", tooManyPorts()},
		{"bad rate policy", `
swcore:
  vlan:
    vlans:
      - vid: 10
        rate:
          policy: maybe
`},
		{"vlan port range", `
swcore:
  vlan:
    vlans:
      - vid: 10
        ports: [40]
`},
		{"bad gateway", `
swcore:
  route:
    default_gateway: not-an-ip
`},
		{"bad subnet", `
swcore:
  route:
    static:
      - subnet: 192.168.1.0
`},
		{"bad controller", `
swcore:
  ptp:
    enabled: true
    controller: pid
    ref_scale: 1e-10
`},
		{"missing ref_scale", `
swcore:
  ptp:
    enabled: true
`},
		{"capture without path", `
swcore:
  capture:
    enabled: true
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func tooManyPorts() string {
	body := "swcore:\n  switch:\n    ports:\n"
	for i := 0; i < 33; i++ {
		body += "      - name: p\n"
	}
	return body
}
