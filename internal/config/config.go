// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/spf13/viper"

	"github.com/helioslabs/swcore/internal/log"
)

// GlobalConfig is the top-level static configuration. Maps to the
// `swcore:` root key in YAML.
type GlobalConfig struct {
	Switch  SwitchConfig     `mapstructure:"switch"`
	Vlan    VlanConfig       `mapstructure:"vlan"`
	Route   RouteConfig      `mapstructure:"route"`
	Ptp     PtpConfig        `mapstructure:"ptp"`
	Capture CaptureConfig    `mapstructure:"capture"`
	Metrics MetricsConfig    `mapstructure:"metrics"`
	Log     log.LoggerConfig `mapstructure:"log"`
}

// SwitchConfig describes the switch core and its ports.
type SwitchConfig struct {
	PoolBytes     int          `mapstructure:"pool_bytes"`
	CacheSize     int          `mapstructure:"cache_size"`
	TrafficFilter uint16       `mapstructure:"traffic_filter"` // EtherType, 0 counts all
	MissBroadcast bool         `mapstructure:"miss_broadcast"`
	Ports         []PortConfig `mapstructure:"ports"`
}

// PortConfig describes one switch port.
type PortConfig struct {
	Name        string `mapstructure:"name"`
	Enabled     bool   `mapstructure:"enabled"`
	Promiscuous bool   `mapstructure:"promiscuous"`
	Policy      string `mapstructure:"policy"` // admit_all | restrict | priority | mandatory
	VID         uint16 `mapstructure:"vid"`
	PCP         uint8  `mapstructure:"pcp"`
}

// VlanConfig describes VLAN membership and rate limiting.
type VlanConfig struct {
	Locked bool               `mapstructure:"locked"`
	Vlans  []VlanEntryConfig  `mapstructure:"vlans"`
}

// VlanEntryConfig is one VLAN's membership and optional token bucket.
type VlanEntryConfig struct {
	VID   uint16     `mapstructure:"vid"`
	Ports []int      `mapstructure:"ports"`
	Rate  RateConfig `mapstructure:"rate"`
}

// RateConfig is a token-bucket setting.
type RateConfig struct {
	Policy     string `mapstructure:"policy"` // unlimited | strict | demote | auto
	RateBits   uint64 `mapstructure:"rate_bits"`
	BurstBytes uint64 `mapstructure:"burst_bytes"`
}

// RouteConfig describes the IPv4 forwarding table.
type RouteConfig struct {
	TableSize      int                 `mapstructure:"table_size"`
	Lockdown       bool                `mapstructure:"lockdown"`
	DefaultGateway string              `mapstructure:"default_gateway"`
	Static         []StaticRouteConfig `mapstructure:"static"`
}

// StaticRouteConfig is one static route.
type StaticRouteConfig struct {
	Subnet  string `mapstructure:"subnet"`
	Gateway string `mapstructure:"gateway"`
	MAC     string `mapstructure:"mac"`
	Port    uint8  `mapstructure:"port"`
}

// PtpConfig describes the time-tracking control loop.
type PtpConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Controller  string  `mapstructure:"controller"` // pi | pii | lr
	TauSecs     float64 `mapstructure:"tau_secs"`
	Damping     float64 `mapstructure:"damping"`
	RefScale    float64 `mapstructure:"ref_scale"`
	MedianOrder int     `mapstructure:"median_order"` // 0 disables
	BoxcarOrder int     `mapstructure:"boxcar_order"` // 0 disables
	Window      int     `mapstructure:"window"`       // lr only
	Dither      bool    `mapstructure:"dither"`
}

// CaptureConfig describes the optional pcap tap on the forwarding path.
type CaptureConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig describes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// configRoot is the top-level wrapper matching the YAML structure.
type configRoot struct {
	Swcore GlobalConfig `mapstructure:"swcore"`
}

// Load loads configuration from file. The YAML file uses `swcore:` as
// root key; env vars override via the key replacer (e.g. the key
// "swcore.log.level" maps to SWCORE_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Swcore
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("swcore.switch.pool_bytes", 262144)
	v.SetDefault("swcore.switch.cache_size", 64)
	v.SetDefault("swcore.switch.miss_broadcast", true)

	v.SetDefault("swcore.route.table_size", 8)

	v.SetDefault("swcore.ptp.controller", "pi")
	v.SetDefault("swcore.ptp.tau_secs", 5.0)
	v.SetDefault("swcore.ptp.damping", 0.707)
	v.SetDefault("swcore.ptp.window", 8)
	v.SetDefault("swcore.ptp.dither", true)

	v.SetDefault("swcore.metrics.enabled", true)
	v.SetDefault("swcore.metrics.listen", ":9091")
	v.SetDefault("swcore.metrics.path", "/metrics")

	v.SetDefault("swcore.log.level", "info")
	v.SetDefault("swcore.log.pattern", "%time [%level] %msg\n")
	v.SetDefault("swcore.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("swcore.log.appender", "console")
}

var tagPolicies = map[string]bool{
	"": true, "admit_all": true, "restrict": true,
	"priority": true, "mandatory": true,
}

var ratePolicies = map[string]bool{
	"": true, "unlimited": true, "strict": true, "demote": true, "auto": true,
}

var ptpControllers = map[string]bool{
	"pi": true, "pii": true, "lr": true,
}

// Validate checks syntactic consistency of the loaded configuration.
func (c *GlobalConfig) Validate() error {
	if c.Switch.PoolBytes <= 0 {
		return fmt.Errorf("switch.pool_bytes must be positive")
	}
	if len(c.Switch.Ports) > 32 {
		return fmt.Errorf("at most 32 ports, got %d", len(c.Switch.Ports))
	}
	for i, p := range c.Switch.Ports {
		if !tagPolicies[p.Policy] {
			return fmt.Errorf("port %d: unknown policy %q", i, p.Policy)
		}
		if p.VID > 4094 {
			return fmt.Errorf("port %d: vid %d out of range", i, p.VID)
		}
		if p.PCP > 7 {
			return fmt.Errorf("port %d: pcp %d out of range", i, p.PCP)
		}
	}
	for _, ve := range c.Vlan.Vlans {
		if ve.VID == 0 || ve.VID > 4094 {
			return fmt.Errorf("vlan %d: vid out of range", ve.VID)
		}
		if !ratePolicies[ve.Rate.Policy] {
			return fmt.Errorf("vlan %d: unknown rate policy %q", ve.VID, ve.Rate.Policy)
		}
		for _, port := range ve.Ports {
			if port < 0 || port >= 32 {
				return fmt.Errorf("vlan %d: port %d out of range", ve.VID, port)
			}
		}
	}
	if c.Route.DefaultGateway != "" {
		if _, err := netip.ParseAddr(c.Route.DefaultGateway); err != nil {
			return fmt.Errorf("route.default_gateway: %w", err)
		}
	}
	for _, r := range c.Route.Static {
		if _, err := netip.ParsePrefix(r.Subnet); err != nil {
			return fmt.Errorf("route %q: %w", r.Subnet, err)
		}
		if r.Gateway != "local" && r.Gateway != "" {
			if _, err := netip.ParseAddr(r.Gateway); err != nil {
				return fmt.Errorf("route %q gateway: %w", r.Subnet, err)
			}
		}
	}
	if c.Ptp.Enabled {
		if !ptpControllers[c.Ptp.Controller] {
			return fmt.Errorf("ptp.controller: unknown controller %q", c.Ptp.Controller)
		}
		if c.Ptp.TauSecs <= 0 {
			return fmt.Errorf("ptp.tau_secs must be positive")
		}
		if c.Ptp.RefScale <= 0 {
			return fmt.Errorf("ptp.ref_scale must be positive")
		}
		if c.Ptp.Controller == "lr" && c.Ptp.Window < 2 {
			return fmt.Errorf("ptp.window must be at least 2")
		}
	}
	if c.Capture.Enabled && c.Capture.Path == "" {
		return fmt.Errorf("capture.path required when capture is enabled")
	}
	return nil
}
