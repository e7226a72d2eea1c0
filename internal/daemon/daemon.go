// Package daemon assembles the switch core from the static
// configuration: packet pool, forwarding engine, plugin chain, routing
// table, optional capture tap and time-tracking loop. Run drives the
// egress service tick until the context is cancelled.
package daemon

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/helioslabs/swcore/internal/config"
	"github.com/helioslabs/swcore/internal/core"
	"github.com/helioslabs/swcore/internal/diag"
	"github.com/helioslabs/swcore/internal/eth"
	"github.com/helioslabs/swcore/internal/log"
	"github.com/helioslabs/swcore/internal/mbuf"
	"github.com/helioslabs/swcore/internal/metrics"
	"github.com/helioslabs/swcore/internal/ptp"
	"github.com/helioslabs/swcore/internal/route"
	"github.com/helioslabs/swcore/internal/vclock"
	"github.com/helioslabs/swcore/internal/vlan"
)

// servicePeriod is the egress drain interval.
const servicePeriod = time.Millisecond

// Daemon is the assembled switch instance.
type Daemon struct {
	cfg   *config.GlobalConfig
	clock vclock.Clock

	pool   *mbuf.Pool
	sw     *eth.Switch
	cache  *eth.Cache
	vlans  *vlan.Vlan
	routes *route.Table
	ports  []*eth.Port
	links  []*memLink

	tracker *ptp.TrackingController
	dither  *ptp.TrackingDither

	metrics *metrics.Server
	tapFile *os.File
}

// New builds a daemon from a validated configuration. Nothing starts
// running until Run.
func New(cfg *config.GlobalConfig) (*Daemon, error) {
	d := &Daemon{cfg: cfg, clock: vclock.NewWall()}

	d.pool = mbuf.NewPool(cfg.Switch.PoolBytes)
	d.sw = eth.New(d.pool)
	d.sw.SetDiag(diag.Multi{
		metrics.Sink{},
		diag.NewSuppressor(diag.LoggerSink{L: log.GetLogger()}, d.clock, time.Second),
	})
	if cfg.Switch.TrafficFilter != 0 {
		d.sw.SetTrafficFilter(cfg.Switch.TrafficFilter)
	}

	d.cache = eth.NewCache(cfg.Switch.CacheSize)
	if !cfg.Switch.MissBroadcast {
		d.cache.SetMissBroadcast(core.MaskNone)
	}
	d.sw.AddPlugin(d.cache)

	d.vlans = vlan.New(d.sw, d.clock, cfg.Vlan.Locked)
	d.sw.AddPlugin(d.vlans)

	if err := d.attachPorts(); err != nil {
		return nil, err
	}
	if err := d.configureVlans(); err != nil {
		return nil, err
	}
	if err := d.configureRoutes(); err != nil {
		return nil, err
	}
	if err := d.configureCapture(); err != nil {
		return nil, err
	}
	if err := d.configureTracking(); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		d.metrics = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
	}
	return d, nil
}

func (d *Daemon) attachPorts() error {
	for i, pc := range d.cfg.Switch.Ports {
		policy, err := tagPolicy(pc.Policy)
		if err != nil {
			return fmt.Errorf("port %d: %w", i, err)
		}
		link := newMemLink(defaultLinkBytes)
		port, err := d.sw.AttachPort(link)
		if err != nil {
			return fmt.Errorf("port %d (%s): %w", i, pc.Name, err)
		}
		d.links = append(d.links, link)
		port.SetVtag(core.PortVtag{
			Tag:    core.NewVlanTag(pc.VID, pc.PCP, 0),
			Policy: policy,
		})
		port.SetPromiscuous(pc.Promiscuous)
		port.Enable(pc.Enabled)
		d.ports = append(d.ports, port)
		log.GetLogger().WithFields(map[string]interface{}{
			"port":   port.Index(),
			"name":   pc.Name,
			"policy": policy.String(),
		}).Info("port attached")
	}
	metrics.PortsAttached.Set(float64(d.sw.PortCount()))
	return nil
}

func (d *Daemon) configureVlans() error {
	for _, ve := range d.cfg.Vlan.Vlans {
		if len(ve.Ports) > 0 {
			mask := core.MaskNone
			for _, p := range ve.Ports {
				mask |= core.MaskFor(p)
			}
			d.vlans.SetMask(ve.VID, mask)
		}
		if ve.Rate.Policy == "" {
			continue
		}
		policy, err := ratePolicy(ve.Rate.Policy)
		if err != nil {
			return fmt.Errorf("vlan %d: %w", ve.VID, err)
		}
		d.vlans.SetRate(ve.VID, vlan.RateConfig{
			Policy:     policy,
			RateBits:   ve.Rate.RateBits,
			BurstBytes: ve.Rate.BurstBytes,
		})
	}
	return nil
}

func (d *Daemon) configureRoutes() error {
	rc := d.cfg.Route
	d.routes = route.NewTable(rc.TableSize)
	if rc.Lockdown {
		d.routes.RouteClear(true)
	}
	if rc.DefaultGateway != "" {
		gw, err := netip.ParseAddr(rc.DefaultGateway)
		if err != nil {
			return fmt.Errorf("default gateway: %w", err)
		}
		d.routes.RouteDefault(gw, core.MACNone, 0, 0)
	}
	for _, sr := range rc.Static {
		subnet, err := netip.ParsePrefix(sr.Subnet)
		if err != nil {
			return fmt.Errorf("route %q: %w", sr.Subnet, err)
		}
		gw := route.Local
		if sr.Gateway != "" && sr.Gateway != "local" {
			if gw, err = netip.ParseAddr(sr.Gateway); err != nil {
				return fmt.Errorf("route %q gateway: %w", sr.Subnet, err)
			}
		}
		mac := core.MACNone
		if sr.MAC != "" {
			hw, err := net.ParseMAC(sr.MAC)
			if err != nil || len(hw) != 6 {
				return fmt.Errorf("route %q: bad mac %q", sr.Subnet, sr.MAC)
			}
			copy(mac[:], hw)
		}
		if err := d.routes.RouteStatic(subnet, gw, mac, sr.Port, 0); err != nil {
			return fmt.Errorf("route %q: %w", sr.Subnet, err)
		}
	}
	return nil
}

func (d *Daemon) configureCapture() error {
	if !d.cfg.Capture.Enabled {
		return nil
	}
	f, err := os.Create(d.cfg.Capture.Path)
	if err != nil {
		return fmt.Errorf("capture file: %w", err)
	}
	tap, err := eth.NewPcapTap(f, d.clock)
	if err != nil {
		f.Close()
		return err
	}
	d.tapFile = f
	d.sw.SetTap(tap)
	log.GetLogger().WithField("path", d.cfg.Capture.Path).Info("capture enabled")
	return nil
}

func (d *Daemon) configureTracking() error {
	pc := d.cfg.Ptp
	if !pc.Enabled {
		return nil
	}
	lg := log.GetLogger()

	var clk ptp.TrackingClock = gaugeClock{}
	if pc.Dither {
		d.dither = ptp.NewTrackingDither(clk)
		clk = d.dither
	}

	var ctrl ptp.Filter
	switch pc.Controller {
	case "pi":
		coeff := ptp.NewCoeffPI(pc.RefScale, pc.TauSecs, pc.Damping)
		if !coeff.Ok() {
			return fmt.Errorf("ptp: unstable pi coefficients for tau=%g", pc.TauSecs)
		}
		ctrl = ptp.NewControllerPI(coeff, lg)
	case "pii":
		coeff := ptp.NewCoeffPII(pc.RefScale, pc.TauSecs)
		if !coeff.Ok() {
			return fmt.Errorf("ptp: unstable pii coefficients for tau=%g", pc.TauSecs)
		}
		ctrl = ptp.NewControllerPII(coeff, lg)
	case "lr":
		coeff := ptp.NewCoeffLR(pc.RefScale, pc.TauSecs)
		if !coeff.Ok() {
			return fmt.Errorf("ptp: unstable lr coefficients for tau=%g", pc.TauSecs)
		}
		ctrl = ptp.NewControllerLR(coeff, pc.Window, lg)
	default:
		return fmt.Errorf("ptp: unknown controller %q", pc.Controller)
	}

	var filters []ptp.Filter
	if pc.MedianOrder > 0 {
		filters = append(filters, ptp.NewMedian(pc.MedianOrder))
	}
	if pc.BoxcarOrder > 0 {
		filters = append(filters, ptp.NewBoxcar(uint(pc.BoxcarOrder)))
	}
	filters = append(filters, ctrl)

	d.tracker = ptp.NewTrackingController(clk, lg, filters...)
	lg.WithFields(map[string]interface{}{
		"controller": pc.Controller,
		"tau":        pc.TauSecs,
	}).Info("time tracking enabled")
	return nil
}

// Run starts the metrics endpoint and drives the service loop until the
// context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	lg := log.GetLogger()
	if d.metrics != nil {
		if err := d.metrics.Start(ctx); err != nil {
			return err
		}
	}
	lg.WithField("ports", d.sw.PortCount()).Info("switch core started")

	ticker := time.NewTicker(servicePeriod)
	defer ticker.Stop()
	coarseSeen := uint64(0)
	for {
		select {
		case <-ctx.Done():
			return d.Stop(context.Background())
		case <-ticker.C:
			d.sw.ServicePorts()
			if d.dither != nil {
				d.dither.Tick()
			}
			if d.tracker != nil {
				if n := d.tracker.CoarseCount(); n > coarseSeen {
					metrics.PtpCoarseAdjustTotal.Add(float64(n - coarseSeen))
					coarseSeen = n
				}
			}
			metrics.PoolBytesInUse.Set(float64(d.pool.InUse()))
		}
	}
}

// Stop shuts the metrics endpoint down and closes the capture file.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.metrics != nil {
		if err := d.metrics.Stop(ctx); err != nil {
			return err
		}
	}
	if d.tapFile != nil {
		if err := d.tapFile.Close(); err != nil {
			return err
		}
		d.tapFile = nil
	}
	log.GetLogger().Info("switch core stopped")
	return nil
}

// Switch exposes the forwarding engine, mainly for embedding and tests.
func (d *Daemon) Switch() *eth.Switch { return d.sw }

// Routes exposes the IPv4 forwarding table.
func (d *Daemon) Routes() *route.Table { return d.routes }

// Vlans exposes the VLAN plugin for runtime membership changes.
func (d *Daemon) Vlans() *vlan.Vlan { return d.vlans }

// Cache exposes the address-learning plugin.
func (d *Daemon) Cache() *eth.Cache { return d.cache }

// Tracker returns the time-tracking loop, or nil when disabled.
// Callers feed it timestamped offset measurements via Update.
func (d *Daemon) Tracker() *ptp.TrackingController { return d.tracker }

// Port returns the attached port with the given config index.
func (d *Daemon) Port(i int) *eth.Port {
	if i < 0 || i >= len(d.ports) {
		return nil
	}
	return d.ports[i]
}

// gaugeClock publishes clock-rate commands to the metrics gauge. It is
// the discipline target when no hardware clock is wired in.
type gaugeClock struct{}

func (gaugeClock) ClockAdjust(amount ptp.Time) ptp.Time { return 0 }

func (gaugeClock) ClockRate(offset int64) {
	metrics.PtpClockRate.Set(float64(offset))
}

func tagPolicy(s string) (core.TagPolicy, error) {
	switch s {
	case "", "admit_all":
		return core.TagAdmitAll, nil
	case "restrict":
		return core.TagRestrict, nil
	case "priority":
		return core.TagPriority, nil
	case "mandatory":
		return core.TagMandatory, nil
	}
	return 0, fmt.Errorf("unknown tag policy %q", s)
}

func ratePolicy(s string) (vlan.RatePolicy, error) {
	switch s {
	case "", "unlimited":
		return vlan.RateUnlimited, nil
	case "strict":
		return vlan.RateStrict, nil
	case "demote":
		return vlan.RateDemote, nil
	case "auto":
		return vlan.RateAuto, nil
	}
	return 0, fmt.Errorf("unknown rate policy %q", s)
}
