package gpu

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"typetrace/internal/logging"
)

// Monitor listens for udev DRM hotplug events and re-probes on add/remove so
// the cached capability record tracks eGPU docks and driver rebinds without
// polling.
type Monitor struct {
	logger  *slog.Logger
	prober  *Prober
	onProbe func(Info)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor creates a hotplug monitor. onProbe receives every refreshed
// record, including the initial probe performed by Start.
func NewMonitor(logger *slog.Logger, prober *Prober, onProbe func(Info)) *Monitor {
	if prober == nil {
		prober = NewProber()
	}
	return &Monitor{
		logger:  logging.NewComponentLogger(logger, "gpu-monitor"),
		prober:  prober,
		onProbe: onProbe,
	}
}

// Start probes once, then begins listening for hotplug events. Netlink being
// unavailable is non-fatal; the initial probe result still stands.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.refresh()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; gpu info will not track hotplug",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldImpact, "gpu capability record is fixed at startup"))
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Debug("gpu hotplug monitor started",
		logging.String(logging.FieldEventType, "gpu_monitor_started"))
	return nil
}

// Stop shuts down the hotplug listener.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
}

// Running reports whether the hotplug listener is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.logger.Debug("drm hotplug event",
				logging.String("action", string(uevent.Action)),
				logging.String("kobj", uevent.KObj))
			m.refresh()
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"))
		}
	}
}

// buildMatcher matches SUBSYSTEM=drm add/remove/change events.
func (m *Monitor) buildMatcher() netlink.Matcher {
	action := "add|remove|change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "drm",
		},
	})
	return rules
}

func (m *Monitor) refresh() {
	info := m.prober.Probe()
	if m.onProbe != nil {
		m.onProbe(info)
	}
}
