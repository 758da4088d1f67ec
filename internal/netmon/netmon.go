// Package netmon tracks API reachability with an active probe loop and
// classifies link quality from round-trip time. The offline queue drains on
// the offline-to-online transition it reports.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"docdash/internal/logging"
)

// Effective connection types, coarsest to fastest. RTT thresholds follow the
// common network-information buckets.
const (
	TypeSlow2G = "slow-2g"
	Type2G     = "2g"
	Type3G     = "3g"
	Type4G     = "4g"
)

// Status is a point-in-time view of connectivity.
type Status struct {
	IsOnline         bool
	EffectiveType    string
	RTT              time.Duration
	DownlinkEstimate float64 // Mbps, rough bucket estimate
}

// Listener is called synchronously whenever the status changes.
type Listener func(Status)

// Monitor probes an endpoint on an interval and notifies listeners on status
// transitions. Construct one per process and inject it.
type Monitor struct {
	probeURL string
	interval time.Duration
	slowRTT  time.Duration
	client   *http.Client

	mu        sync.Mutex
	status    Status
	listeners map[int]Listener
	nextID    int

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Options configures a Monitor. ProbeURL is the full URL probed for liveness.
type Options struct {
	ProbeURL string
	Interval time.Duration // default 10s
	SlowRTT  time.Duration // RTT at or above this counts as slow; default 1.4s
	Client   *http.Client  // default: 5s-timeout client
}

// New creates a Monitor. It starts out online with an unknown (4g) link; the
// first probe corrects that within one interval of Start.
func New(o Options) *Monitor {
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.SlowRTT <= 0 {
		o.SlowRTT = 1400 * time.Millisecond
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Monitor{
		probeURL:  o.ProbeURL,
		interval:  o.Interval,
		slowRTT:   o.SlowRTT,
		client:    o.Client,
		status:    Status{IsOnline: true, EffectiveType: Type4G, DownlinkEstimate: downlinkFor(Type4G)},
		listeners: make(map[int]Listener),
	}
}

// Start launches the probe loop. It probes immediately, then on the interval,
// until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
	logging.Netmon("monitor started, probing %s every %s", m.probeURL, m.interval)
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()
	<-done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.doneCh)

	m.probe(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// probe issues a HEAD request and folds the result into the status.
func (m *Monitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.apply(Status{IsOnline: false})
		return
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	rtt := time.Since(start)
	if err != nil {
		m.apply(Status{IsOnline: false})
		return
	}
	resp.Body.Close()

	// Any HTTP response means the network path works, even a 5xx.
	et := effectiveType(rtt)
	m.apply(Status{
		IsOnline:         true,
		EffectiveType:    et,
		RTT:              rtt,
		DownlinkEstimate: downlinkFor(et),
	})
}

// apply records the new status and fires listeners if anything changed.
// Listeners run synchronously so that the offline queue sees the transition
// before the next probe.
func (m *Monitor) apply(next Status) {
	m.mu.Lock()
	prev := m.status
	changed := prev.IsOnline != next.IsOnline || prev.EffectiveType != next.EffectiveType
	m.status = next
	var fns []Listener
	if changed {
		fns = make([]Listener, 0, len(m.listeners))
		for _, fn := range m.listeners {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	if prev.IsOnline != next.IsOnline {
		logging.Netmon("connectivity changed: online=%v rtt=%s type=%s",
			next.IsOnline, next.RTT, next.EffectiveType)
	}
	for _, fn := range fns {
		fn(next)
	}
}

// CheckNow runs one probe synchronously and returns the resulting status.
// Useful for short-lived callers that cannot wait for the probe loop.
func (m *Monitor) CheckNow(ctx context.Context) Status {
	m.probe(ctx)
	return m.GetStatus()
}

// GetStatus returns the current status.
func (m *Monitor) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsOnline reports current reachability.
func (m *Monitor) IsOnline() bool {
	return m.GetStatus().IsOnline
}

// HasSlowConnection reports whether the link is 2g-class or worse.
func (m *Monitor) HasSlowConnection() bool {
	s := m.GetStatus()
	if !s.IsOnline {
		return false
	}
	return s.EffectiveType == Type2G || s.EffectiveType == TypeSlow2G ||
		(m.slowRTT > 0 && s.RTT >= m.slowRTT)
}

// AddListener registers fn for status changes and returns an unsubscribe
// function. fn is not called with the current status.
func (m *Monitor) AddListener(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// SetOnline forces the online flag, driving the same listener path as a
// probe. Used by tests and by callers that learn about connectivity out of
// band.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	next := m.status
	m.mu.Unlock()

	next.IsOnline = online
	if !online {
		next.RTT = 0
	} else if next.EffectiveType == "" {
		next.EffectiveType = Type4G
		next.DownlinkEstimate = downlinkFor(Type4G)
	}
	m.apply(next)
}

func effectiveType(rtt time.Duration) string {
	switch {
	case rtt >= 2000*time.Millisecond:
		return TypeSlow2G
	case rtt >= 1400*time.Millisecond:
		return Type2G
	case rtt >= 270*time.Millisecond:
		return Type3G
	default:
		return Type4G
	}
}

func downlinkFor(et string) float64 {
	switch et {
	case TypeSlow2G:
		return 0.05
	case Type2G:
		return 0.25
	case Type3G:
		return 0.75
	default:
		return 10
	}
}
