// Package bridge ties one account's appliances together: it drives the
// periodic batched poll, feeds results to each device's reconciler,
// shares the connectivity monitor across the group, and suppresses
// outward commands while the group is offline.
package bridge

import (
	"context"
	"sync"
	"time"

	"airbridge/internal/clock"
	"airbridge/internal/cloud"
	"airbridge/internal/device"
	"airbridge/internal/reconcile"

	"go.uber.org/zap"
)

// Poll interval bounds.
const (
	// MinPollInterval is the floor enforced on the configured interval,
	// to keep the vendor API happy.
	MinPollInterval = 15 * time.Second

	// DefaultPollInterval is used when no interval is configured.
	DefaultPollInterval = 60 * time.Second
)

// Group owns the cloud client, the group-level connectivity monitor,
// and one reconciler per discovered appliance.
type Group struct {
	api       cloud.API
	clock     clock.Clock
	logger    *zap.Logger
	monitor   *reconcile.Monitor
	publisher reconcile.Publisher
	interval  time.Duration

	mu          sync.Mutex
	reconcilers map[string]*reconcile.Reconciler
	timer       clock.Timer
	stopped     bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewGroup creates a device group polling api every interval. The
// interval is clamped to MinPollInterval; zero selects the default.
func NewGroup(api cloud.API, pub reconcile.Publisher, interval time.Duration, c clock.Clock, logger *zap.Logger) *Group {
	if interval == 0 {
		interval = DefaultPollInterval
	}
	if interval < MinPollInterval {
		interval = MinPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Group{
		api:         api,
		clock:       c,
		logger:      logger.Named("bridge"),
		monitor:     reconcile.NewMonitor(reconcile.OfflineThreshold, logger.Named("connectivity")),
		publisher:   pub,
		interval:    interval,
		reconcilers: make(map[string]*reconcile.Reconciler),
		ctx:         ctx,
		cancel:      cancel,
	}

	g.monitor.OnTransition(g.handleTransition)
	return g
}

// Start performs one immediate poll, so the control surface does not
// show stale values until the first interval elapses, then schedules
// the periodic poll.
func (g *Group) Start() error {
	g.logger.Info("Starting device group",
		zap.Duration("poll_interval", g.interval))

	g.PollOnce()
	g.schedule()
	return nil
}

// Stop cancels the periodic poll. Debounce and compensation timers are
// one-shot and self-expire; no other cleanup is required.
func (g *Group) Stop() {
	g.mu.Lock()
	g.stopped = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	recs := make([]*reconcile.Reconciler, 0, len(g.reconcilers))
	for _, r := range g.reconcilers {
		recs = append(recs, r)
	}
	g.mu.Unlock()

	g.cancel()
	for _, r := range recs {
		r.Stop()
	}
	g.logger.Info("Device group stopped")
}

func (g *Group) schedule() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		return
	}
	g.timer = g.clock.AfterFunc(g.interval, func() {
		g.PollOnce()
		g.schedule()
	})
}

// PollOnce performs one batched poll cycle. A failed cycle counts
// toward the offline threshold and never stops the loop.
func (g *Group) PollOnce() {
	states, err := g.api.Poll(g.ctx)
	if err != nil {
		g.logger.Warn("Poll failed", zap.Error(err))
		g.monitor.RecordFailure()
		return
	}

	g.monitor.RecordSuccess()

	for id, st := range states {
		rec := g.reconciler(id, st)
		rec.ApplyPoll(st.Capabilities)
	}
}

// reconciler returns the reconciler for id, creating it on first
// discovery. Reconcilers are never destroyed while registered.
func (g *Group) reconciler(id string, st cloud.DeviceState) *reconcile.Reconciler {
	g.mu.Lock()
	defer g.mu.Unlock()

	if rec, ok := g.reconcilers[id]; ok {
		return rec
	}

	g.logger.Info("Discovered appliance",
		zap.String("device", id),
		zap.String("name", st.Name),
		zap.String("model", st.Model))

	rec := reconcile.NewReconciler(id, g.clock, g.sender(id), g.publisher, g.logger)
	g.reconcilers[id] = rec
	return rec
}

// sender builds the command path for one device: while the group is
// offline the command is suppressed, not transmitted.
func (g *Group) sender(id string) reconcile.CommandSender {
	return func(patch device.Patch) error {
		if !g.monitor.Online() {
			return reconcile.ErrOffline
		}
		return g.api.SendCommand(g.ctx, id, patch)
	}
}

// handleTransition fans a connectivity transition out to every managed
// device: the fault indicator is pushed before the next state push.
func (g *Group) handleTransition(online bool) {
	g.mu.Lock()
	recs := make([]*reconcile.Reconciler, 0, len(g.reconcilers))
	for _, r := range g.reconcilers {
		recs = append(recs, r)
	}
	g.mu.Unlock()

	for _, r := range recs {
		r.SetFault(!online)
	}
}

// SetPublisher swaps the push sink for every managed device, current
// and future.
func (g *Group) SetPublisher(pub reconcile.Publisher) {
	g.mu.Lock()
	g.publisher = pub
	recs := make([]*reconcile.Reconciler, 0, len(g.reconcilers))
	for _, r := range g.reconcilers {
		recs = append(recs, r)
	}
	g.mu.Unlock()

	for _, r := range recs {
		r.SetPublisher(pub)
	}
}

// Reconciler returns the reconciler for a device, if discovered.
func (g *Group) Reconciler(id string) (*reconcile.Reconciler, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.reconcilers[id]
	return rec, ok
}

// DeviceIDs lists the discovered appliances.
func (g *Group) DeviceIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.reconcilers))
	for id := range g.reconcilers {
		ids = append(ids, id)
	}
	return ids
}

// Online reports the group's connectivity state.
func (g *Group) Online() bool {
	return g.monitor.Online()
}
