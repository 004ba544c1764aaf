package backend

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/infrastructure/monitoring"
)

// Status is a point-in-time view of backend connectivity.
type Status struct {
	Connected           bool      `json:"connected"`
	LastCheck           time.Time `json:"last_check"`
	LastChange          time.Time `json:"last_change"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Monitor tracks backend connectivity. Every client call reports its
// outcome through MarkSuccess/MarkFailure, so any successful call counts
// as recovery, not just probes. The optional probe loop exists to notice
// recovery while no traffic flows; it stops itself once it has seen one.
type Monitor struct {
	api      API
	interval time.Duration
	logger   *logging.Logger
	metrics  *monitoring.Metrics

	mu           sync.Mutex
	status       Status
	checked      bool
	failureStart time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor probing api every interval.
func NewMonitor(api API, interval time.Duration, logger *logging.Logger, metrics *monitoring.Metrics) *Monitor {
	return &Monitor{
		api:      api,
		interval: interval,
		logger:   logger.Named("monitor"),
		metrics:  metrics,
	}
}

// Start launches the background probe loop. Calling Start twice is a
// no-op until Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	go m.run(ctx, done)
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the latest connectivity snapshot.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// MarkSuccess records a successful backend call. The first success after
// a loss logs the recovery and stops the probe loop, which has nothing
// left to detect.
func (m *Monitor) MarkSuccess(operation string) {
	if m.update(true, nil, operation) {
		m.stopLoop()
	}
}

// MarkFailure records a failed backend call.
func (m *Monitor) MarkFailure(operation string, err error) {
	m.update(false, err, operation)
}

// stopLoop cancels the probe loop without waiting for it. Stop still
// works afterwards because the done channel stays readable.
func (m *Monitor) stopLoop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		m.logger.Info("connection recovered, stopping background probing")
		cancel()
	}
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Probe immediately so status is populated before the first tick.
	if m.probe(ctx) {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.probe(ctx) {
				return
			}
		}
	}
}

// probe runs one health check and reports whether it observed a
// recovery, which ends the loop.
func (m *Monitor) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	err := m.api.Health(probeCtx)
	cancel()

	return m.update(err == nil, err, "health probe")
}

// update applies one call outcome and returns whether it was a recovery
// (a success after an observed loss).
func (m *Monitor) update(connected bool, err error, operation string) bool {
	now := time.Now()

	m.mu.Lock()
	first := !m.checked
	was := m.status.Connected
	m.checked = true
	m.status.LastCheck = now
	if connected {
		m.status.ConsecutiveFailures = 0
	} else {
		m.status.ConsecutiveFailures++
	}
	changed := first || was != connected
	if changed {
		m.status.Connected = connected
		m.status.LastChange = now
		if !connected {
			m.failureStart = now
		}
	}
	downtime := time.Duration(0)
	if connected && !m.failureStart.IsZero() {
		downtime = now.Sub(m.failureStart)
	}
	m.mu.Unlock()

	m.metrics.SetBackendUp(connected)

	if !changed {
		return false
	}

	switch {
	case first && connected:
		m.logger.Info("backend reachable", zap.String("operation", operation))
	case first && !connected:
		m.logger.Warn("backend unreachable at startup",
			zap.String("operation", operation), zap.Error(err))
	case connected:
		m.logger.Info("backend connection recovered",
			zap.String("operation", operation),
			zap.Duration("downtime", downtime))
	default:
		m.logger.Warn("backend connection lost",
			zap.String("operation", operation), zap.Error(err))
	}

	return connected && !first
}
