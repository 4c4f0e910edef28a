package supervisor

import (
	"sync"
	"time"
)

// SubsystemHealth is a point-in-time health snapshot for one control loop.
type SubsystemHealth struct {
	Name       string    `json:"name"`
	Healthy    bool      `json:"healthy"`
	LastRun    time.Time `json:"last_run"`
	LastError  string    `json:"last_error,omitempty"`
	RunCount   uint64    `json:"run_count"`
	ErrorCount uint64    `json:"error_count"`
}

// SubsystemChecker is implemented by anything the HealthChecker can poll.
// *Loop implements this directly.
type SubsystemChecker interface {
	Check() SubsystemHealth
}

// HealthChecker aggregates health across every registered control loop. A
// loop counts as unhealthy once it has gone staleAfter without a successful
// RunOnce (spec §9's open question on liveness: the node exposes whether a
// loop is wedged, it does not act on it alone).
type HealthChecker struct {
	mu         sync.Mutex
	subsystems map[string]SubsystemChecker
	staleAfter time.Duration
}

// NewHealthChecker constructs a HealthChecker. staleAfter bounds how long a
// subsystem may go without a successful run before Overall reports it down.
func NewHealthChecker(staleAfter time.Duration) *HealthChecker {
	return &HealthChecker{
		subsystems: make(map[string]SubsystemChecker),
		staleAfter: staleAfter,
	}
}

// Register adds a subsystem to be polled by name.
func (hc *HealthChecker) Register(name string, checker SubsystemChecker) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.subsystems[name] = checker
}

// Snapshot returns the current health of every registered subsystem.
func (hc *HealthChecker) Snapshot() map[string]SubsystemHealth {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	out := make(map[string]SubsystemHealth, len(hc.subsystems))
	for name, checker := range hc.subsystems {
		h := checker.Check()
		if h.RunCount > 0 && time.Since(h.LastRun) > hc.staleAfter {
			h.Healthy = false
		}
		out[name] = h
	}
	return out
}

// Overall reports whether every registered subsystem is currently healthy.
func (hc *HealthChecker) Overall() bool {
	for _, h := range hc.Snapshot() {
		if !h.Healthy {
			return false
		}
	}
	return true
}
