// Package supervisor spawns and supervises the operator node's three
// independent control loops (spec §4.8, component C8): the beacon mirror,
// the epoch controller, and the draw controller. Structured the way the
// teacher's node package supervises an Ethereum full node's subsystems: a
// LifecycleManager with priority-ordered start/stop, and a HealthChecker
// aggregating per-subsystem health.
package supervisor

import (
	"fmt"
	"sort"
	"sync"
)

// ServiceState represents the lifecycle state of a service.
type ServiceState int

const (
	StateCreated  ServiceState = iota // registered but not started
	StateStarting                     // start in progress
	StateRunning                      // running normally
	StateStopping                     // stop in progress
	StateStopped                      // stopped cleanly
	StateFailed                       // failed to start or crashed
)

// String returns a human-readable name for the service state.
func (s ServiceState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Service is a control loop the lifecycle manager can start and stop. *Loop
// (wrapping beacon.Mirror, epoch.Controller, or draw.Controller) is the only
// implementation.
type Service interface {
	Start() error
	Stop() error
	Name() string
}

// Role names one of the three control loops spec §4.8 requires. Unlike a
// caller-supplied priority number, a Role fixes its start/stop order to the
// dependency the protocol actually has between these three loops: the draw
// controller reads both the beacon-mirrored drand round and the epoch
// controller's published snapshot, and the epoch controller itself reads
// mirrored rounds indirectly through the chain's own state, so the beacon
// mirror must be running before epoch or draw can do useful work, and the
// epoch controller before the draw controller.
type Role int

const (
	RoleBeacon Role = iota
	RoleEpoch
	RoleDraw
)

// startPriority is the role's position in start order (ascending); stop
// order is the reverse.
func (r Role) startPriority() int { return int(r) }

// String returns the role's name, used in Register's duplicate-role error
// message.
func (r Role) String() string {
	switch r {
	case RoleBeacon:
		return "beacon"
	case RoleEpoch:
		return "epoch"
	case RoleDraw:
		return "draw"
	default:
		return "unknown"
	}
}

// serviceEntry tracks a registered service and its state.
type serviceEntry struct {
	svc   Service
	role  Role
	state ServiceState
	err   error
}

// LifecycleManager starts and stops the beacon mirror, epoch controller,
// and draw controller loops in the order their data dependencies require,
// and tracks each one's running state.
type LifecycleManager struct {
	mu       sync.Mutex
	services []*serviceEntry
	byName   map[string]*serviceEntry
}

// NewLifecycleManager creates an empty LifecycleManager.
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{byName: make(map[string]*serviceEntry)}
}

// Register adds a control loop under its Role. Registering the same Role or
// the same service name twice is an error — the node runs exactly one
// beacon mirror, one epoch controller, and one draw controller.
func (lm *LifecycleManager) Register(role Role, svc Service) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, exists := lm.byName[svc.Name()]; exists {
		return fmt.Errorf("supervisor: service %q already registered", svc.Name())
	}
	for _, e := range lm.services {
		if e.role == role {
			return fmt.Errorf("supervisor: role %s already has a registered service", role)
		}
	}

	entry := &serviceEntry{svc: svc, role: role, state: StateCreated}
	lm.services = append(lm.services, entry)
	lm.byName[svc.Name()] = entry
	return nil
}

// StartAll starts the beacon mirror, then the epoch controller, then the
// draw controller. A failure to start one does not prevent the others from
// starting (spec §5: no loop's failure may starve another).
func (lm *LifecycleManager) StartAll() []error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	ordered := lm.sortedServices()
	var errs []error

	for _, entry := range ordered {
		entry.state = StateStarting
		if err := entry.svc.Start(); err != nil {
			entry.state = StateFailed
			entry.err = err
			errs = append(errs, fmt.Errorf("start %s: %w", entry.svc.Name(), err))
			continue
		}
		entry.state = StateRunning
	}
	return errs
}

// StopAll stops the draw controller, then the epoch controller, then the
// beacon mirror — the reverse of start order.
func (lm *LifecycleManager) StopAll() []error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	ordered := lm.sortedServices()
	var errs []error

	for i := len(ordered) - 1; i >= 0; i-- {
		entry := ordered[i]
		if entry.state != StateRunning {
			continue
		}
		entry.state = StateStopping
		if err := entry.svc.Stop(); err != nil {
			entry.state = StateFailed
			entry.err = err
			errs = append(errs, fmt.Errorf("stop %s: %w", entry.svc.Name(), err))
			continue
		}
		entry.state = StateStopped
	}
	return errs
}

// GetState returns the current state of a service by name. Returns
// StateFailed if the service is not found.
func (lm *LifecycleManager) GetState(name string) ServiceState {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	entry, ok := lm.byName[name]
	if !ok {
		return StateFailed
	}
	return entry.state
}

// ServiceCount returns the total number of registered services.
func (lm *LifecycleManager) ServiceCount() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.services)
}

// RunningCount returns the number of services currently in the running
// state.
func (lm *LifecycleManager) RunningCount() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	count := 0
	for _, entry := range lm.services {
		if entry.state == StateRunning {
			count++
		}
	}
	return count
}

// sortedServices returns a copy of the services slice ordered beacon, epoch,
// draw. Caller must hold lm.mu.
func (lm *LifecycleManager) sortedServices() []*serviceEntry {
	sorted := make([]*serviceEntry, len(lm.services))
	copy(sorted, lm.services)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].role.startPriority() < sorted[j].role.startPriority()
	})
	return sorted
}
