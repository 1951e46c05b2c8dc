// Package lifecycle is a minimal service supervisor: a fixed set of
// Services are started together and stopped together, in reverse order,
// mirroring the way cmd/sgkd-demo composes the sync collection, the SGKD
// distributor, and the demo's local identities.
package lifecycle

import (
	"context"

	"github.com/dct-go/sgkd/pkg/logger"
)

// Service is anything with an explicit start/stop boundary.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager holds an ordered list of services and runs them as a unit.
type Manager struct {
	services []Service
}

// New returns an empty Manager.
func New() *Manager { return &Manager{} }

// Add registers a service. Services start in the order added and stop in
// the reverse order.
func (m *Manager) Add(s Service) { m.services = append(m.services, s) }

// Start starts every registered service in order. If one fails, the
// services already started are stopped before the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	for i, s := range m.services {
		if err := s.Start(ctx); err != nil {
			logger.ErrorJ("lifecycle_start", map[string]any{"index": i, "err": err.Error()})
			m.stopFrom(ctx, i-1)
			return err
		}
	}
	return nil
}

// Stop stops every registered service in reverse order, best-effort:
// a failing Stop is logged but does not prevent the rest from stopping.
func (m *Manager) Stop(ctx context.Context) {
	m.stopFrom(ctx, len(m.services)-1)
}

func (m *Manager) stopFrom(ctx context.Context, last int) {
	for i := last; i >= 0; i-- {
		if err := m.services[i].Stop(ctx); err != nil {
			logger.ErrorJ("lifecycle_stop", map[string]any{"index": i, "err": err.Error()})
		}
	}
}
