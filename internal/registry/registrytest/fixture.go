// Package registrytest provides fixtures and a behavioural test suite shared
// by every registry.Store implementation.
package registrytest

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aibom-registry/aibom-registry/internal/db/models"
	"github.com/aibom-registry/aibom-registry/internal/events"
	"github.com/aibom-registry/aibom-registry/internal/registry"
)

// Identities used throughout the suite
const (
	Principal  = "0x00000000000000000000000000000000000000AA"
	Developer  = "0x00000000000000000000000000000000000000D1"
	Attacker   = "0x00000000000000000000000000000000000000BE"
	Regulator  = "0x0000000000000000000000000000000000000051"
	Supervisor = "0x0000000000000000000000000000000000000052"
)

// Clock is a deterministic time source advancing one second per reading
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current reading and advances the clock
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Second)
	return t
}

// Fixture is a registry wired to a store, a resolver with a regulator and a
// supervisor bound, and a bus with one buffered channel subscriber.
type Fixture struct {
	Registry *registry.Registry
	Store    registry.Store
	Resolver *registry.Resolver
	Bus      *events.Bus
	Events   *events.ChannelSubscriber
}

// NewFixture builds a Fixture over store. The bus is stopped on cleanup.
func NewFixture(t *testing.T, store registry.Store) *Fixture {
	t.Helper()

	resolver, err := registry.NewResolver(Principal, nil, map[string][]string{
		Regulator:  {registry.RoleRegulator},
		Supervisor: {registry.RoleSupervisor},
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewBus(logger)
	sub := events.NewChannelSubscriber(1024)
	bus.Subscribe("test", sub)
	t.Cleanup(bus.Stop)

	reg := registry.New(store, resolver,
		registry.WithBus(bus),
		registry.WithClock(NewClock().Now),
		registry.WithLogger(logger),
	)
	return &Fixture{Registry: reg, Store: store, Resolver: resolver, Bus: bus, Events: sub}
}

// Drain returns every event currently buffered on the fixture's subscriber
func (f *Fixture) Drain() []models.RegistryEvent {
	var out []models.RegistryEvent
	for {
		select {
		case ev, ok := <-f.Events.C():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}
