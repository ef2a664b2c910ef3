package raftbus

import (
	"context"
	"errors"
	"math/rand"
	"sync"
)

// ErrDropped is returned by LossyTransport when it simulates a dropped
// message.
var ErrDropped = errors.New("raftbus: message dropped")

// Handler answers an envelope sent to one named destination.
type Handler func(ctx context.Context, envelope any) (any, error)

// LossyTransport is an in-process Transport routing to registered
// Handlers by name, with a configurable unordered-and-may-drop delivery
// model (spec.md §4.G), used to exercise retry behaviour in tests
// without a real network.
type LossyTransport struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	dropRate float64
	rng      *rand.Rand
}

// NewLossyTransport constructs a transport with the given drop
// probability in [0,1).
func NewLossyTransport(dropRate float64, rng *rand.Rand) *LossyTransport {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &LossyTransport{handlers: make(map[string]Handler), dropRate: dropRate, rng: rng}
}

// Register installs the handler that answers messages addressed to
// name.
func (t *LossyTransport) Register(name string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[name] = h
}

// Unregister removes name's handler: sends addressed to name fail as
// if routed nowhere. Messages that name itself sends through this
// transport are still delivered, so this cuts only the inbound half of
// a partition.
func (t *LossyTransport) Unregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, name)
}

// Send implements Transport.
func (t *LossyTransport) Send(ctx context.Context, to string, envelope any) (any, error) {
	t.mu.RLock()
	h, ok := t.handlers[to]
	drop := t.dropRate > 0 && t.rng.Float64() < t.dropRate
	t.mu.RUnlock()

	if !ok {
		return nil, errors.New("raftbus: unknown destination " + to)
	}
	if drop {
		return nil, ErrDropped
	}
	return h(ctx, envelope)
}
