// Package raftbus implements the thin message-bus adapter from
// spec.md §4.G/§6: send/cancel with outstanding-request tracking. The
// actual wire transport is a named external interface (Transport) —
// spec.md §1 scopes "the message-bus transport" itself out of core —
// so this package only owns correlation-ID bookkeeping and
// cancel-on-role-change, the same responsibilities the teacher's
// ForeignNode tracked ad hoc (Available/NextIndex/MatchIndex) but now
// factored out from the gRPC-specific plumbing.
package raftbus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MessageID correlates a request with its (possibly absent) response.
type MessageID = uuid.UUID

// Transport performs the actual network hop. Implementations may drop
// or reorder (spec.md §4.G: "Bus delivery is unordered and may drop");
// callers rely on the replication driver and ticker to retry.
type Transport interface {
	Send(ctx context.Context, to string, envelope any) (any, error)
}

// Bus tracks outstanding messages sent through a Transport and invokes
// each message's callback with its response (or error) when it
// arrives, unless the message was cancelled first.
type Bus struct {
	transport Transport

	mu          sync.Mutex
	outstanding map[MessageID]context.CancelFunc
}

// New constructs a Bus over the given Transport.
func New(transport Transport) *Bus {
	return &Bus{
		transport:   transport,
		outstanding: make(map[MessageID]context.CancelFunc),
	}
}

// Send dispatches envelope to `to` and registers the message as
// outstanding. onResponse is invoked exactly once, from a new
// goroutine, with either the transport's response or its error —
// never if the message is cancelled first. Send returns immediately
// with the new message's ID.
func (b *Bus) Send(to string, envelope any, onResponse func(resp any, err error)) MessageID {
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	b.outstanding[id] = cancel
	b.mu.Unlock()

	go func() {
		resp, err := b.transport.Send(ctx, to, envelope)

		b.mu.Lock()
		_, stillOutstanding := b.outstanding[id]
		delete(b.outstanding, id)
		b.mu.Unlock()

		if !stillOutstanding {
			// Cancelled (e.g. by a role transition); discard per
			// spec.md §5: "their responses, if they arrive, are
			// discarded".
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logTransportError(to, err)
		}
		if onResponse != nil {
			onResponse(resp, err)
		}
	}()

	return id
}

// Cancel aborts a single outstanding message. The response, if it
// later arrives, is discarded.
func (b *Bus) Cancel(id MessageID) {
	b.mu.Lock()
	cancel, ok := b.outstanding[id]
	if ok {
		delete(b.outstanding, id)
	}
	b.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelAll aborts every outstanding message. Called on every role
// transition (spec.md §4.F: "On entering any role: cancel all
// outstanding outbound messages").
func (b *Bus) CancelAll() {
	b.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(b.outstanding))
	for id, cancel := range b.outstanding {
		cancels = append(cancels, cancel)
		delete(b.outstanding, id)
	}
	b.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Outstanding returns the count of not-yet-resolved messages, for
// tests and diagnostics.
func (b *Bus) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.outstanding)
}

func logTransportError(to string, err error) {
	log.Debug().Err(err).Str("to", to).Msg("raftbus: send failed")
}
