// Package signal carries typed application messages over the transport's
// signal channel.
package signal

import (
	"context"

	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/transport"
	pkglog "github.com/huijing/sgtechonline/pkg/log"
)

// Signal types.
const (
	TypeBroadcast = "broadcast"
	TypeMsg       = "msg"
)

// StatusQuery is the broadcast payload asking the host for its status.
// Replies carry a domain.BroadcastStatus.
const StatusQuery = "status"

// Sender is the transport capability the relay needs.
type Sender interface {
	Signal(ctx context.Context, sig transport.Signal) error
}

// Handler receives a dispatched signal.
type Handler func(sig transport.Signal)

// Relay sends typed signals and routes received ones to handlers. Send may
// be called from any goroutine; OnReceive and Dispatch belong to the owning
// actor.
type Relay struct {
	sender   Sender
	handlers map[string][]Handler
}

// NewRelay creates a relay sending through sender.
func NewRelay(sender Sender) *Relay {
	return &Relay{
		sender:   sender,
		handlers: make(map[string][]Handler),
	}
}

// Send delivers payload as a signal of the given type. A nil target
// addresses every participant, the sender included.
func (r *Relay) Send(ctx context.Context, signalType, payload string, target *transport.Connection) error {
	sig := transport.Signal{Type: signalType, Data: payload}
	if target != nil {
		sig.To = target.ID
	}

	if err := r.sender.Signal(ctx, sig); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str("signal_type", signalType).Str("to", sig.To).Msg("signal delivery failed")
		return &domain.SignalDeliveryError{Type: signalType, Err: err}
	}
	return nil
}

// OnReceive registers handler for signals of the given type.
func (r *Relay) OnReceive(signalType string, handler Handler) {
	r.handlers[signalType] = append(r.handlers[signalType], handler)
}

// Dispatch routes a signal event to its handlers and reports whether any
// handler ran. Non-signal events are ignored.
func (r *Relay) Dispatch(ev transport.Event) bool {
	if ev.Type != transport.EventSignal || ev.Signal == nil {
		return false
	}

	handlers := r.handlers[ev.Signal.Type]
	if len(handlers) == 0 {
		l := pkglog.L()
		l.Debug().Str("signal_type", ev.Signal.Type).Msg("no handler for signal")
		return false
	}
	for _, h := range handlers {
		h(*ev.Signal)
	}
	return true
}
