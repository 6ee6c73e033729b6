package ticketdb

import (
	"context"

	"github.com/veilmix-network/veilmix/internal/types"
)

// Notifier receives each ticket exactly once after its durable commit, in
// commit order. A slow notifier back-pressures the persistence worker and,
// transitively, fills the ingestion queue; this is the intended end-to-end
// backpressure path.
type Notifier interface {
	Send(ctx context.Context, t *types.AcknowledgedTicket) error
}

// drainNotifier discards every ticket.
type drainNotifier struct{}

func (drainNotifier) Send(context.Context, *types.AcknowledgedTicket) error {
	return nil
}

// DrainNotifier returns a notifier that accepts and discards all tickets.
func DrainNotifier() Notifier {
	return drainNotifier{}
}

// ChanNotifier delivers persisted tickets to a channel. Send blocks while
// the channel is full, which is how downstream consumers drive ingestion
// pace.
type ChanNotifier struct {
	ch chan *types.AcknowledgedTicket
}

// NewChanNotifier creates a channel-backed notifier with the given buffer.
func NewChanNotifier(buffer int) *ChanNotifier {
	return &ChanNotifier{ch: make(chan *types.AcknowledgedTicket, buffer)}
}

// Send implements Notifier.
func (n *ChanNotifier) Send(ctx context.Context, t *types.AcknowledgedTicket) error {
	select {
	case n.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C returns the receive side of the notifier.
func (n *ChanNotifier) C() <-chan *types.AcknowledgedTicket {
	return n.ch
}
