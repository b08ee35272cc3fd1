package events

import (
	"context"

	"bazaar/pkg/market"
)

// Fanout delivers each event to every notifier in order.
type Fanout []market.Notifier

func (f Fanout) Notify(ctx context.Context, ev market.Event) {
	for _, n := range f {
		n.Notify(ctx, ev)
	}
}
