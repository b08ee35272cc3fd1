package sendemail

import (
	"context"
	"fmt"
	"html"

	"go.uber.org/zap"

	"bazaar/pkg/market"
)

// Alerts emails the operator about settlements and admin actions. Notify
// only queues; Run does the sending so the engine never waits on SendGrid.
type Alerts struct {
	email     EmailService
	recipient string
	queue     chan market.Event
	logger    *zap.Logger
}

func NewAlerts(email EmailService, recipient string, logger *zap.Logger) *Alerts {
	return &Alerts{
		email:     email,
		recipient: recipient,
		queue:     make(chan market.Event, 64),
		logger:    logger,
	}
}

func alertable(ev market.Event) bool {
	switch ev.Type {
	case market.EventListingSold, market.EventOfferAccepted,
		market.EventPaused, market.EventUnpaused,
		market.EventFeeUpdated, market.EventFeesWithdrawn:
		return true
	case market.EventAuctionEnded:
		return ev.Buyer != nil
	}
	return false
}

// Notify implements market.Notifier.
func (a *Alerts) Notify(_ context.Context, ev market.Event) {
	if !alertable(ev) {
		return
	}
	select {
	case a.queue <- ev:
	default:
		a.logger.Warn("alert queue full, dropping event", zap.String("event_id", ev.ID.String()))
	}
}

// Run sends queued alerts until ctx is done.
func (a *Alerts) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.queue:
			a.send(ev)
		}
	}
}

func (a *Alerts) send(ev market.Event) {
	subject, body := render(ev)
	htmlBody := "<p>" + html.EscapeString(body) + "</p>"
	if err := a.email.SendEmail(subject, a.recipient, body, htmlBody); err != nil {
		a.logger.Error("failed to send alert email",
			zap.String("event_id", ev.ID.String()),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

func render(ev market.Event) (subject, body string) {
	switch ev.Type {
	case market.EventListingSold, market.EventOfferAccepted, market.EventAuctionEnded:
		subject = fmt.Sprintf("[bazaar] %s: asset %d", ev.Type, ev.AssetID)
		body = fmt.Sprintf("Asset %d settled for %d (fee %d). Seller %s, buyer %s.",
			ev.AssetID, ev.Amount, ev.Fee, ev.Seller.Hex(), ev.Buyer.Hex())
	case market.EventFeeUpdated:
		subject = "[bazaar] fee updated"
		body = fmt.Sprintf("Fee rate set to %d bps by %s.", ev.Amount, ev.Actor.Hex())
	case market.EventFeesWithdrawn:
		subject = "[bazaar] treasury withdrawn"
		body = fmt.Sprintf("%d withdrawn from the treasury by %s.", ev.Amount, ev.Actor.Hex())
	default:
		subject = fmt.Sprintf("[bazaar] %s", ev.Type)
		body = fmt.Sprintf("%s by %s at %s.", ev.Type, ev.Actor.Hex(), ev.OccurredAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	return subject, body
}
