package account

import "context"

// Notifier delivers account mails. Calls are fire-and-forget: delivery
// failures are the notifier's concern and are not retried by the service.
type Notifier interface {
	SendActivationEmail(ctx context.Context, acct Account)
	SendCreationEmail(ctx context.Context, acct Account)
	SendPasswordResetEmail(ctx context.Context, acct Account)
}

// EventObserver counts lifecycle events.
type EventObserver interface {
	ObserveEvent(event string)
}

type nopNotifier struct{}

func (nopNotifier) SendActivationEmail(context.Context, Account)    {}
func (nopNotifier) SendCreationEmail(context.Context, Account)      {}
func (nopNotifier) SendPasswordResetEmail(context.Context, Account) {}

type nopEvents struct{}

func (nopEvents) ObserveEvent(string) {}
