package notify

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"filmbase.org/internal/account"
)

type job func(ctx context.Context)

// Async runs notifications on a background worker so request handlers
// never wait on mail delivery. Jobs are dropped when the queue is full.
type Async struct {
	next   account.Notifier
	jobs   chan job
	logger log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ account.Notifier = (*Async)(nil)

// NewAsync starts workers draining a queue of size queue.
func NewAsync(next account.Notifier, workers, queue int, logger log.Logger) *Async {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 64
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		next:   next,
		jobs:   make(chan job, queue),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.work()
	}
	return a
}

func (a *Async) work() {
	defer a.wg.Done()
	for j := range a.jobs {
		j(a.ctx)
	}
}

func (a *Async) enqueue(kind string, j job) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		level.Warn(a.logger).Log("msg", "notifier closed, dropping mail", "kind", kind)
		return
	}
	select {
	case a.jobs <- j:
	default:
		level.Warn(a.logger).Log("msg", "mail queue full, dropping mail", "kind", kind)
	}
}

func (a *Async) SendActivationEmail(_ context.Context, acct account.Account) {
	a.enqueue("activation", func(ctx context.Context) { a.next.SendActivationEmail(ctx, acct) })
}

func (a *Async) SendCreationEmail(_ context.Context, acct account.Account) {
	a.enqueue("creation", func(ctx context.Context) { a.next.SendCreationEmail(ctx, acct) })
}

func (a *Async) SendPasswordResetEmail(_ context.Context, acct account.Account) {
	a.enqueue("reset", func(ctx context.Context) { a.next.SendPasswordResetEmail(ctx, acct) })
}

// Close stops accepting mails and waits for queued ones until ctx ends.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.jobs)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		return ctx.Err()
	}
}
