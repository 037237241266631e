package outbox

import (
	"context"
	"errors"
	"log"
	"time"

	"backend-escapevim/internal/activity"
	"backend-escapevim/internal/shared/apperr"
)

type ActivityCreator interface {
	Create(ctx context.Context, a activity.Activity, accountID int64) (activity.Activity, error)
}

const putBackTimeout = 5 * time.Second

// Worker retries queued activities against the store.
type Worker struct {
	queue       Queue
	store       ActivityCreator
	maxAttempts int
	interval    time.Duration
	now         func() time.Time
}

func NewWorker(queue Queue, store ActivityCreator, maxAttempts int, interval time.Duration) *Worker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{queue: queue, store: store, maxAttempts: maxAttempts, interval: interval, now: time.Now}
}

// Enqueue adds a record whose first save already failed.
func (w *Worker) Enqueue(ctx context.Context, a activity.Activity) error {
	return w.queue.Push(ctx, Entry{Activity: a, Attempts: 1, QueuedAt: w.now()})
}

// Drain makes one pass over the entries queued when it starts and returns
// how many were stored. Entries that fail again go to the back of the queue
// until they reach the attempt limit, then to the dead list.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	n, err := w.queue.Len(ctx)
	if err != nil {
		return 0, err
	}

	saved := 0
	for i := int64(0); i < n; i++ {
		if ctx.Err() != nil {
			return saved, ctx.Err()
		}
		e, ok, err := w.queue.Pop(ctx)
		if err != nil {
			return saved, err
		}
		if !ok {
			break
		}

		stored, err := w.store.Create(ctx, e.Activity, e.Activity.AccountID)
		if err == nil {
			log.Printf("outbox: stored activity %d for account %d after %d attempts", stored.ID, e.Activity.AccountID, e.Attempts+1)
			saved++
			continue
		}

		if ctx.Err() != nil {
			// interrupted by shutdown; the attempt does not count
			if err := w.putBack(e, w.queue.Push); err != nil {
				return saved, err
			}
			return saved, ctx.Err()
		}

		e.Attempts++
		e.LastError = err.Error()
		if e.Attempts >= w.maxAttempts || errors.Is(err, apperr.ErrValidation) {
			log.Printf("outbox: giving up on activity for account %d after %d attempts: %v", e.Activity.AccountID, e.Attempts, err)
			if err := w.putBack(e, w.queue.Bury); err != nil {
				return saved, err
			}
			continue
		}
		if err := w.putBack(e, w.queue.Push); err != nil {
			return saved, err
		}
	}
	return saved, nil
}

// putBack writes a popped entry back with its own deadline, so a cancelled
// drain still returns what it took. A failure is logged with the record.
func (w *Worker) putBack(e Entry, put func(context.Context, Entry) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), putBackTimeout)
	defer cancel()

	if err := put(ctx, e); err != nil {
		log.Printf("outbox: lost activity for account %d (type %s, date %s, %d attempts): %v",
			e.Activity.AccountID, e.Activity.Type, e.Activity.Date.Format(time.RFC3339), e.Attempts, err)
		return err
	}
	return nil
}

// Run drains the queue every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("outbox: drain error: %v", err)
			}
		}
	}
}
