package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"backend-escapevim/internal/activity"
	"backend-escapevim/internal/shared/apperr"
)

type ActivityCreator interface {
	Create(ctx context.Context, a activity.Activity, accountID int64) (activity.Activity, error)
}

// Enqueuer keeps records whose save failed so they can be retried later.
type Enqueuer interface {
	Enqueue(ctx context.Context, a activity.Activity) error
}

// AsyncSaver writes each record on its own goroutine, bounded by timeout.
// Storage failures are handed to the retry queue; validation failures are
// reported only, since retrying cannot fix them.
type AsyncSaver struct {
	store   ActivityCreator
	retry   Enqueuer
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsyncSaver(store ActivityCreator, retry Enqueuer, timeout time.Duration) *AsyncSaver {
	return &AsyncSaver{store: store, retry: retry, timeout: timeout}
}

func (s *AsyncSaver) Save(rec activity.Activity, done func(activity.Activity, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		saved, err := s.save(rec)
		if done != nil {
			done(saved, err)
		}
	}()
}

var errSavePanicked = errors.New("save panicked")

// Wait blocks until every in-flight save has finished.
func (s *AsyncSaver) Wait() {
	s.wg.Wait()
}

// save never lets a store panic escape its goroutine; the record is queued
// for retry like any other storage failure.
func (s *AsyncSaver) save(rec activity.Activity) (saved activity.Activity, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Storage("save activity", fmt.Errorf("%w: %v", errSavePanicked, r))
			log.Printf("tracking: save activity for account %d: %v", rec.AccountID, err)
			saved = activity.Activity{}
			s.enqueue(rec)
		}
	}()

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	saved, err = s.store.Create(ctx, rec, rec.AccountID)
	if err == nil {
		return saved, nil
	}
	log.Printf("tracking: save activity for account %d: %v", rec.AccountID, err)

	if !errors.Is(err, apperr.ErrValidation) {
		s.enqueue(rec)
	}
	return activity.Activity{}, err
}

func (s *AsyncSaver) enqueue(rec activity.Activity) {
	if s.retry == nil {
		return
	}
	if err := s.retry.Enqueue(context.Background(), rec); err != nil {
		log.Printf("tracking: queue activity for retry: %v", err)
	}
}
