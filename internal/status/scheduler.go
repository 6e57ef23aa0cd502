// Package status drives the simulated unsubscribe lifecycle of stored
// subscriptions: active, then pending, then unsubscribed once the configured
// delay has passed.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.io/infrasutra/inboxsweep/internal/sse"
	"github.io/infrasutra/inboxsweep/internal/subscription"
)

// ErrInvalidTransition is returned when a subscription is not in the status a
// transition starts from.
var ErrInvalidTransition = errors.New("invalid status transition")

type Store interface {
	UpdateStatus(ctx context.Context, id string, from, to subscription.Status, now time.Time) (bool, error)
}

type Publisher interface {
	Publish(event string, data any) error
}

// Change is the payload of a status event.
type Change struct {
	ID     string              `json:"id"`
	Status subscription.Status `json:"status"`
}

type Scheduler struct {
	store  Store
	events Publisher
	logger *slog.Logger
	delay  time.Duration
	now    func() time.Time

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New returns a scheduler. events may be nil.
func New(store Store, events Publisher, logger *slog.Logger, delay time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		events: events,
		logger: logger,
		delay:  delay,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Unsubscribe marks an active subscription pending and schedules its move to
// unsubscribed.
func (s *Scheduler) Unsubscribe(ctx context.Context, id string) error {
	ok, err := s.store.UpdateStatus(ctx, id, subscription.StatusActive, subscription.StatusPending, s.now())
	if err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	if !ok {
		return fmt.Errorf("unsubscribe %s: %w", id, ErrInvalidTransition)
	}
	s.publish(id, subscription.StatusPending)
	s.schedule(id)
	return nil
}

// UnsubscribeAll applies Unsubscribe to each id and returns the ids that
// changed. Ids that are not active are skipped.
func (s *Scheduler) UnsubscribeAll(ctx context.Context, ids []string) ([]string, error) {
	changed := []string{}
	for _, id := range ids {
		err := s.Unsubscribe(ctx, id)
		if errors.Is(err, ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return changed, err
		}
		changed = append(changed, id)
	}
	return changed, nil
}

// Pending returns the number of scheduled completions.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels all scheduled completions. Subscriptions already pending stay
// pending.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) schedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if existing, ok := s.timers[id]; ok {
		existing.Stop()
	}
	s.timers[id] = time.AfterFunc(s.delay, func() {
		s.complete(id)
	})
}

func (s *Scheduler) complete(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := s.store.UpdateStatus(ctx, id, subscription.StatusPending, subscription.StatusUnsubscribed, s.now())

	s.mu.Lock()
	delete(s.timers, id)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("complete unsubscribe", "id", id, "error", err)
		return
	}
	if !ok {
		s.logger.Debug("subscription left pending state", "id", id)
		return
	}
	s.publish(id, subscription.StatusUnsubscribed)
}

func (s *Scheduler) publish(id string, status subscription.Status) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(sse.EventStatus, Change{ID: id, Status: status}); err != nil {
		s.logger.Warn("publish status event", "id", id, "error", err)
	}
}
