package engine

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/samaelod/netimp/types"
)

const DefaultStatus = "Ready to Run"

// MaxDelayMs is the largest accepted delay bound, about 11.5 days. The
// bound plus one still fits a 32-bit int, and the delay fits a time.Duration.
const MaxDelayMs = 1_000_000_000

// Store owns the live impairment configuration and the status line.
//
// Readers get an immutable snapshot, so a decision never sees a mix of
// old and new fields. Writers serialize on mu and publish a fresh pointer.
type Store struct {
	mu     sync.Mutex
	cfg    atomic.Pointer[types.ImpairmentConfig]
	status atomic.Pointer[string]

	watchers []chan struct{}
}

// NewStore validates initial and returns a Store holding it.
func NewStore(initial types.ImpairmentConfig) (*Store, error) {
	if err := Validate(initial); err != nil {
		return nil, err
	}
	s := &Store{}
	s.cfg.Store(&initial)
	status := DefaultStatus
	s.status.Store(&status)
	return s, nil
}

// Get returns a consistent snapshot of the current configuration.
func (s *Store) Get() types.ImpairmentConfig {
	return *s.cfg.Load()
}

// Set validates every present field of u and applies them together.
// On error the previous configuration stays in force.
func (s *Store) Set(u types.Update) error {
	if err := ValidateUpdate(u); err != nil {
		return err
	}

	s.mu.Lock()
	next := u.Apply(s.Get())
	s.cfg.Store(&next)
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) Status() string {
	return *s.status.Load()
}

// SetStatus replaces the status line. Last writer wins.
func (s *Store) SetStatus(status string) {
	s.status.Store(&status)
}

// Watch returns a channel that receives a token after every successful Set.
// Tokens are coalesced; a slow reader only sees that something changed.
func (s *Store) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Validate checks every field of a full configuration.
func Validate(cfg types.ImpairmentConfig) error {
	return ValidateUpdate(types.FullUpdate(cfg))
}

// ValidateUpdate checks the present fields of u and joins all range errors.
func ValidateUpdate(u types.Update) error {
	var errs []error
	if u.SenderDropPercent != nil {
		errs = append(errs, checkRange("sender drop percent", *u.SenderDropPercent, 0, 100))
	}
	if u.ReceiverDropPercent != nil {
		errs = append(errs, checkRange("receiver drop percent", *u.ReceiverDropPercent, 0, 100))
	}
	if u.DataDelayMs != nil {
		errs = append(errs, checkRange("data delay upper bound (ms)", *u.DataDelayMs, 0, MaxDelayMs))
	}
	if u.AckDelayMs != nil {
		errs = append(errs, checkRange("ack delay upper bound (ms)", *u.AckDelayMs, 0, MaxDelayMs))
	}
	return errors.Join(errs...)
}
