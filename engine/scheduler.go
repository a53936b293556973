package engine

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Sender is the send side of the relay socket. *net.UDPConn implements it;
// each call writes one whole datagram, so concurrent senders never interleave.
type Sender interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

// Scheduler performs forward decisions: immediate sends on the caller,
// delayed sends on their own goroutine.
//
// Delayed sends are fire-and-forget. They are not cancelled by shutdown and
// keep the delay they were scheduled with. With maxInFlight == 0 there is
// no limit on how many can be pending at once.
type Scheduler struct {
	conn Sender
	sem  *semaphore.Weighted

	wg       sync.WaitGroup
	inFlight atomic.Int64
	onChange func(n int64)
}

// NewScheduler returns a Scheduler writing to conn. maxInFlight > 0 caps
// the number of pending delayed sends.
func NewScheduler(conn Sender, maxInFlight int64) *Scheduler {
	s := &Scheduler{conn: conn}
	if maxInFlight > 0 {
		s.sem = semaphore.NewWeighted(maxInFlight)
	}
	return s
}

// SendNow writes payload to dst on the calling goroutine.
func (s *Scheduler) SendNow(payload []byte, dst netip.AddrPort) (int, error) {
	return s.conn.WriteToUDPAddrPort(payload, dst)
}

// SendLater writes payload to dst after delay on a new goroutine and then
// calls done with the result. payload must not be reused by the caller.
// It returns ErrOverflow without scheduling anything when the limit is hit.
func (s *Scheduler) SendLater(delay time.Duration, payload []byte, dst netip.AddrPort, done func(n int, err error)) error {
	if s.sem != nil && !s.sem.TryAcquire(1) {
		return ErrOverflow
	}

	s.wg.Add(1)
	s.changed(s.inFlight.Add(1))

	go func() {
		defer s.wg.Done()

		time.Sleep(delay)
		n, err := s.conn.WriteToUDPAddrPort(payload, dst)

		s.changed(s.inFlight.Add(-1))
		if s.sem != nil {
			s.sem.Release(1)
		}
		if done != nil {
			done(n, err)
		}
	}()

	return nil
}

// InFlight returns the number of delayed sends still waiting.
func (s *Scheduler) InFlight() int64 {
	return s.inFlight.Load()
}

// Wait blocks until every delayed send has completed or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) changed(n int64) {
	if s.onChange != nil {
		s.onChange(n)
	}
}
