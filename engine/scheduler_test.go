package engine_test

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/netimp/engine"
)

type sentDatagram struct {
	at      time.Time
	payload string
	dst     netip.AddrPort
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentDatagram
	err  error
}

func (f *fakeSender) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.sent = append(f.sent, sentDatagram{at: time.Now(), payload: string(b), dst: addr})
	return len(b), nil
}

func (f *fakeSender) all() []sentDatagram {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentDatagram(nil), f.sent...)
}

var dst = netip.MustParseAddrPort("10.0.0.2:9000")

func TestSchedulerSendNow(t *testing.T) {
	f := &fakeSender{}
	s := engine.NewScheduler(f, 0)

	n, err := s.SendNow([]byte("now"), dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got := f.all()
	require.Len(t, got, 1)
	assert.Equal(t, "now", got[0].payload)
	assert.Equal(t, dst, got[0].dst)
}

func TestSchedulerSendLater(t *testing.T) {
	f := &fakeSender{}
	s := engine.NewScheduler(f, 0)

	done := make(chan error, 1)
	start := time.Now()
	require.NoError(t, s.SendLater(40*time.Millisecond, []byte("later"), dst, func(n int, err error) {
		done <- err
	}))
	assert.Equal(t, int64(1), s.InFlight())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed send never completed")
	}

	got := f.all()
	require.Len(t, got, 1)
	assert.GreaterOrEqual(t, got[0].at.Sub(start), 40*time.Millisecond)
	assert.Zero(t, s.InFlight())
}

func TestSchedulerReportsSendErrors(t *testing.T) {
	boom := errors.New("socket closed")
	s := engine.NewScheduler(&fakeSender{err: boom}, 0)

	done := make(chan error, 1)
	require.NoError(t, s.SendLater(time.Millisecond, []byte("x"), dst, func(n int, err error) {
		done <- err
	}))
	assert.ErrorIs(t, <-done, boom)
}

func TestSchedulerOverflow(t *testing.T) {
	f := &fakeSender{}
	s := engine.NewScheduler(f, 2)

	require.NoError(t, s.SendLater(50*time.Millisecond, []byte("a"), dst, nil))
	require.NoError(t, s.SendLater(50*time.Millisecond, []byte("b"), dst, nil))
	assert.ErrorIs(t, s.SendLater(50*time.Millisecond, []byte("c"), dst, nil), engine.ErrOverflow)

	require.NoError(t, s.Wait(context.Background()))
	assert.Len(t, f.all(), 2)

	// slots are released after each send
	require.NoError(t, s.SendLater(time.Millisecond, []byte("d"), dst, nil))
	require.NoError(t, s.Wait(context.Background()))
	assert.Len(t, f.all(), 3)
}

func TestSchedulerWaitTimesOut(t *testing.T) {
	s := engine.NewScheduler(&fakeSender{}, 0)
	require.NoError(t, s.SendLater(500*time.Millisecond, []byte("slow"), dst, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)

	// the pending send is not cancelled
	require.NoError(t, s.Wait(context.Background()))
}

func TestSchedulerOrderFollowsDelay(t *testing.T) {
	f := &fakeSender{}
	s := engine.NewScheduler(f, 0)

	require.NoError(t, s.SendLater(80*time.Millisecond, []byte("slow"), dst, nil))
	require.NoError(t, s.SendLater(10*time.Millisecond, []byte("fast"), dst, nil))
	require.NoError(t, s.Wait(context.Background()))

	got := f.all()
	require.Len(t, got, 2)
	assert.Equal(t, "fast", got[0].payload, "delayed sends may reorder")
	assert.Equal(t, "slow", got[1].payload)
}
