package engine

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Datagram is one recorded payload, Offset after the first of its run.
type Datagram struct {
	Offset  time.Duration
	Payload []byte
}

// ReplayStats summarizes a replay run.
type ReplayStats struct {
	Sent    int
	Failed  int
	Replies int
}

// Replayer sends recorded datagrams to a relay at their original spacing,
// standing in for the real client. Replies are counted, not interpreted.
type Replayer struct {
	conn    Conn
	dst     netip.AddrPort
	speed   float64
	log     *zap.Logger
	replies atomic.Int64
}

// NewReplayer returns a Replayer sending to dst. speed scales the recorded
// gaps: 2 replays twice as fast, values <= 0 mean 1.
func NewReplayer(conn Conn, dst netip.AddrPort, speed float64, log *zap.Logger) *Replayer {
	if speed <= 0 {
		speed = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Replayer{conn: conn, dst: dst, speed: speed, log: log}
}

// Run sends datagrams in order, then keeps counting replies for linger.
// A cancelled ctx stops the run early and is returned with the partial stats.
func (r *Replayer) Run(ctx context.Context, datagrams []Datagram, linger time.Duration) (ReplayStats, error) {
	readCtx, stopRead := context.WithCancel(ctx)
	stop := context.AfterFunc(readCtx, func() {
		r.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		r.readReplies(readCtx)
	}()

	var (
		stats ReplayStats
		err   error
	)
	start := time.Now()

send:
	for i, d := range datagrams {
		wait := time.Until(start.Add(time.Duration(float64(d.Offset) / r.speed)))
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				err = ctx.Err()
				break send
			}
		}

		if _, werr := r.conn.WriteToUDPAddrPort(d.Payload, r.dst); werr != nil {
			stats.Failed++
			r.log.Warn("replay send failed", zap.Int("index", i), zap.Error(werr))
			continue
		}
		stats.Sent++
		r.log.Debug("replayed datagram",
			zap.Int("index", i),
			zap.Int("bytes", len(d.Payload)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	if err == nil && linger > 0 {
		select {
		case <-time.After(linger):
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	stopRead()
	<-readDone

	stats.Replies = int(r.replies.Load())
	return stats, err
}

func (r *Replayer) readReplies(ctx context.Context) {
	buf := make([]byte, DefaultBufferSize)
	for {
		n, src, err := r.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			r.log.Warn("replay receive failed", zap.Error(err))
			continue
		}
		r.replies.Add(1)
		r.log.Debug("reply", zap.Stringer("from", src), zap.Int("bytes", n))
	}
}
