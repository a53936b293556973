package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/samaelod/netimp/types"
)

const DefaultBufferSize = 65535

// Conn is the relay socket. *net.UDPConn implements it.
type Conn interface {
	Sender
	ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error)
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
}

// Tap receives a copy of every datagram the relay sends.
type Tap interface {
	Dump(src, dst netip.AddrPort, payload []byte)
}

// Options configures a Relay. Server is required.
type Options struct {
	Server      netip.AddrPort
	Roller      Roller
	MaxInFlight int64
	BufferSize  int
	Metrics     *Metrics
	Tap         Tap
	Log         *zap.Logger
}

// Relay forwards marker-bearing datagrams between the learned client and
// the configured server, dropping or delaying them as the Store dictates.
type Relay struct {
	conn      Conn
	local     netip.AddrPort
	server    netip.AddrPort
	store     *Store
	events    *Logger
	session   Session
	scheduler *Scheduler
	metrics   *Metrics
	roller    Roller
	tap       Tap
	log       *zap.Logger
	bufSize   int
}

func New(conn Conn, store *Store, events *Logger, opts Options) *Relay {
	if opts.Roller == nil {
		opts.Roller = DefaultRoller
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	var local netip.AddrPort
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		local = ua.AddrPort()
	}

	r := &Relay{
		conn:      conn,
		local:     netip.AddrPortFrom(local.Addr().Unmap(), local.Port()),
		server:    netip.AddrPortFrom(opts.Server.Addr().Unmap(), opts.Server.Port()),
		store:     store,
		events:    events,
		scheduler: NewScheduler(conn, opts.MaxInFlight),
		metrics:   opts.Metrics,
		roller:    opts.Roller,
		tap:       opts.Tap,
		log:       opts.Log,
		bufSize:   opts.BufferSize,
	}
	r.scheduler.onChange = r.metrics.setInFlight
	return r
}

// Run receives datagrams until ctx is cancelled or the socket fails.
// Delayed sends already scheduled keep running after Run returns; use
// Drain to wait for them.
func (r *Relay) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		r.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	r.log.Info("relay running",
		zap.Stringer("local", r.local),
		zap.Stringer("server", r.server),
	)
	r.events.Note(fmt.Sprintf("Relay listening on %s, server %s", r.local, r.server))

	buf := make([]byte, r.bufSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, src, err := r.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("relay socket closed: %w", err)
			}
			r.log.Warn("receive failed", zap.Error(err))
			continue
		}

		r.handle(buf[:n], src)
	}
}

// handle runs one datagram through gate, learner, classifier and engine.
// payload aliases the receive buffer and is only valid during the call.
func (r *Relay) handle(payload []byte, src netip.AddrPort) {
	if !HasMarker(payload) {
		r.metrics.recordUnmarked()
		r.log.Debug("discarding unmarked datagram", zap.Stringer("src", src), zap.Int("size", len(payload)))
		return
	}

	src = netip.AddrPortFrom(src.Addr().Unmap(), src.Port())
	client, known, first := r.session.Learn(src, r.server.Addr())
	if first {
		r.log.Info("client learned", zap.Stringer("client", client))
		r.events.Note("Client learned: " + client.String())
	}

	dir := Classify(src.Addr(), r.server.Addr())
	dst := r.server
	if dir == types.ServerToClient {
		if !known {
			r.log.Debug("discarding server datagram", zap.Error(ErrNoClient), zap.Stringer("src", src))
			return
		}
		dst = client
	}

	d := Decide(dir, r.store.Get(), r.roller)

	switch d.Action {
	case types.ActionDrop:
		line := DroppedLine(dir)
		r.events.Event(line)
		r.store.SetStatus(line)
		r.metrics.record(dir, types.OutcomeDropped)

	case types.ActionForwardNow:
		if _, err := r.scheduler.SendNow(payload, dst); err != nil {
			r.log.Warn("send failed", zap.Stringer("dst", dst), zap.Error(err))
			return
		}
		r.sent(dir, dst, payload)
		r.store.SetStatus(ForwardedLine(dir))
		r.metrics.record(dir, types.OutcomeForwarded)

	case types.ActionDelay:
		ms := d.DelayMs
		delay := time.Duration(ms) * time.Millisecond
		data := bytes.Clone(payload)

		err := r.scheduler.SendLater(delay, data, dst, func(_ int, err error) {
			if err != nil {
				r.log.Debug("delayed send failed", zap.Stringer("dst", dst), zap.Error(err))
				return
			}
			line := DelayedLine(dir, ms)
			r.events.Event(line)
			r.store.SetStatus(line)
			r.sent(dir, dst, data)
		})
		if err != nil {
			r.metrics.record(dir, types.OutcomeOverflow)
			r.events.Note(fmt.Sprintf("%s packet discarded: %v", dir.Label(), err))
			return
		}
		r.metrics.record(dir, types.OutcomeDelayed)
		r.metrics.recordDelay(dir, delay)
	}
}

func (r *Relay) sent(dir types.Direction, dst netip.AddrPort, payload []byte) {
	r.metrics.recordSent(dir, len(payload))
	if r.tap != nil {
		r.tap.Dump(r.local, dst, payload)
	}
}

// Drain waits for pending delayed sends until ctx is done.
func (r *Relay) Drain(ctx context.Context) error {
	return r.scheduler.Wait(ctx)
}

func (r *Relay) Local() netip.AddrPort  { return r.local }
func (r *Relay) Server() netip.AddrPort { return r.server }
func (r *Relay) Store() *Store          { return r.store }
func (r *Relay) Events() *Logger        { return r.events }
func (r *Relay) Metrics() *Metrics      { return r.metrics }
func (r *Relay) InFlight() int64        { return r.scheduler.InFlight() }

// Client returns the learned client endpoint, if any.
func (r *Relay) Client() (netip.AddrPort, bool) {
	return r.session.Client()
}
