package capture

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const (
	DefaultSnapLen = 65535
	queueSize      = 4096
)

type snapshot struct {
	at       time.Time
	src, dst netip.AddrPort
	payload  []byte
}

// Trace writes relayed datagrams to a pcap file. Each datagram is wrapped
// in synthetic IP and UDP headers (link type RAW) so standard tools decode it.
//
// Dump never blocks; when the writer falls behind, datagrams are counted in
// Dropped instead of being written.
type Trace struct {
	wc      io.WriteCloser
	snapLen uint32

	mu      sync.RWMutex
	closed  bool
	snaps   chan snapshot
	errch   chan error
	dropped atomic.Uint64
	once    sync.Once
}

// NewTrace writes the pcap header to wc and starts the background writer.
func NewTrace(wc io.WriteCloser, snapLen uint32) (*Trace, error) {
	if snapLen == 0 {
		snapLen = DefaultSnapLen
	}

	w := pcapgo.NewWriter(wc)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeRaw); err != nil {
		return nil, err
	}

	tr := &Trace{
		wc:      wc,
		snapLen: snapLen,
		snaps:   make(chan snapshot, queueSize),
		errch:   make(chan error, 1),
	}
	go tr.saveLoop(w)
	return tr, nil
}

// Dump queues a copy of payload sent from src to dst. Calls after Close
// are ignored.
func (tr *Trace) Dump(src, dst netip.AddrPort, payload []byte) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	if tr.closed {
		return
	}

	snap := snapshot{
		at:      time.Now(),
		src:     src,
		dst:     dst,
		payload: append([]byte(nil), payload...),
	}
	select {
	case tr.snaps <- snap:
	default:
		tr.dropped.Add(1)
	}
}

// Dropped returns the number of datagrams not written because the queue was full.
func (tr *Trace) Dropped() uint64 {
	return tr.dropped.Load()
}

func (tr *Trace) saveLoop(w *pcapgo.Writer) {
	var err error
	for snap := range tr.snaps {
		if err != nil {
			continue // drain so Dump callers never block on a dead writer
		}
		err = tr.save(w, snap)
	}
	tr.errch <- err
}

func (tr *Trace) save(w *pcapgo.Writer, snap snapshot) error {
	frame, err := encode(snap.src, snap.dst, snap.payload)
	if err != nil {
		return err
	}

	data := frame
	if uint32(len(data)) > tr.snapLen {
		data = data[:tr.snapLen]
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     snap.at,
		CaptureLength: len(data),
		Length:        len(frame),
	}
	return w.WritePacket(ci, data)
}

// Close stops accepting datagrams, writes the queued ones and closes the file.
func (tr *Trace) Close() (err error) {
	tr.once.Do(func() {
		tr.mu.Lock()
		tr.closed = true
		close(tr.snaps)
		tr.mu.Unlock()

		err1 := <-tr.errch
		err2 := tr.wc.Close()
		err = errors.Join(err1, err2)
	})
	return
}

// encode builds an IPv4 or IPv6 + UDP frame around payload.
func encode(src, dst netip.AddrPort, payload []byte) ([]byte, error) {
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port()),
		DstPort: layers.UDPPort(dst.Port()),
	}
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	buf := gopacket.NewSerializeBuffer()

	srcIP, dstIP := src.Addr().Unmap(), dst.Addr().Unmap()
	if srcIP.Is4() && dstIP.Is4() {
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IP(srcIP.AsSlice()),
			DstIP:    net.IP(dstIP.AsSlice()),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(payload)); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	s16, d16 := srcIP.As16(), dstIP.As16()
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      net.IP(s16[:]),
		DstIP:      net.IP(d16[:]),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
