package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/samaelod/netimp/engine"
)

// Record is one relayed datagram read back from a capture file.
type Record struct {
	Time    time.Time
	Src     netip.AddrPort
	Dst     netip.AddrPort
	Length  int // UDP payload length as sent, before snapping
	Marker  bool
	Payload []byte // captured bytes, possibly snapped
}

type packetSource interface {
	LinkType() layers.LinkType
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
}

func detectFormat(path string) (format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	// Read first 4 bytes to check magic
	header := make([]byte, 4)
	n, err := io.ReadFull(file, header)
	if err != nil || n < 4 {
		return "pcap", nil // let the pcap reader report the problem
	}

	magic := uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16 | uint32(header[3])<<24
	if magic == 0x0A0D0D0A {
		return "pcapng", nil
	}
	return "pcap", nil
}

func openPacketSource(path string) (packetSource, io.Closer, error) {
	format, err := detectFormat(path)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	if format == "pcapng" {
		reader, err := pcapgo.NewNgReader(file, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			file.Close()
			return nil, nil, err
		}
		return reader, file, nil
	}

	reader, err := pcapgo.NewReader(file)
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return reader, file, nil
}

// Read decodes every UDP datagram in a pcap or pcapng file.
func Read(path string) ([]Record, error) {
	source, closer, err := openPacketSource(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	defer closer.Close()

	var records []Record
	for {
		data, ci, err := source.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, err
		}

		packet := gopacket.NewPacket(data, source.LinkType(), gopacket.Default)
		rec, ok := decode(packet, ci)
		if !ok {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func decode(packet gopacket.Packet, ci gopacket.CaptureInfo) (Record, bool) {
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return Record{}, false
	}
	udp := udpLayer.(*layers.UDP)

	var srcIP, dstIP netip.Addr
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		srcIP, _ = netip.AddrFromSlice(ip.SrcIP.To4())
		dstIP, _ = netip.AddrFromSlice(ip.DstIP.To4())
	case *layers.IPv6:
		srcIP, _ = netip.AddrFromSlice(ip.SrcIP)
		dstIP, _ = netip.AddrFromSlice(ip.DstIP)
	default:
		return Record{}, false
	}

	length := int(udp.Length) - 8
	if length < 0 || ci.Length == ci.CaptureLength {
		length = len(udp.Payload)
	}

	return Record{
		Time:    ci.Timestamp,
		Src:     netip.AddrPortFrom(srcIP, uint16(udp.SrcPort)),
		Dst:     netip.AddrPortFrom(dstIP, uint16(udp.DstPort)),
		Length:  length,
		Marker:  engine.HasMarker(udp.Payload),
		Payload: bytes.Clone(udp.Payload),
	}, true
}

// Datagrams turns records into a replay run. A valid from keeps only
// records sent by that address; offsets are relative to the first kept.
func Datagrams(records []Record, from netip.Addr) []engine.Datagram {
	var (
		out   []engine.Datagram
		first time.Time
	)
	for _, r := range records {
		if from.IsValid() && r.Src.Addr() != from.Unmap() {
			continue
		}
		if len(out) == 0 {
			first = r.Time
		}
		out = append(out, engine.Datagram{
			Offset:  r.Time.Sub(first),
			Payload: r.Payload,
		})
	}
	return out
}
