package capture_test

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/netimp/capture"
	"github.com/samaelod/netimp/engine"
)

var (
	client = netip.MustParseAddrPort("10.0.0.1:40000")
	relay  = netip.MustParseAddrPort("10.0.0.9:9000")
	server = netip.MustParseAddrPort("10.0.0.2:5000")
)

func marked(s string) []byte {
	return append(append([]byte(nil), engine.Marker...), s...)
}

func writeTrace(t *testing.T, snapLen uint32, dump func(tr *capture.Trace)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)

	tr, err := capture.NewTrace(f, snapLen)
	require.NoError(t, err)
	dump(tr)
	require.NoError(t, tr.Close())
	return path
}

func TestTraceRoundTrip(t *testing.T) {
	path := writeTrace(t, 0, func(tr *capture.Trace) {
		tr.Dump(client, server, marked("hello"))
		tr.Dump(server, client, []byte("plain"))
	})

	records, err := capture.Read(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, client, records[0].Src)
	assert.Equal(t, server, records[0].Dst)
	assert.Equal(t, marked("hello"), records[0].Payload)
	assert.Equal(t, 7, records[0].Length)
	assert.True(t, records[0].Marker)

	assert.Equal(t, server, records[1].Src)
	assert.Equal(t, client, records[1].Dst)
	assert.Equal(t, []byte("plain"), records[1].Payload)
	assert.False(t, records[1].Marker)

	assert.False(t, records[1].Time.Before(records[0].Time))
}

func TestTraceIPv6(t *testing.T) {
	src := netip.MustParseAddrPort("[2001:db8::1]:1000")
	dst := netip.MustParseAddrPort("[2001:db8::2]:2000")

	path := writeTrace(t, 0, func(tr *capture.Trace) {
		tr.Dump(src, dst, marked("v6"))
	})

	records, err := capture.Read(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, src, records[0].Src)
	assert.Equal(t, dst, records[0].Dst)
	assert.True(t, records[0].Marker)
}

func TestTraceSnapLength(t *testing.T) {
	payload := bytes.Repeat([]byte{0x03}, 30)

	// 20 byte IPv4 header, 8 byte UDP header, 12 bytes of payload
	path := writeTrace(t, 40, func(tr *capture.Trace) {
		tr.Dump(client, server, payload)
	})

	records, err := capture.Read(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 30, records[0].Length)
	assert.Len(t, records[0].Payload, 12)
}

func TestTraceIgnoresDumpAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)

	tr, err := capture.NewTrace(f, 0)
	require.NoError(t, err)
	tr.Dump(client, server, marked("kept"))
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	tr.Dump(client, server, marked("lost"))

	records, err := capture.Read(path)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Zero(t, tr.Dropped())
}

func TestReadMissingFile(t *testing.T) {
	_, err := capture.Read(filepath.Join(t.TempDir(), "nope.pcap"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open capture")
}

func TestDatagrams(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	records := []capture.Record{
		{Time: t0, Src: server, Dst: relay, Payload: []byte("early reply")},
		{Time: t0.Add(10 * time.Millisecond), Src: client, Dst: relay, Payload: []byte("a")},
		{Time: t0.Add(15 * time.Millisecond), Src: server, Dst: relay, Payload: []byte("reply")},
		{Time: t0.Add(40 * time.Millisecond), Src: client, Dst: relay, Payload: []byte("b")},
	}

	t.Run("all", func(t *testing.T) {
		got := capture.Datagrams(records, netip.Addr{})
		require.Len(t, got, 4)
		assert.Zero(t, got[0].Offset)
		assert.Equal(t, 40*time.Millisecond, got[3].Offset)
	})

	t.Run("from client", func(t *testing.T) {
		got := capture.Datagrams(records, client.Addr())
		assert.Equal(t, []engine.Datagram{
			{Offset: 0, Payload: []byte("a")},
			{Offset: 30 * time.Millisecond, Payload: []byte("b")},
		}, got)
	})

	t.Run("mapped address", func(t *testing.T) {
		got := capture.Datagrams(records, netip.MustParseAddr("::ffff:10.0.0.1"))
		assert.Len(t, got, 2)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, capture.Datagrams(records, netip.MustParseAddr("192.0.2.1")))
	})
}

func TestFlows(t *testing.T) {
	records := []capture.Record{
		{Src: client, Dst: server, Length: 10},
		{Src: server, Dst: client, Length: 4},
		{Src: client, Dst: server, Length: 6},
	}

	assert.Equal(t, []capture.Flow{
		{Src: client.String(), Dst: server.String(), Count: 2, Bytes: 16},
		{Src: server.String(), Dst: client.String(), Count: 1, Bytes: 4},
	}, capture.Flows(records))
}

func TestShow(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	records := []capture.Record{
		{Time: t0, Src: client, Dst: server, Length: 7, Marker: true},
		{Time: t0.Add(250 * time.Millisecond), Src: server, Dst: client, Length: 5},
	}

	var buf bytes.Buffer
	capture.Show(&buf, records, 0)
	out := buf.String()

	assert.Contains(t, out, "10.0.0.1:40000")
	assert.Contains(t, out, "10.0.0.2:5000")
	assert.Contains(t, out, "12:00:00.250")
	assert.Contains(t, out, "2 datagrams over 250ms")

	buf.Reset()
	capture.Show(&buf, nil, 10)
	assert.Equal(t, "No datagrams in capture.\n", buf.String())
}
