package engine_test

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/netimp/engine"
	"github.com/samaelod/netimp/types"
)

func TestHasMarker(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    bool
	}{
		{"empty", nil, false},
		{"single byte", []byte{0x03}, false},
		{"marker only", []byte{0x03, 0x03}, true},
		{"marker at start", []byte{0x03, 0x03, 'h', 'i'}, true},
		{"marker in middle", []byte{'a', 0x03, 0x03, 'b'}, true},
		{"marker at end", []byte{'a', 'b', 0x03, 0x03}, true},
		{"split marker", []byte{0x03, 'x', 0x03}, false},
		{"plain text", []byte("hello"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.HasMarker(tt.payload))
		})
	}
}

func TestClassify(t *testing.T) {
	server := netip.MustParseAddr("10.0.0.2")

	tests := []struct {
		name string
		src  netip.Addr
		want types.Direction
	}{
		{"from server", netip.MustParseAddr("10.0.0.2"), types.ServerToClient},
		{"from server, mapped", netip.MustParseAddr("::ffff:10.0.0.2"), types.ServerToClient},
		{"from client", netip.MustParseAddr("10.0.0.1"), types.ClientToServer},
		{"from a stranger", netip.MustParseAddr("192.168.1.9"), types.ClientToServer},
		{"from v6 client", netip.MustParseAddr("fd00::1"), types.ClientToServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.Classify(tt.src, server))
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	server := netip.MustParseAddr("10.0.0.2")
	client := netip.MustParseAddr("10.0.0.1")

	for i := 0; i < 100; i++ {
		require.Equal(t, types.ClientToServer, engine.Classify(client, server))
		require.Equal(t, types.ServerToClient, engine.Classify(server, server))
	}
}

func TestSessionLearnsOnce(t *testing.T) {
	server := netip.MustParseAddr("10.0.0.2")
	first := netip.MustParseAddrPort("10.0.0.1:5000")
	second := netip.MustParseAddrPort("10.0.0.3:6000")

	var s engine.Session

	_, known := s.Client()
	assert.False(t, known)

	// the server is never learned as the client
	_, known, learned := s.Learn(netip.MustParseAddrPort("10.0.0.2:9000"), server)
	assert.False(t, known)
	assert.False(t, learned)

	client, known, learned := s.Learn(first, server)
	assert.Equal(t, first, client)
	assert.True(t, known)
	assert.True(t, learned)

	client, known, learned = s.Learn(second, server)
	assert.Equal(t, first, client)
	assert.True(t, known)
	assert.False(t, learned)

	got, ok := s.Client()
	assert.True(t, ok)
	assert.Equal(t, first, got)
}

func TestSessionLearnConcurrent(t *testing.T) {
	server := netip.MustParseAddr("10.0.0.2")

	var (
		s       engine.Session
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(port uint16) {
			defer wg.Done()
			src := netip.AddrPortFrom(netip.MustParseAddr("10.0.0.1"), port)
			if _, _, learned := s.Learn(src, server); learned {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(uint16(1000 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}
