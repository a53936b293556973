package engine

import (
	"bytes"
	"net/netip"

	"github.com/samaelod/netimp/types"
)

// Marker is the in-band byte pair a datagram must carry to be relayed at all.
var Marker = []byte{0x03, 0x03}

// HasMarker reports whether payload contains Marker anywhere.
func HasMarker(payload []byte) bool {
	return bytes.Contains(payload, Marker)
}

// Classify tags a datagram by comparing its source IP with the server IP.
// Ports are not compared, so a client sharing the server's IP is seen as
// the server.
func Classify(src, server netip.Addr) types.Direction {
	if src.Unmap() == server.Unmap() {
		return types.ServerToClient
	}
	return types.ClientToServer
}
