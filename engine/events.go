package engine

import (
	"fmt"

	"github.com/samaelod/netimp/types"
)

// The event lines below are parsed by an external plotter that searches for
// these substrings and reads the integer that follows. Do not reword them.

// DroppedLine returns "Sender packet dropped" or "Receiver packet dropped".
func DroppedLine(dir types.Direction) string {
	return dir.Label() + " packet dropped"
}

// DelayedLine returns "Sender packet delayed <ms>" or "Receiver packet delayed <ms>".
func DelayedLine(dir types.Direction, ms int) string {
	return fmt.Sprintf("%s packet delayed %d", dir.Label(), ms)
}

// ForwardedLine is used for the status line only; immediate sends are not events.
func ForwardedLine(dir types.Direction) string {
	return dir.Label() + " packet forwarded"
}
