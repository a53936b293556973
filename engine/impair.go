package engine

import (
	"math/rand/v2"

	"github.com/samaelod/netimp/types"
)

// Roller draws uniform integers in [0, n). Implementations must be safe
// for concurrent use.
type Roller interface {
	IntN(n int) int
}

type globalRoller struct{}

func (globalRoller) IntN(n int) int { return rand.IntN(n) }

// DefaultRoller draws from the runtime's per-goroutine generator, so
// consecutive draws share no seed stepping.
var DefaultRoller Roller = globalRoller{}

// Decide rolls the impairment for one datagram travelling in dir.
//
// A roll in [1,100] at or below the drop percentage drops the datagram.
// Otherwise a delay is drawn in [0, bound]; zero forwards immediately.
// Bounds above MaxDelayMs are treated as MaxDelayMs.
func Decide(dir types.Direction, cfg types.ImpairmentConfig, r Roller) types.Decision {
	if r == nil {
		r = DefaultRoller
	}

	if 1+r.IntN(100) <= cfg.DropPercent(dir) {
		return types.Drop()
	}

	bound := min(cfg.DelayBoundMs(dir), MaxDelayMs)
	if bound <= 0 {
		return types.ForwardNow()
	}
	ms := r.IntN(bound + 1)
	if ms == 0 {
		return types.ForwardNow()
	}
	return types.Delay(ms)
}
