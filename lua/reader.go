package lua

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"

	"github.com/samaelod/netimp/types"
)

// Profile is an impairment preset loaded from a Lua script. Any subset of
// the numeric fields may be present.
//
//	return {
//		sender_drop = 10,
//		receiver_drop = 5,
//		data_delay = 200,
//		ack_delay = 50,
//		status = "lossy uplink",
//	}
type Profile struct {
	SenderDrop   *int
	ReceiverDrop *int
	DataDelay    *int
	AckDelay     *int
	Status       string
}

var profileKeys = map[string]bool{
	"sender_drop":   true,
	"receiver_drop": true,
	"data_delay":    true,
	"ack_delay":     true,
	"status":        true,
}

// Update converts the numeric fields of p into a Store update.
func (p Profile) Update() types.Update {
	return types.Update{
		SenderDropPercent:   p.SenderDrop,
		ReceiverDropPercent: p.ReceiverDrop,
		DataDelayMs:         p.DataDelay,
		AckDelayMs:          p.AckDelay,
	}
}

// ReadProfile runs the Lua file at path and maps the table it returns.
// Range checks are left to the Store that applies the profile.
func ReadProfile(path string) (Profile, error) {
	L := lua.NewState()
	defer L.Close()

	// Execute Lua file
	if err := L.DoFile(path); err != nil {
		return Profile{}, err
	}

	// Lua file returns profile table
	lv := L.Get(-1)
	table, ok := lv.(*lua.LTable)
	if !ok {
		return Profile{}, fmt.Errorf("lua file did not return a table")
	}

	if err := checkTable(table); err != nil {
		return Profile{}, fmt.Errorf("invalid profile: %w", err)
	}

	var p Profile

	// Map Lua table → Go struct
	if err := gluamapper.Map(table, &p); err != nil {
		return Profile{}, err
	}

	if p.Update().Empty() && p.Status == "" {
		return Profile{}, fmt.Errorf("invalid profile: no settings in %s", path)
	}

	return p, nil
}

// checkTable rejects unknown keys, non-integer numbers and numbers no int
// can hold, which the mapper would otherwise ignore, truncate or wrap.
func checkTable(table *lua.LTable) error {
	var errs []string
	table.ForEach(func(k, v lua.LValue) {
		key := k.String()
		if !profileKeys[key] {
			errs = append(errs, fmt.Sprintf("unknown key %q", key))
			return
		}
		if key == "status" {
			if v.Type() != lua.LTString {
				errs = append(errs, "status must be a string")
			}
			return
		}
		n, ok := v.(lua.LNumber)
		if !ok {
			errs = append(errs, fmt.Sprintf("%s must be a number", key))
			return
		}
		f := float64(n)
		switch {
		case f != math.Trunc(f):
			errs = append(errs, fmt.Sprintf("%s must be an integer, got %v", key, f))
		case math.Abs(f) >= 1<<63:
			errs = append(errs, fmt.Sprintf("%s is out of range, got %v", key, f))
		}
	})
	if len(errs) == 0 {
		return nil
	}
	sort.Strings(errs)
	return fmt.Errorf("%s", strings.Join(errs, "; "))
}
