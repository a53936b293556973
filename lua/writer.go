package lua

import (
	"fmt"
	"io"
	"time"

	"github.com/samaelod/netimp/types"
)

// WriteProfile writes cfg and status as a Lua profile script.
func WriteProfile(w io.Writer, cfg types.ImpairmentConfig, status string) error {
	fmt.Fprintf(w, "-- netimp profile, saved %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintln(w, "local profile = {}")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "-- client -> server ---------------------------------")
	fmt.Fprintf(w, "profile.sender_drop = %d -- %% chance to drop\n", cfg.SenderDropPercent)
	fmt.Fprintf(w, "profile.data_delay = %d -- ms, upper bound\n", cfg.DataDelayMs)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "-- server -> client ---------------------------------")
	fmt.Fprintf(w, "profile.receiver_drop = %d -- %% chance to drop\n", cfg.ReceiverDropPercent)
	fmt.Fprintf(w, "profile.ack_delay = %d -- ms, upper bound\n", cfg.AckDelayMs)
	fmt.Fprintln(w)

	if status != "" {
		fmt.Fprintf(w, "profile.status = %q\n", status)
		fmt.Fprintln(w)
	}

	_, err := fmt.Fprintln(w, "return profile")
	return err
}
