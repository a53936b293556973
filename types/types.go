package types

import "fmt"

// Endpoints are plain netip.AddrPort values throughout; they are
// comparable and immutable.

// Direction of a datagram through the relay.
type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
)

// Label is the role name used in event lines ("Sender" / "Receiver").
func (d Direction) Label() string {
	if d == ServerToClient {
		return "Receiver"
	}
	return "Sender"
}

func (d Direction) String() string {
	if d == ServerToClient {
		return "server->client"
	}
	return "client->server"
}

// ImpairmentConfig holds the live impairment parameters.
type ImpairmentConfig struct {
	SenderDropPercent   int
	ReceiverDropPercent int
	DataDelayMs         int // upper bound for client->server delays
	AckDelayMs          int // upper bound for server->client delays
}

// DropPercent returns the drop percentage that applies to dir.
func (c ImpairmentConfig) DropPercent(dir Direction) int {
	if dir == ServerToClient {
		return c.ReceiverDropPercent
	}
	return c.SenderDropPercent
}

// DelayBoundMs returns the delay upper bound that applies to dir.
func (c ImpairmentConfig) DelayBoundMs(dir Direction) int {
	if dir == ServerToClient {
		return c.AckDelayMs
	}
	return c.DataDelayMs
}

// Update is a partial change to an ImpairmentConfig. Nil fields are left untouched.
type Update struct {
	SenderDropPercent   *int
	ReceiverDropPercent *int
	DataDelayMs         *int
	AckDelayMs          *int
}

func (u Update) Empty() bool {
	return u.SenderDropPercent == nil && u.ReceiverDropPercent == nil &&
		u.DataDelayMs == nil && u.AckDelayMs == nil
}

// Apply returns cfg with every present field of u applied.
func (u Update) Apply(cfg ImpairmentConfig) ImpairmentConfig {
	if u.SenderDropPercent != nil {
		cfg.SenderDropPercent = *u.SenderDropPercent
	}
	if u.ReceiverDropPercent != nil {
		cfg.ReceiverDropPercent = *u.ReceiverDropPercent
	}
	if u.DataDelayMs != nil {
		cfg.DataDelayMs = *u.DataDelayMs
	}
	if u.AckDelayMs != nil {
		cfg.AckDelayMs = *u.AckDelayMs
	}
	return cfg
}

// FullUpdate turns a whole config into an Update that sets every field.
func FullUpdate(cfg ImpairmentConfig) Update {
	return Update{
		SenderDropPercent:   &cfg.SenderDropPercent,
		ReceiverDropPercent: &cfg.ReceiverDropPercent,
		DataDelayMs:         &cfg.DataDelayMs,
		AckDelayMs:          &cfg.AckDelayMs,
	}
}

type Action int

const (
	ActionForwardNow Action = iota
	ActionDelay
	ActionDrop
)

// Decision is the impairment verdict for one datagram.
type Decision struct {
	Action  Action
	DelayMs int // only meaningful for ActionDelay
}

func Drop() Decision        { return Decision{Action: ActionDrop} }
func ForwardNow() Decision  { return Decision{Action: ActionForwardNow} }
func Delay(ms int) Decision { return Decision{Action: ActionDelay, DelayMs: ms} }

func (d Decision) String() string {
	switch d.Action {
	case ActionDrop:
		return "drop"
	case ActionDelay:
		return fmt.Sprintf("delay(%dms)", d.DelayMs)
	default:
		return "forward"
	}
}

// Outcome labels used by metrics and the control panel counters.
type Outcome int

const (
	OutcomeForwarded Outcome = iota
	OutcomeDelayed
	OutcomeDropped
	OutcomeOverflow
	OutcomeUnmarked
	numOutcomes
)

// NumOutcomes is the number of Outcome values.
const NumOutcomes = int(numOutcomes)

func (o Outcome) String() string {
	switch o {
	case OutcomeForwarded:
		return "forwarded"
	case OutcomeDelayed:
		return "delayed"
	case OutcomeDropped:
		return "dropped"
	case OutcomeOverflow:
		return "overflow"
	case OutcomeUnmarked:
		return "unmarked"
	}
	return "unknown"
}
