package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/samaelod/netimp/engine"
	"github.com/samaelod/netimp/types"
)

type screen int

const (
	screenControl screen = iota
	screenProfilePicker
)

// field indexes the editable impairment parameters. The log viewport sits
// after the last field in the focus cycle.
type field int

const (
	fieldSenderDrop field = iota
	fieldReceiverDrop
	fieldDataDelay
	fieldAckDelay
	numFields
)

const focusLogs = int(numFields)

var fieldLabels = [numFields]string{
	"Sender drop %",
	"Receiver drop %",
	"Data delay ms",
	"Ack delay ms",
}

// Options configure the control panel.
type Options struct {
	Version       string
	Session       string
	ProfilePath   string
	ProfileStatus string
	RecentDir     string

	// Flags renders the command line equivalent to cfg, for ctrl+y.
	Flags func(cfg types.ImpairmentConfig) string
}

type Model struct {
	screen screen
	relay  *engine.Relay
	opts   Options

	inputs [numFields]textinput.Model
	shown  types.ImpairmentConfig // values last loaded into inputs
	focus  int

	err    error
	notice string

	// label of the last loaded profile, written back by ctrl+w
	profileStatus string

	picker profilePicker

	width  int
	height int

	logViewport viewport.Model
	logContent  string // cached log content for editor

	// signalled by the Store after every applied update
	configCh <-chan struct{}

	// last values shown, refreshed on tick
	status   string
	client   string
	counts   engine.Counts
	inFlight int64
}

const (
	minWindowWidth  = 80
	minWindowHeight = 24
	formWidth       = 36
	footerHeight    = 3
	inputCharLimit  = 7
)
