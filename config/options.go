package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/samaelod/netimp/engine"
	"github.com/samaelod/netimp/types"
)

// Options are the startup parameters of one relay process.
type Options struct {
	ReceiverIP   string
	ReceiverPort int
	BindIP       string // empty: outbound interface address
	BindPort     int

	SenderDrop   int
	ReceiverDrop int
	DataDelay    int
	AckDelay     int

	ConfigPath  string
	LogPath     string
	CapturePath string
	ProfilePath string
	MetricsAddr string
	MaxInFlight int
	Headless    bool
	Drain       time.Duration
}

// Validate reports every invalid option at once.
func (o Options) Validate() error {
	var errs []error

	if _, err := netip.ParseAddr(o.ReceiverIP); err != nil {
		errs = append(errs, fmt.Errorf("receiver IP %q is not a valid IPv4 or IPv6 address", o.ReceiverIP))
	}
	if o.BindIP != "" {
		if _, err := netip.ParseAddr(o.BindIP); err != nil {
			errs = append(errs, fmt.Errorf("bind IP %q is not a valid IPv4 or IPv6 address", o.BindIP))
		}
	}
	if o.ReceiverPort < 0 || o.ReceiverPort > 65535 {
		errs = append(errs, fmt.Errorf("receiver port %d out of range [0, 65535]", o.ReceiverPort))
	}
	if o.BindPort < 0 || o.BindPort > 65535 {
		errs = append(errs, fmt.Errorf("bind port %d out of range [0, 65535]", o.BindPort))
	}
	if err := engine.Validate(o.Impairment()); err != nil {
		errs = append(errs, err)
	}
	if o.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("max in-flight %d must be >= 0", o.MaxInFlight))
	}
	if o.Drain < 0 {
		errs = append(errs, fmt.Errorf("drain %s must be >= 0", o.Drain))
	}

	return errors.Join(errs...)
}

// Impairment returns the initial impairment parameters.
func (o Options) Impairment() types.ImpairmentConfig {
	return types.ImpairmentConfig{
		SenderDropPercent:   o.SenderDrop,
		ReceiverDropPercent: o.ReceiverDrop,
		DataDelayMs:         o.DataDelay,
		AckDelayMs:          o.AckDelay,
	}
}

// Server returns the configured receiver endpoint. Call Validate first.
func (o Options) Server() netip.AddrPort {
	addr, _ := netip.ParseAddr(o.ReceiverIP)
	return netip.AddrPortFrom(addr.Unmap(), uint16(o.ReceiverPort))
}

// Bind returns the bind address, or the zero Addr when none was given.
func (o Options) Bind() netip.Addr {
	if o.BindIP == "" {
		return netip.Addr{}
	}
	addr, _ := netip.ParseAddr(o.BindIP)
	return addr.Unmap()
}

// Flags renders o as a command line, with cfg in place of the startup
// impairment values.
func Flags(o Options, cfg types.ImpairmentConfig) string {
	parts := []string{
		fmt.Sprintf("--rip %s", o.ReceiverIP),
		fmt.Sprintf("--rport %d", o.ReceiverPort),
		fmt.Sprintf("--port %d", o.BindPort),
		fmt.Sprintf("--dropd %d", cfg.SenderDropPercent),
		fmt.Sprintf("--dropa %d", cfg.ReceiverDropPercent),
		fmt.Sprintf("--delays %d", cfg.DataDelayMs),
		fmt.Sprintf("--delayr %d", cfg.AckDelayMs),
	}
	if o.BindIP != "" {
		parts = append(parts, "--bind-ip "+o.BindIP)
	}
	return "netimp " + strings.Join(parts, " ")
}
