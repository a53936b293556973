package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/samaelod/netimp/engine"
	"github.com/samaelod/netimp/lua"
)

// applyProfile reads the Lua profile at path and applies it to store.
// Nothing changes when the script or any of its values is invalid.
func applyProfile(store *engine.Store, path string) (lua.Profile, error) {
	p, err := lua.ReadProfile(path)
	if err != nil {
		return lua.Profile{}, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := store.Set(p.Update()); err != nil {
		return lua.Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	if p.Status != "" {
		store.SetStatus(p.Status)
	}
	return p, nil
}

// reloadOnHangup re-applies the profile at path on every SIGHUP until ctx
// is done. A bad reload is logged and the running values stay.
func reloadOnHangup(ctx context.Context, path string, store *engine.Store, events *engine.Logger, log *zap.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if _, err := applyProfile(store, path); err != nil {
				log.Warn("profile reload failed", zap.Error(err))
				events.Note("Profile reload failed: " + err.Error())
				continue
			}
			log.Info("profile reloaded", zap.String("path", path))
			events.Note("Profile reloaded: " + path)
		}
	}
}
