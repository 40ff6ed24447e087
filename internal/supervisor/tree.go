// Package supervisor restarts the daemon's long-running services when they fail.
//
// The tree has two layers so a crashing status server never interrupts reconciliation:
//   - work: the reconcile dispatcher and the scan scheduler
//   - api: the HTTP status server
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds restart and shutdown limits. Zero values take the defaults.
type TreeConfig struct {
	FailureThreshold float64       // failures before backing off (default: 5)
	FailureDecay     float64       // seconds for the failure count to decay (default: 30)
	FailureBackoff   time.Duration // pause once the threshold is crossed (default: 15s)
	ShutdownTimeout  time.Duration // per-service stop deadline (default: 10s)
}

// DefaultTreeConfig returns suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the root supervisor and its two layers.
type Tree struct {
	root *suture.Supervisor
	work *suture.Supervisor
	api  *suture.Supervisor
}

// New builds the tree; supervision events are logged through logger.
func New(logger *slog.Logger, config TreeConfig) *Tree {
	defaults := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = defaults.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = defaults.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	// MustHook has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logger}

	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	rootSpec := childSpec
	rootSpec.EventHook = handler.MustHook()

	t := &Tree{
		root: suture.New("plsync", rootSpec),
		work: suture.New("work-layer", childSpec),
		api:  suture.New("api-layer", childSpec),
	}
	t.root.Add(t.work)
	t.root.Add(t.api)
	return t
}

// AddWorkService supervises a scheduler or dispatcher.
func (t *Tree) AddWorkService(svc suture.Service) suture.ServiceToken {
	return t.work.Add(svc)
}

// AddAPIService supervises the status server.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is done, which counts as a clean stop.
func (t *Tree) Serve(ctx context.Context) error {
	err := t.root.Serve(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
