// Package supervisor runs the long-lived parts of the process under a
// suture tree: the HTTP server in the api layer and the broker consumer in
// the messaging layer. A crash in one layer is restarted without touching
// the other.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// TreeConfig holds supervisor tree configuration. Zero values take suture's
// defaults.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

type Tree struct {
	root      *suture.Supervisor
	api       *suture.Supervisor
	messaging *suture.Supervisor
}

func NewTree(log zerolog.Logger, cfg TreeConfig) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	spec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := spec
	spec.EventHook = eventHook(log.With().Str("component", "supervisor").Logger())

	t := &Tree{
		root:      suture.New("sakila-city-api", spec),
		api:       suture.New("api-layer", childSpec),
		messaging: suture.New("messaging-layer", childSpec),
	}
	t.root.Add(t.api)
	t.root.Add(t.messaging)
	return t
}

func eventHook(log zerolog.Logger) suture.EventHook {
	return func(ev suture.Event) {
		e := log.Warn()
		if ev.Type() == suture.EventTypeServicePanic {
			e = log.Error()
		}
		e.Fields(ev.Map()).Msg(ev.String())
	}
}

func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

func (t *Tree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.messaging.Add(svc)
}

// Serve blocks until ctx is cancelled and every service has stopped.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}
