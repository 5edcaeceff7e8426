// Package server carries the daemon's shutdown orchestration: a list of
// named hooks executed in registration order when the process winds down.
package server

import (
	"context"

	"github.com/rs/zerolog/log"
)

type hookDefinition struct {
	name string
	fn   func(context.Context) error
}

// ShutdownHooks collects cleanup work to run at shutdown. Hooks run in the
// order they were added; a failing hook is logged and does not stop the
// rest. The zero value is ready to use.
type ShutdownHooks struct {
	hooks []hookDefinition
}

// AddContext registers a hook that receives the shutdown context, which
// may carry a deadline. Nil hooks are ignored with a warning.
func (s *ShutdownHooks) AddContext(name string, hook func(context.Context) error) {
	if hook == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}

	log.Debug().Str("hook", name).Msg("adding shutdown hook")
	s.hooks = append(s.hooks, hookDefinition{name: name, fn: hook})
}

// Add registers a hook that needs no context.
func (s *ShutdownHooks) Add(name string, hook func() error) {
	if hook == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}

	s.AddContext(name, func(context.Context) error {
		return hook()
	})
}

// AddClose registers any resource with a Close method. Close's return
// value, if any, is ignored.
func (s *ShutdownHooks) AddClose(name string, closer interface{ Close() }) {
	if closer == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}

	s.AddContext(name, func(context.Context) error {
		closer.Close()
		return nil
	})
}

// Execute runs every registered hook in order, logging each outcome.
func (s *ShutdownHooks) Execute(ctx context.Context) {
	l := log.Ctx(ctx)
	for _, hook := range s.hooks {
		hookLog := l.With().Str("hook", hook.name).Logger()

		hookLog.Info().Msg("shutdown started")
		if err := hook.fn(ctx); err != nil {
			hookLog.Warn().Err(err).Msg("shutdown failed")
		} else {
			hookLog.Info().Msg("shutdown complete")
		}
	}
}
