package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// PeriodicReload reloads the watch profile from path at the given interval
// until the context is cancelled. A failed or panicking reload keeps the
// previous profile and the loop running.
func PeriodicReload(ctx context.Context, store *Store, path string, interval time.Duration) {
	for {
		reload(ctx, store, path)

		select {
		case <-time.After(interval):
			// continue
		case <-ctx.Done():
			log.Info().Msg("watch profile reload shutting down")
			return
		}
	}
}

// reload performs a single profile reload with tracing.
func reload(ctx context.Context, store *Store, path string) {
	tracer := otel.Tracer("github.com/mujykun/ucube/internal/watch")
	_, span := tracer.Start(ctx, "reload_watch_profile")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during watch profile reload: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "watch profile reload panicked")
			log.Warn().Interface("panic", r).Msg("watch profile reload panicked, recovered")
		}
	}()

	profile, err := LoadFile(path)
	if err != nil {
		// possibly transient; the previous profile stays active
		span.RecordError(err)
		span.SetStatus(codes.Error, "watch profile reload failed")
		log.Warn().Err(err).Msg("watch profile reload failed, continuing")
		return
	}

	store.Update(profile)
	span.SetStatus(codes.Ok, "watch profile reloaded")
}
