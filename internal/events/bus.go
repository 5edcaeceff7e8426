// Package events carries notification dispatch between the tracker and
// registered hooks. The bus isolates hook failures: a hook that returns an
// error or panics is logged and skipped, and never prevents later hooks or
// later notifications from being delivered.
package events

import (
	evbus "github.com/asaskevich/EventBus"
	"github.com/rs/zerolog/log"

	"github.com/mujykun/ucube/models"
)

// TopicNotification is the topic newly-seen notifications are published on.
const TopicNotification = "notification:new"

// NotificationHook receives one newly-seen notification. Returned errors
// are logged, not propagated.
type NotificationHook func(*models.Notification) error

// Bus wraps an in-process event bus. Subscription order is dispatch order.
type Bus struct {
	bus evbus.Bus
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{bus: evbus.New()}
}

// SubscribeNotifications registers a hook for new notifications. Hooks run
// synchronously on the publisher's goroutine, in registration order.
func (b *Bus) SubscribeNotifications(hook NotificationHook) {
	wrapped := func(n *models.Notification) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("notification", n.Slug).
					Msg("notification hook panicked")
			}
		}()

		if err := hook(n); err != nil {
			log.Warn().
				Err(err).
				Str("notification", n.Slug).
				Msg("notification hook failed")
		}
	}

	if err := b.bus.Subscribe(TopicNotification, wrapped); err != nil {
		// Subscribe only rejects non-function handlers; wrapped is always
		// a function, so this stays theoretical.
		log.Error().Err(err).Msg("notification hook registration failed")
	}
}

// PublishNotification delivers one notification to every hook.
func (b *Bus) PublishNotification(n *models.Notification) {
	b.bus.Publish(TopicNotification, n)
}

// HasHooks reports whether any notification hook is registered.
func (b *Bus) HasHooks() bool {
	return b.bus.HasCallback(TopicNotification)
}
