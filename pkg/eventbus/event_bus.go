// Package eventbus provides event-driven communication infrastructure for
// transaction lifecycle notifications and alert delivery.
package eventbus

import (
	"context"

	"github.com/dealflow/dealflow/pkg/events"
	"github.com/dealflow/dealflow/pkg/models"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event interface{}) error

// AlertSink is the fire-and-forget alert delivery interface the engine and
// the deadline monitor publish through.
type AlertSink interface {
	PublishAlert(ctx context.Context, alert *models.Alert) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	AlertSink
	Close() error
	GenerateID() string
}
