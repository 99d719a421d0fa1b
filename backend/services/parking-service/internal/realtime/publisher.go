// Package realtime pushes lane events to dashboard websockets.
package realtime

import (
	"context"

	"autopark/backend/services/parking-service/internal/models"
)

// Publisher receives lane events. Delivery is best-effort with no replay.
type Publisher interface {
	Publish(ctx context.Context, event models.Event)
}

// Noop drops every event.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(context.Context, models.Event) {}
