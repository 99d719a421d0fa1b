package service

import (
	"context"

	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/models"
)

type commandKind int

const (
	cmdOpenGate commandKind = iota
	cmdCloseGate
	cmdDisplay
	cmdRequestPayment
	cmdCancelPayment
)

func (k commandKind) String() string {
	switch k {
	case cmdOpenGate:
		return "open_gate"
	case cmdCloseGate:
		return "close_gate"
	case cmdDisplay:
		return "display"
	case cmdRequestPayment:
		return "request_payment"
	case cmdCancelPayment:
		return "cancel_payment"
	}
	return "unknown"
}

type command struct {
	kind   commandKind
	lane   models.Lane
	line1  string
	line2  string
	plate  string
	amount int64
}

// effects collects what must happen after a transaction commits, in order.
type effects struct {
	commands []command
	events   []models.Event
	alerts   []models.AuditEntry
	// ghostKey is the suppression entry claimed by this transaction, released on rollback.
	ghostKey string
}

func (fx *effects) openGate(lane models.Lane) {
	fx.commands = append(fx.commands, command{kind: cmdOpenGate, lane: lane})
}

func (fx *effects) closeGate(lane models.Lane) {
	fx.commands = append(fx.commands, command{kind: cmdCloseGate, lane: lane})
}

func (fx *effects) display(lane models.Lane, line1, line2 string) {
	fx.commands = append(fx.commands, command{kind: cmdDisplay, lane: lane, line1: line1, line2: line2})
}

func (fx *effects) requestPayment(lane models.Lane, plate string, amount int64) {
	fx.commands = append(fx.commands, command{kind: cmdRequestPayment, lane: lane, plate: plate, amount: amount})
}

func (fx *effects) cancelPayment(lane models.Lane) {
	fx.commands = append(fx.commands, command{kind: cmdCancelPayment, lane: lane})
}

func (fx *effects) publish(e models.Event) {
	fx.events = append(fx.events, e)
}

func (fx *effects) alert(e *models.AuditEntry) {
	fx.alerts = append(fx.alerts, *e)
}

func (fx *effects) merge(other effects) {
	fx.commands = append(fx.commands, other.commands...)
	fx.events = append(fx.events, other.events...)
	fx.alerts = append(fx.alerts, other.alerts...)
}

// apply runs post-commit effects. Failures are logged and recorded as device events; they never
// undo the committed session state.
func (o *Orchestrator) apply(ctx context.Context, fx effects) {
	ctx = context.WithoutCancel(ctx)
	for _, cmd := range fx.commands {
		if err := o.run(ctx, cmd); err != nil {
			o.logger.Warn("device command failed",
				zap.String("op", cmd.kind.String()),
				zap.Int64("site_id", cmd.lane.SiteID),
				zap.Int64("lane_id", cmd.lane.ID),
				zap.String("plate", cmd.plate),
				zap.Error(err),
			)
			entry := o.newAudit(models.AuditDeviceEvent, cmd.lane.SiteID, nil, cmd.lane.ID, models.SystemActor,
				"DEVICE_FAILURE", err.Error(), map[string]any{"op": cmd.kind.String()})
			entry.Plate = cmd.plate
			o.alerts.Alert(ctx, *entry)
		}
	}
	for _, a := range fx.alerts {
		o.alerts.Alert(ctx, a)
	}
	for _, e := range fx.events {
		o.publisher.Publish(ctx, e)
	}
}

func (o *Orchestrator) run(ctx context.Context, cmd command) error {
	if o.devices == nil {
		return nil
	}
	switch cmd.kind {
	case cmdOpenGate:
		return o.devices.OpenGate(ctx, cmd.lane)
	case cmdCloseGate:
		return o.devices.CloseGate(ctx, cmd.lane)
	case cmdDisplay:
		return o.devices.SendDisplay(ctx, cmd.lane, cmd.line1, cmd.line2)
	case cmdRequestPayment:
		return o.devices.RequestPayment(ctx, cmd.lane, cmd.plate, cmd.amount)
	case cmdCancelPayment:
		return o.devices.CancelPayment(ctx, cmd.lane)
	}
	return nil
}
