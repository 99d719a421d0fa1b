// Package device routes gate, display and payment commands to the controller of each lane.
package device

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/models"
)

// Adapter talks to one vendor's lane controllers. Every call except RequestPayment is
// fire-and-forget; payment results come back through the payment callbacks.
type Adapter interface {
	OpenGate(ctx context.Context, lane models.Lane) error
	CloseGate(ctx context.Context, lane models.Lane) error
	SendDisplay(ctx context.Context, lane models.Lane, line1, line2 string) error
	RequestPayment(ctx context.Context, lane models.Lane, plate string, amount int64) error
	CancelPayment(ctx context.Context, lane models.Lane) error
}

// Registry maps vendor codes to adapters. It is filled at startup and read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
	fallback string
}

// NewRegistry returns a registry whose lanes without a vendor code use fallback.
func NewRegistry(fallback string) *Registry {
	return &Registry{adapters: make(map[string]Adapter), fallback: fallback}
}

// Register adds an adapter for vendor.
func (r *Registry) Register(vendor string, a Adapter) *Registry {
	r.adapters[vendor] = a
	return r
}

// Resolve returns the adapter for vendor.
func (r *Registry) Resolve(vendor string) (Adapter, error) {
	if vendor == "" {
		vendor = r.fallback
	}
	a, ok := r.adapters[vendor]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for vendor %q", models.ErrDevice, vendor)
	}
	return a, nil
}

// Vendors lists registered vendor codes.
func (r *Registry) Vendors() []string {
	out := make([]string, 0, len(r.adapters))
	for v := range r.adapters {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Dispatcher resolves the lane's adapter and bounds every call with a timeout.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher builds dispatcher.
func NewDispatcher(registry *Registry, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{registry: registry, timeout: timeout, logger: logger.Named("device")}
}

func (d *Dispatcher) call(ctx context.Context, op string, lane models.Lane, fn func(ctx context.Context, a Adapter) error) error {
	a, err := d.registry.Resolve(lane.Vendor)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := fn(ctx, a); err != nil {
		d.logger.Debug("device command failed", zap.String("op", op), zap.Int64("lane_id", lane.ID), zap.Error(err))
		return fmt.Errorf("%w: %s on lane %d: %v", models.ErrDevice, op, lane.ID, err)
	}
	return nil
}

// OpenGate raises the barrier of lane.
func (d *Dispatcher) OpenGate(ctx context.Context, lane models.Lane) error {
	return d.call(ctx, "open_gate", lane, func(ctx context.Context, a Adapter) error { return a.OpenGate(ctx, lane) })
}

// CloseGate lowers the barrier of lane.
func (d *Dispatcher) CloseGate(ctx context.Context, lane models.Lane) error {
	return d.call(ctx, "close_gate", lane, func(ctx context.Context, a Adapter) error { return a.CloseGate(ctx, lane) })
}

// SendDisplay shows two lines on the lane display.
func (d *Dispatcher) SendDisplay(ctx context.Context, lane models.Lane, line1, line2 string) error {
	return d.call(ctx, "display", lane, func(ctx context.Context, a Adapter) error {
		return a.SendDisplay(ctx, lane, line1, line2)
	})
}

// RequestPayment asks the lane terminal to collect amount for plate.
func (d *Dispatcher) RequestPayment(ctx context.Context, lane models.Lane, plate string, amount int64) error {
	return d.call(ctx, "request_payment", lane, func(ctx context.Context, a Adapter) error {
		return a.RequestPayment(ctx, lane, plate, amount)
	})
}

// CancelPayment aborts a pending terminal payment.
func (d *Dispatcher) CancelPayment(ctx context.Context, lane models.Lane) error {
	return d.call(ctx, "cancel_payment", lane, func(ctx context.Context, a Adapter) error { return a.CancelPayment(ctx, lane) })
}
