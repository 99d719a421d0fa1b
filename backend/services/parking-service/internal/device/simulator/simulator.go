// Package simulator is a device adapter for lanes without hardware. It logs and records every
// command and can be told to fail specific actions.
package simulator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/models"
)

// Action names recorded by the simulator.
const (
	OpenGate       = "open_gate"
	CloseGate      = "close_gate"
	Display        = "display"
	RequestPayment = "request_payment"
	CancelPayment  = "cancel_payment"
)

// ErrInjected is returned for actions configured to fail.
var ErrInjected = errors.New("simulated device failure")

// Command is one recorded call.
type Command struct {
	Action string
	LaneID int64
	Line1  string
	Line2  string
	Plate  string
	Amount int64
}

// historyLimit bounds the recorded commands of a long running simulator.
const historyLimit = 1024

// Simulator records the most recent commands.
type Simulator struct {
	mu       sync.Mutex
	commands []Command
	failing  map[string]bool
	logger   *zap.Logger
}

// New creates simulator.
func New(logger *zap.Logger) *Simulator {
	return &Simulator{failing: make(map[string]bool), logger: logger.Named("simulator")}
}

// Fail makes action return ErrInjected until cleared with Fail(action, false).
func (s *Simulator) Fail(action string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[action] = fail
}

func (s *Simulator) record(cmd Command) error {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	if len(s.commands) > historyLimit {
		s.commands = append(s.commands[:0:0], s.commands[len(s.commands)-historyLimit:]...)
	}
	failing := s.failing[cmd.Action]
	s.mu.Unlock()

	s.logger.Info("device command",
		zap.String("action", cmd.Action),
		zap.Int64("lane_id", cmd.LaneID),
		zap.String("line1", cmd.Line1),
		zap.String("plate", cmd.Plate),
		zap.Int64("amount", cmd.Amount),
	)
	if failing {
		return ErrInjected
	}
	return nil
}

// Commands returns a copy of every recorded command.
func (s *Simulator) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

// Count returns how many times action was issued.
func (s *Simulator) Count(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.commands {
		if c.Action == action {
			n++
		}
	}
	return n
}

// Last returns the last command of action.
func (s *Simulator) Last(action string) (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.commands) - 1; i >= 0; i-- {
		if s.commands[i].Action == action {
			return s.commands[i], true
		}
	}
	return Command{}, false
}

// Reset forgets recorded commands.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
}

// OpenGate records the command.
func (s *Simulator) OpenGate(_ context.Context, lane models.Lane) error {
	return s.record(Command{Action: OpenGate, LaneID: lane.ID})
}

// CloseGate records the command.
func (s *Simulator) CloseGate(_ context.Context, lane models.Lane) error {
	return s.record(Command{Action: CloseGate, LaneID: lane.ID})
}

// SendDisplay records the command.
func (s *Simulator) SendDisplay(_ context.Context, lane models.Lane, line1, line2 string) error {
	return s.record(Command{Action: Display, LaneID: lane.ID, Line1: line1, Line2: line2})
}

// RequestPayment records the command.
func (s *Simulator) RequestPayment(_ context.Context, lane models.Lane, plate string, amount int64) error {
	return s.record(Command{Action: RequestPayment, LaneID: lane.ID, Plate: plate, Amount: amount})
}

// CancelPayment records the command.
func (s *Simulator) CancelPayment(_ context.Context, lane models.Lane) error {
	return s.record(Command{Action: CancelPayment, LaneID: lane.ID})
}
