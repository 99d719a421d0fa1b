// Package httpcontroller drives lane controllers that accept JSON commands over HTTP.
package httpcontroller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/models"
)

// Command is the body posted to <endpoint>/commands.
type Command struct {
	Action string `json:"action"`
	LaneID int64  `json:"lane_id"`
	Line1  string `json:"line1,omitempty"`
	Line2  string `json:"line2,omitempty"`
	Plate  string `json:"plate,omitempty"`
	Amount int64  `json:"amount,omitempty"`
}

// Actions.
const (
	ActionOpenGate       = "OPEN_GATE"
	ActionCloseGate      = "CLOSE_GATE"
	ActionDisplay        = "DISPLAY"
	ActionRequestPayment = "REQUEST_PAYMENT"
	ActionCancelPayment  = "CANCEL_PAYMENT"
)

// Client posts commands to lane.Endpoint.
type Client struct {
	client *http.Client
	logger *zap.Logger
}

// NewClient returns HTTP client wrapper.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("httpcontroller"),
	}
}

func (c *Client) OpenGate(ctx context.Context, lane models.Lane) error {
	return c.post(ctx, lane, Command{Action: ActionOpenGate, LaneID: lane.ID})
}

func (c *Client) CloseGate(ctx context.Context, lane models.Lane) error {
	return c.post(ctx, lane, Command{Action: ActionCloseGate, LaneID: lane.ID})
}

func (c *Client) SendDisplay(ctx context.Context, lane models.Lane, line1, line2 string) error {
	return c.post(ctx, lane, Command{Action: ActionDisplay, LaneID: lane.ID, Line1: line1, Line2: line2})
}

func (c *Client) RequestPayment(ctx context.Context, lane models.Lane, plate string, amount int64) error {
	return c.post(ctx, lane, Command{Action: ActionRequestPayment, LaneID: lane.ID, Plate: plate, Amount: amount})
}

func (c *Client) CancelPayment(ctx context.Context, lane models.Lane) error {
	return c.post(ctx, lane, Command{Action: ActionCancelPayment, LaneID: lane.ID})
}

func (c *Client) post(ctx context.Context, lane models.Lane, cmd Command) error {
	if lane.Endpoint == "" {
		return fmt.Errorf("lane %d has no controller endpoint", lane.ID)
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	url := strings.TrimRight(lane.Endpoint, "/") + "/commands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("controller request failed", zap.Int64("lane_id", lane.ID), zap.String("action", cmd.Action), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warn("controller returned non-success",
			zap.Int64("lane_id", lane.ID),
			zap.String("action", cmd.Action),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("controller returned status %d", resp.StatusCode)
	}
	return nil
}
