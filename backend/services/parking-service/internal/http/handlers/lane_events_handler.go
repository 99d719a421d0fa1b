package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/service"
)

// LaneEventsHandler holds endpoints invoked by lane controllers, cameras and kiosks.
type LaneEventsHandler struct {
	svc    *service.Orchestrator
	logger *zap.Logger
}

// NewLaneEventsHandler builds handler set.
func NewLaneEventsHandler(svc *service.Orchestrator, logger *zap.Logger) *LaneEventsHandler {
	return &LaneEventsHandler{
		svc:    svc,
		logger: logger,
	}
}

type laneEventRequest struct {
	SiteID    int64     `json:"site_id"`
	LaneID    int64     `json:"lane_id"`
	Plate     string    `json:"plate"`
	ImageRef  string    `json:"image_ref"`
	Timestamp time.Time `json:"timestamp"`
}

type paymentRequest struct {
	SessionID int64  `json:"session_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

type paymentFailureRequest struct {
	SessionID int64  `json:"session_id"`
	Reason    string `json:"reason"`
}

// HandleInbound handles POST /internal/lanes/inbound.
func (h *LaneEventsHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	var req laneEventRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ProcessInbound(r.Context(), service.InboundInput{
		SiteID:   req.SiteID,
		LaneID:   req.LaneID,
		Plate:    req.Plate,
		ImageRef: req.ImageRef,
		At:       req.Timestamp,
	})
	if err != nil {
		writeServiceError(w, h.logger, "process inbound", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleOutbound handles POST /internal/lanes/outbound.
func (h *LaneEventsHandler) HandleOutbound(w http.ResponseWriter, r *http.Request) {
	var req laneEventRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ProcessOutbound(r.Context(), service.OutboundInput{
		SiteID:   req.SiteID,
		LaneID:   req.LaneID,
		Plate:    req.Plate,
		ImageRef: req.ImageRef,
		At:       req.Timestamp,
	})
	if err != nil {
		writeServiceError(w, h.logger, "process outbound", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandlePaymentSuccess handles POST /internal/payments/success.
func (h *LaneEventsHandler) HandlePaymentSuccess(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.svc.ProcessPaymentSuccess(r.Context(), service.PaymentInput{
		SessionID: req.SessionID,
		Amount:    req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		writeServiceError(w, h.logger, "process payment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

// HandlePaymentFailure handles POST /internal/payments/failure.
func (h *LaneEventsHandler) HandlePaymentFailure(w http.ResponseWriter, r *http.Request) {
	var req paymentFailureRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.svc.ProcessPaymentFailure(r.Context(), service.PaymentFailureInput{
		SessionID: req.SessionID,
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(w, h.logger, "process payment failure", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

// HandlePreSettle handles POST /internal/payments/pre-settle.
func (h *LaneEventsHandler) HandlePreSettle(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.PreSettle(r.Context(), service.PaymentInput{
		SessionID: req.SessionID,
		Amount:    req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		writeServiceError(w, h.logger, "pre-settle", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
