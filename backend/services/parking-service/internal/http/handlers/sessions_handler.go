package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/models"
	"autopark/backend/services/parking-service/internal/service"
)

// SessionsHandler serves operator endpoints on sessions.
type SessionsHandler struct {
	svc    *service.Orchestrator
	logger *zap.Logger
}

// NewSessionsHandler builds handler set.
func NewSessionsHandler(svc *service.Orchestrator, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{svc: svc, logger: logger}
}

type correctionRequest struct {
	Reason       string    `json:"reason"`
	Plate        string    `json:"plate"`
	EntryTime    time.Time `json:"entry_time"`
	VehicleClass string    `json:"vehicle_class"`
	Kind         string    `json:"kind"`
	Value        int64     `json:"value"`
	Amount       int64     `json:"amount"`
	Note         string    `json:"note"`
	LaneID       int64     `json:"lane_id"`
}

type manualEntryRequest struct {
	SiteID       int64     `json:"site_id"`
	LaneID       int64     `json:"lane_id"`
	Plate        string    `json:"plate"`
	VehicleClass string    `json:"vehicle_class"`
	EntryTime    time.Time `json:"entry_time"`
	ImageRef     string    `json:"image_ref"`
	Reason       string    `json:"reason"`
}

// HandleGet handles GET /sessions/{id}.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	session, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "fetch session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

// HandleManualEntry handles POST /sessions/manual-entry.
func (h *SessionsHandler) HandleManualEntry(w http.ResponseWriter, r *http.Request) {
	op, ok := actor(w, r)
	if !ok {
		return
	}
	var req manualEntryRequest
	if !decode(w, r, &req) {
		return
	}
	class, err := models.ParseVehicleClass(req.VehicleClass)
	if err != nil {
		writeServiceError(w, h.logger, "manual entry", err)
		return
	}
	res, err := h.svc.ManualEntry(r.Context(), service.ManualEntryInput{
		SiteID:       req.SiteID,
		LaneID:       req.LaneID,
		Plate:        req.Plate,
		VehicleClass: class,
		EntryTime:    req.EntryTime,
		ImageRef:     req.ImageRef,
		Actor:        op,
		Reason:       req.Reason,
	})
	if err != nil {
		writeServiceError(w, h.logger, "manual entry", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleManualExit handles POST /sessions/{id}/manual-exit.
func (h *SessionsHandler) HandleManualExit(w http.ResponseWriter, r *http.Request) {
	h.correct(w, r, "manual exit", func(ctx context.Context, c service.Correction, req correctionRequest) (interface{}, error) {
		return h.svc.ManualExit(ctx, service.ManualExitInput{SessionID: c.SessionID, LaneID: req.LaneID, Actor: c.Actor, Reason: c.Reason})
	})
}

// HandleCorrectPlate handles POST /sessions/{id}/plate.
func (h *SessionsHandler) HandleCorrectPlate(w http.ResponseWriter, r *http.Request) {
	h.correctSession(w, r, "correct plate", func(ctx context.Context, c service.Correction, req correctionRequest) (*models.Session, error) {
		return h.svc.CorrectPlate(ctx, c, req.Plate)
	})
}

// HandleCorrectEntryTime handles POST /sessions/{id}/entry-time.
func (h *SessionsHandler) HandleCorrectEntryTime(w http.ResponseWriter, r *http.Request) {
	h.correctSession(w, r, "correct entry time", func(ctx context.Context, c service.Correction, req correctionRequest) (*models.Session, error) {
		return h.svc.CorrectEntryTime(ctx, c, req.EntryTime)
	})
}

// HandleChangeVehicleClass handles POST /sessions/{id}/vehicle-class.
func (h *SessionsHandler) HandleChangeVehicleClass(w http.ResponseWriter, r *http.Request) {
	h.correctSession(w, r, "change vehicle class", func(ctx context.Context, c service.Correction, req correctionRequest) (*models.Session, error) {
		class, err := models.ParseVehicleClass(req.VehicleClass)
		if err != nil {
			return nil, err
		}
		return h.svc.ChangeVehicleClass(ctx, c, class)
	})
}

// HandleRegisterDiscount handles POST /sessions/{id}/discounts.
func (h *SessionsHandler) HandleRegisterDiscount(w http.ResponseWriter, r *http.Request) {
	h.correctSession(w, r, "register discount", func(ctx context.Context, c service.Correction, req correctionRequest) (*models.Session, error) {
		kind, err := models.ParseDiscountKind(req.Kind)
		if err != nil {
			return nil, err
		}
		return h.svc.RegisterDiscount(ctx, service.DiscountInput{Correction: c, Kind: kind, Value: req.Value})
	})
}

// HandleResetDiscounts handles POST /sessions/{id}/discounts/reset.
func (h *SessionsHandler) HandleResetDiscounts(w http.ResponseWriter, r *http.Request) {
	h.correctSession(w, r, "reset discounts", func(ctx context.Context, c service.Correction, _ correctionRequest) (*models.Session, error) {
		return h.svc.ResetDiscounts(ctx, c)
	})
}

// HandleUpdateNote handles POST /sessions/{id}/note.
func (h *SessionsHandler) HandleUpdateNote(w http.ResponseWriter, r *http.Request) {
	h.correctSession(w, r, "update note", func(ctx context.Context, c service.Correction, req correctionRequest) (*models.Session, error) {
		return h.svc.UpdateNote(ctx, c, req.Note)
	})
}

// HandleResetPayment handles POST /sessions/{id}/payment/reset.
func (h *SessionsHandler) HandleResetPayment(w http.ResponseWriter, r *http.Request) {
	h.correctSession(w, r, "reset payment", func(ctx context.Context, c service.Correction, _ correctionRequest) (*models.Session, error) {
		return h.svc.ResetPayment(ctx, c.SessionID, c.Actor, c.Reason)
	})
}

// HandleRefund handles POST /sessions/{id}/refund.
func (h *SessionsHandler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	h.correctSession(w, r, "refund payment", func(ctx context.Context, c service.Correction, req correctionRequest) (*models.Session, error) {
		return h.svc.RefundPayment(ctx, c, req.Amount)
	})
}

// HandleCancel handles POST /sessions/{id}/cancel.
func (h *SessionsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.correctSession(w, r, "cancel session", func(ctx context.Context, c service.Correction, _ correctionRequest) (*models.Session, error) {
		return h.svc.CancelSession(ctx, c)
	})
}

// HandleRunaway handles POST /sessions/{id}/runaway.
func (h *SessionsHandler) HandleRunaway(w http.ResponseWriter, r *http.Request) {
	h.correctSession(w, r, "mark runaway", func(ctx context.Context, c service.Correction, _ correctionRequest) (*models.Session, error) {
		return h.svc.MarkRunaway(ctx, c)
	})
}

// HandleForceComplete handles POST /sessions/{id}/force-complete.
func (h *SessionsHandler) HandleForceComplete(w http.ResponseWriter, r *http.Request) {
	h.correctSession(w, r, "force complete", func(ctx context.Context, c service.Correction, _ correctionRequest) (*models.Session, error) {
		return h.svc.ForceComplete(ctx, c)
	})
}

// HandleRefresh handles POST /sessions/{id}/refresh.
func (h *SessionsHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.correctSession(w, r, "refresh payment", func(ctx context.Context, c service.Correction, _ correctionRequest) (*models.Session, error) {
		return h.svc.RefreshPaymentIfNeeded(ctx, c.SessionID)
	})
}

type sessionOp func(ctx context.Context, c service.Correction, req correctionRequest) (*models.Session, error)

func (h *SessionsHandler) correctSession(w http.ResponseWriter, r *http.Request, op string, fn sessionOp) {
	h.correct(w, r, op, func(ctx context.Context, c service.Correction, req correctionRequest) (interface{}, error) {
		session, err := fn(ctx, c, req)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"session": session}, nil
	})
}

// correct decodes an optional body, resolves the operator and session id and runs fn.
func (h *SessionsHandler) correct(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, c service.Correction, req correctionRequest) (interface{}, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	who, ok := actor(w, r)
	if !ok {
		return
	}
	var req correctionRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	res, err := fn(r.Context(), service.Correction{SessionID: id, Actor: who, Reason: req.Reason}, req)
	if err != nil {
		writeServiceError(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
