package httpserver

import "net/http"

// Routes groups handlers. Operator routes are wrapped by Auth, lane routes are internal.
type Routes struct {
	Auth func(http.Handler) http.Handler

	Inbound        http.HandlerFunc
	Outbound       http.HandlerFunc
	PaymentSuccess http.HandlerFunc
	PaymentFailure http.HandlerFunc
	PreSettle      http.HandlerFunc

	GetSession         http.HandlerFunc
	ManualEntry        http.HandlerFunc
	ManualExit         http.HandlerFunc
	CorrectPlate       http.HandlerFunc
	CorrectEntryTime   http.HandlerFunc
	ChangeVehicleClass http.HandlerFunc
	RegisterDiscount   http.HandlerFunc
	ResetDiscounts     http.HandlerFunc
	UpdateNote         http.HandlerFunc
	ResetPayment       http.HandlerFunc
	Refund             http.HandlerFunc
	Cancel             http.HandlerFunc
	Runaway            http.HandlerFunc
	ForceComplete      http.HandlerFunc
	Refresh            http.HandlerFunc

	LockAcquire http.HandlerFunc
	LockExtend  http.HandlerFunc
	LockRelease http.HandlerFunc
	LockStatus  http.HandlerFunc

	Events http.HandlerFunc
	Health http.HandlerFunc
}

// NewRouter registers endpoints. Nil handlers are skipped.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	auth := routes.Auth
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	internal := map[string]http.HandlerFunc{
		"POST /internal/lanes/inbound":       routes.Inbound,
		"POST /internal/lanes/outbound":      routes.Outbound,
		"POST /internal/payments/success":    routes.PaymentSuccess,
		"POST /internal/payments/failure":    routes.PaymentFailure,
		"POST /internal/payments/pre-settle": routes.PreSettle,
		"GET /health":                        routes.Health,
	}
	operator := map[string]http.HandlerFunc{
		"GET /sessions/{id}":                  routes.GetSession,
		"POST /sessions/manual-entry":         routes.ManualEntry,
		"POST /sessions/{id}/manual-exit":     routes.ManualExit,
		"POST /sessions/{id}/plate":           routes.CorrectPlate,
		"POST /sessions/{id}/entry-time":      routes.CorrectEntryTime,
		"POST /sessions/{id}/vehicle-class":   routes.ChangeVehicleClass,
		"POST /sessions/{id}/discounts":       routes.RegisterDiscount,
		"POST /sessions/{id}/discounts/reset": routes.ResetDiscounts,
		"POST /sessions/{id}/note":            routes.UpdateNote,
		"POST /sessions/{id}/payment/reset":   routes.ResetPayment,
		"POST /sessions/{id}/refund":          routes.Refund,
		"POST /sessions/{id}/cancel":          routes.Cancel,
		"POST /sessions/{id}/runaway":         routes.Runaway,
		"POST /sessions/{id}/force-complete":  routes.ForceComplete,
		"POST /sessions/{id}/refresh":         routes.Refresh,
		"POST /locks/acquire":                 routes.LockAcquire,
		"POST /locks/extend":                  routes.LockExtend,
		"POST /locks/release":                 routes.LockRelease,
		"GET /locks":                          routes.LockStatus,
		"GET /ws":                             routes.Events,
	}

	for pattern, h := range internal {
		if h != nil {
			mux.Handle(pattern, h)
		}
	}
	for pattern, h := range operator {
		if h != nil {
			mux.Handle(pattern, auth(h))
		}
	}
	return mux
}
