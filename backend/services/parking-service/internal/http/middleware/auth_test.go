package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func protected() http.Handler {
	return OperatorAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-Operator", actor.ID+"/"+actor.Name)
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestOperatorAuth(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		query    string
		status   int
		operator string
	}{
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "bad signature", header: "Bearer " + sign(t, jwt.MapClaims{"operator_id": "op-1"}, "other"), status: http.StatusUnauthorized},
		{name: "no operator", header: "Bearer " + sign(t, jwt.MapClaims{"name": "Alice"}, secret), status: http.StatusUnauthorized},
		{name: "operator claim", header: "Bearer " + sign(t, jwt.MapClaims{"operator_id": "op-1", "name": "Alice"}, secret), status: http.StatusNoContent, operator: "op-1/Alice"},
		{name: "numeric operator", header: "Bearer " + sign(t, jwt.MapClaims{"operator_id": float64(7)}, secret), status: http.StatusNoContent, operator: "7/7"},
		{name: "subject fallback", header: "Bearer " + sign(t, jwt.MapClaims{"sub": "op-2"}, secret), status: http.StatusNoContent, operator: "op-2/op-2"},
		{name: "query token", query: sign(t, jwt.MapClaims{"operator_id": "op-3"}, secret), status: http.StatusNoContent, operator: "op-3/op-3"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/sessions/1"
			if tc.query != "" {
				target += "?access_token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			protected().ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status: got %d want %d", rec.Code, tc.status)
			}
			if got := rec.Header().Get("X-Operator"); got != tc.operator {
				t.Fatalf("operator: got %q want %q", got, tc.operator)
			}
		})
	}
}
