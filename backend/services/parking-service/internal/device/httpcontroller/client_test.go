package httpcontroller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"autopark/backend/services/parking-service/internal/models"
)

func TestRequestPaymentPostsCommand(t *testing.T) {
	var got Command
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/commands" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(time.Second, zap.NewNop())
	lane := models.Lane{ID: 3, Endpoint: srv.URL + "/"}
	if err := c.RequestPayment(context.Background(), lane, "12가3456", 4000); err != nil {
		t.Fatalf("request payment: %v", err)
	}
	if got.Action != ActionRequestPayment || got.LaneID != 3 || got.Amount != 4000 || got.Plate != "12가3456" {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestNonSuccessIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(time.Second, zap.NewNop())
	if err := c.OpenGate(context.Background(), models.Lane{ID: 1, Endpoint: srv.URL}); err == nil {
		t.Fatalf("expected error on 503")
	}
}

func TestMissingEndpoint(t *testing.T) {
	c := NewClient(time.Second, zap.NewNop())
	if err := c.OpenGate(context.Background(), models.Lane{ID: 1}); err == nil {
		t.Fatalf("expected error without endpoint")
	}
}
