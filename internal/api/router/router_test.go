package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/internal/schedule"
)

type defaultSource struct{}

func (defaultSource) Get(_ context.Context, providerID string) (*schedule.Template, error) {
	return schedule.DefaultTemplate(providerID), nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	repo := appointments.NewMemoryRepository()
	sink := events.NewMemorySink()
	service := appointments.NewService(defaultSource{}, repo, sink, nil)
	return New(&Config{
		AppointmentsHandler: appointments.NewHandler(service, nil),
	})
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestRouter_SlotsRouteWired(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/providers/prov-1/slots?date=2026-01-05", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
