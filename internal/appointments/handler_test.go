package appointments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newHandlerFixture(t *testing.T) (http.Handler, *serviceFixture) {
	t.Helper()
	f := newServiceFixture(t)
	h := NewHandler(f.service, nil)

	r := chi.NewRouter()
	r.Post("/appointments", h.Book)
	r.Route("/appointments/{appointmentID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/confirm", h.Confirm)
		r.Post("/start", h.Start)
		r.Post("/complete", h.Complete)
		r.Post("/cancel", h.Cancel)
		r.Post("/no-show", h.NoShow)
		r.Post("/reschedule", h.Reschedule)
	})
	r.Get("/providers/{providerID}/slots", h.Slots)
	r.Get("/providers/{providerID}/stats", h.Stats)
	return r, f
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Book(t *testing.T) {
	r, _ := newHandlerFixture(t)

	rec := doJSON(t, r, http.MethodPost, "/appointments", bookReq(serviceClock.Add(2*time.Hour)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var appt Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &appt); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if appt.Status != StatusPending {
		t.Errorf("Status = %q, want pending", appt.Status)
	}
}

func TestHandler_Book_ErrorMapping(t *testing.T) {
	r, _ := newHandlerFixture(t)
	open := serviceClock.Add(2 * time.Hour)

	// Seed a booking so the conflict case has something to collide with.
	if rec := doJSON(t, r, http.MethodPost, "/appointments", bookReq(open)); rec.Code != http.StatusCreated {
		t.Fatalf("seed booking: %d", rec.Code)
	}

	tests := []struct {
		name   string
		mutate func(*BookRequest)
		want   int
	}{
		{"missing patient", func(r *BookRequest) { r.PatientID = "" }, http.StatusBadRequest},
		{"past time", func(r *BookRequest) { r.ScheduledAt = serviceClock.Add(-time.Hour) }, http.StatusBadRequest},
		{"unknown provider", func(r *BookRequest) { r.ProviderID = "ghost" }, http.StatusBadRequest},
		{"closed schedule", func(r *BookRequest) { r.ScheduledAt = serviceClock.Add(8 * time.Hour) }, http.StatusConflict},
		{"slot taken", func(r *BookRequest) { r.PatientID = "pat-2" }, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := bookReq(open)
			tc.mutate(&req)
			rec := doJSON(t, r, http.MethodPost, "/appointments", req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestHandler_Book_BadBody(t *testing.T) {
	r, _ := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_LifecycleEndpoints(t *testing.T) {
	r, _ := newHandlerFixture(t)

	rec := doJSON(t, r, http.MethodPost, "/appointments", bookReq(serviceClock.Add(2*time.Hour)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Book: %d", rec.Code)
	}
	var appt Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &appt); err != nil {
		t.Fatalf("decode: %v", err)
	}

	paths := []string{
		fmt.Sprintf("/appointments/%s/confirm", appt.ID),
		fmt.Sprintf("/appointments/%s/start", appt.ID),
		fmt.Sprintf("/appointments/%s/complete", appt.ID),
	}
	for _, p := range paths {
		if rec := doJSON(t, r, http.MethodPost, p, nil); rec.Code != http.StatusOK {
			t.Fatalf("POST %s = %d: %s", p, rec.Code, rec.Body.String())
		}
	}

	// Completed appointments reject further transitions with 409.
	if rec := doJSON(t, r, http.MethodPost, paths[0], nil); rec.Code != http.StatusConflict {
		t.Errorf("confirm after completion = %d, want 409", rec.Code)
	}

	// GET returns the final state.
	rec = doJSON(t, r, http.MethodGet, "/appointments/"+appt.ID+"/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET = %d", rec.Code)
	}
	var got Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
}

func TestHandler_Cancel(t *testing.T) {
	r, _ := newHandlerFixture(t)

	// Tuesday 16:00, comfortably outside the 24 hour notice window.
	rec := doJSON(t, r, http.MethodPost, "/appointments", bookReq(serviceClock.Add(28*time.Hour)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Book: %d", rec.Code)
	}
	var appt Appointment
	_ = json.Unmarshal(rec.Body.Bytes(), &appt)

	rec = doJSON(t, r, http.MethodPost, "/appointments/"+appt.ID+"/cancel", cancelRequest{
		Actor:  Actor{ID: "pat-1", Role: RolePatient},
		Reason: "schedule change",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel = %d: %s", rec.Code, rec.Body.String())
	}

	var got Appointment
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}
}

func TestHandler_NotFound(t *testing.T) {
	r, _ := newHandlerFixture(t)
	rec := doJSON(t, r, http.MethodGet, "/appointments/ghost/", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandler_Slots(t *testing.T) {
	r, _ := newHandlerFixture(t)

	rec := doJSON(t, r, http.MethodGet, "/providers/prov-1/slots?date=2026-01-05", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		ProviderID string `json:"provider_id"`
		Date       string `json:"date"`
		Slots      []Slot `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Slots) != 16 {
		t.Errorf("slots = %d, want 16", len(body.Slots))
	}
	if body.Slots[0].Time != "09:00" {
		t.Errorf("first slot = %q, want 09:00", body.Slots[0].Time)
	}

	if rec := doJSON(t, r, http.MethodGet, "/providers/prov-1/slots", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing date = %d, want 400", rec.Code)
	}
}

func TestHandler_Stats(t *testing.T) {
	r, f := newHandlerFixture(t)
	if _, err := f.service.Book(context.Background(), bookReq(serviceClock.Add(2*time.Hour))); err != nil {
		t.Fatalf("Book: %v", err)
	}

	rec := doJSON(t, r, http.MethodGet, "/providers/prov-1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats ProviderStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalBookings != 1 {
		t.Errorf("TotalBookings = %d, want 1", stats.TotalBookings)
	}
}

func TestHandler_Reschedule(t *testing.T) {
	r, _ := newHandlerFixture(t)

	rec := doJSON(t, r, http.MethodPost, "/appointments", bookReq(serviceClock.Add(2*time.Hour)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Book: %d", rec.Code)
	}
	var appt Appointment
	_ = json.Unmarshal(rec.Body.Bytes(), &appt)

	target := serviceClock.Add(4 * time.Hour)
	rec = doJSON(t, r, http.MethodPost, "/appointments/"+appt.ID+"/reschedule", rescheduleRequest{ScheduledAt: target})
	if rec.Code != http.StatusOK {
		t.Fatalf("reschedule = %d: %s", rec.Code, rec.Body.String())
	}
	var got Appointment
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if !got.ScheduledAt.Equal(target) {
		t.Errorf("ScheduledAt = %v, want %v", got.ScheduledAt, target)
	}
}
