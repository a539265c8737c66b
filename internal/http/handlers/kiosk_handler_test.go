package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meridianhq/visitdesk/internal/domain"
	"github.com/meridianhq/visitdesk/internal/http/handlers"
	"github.com/meridianhq/visitdesk/internal/http/response"
	"github.com/meridianhq/visitdesk/internal/service"
	"github.com/meridianhq/visitdesk/pkg/config"
)

// stubVisitService scripts the kiosk operations; everything else panics so a
// test that strays into unscripted territory fails loudly.
type stubVisitService struct {
	verifyPin       func(pin string) (*domain.Visit, error)
	checkInWithPin  func(pin string) (*domain.Visit, error)
	checkOutByBadge func(visitID int64, code string) (*domain.Visit, error)
}

func (s *stubVisitService) CreateVisit(context.Context, *domain.VisitCreateReq) (*domain.Visit, error) {
	panic("unexpected CreateVisit")
}
func (s *stubVisitService) GetVisit(context.Context, int64) (*domain.Visit, error) {
	panic("unexpected GetVisit")
}
func (s *stubVisitService) ListVisits(context.Context, *domain.VisitStatus, int, int) ([]domain.Visit, error) {
	panic("unexpected ListVisits")
}
func (s *stubVisitService) CheckIn(context.Context, int64, string, bool) (*domain.Visit, error) {
	panic("unexpected CheckIn")
}
func (s *stubVisitService) CheckOut(context.Context, int64, string) (*domain.Visit, error) {
	panic("unexpected CheckOut")
}
func (s *stubVisitService) Cancel(context.Context, int64, string) (*domain.Visit, error) {
	panic("unexpected Cancel")
}
func (s *stubVisitService) Reactivate(context.Context, int64, string) (*domain.Visit, error) {
	panic("unexpected Reactivate")
}
func (s *stubVisitService) Duplicate(context.Context, int64, time.Time, time.Time, string) (*domain.Visit, error) {
	panic("unexpected Duplicate")
}
func (s *stubVisitService) VerifyPin(_ context.Context, pin string) (*domain.Visit, error) {
	return s.verifyPin(pin)
}
func (s *stubVisitService) CheckInWithPin(_ context.Context, pin string) (*domain.Visit, error) {
	return s.checkInWithPin(pin)
}
func (s *stubVisitService) CheckOutByBadge(_ context.Context, visitID int64, code string) (*domain.Visit, error) {
	return s.checkOutByBadge(visitID, code)
}

var _ service.VisitService = (*stubVisitService)(nil)

func newKioskServer(svc service.VisitService) *httptest.Server {
	h := handlers.NewKioskHandler(svc, nil, config.KioskConfig{PinAttempts: 10, PinWindow: time.Minute})
	return httptest.NewServer(h.Routes())
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return res
}

func decodeError(t *testing.T, res *http.Response) response.ErrorResponse {
	t.Helper()
	defer res.Body.Close()
	var e response.ErrorResponse
	if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestVerifyPin(t *testing.T) {
	scheduled := &domain.Visit{ID: 3, Status: domain.VisitScheduled, VisitorID: 10}
	svc := &stubVisitService{
		verifyPin: func(pin string) (*domain.Visit, error) {
			if pin == "482100" {
				return scheduled, nil
			}
			return nil, nil
		},
	}
	srv := newKioskServer(svc)
	defer srv.Close()

	t.Run("match returns the visit", func(t *testing.T) {
		res := postJSON(t, srv.URL+"/verify-pin", `{"pin":"482100"}`)
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", res.StatusCode)
		}
		var got domain.Visit
		if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
			t.Fatalf("decode visit: %v", err)
		}
		if got.ID != 3 {
			t.Errorf("visit id = %d, want 3", got.ID)
		}
	})

	t.Run("no match is 404", func(t *testing.T) {
		res := postJSON(t, srv.URL+"/verify-pin", `{"pin":"000000"}`)
		if res.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", res.StatusCode)
		}
		if e := decodeError(t, res); e.Code != response.CodeNotFound {
			t.Errorf("code = %q, want %q", e.Code, response.CodeNotFound)
		}
	})

	t.Run("missing pin is 400", func(t *testing.T) {
		res := postJSON(t, srv.URL+"/verify-pin", `{}`)
		defer res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", res.StatusCode)
		}
	})
}

func TestKioskCheckIn(t *testing.T) {
	t.Run("guard rejection is 409 with guard code", func(t *testing.T) {
		svc := &stubVisitService{
			checkInWithPin: func(pin string) (*domain.Visit, error) {
				return nil, &domain.GuardError{Action: "check-in", Current: domain.VisitCheckedIn}
			},
		}
		srv := newKioskServer(svc)
		defer srv.Close()

		res := postJSON(t, srv.URL+"/check-in", `{"pin":"482100"}`)
		if res.StatusCode != http.StatusConflict {
			t.Fatalf("status = %d, want 409", res.StatusCode)
		}
		e := decodeError(t, res)
		if e.Code != response.CodeGuardViolation {
			t.Errorf("code = %q, want %q", e.Code, response.CodeGuardViolation)
		}
		if !strings.Contains(e.Error, "already checked in") {
			t.Errorf("error %q does not mention the current status", e.Error)
		}
	})

	t.Run("unknown pin is 404", func(t *testing.T) {
		svc := &stubVisitService{
			checkInWithPin: func(pin string) (*domain.Visit, error) {
				return nil, service.ErrVisitNotFound
			},
		}
		srv := newKioskServer(svc)
		defer srv.Close()

		res := postJSON(t, srv.URL+"/check-in", `{"pin":"000000"}`)
		defer res.Body.Close()
		if res.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", res.StatusCode)
		}
	})

	t.Run("success returns the checked-in visit", func(t *testing.T) {
		now := time.Now()
		svc := &stubVisitService{
			checkInWithPin: func(pin string) (*domain.Visit, error) {
				return &domain.Visit{ID: 3, Status: domain.VisitCheckedIn, ActualCheckIn: &now}, nil
			},
		}
		srv := newKioskServer(svc)
		defer srv.Close()

		res := postJSON(t, srv.URL+"/check-in", `{"pin":"482100"}`)
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", res.StatusCode)
		}
		var got domain.Visit
		if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
			t.Fatalf("decode visit: %v", err)
		}
		if got.Status != domain.VisitCheckedIn {
			t.Errorf("status = %q, want checked_in", got.Status)
		}
	})
}

func TestKioskCheckOut(t *testing.T) {
	t.Run("badge mismatch is 401", func(t *testing.T) {
		svc := &stubVisitService{
			checkOutByBadge: func(visitID int64, code string) (*domain.Visit, error) {
				return nil, service.ErrBadgeMismatch
			},
		}
		srv := newKioskServer(svc)
		defer srv.Close()

		res := postJSON(t, srv.URL+"/check-out", `{"visit_id":3,"badge_code":"VB-FFFFFF"}`)
		if res.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", res.StatusCode)
		}
		if e := decodeError(t, res); e.Code != response.CodeBadgeMismatch {
			t.Errorf("code = %q, want %q", e.Code, response.CodeBadgeMismatch)
		}
	})

	t.Run("expired badge is 401", func(t *testing.T) {
		svc := &stubVisitService{
			checkOutByBadge: func(visitID int64, code string) (*domain.Visit, error) {
				return nil, service.ErrBadgeExpired
			},
		}
		srv := newKioskServer(svc)
		defer srv.Close()

		res := postJSON(t, srv.URL+"/check-out", `{"visit_id":3,"badge_code":"VB-0A1B2C"}`)
		if res.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", res.StatusCode)
		}
		if e := decodeError(t, res); e.Code != response.CodeBadgeExpired {
			t.Errorf("code = %q, want %q", e.Code, response.CodeBadgeExpired)
		}
	})

	t.Run("missing fields are 400", func(t *testing.T) {
		svc := &stubVisitService{}
		srv := newKioskServer(svc)
		defer srv.Close()

		res := postJSON(t, srv.URL+"/check-out", `{"visit_id":3}`)
		defer res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", res.StatusCode)
		}
	})

	t.Run("success returns the checked-out visit", func(t *testing.T) {
		svc := &stubVisitService{
			checkOutByBadge: func(visitID int64, code string) (*domain.Visit, error) {
				return &domain.Visit{ID: visitID, Status: domain.VisitCheckedOut}, nil
			},
		}
		srv := newKioskServer(svc)
		defer srv.Close()

		res := postJSON(t, srv.URL+"/check-out", `{"visit_id":3,"badge_code":"VB-0A1B2C"}`)
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", res.StatusCode)
		}
		var got domain.Visit
		if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
			t.Fatalf("decode visit: %v", err)
		}
		if got.Status != domain.VisitCheckedOut {
			t.Errorf("status = %q, want checked_out", got.Status)
		}
	})
}
