package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/karthik-ak-dev/pulse-ops/internal/tenancy"
)

func TestRateLimiterExhaustsBurst(t *testing.T) {
	rl := NewRateLimiter(0.0001, 2)

	if !rl.Allow("ip:1.2.3.4") {
		t.Fatalf("first request should pass")
	}
	if !rl.Allow("ip:1.2.3.4") {
		t.Fatalf("second request should pass")
	}
	if rl.Allow("ip:1.2.3.4") {
		t.Fatalf("third request should be limited")
	}
	// A different caller has its own bucket.
	if !rl.Allow("ip:5.6.7.8") {
		t.Fatalf("other caller should pass")
	}
}

func TestRateLimitKeysAuthenticatedCallersByClinic(t *testing.T) {
	mw := RateLimit(0.0001, 1)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(clinicID, remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/queues", nil)
		req.RemoteAddr = remote
		if clinicID != "" {
			req = req.WithContext(tenancy.WithActor(req.Context(), tenancy.Actor{
				ClinicID: clinicID,
				Role:     tenancy.RoleStaff,
			}))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Same clinic from two addresses shares one bucket.
	if code := send("clinic-1", "10.0.0.1:1000"); code != http.StatusOK {
		t.Fatalf("first clinic request = %d", code)
	}
	if code := send("clinic-1", "10.0.0.2:1000"); code != http.StatusTooManyRequests {
		t.Fatalf("second clinic request = %d, want 429", code)
	}
	// Another clinic is unaffected.
	if code := send("clinic-2", "10.0.0.1:1000"); code != http.StatusOK {
		t.Fatalf("other clinic request = %d", code)
	}
	// Anonymous traffic buckets by IP.
	if code := send("", "10.0.0.9:1000"); code != http.StatusOK {
		t.Fatalf("anonymous request = %d", code)
	}
	if code := send("", "10.0.0.9:1000"); code != http.StatusTooManyRequests {
		t.Fatalf("repeat anonymous request = %d, want 429", code)
	}
}
