package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/karthik-ak-dev/pulse-ops/internal/tenancy"
)

func signedActorToken(t *testing.T, secret string, claims ActorClaims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(5 * time.Minute))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func staffClaims() ActorClaims {
	return ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-7"},
		ClinicID:         "clinic-1",
		DoctorID:         "doc-1",
		Role:             "staff",
	}
}

func TestActorJWTMissingSecret(t *testing.T) {
	mw := ActorJWT("")
	req := httptest.NewRequest(http.MethodGet, "/v1/queues", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestActorJWTMissingHeader(t *testing.T) {
	mw := ActorJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/v1/queues", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestActorJWTInvalidSignature(t *testing.T) {
	mw := ActorJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/v1/queues", nil)
	req.Header.Set("Authorization", "Bearer "+signedActorToken(t, "wrong", staffClaims()))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestActorJWTRejectsTokenWithoutClinic(t *testing.T) {
	claims := staffClaims()
	claims.ClinicID = ""

	mw := ActorJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/v1/queues", nil)
	req.Header.Set("Authorization", "Bearer "+signedActorToken(t, "secret", claims))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestActorJWTRejectsUnknownRole(t *testing.T) {
	claims := staffClaims()
	claims.Role = "superuser"

	mw := ActorJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/v1/queues", nil)
	req.Header.Set("Authorization", "Bearer "+signedActorToken(t, "secret", claims))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestActorJWTValidToken(t *testing.T) {
	mw := ActorJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/v1/queues", nil)
	req.Header.Set("Authorization", "Bearer "+signedActorToken(t, "secret", staffClaims()))
	rec := httptest.NewRecorder()

	var got tenancy.Actor
	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		actor, ok := tenancy.ActorFromContext(r.Context())
		if !ok {
			t.Fatalf("expected actor in context")
		}
		got = actor
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if got.ClinicID != "clinic-1" || got.DoctorID != "doc-1" || got.SubjectID != "user-7" {
		t.Fatalf("actor = %+v", got)
	}
	if got.Role != tenancy.RoleStaff {
		t.Fatalf("role = %q", got.Role)
	}
}

func TestRequireOperatorBlocksPatients(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/queues/q_1/call-next", nil)
	req = req.WithContext(tenancy.WithActor(req.Context(), tenancy.Actor{
		ClinicID: "clinic-1",
		Role:     tenancy.RolePatient,
	}))
	rec := httptest.NewRecorder()

	RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("patient should not reach operator endpoint")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestRequireOperatorAllowsStaff(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/queues/q_1/call-next", nil)
	req = req.WithContext(tenancy.WithActor(req.Context(), tenancy.Actor{
		ClinicID: "clinic-1",
		Role:     tenancy.RoleStaff,
	}))
	rec := httptest.NewRecorder()

	called := false
	RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected staff to pass, called=%v code=%d", called, rec.Code)
	}
}

func TestRequireOperatorWithoutActor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/queues/q_1/call-next", nil)
	rec := httptest.NewRecorder()

	RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}
