package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/karthik-ak-dev/pulse-ops/internal/tenancy"
)

// ActorClaims are the JWT claims PulseOps issues to clinic apps and the
// patient booking page. ClinicID is mandatory; DoctorID narrows doctor
// tokens to their own queues.
type ActorClaims struct {
	jwt.RegisteredClaims
	ClinicID string `json:"clinicId"`
	DoctorID string `json:"doctorId,omitempty"`
	Role     string `json:"role"`
}

// ActorJWT validates an HMAC-signed bearer token and stores the resulting
// actor in the request context. Every /v1 route runs behind it.
func ActorJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := ActorClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			actor := tenancy.Actor{
				ClinicID:  claims.ClinicID,
				DoctorID:  claims.DoctorID,
				SubjectID: claims.Subject,
				Role:      tenancy.Role(claims.Role),
			}
			if actor.ClinicID == "" || !actor.Role.Valid() {
				http.Error(w, "token missing clinic or role", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenancy.WithActor(r.Context(), actor)))
		})
	}
}

// RequireOperator rejects actors that cannot drive queue operations.
// Patients book and watch; staff, doctors and admins operate.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenancy.ActorFromContext(r.Context())
		if !ok {
			http.Error(w, "missing actor context", http.StatusUnauthorized)
			return
		}
		if !actor.CanOperate() {
			http.Error(w, "operator role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
