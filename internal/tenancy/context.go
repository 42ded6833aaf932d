package tenancy

import "context"

// Role describes what an authenticated actor may do.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RoleStaff   Role = "staff"
	RolePatient Role = "patient"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleStaff, RolePatient:
		return true
	}
	return false
}

// Actor identifies the authenticated caller of a request.
type Actor struct {
	ClinicID  string
	DoctorID  string
	SubjectID string
	Role      Role
}

// CanOperate reports whether the actor may drive queue operations
// (start, pause, call, complete). Patients can only book and view.
func (a Actor) CanOperate() bool {
	switch a.Role {
	case RoleAdmin, RoleDoctor, RoleStaff:
		return true
	}
	return false
}

type ctxKey string

const actorKey ctxKey = "pulseops.actor"

// WithActor stores the actor in context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the actor if present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	val := ctx.Value(actorKey)
	if val == nil {
		return Actor{}, false
	}
	actor, ok := val.(Actor)
	return actor, ok && actor.ClinicID != ""
}

// ClinicIDFromContext extracts the actor's clinic if present.
func ClinicIDFromContext(ctx context.Context) (string, bool) {
	actor, ok := ActorFromContext(ctx)
	return actor.ClinicID, ok
}
