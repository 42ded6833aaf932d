package tenancy

import (
	"context"
	"testing"
)

func TestWithActorAndActorFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithActor(ctx, Actor{ClinicID: "clinic-123", DoctorID: "doc-9", Role: RoleDoctor})

	actor, ok := ActorFromContext(ctx)
	if !ok {
		t.Fatalf("expected actor to be present")
	}
	if actor.ClinicID != "clinic-123" {
		t.Fatalf("expected clinic-123, got %s", actor.ClinicID)
	}
	if actor.DoctorID != "doc-9" {
		t.Fatalf("expected doc-9, got %s", actor.DoctorID)
	}

	clinicID, ok := ClinicIDFromContext(ctx)
	if !ok || clinicID != "clinic-123" {
		t.Fatalf("expected clinic id shortcut to match, got %q ok=%v", clinicID, ok)
	}
}

func TestActorFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatalf("expected missing actor to return false")
	}

	ctx = context.WithValue(ctx, actorKey, 42)
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatalf("expected non-actor value to return false")
	}

	ctx = WithActor(context.Background(), Actor{Role: RoleAdmin})
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatalf("expected actor without clinic to return false")
	}
}

func TestCanOperate(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleAdmin, true},
		{RoleDoctor, true},
		{RoleStaff, true},
		{RolePatient, false},
		{Role("visitor"), false},
	}
	for _, tt := range tests {
		actor := Actor{ClinicID: "c1", Role: tt.role}
		if got := actor.CanOperate(); got != tt.want {
			t.Fatalf("CanOperate(%s) = %v, want %v", tt.role, got, tt.want)
		}
	}
}
