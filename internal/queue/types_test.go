package queue

import (
	"strings"
	"testing"
	"time"
)

func TestTokenStatusHelpers(t *testing.T) {
	tests := []struct {
		status   TokenStatus
		terminal bool
		callable bool
		waiting  bool
	}{
		{TokenPending, false, false, true},
		{TokenConfirmed, false, true, true},
		{TokenArrived, false, true, true},
		{TokenCurrent, false, false, false},
		{TokenCompleted, true, false, false},
		{TokenCancelled, true, false, false},
		{TokenSkipped, true, false, false},
		{TokenNoShow, true, false, false},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		if got := tt.status.Callable(); got != tt.callable {
			t.Errorf("%s.Callable() = %v, want %v", tt.status, got, tt.callable)
		}
		if got := tt.status.Waiting(); got != tt.waiting {
			t.Errorf("%s.Waiting() = %v, want %v", tt.status, got, tt.waiting)
		}
	}
}

func TestQueueStatusHalted(t *testing.T) {
	for _, s := range allQueueStatuses {
		want := s == QueuePaused || s == QueueEmergency
		if got := s.Halted(); got != want {
			t.Errorf("%s.Halted() = %v, want %v", s, got, want)
		}
	}
}

func TestConsultationTypePriority(t *testing.T) {
	if ConsultationEmergency.Priority() != PriorityEmergency {
		t.Error("EMERGENCY consultations must take emergency priority")
	}
	for _, ct := range []ConsultationType{ConsultationGeneral, ConsultationSpecialist, ConsultationFollowUp, ConsultationReview} {
		if ct.Priority() != PriorityNormal {
			t.Errorf("%s should map to NORMAL priority", ct)
		}
	}
}

func TestCreateQueueInputValidate(t *testing.T) {
	valid := func() CreateQueueInput {
		return CreateQueueInput{ClinicID: "clinic-1", DoctorID: "doc-1", ServiceDate: "2026-03-02"}
	}

	ok := valid()
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*CreateQueueInput)
		want   string
	}{
		{"missing clinic", func(in *CreateQueueInput) { in.ClinicID = "  " }, "clinicId"},
		{"missing doctor", func(in *CreateQueueInput) { in.DoctorID = "" }, "doctorId"},
		{"bad date", func(in *CreateQueueInput) { in.ServiceDate = "02-03-2026" }, "serviceDate"},
		{"negative max", func(in *CreateQueueInput) { in.Settings.MaxTokens = -1 }, "maxTokens"},
		{"negative duration", func(in *CreateQueueInput) { in.Settings.ConsultationDuration = -time.Minute }, "consultationDuration"},
	}
	for _, tt := range tests {
		in := valid()
		tt.mutate(&in)
		err := in.Validate()
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if CodeOf(err) != CodeValidation {
			t.Errorf("%s: expected VALIDATION_ERROR, got %s", tt.name, CodeOf(err))
		}
		if !strings.Contains(MessageOf(err), tt.want) {
			t.Errorf("%s: message %q should mention %s", tt.name, MessageOf(err), tt.want)
		}
	}
}

func TestCreateTokenInputValidate(t *testing.T) {
	in := CreateTokenInput{QueueID: "q_1", PatientID: "pat-1"}
	if err := in.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	if in.ConsultationType != ConsultationGeneral {
		t.Fatalf("empty consultation type should default to GENERAL, got %s", in.ConsultationType)
	}

	in = CreateTokenInput{QueueID: "q_1", PatientID: "pat-1", ConsultationType: "WALK_IN"}
	if err := in.Validate(); CodeOf(err) != CodeValidation {
		t.Fatalf("unknown consultation type should fail validation, got %v", err)
	}

	in = CreateTokenInput{PatientID: "pat-1"}
	if err := in.Validate(); CodeOf(err) != CodeValidation {
		t.Fatalf("missing queueId should fail validation, got %v", err)
	}

	in = CreateTokenInput{QueueID: "q_1"}
	if err := in.Validate(); CodeOf(err) != CodeValidation {
		t.Fatalf("missing patientId should fail validation, got %v", err)
	}
}

func TestBreakWindowOn(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	from, to := BreakWindow{Label: "Lunch", From: "13:00", To: "14:00"}.On(day)
	if from.Hour() != 13 || to.Hour() != 14 {
		t.Fatalf("unexpected window: %v-%v", from, to)
	}
	if !from.Before(to) {
		t.Fatal("window must be ordered")
	}

	// Malformed and inverted windows resolve to the zero interval.
	for _, w := range []BreakWindow{
		{From: "25:00", To: "14:00"},
		{From: "lunch", To: "14:00"},
		{From: "14:00", To: "13:00"},
		{From: "13:00", To: "13:00"},
	} {
		from, to = w.On(day)
		if !from.IsZero() || !to.IsZero() {
			t.Errorf("window %+v should resolve to zero interval, got %v-%v", w, from, to)
		}
	}
}

func TestSettingsOpenWindowOn(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	opens, closes, err := Settings{OpensAt: "09:00", ClosesAt: "17:30"}.OpenWindowOn(day)
	if err != nil {
		t.Fatalf("OpenWindowOn: %v", err)
	}
	if opens.Hour() != 9 || closes.Hour() != 17 || closes.Minute() != 30 {
		t.Fatalf("unexpected window: %v-%v", opens, closes)
	}

	if _, _, err := (Settings{OpensAt: "17:00", ClosesAt: "09:00"}).OpenWindowOn(day); err == nil {
		t.Fatal("inverted window must error")
	}
	if _, _, err := (Settings{OpensAt: "nine", ClosesAt: "17:00"}).OpenWindowOn(day); err == nil {
		t.Fatal("malformed opensAt must error")
	}
}

func TestSettingsLocation(t *testing.T) {
	if loc := (Settings{}).Location(); loc != time.UTC {
		t.Fatalf("empty timezone should fall back to UTC, got %v", loc)
	}
	if loc := (Settings{Timezone: "Not/AZone"}).Location(); loc != time.UTC {
		t.Fatalf("unknown timezone should fall back to UTC, got %v", loc)
	}
	loc := Settings{Timezone: "Asia/Kolkata"}.Location()
	if loc.String() != "Asia/Kolkata" {
		t.Fatalf("expected Asia/Kolkata, got %v", loc)
	}
}

func TestServiceDayUsesQueueTimezone(t *testing.T) {
	q := &Queue{
		ServiceDate: "2026-03-02",
		Settings:    Settings{Timezone: "Asia/Kolkata"},
	}
	day, err := q.ServiceDay()
	if err != nil {
		t.Fatalf("ServiceDay: %v", err)
	}
	if day.Hour() != 0 || day.Location().String() != "Asia/Kolkata" {
		t.Fatalf("expected midnight IST, got %v", day)
	}

	q.ServiceDate = "yesterday"
	if _, err := q.ServiceDay(); err == nil {
		t.Fatal("malformed service date must error")
	}
}

func TestAtClock(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	got, err := atClock(day, "07:05")
	if err != nil {
		t.Fatalf("atClock: %v", err)
	}
	if got.Hour() != 7 || got.Minute() != 5 {
		t.Fatalf("unexpected time: %v", got)
	}

	for _, bad := range []string{"", "9", "24:00", "09:60", "-1:00", "aa:bb"} {
		if _, err := atClock(day, bad); err == nil {
			t.Errorf("atClock(%q) should fail", bad)
		}
	}
}

func TestIDPrefixes(t *testing.T) {
	if id := NewQueueID(); !strings.HasPrefix(id, "q_") {
		t.Errorf("queue id %q should carry q_ prefix", id)
	}
	if id := NewTokenID(); !strings.HasPrefix(id, "t_") {
		t.Errorf("token id %q should carry t_ prefix", id)
	}
	if id := NewEventID(); !strings.HasPrefix(id, "evt_") {
		t.Errorf("event id %q should carry evt_ prefix", id)
	}
	if NewTokenID() == NewTokenID() {
		t.Error("token ids must be unique")
	}
}
