// Package queue implements the PulseOps queue engine: per-doctor daily
// queues, numbered patient tokens, wait estimation, and event fan-out.
package queue

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the lifecycle state of a daily queue.
type QueueStatus string

const (
	QueueNotStarted QueueStatus = "NOT_STARTED"
	QueueActive     QueueStatus = "ACTIVE"
	QueuePaused     QueueStatus = "PAUSED"
	QueueEmergency  QueueStatus = "EMERGENCY"
	QueueClosed     QueueStatus = "CLOSED"
)

// Valid reports whether s is a known queue status.
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueNotStarted, QueueActive, QueuePaused, QueueEmergency, QueueClosed:
		return true
	}
	return false
}

// Halted reports whether the queue is in a paused family state.
func (s QueueStatus) Halted() bool {
	return s == QueuePaused || s == QueueEmergency
}

// TokenStatus is the lifecycle state of a patient token.
type TokenStatus string

const (
	TokenPending   TokenStatus = "PENDING"
	TokenConfirmed TokenStatus = "CONFIRMED"
	TokenArrived   TokenStatus = "ARRIVED"
	TokenCurrent   TokenStatus = "CURRENT"
	TokenCompleted TokenStatus = "COMPLETED"
	TokenCancelled TokenStatus = "CANCELLED"
	TokenSkipped   TokenStatus = "SKIPPED"
	TokenNoShow    TokenStatus = "NO_SHOW"
)

// Valid reports whether s is a known token status.
func (s TokenStatus) Valid() bool {
	switch s {
	case TokenPending, TokenConfirmed, TokenArrived, TokenCurrent,
		TokenCompleted, TokenCancelled, TokenSkipped, TokenNoShow:
		return true
	}
	return false
}

// Terminal reports whether the token can never change state again.
func (s TokenStatus) Terminal() bool {
	switch s {
	case TokenCompleted, TokenCancelled, TokenSkipped, TokenNoShow:
		return true
	}
	return false
}

// Callable reports whether CallNext may select a token in this state.
func (s TokenStatus) Callable() bool {
	return s == TokenConfirmed || s == TokenArrived
}

// Waiting reports whether the token still occupies a place in line.
// PENDING tokens wait but are not yet callable.
func (s TokenStatus) Waiting() bool {
	return s == TokenPending || s == TokenConfirmed || s == TokenArrived
}

// PauseReason annotates why a queue was halted.
type PauseReason string

const (
	PauseLunchBreak        PauseReason = "LUNCH_BREAK"
	PauseEmergency         PauseReason = "EMERGENCY"
	PauseTechnicalIssue    PauseReason = "TECHNICAL_ISSUE"
	PauseDoctorUnavailable PauseReason = "DOCTOR_UNAVAILABLE"
	PauseOther             PauseReason = "OTHER"
)

// Valid reports whether r is a known pause reason.
func (r PauseReason) Valid() bool {
	switch r {
	case PauseLunchBreak, PauseEmergency, PauseTechnicalIssue, PauseDoctorUnavailable, PauseOther:
		return true
	}
	return false
}

// ConsultationType classifies what the patient is being seen for.
type ConsultationType string

const (
	ConsultationGeneral    ConsultationType = "GENERAL"
	ConsultationSpecialist ConsultationType = "SPECIALIST"
	ConsultationFollowUp   ConsultationType = "FOLLOW_UP"
	ConsultationEmergency  ConsultationType = "EMERGENCY"
	ConsultationReview     ConsultationType = "REVIEW"
)

// Valid reports whether c is a known consultation type.
func (c ConsultationType) Valid() bool {
	switch c {
	case ConsultationGeneral, ConsultationSpecialist, ConsultationFollowUp,
		ConsultationEmergency, ConsultationReview:
		return true
	}
	return false
}

// Priority returns the scheduling priority implied by the consultation type.
func (c ConsultationType) Priority() Priority {
	if c == ConsultationEmergency {
		return PriorityEmergency
	}
	return PriorityNormal
}

// Priority orders tokens within the waiting line.
type Priority string

const (
	PriorityNormal    Priority = "NORMAL"
	PriorityEmergency Priority = "EMERGENCY"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityEmergency
}

// PaymentStatus mirrors the upstream payment pipeline's view of a token.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded, PaymentCancelled:
		return true
	}
	return false
}

// BreakWindow is a wall-clock interval during which no calls happen.
type BreakWindow struct {
	Label string `dynamodbav:"label" json:"label"`
	From  string `dynamodbav:"from" json:"from"`
	To    string `dynamodbav:"to" json:"to"`
}

// On resolves the window to absolute times on the given day. Windows with
// malformed clocks resolve to a zero interval.
func (w BreakWindow) On(day time.Time) (time.Time, time.Time) {
	from, errFrom := atClock(day, w.From)
	to, errTo := atClock(day, w.To)
	if errFrom != nil || errTo != nil || !to.After(from) {
		return time.Time{}, time.Time{}
	}
	return from, to
}

// Settings are the per-queue operating parameters.
type Settings struct {
	MaxTokens              int           `dynamodbav:"maxTokens" json:"maxTokens"`
	ConsultationDuration   time.Duration `dynamodbav:"consultationDuration" json:"consultationDuration"`
	OpensAt                string        `dynamodbav:"opensAt" json:"opensAt"`
	ClosesAt               string        `dynamodbav:"closesAt" json:"closesAt"`
	Timezone               string        `dynamodbav:"timezone" json:"timezone"`
	Breaks                 []BreakWindow `dynamodbav:"breaks,omitempty" json:"breaks,omitempty"`
	AllowEmergencyOverbook bool          `dynamodbav:"allowEmergencyOverbook" json:"allowEmergencyOverbook"`
}

// Location resolves the queue's timezone, falling back to UTC.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OpenWindowOn resolves the booking window to absolute times on the given day.
func (s Settings) OpenWindowOn(day time.Time) (time.Time, time.Time, error) {
	opens, err := atClock(day, s.OpensAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("queue: opensAt: %w", err)
	}
	closes, err := atClock(day, s.ClosesAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("queue: closesAt: %w", err)
	}
	if !closes.After(opens) {
		return time.Time{}, time.Time{}, fmt.Errorf("queue: closesAt %s not after opensAt %s", s.ClosesAt, s.OpensAt)
	}
	return opens, closes, nil
}

// Queue is one doctor's queue for one service date.
type Queue struct {
	QueueID         string      `dynamodbav:"queueId" json:"queueId"`
	ClinicID        string      `dynamodbav:"clinicId" json:"clinicId"`
	DoctorID        string      `dynamodbav:"doctorId" json:"doctorId"`
	ServiceDate     string      `dynamodbav:"serviceDate" json:"serviceDate"`
	Status          QueueStatus `dynamodbav:"status" json:"status"`
	PauseReason     PauseReason `dynamodbav:"pauseReason,omitempty" json:"pauseReason,omitempty"`
	Settings        Settings    `dynamodbav:"settings" json:"settings"`
	CurrentTokenID  string      `dynamodbav:"currentTokenId,omitempty" json:"currentTokenId,omitempty"`
	LastTokenNumber int         `dynamodbav:"lastTokenNumber" json:"lastTokenNumber"`
	EventSeq        int64       `dynamodbav:"eventSeq" json:"eventSeq"`
	StartedAt       *time.Time  `dynamodbav:"startedAt,omitempty" json:"startedAt,omitempty"`
	PausedAt        *time.Time  `dynamodbav:"pausedAt,omitempty" json:"pausedAt,omitempty"`
	ResumedAt       *time.Time  `dynamodbav:"resumedAt,omitempty" json:"resumedAt,omitempty"`
	ClosedAt        *time.Time  `dynamodbav:"closedAt,omitempty" json:"closedAt,omitempty"`
	CreatedAt       time.Time   `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time   `dynamodbav:"updatedAt" json:"updatedAt"`
	Version         int64       `dynamodbav:"version" json:"version"`
}

// ServiceDay parses the queue's service date in its own timezone, at midnight.
func (q *Queue) ServiceDay() (time.Time, error) {
	loc := q.Settings.Location()
	day, err := time.ParseInLocation("2006-01-02", q.ServiceDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("queue: service date %q: %w", q.ServiceDate, err)
	}
	return day, nil
}

// Token is a numbered place in a queue held by one patient.
type Token struct {
	TokenID          string           `dynamodbav:"tokenId" json:"tokenId"`
	QueueID          string           `dynamodbav:"queueId" json:"queueId"`
	ClinicID         string           `dynamodbav:"clinicId" json:"clinicId"`
	PatientID        string           `dynamodbav:"patientId" json:"patientId"`
	PatientName      string           `dynamodbav:"patientName,omitempty" json:"patientName,omitempty"`
	PatientPhone     string           `dynamodbav:"patientPhone,omitempty" json:"patientPhone,omitempty"`
	TokenNumber      int              `dynamodbav:"tokenNumber" json:"tokenNumber"`
	Status           TokenStatus      `dynamodbav:"status" json:"status"`
	Priority         Priority         `dynamodbav:"priority" json:"priority"`
	ConsultationType ConsultationType `dynamodbav:"consultationType" json:"consultationType"`
	PaymentStatus    PaymentStatus    `dynamodbav:"paymentStatus" json:"paymentStatus"`
	PaymentReference string           `dynamodbav:"paymentReference,omitempty" json:"paymentReference,omitempty"`
	StatusReason     string           `dynamodbav:"statusReason,omitempty" json:"statusReason,omitempty"`
	IssuedAt         time.Time        `dynamodbav:"issuedAt" json:"issuedAt"`
	ConfirmedAt      *time.Time       `dynamodbav:"confirmedAt,omitempty" json:"confirmedAt,omitempty"`
	ArrivedAt        *time.Time       `dynamodbav:"arrivedAt,omitempty" json:"arrivedAt,omitempty"`
	CalledAt         *time.Time       `dynamodbav:"calledAt,omitempty" json:"calledAt,omitempty"`
	CompletedAt      *time.Time       `dynamodbav:"completedAt,omitempty" json:"completedAt,omitempty"`
	UpdatedAt        time.Time        `dynamodbav:"updatedAt" json:"updatedAt"`
}

// CreateQueueInput carries the fields needed to provision a day's queue.
// Zero-valued settings fields are filled from engine defaults.
type CreateQueueInput struct {
	ClinicID    string   `json:"-"`
	DoctorID    string   `json:"doctorId"`
	ServiceDate string   `json:"serviceDate"`
	Settings    Settings `json:"settings"`
}

// Validate checks structural validity; capacity and billing run later.
func (in *CreateQueueInput) Validate() error {
	if strings.TrimSpace(in.ClinicID) == "" {
		return Invalid("clinicId required")
	}
	if strings.TrimSpace(in.DoctorID) == "" {
		return Invalid("doctorId required")
	}
	if _, err := time.Parse("2006-01-02", in.ServiceDate); err != nil {
		return Invalid("serviceDate must be YYYY-MM-DD")
	}
	if in.Settings.MaxTokens < 0 {
		return Invalid("maxTokens cannot be negative")
	}
	if in.Settings.ConsultationDuration < 0 {
		return Invalid("consultationDuration cannot be negative")
	}
	return nil
}

// CreateTokenInput carries the fields needed to issue a token.
type CreateTokenInput struct {
	QueueID          string           `json:"-"`
	ClinicID         string           `json:"-"`
	PatientID        string           `json:"patientId"`
	PatientName      string           `json:"patientName"`
	PatientPhone     string           `json:"patientPhone"`
	ConsultationType ConsultationType `json:"consultationType"`
}

// Validate checks structural validity; capacity and billing run later.
func (in *CreateTokenInput) Validate() error {
	if strings.TrimSpace(in.QueueID) == "" {
		return Invalid("queueId required")
	}
	if strings.TrimSpace(in.PatientID) == "" {
		return Invalid("patientId required")
	}
	if in.ConsultationType == "" {
		in.ConsultationType = ConsultationGeneral
	}
	if !in.ConsultationType.Valid() {
		return Invalid(fmt.Sprintf("unknown consultationType %q", in.ConsultationType))
	}
	return nil
}

// WaitingToken is one waiting entry in a snapshot, with its call order
// position and wait estimate.
type WaitingToken struct {
	Token       *Token    `json:"token"`
	Position    int       `json:"position"`
	EstimatedAt time.Time `json:"estimatedAt"`
}

// QueueSnapshot is the dashboard view of one queue at a point in time.
type QueueSnapshot struct {
	Queue         *Queue              `json:"queue"`
	CurrentToken  *Token              `json:"currentToken,omitempty"`
	Waiting       []WaitingToken      `json:"waiting"`
	StatusCounts  map[TokenStatus]int `json:"statusCounts"`
	ServingNumber int                 `json:"servingNumber"`
	GeneratedAt   time.Time           `json:"generatedAt"`
}

// TokenPosition is the patient view of one token's place in line.
type TokenPosition struct {
	Token         *Token    `json:"token"`
	Position      int       `json:"position"`
	Ahead         int       `json:"ahead"`
	ServingNumber int       `json:"servingNumber"`
	EstimatedAt   time.Time `json:"estimatedAt"`
}

// CloseSummary is the end-of-day report produced when a queue closes.
type CloseSummary struct {
	QueueID      string              `json:"queueId"`
	ClinicID     string              `json:"clinicId"`
	DoctorID     string              `json:"doctorId"`
	ServiceDate  string              `json:"serviceDate"`
	TokensIssued int                 `json:"tokensIssued"`
	StatusCounts map[TokenStatus]int `json:"statusCounts"`
	StartedAt    *time.Time          `json:"startedAt,omitempty"`
	ClosedAt     time.Time           `json:"closedAt"`
	Settings     Settings            `json:"settings"`
}

// NewQueueID mints a queue identifier.
func NewQueueID() string { return "q_" + uuid.NewString() }

// NewTokenID mints a token identifier.
func NewTokenID() string { return "t_" + uuid.NewString() }

// NewEventID mints an event identifier.
func NewEventID() string { return "evt_" + uuid.NewString() }

// atClock resolves an "HH:MM" wall clock on the given day, in day's location.
func atClock(day time.Time, clock string) (time.Time, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed clock %q", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("malformed clock %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("malformed clock %q", clock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location()), nil
}
