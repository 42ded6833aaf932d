// Package billing gates queue provisioning and token issuance on the
// clinic's subscription plan.
package billing

import (
	"context"
	"errors"
)

// Subscription denial sentinels. The queue engine maps these onto its
// capacity error taxonomy.
var (
	ErrNoSubscription       = errors.New("billing: no subscription for clinic")
	ErrSubscriptionInactive = errors.New("billing: subscription is not active")
	ErrTokenQuotaExhausted  = errors.New("billing: daily token quota exhausted")
)

// SubscriptionStatus is the lifecycle state of a clinic's plan.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "ACTIVE"
	StatusTrial     SubscriptionStatus = "TRIAL"
	StatusPastDue   SubscriptionStatus = "PAST_DUE"
	StatusCancelled SubscriptionStatus = "CANCELLED"
)

// Usable reports whether the plan currently grants service.
func (s SubscriptionStatus) Usable() bool {
	return s == StatusActive || s == StatusTrial
}

// Subscription is a clinic's plan record.
type Subscription struct {
	ClinicID        string             `dynamodbav:"clinicId" json:"clinicId"`
	Plan            string             `dynamodbav:"plan" json:"plan"`
	Status          SubscriptionStatus `dynamodbav:"status" json:"status"`
	DailyTokenLimit int                `dynamodbav:"dailyTokenLimit" json:"dailyTokenLimit"`
	UpdatedAt       string             `dynamodbav:"updatedAt" json:"updatedAt"`
}

// Gate authorizes clinic actions against the subscription plan.
type Gate interface {
	// CanCreateQueue reports whether the clinic may open a queue today.
	CanCreateQueue(ctx context.Context, clinicID string) error
	// CanBookToken reports whether the clinic may issue one more token,
	// given how many the queue has issued today.
	CanBookToken(ctx context.Context, clinicID string, issuedToday int) error
}

// AllowAll grants everything, for development and tests.
type AllowAll struct{}

var _ Gate = AllowAll{}

func (AllowAll) CanCreateQueue(context.Context, string) error    { return nil }
func (AllowAll) CanBookToken(context.Context, string, int) error { return nil }
