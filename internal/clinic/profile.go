// Package clinic stores per-clinic profile data: display names, contact
// details, and notification preferences. Profiles feed outbound messages
// and the close-summary emails; queue behavior itself is configured per
// queue, not here.
package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NotificationPrefs holds a clinic's notification switches.
type NotificationPrefs struct {
	// WhatsAppEnabled gates all patient-facing WhatsApp messages.
	WhatsAppEnabled bool `json:"whatsapp_enabled"`

	// EmailEnabled gates operational emails to the clinic.
	EmailEnabled    bool     `json:"email_enabled"`
	EmailRecipients []string `json:"email_recipients,omitempty"`

	// NotifyOnClose sends the day's close summary when a queue closes.
	NotifyOnClose bool `json:"notify_on_close"`
}

// Recipients returns the configured email recipients with blanks and
// duplicates removed, falling back to the profile's contact email.
func (n *NotificationPrefs) Recipients(fallback string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range n.EmailRecipients {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 && strings.TrimSpace(fallback) != "" {
		out = append(out, strings.TrimSpace(fallback))
	}
	return out
}

// Profile holds clinic-level data shared across that clinic's queues.
type Profile struct {
	ClinicID string `json:"clinic_id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	// Timezone is an IANA name, e.g. "Asia/Kolkata".
	Timezone string `json:"timezone"`

	// DoctorNames maps doctor IDs to display names used in messages.
	DoctorNames map[string]string `json:"doctor_names,omitempty"`

	Notifications NotificationPrefs `json:"notifications"`
}

// DoctorName returns the display name for a doctor ID, or the ID itself
// when no name is on file.
func (p *Profile) DoctorName(doctorID string) string {
	if p == nil {
		return doctorID
	}
	if name, ok := p.DoctorNames[doctorID]; ok && strings.TrimSpace(name) != "" {
		return name
	}
	return doctorID
}

// DisplayName returns the clinic's name, or a generic label for
// unprovisioned clinics.
func (p *Profile) DisplayName() string {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return "Your clinic"
	}
	return p.Name
}

// DefaultProfile returns the profile used before a clinic has been
// provisioned. Notifications default off so an unconfigured clinic never
// messages anyone.
func DefaultProfile(clinicID string) *Profile {
	return &Profile{
		ClinicID: clinicID,
		Name:     "",
		Timezone: "Asia/Kolkata",
		Notifications: NotificationPrefs{
			WhatsAppEnabled: false,
			EmailEnabled:    false,
			NotifyOnClose:   true,
		},
	}
}

// Store persists clinic profiles in Redis.
type Store struct {
	redis *redis.Client
}

// NewStore creates a profile store. A nil client is allowed; Get then
// serves defaults and Set fails.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(clinicID string) string {
	return fmt.Sprintf("pulseops:clinic:profile:%s", clinicID)
}

// Get retrieves a clinic profile, returning the default when none is
// stored.
func (s *Store) Get(ctx context.Context, clinicID string) (*Profile, error) {
	if s.redis == nil {
		return DefaultProfile(clinicID), nil
	}

	data, err := s.redis.Get(ctx, s.key(clinicID)).Bytes()
	if err == redis.Nil {
		return DefaultProfile(clinicID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal profile: %w", err)
	}
	if p.ClinicID == "" {
		p.ClinicID = clinicID
	}
	return &p, nil
}

// Set saves a clinic profile. Profiles never expire.
func (s *Store) Set(ctx context.Context, p *Profile) error {
	if s.redis == nil {
		return fmt.Errorf("clinic: profile store not configured")
	}
	if p == nil || strings.TrimSpace(p.ClinicID) == "" {
		return fmt.Errorf("clinic: profile requires a clinic id")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("clinic: marshal profile: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(p.ClinicID), data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set profile: %w", err)
	}
	return nil
}
