package clinic

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
	"github.com/karthik-ak-dev/pulse-ops/internal/tenancy"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

// queueEngine is the slice of the queue controller the clinic handler
// reads from.
type queueEngine interface {
	ListOpenQueues(ctx context.Context, clinicID string) ([]*queue.Queue, error)
	Snapshot(ctx context.Context, queueID string) (*queue.QueueSnapshot, error)
}

// Handler provides HTTP endpoints for clinic profile management and the
// clinic's live queue overview.
type Handler struct {
	store  *Store
	engine queueEngine
	logger *logging.Logger
}

// NewHandler creates a clinic HTTP handler.
func NewHandler(store *Store, engine queueEngine, logger *logging.Logger) *Handler {
	if store == nil {
		panic("clinic: handler requires a store")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		engine: engine,
		logger: logger.Component("clinic_handler"),
	}
}

// GetProfile returns the calling clinic's profile.
// GET /v1/clinic/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "missing actor context"}`, http.StatusUnauthorized)
		return
	}

	p, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic profile", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p); err != nil {
		h.logger.Error("failed to encode clinic profile", "clinic_id", clinicID, "error", err)
	}
}

// UpdateProfileRequest is the request body for updating a clinic profile.
// Absent fields leave the stored value unchanged.
type UpdateProfileRequest struct {
	Name          string             `json:"name,omitempty"`
	Email         string             `json:"email,omitempty"`
	Phone         string             `json:"phone,omitempty"`
	Address       string             `json:"address,omitempty"`
	City          string             `json:"city,omitempty"`
	State         string             `json:"state,omitempty"`
	Timezone      string             `json:"timezone,omitempty"`
	DoctorNames   map[string]string  `json:"doctor_names,omitempty"`
	Notifications *NotificationPrefs `json:"notifications,omitempty"`
}

// UpdateProfile creates or updates the calling clinic's profile.
// PUT /v1/clinic/profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "missing actor context"}`, http.StatusUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	p, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic profile", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Email != "" {
		p.Email = req.Email
	}
	if req.Phone != "" {
		p.Phone = req.Phone
	}
	if req.Address != "" {
		p.Address = req.Address
	}
	if req.City != "" {
		p.City = req.City
	}
	if req.State != "" {
		p.State = req.State
	}
	if req.Timezone != "" {
		p.Timezone = req.Timezone
	}
	if req.DoctorNames != nil {
		p.DoctorNames = req.DoctorNames
	}
	if req.Notifications != nil {
		p.Notifications = *req.Notifications
	}

	if err := h.store.Set(r.Context(), p); err != nil {
		h.logger.Error("failed to save clinic profile", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "failed to save profile"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("clinic profile updated", "clinic_id", clinicID, "name", p.Name)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p); err != nil {
		h.logger.Error("failed to encode clinic profile", "clinic_id", clinicID, "error", err)
	}
}

// OverviewRow summarizes one open queue for the clinic dashboard.
type OverviewRow struct {
	QueueID       string            `json:"queueId"`
	DoctorID      string            `json:"doctorId"`
	DoctorName    string            `json:"doctorName"`
	ServiceDate   string            `json:"serviceDate"`
	Status        queue.QueueStatus `json:"status"`
	ServingNumber int               `json:"servingNumber"`
	WaitingCount  int               `json:"waitingCount"`
	IssuedCount   int               `json:"issuedCount"`
	CompletedCount int              `json:"completedCount"`
}

// Overview returns live stats for every open queue of the calling clinic.
// GET /v1/clinic/overview
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "missing actor context"}`, http.StatusUnauthorized)
		return
	}
	if h.engine == nil {
		http.Error(w, `{"error": "overview not available"}`, http.StatusServiceUnavailable)
		return
	}

	queues, err := h.engine.ListOpenQueues(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to list open queues", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	p, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Warn("overview proceeding without profile", "clinic_id", clinicID, "error", err)
		p = DefaultProfile(clinicID)
	}

	rows := make([]OverviewRow, 0, len(queues))
	for _, q := range queues {
		row := OverviewRow{
			QueueID:     q.QueueID,
			DoctorID:    q.DoctorID,
			DoctorName:  p.DoctorName(q.DoctorID),
			ServiceDate: q.ServiceDate,
			Status:      q.Status,
			IssuedCount: q.LastTokenNumber,
		}
		// Snapshot failures degrade the row to queue-record data rather
		// than failing the whole overview.
		if snap, err := h.engine.Snapshot(r.Context(), q.QueueID); err == nil {
			row.ServingNumber = snap.ServingNumber
			row.WaitingCount = len(snap.Waiting)
			row.CompletedCount = snap.StatusCounts[queue.TokenCompleted]
		} else {
			h.logger.Warn("overview snapshot failed", "queue_id", q.QueueID, "error", err)
		}
		rows = append(rows, row)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"clinicId": clinicID,
		"queues":   rows,
		"count":    len(rows),
	}); err != nil {
		h.logger.Error("failed to encode clinic overview", "clinic_id", clinicID, "error", err)
	}
}
