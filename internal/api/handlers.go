// Package api exposes HTTP handlers for the vitals service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/vitals/internal/auth"
	"example.com/vitals/internal/domain"
	"example.com/vitals/internal/persistence"
	"example.com/vitals/internal/vitals"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Coordinator is the subset of *vitals.Coordinator the handlers drive.
type Coordinator interface {
	View() vitals.View
	Fetch(ctx context.Context, forceRefresh bool) (vitals.Outcome, error)
	ForceRefresh(ctx context.Context) (vitals.Outcome, error)
	RequestPermissions(ctx context.Context) ([]domain.PermissionGrant, error)
	OpenSettings(ctx context.Context) error
}

// HistoryStore lists stored snapshots.
type HistoryStore interface {
	ListSnapshots(ctx context.Context, tenantID, userID string, cursor *domain.SnapshotCursor, limit int) ([]domain.VitalsSnapshot, *domain.SnapshotCursor, error)
}

// Handler coordinates HTTP requests with the fetch coordinator.
type Handler struct {
	coordinator Coordinator
	history     HistoryStore
	logger      logrus.FieldLogger
}

// NewHandler builds a Handler. history may be nil, in which case the history route reports 404.
func NewHandler(coordinator Coordinator, history HistoryStore, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{coordinator: coordinator, history: history, logger: logger.WithField("component", "api")}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/vitals", h.vitals)
	mux.HandleFunc("/v1/vitals/refresh", h.refresh)
	mux.HandleFunc("/v1/vitals/permissions", h.permissions)
	mux.HandleFunc("/v1/vitals/settings", h.settings)
	mux.HandleFunc("/v1/vitals/history", h.listHistory)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) vitals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := authorize(w, r, false); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.coordinator.View())
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, true)
	if !ok {
		return
	}

	force := true
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "force must be a boolean")
			return
		}
		force = parsed
	}

	// The cycle is shared by every viewer; a disconnecting client must not abort it.
	ctx := context.WithoutCancel(r.Context())
	var (
		outcome vitals.Outcome
		err     error
	)
	if force {
		outcome, err = h.coordinator.ForceRefresh(ctx)
	} else {
		outcome, err = h.coordinator.Fetch(ctx, false)
	}
	logger := h.logger.WithFields(logrus.Fields{"subject": claims.Subject, "outcome": outcome})

	resp := RefreshResponse{Outcome: string(outcome), View: h.coordinator.View()}
	switch outcome {
	case vitals.OutcomeFetched, vitals.OutcomeAlreadyFetched:
		writeJSON(w, http.StatusOK, resp)
	case vitals.OutcomeInFlight:
		writeJSON(w, http.StatusAccepted, resp)
	case vitals.OutcomePermissionNeeded:
		writeError(w, http.StatusConflict, "permission_needed", "no health record permissions granted")
	default:
		logger.WithError(err).Warn("refresh failed")
		status := http.StatusBadGateway
		if domain.IsQuotaExceeded(err) {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, "fetch_failed", vitals.ClassifyError(err))
	}
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := authorize(w, r, true); !ok {
		return
	}

	grants, err := h.coordinator.RequestPermissions(r.Context())
	if err != nil {
		h.logger.WithError(err).Warn("permission request failed")
		writeError(w, http.StatusBadGateway, "source_unavailable", vitals.ClassifyError(err))
		return
	}
	if grants == nil {
		grants = []domain.PermissionGrant{}
	}
	writeJSON(w, http.StatusOK, PermissionsResponse{Granted: grants})
}

func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := authorize(w, r, true); !ok {
		return
	}

	if err := h.coordinator.OpenSettings(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "source_unavailable", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, false)
	if !ok {
		return
	}
	if h.history == nil {
		writeError(w, http.StatusNotFound, "not_found", "snapshot history is not configured")
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = claims.Subject
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > maxHistoryLimit {
				parsed = maxHistoryLimit
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	snapshots, next, err := h.history.ListSnapshots(r.Context(), claims.TenantID, userID, cursor, limit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]SnapshotView, 0, len(snapshots))
	for _, s := range snapshots {
		items = append(items, toSnapshotView(s))
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

// authorize loads claims and enforces vitals:read, or vitals:refresh when refresh is set.
func authorize(w http.ResponseWriter, r *http.Request, refresh bool) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if refresh && !claims.HasScope(auth.ScopeVitalsRefresh) {
		writeError(w, http.StatusForbidden, "forbidden", "scope vitals:refresh required")
		return nil, false
	}
	if !refresh && !claims.CanRead() {
		writeError(w, http.StatusForbidden, "forbidden", "scope vitals:read required")
		return nil, false
	}
	return claims, true
}

// RefreshResponse is returned by POST /v1/vitals/refresh.
type RefreshResponse struct {
	Outcome string      `json:"outcome"`
	View    vitals.View `json:"view"`
}

// PermissionsResponse lists the grants after a permission request.
type PermissionsResponse struct {
	Granted []domain.PermissionGrant `json:"granted"`
}

// SnapshotView is the stored form of one fetch cycle.
type SnapshotView struct {
	SnapshotID         string    `json:"snapshot_id"`
	ReferenceDate      string    `json:"reference_date"`
	CapturedAt         time.Time `json:"captured_at"`
	Steps              float64   `json:"steps"`
	HeartRate          float64   `json:"heart_rate"`
	DistanceMeters     float64   `json:"distance_meters"`
	ActiveCalories     float64   `json:"active_calories"`
	SleepHours         float64   `json:"sleep_hours"`
	BloodOxygenPercent float64   `json:"blood_oxygen_percent"`
}

// HistoryResponse packages list results.
type HistoryResponse struct {
	Items      []SnapshotView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func toSnapshotView(s domain.VitalsSnapshot) SnapshotView {
	return SnapshotView{
		SnapshotID:         s.ID,
		ReferenceDate:      s.ReferenceDate.Format("2006-01-02"),
		CapturedAt:         s.CapturedAt,
		Steps:              s.Steps,
		HeartRate:          s.HeartRate,
		DistanceMeters:     s.DistanceMeters,
		ActiveCalories:     s.ActiveCalories,
		SleepHours:         s.SleepHours,
		BloodOxygenPercent: s.BloodOxygenPercent,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
