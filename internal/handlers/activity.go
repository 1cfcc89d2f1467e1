package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phishguard/gateway/internal/db"
	"github.com/phishguard/gateway/internal/geoip"
)

// ActivityStore is the write side of the activity log plus analytics reads.
type ActivityStore interface {
	AppendActivity(ctx context.Context, in db.NewActivity) (*db.ActivityEvent, error)
	GetUserAnalytics(ctx context.Context, userID string) (*db.UserAnalytics, error)
}

// CountryLocator resolves a client address to a country.
type CountryLocator interface {
	Country(addr string) (geoip.Country, bool)
}

type logActivityRequest struct {
	URLRef      string  `json:"url_ref"`
	URLHash     string  `json:"url_hash"`
	Domain      string  `json:"domain"`
	IsPhishing  bool    `json:"is_phishing"`
	ThreatType  string  `json:"threat_type"`
	ThreatLevel string  `json:"threat_level"`
	Confidence  float64 `json:"confidence"`
	ActionTaken string  `json:"action_taken"`
	ClientIP    string  `json:"client_ip"`

	// Field names used by older extension builds.
	EncryptedURL     string `json:"encrypted_url"`
	EncryptedURLHash string `json:"encrypted_url_hash"`
}

type logActivityResponse struct {
	Success    bool   `json:"success"`
	ActivityID string `json:"activity_id"`
}

// ActivityHandler records URL checks and serves per-principal analytics.
type ActivityHandler struct {
	store  ActivityStore
	geo    CountryLocator
	logger *slog.Logger
}

// NewActivityHandler creates an ActivityHandler. geo may be nil.
func NewActivityHandler(store ActivityStore, geo CountryLocator, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{store: store, geo: geo, logger: logger}
}

// LogActivity handles POST /users/{principal_id}/activity.
func (ah *ActivityHandler) LogActivity(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalParam(w, r)
	if !ok {
		return
	}

	var req logActivityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if req.URLRef == "" {
		req.URLRef = req.EncryptedURL
	}
	if req.URLHash == "" {
		req.URLHash = req.EncryptedURLHash
	}
	if strings.TrimSpace(req.URLRef) == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "url_ref is required")
		return
	}
	if strings.TrimSpace(req.ActionTaken) == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "action_taken is required")
		return
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "confidence must be between 0 and 1")
		return
	}

	in := db.NewActivity{
		UserID:      principalID,
		URLRef:      req.URLRef,
		URLHash:     req.URLHash,
		Domain:      req.Domain,
		IsPhishing:  req.IsPhishing,
		ThreatType:  req.ThreatType,
		ThreatLevel: req.ThreatLevel,
		Confidence:  req.Confidence,
		ActionTaken: req.ActionTaken,
	}
	if req.ClientIP != "" && ah.geo != nil {
		if c, ok := ah.geo.Country(req.ClientIP); ok {
			in.CountryCode = c.Code
			in.CountryName = c.Name
		}
	}

	ev, err := ah.store.AppendActivity(r.Context(), in)
	if err != nil {
		ah.logger.Error("failed to log activity", "principal_id", principalID, "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to log activity")
		return
	}

	if ev.IsPhishing {
		ah.logger.Info("threat logged",
			"principal_id", principalID,
			"activity_id", ev.ActivityID,
			"threat_type", ev.ThreatType,
			"country", ev.CountryCode,
		)
	}
	writeJSON(w, http.StatusOK, logActivityResponse{Success: true, ActivityID: ev.ActivityID})
}

// GetAnalytics handles GET /users/{principal_id}/analytics.
func (ah *ActivityHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalParam(w, r)
	if !ok {
		return
	}

	a, err := ah.store.GetUserAnalytics(r.Context(), principalID)
	if err != nil {
		ah.logger.Error("failed to load analytics", "principal_id", principalID, "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to load analytics")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// principalParam returns the canonical form of the {principal_id} UUID.
func principalParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "principal_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "principal_id must be a UUID")
		return "", false
	}
	return id.String(), true
}
