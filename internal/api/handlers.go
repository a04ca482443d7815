package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LeventeLantos/sos-dispatch/internal/contacts"
	"github.com/LeventeLantos/sos-dispatch/internal/history"
	"github.com/LeventeLantos/sos-dispatch/internal/model"
	"github.com/LeventeLantos/sos-dispatch/internal/repo"
	"github.com/LeventeLantos/sos-dispatch/internal/sos"
)

type AlertService interface {
	CreateAlert(ctx context.Context, userID string, in sos.CreateAlertInput) (*model.Alert, error)
	UpdateLocation(ctx context.Context, userID, alertID string, in sos.LocationInput) (*model.LocationSample, error)
	ResolveAlert(ctx context.Context, userID, alertID string, in sos.ResolveInput) (*model.Alert, error)
	ActiveAlert(ctx context.Context, userID string) (*model.Alert, error)
	Alert(ctx context.Context, userID, alertID string) (*model.Alert, error)
	Locations(ctx context.Context, userID, alertID string) ([]model.LocationSample, error)
	LastLocation(ctx context.Context, userID, alertID string) (*model.LocationSample, error)
}

type HistoryReader interface {
	UserHistory(ctx context.Context, userID string, page, limit int) (*history.Page, error)
}

type Handler struct {
	alerts        AlertService
	history       HistoryReader
	admin         *AdminHandler
	notifications *NotificationsHandler
	log           *zap.Logger
}

// NewHandler builds the alert handlers. admin and notifications are optional;
// their routes are only mounted when set.
func NewHandler(alerts AlertService, hist HistoryReader, admin *AdminHandler, notifications *NotificationsHandler, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{alerts: alerts, history: hist, admin: admin, notifications: notifications, log: log}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var in sos.CreateAlertInput
	if !decodeBody(w, r, &in) {
		return
	}

	alert, err := h.alerts.CreateAlert(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, h.log, err, alert)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (h *Handler) ActiveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.ActiveAlert(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.log, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alert": alert})
}

func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.Alert(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.log, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) AddLocation(w http.ResponseWriter, r *http.Request) {
	var in sos.LocationInput
	if !decodeBody(w, r, &in) {
		return
	}

	sample, err := h.alerts.UpdateLocation(r.Context(), userID(r), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, h.log, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, sample)
}

func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	items, err := h.alerts.Locations(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.log, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) LastLocation(w http.ResponseWriter, r *http.Request) {
	sample, err := h.alerts.LastLocation(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.log, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"location": sample})
}

func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	var in sos.ResolveInput
	if !decodeBody(w, r, &in) {
		return
	}

	alert, err := h.alerts.ResolveAlert(r.Context(), userID(r), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, h.log, err, alert)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page := parseInt(r.URL.Query().Get("page"), 1)
	limit := parseInt(r.URL.Query().Get("limit"), history.DefaultLimit)

	res, err := h.history.UserHistory(r.Context(), userID(r), page, limit)
	if err != nil {
		writeError(w, r, h.log, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return false
	}
	return true
}

// writeError maps service errors to status codes. When the alert was
// committed but its notifications could not be queued the alert is still
// returned alongside the error.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error, alert *model.Alert) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sos.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sos.ErrAlreadyActive):
		status = http.StatusConflict
	case errors.Is(err, sos.ErrInvalidState), errors.Is(err, sos.ErrInvalidInput), errors.Is(err, contacts.ErrInvalidContact):
		status = http.StatusBadRequest
	case errors.Is(err, sos.ErrQueueEnqueue):
		status = http.StatusServiceUnavailable
	}

	body := map[string]any{"error": err.Error()}
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		body["error"] = "internal error"
	}
	if alert != nil {
		body["alert"] = alert
	}
	writeJSON(w, status, body)
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
