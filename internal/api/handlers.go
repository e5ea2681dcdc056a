// Package api exposes HTTP handlers for the activity service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"example.com/parkactivity/internal/auth"
	"example.com/parkactivity/internal/domain"
)

const maxBodyBytes = 1 << 20

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service   *domain.Service
	adminRole string
	logger    *slog.Logger
}

// NewHandler builds a Handler. adminRole is the role granting access to every record.
func NewHandler(service *domain.Service, adminRole string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, adminRole: adminRole, logger: logger}
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", healthz)
	r.Post("/v1/activity", h.submitActivity)
	r.Get("/v1/activity", h.readActivity)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) permissions(r *http.Request) domain.Permissions {
	claims, _ := auth.FromContext(r.Context())
	return auth.Evaluate(claims, h.adminRole)
}

func (h *Handler) submitActivity(w http.ResponseWriter, r *http.Request) {
	action, err := lockActionFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, string(domain.KindValidation), err.Error())
		return
	}

	var sub domain.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&sub); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	rec, err := h.service.Submit(r.Context(), h.permissions(r), sub, action)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) readActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	perms := h.permissions(r)
	orcs := q.Get("orcs")
	subAreaID := q.Get("subAreaId")
	activity := q.Get("activity")

	if q.Has("startDate") || q.Has("endDate") {
		recs, err := h.service.List(r.Context(), perms, orcs, subAreaID, activity, q.Get("startDate"), q.Get("endDate"))
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ListActivityResponse{Items: recs})
		return
	}

	rec, err := h.service.Get(r.Context(), perms, orcs, domain.RecordKey{
		SubAreaID: subAreaID,
		Activity:  activity,
		Date:      q.Get("date"),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListActivityResponse packages range results.
type ListActivityResponse struct {
	Items []domain.ActivityRecord `json:"items"`
}

func lockActionFromQuery(r *http.Request) (domain.LockAction, error) {
	lock, err := boolParam(r, "lock")
	if err != nil {
		return domain.LockActionNone, err
	}
	unlock, err := boolParam(r, "unlock")
	if err != nil {
		return domain.LockActionNone, err
	}
	switch {
	case lock && unlock:
		return domain.LockActionNone, errors.New("lock and unlock cannot both be requested")
	case lock:
		return domain.LockActionLock, nil
	case unlock:
		return domain.LockActionUnlock, nil
	default:
		return domain.LockActionNone, nil
	}
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(name + " must be true or false")
	}
	return v, nil
}

var statusByKind = map[domain.Kind]int{
	domain.KindValidation:        http.StatusBadRequest,
	domain.KindFormat:            http.StatusBadRequest,
	domain.KindConfigMissing:     http.StatusBadRequest,
	domain.KindStore:             http.StatusBadRequest,
	domain.KindAuthentication:    http.StatusForbidden,
	domain.KindAuthorization:     http.StatusForbidden,
	domain.KindFiscalYearLocked:  http.StatusForbidden,
	domain.KindMonthNotConcluded: http.StatusForbidden,
	domain.KindNotFound:          http.StatusNotFound,
	domain.KindLockConflict:      http.StatusConflict,
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	if status, ok := statusByKind[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusBadRequest
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	detail := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		detail = de.Message
	}
	if kind == domain.KindStore {
		h.logger.ErrorContext(r.Context(), "store failure", "path", r.URL.Path, "request_id", RequestIDFrom(r.Context()), "error", err)
	}
	writeError(w, r, StatusFor(err), string(kind), detail)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	payload := map[string]string{
		"type":       code,
		"detail":     detail,
		"request_id": RequestIDFrom(r.Context()),
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
