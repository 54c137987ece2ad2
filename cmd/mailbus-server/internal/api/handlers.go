// Package api provides HTTP handlers for the mailbus server REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/mailbus"
	"github.com/coregx/mailbus/cmd/mailbus-server/internal/toggles"
	"github.com/coregx/mailbus/model"
	"github.com/coregx/mailbus/transform"
)

// Storage is the read/clear side of the pipeline. *mailbus.Broker implements it.
type Storage interface {
	ReadEverything(ctx context.Context) (map[string][]model.StoredRecord, error)
	ReadAll(ctx context.Context, bucket string) ([]model.StoredRecord, error)
	ClearAll(ctx context.Context) (map[string]int, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	publisher   mailbus.Publisher
	storage     Storage
	services    *toggles.Registry
	transformer transform.Transformer
	logger      mailbus.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	publisher mailbus.Publisher,
	storage Storage,
	services *toggles.Registry,
	transformer transform.Transformer,
	logger mailbus.Logger,
) *Handler {
	if transformer == nil {
		transformer = transform.Identity
	}
	if logger == nil {
		logger = &mailbus.NoopLogger{}
	}
	return &Handler{
		publisher:   publisher,
		storage:     storage,
		services:    services,
		transformer: transformer,
		logger:      logger,
	}
}

// EmailRequest is the body of POST /api/email.
type EmailRequest struct {
	Address string `json:"address"`
	Body    string `json:"body"`
}

// Validate checks the request fields.
func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Address, validation.Required, validation.By(containsAt)),
		validation.Field(&r.Body, validation.By(notBlank)),
	)
}

func containsAt(value interface{}) error {
	s, _ := value.(string)
	if !strings.Contains(s, "@") {
		return errors.New("must contain '@'")
	}
	return nil
}

func notBlank(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

// AcceptedResponse is returned by POST /api/email.
type AcceptedResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Domain string `json:"domain"`
}

// StorageResponse is returned by GET /api/storage.
type StorageResponse struct {
	Buckets     []string                        `json:"buckets"`
	Emails      map[string][]model.StoredRecord `json:"emails"`
	TotalEmails int                             `json:"totalEmails"`
}

// BucketResponse is returned by GET /api/storage/{bucket}.
type BucketResponse struct {
	Bucket string               `json:"bucket"`
	Emails []model.StoredRecord `json:"emails"`
	Count  int                  `json:"count"`
}

// ClearResponse is returned by DELETE /api/storage.
type ClearResponse struct {
	Removed      map[string]int `json:"removed"`
	TotalRemoved int            `json:"totalRemoved"`
}

// ServiceInfo describes one service and the transitions available from its
// current status.
type ServiceInfo struct {
	Name   string            `json:"name"`
	Status toggles.Status    `json:"status"`
	Links  map[string]string `json:"links"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleSendEmail handles POST /api/email
func (h *Handler) HandleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	if err := req.Validate(); err != nil {
		h.logger.Warnf("Rejected email payload: %v", err)
		h.respondError(w, http.StatusBadRequest, err.Error(), mailbus.ErrCodeValidation)
		return
	}

	service := toggles.ServiceFor(req.Address)
	if !h.services.Enabled(service) {
		h.logger.Warnf("Service disabled for %s, rejecting %s", service, req.Address)
		h.respondError(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Service is currently disabled for %s emails", service), "SERVICE_DISABLED")
		return
	}

	msg := model.NewMessage(req.Address, h.transformer.Transform(req.Body))
	if err := h.publisher.Publish(r.Context(), msg.Domain, msg); err != nil {
		h.logger.Errorf("Failed to publish message for %s: %v", req.Address, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to publish message", "PUBLISH_ERROR")
		return
	}

	h.logger.Infof("Accepted email %s for %s (domain=%s)", msg.ID, req.Address, msg.Domain)
	h.respondSuccess(w, http.StatusAccepted, AcceptedResponse{
		Status: "ACCEPTED",
		ID:     msg.ID,
		Domain: msg.Domain,
	}, "Request accepted for processing")
}

// HandleHealth handles GET /api/health
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleListStorage handles GET /api/storage
func (h *Handler) HandleListStorage(w http.ResponseWriter, r *http.Request) {
	all, err := h.storage.ReadEverything(r.Context())
	if err != nil {
		h.logger.Errorf("Failed to read storage: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to read storage", mailbus.CodeOf(err))
		return
	}

	resp := StorageResponse{Buckets: make([]string, 0, len(all)), Emails: all}
	for name, records := range all {
		resp.Buckets = append(resp.Buckets, name)
		resp.TotalEmails += len(records)
	}
	sort.Strings(resp.Buckets)

	h.respondSuccess(w, http.StatusOK, resp, "")
}

// HandleGetBucket handles GET /api/storage/{bucket}
func (h *Handler) HandleGetBucket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")

	records, err := h.storage.ReadAll(r.Context(), name)
	if err != nil {
		if mailbus.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, fmt.Sprintf("Bucket not found: %s", name), mailbus.ErrCodeNoData)
			return
		}
		h.logger.Errorf("Failed to read bucket %s: %v", name, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to read storage", mailbus.CodeOf(err))
		return
	}

	h.respondSuccess(w, http.StatusOK, BucketResponse{Bucket: name, Emails: records, Count: len(records)}, "")
}

// HandleClearStorage handles DELETE /api/storage
func (h *Handler) HandleClearStorage(w http.ResponseWriter, r *http.Request) {
	removed, err := h.storage.ClearAll(r.Context())
	if err != nil {
		h.logger.Errorf("Failed to clear storage: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to clear storage", mailbus.CodeOf(err))
		return
	}

	resp := ClearResponse{Removed: removed}
	for _, n := range removed {
		resp.TotalRemoved += n
	}
	h.logger.Infof("Cleared storage (%d records)", resp.TotalRemoved)
	h.respondSuccess(w, http.StatusOK, resp, "Storage cleared")
}

// HandleServicesStatus handles GET /api/services/status
func (h *Handler) HandleServicesStatus(w http.ResponseWriter, _ *http.Request) {
	h.respondSuccess(w, http.StatusOK, h.services.All(), "")
}

// HandleGetService handles GET /api/services/{name}
func (h *Handler) HandleGetService(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(chi.URLParam(r, "name"))

	status, err := h.services.Status(name)
	if err != nil {
		h.respondError(w, http.StatusNotFound, fmt.Sprintf("Service not found: %s", name), "NOT_FOUND")
		return
	}
	h.respondSuccess(w, http.StatusOK, serviceInfo(name, status), "")
}

// HandleActivateService handles PATCH /api/services/{name}/activate
func (h *Handler) HandleActivateService(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, toggles.Active, h.services.Activate)
}

// HandleDisableService handles PATCH /api/services/{name}/disable
func (h *Handler) HandleDisableService(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, toggles.Disabled, h.services.Disable)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, to toggles.Status, apply func(string) error) {
	name := strings.ToLower(chi.URLParam(r, "name"))

	if err := apply(name); err != nil {
		switch {
		case errors.Is(err, toggles.ErrUnknownService):
			h.respondError(w, http.StatusNotFound, fmt.Sprintf("Service not found: %s", name), "NOT_FOUND")
		case errors.Is(err, toggles.ErrNoTransition):
			h.respondError(w, http.StatusConflict, fmt.Sprintf("Service %s is already %s", name, to), "CONFLICT")
		default:
			h.respondError(w, http.StatusInternalServerError, err.Error(), "")
		}
		return
	}
	h.respondSuccess(w, http.StatusOK, serviceInfo(name, to), "")
}

func serviceInfo(name string, status toggles.Status) ServiceInfo {
	base := "/api/services/" + name
	links := map[string]string{
		"self": base,
		"list": "/api/services/status",
	}
	if status == toggles.Active {
		links["disable"] = base + "/disable"
	} else {
		links["activate"] = base + "/activate"
	}
	return ServiceInfo{Name: name, Status: status, Links: links}
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}
