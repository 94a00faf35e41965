// Package httpapi serves the platform owner's HTTP create and read endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/platformsync/internal/platform/errors"
	"github.com/louisbranch/platformsync/internal/services/platforms/storage"
)

const maxRequestBytes = 1 << 20

// Route patterns.
const (
	PlatformsPath = "/api/platforms"
	PlatformPath  = "/api/platforms/{id}"
)

// EventPublisher announces committed platforms.
type EventPublisher interface {
	PublishCreated(ctx context.Context, platform storage.Platform) error
}

// Handler owns the platform routes.
type Handler struct {
	store     storage.PlatformStore
	publisher EventPublisher
	clock     func() time.Time
	logf      func(string, ...any)
}

// NewHandler creates the platform HTTP handler. A nil logf logs with log.Printf.
func NewHandler(store storage.PlatformStore, publisher EventPublisher, logf func(string, ...any)) *Handler {
	if logf == nil {
		logf = log.Printf
	}
	return &Handler{
		store:     store,
		publisher: publisher,
		clock:     time.Now,
		logf:      logf,
	}
}

// Register mounts the platform routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+PlatformsPath, h.listPlatforms)
	mux.HandleFunc("POST "+PlatformsPath, h.createPlatform)
	mux.HandleFunc("GET "+PlatformPath, h.getPlatform)
}

type createPlatformRequest struct {
	Name      string `json:"name"`
	Publisher string `json:"publisher"`
	Cost      string `json:"cost"`
}

type platformResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Publisher string    `json:"publisher"`
	Cost      string    `json:"cost"`
	CreatedAt time.Time `json:"createdAt"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) createPlatform(w http.ResponseWriter, r *http.Request) {
	var req createPlatformRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid platform payload", err))
		return
	}
	in := storage.NewPlatform{
		Name:      strings.TrimSpace(req.Name),
		Publisher: strings.TrimSpace(req.Publisher),
		Cost:      strings.TrimSpace(req.Cost),
	}
	if err := validate(in); err != nil {
		writeError(w, err)
		return
	}

	platform, err := h.store.CreatePlatform(r.Context(), in, h.clock())
	if err != nil {
		h.logf("create platform: %v", err)
		writeError(w, err)
		return
	}

	// The platform is committed; a publish failure leaves it in place and the
	// next consumer bulk pull picks it up.
	if h.publisher != nil {
		if err := h.publisher.PublishCreated(context.WithoutCancel(r.Context()), platform); err != nil {
			h.logf("publish platform %d: %v", platform.ID, err)
		}
	}
	writeJSON(w, http.StatusCreated, toResponse(platform))
}

func (h *Handler) listPlatforms(w http.ResponseWriter, r *http.Request) {
	platforms, err := h.store.ListPlatforms(r.Context())
	if err != nil {
		h.logf("list platforms: %v", err)
		writeError(w, err)
		return
	}
	out := make([]platformResponse, 0, len(platforms))
	for _, platform := range platforms {
		out = append(out, toResponse(platform))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getPlatform(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "platform id must be a positive integer"))
		return
	}
	platform, err := h.store.GetPlatform(r.Context(), id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.logf("get platform %d: %v", id, err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(platform))
}

func validate(in storage.NewPlatform) error {
	switch {
	case in.Name == "":
		return apperrors.New(apperrors.CodeInvalidArgument, "name is required")
	case in.Publisher == "":
		return apperrors.New(apperrors.CodeInvalidArgument, "publisher is required")
	case in.Cost == "":
		return apperrors.New(apperrors.CodeInvalidArgument, "cost is required")
	}
	return nil
}

func toResponse(platform storage.Platform) platformResponse {
	return platformResponse{
		ID:        platform.ID,
		Name:      platform.Name,
		Publisher: platform.Publisher,
		Cost:      platform.Cost,
		CreatedAt: platform.CreatedAt,
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	message := "internal error"
	if code != apperrors.CodeUnknown {
		message = err.Error()
	}
	writeJSON(w, code.HTTPStatus(), errorResponse{Error: string(code), Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
