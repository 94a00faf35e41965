// Package httpapi serves the consumer's command endpoints over the replica.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	apperrors "github.com/louisbranch/platformsync/internal/platform/errors"
	"github.com/louisbranch/platformsync/internal/services/commands/catalog"
	"github.com/louisbranch/platformsync/internal/services/commands/storage"
)

const maxRequestBytes = 1 << 20

// Route patterns.
const (
	PlatformsPath = "/api/c/platforms"
	CommandsPath  = "/api/c/platforms/{platformId}/commands"
	CommandPath   = "/api/c/platforms/{platformId}/commands/{commandId}"
)

// Catalog is the command service behind the routes.
type Catalog interface {
	ListPlatforms(ctx context.Context) ([]catalog.PlatformCommands, error)
	ListCommands(ctx context.Context, platformID int64) ([]storage.Command, error)
	GetCommand(ctx context.Context, platformID, commandID int64) (storage.Command, error)
	CreateCommand(ctx context.Context, platformID int64, in catalog.NewCommand) (storage.Command, error)
}

// Handler owns the command routes.
type Handler struct {
	catalog Catalog
	logf    func(string, ...any)
}

// NewHandler creates the command HTTP handler. A nil logf logs with log.Printf.
func NewHandler(c Catalog, logf func(string, ...any)) *Handler {
	if logf == nil {
		logf = log.Printf
	}
	return &Handler{catalog: c, logf: logf}
}

// Register mounts the command routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+PlatformsPath, h.listPlatforms)
	mux.HandleFunc("GET "+CommandsPath, h.listCommands)
	mux.HandleFunc("POST "+CommandsPath, h.createCommand)
	mux.HandleFunc("GET "+CommandPath, h.getCommand)
}

type platformResponse struct {
	ID         int64             `json:"id"`
	ExternalID int64             `json:"externalId,omitempty"`
	Name       string            `json:"name"`
	Publisher  string            `json:"publisher"`
	Commands   []commandResponse `json:"commands"`
}

type commandResponse struct {
	ID          int64  `json:"id"`
	HowTo       string `json:"howTo"`
	CommandLine string `json:"commandLine"`
	PlatformID  int64  `json:"platformId"`
}

type createCommandRequest struct {
	HowTo       string `json:"howTo"`
	CommandLine string `json:"commandLine"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) listPlatforms(w http.ResponseWriter, r *http.Request) {
	platforms, err := h.catalog.ListPlatforms(r.Context())
	if err != nil {
		h.fail(w, "list platforms", err)
		return
	}
	out := make([]platformResponse, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, platformResponse{
			ID:         p.Platform.LocalID,
			ExternalID: p.Platform.ExternalID,
			Name:       p.Platform.Name,
			Publisher:  p.Platform.Publisher,
			Commands:   toCommands(p.Commands),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listCommands(w http.ResponseWriter, r *http.Request) {
	platformID, ok := pathID(w, r, "platformId")
	if !ok {
		return
	}
	commands, err := h.catalog.ListCommands(r.Context(), platformID)
	if err != nil {
		h.fail(w, "list commands", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommands(commands))
}

func (h *Handler) getCommand(w http.ResponseWriter, r *http.Request) {
	platformID, ok := pathID(w, r, "platformId")
	if !ok {
		return
	}
	commandID, ok := pathID(w, r, "commandId")
	if !ok {
		return
	}
	command, err := h.catalog.GetCommand(r.Context(), platformID, commandID)
	if err != nil {
		h.fail(w, "get command", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommand(command))
}

func (h *Handler) createCommand(w http.ResponseWriter, r *http.Request) {
	platformID, ok := pathID(w, r, "platformId")
	if !ok {
		return
	}
	var req createCommandRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid command payload", err))
		return
	}
	command, err := h.catalog.CreateCommand(r.Context(), platformID, catalog.NewCommand{
		HowTo:       req.HowTo,
		CommandLine: req.CommandLine,
	})
	if err != nil {
		h.fail(w, "create command", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommand(command))
}

// fail logs unexpected errors and writes the mapped response.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if apperrors.CodeOf(err) == apperrors.CodeUnknown {
		h.logf("%s: %v", op, err)
	}
	writeError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, name+" must be a positive integer"))
		return 0, false
	}
	return id, true
}

func toCommands(commands []storage.Command) []commandResponse {
	out := make([]commandResponse, 0, len(commands))
	for _, command := range commands {
		out = append(out, toCommand(command))
	}
	return out
}

func toCommand(command storage.Command) commandResponse {
	return commandResponse{
		ID:          command.ID,
		HowTo:       command.HowTo,
		CommandLine: command.CommandLine,
		PlatformID:  command.PlatformLocalID,
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
