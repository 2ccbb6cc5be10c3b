package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/credvault/internal/application"
	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// maxBodyBytes caps request bodies; credentials are short strings.
const maxBodyBytes = 64 << 10

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the credential REST API.
type Handler struct {
	credentials  *application.CredentialService
	store        Pinger
	ephemeralKey bool
	logger       *slog.Logger
}

// NewHandler creates a Handler. ephemeralKey is surfaced on the health
// endpoint so operators notice a process running without a configured key.
func NewHandler(
	credentials *application.CredentialService,
	store Pinger,
	ephemeralKey bool,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		credentials:  credentials,
		store:        store,
		ephemeralKey: ephemeralKey,
		logger:       logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. metrics may be nil, in which case
// GET /metrics is not served.
func NewServeMux(h *Handler, metrics http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/credentials", noStore(http.HandlerFunc(h.ListCredentials)))
	mux.HandleFunc("POST /api/v1/credentials", h.SaveCredential)
	mux.HandleFunc("DELETE /api/v1/credentials/{provider}", h.DeleteCredential)
	mux.HandleFunc("GET /api/v1/providers", h.ListProviders)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListCredentials returns every stored credential decrypted, keyed by
// provider. Corrupt records are purged by the service and left out.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credentials.GetAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make(map[string]string, len(creds))
	for provider, value := range creds {
		resp[string(provider)] = value
	}

	writeJSON(w, http.StatusOK, resp)
}

// SaveCredential creates or replaces the credential for a provider. The
// response carries record metadata and a masked hint, never the value.
func (h *Handler) SaveCredential(w http.ResponseWriter, r *http.Request) {
	var req SaveCredentialRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	provider, err := model.ParseProvider(req.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cred, err := h.credentials.Save(r.Context(), provider, req.Key.Reveal())
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to save credential", "provider", provider, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toCredentialResponse(cred, strings.TrimSpace(req.Key.Reveal())))
}

// DeleteCredential removes the credential for a provider.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	provider, err := model.ParseProvider(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := h.credentials.Delete(r.Context(), provider)
	if err != nil {
		h.logger.Error("failed to delete credential", "provider", provider, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !deleted {
		writeError(w, http.StatusNotFound, "credential not found")
		return
	}

	writeJSON(w, http.StatusOK, DeleteResponse{Provider: string(provider), Deleted: true})
}

// ListProviders returns the supported providers and their fallback
// environment variables.
func (h *Handler) ListProviders(w http.ResponseWriter, _ *http.Request) {
	providers := model.SupportedProviders()
	resp := make([]ProviderResponse, 0, len(providers))
	for _, p := range providers {
		resp = append(resp, ProviderResponse{Name: string(p), EnvVar: p.EnvVar()})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health reports process liveness and store reachability. It answers 503
// when the database cannot be pinged.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Time:          time.Now().UTC().Format(time.RFC3339),
		Database:      "ok",
		EncryptionKey: "configured",
	}
	if h.ephemeralKey {
		resp.EncryptionKey = "ephemeral"
	}

	status := http.StatusOK
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Warn("health check database ping failed", "error", err)
			resp.Status = "unavailable"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}
