package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// SaveCredentialRequest is the JSON body for the save credential endpoint.
type SaveCredentialRequest struct {
	Provider string       `json:"provider"`
	Key      model.Secret `json:"key"`
}

// CredentialResponse is the JSON representation of stored credential metadata.
type CredentialResponse struct {
	ID         string  `json:"id"`
	Provider   string  `json:"provider"`
	MaskedKey  string  `json:"masked_key"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
	LastUsedAt *string `json:"last_used_at"`
}

// DeleteResponse is the JSON body returned after a successful delete.
type DeleteResponse struct {
	Provider string `json:"provider"`
	Deleted  bool   `json:"deleted"`
}

// ProviderResponse describes a supported provider.
type ProviderResponse struct {
	Name   string `json:"name"`
	EnvVar string `json:"env_var"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	Time          string `json:"time"`
	Database      string `json:"database"`
	EncryptionKey string `json:"encryption_key"`
}

// toCredentialResponse converts a stored credential to its API form. value
// is the submitted plaintext, used only to build the masked hint.
func toCredentialResponse(cred model.Credential, value string) CredentialResponse {
	resp := CredentialResponse{
		ID:        cred.ID,
		Provider:  string(cred.Provider),
		MaskedKey: model.Mask(value),
		CreatedAt: cred.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: cred.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if cred.LastUsedAt != nil {
		s := cred.LastUsedAt.UTC().Format(time.RFC3339)
		resp.LastUsedAt = &s
	}
	return resp
}
