// Package http wires the service layer to chi routes: request decoding,
// response envelopes, cookies, and the middleware chain.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"authgate/internal/oauth"
	dErrors "authgate/pkg/domainerrors"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

// respondError maps an application error to its envelope. OAuth protocol
// errors keep their wire format; everything else renders as {"message"}.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if protoErr, ok := err.(*oauth.ProtocolError); ok {
		respondJSON(w, protoErr.Status, protoErr)
		return
	}

	status := dErrors.ToHTTPStatus(dErrors.CodeOf(err))
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		respondMessage(w, status, "Internal server error")
		return
	}
	respondMessage(w, status, dErrors.MessageOf(err))
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "Invalid request body")
	}
	return nil
}
