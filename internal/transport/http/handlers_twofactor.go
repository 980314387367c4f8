package http

import "net/http"

func (h *Handler) enableTwoFactor(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	info, err := h.twoFactor.Enable(r.Context(), u)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

type verifyTwoFactorRequest struct {
	Code string `json:"code"`
}

func (h *Handler) verifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req verifyTwoFactorRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.twoFactor.Verify(r.Context(), u, req.Code); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondMessage(w, http.StatusOK, "2FA enabled successfully")
}

type disableTwoFactorRequest struct {
	CurrentPassword string `json:"current_password"`
	Code            string `json:"code"`
}

func (h *Handler) disableTwoFactor(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req disableTwoFactorRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.twoFactor.Disable(r.Context(), u, req.CurrentPassword, req.Code); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondMessage(w, http.StatusOK, "2FA disabled successfully")
}

func (h *Handler) backupCodes(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	codes, err := h.twoFactor.RecoveryCodes(u)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"recovery_codes": codes})
}

func (h *Handler) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	codes, err := h.twoFactor.RegenerateRecoveryCodes(r.Context(), u)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"recovery_codes": codes})
}
