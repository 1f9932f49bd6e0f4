package handlers

import (
	"net/http"
	"strings"

	"github.com/divingclub/clubattrs/internal/entities"
)

type eligibilityRequest struct {
	Kind       string         `json:"kind"`
	ID         int64          `json:"id"`
	Properties map[string]any `json:"properties"`
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	actionID, ok := pathInt64(r, "actionID")
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid action id")
		return
	}

	var req eligibilityRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Kind) == "" {
		writeJSONError(w, http.StatusBadRequest, "kind is required")
		return
	}

	inst := &entities.Record{Kind: req.Kind, ID: req.ID, Properties: req.Properties}
	decision, err := h.gate.CheckAction(r.Context(), actionID, inst)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}
