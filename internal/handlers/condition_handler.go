package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/divingclub/clubattrs/internal/entities"
	"github.com/divingclub/clubattrs/internal/services/parser"
)

// conditionRequest accepts either the structured fields or a single
// textual expression such as `User.age >= 18`.
type conditionRequest struct {
	Expression       string  `json:"expression"`
	TargetEntityKind string  `json:"targetEntityKind"`
	AttributeName    string  `json:"attributeName"`
	Operator         string  `json:"operator"`
	Operand          *string `json:"operand"`
	ErrorMessage     *string `json:"errorMessage"`
	Active           *bool   `json:"active"`
}

type conditionResponse struct {
	ID               int64   `json:"id"`
	OwnerActionID    int64   `json:"ownerActionId"`
	TargetEntityKind string  `json:"targetEntityKind"`
	AttributeName    string  `json:"attributeName"`
	Operator         string  `json:"operator"`
	Operand          *string `json:"operand"`
	ErrorMessage     *string `json:"errorMessage"`
	Active           bool    `json:"active"`
}

func newConditionResponse(c *entities.Condition) conditionResponse {
	return conditionResponse{
		ID:               c.ID,
		OwnerActionID:    c.OwnerActionID,
		TargetEntityKind: c.TargetEntityKind,
		AttributeName:    c.AttributeName,
		Operator:         string(c.Operator),
		Operand:          c.Operand,
		ErrorMessage:     c.ErrorMessage,
		Active:           c.Active,
	}
}

func (h *Handler) handleListConditions(w http.ResponseWriter, r *http.Request) {
	actionID, ok := pathInt64(r, "actionID")
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid action id")
		return
	}

	onlyActive := r.URL.Query().Get("includeInactive") != "true"
	conds, err := h.conditions.ListByAction(r.Context(), actionID, onlyActive)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, parser.Format(conds))
		return
	}

	out := make([]conditionResponse, 0, len(conds))
	for _, c := range conds {
		out = append(out, newConditionResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateCondition(w http.ResponseWriter, r *http.Request) {
	actionID, ok := pathInt64(r, "actionID")
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid action id")
		return
	}

	var req conditionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	c := &entities.Condition{
		TargetEntityKind: req.TargetEntityKind,
		AttributeName:    req.AttributeName,
		Operator:         entities.Operator(req.Operator),
		Operand:          req.Operand,
		ErrorMessage:     req.ErrorMessage,
	}
	if req.Expression != "" {
		parsed, err := parser.ParseCondition(req.Expression)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if req.ErrorMessage != nil {
			parsed.ErrorMessage = req.ErrorMessage
		}
		c = parsed
	}
	c.OwnerActionID = actionID
	c.Active = req.Active == nil || *req.Active

	if err := h.createCondition(r, c); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newConditionResponse(c))
}

// handleImportConditions creates every condition of a text/plain body,
// one expression per line, in one transaction. Nothing is stored when any
// line fails to parse or any insert fails.
func (h *Handler) handleImportConditions(w http.ResponseWriter, r *http.Request) {
	actionID, ok := pathInt64(r, "actionID")
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid action id")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	conds, err := parser.Parse(string(body))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	for _, c := range conds {
		c.OwnerActionID = actionID
		if err := c.Validate(); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
	}

	for _, c := range conds {
		if !c.Operator.IsKnown() {
			h.logger.Warn("storing condition with unknown operator", "operator", c.Operator, "action_id", actionID)
		}
	}
	if err := h.conditions.BatchCreate(r.Context(), conds); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]conditionResponse, 0, len(conds))
	for _, c := range conds {
		out = append(out, newConditionResponse(c))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) createCondition(r *http.Request, c *entities.Condition) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.Operator.IsKnown() {
		h.logger.Warn("storing condition with unknown operator", "operator", c.Operator, "action_id", c.OwnerActionID)
	}
	return h.conditions.Create(r.Context(), c)
}

func (h *Handler) handleDeleteCondition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid condition id")
		return
	}

	if err := h.conditions.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
