package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/divingclub/clubattrs/internal/entities"
	"github.com/go-chi/chi/v5"
)

type setValueRequest struct {
	Value json.RawMessage `json:"value"`
}

func (h *Handler) handleListValues(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	id, ok := pathInt64(r, "id")
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid owner id")
		return
	}

	values, err := h.store.ListDecoded(r.Context(), kind, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// handleSetValue validates against the definition when one exists. Values
// for undeclared keys are stored with a type inferred from the JSON value.
func (h *Handler) handleSetValue(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	key := chi.URLParam(r, "key")
	id, ok := pathInt64(r, "id")
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid owner id")
		return
	}

	var req setValueRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONDecodeError(w, err)
		return
	}
	var raw any
	if len(req.Value) > 0 {
		if err := json.Unmarshal(req.Value, &raw); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid value")
			return
		}
	}
	value := entities.ValueOf(raw)

	def, err := h.registry.Find(r.Context(), kind, key)
	switch {
	case err == nil:
		err = h.store.SetValidated(r.Context(), def, id, value)
	case errors.Is(err, entities.ErrDefinitionNotFound):
		err = h.store.Set(r.Context(), kind, id, key, value, inferValueType(value))
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	stored, err := h.store.Get(r.Context(), kind, id, key)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]entities.Value{key: stored})
}

func (h *Handler) handleDeleteValue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid owner id")
		return
	}

	if err := h.store.Delete(r.Context(), chi.URLParam(r, "kind"), id, chi.URLParam(r, "key")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteAllValues(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid owner id")
		return
	}

	n, err := h.store.DeleteAllFor(r.Context(), chi.URLParam(r, "kind"), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func inferValueType(v entities.Value) entities.ValueType {
	switch v.Kind() {
	case entities.KindBool:
		return entities.ValueTypeBoolean
	case entities.KindNumber:
		return entities.ValueTypeNumber
	case entities.KindJSON:
		return entities.ValueTypeJSON
	default:
		return entities.ValueTypeText
	}
}
