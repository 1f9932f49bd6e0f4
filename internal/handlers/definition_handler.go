package handlers

import (
	"net/http"
	"time"

	"github.com/divingclub/clubattrs/internal/entities"
	"github.com/go-chi/chi/v5"
)

type definitionRequest struct {
	EntityKind      string         `json:"entityKind"`
	AttributeKey    string         `json:"attributeKey"`
	DisplayName     string         `json:"displayName"`
	ValueType       string         `json:"valueType"`
	Required        bool           `json:"required"`
	DefaultValue    *string        `json:"defaultValue"`
	Options         []string       `json:"options"`
	ValidationRules map[string]any `json:"validationRules"`
	DisplayOrder    int            `json:"displayOrder"`
}

func (req definitionRequest) toEntity() *entities.AttributeDefinition {
	return &entities.AttributeDefinition{
		EntityKind:      req.EntityKind,
		AttributeKey:    req.AttributeKey,
		DisplayName:     req.DisplayName,
		ValueType:       entities.ValueType(req.ValueType),
		Required:        req.Required,
		DefaultValue:    req.DefaultValue,
		Options:         req.Options,
		ValidationRules: req.ValidationRules,
		DisplayOrder:    req.DisplayOrder,
	}
}

type definitionResponse struct {
	ID              int64          `json:"id"`
	EntityKind      string         `json:"entityKind"`
	AttributeKey    string         `json:"attributeKey"`
	DisplayName     string         `json:"displayName"`
	ValueType       string         `json:"valueType"`
	Required        bool           `json:"required"`
	DefaultValue    *string        `json:"defaultValue"`
	Options         []string       `json:"options,omitempty"`
	ValidationRules map[string]any `json:"validationRules,omitempty"`
	Active          bool           `json:"active"`
	DisplayOrder    int            `json:"displayOrder"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func newDefinitionResponse(d *entities.AttributeDefinition) definitionResponse {
	return definitionResponse{
		ID:              d.ID,
		EntityKind:      d.EntityKind,
		AttributeKey:    d.AttributeKey,
		DisplayName:     d.DisplayName,
		ValueType:       string(d.ValueType),
		Required:        d.Required,
		DefaultValue:    d.DefaultValue,
		Options:         d.Options,
		ValidationRules: d.ValidationRules,
		Active:          d.Active,
		DisplayOrder:    d.DisplayOrder,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func (h *Handler) handleDefine(w http.ResponseWriter, r *http.Request) {
	var req definitionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	def, err := h.registry.Define(r.Context(), req.toEntity())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newDefinitionResponse(def))
}

func (h *Handler) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")

	list := h.registry.ListFor
	if r.URL.Query().Get("includeInactive") == "true" {
		list = h.registry.ListAllFor
	}
	defs, err := list(r.Context(), kind)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]definitionResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, newDefinitionResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	var req definitionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONDecodeError(w, err)
		return
	}
	req.EntityKind = chi.URLParam(r, "kind")
	req.AttributeKey = chi.URLParam(r, "key")

	if req.ValueType == "" {
		current, err := h.registry.Find(r.Context(), req.EntityKind, req.AttributeKey)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		req.ValueType = string(current.ValueType)
	}

	def, err := h.registry.Update(r.Context(), req.toEntity())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDefinitionResponse(def))
}

func (h *Handler) handleDeactivateDefinition(w http.ResponseWriter, r *http.Request) {
	err := h.registry.Deactivate(r.Context(), chi.URLParam(r, "kind"), chi.URLParam(r, "key"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleActivateDefinition(w http.ResponseWriter, r *http.Request) {
	kind, key := chi.URLParam(r, "kind"), chi.URLParam(r, "key")
	if err := h.registry.Activate(r.Context(), kind, key); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	def, err := h.registry.Find(r.Context(), kind, key)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDefinitionResponse(def))
}
