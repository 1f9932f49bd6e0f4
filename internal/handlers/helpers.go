package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/divingclub/clubattrs/internal/entities"
	"github.com/go-chi/chi/v5"
)

const maxJSONBodyBytes = 1 << 20

var errJSONBodyTooLarge = errors.New("request body too large")

type errorResponse struct {
	Error  string                `json:"error"`
	Fields []entities.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return io.EOF
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return errJSONBodyTooLarge
		}
		return err
	}
	return nil
}

func writeJSONDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errJSONBodyTooLarge) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
}

// writeServiceError maps domain errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *entities.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: verr.Errors})
	case errors.Is(err, entities.ErrDefinitionConflict):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, entities.ErrDefinitionNotFound), errors.Is(err, entities.ErrConditionNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, entities.ErrInvalidCondition):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		reqID, _ := RequestIDFromContext(r.Context())
		h.logger.Error("request failed", "request_id", reqID, "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathInt64(r *http.Request, name string) (int64, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
