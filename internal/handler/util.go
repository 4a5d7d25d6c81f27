package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/neighborhood-advisor/internal/extract"
	"github.com/capitalize-ai/neighborhood-advisor/internal/llm"
	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, &model.ErrorResponse{Error: message})
}

// writeFailure writes a 500 whose details carry the extraction reason or the
// provider's message.
func writeFailure(w http.ResponseWriter, message string, err error) {
	resp := &model.ErrorResponse{Error: message}

	var ee *extract.ExtractionError
	var te *llm.TransportError
	switch {
	case errors.As(err, &ee):
		resp.Details = ee.Reason
	case errors.As(err, &te):
		resp.Details = te.Message
	}

	writeJSON(w, http.StatusInternalServerError, resp)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
