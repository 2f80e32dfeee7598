package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"soundcrate/internal/apperr"
	"soundcrate/internal/observability/logging"
)

type errorResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteJSON is an exported helper for returning JSON payloads.
func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	writeJSON(w, status, payload)
}

// WriteMessage renders the error envelope with an explicit status. It is used
// for statuses outside the apperr taxonomy such as 405 and 429.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message, Status: "error"})
}

// WriteError renders err using its apperr kind. Server errors are logged with
// the request scoped logger; their cause never reaches the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusOf(err)
	if status >= http.StatusInternalServerError && r != nil {
		logging.LoggerFromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	WriteMessage(w, status, apperr.MessageOf(err))
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(w, r, err)
}

// WriteMethodNotAllowed responds with 405 and an Allow header listing allowed.
func WriteMethodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	WriteMessage(w, http.StatusMethodNotAllowed, "Method "+r.Method+" not allowed")
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return apperr.Validation(msgBodyRequired)
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation(msgBodyRequired)
		}
		return apperr.Wrap(apperr.KindValidation, err, "Invalid JSON payload")
	}
	return nil
}
