package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

type APIError struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

func writeMultipartError(w http.ResponseWriter, err error) {
	msg := strings.ToLower(err.Error())
	var maxErr *http.MaxBytesError

	switch {
	case errors.As(err, &maxErr), strings.Contains(msg, "too large"):
		writeJSONError(w, "uploaded file exceeds maximum allowed size", http.StatusRequestEntityTooLarge)

	case strings.Contains(msg, "content-type isn't multipart/form-data"):
		writeJSONError(w, "invalid content type, expected multipart/form-data", http.StatusBadRequest)

	default:
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}

func validationErrorsToMap(err error) map[string]string {
	errs := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			field := e.Field()
			switch e.Tag() {
			case "required":
				errs[field] = "is required"
			case "max":
				errs[field] = "exceeds maximum length"
			default:
				errs[field] = "invalid value"
			}
		}
	} else {
		errs["error"] = err.Error()
	}
	return errs
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, APIError{Error: message})
}

var allowedMIMEs = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
}

func validateMimeType(mimeType string) error {
	if _, ok := allowedMIMEs[mimeType]; !ok {
		return errors.New("requested file upload with invalid type: " + mimeType)
	}
	return nil
}

func formBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
