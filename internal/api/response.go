package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/atkgudang/persediaan/internal/lock"
	"github.com/atkgudang/persediaan/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target. An empty body
// leaves the target untouched.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(target)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// bind decodes and validates a request body. On failure it writes a 400 and
// returns false.
func bind(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeJSON(r, target); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			jsonError(w, http.StatusBadRequest, err.Error())
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fieldPath(fe)] = fe.Tag()
		}
		jsonResponse(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": fields,
		})
		return false
	}
	return true
}

// fieldPath strips the top-level struct name from a namespace such as
// "createRequestBody.lines[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// pathID parses the named path value as a positive id, writing a 400 if it
// is not one.
func pathID(w http.ResponseWriter, r *http.Request, name, what string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s id", what))
		return 0, false
	}
	return id, true
}

// errorStatus maps a domain error to its HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrStaleSnapshot):
		return http.StatusConflict
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrInvalidApprovedQuantity),
		errors.Is(err, store.ErrInvalidDistributedQuantity),
		errors.Is(err, store.ErrInvalidReturnQuantity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, lock.ErrNotObtained):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError writes a domain error. Joined errors list every failing line
// under "details".
func writeError(w http.ResponseWriter, r *http.Request, err error, what string) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("failed to "+what, "error", err, "request_id", RequestID(r.Context()))
		jsonError(w, status, "failed to "+what)
		return
	}

	body := map[string]any{"error": err.Error()}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		details := []string{}
		for _, e := range joined.Unwrap() {
			details = append(details, e.Error())
		}
		body["error"] = strings.SplitN(err.Error(), "\n", 2)[0]
		body["details"] = details
	}
	jsonResponse(w, status, body)
}
