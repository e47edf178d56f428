package realitylog

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"

	"github.com/realitylog/realitylog/pkg/auth"
	"github.com/realitylog/realitylog/pkg/client"
	"github.com/realitylog/realitylog/pkg/logbook"
	"github.com/realitylog/realitylog/pkg/store"
	"github.com/realitylog/realitylog/pkg/timecode"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// badRequest is a malformed request that never reached the domain layer.
type badRequest struct {
	msg    string
	fields []string
}

func (e *badRequest) Error() string { return e.msg }

func invalidParam(name string, err error) error {
	return &badRequest{msg: fmt.Sprintf("invalid %s: %v", name, err), fields: []string{name}}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil && status != http.StatusNoContent {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string, fields ...string) {
	respondJSON(w, status, client.ErrorResponse{Error: message, Fields: fields})
}

// fail maps err onto a status code and writes it. Unexpected errors are logged
// with the request ID and reported without detail.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("request failed")
	}
	respondJSON(w, status, body)
}

func classify(err error) (int, client.ErrorResponse) {
	var (
		br *badRequest
		ve *logbook.ValidationError
		vv validator.ValidationErrors
	)
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, client.ErrorResponse{Error: br.msg, Fields: br.fields}
	case errors.As(err, &vv):
		return http.StatusBadRequest, client.ErrorResponse{Error: "invalid request", Fields: validationFields(vv)}
	case errors.As(err, &ve):
		return http.StatusBadRequest, client.ErrorResponse{Error: ve.Error(), Fields: ve.Fields}
	case errors.Is(err, timecode.ErrInvalidTimecode):
		return http.StatusBadRequest, client.ErrorResponse{Error: err.Error(), Fields: []string{"timecode"}}
	case errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest, client.ErrorResponse{Error: err.Error(), Fields: []string{"password"}}
	case errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest, client.ErrorResponse{Error: err.Error(), Fields: []string{"email"}}
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, client.ErrorResponse{Error: err.Error()}
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, logbook.ErrPermission):
		return http.StatusForbidden, client.ErrorResponse{Error: err.Error()}
	case errors.Is(err, logbook.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, client.ErrorResponse{Error: err.Error()}
	case errors.Is(err, logbook.ErrSubmitInFlight),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict, client.ErrorResponse{Error: err.Error()}
	case errors.Is(err, store.ErrReadOnly),
		errors.Is(err, store.ErrUnavailable),
		errors.Is(err, logbook.ErrConnectivity):
		return http.StatusServiceUnavailable, client.ErrorResponse{Error: err.Error()}
	}
	return http.StatusInternalServerError, client.ErrorResponse{Error: "internal server error"}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationFields(errs validator.ValidationErrors) []string {
	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		fields = append(fields, fe.Field())
	}
	return fields
}

// decode reads a JSON body into dst and validates its struct tags.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &badRequest{msg: "invalid request payload: " + err.Error()}
	}
	return a.validate.Struct(dst)
}
