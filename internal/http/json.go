package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/target/lms-access/internal/errors"
)

// validate checks request bodies. Validator instances cache struct metadata and are safe
// for concurrent use.
var validate = newValidator() //nolint:gochecknoglobals // shared, read-only after init

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// DecodeAndValidate decodes the body and runs the struct's validate tags.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !DecodeJSON(w, r, dst) {
		return false
	}
	if err := validate.Struct(dst); err != nil {
		WriteAppError(w, validationError(err))
		return false
	}
	return true
}

// validationError turns the first failed validator rule into a field-scoped AppError.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Validation(err.Error())
	}
	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fe.Field() + " is required"
	case "email":
		msg = fe.Field() + " must be a valid email address"
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "min":
		msg = fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	default:
		msg = fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
	return apperrors.ValidationField(fe.Field(), msg)
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError to adhere to the ≤3 params guideline.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	Field   string
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, errorBody{Error: p.ErrCode, Message: p.Err.Error(), Field: p.Field})
}

//nolint:gochecknoglobals // static read-only lookup
var statusByCode = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeNotFound:           http.StatusNotFound,
	apperrors.ErrCodeConflict:           http.StatusConflict,
	apperrors.ErrCodeValidation:         http.StatusBadRequest,
	apperrors.ErrCodeForeignKey:         http.StatusBadRequest,
	apperrors.ErrCodeTimeout:            http.StatusGatewayTimeout,
	apperrors.ErrCodeCanceled:           499,
	apperrors.ErrCodeUnauthenticated:    http.StatusUnauthorized,
	apperrors.ErrCodeUnauthorized:       http.StatusForbidden,
	apperrors.ErrCodeProfileUnavailable: http.StatusForbidden,
	apperrors.ErrCodeInvalidCredentials: http.StatusUnauthorized,
	apperrors.ErrCodeUserDisabled:       http.StatusForbidden,
	apperrors.ErrCodeTooManyRequests:    http.StatusTooManyRequests,
}

// StatusFor maps an error to its HTTP status. Errors without an AppError code are 500.
func StatusFor(err error) int {
	if status, ok := statusByCode[apperrors.GetCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteAppError writes err with the status of its AppError code. Messages of internal
// errors are not exposed.
func WriteAppError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	code := string(apperrors.GetCode(err))
	if status == http.StatusInternalServerError {
		WriteError(w, ErrorParams{Code: status, ErrCode: "internal", Err: errors.New("internal error")})
		return
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: code, Err: appMessage(err), Field: apperrors.GetField(err)})
}

func appMessage(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return errors.New(appErr.Message)
	}
	return err
}
