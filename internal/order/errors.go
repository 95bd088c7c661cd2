package order

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-merch/internal/common"
	"github.com/noah-isme/backend-merch/internal/pricing"
)

var (
	// ErrValidation marks requests rejected before any persistence.
	ErrValidation = errors.New("order: validation failed")
	// ErrAllocationExhausted is returned when no unique order code could be claimed.
	ErrAllocationExhausted = errors.New("order: order code allocation exhausted")
	// ErrPersistence wraps store failures on the write path.
	ErrPersistence = errors.New("order: persistence failure")
	// ErrNotFound is returned when no order matches the requested code.
	ErrNotFound = errors.New("order: not found")
	// ErrDuplicateCode is returned by stores when the order code is already taken.
	ErrDuplicateCode = errors.New("order: duplicate order code")
)

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level details for a rejected request.
type ValidationError struct {
	Message string
	Fields  []FieldError
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is reports ErrValidation so callers can match the category.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(message string, err error) error {
	return &ValidationError{Message: message, Err: err}
}

func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalid("invalid request", err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fieldPath(fe), Message: describe(fe)})
	}
	return &ValidationError{Message: "invalid request", Fields: fields}
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	ns = strings.TrimPrefix(ns, "Customer.")
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_without":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must contain at least " + fe.Param() + " item(s)"
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}

// ToAppError maps service errors onto the API error taxonomy.
func ToAppError(err error) *common.AppError {
	if err == nil {
		return nil
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		ae := common.NewAppError(common.CodeValidation, validationMessage(verr), http.StatusBadRequest, err)
		if len(verr.Fields) > 0 {
			ae = ae.WithDetails(verr.Fields)
		}
		return ae
	case errors.Is(err, ErrValidation), errors.Is(err, pricing.ErrInvalid):
		return common.NewAppError(common.CodeValidation, err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ErrNotFound):
		return common.NewAppError(common.CodeNotFound, "order not found", http.StatusNotFound, err)
	case errors.Is(err, ErrAllocationExhausted):
		return common.NewAppError(common.CodeAllocationExhausted, "could not allocate a unique order code, please retry", http.StatusInternalServerError, err)
	case errors.Is(err, ErrPersistence):
		return common.NewAppError(common.CodeDatabase, "failed to save order", http.StatusInternalServerError, err)
	default:
		return common.NewAppError(common.CodeInternal, "internal error", http.StatusInternalServerError, err)
	}
}

func validationMessage(verr *ValidationError) string {
	if verr.Err == nil || len(verr.Fields) > 0 {
		return verr.Message
	}
	return verr.Error()
}
