package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidationFailed       Code = "VALIDATION_FAILED"
	CodeItemUnavailable        Code = "ITEM_UNAVAILABLE"
	CodeItemNotFound           Code = "ITEM_NOT_FOUND"
	CodeEmptyCart              Code = "EMPTY_CART"
	CodeAuthenticationRequired Code = "AUTHENTICATION_REQUIRED"
	CodeForbidden              Code = "FORBIDDEN"
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeOrderNotFound          Code = "ORDER_NOT_FOUND"
	CodeDependencyUnavailable  Code = "DEPENDENCY_UNAVAILABLE"
	CodeInternal               Code = "INTERNAL_ERROR"
)

type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeValidationFailed: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "validation failed",
	},
	CodeItemUnavailable: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "item is not available",
	},
	CodeItemNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "item not found",
	},
	CodeEmptyCart: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "cart is empty",
	},
	CodeAuthenticationRequired: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "authentication required",
	},
	CodeForbidden: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "access denied",
	},
	CodeInvalidTransition: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "status transition not allowed",
	},
	CodeOrderNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "order not found",
	},
	CodeDependencyUnavailable: {
		HTTPStatus:    http.StatusServiceUnavailable,
		Retryable:     true,
		PublicMessage: "dependency unavailable",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
}

var (
	ErrValidationFailed       = New(CodeValidationFailed, "validation failed")
	ErrItemUnavailable        = New(CodeItemUnavailable, "item is not available")
	ErrItemNotFound           = New(CodeItemNotFound, "item not found")
	ErrEmptyCart              = New(CodeEmptyCart, "cart is empty")
	ErrAuthenticationRequired = New(CodeAuthenticationRequired, "authentication required")
	ErrForbidden              = New(CodeForbidden, "access denied")
	ErrInvalidTransition      = New(CodeInvalidTransition, "status transition not allowed")
	ErrOrderNotFound          = New(CodeOrderNotFound, "order not found")
	ErrDependencyUnavailable  = New(CodeDependencyUnavailable, "dependency unavailable")
	ErrInternal               = New(CodeInternal, "internal server error")
)

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded failure. Two errors match under errors.Is when their codes are equal.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails returns a copy carrying details, leaving the receiver untouched.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.details = details
	return &cp
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.code, e.message, e.cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

type ValidationDetails struct {
	Fields []string `json:"fields"`
}

func ValidationFailed(fields ...string) *Error {
	return ErrValidationFailed.WithDetails(ValidationDetails{Fields: fields})
}

// TransitionDetails lets a client resync after a rejected status update.
type TransitionDetails struct {
	OrderID         string `json:"orderId"`
	CurrentStatus   string `json:"currentStatus"`
	RequestedStatus string `json:"requestedStatus"`
	Reason          string `json:"reason"`
}

func InvalidTransition(details TransitionDetails) *Error {
	return New(CodeInvalidTransition, details.Reason).WithDetails(details)
}

func DependencyUnavailable(err error, dependency string) *Error {
	return Wrap(CodeDependencyUnavailable, err, fmt.Sprintf("%s unavailable", dependency))
}
