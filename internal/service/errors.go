package service

import (
	"errors"
	"fmt"

	"pos-service/internal/repository"
)

// Kind classifies a service failure. The API layer maps each kind to a status code.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindPromotionRejected Kind = "promotion_rejected"
	KindInsufficientStock Kind = "insufficient_stock"
	KindPaymentGateway    Kind = "payment_gateway"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal"
)

// Error is the single error type returned by services.
type Error struct {
	Kind    Kind
	Reason  string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, and by reason when the target has one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrEmptyCart   = &Error{Kind: KindValidation, Reason: "cart is empty"}
	ErrInvalidLine = &Error{Kind: KindValidation, Reason: "invalid cart line"}
)

// KindOf returns the kind of err, KindInternal for anything unclassified.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func newError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func validationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

func notFoundError(what string, id interface{}) *Error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf("%s not found", what), Details: map[string]interface{}{"id": id}}
}

func promotionRejected(reason string, details map[string]interface{}) *Error {
	return &Error{Kind: KindPromotionRejected, Reason: reason, Details: details}
}

func internalError(op string, err error) *Error {
	return &Error{Kind: KindInternal, Reason: op, Err: err}
}

// fromRepository maps store sentinels onto service kinds.
func fromRepository(op string, err error) error {
	var se *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &se):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return newError(KindNotFound, op, err)
	case errors.Is(err, repository.ErrInsufficientStock):
		return newError(KindInsufficientStock, "insufficient stock", err)
	case errors.Is(err, repository.ErrUsageLimitReached):
		return newError(KindPromotionRejected, ReasonUsageLimitReached, err)
	case errors.Is(err, repository.ErrStatusConflict), errors.Is(err, repository.ErrDuplicate):
		return newError(KindConflict, op, err)
	default:
		return internalError(op, err)
	}
}
