package domain

import (
	"errors"
	"fmt"
)

// Code: стабильный код ошибки, видимый оператору и клиентам API.
type Code string

const (
	CodeValidation             Code = "VALIDATION"
	CodeRequestNotFound        Code = "REQUEST_NOT_FOUND"
	CodeRequestAlreadyExists   Code = "REQUEST_ALREADY_EXISTS"
	CodeReviewNotFound         Code = "REVIEW_NOT_FOUND"
	CodeReviewAlreadyFinalized Code = "REVIEW_ALREADY_FINALIZED"
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeBackend                Code = "BACKEND"
	CodeConfig                 Code = "CONFIG"
)

// Error: типизированная ошибка ядра: код + человекочитаемая причина.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает по коду, поэтому errors.Is(err, ErrReviewNotFound) работает
// для любой ошибки с этим кодом, независимо от причины.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Сентинелы для errors.Is
var (
	ErrValidation             = &Error{Code: CodeValidation, Reason: "invalid input"}
	ErrRequestNotFound        = &Error{Code: CodeRequestNotFound, Reason: "copilot request not found"}
	ErrRequestAlreadyExists   = &Error{Code: CodeRequestAlreadyExists, Reason: "copilot request already exists"}
	ErrReviewNotFound         = &Error{Code: CodeReviewNotFound, Reason: "review not found"}
	ErrReviewAlreadyFinalized = &Error{Code: CodeReviewAlreadyFinalized, Reason: "request already finalized by another review"}
	ErrInvalidTransition      = &Error{Code: CodeInvalidTransition, Reason: "invalid request status transition"}
	ErrBackend                = &Error{Code: CodeBackend, Reason: "storage backend failure"}
	ErrConfig                 = &Error{Code: CodeConfig, Reason: "invalid policy configuration"}
)

func Validation(reason string) error {
	return &Error{Code: CodeValidation, Reason: reason}
}

func Config(reason string) error {
	return &Error{Code: CodeConfig, Reason: reason}
}

// Backend оборачивает ошибку хранилища. Уже типизированные ошибки не трогаем.
func Backend(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	var te *TransitionError
	if errors.As(err, &te) {
		return err
	}
	return &Error{Code: CodeBackend, Reason: op, Err: err}
}

func RequestNotFound(id string) error {
	return &Error{Code: CodeRequestNotFound, Reason: fmt.Sprintf("copilot request %s not found", id)}
}

func RequestAlreadyExists(id string) error {
	return &Error{Code: CodeRequestAlreadyExists, Reason: fmt.Sprintf("copilot request %s already exists", id)}
}

func ReviewNotFound(id string) error {
	return &Error{Code: CodeReviewNotFound, Reason: fmt.Sprintf("review %s not found", id)}
}

func ReviewAlreadyFinalized(requestID string) error {
	return &Error{Code: CodeReviewAlreadyFinalized, Reason: fmt.Sprintf("request %s already has a finalizing review", requestID)}
}

// TransitionError: InvalidTransition с текущим и запрошенным статусом.
type TransitionError struct {
	From RequestStatus
	To   RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot transition from %s to %s", CodeInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == CodeInvalidTransition
	}
	return false
}

// CodeOf возвращает код ошибки; для нетипизированных ошибок: BACKEND.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var te *TransitionError
	if errors.As(err, &te) {
		return CodeInvalidTransition
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeBackend
}

// IsRetryable: повторять имеет смысл только сбои хранилища.
// Конфликты и ошибки валидации окончательны.
func IsRetryable(err error) bool {
	return err != nil && CodeOf(err) == CodeBackend
}
