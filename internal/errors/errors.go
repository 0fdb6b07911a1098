// Package errors define la taxonomía de errores tipados del token authority.
//
// Cada falla que cruza el borde de un servicio es un *Error con un Kind estable.
// La capa HTTP (externa) mapea Kind -> status con HTTPStatus(); este paquete no
// formatea ni localiza mensajes.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind identifica la categoría de un error.
type Kind string

const (
	KindClientNotFound               Kind = "client_not_found"
	KindUnauthorized                 Kind = "unauthorized"
	KindTokenInvalid                 Kind = "token_invalid"
	KindTokenExpired                 Kind = "token_expired"
	KindTokenProcessing              Kind = "token_processing_error"
	KindUsernameNotFound             Kind = "username_not_found"
	KindAccountDisabled              Kind = "account_disabled"
	KindAuthorizationRequestNotFound Kind = "authorization_request_not_found"
	KindNotSaved                     Kind = "not_saved"
	KindIllegalArgument              Kind = "illegal_argument"
	KindRateLimited                  Kind = "rate_limited"
	KindInternal                     Kind = "internal"
)

// Error es el error tipado del sistema.
type Error struct {
	Kind    Kind
	Message string
	Err     error // causa original, sólo para logs
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap permite acceder a la causa.
func (e *Error) Unwrap() error { return e.Err }

// Is compara por Kind, así errors.Is(err, ErrTokenExpired) funciona con
// cualquier instancia del mismo tipo sin importar el mensaje.
func (e *Error) Is(target error) bool {
	var t *Error
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus sugiere el status HTTP para el Kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindClientNotFound, KindUsernameNotFound, KindAuthorizationRequestNotFound:
		return http.StatusNotFound
	case KindUnauthorized, KindTokenInvalid, KindTokenExpired:
		return http.StatusUnauthorized
	case KindAccountDisabled:
		return http.StatusForbidden
	case KindIllegalArgument:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// New crea un *Error sin causa.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf es New con formato.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap crea un *Error envolviendo una causa.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf devuelve el Kind del primer *Error de la cadena, o KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reporta si err pertenece al kind dado.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var e *Error
	return stderrors.As(err, &e) && e.Kind == kind
}

// Sentinels para usar con errors.Is.
var (
	ErrClientNotFound               = New(KindClientNotFound, "client not found")
	ErrUnauthorized                 = New(KindUnauthorized, "unauthorized")
	ErrTokenInvalid                 = New(KindTokenInvalid, "invalid token")
	ErrTokenExpired                 = New(KindTokenExpired, "token expired")
	ErrTokenProcessing              = New(KindTokenProcessing, "token processing error")
	ErrUsernameNotFound             = New(KindUsernameNotFound, "username not found")
	ErrAccountDisabled              = New(KindAccountDisabled, "account disabled")
	ErrAuthorizationRequestNotFound = New(KindAuthorizationRequestNotFound, "authorization request not found")
	ErrNotSaved                     = New(KindNotSaved, "authorization request not saved")
	ErrIllegalArgument              = New(KindIllegalArgument, "illegal argument")
	ErrRateLimited                  = New(KindRateLimited, "too many attempts")
)
