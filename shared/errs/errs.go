// Package errs defines the error taxonomy surfaced by the sandbox client and
// consent services. Every error that crosses the route layer is either an
// *Error or is treated as an internal failure.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by the step of the flow that produced it.
type Kind string

const (
	// KindConfig is returned when required configuration or key material is missing or unusable
	KindConfig Kind = "config"

	// KindDiscovery is returned when the OIDC discovery document cannot be fetched or is incomplete
	KindDiscovery Kind = "discovery"

	// KindTokenExchange is returned when the token endpoint rejects a grant
	KindTokenExchange Kind = "token_exchange"

	// KindRemoteAPI is returned when a sandbox resource call answers with a non-2xx status
	KindRemoteAPI Kind = "remote_api"

	// KindNetwork is returned when an outbound call fails before a response is received
	KindNetwork Kind = "network"

	// KindInvalidArgument is returned when the inbound request is missing or has invalid fields
	KindInvalidArgument Kind = "invalid_argument"
)

// Error is the tagged error carried through the service layer.
type Error struct {
	Kind    Kind
	Message string
	// Status is the remote HTTP status, zero when no response was received.
	Status int
	// Details is the decoded remote error body, if any.
	Details any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Text is the message shown to API callers: Message, followed by the cause
// when one exists. It omits the kind prefix that Error adds.
func (e *Error) Text() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus is the status the route layer answers with.
func (e *Error) HTTPStatus() int {
	switch {
	case e.Kind == KindInvalidArgument:
		return http.StatusBadRequest
	case e.Status >= 400 && e.Status <= 599:
		return e.Status
	default:
		return http.StatusInternalServerError
	}
}

// New creates an error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Config(message string, cause error) *Error {
	return New(KindConfig, message, cause)
}

func Discovery(message string, cause error) *Error {
	return New(KindDiscovery, message, cause)
}

func Network(message string, cause error) *Error {
	return New(KindNetwork, message, cause)
}

func InvalidArgument(message string) *Error {
	return New(KindInvalidArgument, message, nil)
}

// TokenExchange creates a token endpoint error. status and details are zero
// when the endpoint was never reached.
func TokenExchange(message string, status int, details any, cause error) *Error {
	return &Error{Kind: KindTokenExchange, Message: message, Status: status, Details: details, Cause: cause}
}

// RemoteAPI creates an error for a non-2xx sandbox response.
func RemoteAPI(message string, status int, details any) *Error {
	return &Error{Kind: KindRemoteAPI, Message: message, Status: status, Details: details}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
