// Package errs classifies failures raised by validation, the remote
// collection service and the auth endpoints.
package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind is the error classification.
type Kind int

const (
	KindUnknown Kind = iota
	KindMissingParameter
	KindInvalidValue
	KindRemoteUnavailable
	KindMalformedResponse
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindMissingParameter:
		return "missing-parameter"
	case KindInvalidValue:
		return "invalid-value"
	case KindRemoteUnavailable:
		return "remote-unavailable"
	case KindMalformedResponse:
		return "malformed-response"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// AuthReason narrows an auth error to a message the user can act on.
type AuthReason int

const (
	AuthNone AuthReason = iota
	AuthEmailTaken
	AuthInvalidCredentials
	AuthSessionExpired
)

func (r AuthReason) String() string {
	switch r {
	case AuthEmailTaken:
		return "email-taken"
	case AuthInvalidCredentials:
		return "invalid-credentials"
	case AuthSessionExpired:
		return "session-expired"
	default:
		return "none"
	}
}

// GenericMessage is shown for every remote failure.
const GenericMessage = "Something went wrong. Please try again."

// Error is a classified failure.
type Error struct {
	Kind   Kind
	Fields []string
	Op     string
	Reason AuthReason
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Kind == KindAuth && e.Reason != AuthNone {
		b.WriteString(" (")
		b.WriteString(e.Reason.String())
		b.WriteString(")")
	}
	if len(e.Fields) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Fields, ", "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k})
// works as a kind test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == AuthNone || t.Reason == e.Reason)
}

// Missing reports absent required fields.
func Missing(fields ...string) *Error {
	return &Error{Kind: KindMissingParameter, Fields: fields}
}

// Invalid reports a present value that failed a range, enum or format check.
func Invalid(field, format string, args ...any) *Error {
	return &Error{
		Kind:   KindInvalidValue,
		Fields: []string{field},
		Err:    fmt.Errorf(format, args...),
	}
}

// Remote wraps a failed call to the remote collection service.
func Remote(op string, err error) *Error {
	return &Error{Kind: KindRemoteUnavailable, Op: op, Err: eris.Wrap(err, op)}
}

// Malformed reports a successful response that lacks expected fields.
func Malformed(op string, fields ...string) *Error {
	return &Error{
		Kind:   KindMalformedResponse,
		Op:     op,
		Fields: fields,
		Err:    eris.New("response missing expected fields"),
	}
}

// Auth reports an authentication failure with a specific reason.
func Auth(reason AuthReason, err error) *Error {
	e := &Error{Kind: KindAuth, Reason: reason}
	if err != nil {
		e.Err = eris.Wrap(err, reason.String())
	}
	return e
}

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Fields returns the offending field names carried by err.
func Fields(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// IsValidation reports whether err was raised before any remote call.
func IsValidation(err error) bool {
	k := KindOf(err)
	return k == KindMissingParameter || k == KindInvalidValue
}

// UserMessage maps err to text suitable for the end user. Remote error
// details are never included.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return GenericMessage
	}
	switch e.Kind {
	case KindMissingParameter:
		return "Required: " + strings.Join(e.Fields, ", ")
	case KindInvalidValue:
		return "Invalid value: " + strings.Join(e.Fields, ", ")
	case KindAuth:
		switch e.Reason {
		case AuthEmailTaken:
			return "Email already registered"
		case AuthInvalidCredentials:
			return "Invalid credentials"
		case AuthSessionExpired:
			return "Session expired, please log in again"
		}
	}
	return GenericMessage
}

// Trace renders err with its stack when one was captured.
func Trace(err error) string {
	return eris.ToString(err, true)
}
