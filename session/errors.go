package session

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionLost rejects every waiter and subscription when the
	// transport drops
	ErrConnectionLost = errors.New("connection lost")

	// ErrRequestTimeout means no matching reply arrived in time
	ErrRequestTimeout = errors.New("request timed out")

	// ErrDuplicateRequest means a request with the same correlation key is
	// already in flight
	ErrDuplicateRequest = errors.New("duplicate request in flight")

	// ErrNoSubscription means a subscribe request was answered without a
	// subscription id
	ErrNoSubscription = errors.New("subscribe reply carries no subscription id")
)

// AuthError is a rejected credential
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorize rejected: %s: %s", e.Code, e.Message)
}

// RemoteError is an explicit error object returned by the venue
type RemoteError struct {
	MsgType string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s rejected: %s: %s", e.MsgType, e.Code, e.Message)
}
