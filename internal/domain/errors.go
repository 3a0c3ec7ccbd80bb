package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors, use with errors.Is().
var (
	ErrAuth     = errors.New("authentication failed")
	ErrRemote   = errors.New("remote store error")
	ErrNotFound = errors.New("not found")
	ErrFormat   = errors.New("invalid snapshot format")
	ErrLocalOp  = errors.New("local bookmark operation failed")
)

type (
	// AuthError indicates a denied, expired or missing credential.
	AuthError struct {
		Message string
		Err     error
	}

	// RemoteError is a non-2xx answer from the object store.
	RemoteError struct {
		Status  int
		Message string
	}

	// NotFoundError indicates there is no snapshot to restore.
	NotFoundError struct {
		Message string
	}

	// FormatError indicates snapshot content that does not describe a valid forest.
	FormatError struct {
		Message string
		Err     error
	}

	// LocalOpError indicates a failed mutation of the local bookmark tree.
	LocalOpError struct {
		Op     string
		NodeID string
		Err    error
	}
)

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Message, e.Err)
	}
	return "auth: " + e.Message
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote store: http %d", e.Status)
	}
	return fmt.Sprintf("remote store: http %d: %s", e.Status, e.Message)
}

func (e *NotFoundError) Error() string { return e.Message }

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("snapshot format: %s: %v", e.Message, e.Err)
	}
	return "snapshot format: " + e.Message
}

func (e *LocalOpError) Error() string {
	switch {
	case e.Op == "":
		return fmt.Sprintf("local bookmarks: %v", e.Err)
	case e.NodeID == "":
		return fmt.Sprintf("local bookmarks: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("local bookmarks: %s %s: %v", e.Op, e.NodeID, e.Err)
	}
}

func (e *AuthError) Is(target error) bool     { return target == ErrAuth }
func (e *RemoteError) Is(target error) bool   { return target == ErrRemote }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
func (e *FormatError) Is(target error) bool   { return target == ErrFormat }
func (e *LocalOpError) Is(target error) bool  { return target == ErrLocalOp }

func (e *AuthError) Unwrap() error    { return e.Err }
func (e *FormatError) Unwrap() error  { return e.Err }
func (e *LocalOpError) Unwrap() error { return e.Err }

// Unauthorized reports whether the remote store rejected the credential.
func (e *RemoteError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// IsUnauthorized reports whether err carries a 401 from the remote store.
func IsUnauthorized(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Unauthorized()
}
