// Package tfs provides an HTTP client for the Team Foundation Server /
// Azure DevOps REST API (the collection's _apis surface) with automatic
// retry, client-side rate limiting, and error classification.
package tfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, tfs.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("tfs: bad request")
	ErrUnauthorized = errors.New("tfs: unauthorized")
	ErrForbidden    = errors.New("tfs: forbidden")
	ErrNotFound     = errors.New("tfs: not found")
	ErrConflict     = errors.New("tfs: conflict")
	ErrThrottled    = errors.New("tfs: throttled")
	ErrServerError  = errors.New("tfs: server error")

	// ErrNotLoggedIn is returned when no cached OAuth token exists.
	ErrNotLoggedIn = errors.New("tfs: not logged in")
)

// Error wraps a sentinel error with the HTTP status code, the server's
// activity ID, and the decoded server message for debugging.
type Error struct {
	StatusCode int
	ActivityID string
	TypeKey    string // e.g. "WorkItemUnauthorizedAccessException"
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	msg := e.Message
	if e.TypeKey != "" {
		msg = e.TypeKey + ": " + msg
	}

	if e.ActivityID != "" {
		return fmt.Sprintf("tfs: HTTP %d (activity-id: %s): %s", e.StatusCode, e.ActivityID, msg)
	}

	return fmt.Sprintf("tfs: HTTP %d: %s", e.StatusCode, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// serverErrorBody mirrors the JSON error envelope returned by the server.
type serverErrorBody struct {
	Message string `json:"message"`
	TypeKey string `json:"typeKey"`
}

// newError builds an Error from a failed response. The server's JSON
// envelope is decoded when present; otherwise the raw body is kept.
func newError(resp *http.Response, body []byte) *Error {
	e := &Error{
		StatusCode: resp.StatusCode,
		ActivityID: activityID(resp.Header),
		Message:    strings.TrimSpace(string(body)),
		Err:        classifyStatus(resp.StatusCode),
	}

	var env serverErrorBody
	if json.Unmarshal(body, &env) == nil && env.Message != "" {
		e.Message = env.Message
		e.TypeKey = env.TypeKey
	}

	return e
}

// activityID returns the server's request correlation ID. Hosted and
// on-premises servers use different header names.
func activityID(h http.Header) string {
	if id := h.Get("ActivityId"); id != "" {
		return id
	}

	return h.Get("X-VSS-ActivityId")
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized, http.StatusNonAuthoritativeInfo:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// isSignInPage reports whether a 203 response is the HTML sign-in page the
// hosted service serves in place of a 401 when credentials are rejected.
func isSignInPage(resp *http.Response) bool {
	if resp.StatusCode != http.StatusNonAuthoritativeInfo {
		return false
	}

	return !strings.Contains(resp.Header.Get("Content-Type"), "json")
}
