package workitems

import "errors"

// Hints attached to every façade failure.
const (
	HintWorkItemID = "Make sure you set the server URL before calling this method, and that the work item id is valid. Check the wrapped error for more details."
	HintQuery      = "Make sure you set the server URL before calling this method, and that the query is valid. Check the wrapped error for more details."
)

// Sentinel errors.
var (
	// ErrEmptyURL is returned unwrapped by Connect for an empty server URL.
	ErrEmptyURL = errors.New("workitems: server URL is empty")
	// ErrNotConnected is the cause when a query runs before Connect succeeds.
	ErrNotConnected = errors.New("workitems: not connected")
	// ErrWrongKind is the cause when a named node is a folder where a query
	// was expected, or the reverse.
	ErrWrongKind = errors.New("workitems: wrong query node kind")
	// ErrNoSuchName is the cause when a project, folder or query name does
	// not match anything on the server.
	ErrNoSuchName = errors.New("workitems: no such name")
)

// Error is the single error kind returned by Extractor operations. Hint is a
// fixed remediation message; Err is the underlying failure.
type Error struct {
	Hint string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Hint
	}

	return e.Hint + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(hint string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Hint: hint, Err: err}
}
