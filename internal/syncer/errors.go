package syncer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/S1monlol/notionCanvas/internal/calendar"
	"github.com/S1monlol/notionCanvas/internal/notion"
)

// Kind classifies a run-abort error. The HTTP layer maps kinds to statuses.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error aborts a whole run. Message is safe to show to callers; Details
// carries upstream text when there is any.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, code, message string, err error) *Error {
	e := &Error{Kind: kind, Code: code, Message: message, Err: err}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// upstreamError classifies a failed call to the page service or calendar host.
func upstreamError(code, message string, err error) *Error {
	var apiErr *notion.APIError
	if errors.As(err, &apiErr) {
		e := newError(KindUpstream, code, message, err)
		e.Details = apiErr.Body
		if apiErr.Status == http.StatusUnauthorized {
			e.Kind = KindUnauthorized
			e.Code = "unauthorized"
			e.Message = "Invalid or expired access token"
		}
		return e
	}
	var fetchErr *calendar.FetchError
	if errors.As(err, &fetchErr) {
		e := newError(KindUpstream, code, message, err)
		e.Details = fetchErr.Body
		return e
	}
	if errors.Is(err, calendar.ErrInvalidURL) {
		return newError(KindBadRequest, "invalid_calendar_url", "Invalid calendar URL", err)
	}
	return newError(KindUpstream, code, message, err)
}

// ErrorKind returns the kind of a run error, KindInternal for anything else.
func ErrorKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
