package fetch

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout  = errors.New("fetch attempt timed out")
	ErrEmptyURL = errors.New("empty URL")
	ErrNotXML   = errors.New("response is not an XML document")
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s (%s)", e.StatusCode, e.Status, e.URL)
}
