package v4vkit

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRoot is returned for input that holds no XML element at all.
	ErrNoRoot = errors.New("document has no root element")

	// ErrHTMLPayload is returned when a relay or server answered with an
	// HTML page instead of the feed.
	ErrHTMLPayload = errors.New("received HTML instead of XML")

	// ErrMultipleRoots is returned for a document with more than one
	// top-level element.
	ErrMultipleRoots = errors.New("document has more than one root element")

	// ErrTextOutsideRoot is returned for character data before or after
	// the root element.
	ErrTextOutsideRoot = errors.New("text outside the root element")

	// ErrFeedTooLarge is returned for feed bodies over maxFeedSize.
	ErrFeedTooLarge = fmt.Errorf("feed exceeds %d MiB", maxFeedSize>>20)

	// ErrUnsupported is returned by a wallet asked for an operation it did
	// not advertise at connect time.
	ErrUnsupported = errors.New("operation not supported by wallet")
)

// ParseError reports input that could not be parsed as XML. It aborts
// validation of the whole document.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("XML parsing failed: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// LNURLError is the {"status":"ERROR"} response of an LNURL service.
type LNURLError struct {
	URL    string
	Reason string
}

func (e *LNURLError) Error() string {
	return fmt.Sprintf("LNURL service %s returned an error: %s", e.URL,
		e.Reason)
}
