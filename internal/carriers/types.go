package carriers

import (
	"context"
	"errors"
	"time"
)

// Step is one entry in a shipment's tracking history
type Step struct {
	Details  string    `json:"details"`
	Location string    `json:"location"`
	Time     time.Time `json:"time"`
}

// Package is the normalized result of one tracking query. It is built fresh
// for every call and never cached.
type Package struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`

	// Expected holds zero, one (exact) or two (window) delivery estimates
	Expected   []time.Time `json:"expected,omitempty"`
	LastStatus string      `json:"last_status"`
	State      string      `json:"state"`
	Steps      []Step      `json:"steps"`
}

// Driver tracks packages for a single carrier
type Driver interface {
	// Name returns the carrier key, also used as the credential store key
	Name() string

	// Track fetches and normalizes tracking data for one tracking number
	Track(ctx context.Context, trackingNumber string) (*Package, error)
}

// Error codes carried by CarrierError
const (
	CodeStatusNotAvailable       = "STATUS_NOT_AVAILABLE"
	CodeSessionAcquisitionFailed = "SESSION_ACQUISITION_FAILED"
	CodeHTTPError                = "HTTP_ERROR"
	CodeRateLimit                = "RATE_LIMIT"
)

var (
	// ErrStatusNotAvailable matches any CarrierError reporting that the
	// carrier has no status for the tracking number
	ErrStatusNotAvailable = &CarrierError{Code: CodeStatusNotAvailable, Message: "status not available"}

	// ErrSessionAcquisitionFailed matches any CarrierError raised when the
	// browser fallback could not produce a usable session
	ErrSessionAcquisitionFailed = &CarrierError{Code: CodeSessionAcquisitionFailed, Message: "session acquisition failed"}
)

// CarrierError represents errors reported by or about a carrier
type CarrierError struct {
	Carrier   string `json:"carrier"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	RateLimit bool   `json:"rate_limit"`
	Err       error  `json:"-"`
}

func (e *CarrierError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Carrier == "" {
		return msg
	}
	return e.Carrier + ": " + msg
}

func (e *CarrierError) Unwrap() error {
	return e.Err
}

// Is matches on Code so errors.Is(err, ErrStatusNotAvailable) works for any
// carrier and message.
func (e *CarrierError) Is(target error) bool {
	var t *CarrierError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// statusNotAvailable builds the error for a carrier-reported failure,
// carrying the carrier's own text.
func statusNotAvailable(carrier, text string) error {
	return &CarrierError{
		Carrier: carrier,
		Code:    CodeStatusNotAvailable,
		Message: text,
	}
}

func sessionAcquisitionFailed(carrier, message string, err error) error {
	return &CarrierError{
		Carrier: carrier,
		Code:    CodeSessionAcquisitionFailed,
		Message: message,
		Err:     err,
	}
}
