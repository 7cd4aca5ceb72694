package carriers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"
)

// CarrierKind identifies which driver handles a tracking number
type CarrierKind int

const (
	// CarrierPostal is the default for anything that is not a UPS number
	CarrierPostal CarrierKind = iota
	// CarrierParcel handles 1Z tracking numbers
	CarrierParcel
)

func (k CarrierKind) String() string {
	if k == CarrierParcel {
		return "ups"
	}
	return "usps"
}

var upsTrackingPattern = regexp.MustCompile(`^1Z[A-Z0-9]{6}[0-9]{2}[0-9]{7}[0-9]$`)

// SelectCarrier picks the driver kind from the shape of a tracking number
func SelectCarrier(trackingNumber string) CarrierKind {
	if upsTrackingPattern.MatchString(trackingNumber) {
		return CarrierParcel
	}
	return CarrierPostal
}

// Options wires a Tracker with its collaborators
type Options struct {
	// Store persists credentials between runs; nil keeps them in memory
	Store CredentialStore
	// Acquirer runs the browser fallback; nil disables it
	Acquirer Acquirer

	HTTPClient     *http.Client
	UserAgent      string
	USPSBaseURL    string
	UPSBaseURL     string
	UPSAPIURL      string
	StrictLocation bool
	ReadyTimeout   time.Duration

	// OnAcquire runs around every browser acquisition
	OnAcquire AcquireHook
	Logger    *slog.Logger
}

// Tracker routes tracking numbers to the carrier drivers and serializes
// requests per carrier so a session is never refreshed concurrently
type Tracker struct {
	postal Driver
	parcel Driver

	postalMu sync.Mutex
	parcelMu sync.Mutex

	closers []io.Closer
	logger  *slog.Logger
}

// New builds a Tracker with the USPS and UPS drivers
func New(opts Options) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	uspsSession := NewSession("usps", opts.Store, opts.Acquirer, logger)
	upsSession := NewSession("ups", opts.Store, opts.Acquirer, logger)
	if opts.OnAcquire != nil {
		uspsSession.SetAcquireHook(opts.OnAcquire)
		upsSession.SetAcquireHook(opts.OnAcquire)
	}

	usps := NewUSPSDriver(
		NewScrapingClient("usps", opts.UserAgent, opts.HTTPClient),
		uspsSession,
		USPSOptions{BaseURL: opts.USPSBaseURL, StrictLocation: opts.StrictLocation, ReadyTimeout: opts.ReadyTimeout},
		logger,
	)
	ups := NewUPSDriver(
		NewScrapingClient("ups", opts.UserAgent, opts.HTTPClient),
		upsSession,
		UPSOptions{BaseURL: opts.UPSBaseURL, APIURL: opts.UPSAPIURL, ReadyTimeout: opts.ReadyTimeout},
		logger,
	)

	t := NewTracker(usps, ups, logger)
	if closer, ok := opts.Acquirer.(io.Closer); ok {
		t.closers = append(t.closers, closer)
	}
	return t
}

// NewTracker builds a Tracker over arbitrary drivers
func NewTracker(postal, parcel Driver, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{postal: postal, parcel: parcel, logger: logger}
}

// Driver returns the driver that handles trackingNumber
func (t *Tracker) Driver(trackingNumber string) Driver {
	driver, _ := t.route(trackingNumber)
	return driver
}

// DriverByName returns the driver registered under a carrier key
func (t *Tracker) DriverByName(name string) (Driver, error) {
	for _, d := range []Driver{t.postal, t.parcel} {
		if d.Name() == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("unsupported carrier: %s", name)
}

func (t *Tracker) route(trackingNumber string) (Driver, *sync.Mutex) {
	if SelectCarrier(trackingNumber) == CarrierParcel {
		return t.parcel, &t.parcelMu
	}
	return t.postal, &t.postalMu
}

func (t *Tracker) mutexFor(d Driver) *sync.Mutex {
	if d == t.parcel {
		return &t.parcelMu
	}
	return &t.postalMu
}

// TrackPackage tracks one package. Each call fetches fresh data.
func (t *Tracker) TrackPackage(ctx context.Context, trackingNumber string) (*Package, error) {
	driver, mu := t.route(trackingNumber)

	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	pkg, err := driver.Track(ctx, trackingNumber)
	if err != nil {
		t.logger.Debug("Tracking failed", "carrier", driver.Name(), "tracking_number", trackingNumber, "error", err)
		return nil, fmt.Errorf("track %s: %w", trackingNumber, err)
	}

	pkg.TrackingNumber = trackingNumber
	pkg.Carrier = driver.Name()
	t.logger.Debug("Tracked package",
		"carrier", driver.Name(),
		"tracking_number", trackingNumber,
		"steps", len(pkg.Steps),
		"duration", time.Since(start))
	return pkg, nil
}

// Close releases the browser, if one was started
func (t *Tracker) Close() error {
	var errs []error
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
