package carriers

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"shiptrack/internal/extract"
	"shiptrack/internal/timezone"
)

const (
	// DefaultUSPSBaseURL hosts the public tracking page
	DefaultUSPSBaseURL = "https://tools.usps.com"

	// UnknownLocation replaces missing step locations in strict mode
	UnknownLocation = "UNKNOWN LOCATION"

	// uspsRotationMarker appears in the page when USPS has rotated the
	// session and wants the client to start over
	uspsRotationMarker = "originalHeaders"

	uspsReadySelector  = ".tracking-number"
	uspsStepTimeLayout = "January 2, 2006, 3:04 PM"
	uspsExpectedLayout = "2 January 2006 3:04PM"
)

// USPSOptions configures the USPS driver
type USPSOptions struct {
	BaseURL string
	// StrictLocation reports missing locations as UnknownLocation instead
	// of an empty string
	StrictLocation bool
	ReadyTimeout   time.Duration
}

// USPSDriver scrapes the USPS tracking page
type USPSDriver struct {
	client          *ScrapingClient
	session         *Session
	baseURL         string
	unknownLocation string
	readyTimeout    time.Duration
	logger          *slog.Logger
}

// NewUSPSDriver creates a USPS driver using client for direct fetches and
// session for credentials
func NewUSPSDriver(client *ScrapingClient, session *Session, opts USPSOptions, logger *slog.Logger) *USPSDriver {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultUSPSBaseURL
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &USPSDriver{
		client:       client,
		session:      session,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		readyTimeout: opts.ReadyTimeout,
		logger:       logger,
	}
	if opts.StrictLocation {
		d.unknownLocation = UnknownLocation
	}
	return d
}

// Name returns the carrier key
func (d *USPSDriver) Name() string {
	return "usps"
}

// Session returns the driver's credential session
func (d *USPSDriver) Session() *Session {
	return d.session
}

// CookieURL is the URL imported browser cookies are matched against
func (d *USPSDriver) CookieURL() string {
	return d.baseURL + "/go/TrackConfirmAction"
}

func (d *USPSDriver) trackURL(trackingNumber string) string {
	return d.baseURL + "/go/TrackConfirmAction?qtc_tLabels1=" + url.QueryEscape(trackingNumber)
}

// Track fetches the tracking page, falling back to the browser when there
// are no credentials or USPS rotated the session, and parses it
func (d *USPSDriver) Track(ctx context.Context, trackingNumber string) (*Package, error) {
	content, err := d.fetch(ctx, d.trackURL(trackingNumber))
	if err != nil {
		return nil, err
	}

	pkg, err := parseUSPSPage(content, d.unknownLocation)
	if err != nil {
		return nil, err
	}
	pkg.TrackingNumber = trackingNumber
	pkg.Carrier = d.Name()
	return pkg, nil
}

func (d *USPSDriver) fetch(ctx context.Context, pageURL string) (string, error) {
	creds, err := d.session.Credentials(ctx)
	if err != nil {
		return "", err
	}

	if creds != nil {
		content, status, err := d.client.fetchPage(ctx, pageURL, creds)
		if err != nil {
			return "", err
		}
		if !isRejected(status) && !strings.Contains(content, uspsRotationMarker) {
			return content, nil
		}
		d.logger.Info("USPS session rotated", "status", status)
		d.session.Expire()
	}

	acq, err := d.session.Acquire(ctx, AcquireRequest{
		URL:           pageURL,
		ReadySelector: uspsReadySelector,
		ReadyTimeout:  d.readyTimeout,
	})
	if err != nil {
		return "", err
	}
	if acq.Content != "" {
		return acq.Content, nil
	}

	content, status, err := d.client.fetchPage(ctx, pageURL, &acq.Credentials)
	if err != nil {
		return "", err
	}
	if isRejected(status) {
		d.session.Expire()
		return "", sessionAcquisitionFailed(d.Name(), fmt.Sprintf("fresh session rejected with HTTP %d", status), nil)
	}
	return content, nil
}

// uspsShipment distinguishes packages tracked in the USPS network from
// those handed over by a shipping partner, whose status sits outside the
// current-step container
type uspsShipment int

const (
	uspsStandard uspsShipment = iota
	uspsPartner
)

func classifyUSPSShipment(doc *extract.Document) (uspsShipment, error) {
	for _, selector := range []string{".preshipment-status", ".shipping-partner-status"} {
		node, err := doc.Find(nil, selector)
		if err != nil {
			return uspsStandard, err
		}
		if node != nil {
			return uspsPartner, nil
		}
	}
	return uspsStandard, nil
}

// parseUSPSPage builds a Package from a rendered tracking page.
// unknownLocation substitutes for steps without a location.
func parseUSPSPage(content, unknownLocation string) (*Package, error) {
	doc, err := extract.ParseString(content)
	if err != nil {
		return nil, err
	}

	banner, err := doc.Find(nil, ".red-banner")
	if err != nil {
		return nil, err
	}
	if banner != nil {
		text, err := doc.RequireText(banner, ".banner-header", extract.FullText)
		if err != nil {
			return nil, err
		}
		return nil, statusNotAvailable("usps", strings.TrimSpace(text))
	}

	expected, err := parseUSPSExpected(doc)
	if err != nil {
		return nil, err
	}

	state, err := parseUSPSState(doc)
	if err != nil {
		return nil, err
	}

	steps, err := parseUSPSSteps(doc, unknownLocation)
	if err != nil {
		return nil, err
	}

	lastStatus, err := doc.RequireText(nil, ".banner-content", extract.FullText)
	if err != nil {
		return nil, err
	}

	return &Package{
		Expected:   expected,
		LastStatus: strings.TrimSpace(lastStatus),
		State:      state,
		Steps:      steps,
	}, nil
}

func parseUSPSState(doc *extract.Document) (string, error) {
	kind, err := classifyUSPSShipment(doc)
	if err != nil {
		return "", err
	}

	if kind == uspsPartner {
		return doc.RequireText(nil, ".tb-status", extract.FullText)
	}

	current, err := doc.Find(nil, ".current-step")
	if err != nil {
		return "", err
	}
	if current == nil {
		return "", extract.Missing(".current-step")
	}
	return doc.RequireText(current, ".tb-status", extract.FullText)
}

// parseUSPSExpected returns nil when the page has no delivery estimate
func parseUSPSExpected(doc *extract.Document) ([]time.Time, error) {
	day, err := doc.Find(nil, ".day")
	if err != nil || day == nil {
		return nil, err
	}

	monthYear, err := doc.RequireText(nil, ".month_year", extract.FullText)
	if err != nil {
		return nil, err
	}
	firstLine := strings.TrimSpace(strings.SplitN(monthYear, "\n", 2)[0])
	parts := strings.Split(firstLine, " ")
	if len(parts) != 2 {
		return nil, fmt.Errorf("unexpected month and year %q", firstLine)
	}

	times, err := doc.RequireText(nil, ".time", extract.DirectText)
	if err != nil {
		return nil, err
	}

	date, err := doc.RequireText(nil, ".date", extract.FullText)
	if err != nil {
		return nil, err
	}
	date = strings.TrimSpace(date)

	var expected []time.Time
	for _, t := range strings.Split(times, " and ") {
		clock := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(t), " ", ""))
		value := fmt.Sprintf("%s %s %s %s", date, parts[0], parts[1], clock)
		parsed, err := time.ParseInLocation(uspsExpectedLayout, value, time.Local)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expected delivery %q: %w", value, err)
		}
		expected = append(expected, parsed)
	}
	return expected, nil
}

func parseUSPSSteps(doc *extract.Document, unknownLocation string) ([]Step, error) {
	nodes, err := doc.FindAll(nil, ".tb-step")
	if err != nil {
		return nil, err
	}

	steps := make([]Step, 0, len(nodes))
	for _, node := range nodes {
		if node.HasClass("toggle-history-container") {
			continue
		}

		detail, err := doc.RequireText(node, ".tb-status-detail", extract.FullText)
		if err != nil {
			return nil, err
		}

		location := unknownLocation
		locNode, err := doc.Find(node, ".tb-location")
		if err != nil {
			return nil, err
		}
		if locNode != nil {
			text, err := extract.Text(locNode, extract.FullText)
			if err != nil {
				return nil, err
			}
			if text = strings.ToUpper(strings.TrimSpace(text)); text != "" {
				location = text
			}
		}

		rawDate, err := doc.RequireText(node, ".tb-date", extract.FullText)
		if err != nil {
			return nil, err
		}
		value := strings.ToUpper(sanitizeUSPSDate(rawDate))
		stamp, err := time.ParseInLocation(uspsStepTimeLayout, value, time.Local)
		if err != nil {
			return nil, fmt.Errorf("failed to parse step time %q: %w", value, err)
		}

		steps = append(steps, Step{
			Details:  NormalizeStatus(strings.TrimSpace(detail)),
			Location: location,
			Time:     timezone.Apply(stamp, location),
		})
	}
	return steps, nil
}

// sanitizeUSPSDate keeps the first line of a step date, or the first two
// when the first contains a tab, and strips tabs. This depends on the
// exact whitespace USPS emits.
func sanitizeUSPSDate(text string) string {
	lines := strings.Split(text, "\n")
	n := 1
	if strings.Contains(lines[0], "\t") && len(lines) > 1 {
		n = 2
	}
	joined := strings.Join(lines[:n], " ")
	return strings.TrimSpace(strings.ReplaceAll(joined, "\t", ""))
}
