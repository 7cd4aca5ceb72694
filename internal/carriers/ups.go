package carriers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shiptrack/internal/extract"
)

const (
	// DefaultUPSBaseURL serves the tracking page used for priming
	DefaultUPSBaseURL = "https://www.ups.com"
	// DefaultUPSAPIURL serves the status API
	DefaultUPSAPIURL = "https://webapis.ups.com"

	upsTokenCookie      = "X-XSRF-TOKEN-ST"
	upsTokenHeader      = "X-XSRF-TOKEN"
	upsArrivedCode      = "160"
	upsExpectedLayout   = "January 2 2006 3:04 PM"
	upsActivityLayout   = "20060102 15:04:05"
	upsOffsetLayout     = "-07:00"
	upsCaptureSubstring = "/track/api/"
)

var upsMonthKeys = map[string]string{
	"cms.stapp.jan": "January",
	"cms.stapp.feb": "February",
	"cms.stapp.mar": "March",
	"cms.stapp.apr": "April",
	"cms.stapp.may": "May",
	"cms.stapp.jun": "June",
	"cms.stapp.jul": "July",
	"cms.stapp.aug": "August",
	"cms.stapp.sep": "September",
	"cms.stapp.oct": "October",
	"cms.stapp.nov": "November",
	"cms.stapp.dec": "December",
}

type upsStatusRequest struct {
	Locale         string   `json:"Locale"`
	TrackingNumber []string `json:"TrackingNumber"`
}

type upsStatusResponse struct {
	StatusCode   string           `json:"statusCode"`
	StatusText   string           `json:"statusText"`
	TrackDetails []upsTrackDetail `json:"trackDetails"`
}

type upsTrackDetail struct {
	PackageStatusCode           string           `json:"packageStatusCode"`
	PackageStatusTime           string           `json:"packageStatusTime"`
	ScheduledDeliveryDateDetail *upsDeliveryDate `json:"scheduledDeliveryDateDetail"`
	Milestones                  []upsMilestone   `json:"milestones"`
	ShipmentProgressActivities  []upsActivity    `json:"shipmentProgressActivities"`
}

type upsDeliveryDate struct {
	MonthCMSKey string      `json:"monthCMSKey"`
	DayNum      json.Number `json:"dayNum"`
}

type upsMilestone struct {
	Name      string `json:"name"`
	IsCurrent bool   `json:"isCurrent"`
}

type upsActivity struct {
	ActivityScan  string            `json:"activityScan"`
	Location      string            `json:"location"`
	GMTDate       string            `json:"gmtDate"`
	GMTTime       string            `json:"gmtTime"`
	GMTOffset     string            `json:"gmtOffset"`
	MilestoneName *upsMilestoneName `json:"milestoneName"`
}

type upsMilestoneName struct {
	Name string `json:"name"`
}

// UPSOptions configures the UPS driver
type UPSOptions struct {
	BaseURL      string
	APIURL       string
	ReadyTimeout time.Duration
}

// UPSDriver queries the JSON status API behind the UPS tracking page
type UPSDriver struct {
	client       *ScrapingClient
	session      *Session
	baseURL      string
	apiURL       string
	readyTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewUPSDriver creates a UPS driver using client for direct requests and
// session for credentials
func NewUPSDriver(client *ScrapingClient, session *Session, opts UPSOptions, logger *slog.Logger) *UPSDriver {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultUPSBaseURL
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultUPSAPIURL
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UPSDriver{
		client:       client,
		session:      session,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		apiURL:       strings.TrimRight(opts.APIURL, "/"),
		readyTimeout: opts.ReadyTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// Name returns the carrier key
func (d *UPSDriver) Name() string {
	return "ups"
}

// Session returns the driver's credential session
func (d *UPSDriver) Session() *Session {
	return d.session
}

// CookieURL is the URL imported browser cookies are matched against
func (d *UPSDriver) CookieURL() string {
	return d.baseURL + "/track"
}

// Track posts the tracking number to the status API. A missing token is
// primed with a plain GET first; a rejected token triggers one browser
// acquisition.
func (d *UPSDriver) Track(ctx context.Context, trackingNumber string) (*Package, error) {
	creds, err := d.session.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	acquired := false
	if creds == nil || creds.Cookies[upsTokenCookie] == "" {
		creds, err = d.prime(ctx)
		if err != nil {
			d.logger.Info("UPS priming failed, falling back to browser", "error", err)
			if creds, err = d.acquire(ctx, trackingNumber); err != nil {
				return nil, err
			}
			acquired = true
		}
	}

	resp, rejected, err := d.status(ctx, creds, trackingNumber)
	if err != nil {
		return nil, err
	}
	if rejected {
		d.session.Expire()
		if acquired {
			return nil, sessionAcquisitionFailed(d.Name(), "fresh session rejected", nil)
		}
		d.logger.Info("UPS session rejected", "tracking_number", trackingNumber)
		if creds, err = d.acquire(ctx, trackingNumber); err != nil {
			return nil, err
		}
		if resp, rejected, err = d.status(ctx, creds, trackingNumber); err != nil {
			return nil, err
		}
		if rejected {
			d.session.Expire()
			return nil, sessionAcquisitionFailed(d.Name(), "fresh session rejected", nil)
		}
	}

	if resp.StatusCode != "200" {
		return nil, statusNotAvailable(d.Name(), resp.StatusText)
	}

	pkg, err := buildUPSPackage(resp, d.now())
	if err != nil {
		return nil, err
	}
	pkg.TrackingNumber = trackingNumber
	pkg.Carrier = d.Name()
	return pkg, nil
}

// prime fetches the tracking page without credentials to obtain the token
// cookie
func (d *UPSDriver) prime(ctx context.Context) (*Credentials, error) {
	cookies, err := d.client.primeCookies(ctx, d.baseURL+"/track")
	if err != nil {
		return nil, err
	}
	if cookies[upsTokenCookie] == "" {
		return nil, fmt.Errorf("priming response did not set %s", upsTokenCookie)
	}

	creds := Credentials{Cookies: cookies}
	if err := d.session.Set(ctx, creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

func (d *UPSDriver) acquire(ctx context.Context, trackingNumber string) (*Credentials, error) {
	q := url.Values{}
	q.Set("loc", "en_US")
	q.Set("tracknum", trackingNumber)

	acq, err := d.session.Acquire(ctx, AcquireRequest{
		URL:            d.baseURL + "/track?" + q.Encode(),
		ReadySelector:  "body",
		ReadyCookie:    upsTokenCookie,
		ReadyTimeout:   d.readyTimeout,
		CaptureHeaders: upsCaptureSubstring,
	})
	if err != nil {
		return nil, err
	}
	if acq.Credentials.Cookies[upsTokenCookie] == "" {
		d.session.Expire()
		return nil, sessionAcquisitionFailed(d.Name(), "browser session has no "+upsTokenCookie+" cookie", nil)
	}
	return &acq.Credentials, nil
}

// status calls the status API. rejected reports an HTTP or body level
// 401/403.
func (d *UPSDriver) status(ctx context.Context, creds *Credentials, trackingNumber string) (*upsStatusResponse, bool, error) {
	extra := http.Header{}
	extra.Set(upsTokenHeader, creds.Cookies[upsTokenCookie])

	var resp upsStatusResponse
	code, err := d.client.postJSON(ctx,
		d.apiURL+"/track/api/Track/GetStatus?loc=en_US",
		creds,
		extra,
		upsStatusRequest{Locale: "en_US", TrackingNumber: []string{trackingNumber}},
		&resp,
	)
	if err != nil {
		return nil, false, err
	}
	if isRejected(code) || resp.StatusCode == "401" || resp.StatusCode == "403" {
		return nil, true, nil
	}
	return &resp, false, nil
}

// buildUPSPackage assembles a Package from a successful status response.
// now supplies the year of the delivery estimate.
func buildUPSPackage(resp *upsStatusResponse, now time.Time) (*Package, error) {
	if len(resp.TrackDetails) == 0 {
		return nil, extract.Missing("trackDetails[0]")
	}
	detail := resp.TrackDetails[0]

	expected, err := parseUPSExpected(detail, now)
	if err != nil {
		return nil, err
	}

	if len(detail.ShipmentProgressActivities) == 0 {
		return nil, extract.Missing("shipmentProgressActivities[0]")
	}
	latest := detail.ShipmentProgressActivities[0]
	lastStatus := latest.ActivityScan
	if detail.PackageStatusCode == upsArrivedCode {
		lastStatus = fmt.Sprintf("Your package has arrived in %s and is getting ready for shipping.", latest.Location)
	}

	var state string
	for _, m := range detail.Milestones {
		if m.IsCurrent {
			state = m.Name
		}
	}

	steps := make([]Step, 0, len(detail.ShipmentProgressActivities))
	for i, activity := range detail.ShipmentProgressActivities {
		if activity.MilestoneName == nil {
			return nil, extract.Missing(fmt.Sprintf("shipmentProgressActivities[%d].milestoneName", i))
		}
		stamp, err := parseUPSActivityTime(activity)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{
			Details:  NormalizeMilestone(activity.MilestoneName.Name),
			Location: upsLocation(activity.Location),
			Time:     stamp,
		})
	}

	return &Package{
		Expected:   expected,
		LastStatus: lastStatus,
		State:      state,
		Steps:      steps,
	}, nil
}

// parseUPSExpected returns nil when no delivery time is announced
func parseUPSExpected(detail upsTrackDetail, now time.Time) ([]time.Time, error) {
	if detail.PackageStatusTime == "" {
		return nil, nil
	}

	delivery := detail.ScheduledDeliveryDateDetail
	if delivery == nil {
		return nil, extract.Missing("scheduledDeliveryDateDetail")
	}
	month, ok := upsMonthKeys[delivery.MonthCMSKey]
	if !ok {
		return nil, extract.Missing("scheduledDeliveryDateDetail.monthCMSKey")
	}

	var expected []time.Time
	for _, t := range strings.Split(detail.PackageStatusTime, " - ") {
		clock := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(t, ".", "")))
		value := fmt.Sprintf("%s %s %d %s", month, delivery.DayNum, now.Year(), clock)
		parsed, err := time.ParseInLocation(upsExpectedLayout, value, time.Local)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expected delivery %q: %w", value, err)
		}
		expected = append(expected, parsed)
	}
	return expected, nil
}

// parseUPSActivityTime reads the GMT date and time and presents the instant
// in the declared offset's zone
func parseUPSActivityTime(activity upsActivity) (time.Time, error) {
	stamp, err := time.ParseInLocation(upsActivityLayout, activity.GMTDate+" "+activity.GMTTime, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse activity time: %w", err)
	}
	if activity.GMTOffset == "" {
		return stamp, nil
	}

	offset, err := time.Parse(upsOffsetLayout, activity.GMTOffset)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse activity offset %q: %w", activity.GMTOffset, err)
	}
	_, seconds := offset.Zone()
	return stamp.In(time.FixedZone(activity.GMTOffset, seconds)), nil
}

// upsLocation keeps only "City, Region" style locations
func upsLocation(location string) string {
	if !strings.Contains(location, ",") {
		return ""
	}
	return strings.ToUpper(strings.ReplaceAll(location, "United States", "US"))
}
