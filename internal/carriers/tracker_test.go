package carriers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectCarrier(t *testing.T) {
	tests := []struct {
		trackingNumber string
		want           CarrierKind
	}{
		{"1Z9999999999999999", CarrierParcel},
		{"1Z999AA10123456784", CarrierParcel},
		{"1ZABCDEF1234567890", CarrierParcel},
		{"1z999aa10123456784", CarrierPostal},
		{"1Z999AA1012345678", CarrierPostal},
		{"1Z999AA101234567845", CarrierPostal},
		{"1Z999AA1A123456784", CarrierPostal},
		{"9400111899562347123456", CarrierPostal},
		{"", CarrierPostal},
		{"anything at all", CarrierPostal},
	}

	for _, tt := range tests {
		t.Run(tt.trackingNumber, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectCarrier(tt.trackingNumber))
		})
	}
}

func TestCarrierKind_String(t *testing.T) {
	assert.Equal(t, "ups", CarrierParcel.String())
	assert.Equal(t, "usps", CarrierPostal.String())
}

// stubDriver returns a canned package or error
type stubDriver struct {
	name  string
	pkg   *Package
	err   error
	calls []string
}

func (s *stubDriver) Name() string { return s.name }

func (s *stubDriver) Track(_ context.Context, trackingNumber string) (*Package, error) {
	s.calls = append(s.calls, trackingNumber)
	if s.err != nil {
		return nil, s.err
	}
	pkg := *s.pkg
	return &pkg, nil
}

func TestTracker_RoutesParcelNumbers(t *testing.T) {
	steps := []Step{
		{Details: "Delivered", Location: "ATLANTA, GA, US", Time: time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)},
		{Details: "On The Way", Location: "LOUISVILLE, KY, US", Time: time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)},
		{Details: "Has Package", Location: "", Time: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)},
	}
	postal := &stubDriver{name: "usps"}
	parcel := &stubDriver{name: "ups", pkg: &Package{State: "Delivered", Steps: steps}}

	tracker := NewTracker(postal, parcel, nil)
	assert.Same(t, parcel, tracker.Driver("1Z9999999999999999"))

	pkg, err := tracker.TrackPackage(context.Background(), "1Z9999999999999999")
	require.NoError(t, err)

	assert.Equal(t, "ups", pkg.Carrier)
	assert.Equal(t, "1Z9999999999999999", pkg.TrackingNumber)
	assert.Equal(t, steps, pkg.Steps)
	assert.Equal(t, []string{"1Z9999999999999999"}, parcel.calls)
	assert.Empty(t, postal.calls)
}

func TestTracker_WrapsDriverErrors(t *testing.T) {
	postal := &stubDriver{name: "usps", err: statusNotAvailable("usps", "Label Created, not yet in system")}
	parcel := &stubDriver{name: "ups"}

	tracker := NewTracker(postal, parcel, nil)
	pkg, err := tracker.TrackPackage(context.Background(), "9400111899562347123456")

	assert.Nil(t, pkg)
	assert.ErrorIs(t, err, ErrStatusNotAvailable)
	assert.EqualError(t, err, "track 9400111899562347123456: usps: Label Created, not yet in system")
}

func TestTracker_DriverByName(t *testing.T) {
	tracker := NewTracker(&stubDriver{name: "usps"}, &stubDriver{name: "ups"}, nil)

	d, err := tracker.DriverByName("ups")
	require.NoError(t, err)
	assert.Equal(t, "ups", d.Name())

	_, err = tracker.DriverByName("fedex")
	assert.EqualError(t, err, "unsupported carrier: fedex")
}

func TestNew_RedBannerEndToEnd(t *testing.T) {
	page := readFixture(t, "usps_not_found.html")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	store := newMemoryStore()
	store.seed(t, "usps", Credentials{Cookies: map[string]string{"TLTSID": "stored"}})
	acquirer := &stubAcquirer{}

	tracker := New(Options{
		Store:       store,
		Acquirer:    acquirer,
		USPSBaseURL: server.URL,
	})

	pkg, err := tracker.TrackPackage(context.Background(), "9400111899562347123456")
	assert.Nil(t, pkg)
	assert.True(t, errors.Is(err, ErrStatusNotAvailable))

	require.NoError(t, tracker.Close())
	assert.True(t, acquirer.closed)
}

func TestNew_AcquireHookWrapsBrowserRuns(t *testing.T) {
	acquirer := &stubAcquirer{result: &Acquisition{
		Credentials: Credentials{Cookies: map[string]string{"TLTSID": "fresh"}},
		Content:     readFixture(t, "usps_partner.html"),
	}}

	var events []string
	tracker := New(Options{
		Store:    newMemoryStore(),
		Acquirer: acquirer,
		OnAcquire: func(carrier string) func() {
			events = append(events, "start "+carrier)
			return func() { events = append(events, "stop "+carrier) }
		},
	})

	_, err := tracker.TrackPackage(context.Background(), "9261290100830425123456")
	require.NoError(t, err)
	assert.Equal(t, []string{"start usps", "stop usps"}, events)
}
