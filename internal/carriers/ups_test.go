package carriers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiptrack/internal/extract"
)

type upsServer struct {
	*httptest.Server

	mu          sync.Mutex
	primeToken  string
	validToken  string
	body        string
	primeCalls  int
	statusCalls int
	lastRequest upsStatusRequest
}

func newUPSServer(t *testing.T, body string) *upsServer {
	t.Helper()
	s := &upsServer{primeToken: "tok", validToken: "tok", body: body}

	mux := http.NewServeMux()
	mux.HandleFunc("/track", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.primeCalls++
		if s.primeToken != "" {
			http.SetCookie(w, &http.Cookie{Name: "X-XSRF-TOKEN-ST", Value: s.primeToken, Path: "/"})
		}
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/track/api/Track/GetStatus", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.statusCalls++

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "en_US", r.URL.Query().Get("loc"))
		assert.Equal(t, "en-US,en;q=0.5", r.Header.Get("Accept-Language"))

		if r.Header.Get("X-XSRF-TOKEN") != s.validToken {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&s.lastRequest))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(s.body))
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newTestUPSDriver(server *upsServer, store CredentialStore, acquirer Acquirer) *UPSDriver {
	d := NewUPSDriver(
		NewScrapingClient("ups", "", nil),
		NewSession("ups", store, acquirer, nil),
		UPSOptions{BaseURL: server.URL, APIURL: server.URL, ReadyTimeout: time.Second},
		nil,
	)
	d.now = func() time.Time { return time.Date(2024, time.June, 4, 12, 0, 0, 0, time.Local) }
	return d
}

func TestUPSDriver_PrimesAndTracks(t *testing.T) {
	server := newUPSServer(t, readFixture(t, "ups_in_transit.json"))
	store := newMemoryStore()
	acquirer := &stubAcquirer{}

	driver := newTestUPSDriver(server, store, acquirer)
	pkg, err := driver.Track(context.Background(), "1Z9999999999999999")
	require.NoError(t, err)

	assert.Equal(t, "1Z9999999999999999", pkg.TrackingNumber)
	assert.Equal(t, "ups", pkg.Carrier)
	assert.Equal(t, "Departed from Facility", pkg.LastStatus)
	assert.Equal(t, "On the Way", pkg.State)

	require.Len(t, pkg.Expected, 2)
	assert.True(t, pkg.Expected[0].Equal(time.Date(2024, time.June, 5, 10, 30, 0, 0, time.Local)), "got %v", pkg.Expected[0])
	assert.True(t, pkg.Expected[1].Equal(time.Date(2024, time.June, 5, 14, 30, 0, 0, time.Local)), "got %v", pkg.Expected[1])

	require.Len(t, pkg.Steps, 3)
	assert.Equal(t, []string{"On The Way", "On The Way", "Has Package"},
		[]string{pkg.Steps[0].Details, pkg.Steps[1].Details, pkg.Steps[2].Details})
	assert.Equal(t, "LOUISVILLE, KY, US", pkg.Steps[0].Location)
	assert.Equal(t, "HODGKINS, IL, US", pkg.Steps[1].Location)
	assert.Equal(t, "", pkg.Steps[2].Location)

	first := pkg.Steps[0].Time
	assert.True(t, first.Equal(time.Date(2024, time.June, 3, 14, 5, 0, 0, time.UTC)))
	assert.Equal(t, 10, first.Hour())
	_, offset := first.Zone()
	assert.Equal(t, -4*3600, offset)

	assert.Equal(t, 1, server.primeCalls)
	assert.Equal(t, 1, server.statusCalls)
	assert.Equal(t, upsStatusRequest{Locale: "en_US", TrackingNumber: []string{"1Z9999999999999999"}}, server.lastRequest)
	assert.Zero(t, acquirer.calls())
	assert.Equal(t, "tok", store.credentials(t, "ups").Cookies["X-XSRF-TOKEN-ST"])
}

func TestUPSDriver_ReusesToken(t *testing.T) {
	server := newUPSServer(t, readFixture(t, "ups_in_transit.json"))
	store := newMemoryStore()
	store.seed(t, "ups", Credentials{Cookies: map[string]string{"X-XSRF-TOKEN-ST": "tok"}})

	driver := newTestUPSDriver(server, store, &stubAcquirer{})
	for i := 0; i < 2; i++ {
		_, err := driver.Track(context.Background(), "1Z9999999999999999")
		require.NoError(t, err)
	}

	assert.Zero(t, server.primeCalls)
	assert.Equal(t, 2, server.statusCalls)
}

func TestUPSDriver_RejectedTokenReacquiresOnce(t *testing.T) {
	server := newUPSServer(t, readFixture(t, "ups_in_transit.json"))
	server.validToken = "browser-tok"

	store := newMemoryStore()
	store.seed(t, "ups", Credentials{Cookies: map[string]string{"X-XSRF-TOKEN-ST": "stale"}})
	acquirer := &stubAcquirer{result: &Acquisition{Credentials: Credentials{
		Cookies: map[string]string{"X-XSRF-TOKEN-ST": "browser-tok"},
		Headers: map[string]string{"X-Requested-With": "XMLHttpRequest"},
	}}}

	driver := newTestUPSDriver(server, store, acquirer)
	pkg, err := driver.Track(context.Background(), "1Z9999999999999999")
	require.NoError(t, err)
	assert.Len(t, pkg.Steps, 3)

	require.Equal(t, 1, acquirer.calls())
	req := acquirer.requests[0]
	assert.Equal(t, server.URL+"/track?loc=en_US&tracknum=1Z9999999999999999", req.URL)
	assert.Equal(t, "X-XSRF-TOKEN-ST", req.ReadyCookie)
	assert.Equal(t, "/track/api/", req.CaptureHeaders)

	assert.Equal(t, 2, server.statusCalls)
	stored := store.credentials(t, "ups")
	assert.Equal(t, "browser-tok", stored.Cookies["X-XSRF-TOKEN-ST"])
	assert.Equal(t, "XMLHttpRequest", stored.Headers["X-Requested-With"])
}

func TestUPSDriver_PrimingWithoutTokenUsesBrowser(t *testing.T) {
	server := newUPSServer(t, readFixture(t, "ups_in_transit.json"))
	server.primeToken = ""

	acquirer := &stubAcquirer{result: &Acquisition{Credentials: Credentials{
		Cookies: map[string]string{"X-XSRF-TOKEN-ST": "tok"},
	}}}

	driver := newTestUPSDriver(server, newMemoryStore(), acquirer)
	_, err := driver.Track(context.Background(), "1Z9999999999999999")
	require.NoError(t, err)

	assert.Equal(t, 1, server.primeCalls)
	assert.Equal(t, 1, acquirer.calls())
	assert.Equal(t, 1, server.statusCalls)
}

func TestUPSDriver_SessionAcquisitionFailures(t *testing.T) {
	tests := []struct {
		name        string
		acquisition *Acquisition
		acquireErr  error
		wantStatus  int
	}{
		{
			name:        "fresh token still rejected",
			acquisition: &Acquisition{Credentials: Credentials{Cookies: map[string]string{"X-XSRF-TOKEN-ST": "also-bad"}}},
			wantStatus:  2,
		},
		{
			name:        "browser produced no token",
			acquisition: &Acquisition{Credentials: Credentials{Cookies: map[string]string{"other": "x"}}},
			wantStatus:  1,
		},
		{
			name:       "browser timed out",
			acquireErr: context.DeadlineExceeded,
			wantStatus: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newUPSServer(t, readFixture(t, "ups_in_transit.json"))
			server.validToken = "good"

			store := newMemoryStore()
			store.seed(t, "ups", Credentials{Cookies: map[string]string{"X-XSRF-TOKEN-ST": "stale"}})
			acquirer := &stubAcquirer{result: tt.acquisition, err: tt.acquireErr}

			driver := newTestUPSDriver(server, store, acquirer)
			pkg, err := driver.Track(context.Background(), "1Z9999999999999999")

			assert.Nil(t, pkg)
			assert.ErrorIs(t, err, ErrSessionAcquisitionFailed)
			assert.Equal(t, 1, acquirer.calls())
			assert.Equal(t, tt.wantStatus, server.statusCalls)
			assert.Equal(t, Expired, driver.Session().State())
		})
	}
}

func TestUPSDriver_StatusNotAvailable(t *testing.T) {
	server := newUPSServer(t, `{"statusCode":"404","statusText":"Tracking number not found"}`)

	driver := newTestUPSDriver(server, newMemoryStore(), &stubAcquirer{})
	pkg, err := driver.Track(context.Background(), "1Z9999999999999999")

	assert.Nil(t, pkg)
	assert.ErrorIs(t, err, ErrStatusNotAvailable)
	assert.EqualError(t, err, "ups: Tracking number not found")
}

func TestUPSDriver_BodyLevelRejection(t *testing.T) {
	server := newUPSServer(t, `{"statusCode":"403","statusText":"Forbidden"}`)
	acquirer := &stubAcquirer{err: context.DeadlineExceeded}

	driver := newTestUPSDriver(server, newMemoryStore(), acquirer)
	_, err := driver.Track(context.Background(), "1Z9999999999999999")

	assert.ErrorIs(t, err, ErrSessionAcquisitionFailed)
	assert.Equal(t, 1, acquirer.calls())
}

func TestBuildUPSPackage_ArrivedRewrite(t *testing.T) {
	var resp upsStatusResponse
	require.NoError(t, json.Unmarshal([]byte(readFixture(t, "ups_arrived.json")), &resp))

	pkg, err := buildUPSPackage(&resp, time.Now())
	require.NoError(t, err)

	assert.Nil(t, pkg.Expected)
	assert.Equal(t, "Your package has arrived in Atlanta, GA, United States and is getting ready for shipping.", pkg.LastStatus)
	assert.Equal(t, "Label Created", pkg.State)
	assert.Equal(t, "ATLANTA, GA, US", pkg.Steps[0].Location)
}

func TestBuildUPSPackage_MissingData(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
	}{
		{
			name: "no track details",
			body: `{"statusCode":"200","trackDetails":[]}`,
			path: "trackDetails[0]",
		},
		{
			name: "no activities",
			body: `{"statusCode":"200","trackDetails":[{"milestones":[]}]}`,
			path: "shipmentProgressActivities[0]",
		},
		{
			name: "unknown month key",
			body: `{"statusCode":"200","trackDetails":[{"packageStatusTime":"9:00 a.m.","scheduledDeliveryDateDetail":{"monthCMSKey":"cms.stapp.xyz","dayNum":"1"}}]}`,
			path: "scheduledDeliveryDateDetail.monthCMSKey",
		},
		{
			name: "activity without milestone",
			body: `{"statusCode":"200","trackDetails":[{"shipmentProgressActivities":[{"activityScan":"x","gmtDate":"20240601","gmtTime":"10:00:00"}]}]}`,
			path: "shipmentProgressActivities[0].milestoneName",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp upsStatusResponse
			require.NoError(t, json.Unmarshal([]byte(tt.body), &resp))

			pkg, err := buildUPSPackage(&resp, time.Now())
			assert.Nil(t, pkg)
			assert.ErrorIs(t, err, extract.ErrMissingElement)
			assert.EqualError(t, err, "missing element: "+tt.path)
		})
	}
}

func TestParseUPSActivityTime(t *testing.T) {
	stamp, err := parseUPSActivityTime(upsActivity{GMTDate: "20240101", GMTTime: "23:30:00", GMTOffset: "+05:30"})
	require.NoError(t, err)
	assert.True(t, stamp.Equal(time.Date(2024, time.January, 1, 23, 30, 0, 0, time.UTC)))
	assert.Equal(t, 2, stamp.Day())
	assert.Equal(t, 5, stamp.Hour())

	stamp, err = parseUPSActivityTime(upsActivity{GMTDate: "20240101", GMTTime: "08:00:00"})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, stamp.Location())

	_, err = parseUPSActivityTime(upsActivity{GMTDate: "2024-01-01", GMTTime: "08:00:00"})
	assert.Error(t, err)
}

func TestUPSLocation(t *testing.T) {
	assert.Equal(t, "LOUISVILLE, KY, US", upsLocation("Louisville, KY, United States"))
	assert.Equal(t, "", upsLocation("United States"))
	assert.Equal(t, "", upsLocation(""))
}
