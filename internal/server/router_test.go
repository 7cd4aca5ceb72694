package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiptrack/internal/carriers"
	"shiptrack/internal/cli"
	"shiptrack/internal/storage"
)

type fakeTracker struct{}

func (fakeTracker) TrackPackage(_ context.Context, trackingNumber string) (*carriers.Package, error) {
	if carriers.SelectCarrier(trackingNumber) == carriers.CarrierParcel {
		return &carriers.Package{
			TrackingNumber: trackingNumber,
			Carrier:        "ups",
			LastStatus:     "Delivered",
			State:          "Delivered",
		}, nil
	}
	return nil, &carriers.CarrierError{
		Carrier: "usps",
		Code:    carriers.CodeStatusNotAvailable,
		Message: "The Postal Service could not locate the tracking information",
	}
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger, _ := bufferLogger()
	list := storage.NewFileTrackingList(filepath.Join(t.TempDir(), "packages.json"))
	srv := httptest.NewServer(NewRouter(Deps{
		Tracker: fakeTracker{},
		List:    list,
		Health:  okPinger{},
		Logger:  logger,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouterWithClient(t *testing.T) {
	srv := setupTestServer(t)
	client := cli.NewClient(srv.URL, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, client.HealthCheck(ctx))

	pkg, err := client.TrackPackage(ctx, "1Z999AA10123456784")
	require.NoError(t, err)
	assert.Equal(t, "ups", pkg.Carrier)
	assert.Equal(t, "Delivered", pkg.LastStatus)

	_, err = client.TrackPackage(ctx, "9400111899223817576451")
	require.Error(t, err)
	assert.True(t, errors.Is(err, carriers.ErrStatusNotAvailable))

	var carrierErr *carriers.CarrierError
	require.True(t, errors.As(err, &carrierErr))
	assert.Equal(t, "usps", carrierErr.Carrier)
	assert.Equal(t, "The Postal Service could not locate the tracking information", carrierErr.Message)

	require.NoError(t, client.AddPackage(ctx, "1Z999AA10123456784"))
	require.NoError(t, client.AddPackage(ctx, "9400111899223817576451"))

	numbers, err := client.ListPackages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1Z999AA10123456784", "9400111899223817576451"}, numbers)

	removed, err := client.RemovePackage(ctx, "9400111899223817576451")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestRouterHeadersAndUnknownRoutes(t *testing.T) {
	srv := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = http.Get(srv.URL + "/api/shipments")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/packages", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	logger, buf := bufferLogger()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- serveListener(ctx, srv, ln, time.Second, logger) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Contains(t, buf.String(), "Server gracefully shut down")
}

func TestServeReportsListenFailure(t *testing.T) {
	logger, _ := bufferLogger()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := &http.Server{Addr: ln.Addr().String()}
	err = Serve(context.Background(), srv, time.Second, logger)
	assert.Error(t, err)
}
