package carriers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_LoadsStoredCredentialsLazily(t *testing.T) {
	store := newMemoryStore()
	store.seed(t, "usps", Credentials{Cookies: map[string]string{"TLTSID": "abc"}})

	session := NewSession("usps", store, nil, nil)
	assert.Equal(t, NoSession, session.State())

	creds, err := session.Credentials(context.Background())
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "abc", creds.Cookies["TLTSID"])
	assert.Equal(t, Ready, session.State())

	// callers get a copy
	creds.Cookies["TLTSID"] = "changed"
	again, err := session.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", again.Cookies["TLTSID"])
}

func TestSession_NoStoredCredentials(t *testing.T) {
	session := NewSession("usps", newMemoryStore(), nil, nil)

	creds, err := session.Credentials(context.Background())
	require.NoError(t, err)
	assert.Nil(t, creds)
	assert.Equal(t, NoSession, session.State())
}

func TestSession_IgnoresUnreadableBlob(t *testing.T) {
	store := newMemoryStore()
	store.blobs["usps"] = []byte("{not json")

	session := NewSession("usps", store, nil, nil)
	creds, err := session.Credentials(context.Background())
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestSession_ExpireHidesCredentials(t *testing.T) {
	store := newMemoryStore()
	store.seed(t, "ups", Credentials{Cookies: map[string]string{"X-XSRF-TOKEN-ST": "tok"}})

	session := NewSession("ups", store, nil, nil)
	_, err := session.Credentials(context.Background())
	require.NoError(t, err)

	session.Expire()
	assert.Equal(t, Expired, session.State())

	creds, err := session.Credentials(context.Background())
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestSession_AcquirePersists(t *testing.T) {
	store := newMemoryStore()
	acquirer := &stubAcquirer{result: &Acquisition{
		Credentials: Credentials{Cookies: map[string]string{"TLTSID": "fresh"}},
		Content:     "<html></html>",
	}}

	var started, finished []string
	session := NewSession("usps", store, acquirer, nil)
	session.SetAcquireHook(func(carrier string) func() {
		started = append(started, carrier)
		return func() { finished = append(finished, carrier) }
	})

	acq, err := session.Acquire(context.Background(), AcquireRequest{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", acq.Content)
	assert.Equal(t, Ready, session.State())
	assert.Equal(t, "fresh", store.credentials(t, "usps").Cookies["TLTSID"])
	assert.Equal(t, []string{"usps"}, started)
	assert.Equal(t, []string{"usps"}, finished)
}

func TestSession_AcquireFailure(t *testing.T) {
	tests := []struct {
		name     string
		acquirer Acquirer
		expire   bool
		want     SessionState
	}{
		{
			name:     "browser error from no session",
			acquirer: &stubAcquirer{err: errors.New("context deadline exceeded")},
			want:     NoSession,
		},
		{
			name:     "browser error after expiry",
			acquirer: &stubAcquirer{err: errors.New("context deadline exceeded")},
			expire:   true,
			want:     Expired,
		},
		{
			name: "browser disabled",
			want: NoSession,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			session := NewSession("usps", store, tt.acquirer, nil)
			if tt.expire {
				session.Expire()
			}

			acq, err := session.Acquire(context.Background(), AcquireRequest{URL: "https://example.com"})
			assert.Nil(t, acq)
			assert.ErrorIs(t, err, ErrSessionAcquisitionFailed)
			assert.Equal(t, tt.want, session.State())
			assert.Zero(t, store.saves)
		})
	}
}

func TestSession_SetAndClear(t *testing.T) {
	store := newMemoryStore()
	session := NewSession("ups", store, nil, nil)

	require.NoError(t, session.Set(context.Background(), Credentials{Cookies: map[string]string{"a": "1"}}))
	assert.Equal(t, Ready, session.State())
	assert.Equal(t, "1", store.credentials(t, "ups").Cookies["a"])

	require.NoError(t, session.Clear(context.Background()))
	assert.Equal(t, NoSession, session.State())
	assert.Empty(t, store.blobs)

	creds, err := session.Credentials(context.Background())
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "no_session", NoSession.String())
	assert.Equal(t, "acquiring", Acquiring.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "expired", Expired.String())
	assert.Equal(t, "SessionState(9)", SessionState(9).String())
}

func TestCredentials_Empty(t *testing.T) {
	var nilCreds *Credentials
	assert.True(t, nilCreds.Empty())
	assert.True(t, (&Credentials{}).Empty())
	assert.False(t, (&Credentials{Headers: map[string]string{"a": "b"}}).Empty())
}
