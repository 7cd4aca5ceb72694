package carriers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SessionState is the lifecycle of a carrier session
type SessionState int

const (
	// NoSession means no credentials have been loaded or acquired yet
	NoSession SessionState = iota
	// Acquiring means the browser fallback is running
	Acquiring
	// Ready means credentials are available for direct requests
	Ready
	// Expired means the carrier rejected the current credentials
	Expired
)

func (s SessionState) String() string {
	switch s {
	case NoSession:
		return "no_session"
	case Acquiring:
		return "acquiring"
	case Ready:
		return "ready"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Credentials is the cookie and header bag replayed on direct requests
type Credentials struct {
	Cookies map[string]string `json:"cookies"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Empty reports whether there is nothing to replay
func (c *Credentials) Empty() bool {
	return c == nil || (len(c.Cookies) == 0 && len(c.Headers) == 0)
}

// CredentialStore persists opaque credential blobs by carrier key. Load
// returns nil when nothing is stored.
type CredentialStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
}

// AcquireRequest describes one browser acquisition
type AcquireRequest struct {
	// URL is the page to open
	URL string
	// ReadySelector must appear in the DOM before cookies are harvested
	ReadySelector string
	// ReadyCookie, when set, must also be present before harvesting
	ReadyCookie string
	// ReadyTimeout bounds the wait for the ready markers
	ReadyTimeout time.Duration
	// CaptureHeaders selects outbound requests, by URL substring, whose
	// headers are recorded
	CaptureHeaders string
}

// Acquisition is what a browser run produced
type Acquisition struct {
	Credentials Credentials
	// Content is the rendered page, empty when the acquirer does not keep it
	Content string
}

// Acquirer obtains credentials by driving a real browser
type Acquirer interface {
	Acquire(ctx context.Context, req AcquireRequest) (*Acquisition, error)
}

// AcquireHook is called when a browser acquisition starts. The returned
// function, if any, is called when it ends.
type AcquireHook func(carrier string) func()

// Session owns one carrier's credentials for the life of the process.
// Credentials are loaded lazily from the store, reused across calls and
// replaced only when the carrier rejects them.
type Session struct {
	carrier  string
	store    CredentialStore
	acquirer Acquirer
	logger   *slog.Logger
	hook     AcquireHook

	mu     sync.Mutex
	loaded bool
	state  SessionState
	creds  *Credentials
}

// NewSession creates a session for carrier. store and acquirer may be nil;
// without a store nothing survives the process and without an acquirer the
// browser fallback always fails.
func NewSession(carrier string, store CredentialStore, acquirer Acquirer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		carrier:  carrier,
		store:    store,
		acquirer: acquirer,
		logger:   logger,
		state:    NoSession,
	}
}

// SetAcquireHook installs a hook run around browser acquisitions
func (s *Session) SetAcquireHook(hook AcquireHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// State returns the current lifecycle state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Credentials returns the current credentials, loading them from the store
// on first use. It returns nil when there are none or the session expired.
func (s *Session) Credentials(ctx context.Context) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	if s.state != Ready {
		return nil, nil
	}
	return s.creds.clone(), nil
}

func (s *Session) loadLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	s.loaded = true

	if s.store == nil {
		return nil
	}

	blob, err := s.store.Load(ctx, s.carrier)
	if err != nil {
		return fmt.Errorf("failed to load %s credentials: %w", s.carrier, err)
	}
	if len(blob) == 0 {
		return nil
	}

	var creds Credentials
	if err := json.Unmarshal(blob, &creds); err != nil {
		s.logger.Warn("Ignoring unreadable stored credentials", "carrier", s.carrier, "error", err)
		return nil
	}
	if creds.Empty() {
		return nil
	}

	s.creds = &creds
	s.transitionLocked(Ready)
	return nil
}

// Expire records that the carrier rejected the current credentials. The next
// Credentials call returns nil until new ones are set or acquired.
func (s *Session) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.transitionLocked(Expired)
}

// Set replaces the credentials and persists them
func (s *Session) Set(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	return s.storeLocked(ctx, &creds)
}

// Clear drops the credentials from memory and from the store
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = true
	s.creds = nil
	s.transitionLocked(NoSession)

	if s.store == nil {
		return nil
	}
	if err := s.store.Delete(ctx, s.carrier); err != nil {
		return fmt.Errorf("failed to delete %s credentials: %w", s.carrier, err)
	}
	return nil
}

// Acquire runs the browser fallback, persists what it harvested and returns
// it. There is no retry; any failure is a session acquisition failure.
func (s *Session) Acquire(ctx context.Context, req AcquireRequest) (*Acquisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = true
	previous := s.state
	s.transitionLocked(Acquiring)

	if s.acquirer == nil {
		s.transitionLocked(fallbackState(previous))
		return nil, sessionAcquisitionFailed(s.carrier, "browser acquisition is disabled", nil)
	}

	s.logger.Info("Acquiring session with headless browser", "carrier", s.carrier, "url", req.URL)
	if s.hook != nil {
		if done := s.hook(s.carrier); done != nil {
			defer done()
		}
	}

	acq, err := s.acquirer.Acquire(ctx, req)
	if err != nil {
		s.transitionLocked(fallbackState(previous))
		return nil, sessionAcquisitionFailed(s.carrier, "page did not become ready", err)
	}

	if err := s.storeLocked(ctx, &acq.Credentials); err != nil {
		return nil, err
	}
	return acq, nil
}

func (s *Session) storeLocked(ctx context.Context, creds *Credentials) error {
	s.creds = creds.clone()
	s.transitionLocked(Ready)

	if s.store == nil {
		return nil
	}

	blob, err := json.Marshal(s.creds)
	if err != nil {
		return fmt.Errorf("failed to encode %s credentials: %w", s.carrier, err)
	}
	if err := s.store.Save(ctx, s.carrier, blob); err != nil {
		return fmt.Errorf("failed to save %s credentials: %w", s.carrier, err)
	}
	return nil
}

func (s *Session) transitionLocked(next SessionState) {
	if s.state == next {
		return
	}
	s.logger.Debug("Session state", "carrier", s.carrier, "from", s.state, "to", next)
	s.state = next
}

func fallbackState(previous SessionState) SessionState {
	if previous == NoSession {
		return NoSession
	}
	return Expired
}

func (c *Credentials) clone() *Credentials {
	if c == nil {
		return nil
	}
	out := &Credentials{
		Cookies: make(map[string]string, len(c.Cookies)),
	}
	for k, v := range c.Cookies {
		out.Cookies[k] = v
	}
	if len(c.Headers) > 0 {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	return out
}
