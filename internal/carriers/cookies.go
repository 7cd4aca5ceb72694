package carriers

import (
	"context"
	"fmt"
	"strings"

	"github.com/steipete/sweetcookie"
)

// sessionDriver is a driver whose session can be seeded from outside
type sessionDriver interface {
	Driver
	Session() *Session
	CookieURL() string
}

// CookieSource says where imported cookies come from. Browsers names local
// browser profiles to read ("chrome", "firefox", ...); File and JSON hold
// exported cookies as a JSON array or {"cookies": [...]}.
type CookieSource struct {
	Browsers []string
	File     string
	JSON     []byte
}

func (s CookieSource) options(cookieURL string) sweetcookie.Options {
	opts := sweetcookie.Options{
		URL:    cookieURL,
		Mode:   sweetcookie.ModeMerge,
		Inline: sweetcookie.InlineCookies{JSON: s.JSON, File: s.File},
	}
	for _, b := range s.Browsers {
		opts.Browsers = append(opts.Browsers, sweetcookie.Browser(strings.ToLower(b)))
	}
	if len(opts.Browsers) == 0 {
		// inline only; an empty list would read every installed browser
		opts.Browsers = []sweetcookie.Browser{sweetcookie.BrowserInline}
	}
	return opts
}

// ImportCookies seeds a carrier session with cookies from a local browser or
// an export file, skipping the headless acquisition. It returns how many
// cookies were stored and any reader warnings.
func (t *Tracker) ImportCookies(ctx context.Context, carrier string, src CookieSource) (int, []string, error) {
	driver, err := t.sessionDriver(carrier)
	if err != nil {
		return 0, nil, err
	}

	result, err := sweetcookie.Get(ctx, src.options(driver.CookieURL()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	if len(result.Cookies) == 0 {
		return 0, result.Warnings, fmt.Errorf("no %s cookies found", carrier)
	}

	creds := Credentials{Cookies: make(map[string]string, len(result.Cookies))}
	for _, c := range result.Cookies {
		creds.Cookies[c.Name] = c.Value
	}

	mu := t.mutexFor(driver)
	mu.Lock()
	defer mu.Unlock()

	if err := driver.Session().Set(ctx, creds); err != nil {
		return 0, result.Warnings, err
	}
	t.logger.Info("Imported cookies", "carrier", carrier, "count", len(creds.Cookies))
	return len(creds.Cookies), result.Warnings, nil
}

// ClearCookies forgets a carrier's stored session
func (t *Tracker) ClearCookies(ctx context.Context, carrier string) error {
	driver, err := t.sessionDriver(carrier)
	if err != nil {
		return err
	}

	mu := t.mutexFor(driver)
	mu.Lock()
	defer mu.Unlock()

	return driver.Session().Clear(ctx)
}

// SessionState reports a carrier's session lifecycle state
func (t *Tracker) SessionState(ctx context.Context, carrier string) (SessionState, error) {
	driver, err := t.sessionDriver(carrier)
	if err != nil {
		return NoSession, err
	}
	// loads stored credentials so the answer reflects disk
	if _, err := driver.Session().Credentials(ctx); err != nil {
		return NoSession, err
	}
	return driver.Session().State(), nil
}

func (t *Tracker) sessionDriver(carrier string) (sessionDriver, error) {
	d, err := t.DriverByName(strings.ToLower(carrier))
	if err != nil {
		return nil, err
	}
	sd, ok := d.(sessionDriver)
	if !ok {
		return nil, fmt.Errorf("carrier %s has no session", carrier)
	}
	return sd, nil
}
