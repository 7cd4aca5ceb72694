package carriers

import (
	"context"
	"time"
)

// HeadlessOptions configures the chrome processes used for acquisition
type HeadlessOptions struct {
	// Headless hides the browser window; false is useful when a challenge
	// needs to be watched
	Headless bool
	// Timeout bounds a whole acquisition, navigation included
	Timeout time.Duration
	// DisableImages skips image loads on carrier pages
	DisableImages bool
	UserAgent     string
	// viewport size in CSS pixels
	ViewportWidth  int64
	ViewportHeight int64
	// DebugMode turns on chrome's own logging
	DebugMode bool
}

// DefaultHeadlessOptions runs a headless desktop-sized browser with the
// same user agent as direct requests
func DefaultHeadlessOptions() *HeadlessOptions {
	return &HeadlessOptions{
		Headless:       true,
		Timeout:        60 * time.Second,
		DisableImages:  true,
		UserAgent:      DefaultUserAgent,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
	}
}

// BrowserPoolConfig sizes a BrowserPool
type BrowserPoolConfig struct {
	// MaxBrowsers caps browsers handed out at once
	MaxBrowsers int
	// IdleTimeout is how long a returned browser may sit unused
	IdleTimeout time.Duration
	// MaxIdleBrowsers caps browsers kept warm between acquisitions
	MaxIdleBrowsers int
}

// DefaultBrowserPoolConfig allows one browser per carrier, since
// acquisitions are serialized per carrier
func DefaultBrowserPoolConfig() *BrowserPoolConfig {
	return &BrowserPoolConfig{
		MaxBrowsers:     2,
		IdleTimeout:     5 * time.Minute,
		MaxIdleBrowsers: 1,
	}
}

// BrowserInstance is one chrome process owned by a BrowserPool
type BrowserInstance struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	lastUsed    time.Time
}

func (b *BrowserInstance) shutdown() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
}

// BrowserPoolStats counts browsers by state
type BrowserPoolStats struct {
	Active int `json:"active"`
	Idle   int `json:"idle"`
	Total  int `json:"total"`
}
