package carriers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// HeadlessAcquirer drives chrome to obtain carrier session cookies
type HeadlessAcquirer struct {
	pool    *BrowserPool
	options *HeadlessOptions
	logger  *slog.Logger
}

// NewHeadlessAcquirer creates an acquirer backed by a browser pool
func NewHeadlessAcquirer(options *HeadlessOptions, logger *slog.Logger) *HeadlessAcquirer {
	if options == nil {
		options = DefaultHeadlessOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HeadlessAcquirer{
		pool:    NewBrowserPool(DefaultBrowserPoolConfig(), options, logger),
		options: options,
		logger:  logger,
	}
}

// Acquire opens req.URL in a fresh tab, waits for the ready markers and
// harvests the page's cookies and rendered content.
func (h *HeadlessAcquirer) Acquire(ctx context.Context, req AcquireRequest) (*Acquisition, error) {
	var acq *Acquisition

	err := h.pool.Do(ctx, func(browserCtx context.Context) error {
		tabCtx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()

		var (
			mu       sync.Mutex
			captured map[string]string
		)
		if req.CaptureHeaders != "" {
			chromedp.ListenTarget(tabCtx, func(ev interface{}) {
				e, ok := ev.(*network.EventRequestWillBeSent)
				if !ok || !strings.Contains(e.Request.URL, req.CaptureHeaders) {
					return
				}
				headers := make(map[string]string, len(e.Request.Headers))
				for k, v := range e.Request.Headers {
					headers[k] = fmt.Sprint(v)
				}
				mu.Lock()
				captured = headers
				mu.Unlock()
			})
		}

		err := chromedp.Run(tabCtx,
			network.Enable(),
			network.ClearBrowserCookies(),
			chromedp.Navigate(req.URL),
		)
		if err != nil {
			return fmt.Errorf("failed to navigate to %s: %w", req.URL, err)
		}

		if err := h.waitReady(tabCtx, req); err != nil {
			return err
		}

		var (
			cookies []*network.Cookie
			content string
		)
		err = chromedp.Run(tabCtx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				var err error
				cookies, err = network.GetCookies().WithURLs([]string{req.URL}).Do(ctx)
				return err
			}),
			chromedp.OuterHTML("html", &content, chromedp.ByQuery),
		)
		if err != nil {
			return fmt.Errorf("failed to harvest session: %w", err)
		}

		creds := Credentials{Cookies: make(map[string]string, len(cookies))}
		for _, c := range cookies {
			creds.Cookies[c.Name] = c.Value
		}
		mu.Lock()
		creds.Headers = captured
		mu.Unlock()

		acq = &Acquisition{Credentials: creds, Content: content}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.Debug("Browser session harvested", "url", req.URL, "cookies", len(acq.Credentials.Cookies))
	return acq, nil
}

// waitReady waits, within req.ReadyTimeout, for the ready selector and then
// the ready cookie
func (h *HeadlessAcquirer) waitReady(ctx context.Context, req AcquireRequest) error {
	timeout := req.ReadyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if req.ReadySelector != "" {
		if err := chromedp.Run(waitCtx, chromedp.WaitReady(req.ReadySelector, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("waiting for %s: %w", req.ReadySelector, err)
		}
	}

	if req.ReadyCookie == "" {
		return nil
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		var found bool
		err := chromedp.Run(waitCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := network.GetCookies().WithURLs([]string{req.URL}).Do(ctx)
			if err != nil {
				return err
			}
			for _, c := range cookies {
				if c.Name == req.ReadyCookie {
					found = true
				}
			}
			return nil
		}))
		if err != nil {
			return fmt.Errorf("waiting for cookie %s: %w", req.ReadyCookie, err)
		}
		if found {
			return nil
		}

		select {
		case <-waitCtx.Done():
			return fmt.Errorf("waiting for cookie %s: %w", req.ReadyCookie, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// Close shuts down the browser pool
func (h *HeadlessAcquirer) Close() error {
	stats := h.pool.Stats()
	h.logger.Debug("Closing browser pool", "active", stats.Active, "idle", stats.Idle)
	return h.pool.Close()
}
