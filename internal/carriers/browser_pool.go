package carriers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// ErrPoolClosed is returned by Get once the pool has been closed
var ErrPoolClosed = errors.New("browser pool is closed")

// BrowserPool keeps warm chrome processes for session acquisition. Idle
// browsers are reused most recently returned first.
type BrowserPool struct {
	config  *BrowserPoolConfig
	options *HeadlessOptions
	logger  *slog.Logger

	// start runs the first actions on a new browser context, which
	// launches the chrome process
	start func(ctx context.Context, actions ...chromedp.Action) error

	mu     sync.Mutex
	idle   []*BrowserInstance
	busy   int
	closed bool
	stop   chan struct{}
}

// ValidateChromeAvailable starts a throwaway headless browser to check that
// Chrome or Chromium can run on this machine.
func ValidateChromeAvailable() error {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(),
		chromedp.Headless,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	probeCtx, probeCancel := context.WithTimeout(ctx, 10*time.Second)
	defer probeCancel()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		return fmt.Errorf("Chrome/Chromium not available or not working: %w", err)
	}
	return nil
}

// NewBrowserPool creates a pool and starts its idle reaper
func NewBrowserPool(config *BrowserPoolConfig, options *HeadlessOptions, logger *slog.Logger) *BrowserPool {
	if config == nil {
		config = DefaultBrowserPoolConfig()
	}
	if options == nil {
		options = DefaultHeadlessOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool := &BrowserPool{
		config:  config,
		options: options,
		logger:  logger,
		start:   chromedp.Run,
		stop:    make(chan struct{}),
	}
	go pool.reapLoop()
	return pool
}

// Get hands out an idle browser or launches a new one while under
// MaxBrowsers. Launching happens outside the lock.
func (p *BrowserPool) Get(ctx context.Context) (*BrowserInstance, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		instance := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.busy++
		p.mu.Unlock()
		return instance, nil
	}
	if p.busy >= p.config.MaxBrowsers {
		busy := p.busy
		p.mu.Unlock()
		return nil, fmt.Errorf("browser pool exhausted: %d instances in use", busy)
	}
	p.busy++
	p.mu.Unlock()

	instance, err := p.launch(ctx)
	if err != nil {
		p.mu.Lock()
		p.busy--
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to create browser instance: %w", err)
	}
	p.logger.Debug("Started browser", "max", p.config.MaxBrowsers)
	return instance, nil
}

// Put gives a browser back. After Close the browser is shut down instead.
func (p *BrowserPool) Put(instance *BrowserInstance) error {
	if instance == nil {
		return fmt.Errorf("cannot return nil instance to pool")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.busy--
	if p.closed {
		instance.shutdown()
		return nil
	}
	instance.lastUsed = time.Now()
	p.idle = append(p.idle, instance)
	return nil
}

// Close shuts down idle browsers and stops the reaper. Browsers still in use
// are shut down when they are returned.
func (p *BrowserPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, instance := range p.idle {
		instance.shutdown()
	}
	p.idle = nil
	close(p.stop)
	return nil
}

// Stats returns current pool usage
func (p *BrowserPool) Stats() BrowserPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return BrowserPoolStats{
		Active: p.busy,
		Idle:   len(p.idle),
		Total:  p.busy + len(p.idle),
	}
}

// Do runs fn against a pooled browser. The context passed to fn ends at the
// earlier of ctx's deadline and the configured timeout, and is cancelled
// with ctx.
func (p *BrowserPool) Do(ctx context.Context, fn func(context.Context) error) error {
	instance, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer p.Put(instance)

	timeout := p.options.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	runCtx, cancel := context.WithTimeout(instance.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return fn(runCtx)
}

func (p *BrowserPool) launch(ctx context.Context) (*BrowserInstance, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), p.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	instance := &BrowserInstance{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
	}

	// chrome lives as long as the context of the first Run, so start it on
	// browserCtx and let the caller's ctx abort only the startup itself
	abort := context.AfterFunc(ctx, instance.shutdown)
	err := p.start(browserCtx, chromedp.Navigate("about:blank"))
	if !abort() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		instance.shutdown()
		return nil, err
	}
	return instance, nil
}

func (p *BrowserPool) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			p.reap(now)
		case <-p.stop:
			return
		}
	}
}

// reap shuts down idle browsers past IdleTimeout and any beyond
// MaxIdleBrowsers. idle is ordered oldest first, so the newest are kept.
func (p *BrowserPool) reap(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	var kept []*BrowserInstance
	for i := len(p.idle) - 1; i >= 0; i-- {
		instance := p.idle[i]
		if len(kept) < p.config.MaxIdleBrowsers && now.Sub(instance.lastUsed) < p.config.IdleTimeout {
			kept = append([]*BrowserInstance{instance}, kept...)
			continue
		}
		instance.shutdown()
	}
	if reaped := len(p.idle) - len(kept); reaped > 0 {
		p.logger.Debug("Reaped idle browsers", "count", reaped)
	}
	p.idle = kept
}

func (p *BrowserPool) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.UserAgent(p.options.UserAgent),
		chromedp.WindowSize(int(p.options.ViewportWidth), int(p.options.ViewportHeight)),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		// anti-bot scripts check this
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
	}
	if p.options.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if p.options.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if p.options.DebugMode {
		opts = append(opts, chromedp.Flag("enable-logging", true), chromedp.Flag("log-level", "0"))
	}
	return opts
}
