// Package pwdriver implements driver.Factory on top of Playwright.
//
// The factory owns the Playwright process; each Build launches a new
// browser with one context and one page. Chromium can preload unpacked
// extensions, which requires a persistent context in a throwaway profile
// directory. Firefox and WebKit cannot load extensions through Playwright.
package pwdriver

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/commonplayer/pkg/driver"
	"github.com/entrhq/commonplayer/pkg/logging"
)

// Supported browser names.
const (
	BrowserChromium = "chromium"
	BrowserFirefox  = "firefox"
	BrowserWebKit   = "webkit"
)

// Default values for launched browsers
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// Options configures browsers built by a Factory.
type Options struct {
	// Browser is one of chromium, firefox or webkit. Empty means chromium.
	Browser string

	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Extensions are unpacked extension directories (chromium only)
	Extensions []string

	// Timeout is the default timeout for navigation and element operations
	Timeout time.Duration

	// Install downloads Playwright's driver and browsers before first use
	Install bool

	// ViewportWidth and ViewportHeight set the page size; zero means default
	ViewportWidth  int
	ViewportHeight int
}

// Factory launches Playwright browsers.
type Factory struct {
	mu          sync.Mutex
	opts        Options
	playwright  *playwright.Playwright
	initialized bool
	logger      *logging.Logger
}

// NewFactory validates opts and returns a Factory. Playwright itself is
// started lazily by the first Build.
func NewFactory(opts Options, logger *logging.Logger) (*Factory, error) {
	if opts.Browser == "" {
		opts.Browser = BrowserChromium
	}
	switch opts.Browser {
	case BrowserChromium:
	case BrowserFirefox, BrowserWebKit:
		if len(opts.Extensions) > 0 {
			return nil, fmt.Errorf("%w: extensions require chromium, got %s", driver.ErrUnsupported, opts.Browser)
		}
	default:
		return nil, fmt.Errorf("unknown browser %q (must be chromium, firefox or webkit)", opts.Browser)
	}
	for _, ext := range opts.Extensions {
		info, err := os.Stat(ext)
		if err != nil {
			return nil, fmt.Errorf("extension %s: %w", ext, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("extension %s: playwright loads unpacked extension directories only", ext)
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = DefaultViewportWidth
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = DefaultViewportHeight
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Factory{opts: opts, logger: logger}, nil
}

// Options returns the normalized options.
func (f *Factory) Options() Options {
	return f.opts
}

// initialize starts the Playwright driver process. Caller holds f.mu.
func (f *Factory) initialize() error {
	if f.initialized {
		return nil
	}

	// Discard playwright's own output; the server logs what matters
	runOpts := &playwright.RunOptions{
		Browsers: []string{f.opts.Browser},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if f.opts.Install {
		f.logger.Infof("installing playwright driver and %s", f.opts.Browser)
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	f.playwright = pw
	f.initialized = true
	return nil
}

func (f *Factory) browserType() playwright.BrowserType {
	switch f.opts.Browser {
	case BrowserFirefox:
		return f.playwright.Firefox
	case BrowserWebKit:
		return f.playwright.WebKit
	default:
		return f.playwright.Chromium
	}
}

// Build launches a new browser and returns a driver for its page.
func (f *Factory) Build(ctx context.Context) (driver.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.initialize(); err != nil {
		return nil, err
	}

	var (
		d   *Driver
		err error
	)
	if len(f.opts.Extensions) > 0 {
		d, err = f.launchWithExtensions()
	} else {
		d, err = f.launch()
	}
	if err != nil {
		return nil, err
	}

	d.page.SetDefaultTimeout(float64(f.opts.Timeout.Milliseconds()))
	d.timeout = f.opts.Timeout
	f.logger.Debugf("launched %s (headless=%t, extensions=%d)", f.opts.Browser, f.opts.Headless, len(f.opts.Extensions))
	return d, nil
}

func (f *Factory) launch() (*Driver, error) {
	browser, err := f.browserType().Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.opts.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  f.opts.ViewportWidth,
			Height: f.opts.ViewportHeight,
		},
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &Driver{browser: browser, context: bctx, page: page}, nil
}

// launchWithExtensions starts chromium with a persistent context, the
// only mode in which chromium honours --load-extension.
func (f *Factory) launchWithExtensions() (*Driver, error) {
	profileDir, err := os.MkdirTemp("", "commonplayer-profile-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	paths := strings.Join(f.opts.Extensions, ",")
	bctx, err := f.playwright.Chromium.LaunchPersistentContext(profileDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(f.opts.Headless),
		Viewport: &playwright.Size{
			Width:  f.opts.ViewportWidth,
			Height: f.opts.ViewportHeight,
		},
		Args: []string{
			"--disable-extensions-except=" + paths,
			"--load-extension=" + paths,
		},
	})
	if err != nil {
		os.RemoveAll(profileDir)
		return nil, fmt.Errorf("failed to launch browser with extensions: %w", err)
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = bctx.NewPage()
		if err != nil {
			bctx.Close()
			os.RemoveAll(profileDir)
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}

	return &Driver{context: bctx, page: page, profileDir: profileDir}, nil
}

// Shutdown stops the Playwright driver process. Drivers built earlier must
// be quit first.
func (f *Factory) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized && f.playwright != nil {
		if err := f.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		f.initialized = false
		f.playwright = nil
	}
	return nil
}
