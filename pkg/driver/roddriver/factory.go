// Package roddriver implements driver.Factory on top of go-rod, driving a
// locally launched Chrome or Chromium over the DevTools protocol.
package roddriver

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/entrhq/commonplayer/pkg/driver"
	"github.com/entrhq/commonplayer/pkg/logging"
)

// DefaultTimeout bounds navigation when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures browsers built by a Factory.
type Options struct {
	// Bin is the browser executable. Empty lets rod find or download one.
	Bin string

	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Extensions are unpacked extension directories
	Extensions []string

	// Flags are extra command line switches, with or without leading dashes
	Flags []string

	// Timeout bounds each navigation
	Timeout time.Duration
}

// Factory launches a fresh browser process per Build.
type Factory struct {
	opts   Options
	logger *logging.Logger
}

// NewFactory validates opts and returns a Factory.
func NewFactory(opts Options, logger *logging.Logger) (*Factory, error) {
	for _, ext := range opts.Extensions {
		info, err := os.Stat(ext)
		if err != nil {
			return nil, fmt.Errorf("extension %s: %w", ext, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("extension %s: chrome loads unpacked extension directories only", ext)
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
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

// newLauncher builds the launcher for one browser process.
func (f *Factory) newLauncher() *launcher.Launcher {
	l := launcher.New().Headless(f.opts.Headless)
	if f.opts.Bin != "" {
		l = l.Bin(f.opts.Bin)
	}
	if len(f.opts.Extensions) > 0 {
		paths := strings.Join(f.opts.Extensions, ",")
		l = l.Set(flags.Flag("disable-extensions-except"), paths).
			Set(flags.Flag("load-extension"), paths)
	}
	for _, rawFlag := range f.opts.Flags {
		name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

// Build launches a browser, connects to it and opens a blank page.
func (f *Factory) Build(ctx context.Context) (driver.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := f.newLauncher()
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("open page: %w", err)
	}

	f.logger.Debugf("launched chrome at %s (headless=%t, extensions=%d)", controlURL, f.opts.Headless, len(f.opts.Extensions))
	return &Driver{
		launcher: l,
		browser:  browser,
		page:     page,
		timeout:  f.opts.Timeout,
	}, nil
}
