package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/commonplayer/pkg/driver"
)

// Driver is a Playwright browser with a single active page.
type Driver struct {
	mu sync.Mutex

	// browser is nil for persistent contexts, which own their browser
	browser    playwright.Browser
	context    playwright.BrowserContext
	page       playwright.Page
	profileDir string
	timeout    time.Duration
	quit       bool
}

var _ driver.Driver = (*Driver)(nil)

func (d *Driver) check(ctx context.Context) error {
	if d.quit {
		return driver.ErrQuit
	}
	return ctx.Err()
}

// Navigate loads url and waits for the load event.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx); err != nil {
		return err
	}

	waitUntil := playwright.WaitUntilState("load")
	opts := playwright.PageGotoOptions{WaitUntil: &waitUntil}
	if d.timeout > 0 {
		timeout := float64(d.timeout.Milliseconds())
		opts.Timeout = &timeout
	}

	if _, err := d.page.Goto(url, opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// CurrentURL returns the page URL.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx); err != nil {
		return "", err
	}
	return d.page.URL(), nil
}

// Find returns the first element matching sel without waiting.
func (d *Driver) Find(ctx context.Context, sel driver.Selector) (driver.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	query, err := selectorString(sel)
	if err != nil {
		return nil, err
	}
	handle, err := d.page.QuerySelector(query)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: %s", driver.ErrNoSuchElement, sel)
	}
	return &element{owner: d, handle: handle}, nil
}

// Quit closes the page, context and browser, then removes any temporary
// profile directory.
func (d *Driver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return driver.ErrQuit
	}
	d.quit = true

	var errs []error
	if err := d.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.context.Close(); err != nil {
		errs = append(errs, err)
	}
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.profileDir != "" {
		if err := os.RemoveAll(d.profileDir); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing browser: %w", errors.Join(errs...))
	}
	return nil
}

// selectorString maps a driver selector to Playwright selector syntax.
func selectorString(sel driver.Selector) (string, error) {
	if sel.By == driver.ByLinkText {
		return fmt.Sprintf("a:text-is(%q)", sel.Value), nil
	}
	return sel.CSSSelector()
}

type element struct {
	owner  *Driver
	handle playwright.ElementHandle
}

func (e *element) Click(ctx context.Context) error {
	e.owner.mu.Lock()
	defer e.owner.mu.Unlock()
	if err := e.owner.check(ctx); err != nil {
		return err
	}
	if err := e.handle.Click(); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	e.owner.mu.Lock()
	defer e.owner.mu.Unlock()
	if err := e.owner.check(ctx); err != nil {
		return "", false, err
	}

	// GetAttribute cannot tell a missing attribute from an empty one
	value, err := e.handle.Evaluate("(el, name) => el.getAttribute(name)", name)
	if err != nil {
		return "", false, fmt.Errorf("reading attribute %s: %w", name, err)
	}
	if value == nil {
		return "", false, nil
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Sprint(value), true, nil
	}
	return s, true, nil
}

func (e *element) Find(ctx context.Context, sel driver.Selector) (driver.Element, error) {
	e.owner.mu.Lock()
	defer e.owner.mu.Unlock()
	if err := e.owner.check(ctx); err != nil {
		return nil, err
	}

	query, err := selectorString(sel)
	if err != nil {
		return nil, err
	}
	handle, err := e.handle.QuerySelector(query)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: %s", driver.ErrNoSuchElement, sel)
	}
	return &element{owner: e.owner, handle: handle}, nil
}
