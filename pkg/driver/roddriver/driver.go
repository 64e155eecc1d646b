package roddriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/entrhq/commonplayer/pkg/driver"
)

// Driver is a rod browser with a single active page.
type Driver struct {
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
	quit     bool
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

	page, release := withTimeout(ctx, d.page, d.timeout)
	defer release()
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for load: %w", err)
	}
	return nil
}

// withTimeout binds p to ctx, bounded by timeout when it is positive.
// release stops the timeout's timer and must be called once p is done.
func withTimeout(ctx context.Context, p *rod.Page, timeout time.Duration) (page *rod.Page, release func()) {
	if timeout <= 0 {
		return p.Context(ctx), func() {}
	}
	page = p.Context(ctx).Timeout(timeout)
	return page, func() { page.CancelTimeout() }
}

// CurrentURL returns the page URL as reported by the target info.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx); err != nil {
		return "", err
	}

	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("reading page info: %w", err)
	}
	return info.URL, nil
}

// Find returns the first element matching sel without waiting.
func (d *Driver) Find(ctx context.Context, sel driver.Selector) (driver.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	el, err := first(sel, d.page.Context(ctx).Elements)
	if err != nil {
		return nil, err
	}
	return &element{owner: d, el: el}, nil
}

// Quit closes the browser and removes the launcher's profile directory.
func (d *Driver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return driver.ErrQuit
	}
	d.quit = true

	var errs []error
	if err := d.browser.Close(); err != nil {
		errs = append(errs, err)
		d.launcher.Kill()
	}
	d.launcher.Cleanup()

	if len(errs) > 0 {
		return fmt.Errorf("errors closing browser: %w", errors.Join(errs...))
	}
	return nil
}

// first runs the non-waiting query for sel and returns the first match.
// Link text has no CSS form, so anchors are filtered on their visible text.
func first(sel driver.Selector, query func(string) (rod.Elements, error)) (*rod.Element, error) {
	if sel.By == driver.ByLinkText {
		anchors, err := query("a")
		if err != nil {
			return nil, fmt.Errorf("selector query failed: %w", err)
		}
		for _, a := range anchors {
			text, err := a.Text()
			if err != nil {
				continue
			}
			if strings.TrimSpace(text) == sel.Value {
				return a, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", driver.ErrNoSuchElement, sel)
	}

	css, err := sel.CSSSelector()
	if err != nil {
		return nil, err
	}
	matches, err := query(css)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	if matches.Empty() {
		return nil, fmt.Errorf("%w: %s", driver.ErrNoSuchElement, sel)
	}
	return matches.First(), nil
}

type element struct {
	owner *Driver
	el    *rod.Element
}

func (e *element) Click(ctx context.Context) error {
	e.owner.mu.Lock()
	defer e.owner.mu.Unlock()
	if err := e.owner.check(ctx); err != nil {
		return err
	}
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
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

	value, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("reading attribute %s: %w", name, err)
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (e *element) Find(ctx context.Context, sel driver.Selector) (driver.Element, error) {
	e.owner.mu.Lock()
	defer e.owner.mu.Unlock()
	if err := e.owner.check(ctx); err != nil {
		return nil, err
	}

	el, err := first(sel, e.el.Context(ctx).Elements)
	if err != nil {
		return nil, err
	}
	return &element{owner: e.owner, el: el}, nil
}
