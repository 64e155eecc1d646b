// Package driver defines the narrow browser automation surface the
// command server depends on.
//
// A Factory launches browsers; a Driver is one running browser with a
// single active page. Page controllers locate elements through Find and
// interact with them through Element. Implementations live in the
// pwdriver and roddriver subpackages; drivertest provides an in-memory fake.
//
// All calls are blocking and perform no internal retry. Find never waits
// for an element to appear: callers that need to wait use WaitFor.
package driver

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoSuchElement is returned by Find when nothing matches the selector.
	ErrNoSuchElement = errors.New("no such element")
	// ErrQuit is returned by calls made on a driver after Quit.
	ErrQuit = errors.New("driver has quit")
	// ErrUnsupported is returned for selector strategies or options a backend lacks.
	ErrUnsupported = errors.New("unsupported by driver backend")
)

// Factory creates browser drivers. It is configured once at startup and
// may be asked to build many drivers over the process lifetime.
type Factory interface {
	Build(ctx context.Context) (Driver, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context) (Driver, error)

// Build calls f(ctx).
func (f FactoryFunc) Build(ctx context.Context) (Driver, error) {
	return f(ctx)
}

// Driver is a running browser instance.
type Driver interface {
	// Navigate loads url in the active page.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the URL of the active page.
	CurrentURL(ctx context.Context) (string, error)
	// Find returns the first element matching sel, or ErrNoSuchElement.
	Find(ctx context.Context, sel Selector) (Element, error)
	// Quit terminates the browser. Further calls return ErrQuit.
	Quit() error
}

// Element is a handle to a live page element.
type Element interface {
	Click(ctx context.Context) error
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// Find looks up a descendant element, or returns ErrNoSuchElement.
	Find(ctx context.Context, sel Selector) (Element, error)
}

// By is an element location strategy.
type By string

const (
	ByID       By = "id"
	ByClass    By = "class"
	ByCSS      By = "css"
	ByTag      By = "tag"
	ByLinkText By = "link_text"
)

// Selector addresses an element by strategy and value.
type Selector struct {
	By    By
	Value string
}

// ID selects by element id.
func ID(id string) Selector { return Selector{By: ByID, Value: id} }

// Class selects by a single class name.
func Class(name string) Selector { return Selector{By: ByClass, Value: name} }

// CSS selects by CSS selector.
func CSS(css string) Selector { return Selector{By: ByCSS, Value: css} }

// Tag selects by tag name.
func Tag(name string) Selector { return Selector{By: ByTag, Value: name} }

// LinkText selects an anchor whose visible text equals text.
func LinkText(text string) Selector { return Selector{By: ByLinkText, Value: text} }

func (s Selector) String() string {
	return fmt.Sprintf("%s=%q", s.By, s.Value)
}

// CSSSelector converts id, class, css and tag selectors to CSS. Link text
// has no CSS equivalent and returns ErrUnsupported.
func (s Selector) CSSSelector() (string, error) {
	switch s.By {
	case ByID:
		return "#" + cssEscape(s.Value), nil
	case ByClass:
		return "." + cssEscape(s.Value), nil
	case ByCSS, ByTag:
		return s.Value, nil
	default:
		return "", fmt.Errorf("%w: %s has no css form", ErrUnsupported, s)
	}
}

// cssEscape escapes characters that would change the meaning of an id or
// class selector.
func cssEscape(ident string) string {
	out := make([]byte, 0, len(ident))
	for i := 0; i < len(ident); i++ {
		c := ident[i]
		switch {
		case c >= '0' && c <= '9' && i == 0:
			out = append(out, '\\', '3', c, ' ')
		case c == '-' || c == '_',
			c >= '0' && c <= '9',
			c >= 'a' && c <= 'z',
			c >= 'A' && c <= 'Z',
			c >= 0x80:
			out = append(out, c)
		default:
			out = append(out, '\\', c)
		}
	}
	return string(out)
}
