// Package controller implements per-site page controllers and the registry
// that maps a page's host to the controller variant serving it.
//
// A controller is bound to one driver at construction and exposes a fixed
// table of named actions. The command server owns at most one controller
// at a time and replaces it whenever navigation lands on a different
// site family.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/commonplayer/pkg/driver"
	"github.com/entrhq/commonplayer/pkg/logging"
)

var (
	// ErrUnknownAction is returned by Do for names outside the action table.
	ErrUnknownAction = errors.New("unknown action")
	// ErrElementMissing is returned when the element an action drives is not on the page.
	ErrElementMissing = errors.New("page element missing")
	// ErrPlayStateUnknown is returned by play and pause when the player does
	// not expose whether it is playing.
	ErrPlayStateUnknown = errors.New("play state unknown")
	// ErrNoConstructor is returned by New for kinds without a registered constructor.
	ErrNoConstructor = errors.New("no controller for kind")
)

// Kind identifies a controller variant.
type Kind int

const (
	// KindNone means no controller serves the page.
	KindNone Kind = iota
	// KindMedia is the video site controller.
	KindMedia
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMedia:
		return "media"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Controller drives one site through a fixed set of named actions.
type Controller interface {
	Kind() Kind
	// Actions lists the action names Do accepts, sorted.
	Actions() []string
	// Do performs the named action on the live page.
	Do(ctx context.Context, action string) error
}

// Rebinder is implemented by controllers that cache page elements. The
// server calls Rebind when navigation stays on the controller's site, so
// the same instance keeps serving the new page.
type Rebinder interface {
	Rebind(ctx context.Context) error
}

// Default timeouts for construction-time waits.
const (
	DefaultConsentTimeout   = 10 * time.Second
	DefaultComponentTimeout = 5 * time.Second
)

// Options configures controller construction.
type Options struct {
	// ConsentTimeout bounds the best-effort consent overlay dismissal.
	ConsentTimeout time.Duration
	// ComponentTimeout bounds the wait for player controls.
	ComponentTimeout time.Duration
	Logger           *logging.Logger
}

// DefaultOptions returns Options with the default timeouts and a discarding logger.
func DefaultOptions() Options {
	return Options{
		ConsentTimeout:   DefaultConsentTimeout,
		ComponentTimeout: DefaultComponentTimeout,
		Logger:           logging.Discard(),
	}
}

func (o Options) withDefaults() Options {
	if o.ConsentTimeout < 0 {
		o.ConsentTimeout = 0
	}
	if o.ComponentTimeout < 0 {
		o.ComponentTimeout = 0
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

// Constructor builds a controller bound to drv.
type Constructor func(ctx context.Context, drv driver.Driver, opts Options) (Controller, error)

var constructors = map[Kind]Constructor{
	KindMedia: func(ctx context.Context, drv driver.Driver, opts Options) (Controller, error) {
		m, err := NewMedia(ctx, drv, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	},
}

// New constructs the controller variant for kind.
func New(ctx context.Context, kind Kind, drv driver.Driver, opts Options) (Controller, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoConstructor, kind)
	}
	return ctor(ctx, drv, opts.withDefaults())
}
