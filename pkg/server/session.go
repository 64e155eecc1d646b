package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/commonplayer/pkg/controller"
	"github.com/entrhq/commonplayer/pkg/driver"
	"github.com/entrhq/commonplayer/pkg/logging"
)

var (
	// ErrNoDriver is returned by operations that need a running browser.
	ErrNoDriver = errors.New("no browser running")
	// ErrNoController is returned by Control when no controller serves the current page.
	ErrNoController = errors.New("no controller for current page")
)

// State is the session's position in its lifecycle.
type State int

const (
	StateNoDriver State = iota
	StateDriverNoController
	StateDriverWithController
)

func (s State) String() string {
	switch s {
	case StateNoDriver:
		return "NO_DRIVER"
	case StateDriverNoController:
		return "DRIVER_NO_CONTROLLER"
	case StateDriverWithController:
		return "DRIVER_WITH_CONTROLLER"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session owns one browser driver and at most one page controller.
//
// A controller only exists while a driver does, and always matches the
// site family of the last successful navigation. Session is not safe for
// concurrent use; the server drives it from a single goroutine.
type Session struct {
	factory  driver.Factory
	registry *controller.Registry
	ctrlOpts controller.Options
	logger   *logging.Logger

	driver driver.Driver
	ctrl   controller.Controller
}

// NewSession returns a session in StateNoDriver. A nil registry means
// controller.DefaultRegistry.
func NewSession(factory driver.Factory, registry *controller.Registry, ctrlOpts controller.Options, logger *logging.Logger) *Session {
	if registry == nil {
		registry = controller.DefaultRegistry()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if ctrlOpts.Logger == nil {
		ctrlOpts.Logger = logger.Named("controller")
	}
	return &Session{
		factory:  factory,
		registry: registry,
		ctrlOpts: ctrlOpts,
		logger:   logger,
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	switch {
	case s.driver == nil:
		return StateNoDriver
	case s.ctrl == nil:
		return StateDriverNoController
	default:
		return StateDriverWithController
	}
}

// Controller returns the active controller, or nil.
func (s *Session) Controller() controller.Controller {
	return s.ctrl
}

// Start launches a browser unless one is already running.
func (s *Session) Start(ctx context.Context) error {
	if s.driver != nil {
		s.logger.Debugf("start: browser already running")
		return nil
	}
	drv, err := s.factory.Build(ctx)
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	s.driver = drv
	s.ctrl = nil
	s.logger.Infof("browser started")
	return nil
}

// Exit quits the browser if one is running and drops the controller. The
// session is left in StateNoDriver even when quitting fails; the quit
// error is returned for logging.
func (s *Session) Exit() error {
	s.ctrl = nil
	if s.driver == nil {
		s.logger.Debugf("exit: no browser running")
		return nil
	}
	drv := s.driver
	s.driver = nil
	if err := drv.Quit(); err != nil {
		return fmt.Errorf("quitting browser: %w", err)
	}
	s.logger.Infof("browser stopped")
	return nil
}

// CurrentURL returns the URL of the browser's page.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	if s.driver == nil {
		return "", ErrNoDriver
	}
	return s.driver.CurrentURL(ctx)
}

// GoTo navigates the browser to url when one is running, then brings the
// controller in line with url's site. A navigation failure is returned
// without touching the controller.
func (s *Session) GoTo(ctx context.Context, url string) error {
	if s.driver != nil {
		if err := s.driver.Navigate(ctx, url); err != nil {
			return fmt.Errorf("navigating to %s: %w", url, err)
		}
	} else {
		s.logger.Debugf("go_to %s: no browser running", url)
	}
	s.updateController(ctx, url)
	return nil
}

func (s *Session) updateController(ctx context.Context, url string) {
	kind, ok := s.registry.Lookup(url)
	if !ok {
		if s.ctrl != nil {
			s.logger.Debugf("dropping %s controller for %s", s.ctrl.Kind(), url)
		}
		s.ctrl = nil
		return
	}

	if s.driver == nil {
		s.ctrl = nil
		return
	}

	if s.ctrl != nil && s.ctrl.Kind() == kind {
		r, ok := s.ctrl.(controller.Rebinder)
		if !ok {
			return
		}
		// An interrupted rebind leaves the controller looking up
		// elements on demand.
		if err := r.Rebind(ctx); err != nil {
			s.logger.Warnf("rebinding %s controller for %s: %v", kind, url, err)
		}
		return
	}

	ctrl, err := controller.New(ctx, kind, s.driver, s.ctrlOpts)
	if err != nil {
		s.logger.Errorf("building %s controller for %s: %v", kind, url, err)
		s.ctrl = nil
		return
	}
	s.logger.Debugf("built %s controller for %s", kind, url)
	s.ctrl = ctrl
}

// Control runs a controller action.
func (s *Session) Control(ctx context.Context, action string) error {
	if s.ctrl == nil {
		if s.driver == nil {
			return fmt.Errorf("%w: cannot run %q", ErrNoDriver, action)
		}
		return fmt.Errorf("%w: cannot run %q", ErrNoController, action)
	}
	return s.ctrl.Do(ctx, action)
}

// Close quits any running browser.
func (s *Session) Close() error {
	return s.Exit()
}
