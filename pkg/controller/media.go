package controller

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/entrhq/commonplayer/pkg/driver"
	"github.com/entrhq/commonplayer/pkg/logging"
)

// Media controller action names.
const (
	ActionPlayPause  = "play_pause"
	ActionPlay       = "play"
	ActionPause      = "pause"
	ActionNext       = "next"
	ActionAutoplay   = "autoplay"
	ActionFullscreen = "fullscreen"
	ActionSubtitles  = "subtitles"
	ActionCookie     = "cookie"
)

// Player markup.
const (
	playerID         = "movie_player"
	playButtonClass  = "ytp-play-button"
	nextButtonClass  = "ytp-next-button"
	subtitlesClass   = "ytp-subtitles-button"
	autoplayClass    = "ytp-autonav-toggle-button"
	fullscreenClass  = "ytp-fullscreen-button"
	consentTag       = "ytd-consent-bump-v2-lightbox"
	consentLinkText  = "ACCEPT ALL"
	titlePlayState   = "Play (k)"
	titlePauseState  = "Pause (k)"
	shortLinkHost    = "youtu.be"
	watchPath        = "/watch"
	shortsPathPrefix = "/shorts/"
)

var mediaButtons = []string{
	playButtonClass,
	nextButtonClass,
	subtitlesClass,
	autoplayClass,
	fullscreenClass,
}

// Media controls the video player on YouTube pages.
type Media struct {
	drv     driver.Driver
	opts    Options
	logger  *logging.Logger
	actions map[string]func(ctx context.Context) error

	mu       sync.Mutex
	player   driver.Element
	elements map[string]driver.Element
}

var (
	_ Controller = (*Media)(nil)
	_ Rebinder   = (*Media)(nil)
)

// NewMedia binds a controller to drv. It first tries to dismiss the
// consent overlay for up to opts.ConsentTimeout, then, on a video page,
// waits up to opts.ComponentTimeout for the player controls. Neither
// wait failing is an error: controls that never appeared are looked up
// again when an action needs them.
func NewMedia(ctx context.Context, drv driver.Driver, opts Options) (*Media, error) {
	opts = opts.withDefaults()
	m := &Media{
		drv:      drv,
		opts:     opts,
		logger:   opts.Logger,
		elements: make(map[string]driver.Element),
	}
	m.actions = map[string]func(ctx context.Context) error{
		ActionPlayPause:  m.clicker(playButtonClass),
		ActionPlay:       m.playIf(titlePlayState),
		ActionPause:      m.playIf(titlePauseState),
		ActionNext:       m.clicker(nextButtonClass),
		ActionAutoplay:   m.clicker(autoplayClass),
		ActionFullscreen: m.clicker(fullscreenClass),
		ActionSubtitles:  m.clicker(subtitlesClass),
		ActionCookie:     m.dismissConsent,
	}

	consent := driver.WaitFor(ctx, opts.ConsentTimeout, 0, func(ctx context.Context) (bool, error) {
		return m.dismissConsent(ctx) == nil, nil
	})
	if consent.Outcome == driver.WaitCancelled {
		return nil, ctx.Err()
	}
	m.logger.Debugf("consent overlay: %s after %d attempts", consent.Outcome, consent.Attempts)

	if err := m.awaitControls(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Kind implements Controller.
func (m *Media) Kind() Kind {
	return KindMedia
}

// Actions implements Controller.
func (m *Media) Actions() []string {
	names := make([]string, 0, len(m.actions))
	for name := range m.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Do implements Controller.
func (m *Media) Do(ctx context.Context, action string) error {
	fn, ok := m.actions[action]
	if !ok {
		return fmt.Errorf("%w %q (have %s)", ErrUnknownAction, action, strings.Join(m.Actions(), ", "))
	}
	return fn(ctx)
}

// Reset drops cached element handles after the page changed.
func (m *Media) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.player = nil
	m.elements = make(map[string]driver.Element)
}

// Rebind implements Rebinder. It drops cached handles and, on a video
// page, waits for the new player's controls as construction does. The
// consent overlay is not awaited again.
func (m *Media) Rebind(ctx context.Context) error {
	m.Reset()
	return m.awaitControls(ctx)
}

// awaitControls waits up to ComponentTimeout for the player controls
// when the current page is a video. Only cancellation is an error.
func (m *Media) awaitControls(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.onVideoPage(ctx) {
		return nil
	}
	components := driver.WaitFor(ctx, m.opts.ComponentTimeout, 0, m.fetchComponents)
	if components.Outcome == driver.WaitCancelled {
		return ctx.Err()
	}
	if !components.Satisfied() {
		m.logger.Debugf("player controls incomplete after %s: %v", components.Elapsed, components.LastErr)
	}
	return nil
}

// onVideoPage reports whether the current page plays a single video.
func (m *Media) onVideoPage(ctx context.Context) bool {
	current, err := m.drv.CurrentURL(ctx)
	if err != nil {
		m.logger.Warnf("reading current url: %v", err)
		return false
	}
	u, err := url.Parse(current)
	if err != nil {
		return false
	}
	switch {
	case u.Path == watchPath:
		return true
	case strings.HasPrefix(u.Path, shortsPathPrefix):
		return true
	case strings.EqualFold(u.Hostname(), shortLinkHost):
		return strings.Trim(u.Path, "/") != ""
	}
	return false
}

// fetchComponents looks up every player control not yet cached and
// reports whether all of them are now present.
func (m *Media) fetchComponents(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var missing []error
	for _, class := range mediaButtons {
		if _, err := m.lookupLocked(ctx, class); err != nil {
			missing = append(missing, err)
		}
	}
	if len(missing) > 0 {
		return false, errors.Join(missing...)
	}
	return true, nil
}

// lookupLocked returns the cached control for class, finding it under the
// player when not cached. Caller holds m.mu.
func (m *Media) lookupLocked(ctx context.Context, class string) (driver.Element, error) {
	if el, ok := m.elements[class]; ok {
		return el, nil
	}
	if m.player == nil {
		player, err := m.drv.Find(ctx, driver.ID(playerID))
		if err != nil {
			return nil, err
		}
		m.player = player
	}
	el, err := m.player.Find(ctx, driver.Class(class))
	if err != nil {
		return nil, err
	}
	m.elements[class] = el
	return el, nil
}

// element returns the control for class, trying one fresh lookup when it
// was not found earlier.
func (m *Media) element(ctx context.Context, class string) (driver.Element, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, err := m.lookupLocked(ctx, class)
	if err != nil {
		if errors.Is(err, driver.ErrNoSuchElement) {
			return nil, fmt.Errorf("%w: %s", ErrElementMissing, class)
		}
		return nil, err
	}
	return el, nil
}

func (m *Media) clicker(class string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		el, err := m.element(ctx, class)
		if err != nil {
			return err
		}
		return el.Click(ctx)
	}
}

// playIf clicks the play button only while its title is state, so play
// and pause are idempotent where play_pause toggles.
func (m *Media) playIf(state string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		el, err := m.element(ctx, playButtonClass)
		if err != nil {
			return err
		}
		title, ok, err := el.Attribute(ctx, "title")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s has no title", ErrPlayStateUnknown, playButtonClass)
		}
		if title != state {
			return nil
		}
		return el.Click(ctx)
	}
}

func (m *Media) dismissConsent(ctx context.Context) error {
	overlay, err := m.drv.Find(ctx, driver.Tag(consentTag))
	if err != nil {
		if errors.Is(err, driver.ErrNoSuchElement) {
			return fmt.Errorf("%w: consent overlay", ErrElementMissing)
		}
		return err
	}
	accept, err := overlay.Find(ctx, driver.LinkText(consentLinkText))
	if err != nil {
		if errors.Is(err, driver.ErrNoSuchElement) {
			return fmt.Errorf("%w: consent button", ErrElementMissing)
		}
		return err
	}
	return accept.Click(ctx)
}
