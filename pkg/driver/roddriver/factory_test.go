package roddriver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/commonplayer/pkg/driver"
)

func TestNewFactory(t *testing.T) {
	extDir := t.TempDir()
	extFile := filepath.Join(t.TempDir(), "ext.crx")
	require.NoError(t, os.WriteFile(extFile, []byte("crx"), 0600))

	tests := []struct {
		name        string
		opts        Options
		expectError string
	}{
		{name: "defaults", opts: Options{}},
		{name: "unpacked extension", opts: Options{Extensions: []string{extDir}}},
		{name: "missing extension", opts: Options{Extensions: []string{filepath.Join(extDir, "nope")}}, expectError: "nope"},
		{name: "packed extension", opts: Options{Extensions: []string{extFile}}, expectError: "unpacked extension directories only"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFactory(tt.opts, nil)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultTimeout, f.Options().Timeout)
		})
	}
}

func TestNewLauncher_Flags(t *testing.T) {
	extDir := t.TempDir()
	f, err := NewFactory(Options{
		Headless:   true,
		Extensions: []string{extDir},
		Flags:      []string{"--mute-audio", "--lang=en-GB"},
	}, nil)
	require.NoError(t, err)

	l := f.newLauncher()
	assert.True(t, l.Has("headless"))
	assert.True(t, l.Has("mute-audio"))
	assert.Equal(t, "en-GB", l.Get("lang"))
	assert.Equal(t, extDir, l.Get("load-extension"))
	assert.Equal(t, extDir, l.Get("disable-extensions-except"))
}

func TestBuild_CancelledContext(t *testing.T) {
	f, err := NewFactory(Options{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := f.Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, d)
}

func TestFirst_NoMatch(t *testing.T) {
	empty := func(string) (rod.Elements, error) { return nil, nil }

	_, err := first(driver.ID("movie_player"), empty)
	assert.ErrorIs(t, err, driver.ErrNoSuchElement)

	_, err = first(driver.LinkText("ACCEPT ALL"), empty)
	assert.ErrorIs(t, err, driver.ErrNoSuchElement)
}

func TestFirst_QueriesCSS(t *testing.T) {
	var got []string
	record := func(q string) (rod.Elements, error) {
		got = append(got, q)
		return nil, nil
	}

	_, _ = first(driver.Class("ytp-play-button"), record)
	_, _ = first(driver.LinkText("ACCEPT ALL"), record)
	_, _ = first(driver.Tag("ytd-consent-bump-v2-lightbox"), record)

	assert.Equal(t, []string{".ytp-play-button", "a", "ytd-consent-bump-v2-lightbox"}, got)
}

func TestWithTimeout_ReleaseStopsTimer(t *testing.T) {
	page, release := withTimeout(context.Background(), &rod.Page{}, time.Hour)
	_, hasDeadline := page.GetContext().Deadline()
	require.True(t, hasDeadline)
	require.NoError(t, page.GetContext().Err())

	release()
	assert.ErrorIs(t, page.GetContext().Err(), context.Canceled)
}

func TestWithTimeout_NoTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page, release := withTimeout(ctx, &rod.Page{}, 0)
	defer release()
	_, hasDeadline := page.GetContext().Deadline()
	assert.False(t, hasDeadline)
	assert.Equal(t, ctx, page.GetContext())
}
