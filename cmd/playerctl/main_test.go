package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/commonplayer/pkg/client"
	"github.com/entrhq/commonplayer/pkg/controller"
	"github.com/entrhq/commonplayer/pkg/driver/drivertest"
	"github.com/entrhq/commonplayer/pkg/server"
)

func startServer(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "cp")
	require.NoError(t, err)
	path := filepath.Join(dir, "browser.sock")

	factory := &drivertest.Factory{Loader: func(url string) *drivertest.Node {
		return drivertest.VideoPage{}.Build()
	}}
	session := server.NewSession(factory, nil, controller.Options{ComponentTimeout: 50 * time.Millisecond}, nil)
	srv := server.New(session, server.Options{SocketPath: path})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		os.RemoveAll(dir)
	})
	return path
}

func run(t *testing.T, socket string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--socket", socket}, args...))
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestPlayerctl_Commands(t *testing.T) {
	socket := startServer(t)

	tests := []struct {
		args    []string
		want    string
		wantErr bool
	}{
		{args: []string{"url"}, want: `{"ok":false,"url":null,"error":"no browser running"}`, wantErr: true},
		{args: []string{"start"}, want: `{"ok":true}`},
		{args: []string{"goto", "https://www.youtube.com/watch?v=abc"}, want: `{"ok":true}`},
		{args: []string{"url"}, want: `{"ok":true,"url":"https://www.youtube.com/watch?v=abc"}`},
		{args: []string{"control", "play_pause"}, want: `{"ok":true}`},
		{args: []string{"control", "rewind"}, wantErr: true},
		{args: []string{"exit"}, want: `{"ok":true}`},
	}

	for _, tt := range tests {
		out, err := run(t, socket, tt.args...)
		if tt.wantErr {
			assert.ErrorIs(t, err, client.ErrNotOK, tt.args)
		} else {
			assert.NoError(t, err, tt.args)
		}
		if tt.want != "" {
			assert.JSONEq(t, tt.want, out, tt.args)
		}
	}
}

func TestPlayerctl_ArgValidation(t *testing.T) {
	_, err := run(t, "/nonexistent.sock", "goto")
	assert.Error(t, err)

	_, err = run(t, "/nonexistent.sock", "start", "extra")
	assert.Error(t, err)
}

func TestPlayerctl_NoServer(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "missing.sock"), "start")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is browser-server running?")
}
