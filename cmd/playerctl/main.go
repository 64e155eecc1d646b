// Package main provides playerctl, a command line client for a running
// browser-server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/commonplayer/pkg/client"
	"github.com/entrhq/commonplayer/pkg/config"
	"github.com/entrhq/commonplayer/pkg/protocol"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	socket  string
	timeout time.Duration
}

func defaultSocket() string {
	if v := os.Getenv(config.EnvSocket); v != "" {
		return v
	}
	return config.DefaultSocketPath()
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "playerctl",
		Short:         "Control a running browser-server",
		Long:          `Send one command to a running browser-server and print its JSON response.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.socket, "socket", defaultSocket(), "Server socket path")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "Time to wait for the response")

	root.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Launch the browser",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, out, opts, protocol.Start{})
			},
		},
		&cobra.Command{
			Use:   "exit",
			Short: "Quit the browser",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, out, opts, protocol.Exit{})
			},
		},
		&cobra.Command{
			Use:     "goto <url>",
			Aliases: []string{"go_to", "open"},
			Short:   "Navigate the browser to a URL",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, out, opts, protocol.GoTo{URL: args[0]})
			},
		},
		&cobra.Command{
			Use:     "url",
			Aliases: []string{"get_url"},
			Short:   "Print the current page URL",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, out, opts, protocol.GetURL{})
			},
		},
		&cobra.Command{
			Use:   "control <action>",
			Short: "Run a page action such as play_pause, fullscreen or cookie",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, out, opts, protocol.Control{Action: args[0]})
			},
		},
	)
	return root
}

// send runs one request and prints the response. An ok=false response
// is printed and then returned as an error so the exit status is non-zero.
func send(cmd *cobra.Command, out io.Writer, opts *options, req protocol.Request) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	c, err := client.Dial(ctx, opts.socket)
	if err != nil {
		return fmt.Errorf("is browser-server running? %w", err)
	}
	defer c.Close()

	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))

	if !resp.OK {
		return fmt.Errorf("%s: %w", req.Kind(), client.ErrNotOK)
	}
	return nil
}
