// Package client talks to a running browser server over its unix socket.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/entrhq/commonplayer/pkg/protocol"
)

// ErrNotOK is returned by the typed helpers when the server answers ok=false.
var ErrNotOK = errors.New("server reported failure")

// Client is one connection to the server. Requests on a Client are
// serialized; the server answers them in order.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	dec  *protocol.Decoder
	enc  *protocol.Encoder
}

// Dial connects to the server listening on socketPath.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	return &Client{
		conn: conn,
		dec:  protocol.NewDecoder(conn),
		enc:  protocol.NewEncoder(conn),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send writes req and waits for its response. The context deadline, if
// any, bounds the whole exchange.
func (c *Client) Send(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return protocol.Response{}, err
	}

	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := c.enc.EncodeRequest(req); err != nil {
		return protocol.Response{}, c.ctxErr(ctx, fmt.Errorf("sending %s: %w", req.Kind(), err))
	}
	resp, err := c.dec.NextResponse()
	if err != nil {
		return protocol.Response{}, c.ctxErr(ctx, fmt.Errorf("reading %s response: %w", req.Kind(), err))
	}
	return resp, nil
}

// ctxErr attributes a failed exchange to ctx when ctx ended it. The
// connection deadline can fire just before ctx reports its own expiry.
func (c *Client) ctxErr(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil {
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			ctxErr = context.DeadlineExceeded
		}
	}
	if ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, req protocol.Request) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	return checkOK(req, resp)
}

func checkOK(req protocol.Request, resp protocol.Response) error {
	if resp.OK {
		return nil
	}
	if resp.Error != "" {
		return fmt.Errorf("%s: %w: %s", req.Kind(), ErrNotOK, resp.Error)
	}
	return fmt.Errorf("%s: %w", req.Kind(), ErrNotOK)
}

// Start asks the server to launch its browser.
func (c *Client) Start(ctx context.Context) error {
	return c.do(ctx, protocol.Start{})
}

// Exit asks the server to quit its browser. The server closes the
// connection afterwards.
func (c *Client) Exit(ctx context.Context) error {
	return c.do(ctx, protocol.Exit{})
}

// GoTo navigates the browser to url.
func (c *Client) GoTo(ctx context.Context, url string) error {
	return c.do(ctx, protocol.GoTo{URL: url})
}

// Control runs a page controller action such as "play_pause".
func (c *Client) Control(ctx context.Context, action string) error {
	return c.do(ctx, protocol.Control{Action: action})
}

// GetURL returns the browser's current URL.
func (c *Client) GetURL(ctx context.Context) (string, error) {
	req := protocol.GetURL{}
	resp, err := c.Send(ctx, req)
	if err != nil {
		return "", err
	}
	if err := checkOK(req, resp); err != nil {
		return "", err
	}
	if resp.URL == nil {
		return "", fmt.Errorf("%s: response has no url", req.Kind())
	}
	return *resp.URL, nil
}
