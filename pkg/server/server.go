// Package server exposes a browser Session over a local unix socket.
//
// Clients send newline-delimited JSON requests and receive one JSON
// response line per request. Connections are serviced one at a time, in
// accept order, and every command runs to completion before the next is
// read, so the session's driver is never used concurrently.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/commonplayer/pkg/logging"
	"github.com/entrhq/commonplayer/pkg/protocol"
)

// writeTimeout bounds writing one response.
const writeTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	// SocketPath is the filesystem path of the listening socket.
	SocketPath string
	// IdleTimeout closes a connection that sends nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration
	Logger      *logging.Logger
}

// Server accepts connections and feeds their requests to a Session.
type Server struct {
	session *Session
	opts    Options
	logger  *logging.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]net.Conn
}

// New returns a server for session. Call Listen, then Serve.
func New(session *Session, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		session: session,
		opts:    opts,
		logger:  logger,
		conns:   make(map[string]net.Conn),
	}
}

// Listen binds the socket, replacing any stale socket file left by an
// earlier run. Failure here is the only fatal server error.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("already listening on %s", s.opts.SocketPath)
	}
	if s.opts.SocketPath == "" {
		return fmt.Errorf("socket path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(s.opts.SocketPath), 0700); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(s.opts.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.opts.SocketPath, err)
	}

	listener, err := net.Listen("unix", s.opts.SocketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.SocketPath, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the socket path.
func (s *Server) Addr() string {
	return s.opts.SocketPath
}

// Serve accepts connections until ctx is cancelled. On return the
// listener and any open connection are closed, the browser is quit and
// the socket file is removed.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		listener = s.listener
		s.mu.Unlock()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Infof("listening on %s", s.opts.SocketPath)

	g, gctx := errgroup.WithContext(ctx)

	// Unblock Accept and any pending read once we are told to stop.
	g.Go(func() error {
		<-gctx.Done()
		listener.Close()
		s.closeConns()
		return nil
	})

	g.Go(func() error {
		defer cancel()
		return s.acceptLoop(gctx, listener)
	})

	err := g.Wait()

	if qerr := s.session.Close(); qerr != nil {
		s.logger.Warnf("shutdown: %v", qerr)
	}
	if rerr := os.Remove(s.opts.SocketPath); rerr != nil && !os.IsNotExist(rerr) {
		s.logger.Warnf("removing socket: %v", rerr)
	}
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
	s.logger.Infof("server stopped")
	return err
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Errorf("accept failed: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		s.serveConn(ctx, conn)
	}
}

// serveConn tracks conn for the shutdown watcher and services it. A
// connection accepted after shutdown began may have missed the watcher's
// sweep, so it is closed here instead.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	id := s.track(conn)
	defer s.untrack(id)
	if ctx.Err() != nil {
		conn.Close()
		return
	}
	s.handleConn(ctx, id, conn)
}

func (s *Server) track(conn net.Conn) string {
	id := uuid.New().String()
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()
	return id
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conn := range s.conns {
		conn.Close()
		delete(s.conns, id)
	}
}

// handleConn services requests from one connection until the peer closes
// it, sends exit, idles out or the server stops.
func (s *Server) handleConn(ctx context.Context, id string, conn net.Conn) {
	defer conn.Close()

	logger := s.logger.Named("conn-" + id[:8])
	logger.Debugf("connected")

	dec := protocol.NewDecoder(conn)
	enc := protocol.NewEncoder(conn)

	for {
		if s.opts.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		}

		msg, err := dec.Next()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF):
				logger.Debugf("closed by peer")
			case errors.Is(err, protocol.ErrMessageTooLarge):
				logger.Warnf("%v", err)
				s.reply(conn, enc, logger, protocol.Failure(err))
			case errors.As(err, &netErr) && netErr.Timeout():
				logger.Debugf("idle timeout")
			case ctx.Err() != nil:
			default:
				logger.Warnf("read failed: %v", err)
			}
			return
		}

		req, err := protocol.DecodeRequest(msg)
		if err != nil {
			logger.Warnf("bad request: %v", err)
			if !s.reply(conn, enc, logger, protocol.Failure(err)) {
				return
			}
			continue
		}

		logger.Debugf("command %s", req.Kind())
		resp := s.dispatch(ctx, req)
		if !s.reply(conn, enc, logger, resp) {
			return
		}

		if req.Kind() == protocol.CommandExit {
			logger.Debugf("closing after exit")
			return
		}
	}
}

func (s *Server) reply(conn net.Conn, enc *protocol.Encoder, logger *logging.Logger, resp protocol.Response) bool {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := enc.Encode(resp); err != nil {
		logger.Warnf("write failed: %v", err)
		return false
	}
	return true
}
