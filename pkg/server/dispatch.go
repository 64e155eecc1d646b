package server

import (
	"context"
	"errors"

	"github.com/entrhq/commonplayer/pkg/protocol"
)

// dispatch runs one request against the session and turns the outcome
// into a response. It never panics on a well-formed request and every
// failure becomes ok=false.
func (s *Server) dispatch(ctx context.Context, req protocol.Request) protocol.Response {
	switch r := req.(type) {
	case protocol.Start:
		if err := s.session.Start(ctx); err != nil {
			s.logger.Errorf("start: %v", err)
			return protocol.Failure(err)
		}
		return protocol.Success()

	case protocol.Exit:
		if err := s.session.Exit(); err != nil {
			s.logger.Warnf("exit: %v", err)
		}
		return protocol.Success()

	case protocol.GetURL:
		url, err := s.session.CurrentURL(ctx)
		if err != nil {
			if errors.Is(err, ErrNoDriver) {
				s.logger.Debugf("get_url: %v", err)
			} else {
				s.logger.Errorf("get_url: %v", err)
			}
			resp := protocol.URLResponse(nil)
			resp.Error = err.Error()
			return resp
		}
		return protocol.URLResponse(&url)

	case protocol.GoTo:
		if err := s.session.GoTo(ctx, r.URL); err != nil {
			s.logger.Errorf("go_to: %v", err)
			return protocol.Failure(err)
		}
		return protocol.Success()

	case protocol.Control:
		if err := s.session.Control(ctx, r.Action); err != nil {
			s.logger.Warnf("control: %v", err)
			return protocol.Failure(err)
		}
		return protocol.Success()

	default:
		s.logger.Warnf("unhandled request %T", req)
		return protocol.Failure(protocol.ErrUnknownCommand)
	}
}
