// Package protocol defines the command protocol spoken on the browser
// server's local socket.
//
// Every request and every response is a single JSON document terminated
// by a newline. A request names a command and, for go_to and control, a
// string value:
//
//	{"command": "go_to", "value": "https://www.youtube.com/watch?v=abc"}
//	{"ok": true}
//
// Requests are decoded into a closed set of typed variants (Start, Exit,
// GetURL, GoTo, Control). Anything else is a protocol error, reported to
// the caller as {"ok": false, "error": "..."}.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CommandKind names a server command on the wire.
type CommandKind string

const (
	// CommandStart launches the browser if it is not running.
	CommandStart CommandKind = "start"
	// CommandExit quits the browser if it is running.
	CommandExit CommandKind = "exit"
	// CommandGoTo navigates to the URL in value.
	CommandGoTo CommandKind = "go_to"
	// CommandGetURL reports the browser's current URL.
	CommandGetURL CommandKind = "get_url"
	// CommandControl runs the page controller action named in value.
	CommandControl CommandKind = "control"
)

// Valid reports whether k is one of the known commands.
func (k CommandKind) Valid() bool {
	switch k {
	case CommandStart, CommandExit, CommandGoTo, CommandGetURL, CommandControl:
		return true
	}
	return false
}

var (
	// ErrMalformed is returned for payloads that are not a JSON object of strings.
	ErrMalformed = errors.New("malformed request")
	// ErrMissingCommand is returned when the command field is absent or empty.
	ErrMissingCommand = errors.New("missing required field: command")
	// ErrUnknownCommand is returned for command names outside CommandKind.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingValue is returned when go_to or control has no value.
	ErrMissingValue = errors.New("missing required field: value")
)

// Request is a decoded command. The concrete type is one of Start, Exit,
// GetURL, GoTo or Control.
type Request interface {
	Kind() CommandKind
	isRequest()
}

// Start requests a browser launch.
type Start struct{}

// Exit requests the browser to quit.
type Exit struct{}

// GetURL requests the current page URL.
type GetURL struct{}

// GoTo requests navigation to URL.
type GoTo struct {
	URL string
}

// Control requests the named page controller action.
type Control struct {
	Action string
}

func (Start) Kind() CommandKind   { return CommandStart }
func (Exit) Kind() CommandKind    { return CommandExit }
func (GetURL) Kind() CommandKind  { return CommandGetURL }
func (GoTo) Kind() CommandKind    { return CommandGoTo }
func (Control) Kind() CommandKind { return CommandControl }

func (Start) isRequest()   {}
func (Exit) isRequest()    {}
func (GetURL) isRequest()  {}
func (GoTo) isRequest()    {}
func (Control) isRequest() {}

// wireRequest is the JSON shape of a request. url and action are accepted
// as aliases of value for go_to and control.
type wireRequest struct {
	Command *string `json:"command"`
	Value   *string `json:"value"`
	URL     *string `json:"url,omitempty"`
	Action  *string `json:"action,omitempty"`
}

// DecodeRequest parses one JSON document into a typed Request.
func DecodeRequest(data []byte) (Request, error) {
	var wire wireRequest
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.Command == nil || *wire.Command == "" {
		return nil, ErrMissingCommand
	}

	kind := CommandKind(*wire.Command)
	switch kind {
	case CommandStart:
		return Start{}, nil
	case CommandExit:
		return Exit{}, nil
	case CommandGetURL:
		return GetURL{}, nil
	case CommandGoTo:
		url := firstNonEmpty(wire.Value, wire.URL)
		if url == "" {
			return nil, fmt.Errorf("%w (go_to needs a url)", ErrMissingValue)
		}
		return GoTo{URL: url}, nil
	case CommandControl:
		action := firstNonEmpty(wire.Value, wire.Action)
		if action == "" {
			return nil, fmt.Errorf("%w (control needs an action)", ErrMissingValue)
		}
		return Control{Action: action}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, kind)
	}
}

// EncodeRequest renders r in the canonical {"command","value"} form.
func EncodeRequest(r Request) ([]byte, error) {
	if r == nil {
		return nil, ErrMissingCommand
	}
	command := string(r.Kind())
	wire := wireRequest{Command: &command}
	switch req := r.(type) {
	case GoTo:
		wire.Value = &req.URL
	case Control:
		wire.Value = &req.Action
	}
	return json.Marshal(struct {
		Command *string `json:"command"`
		Value   *string `json:"value,omitempty"`
	}{wire.Command, wire.Value})
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}
