package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize is the largest single request or response line accepted.
const MaxMessageSize = 1024 * 1024

// ErrMessageTooLarge is returned by Decoder.Next for lines over MaxMessageSize.
// The stream cannot be resynchronized after it.
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// Decoder splits a byte stream into newline-delimited messages.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxMessageSize)
	return &Decoder{scanner: scanner}
}

// Next returns the next non-blank message without its terminator. A final
// message that is not newline-terminated is returned before io.EOF.
func (d *Decoder) Next() ([]byte, error) {
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		return msg, nil
	}
	if err := d.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrMessageTooLarge
		}
		return nil, err
	}
	return nil, io.EOF
}

// NextRequest reads and decodes the next request. Decode failures are
// returned as errors wrapping the protocol sentinels; the stream remains
// usable after them.
func (d *Decoder) NextRequest() (Request, error) {
	msg, err := d.Next()
	if err != nil {
		return nil, err
	}
	return DecodeRequest(msg)
}

// NextResponse reads and decodes the next response.
func (d *Decoder) NextResponse() (Response, error) {
	msg, err := d.Next()
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(msg, &resp); err != nil {
		return Response{}, fmt.Errorf("decoding response: %w", err)
	}
	return resp, nil
}

// Encoder writes newline-terminated JSON messages.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes v as one JSON line in a single Write call.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if len(data) >= MaxMessageSize {
		return ErrMessageTooLarge
	}
	_, err = e.w.Write(append(data, '\n'))
	return err
}

// EncodeRequest writes r in canonical form.
func (e *Encoder) EncodeRequest(r Request) error {
	data, err := EncodeRequest(r)
	if err != nil {
		return err
	}
	return e.Encode(json.RawMessage(data))
}
