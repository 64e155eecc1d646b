package protocol

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Request
		wantErr error
	}{
		{name: "start", input: `{"command":"start"}`, want: Start{}},
		{name: "exit ignores value", input: `{"command":"exit","value":"x"}`, want: Exit{}},
		{name: "get_url", input: `{"command":"get_url"}`, want: GetURL{}},
		{name: "go_to value", input: `{"command":"go_to","value":"https://youtu.be/abc"}`, want: GoTo{URL: "https://youtu.be/abc"}},
		{name: "go_to url alias", input: `{"command":"go_to","url":"https://youtu.be/abc"}`, want: GoTo{URL: "https://youtu.be/abc"}},
		{name: "control value", input: `{"command":"control","value":"play_pause"}`, want: Control{Action: "play_pause"}},
		{name: "control action alias", input: `{"command":"control","action":"fullscreen"}`, want: Control{Action: "fullscreen"}},
		{name: "value wins over alias", input: `{"command":"control","value":"cookie","action":"next"}`, want: Control{Action: "cookie"}},
		{name: "extra fields ignored", input: `{"command":"start","client":"web"}`, want: Start{}},
		{name: "not json", input: `command=start`, wantErr: ErrMalformed},
		{name: "not an object", input: `["start"]`, wantErr: ErrMalformed},
		{name: "value not a string", input: `{"command":"go_to","value":42}`, wantErr: ErrMalformed},
		{name: "missing command", input: `{"value":"x"}`, wantErr: ErrMissingCommand},
		{name: "empty command", input: `{"command":""}`, wantErr: ErrMissingCommand},
		{name: "unknown command", input: `{"command":"reload"}`, wantErr: ErrUnknownCommand},
		{name: "go_to without value", input: `{"command":"go_to"}`, wantErr: ErrMissingValue},
		{name: "control with empty value", input: `{"command":"control","value":""}`, wantErr: ErrMissingValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.input))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Kind(), got.Kind())
		})
	}
}

func TestEncodeRequestCanonicalForm(t *testing.T) {
	data, err := EncodeRequest(GoTo{URL: "https://www.youtube.com/watch?v=abc&t=1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"go_to","value":"https://www.youtube.com/watch?v=abc&t=1"}`, string(data))

	data, err = EncodeRequest(Start{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"start"}`, string(data))

	_, err = EncodeRequest(nil)
	assert.ErrorIs(t, err, ErrMissingCommand)
}

func TestResponseJSON(t *testing.T) {
	url := "https://youtu.be/abc"
	tests := []struct {
		name string
		resp Response
		want string
	}{
		{name: "success", resp: Success(), want: `{"ok":true}`},
		{name: "failure", resp: Failure(ErrUnknownCommand), want: `{"ok":false,"error":"unknown command"}`},
		{name: "url present", resp: URLResponse(&url), want: `{"ok":true,"url":"https://youtu.be/abc"}`},
		{name: "url absent is null", resp: URLResponse(nil), want: `{"ok":false,"url":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.resp)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestResponseUnmarshalKeepsNullURL(t *testing.T) {
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(`{"ok":false,"url":null}`), &resp))
	assert.False(t, resp.OK)
	assert.True(t, resp.HasURL())
	assert.Nil(t, resp.URL)

	require.NoError(t, json.Unmarshal([]byte(`{"ok":true}`), &resp))
	assert.True(t, resp.OK)
	assert.False(t, resp.HasURL())
}

func TestDecoderFraming(t *testing.T) {
	stream := "{\"command\":\"start\"}\n\n  \n{\"command\":\"get_url\"}\r\n{\"command\":\"exit\"}"
	dec := NewDecoder(strings.NewReader(stream))

	var kinds []CommandKind
	for {
		req, err := dec.NextRequest()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, req.Kind())
	}
	assert.Equal(t, []CommandKind{CommandStart, CommandGetURL, CommandExit}, kinds)
}

func TestDecoderRecoversAfterBadMessage(t *testing.T) {
	dec := NewDecoder(strings.NewReader("not json\n{\"command\":\"start\"}\n"))

	_, err := dec.NextRequest()
	assert.ErrorIs(t, err, ErrMalformed)

	req, err := dec.NextRequest()
	require.NoError(t, err)
	assert.Equal(t, Start{}, req)
}

func TestDecoderLongURLIsNotTruncated(t *testing.T) {
	long := "https://www.youtube.com/watch?v=abc&list=" + strings.Repeat("x", 8192)
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).EncodeRequest(GoTo{URL: long}))

	req, err := NewDecoder(&buf).NextRequest()
	require.NoError(t, err)
	assert.Equal(t, GoTo{URL: long}, req)
}

func TestDecoderRejectsOversizedMessage(t *testing.T) {
	payload := `{"command":"go_to","value":"` + strings.Repeat("a", MaxMessageSize) + `"}` + "\n"
	_, err := NewDecoder(strings.NewReader(payload)).Next()
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestEncoderWritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(Success()))
	require.NoError(t, enc.Encode(URLResponse(nil)))

	assert.Equal(t, "{\"ok\":true}\n{\"ok\":false,\"url\":null}\n", buf.String())

	dec := NewDecoder(&buf)
	first, err := dec.NextResponse()
	require.NoError(t, err)
	assert.True(t, first.OK)
	second, err := dec.NextResponse()
	require.NoError(t, err)
	assert.False(t, second.OK)
	assert.True(t, second.HasURL())
}
