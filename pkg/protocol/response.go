package protocol

import (
	"encoding/json"
)

// Response is the envelope returned for every request. OK is the sole
// failure signal; Error carries a human-readable reason when OK is false.
//
// URL is only present on get_url responses, where a nil URL is encoded
// as null rather than omitted.
type Response struct {
	OK    bool
	URL   *string
	Error string

	hasURL bool
}

// Success returns {"ok": true}.
func Success() Response {
	return Response{OK: true}
}

// Failure returns {"ok": false, "error": err}.
func Failure(err error) Response {
	resp := Response{OK: false}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// URLResponse returns a get_url response. A nil url yields {"ok": false, "url": null}.
func URLResponse(url *string) Response {
	return Response{OK: url != nil, URL: url, hasURL: true}
}

// HasURL reports whether the response carries a url field, even a null one.
func (r Response) HasURL() bool {
	return r.hasURL
}

type plainResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type urlResponse struct {
	OK    bool    `json:"ok"`
	URL   *string `json:"url"`
	Error string  `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.hasURL {
		return json.Marshal(urlResponse{OK: r.OK, URL: r.URL, Error: r.Error})
	}
	return json.Marshal(plainResponse{OK: r.OK, Error: r.Error})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var wire urlResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	_, hasURL := fields["url"]
	*r = Response{OK: wire.OK, URL: wire.URL, Error: wire.Error, hasURL: hasURL}
	return nil
}
