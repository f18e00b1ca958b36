package repo

import (
	"bytes"
	"io"
	"net/http"
)

// roundTripFunc lets tests stub HTTP transports without a live server.
type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func stubClient(fn roundTripFunc) *http.Client {
	return &http.Client{Transport: fn}
}
