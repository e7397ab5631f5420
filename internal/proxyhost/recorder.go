package proxyhost

import (
	"bytes"
	"net/http"
)

// responseRecorder captures a reverse-proxied upstream response so the
// outbound filter phase can observe and mutate it before anything is
// written to the real client connection.
type responseRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: http.Header{}, status: http.StatusOK}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) Write(b []byte) (int, error) {
	return r.body.Write(b)
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
}
