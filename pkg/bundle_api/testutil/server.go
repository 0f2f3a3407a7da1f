package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// NewServer runs handler on a loopback httptest server and skips the
// calling test when the environment forbids binding a port.
func NewServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skip: cannot listen: %v", err)
	}

	srv := &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
	srv.Start()
	t.Cleanup(srv.Close)

	return srv
}
