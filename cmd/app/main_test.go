package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_ReturnsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := &http.Server{Addr: ln.Addr().String(), Handler: http.NotFoundHandler()}
	done := make(chan error, 1)
	go func() { done <- serve(srv, make(chan os.Signal)) }()

	select {
	case err := <-done:
		assert.Error(t, err, "port already in use")
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return on listen failure")
	}
}

func TestServe_ReturnsOnSignal(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	stop := make(chan os.Signal, 1)
	stop <- syscall.SIGTERM

	require.NoError(t, serve(srv, stop))
	assert.NoError(t, srv.Shutdown(context.Background()))
}
