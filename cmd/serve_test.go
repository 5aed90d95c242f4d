package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockingServer(entered, release chan struct{}) *http.Server {
	return &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	})}
}

func getStatus(addr string) <-chan int {
	out := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + addr)
		if err != nil {
			out <- 0
			return
		}
		resp.Body.Close() //nolint:errcheck
		out <- resp.StatusCode
	}()
	return out
}

func TestRunServer_DrainsInFlightRequests(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- runServer(ctx, blockingServer(entered, release), ln, 5*time.Second) }()

	status := getStatus(ln.Addr().String())
	<-entered
	cancel()

	select {
	case err := <-served:
		t.Fatalf("server returned while a request was in flight: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, http.StatusOK, <-status)
	require.NoError(t, <-served)
}

func TestRunServer_DrainTimeout(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- runServer(ctx, blockingServer(entered, release), ln, 50*time.Millisecond) }()

	_ = getStatus(ln.Addr().String())
	<-entered
	cancel()

	err = <-served
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunServer_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err = runServer(ctx, &http.Server{Handler: http.NotFoundHandler()}, ln, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server listen")
}
