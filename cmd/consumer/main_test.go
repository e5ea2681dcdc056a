package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	httptransport "example.com/parkactivity/internal/transport/http"
)

type blockingRunner struct {
	err error
}

func (r blockingRunner) Run(ctx context.Context) error {
	if r.err != nil {
		return r.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freeAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func superviseAsync(ctx context.Context, proc runner, srv *http.Server) <-chan error {
	done := make(chan error, 1)
	go func() { done <- supervise(ctx, proc, srv, time.Second, discardLogger()) }()
	return done
}

func waitFor(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("supervise did not return")
		return nil
	}
}

func TestSuperviseStopsWhenMetricsServerCannotListen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := httptransport.NewServer(httptransport.ServerConfig{Address: ln.Addr().String()}, http.NotFoundHandler(), nil)
	err = waitFor(t, superviseAsync(context.Background(), blockingRunner{}, srv))
	require.Error(t, err)
	require.Contains(t, err.Error(), "metrics server")
}

func TestSuperviseReturnsProcessorFailure(t *testing.T) {
	srv := httptransport.NewServer(httptransport.ServerConfig{Address: freeAddress(t)}, http.NotFoundHandler(), nil)
	boom := errors.New("fetch loop broke")

	err := waitFor(t, superviseAsync(context.Background(), blockingRunner{err: boom}, srv))
	require.ErrorIs(t, err, boom)
}

func TestSuperviseCleanShutdown(t *testing.T) {
	srv := httptransport.NewServer(httptransport.ServerConfig{Address: freeAddress(t)}, http.NotFoundHandler(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := superviseAsync(ctx, blockingRunner{}, srv)

	cancel()
	require.NoError(t, waitFor(t, done))
}
