// Package main contains lifecycle tests for the API server.
package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/tmajkow/coursepulse/internal/analytics"
	"github.com/tmajkow/coursepulse/internal/cache"
	"github.com/tmajkow/coursepulse/internal/event"
	"github.com/tmajkow/coursepulse/internal/jobs"
)

// startTestServer serves mux on an ephemeral port and returns the server,
// its address, and a channel closed once Serve returns.
func startTestServer(t *testing.T, mux *http.ServeMux) (*http.Server, string, chan struct{}) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			t.Errorf("server error: %v", err)
		}
		close(stopped)
	}()

	return server, ln.Addr().String(), stopped
}

// TestGracefulShutdown_InFlightRequestsComplete verifies that a report
// request already being served finishes before Shutdown returns.
func TestGracefulShutdown_InFlightRequestsComplete(t *testing.T) {
	handlerStarted := make(chan struct{})
	handlerRelease := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/analytics/dashboard", func(w http.ResponseWriter, r *http.Request) {
		close(handlerStarted)
		<-handlerRelease
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"student_count":0}`))
	})

	server, addr, stopped := startTestServer(t, mux)

	requestDone := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get("http://" + addr + "/analytics/dashboard")
		if err != nil {
			t.Errorf("request error: %v", err)
			close(requestDone)
			return
		}
		requestDone <- resp
	}()

	select {
	case <-handlerStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("handler failed to start in time")
	}

	shutdownDone := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			t.Errorf("shutdown error: %v", err)
		}
		close(shutdownDone)
	}()

	// Let shutdown begin, then release the in-flight handler.
	time.Sleep(50 * time.Millisecond)
	close(handlerRelease)

	select {
	case resp := <-requestDone:
		if resp == nil {
			t.Fatal("no response received")
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if len(body) == 0 {
			t.Error("expected response body from in-flight request")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("request failed to complete in time")
	}

	select {
	case <-shutdownDone:
	case <-time.After(15 * time.Second):
		t.Fatal("shutdown failed to complete in time")
	}

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("server goroutine failed to exit")
	}
}

// TestGracefulShutdown_StopsRecomputeJob verifies the shutdown sequence
// main uses: stopping the recompute job blocks until its goroutine exits.
func TestGracefulShutdown_StopsRecomputeJob(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := jobs.NewDirtyTracker()
	events := event.NewInMemoryRepository()
	engine := analytics.NewEngine(nil)
	reports := cache.NewInMemoryReportCache(time.Minute)

	job := jobs.NewRecomputeJob(jobs.RecomputeJobConfig{
		Interval: 10 * time.Millisecond,
		Logger:   logger,
	}, tracker, events, engine, reports, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := job.Start(ctx); err != nil {
		t.Fatalf("failed to start recompute job: %v", err)
	}

	tracker.MarkDirty("com_acme")
	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		job.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("recompute job failed to stop in time")
	}

	// Stop on an already-stopped job must not block.
	job.Stop()
}

// TestShutdownSignals verifies the signals main listens for are delivered.
func TestShutdownSignals(t *testing.T) {
	for _, sig := range []syscall.Signal{syscall.SIGINT, syscall.SIGTERM} {
		t.Run(sig.String(), func(t *testing.T) {
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			go func() {
				time.Sleep(50 * time.Millisecond)
				_ = syscall.Kill(syscall.Getpid(), sig)
			}()

			select {
			case got := <-quit:
				if got != sig {
					t.Errorf("expected %v, got %v", sig, got)
				}
			case <-time.After(2 * time.Second):
				t.Errorf("did not receive %v in time", sig)
			}
		})
	}
}
