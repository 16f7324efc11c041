package server

import (
	"errors"
	"net/http"
	"testing"
)

func TestServer_HealthCheck_NoPinger(t *testing.T) {
	srv := newTestServer(t, Deps{})

	w := doRequest(t, srv, http.MethodGet, "/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decodeBody(t, w)["status"]; got != "ok" {
		t.Errorf("status field = %v, want ok", got)
	}
}

func TestServer_HealthCheck_PingerSuccess(t *testing.T) {
	srv := newTestServer(t, Deps{Pinger: &fakePinger{}})

	w := doRequest(t, srv, http.MethodGet, "/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestServer_HealthCheck_PingerFailure(t *testing.T) {
	srv := newTestServer(t, Deps{Pinger: &fakePinger{err: errors.New("connection refused")}})

	w := doRequest(t, srv, http.MethodGet, "/health", nil)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if got := decodeBody(t, w)["status"]; got != "degraded" {
		t.Errorf("status field = %v, want degraded", got)
	}
}
