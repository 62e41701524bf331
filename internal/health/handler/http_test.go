package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func serve(t *testing.T, s *Server) (int, Status) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, st
}

func TestHealth_NoDependencies(t *testing.T) {
	code, st := serve(t, NewServer(nil, nil))
	if code != http.StatusOK {
		t.Errorf("status = %d, want %d", code, http.StatusOK)
	}
	if st.Status != "ok" {
		t.Errorf("body status = %q, want ok", st.Status)
	}
}

func TestHealth_AllHealthy(t *testing.T) {
	ok := func(context.Context) error { return nil }
	code, st := serve(t, NewServer(pingerFunc(ok), checkerFunc(ok)))
	if code != http.StatusOK {
		t.Errorf("status = %d, want %d", code, http.StatusOK)
	}
	if st.Checks["database"] != "ok" || st.Checks["policy"] != "ok" {
		t.Errorf("checks = %v", st.Checks)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	down := func(context.Context) error { return errors.New("connection refused") }
	code, st := serve(t, NewServer(pingerFunc(down), nil))
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
	if st.Checks["database"] != "connection refused" {
		t.Errorf("database = %q", st.Checks["database"])
	}
}
