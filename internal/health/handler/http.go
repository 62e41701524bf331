// Package handler serves the readiness check.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const checkTimeout = 2 * time.Second

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is implemented by the submission policy evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Status is the JSON body of GET /healthz.
type Status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Server answers readiness. Nil dependencies are skipped.
type Server struct {
	db     Pinger
	policy PolicyChecker
}

// NewServer returns a health handler. db and policy may be nil.
func NewServer(db Pinger, policy PolicyChecker) *Server {
	return &Server{db: db, policy: policy}
}

// ServeHTTP answers 200 when every configured dependency is healthy, 503 otherwise.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	st := Status{Status: "ok", Checks: map[string]string{}}
	if s.db != nil {
		st.Checks["database"] = result(s.db.PingContext(ctx))
	}
	if s.policy != nil {
		st.Checks["policy"] = result(s.policy.HealthCheck(ctx))
	}
	code := http.StatusOK
	for _, v := range st.Checks {
		if v != "ok" {
			st.Status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}
	if len(st.Checks) == 0 {
		st.Checks = nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}

func result(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
