package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"bizbank-confirmation/internal/audit"
)

// Audit returns middleware that records an audit event after each authenticated request. It must run
// inside Auth so the customer id is in the request context.
// skipPaths is the set of URL paths not to audit. Recording is best-effort and never fails the request.
func Audit(logger audit.AuditLogger, skipPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if logger == nil || skipPaths[r.URL.Path] {
				return
			}
			customerID, ok := GetCustomerID(r.Context())
			if !ok {
				return
			}
			ar := audit.ParseRoute(r.Method, r.URL.Path)
			logger.LogEvent(r.Context(), audit.Event{
				CustomerID: customerID,
				Action:     ar.Action,
				Resource:   ar.Resource,
				Metadata: map[string]string{
					"method": r.Method,
					"path":   r.URL.Path,
					"status": statusText(ww),
					"ip":     ClientIP(r),
				},
			})
		})
	}
}

// statusText returns the written status code; handlers that never call WriteHeader answered 200.
func statusText(ww chimw.WrapResponseWriter) string {
	if ww.Status() == 0 {
		return "200"
	}
	return strconv.Itoa(ww.Status())
}

// ClientIP returns the client IP from X-Forwarded-For, X-Real-IP or the remote address, or "unknown".
func ClientIP(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}
