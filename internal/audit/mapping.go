package audit

import (
	"net/http"
	"strings"
)

// ActionResource holds action and resource derived from a backend HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRoute returns action and resource for a backend request, e.g. POST /payment/initiate is
// initiate on payment, POST /payee is create on payee and DELETE /payee/{id} is delete on payee.
func ParseRoute(method, path string) ActionResource {
	segs := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segs) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	resource := strings.ToLower(segs[0])
	if len(segs) >= 2 && method == http.MethodPost {
		return ActionResource{Action: strings.ToLower(segs[1]), Resource: resource}
	}
	return ActionResource{Action: methodToAction(method), Resource: resource}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "get"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
