package handler

import (
	"net/http"
	"strings"

	"bizbank-confirmation/internal/server/middleware"
	"bizbank-confirmation/internal/sim"
)

// DevOTP returns the handler for GET /dev/otp?operationId=..., answering the plaintext code last issued
// for one of the caller's operations. Mount it only outside production.
func DevOTP(bank *sim.Bank) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opID := strings.TrimSpace(r.URL.Query().Get("operationId"))
		if opID == "" {
			writeError(w, http.StatusBadRequest, sim.CodeInvalidRequest, "operationId is required")
			return
		}
		customerID, _ := middleware.GetCustomerID(r.Context())
		owner, ok := bank.Owner(opID)
		if !ok || owner != customerID {
			writeError(w, http.StatusNotFound, sim.CodeOperationNotFound, "operation "+opID+" not found")
			return
		}
		code, ok := bank.DevCode(r.Context(), opID)
		if !ok {
			writeError(w, http.StatusNotFound, sim.CodeChallengeNotFound, "no code issued or code expired")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"operationId": opID, "otp": code})
	}
}
