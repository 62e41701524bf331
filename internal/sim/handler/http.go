// Package handler exposes the simulated bank over the HTTP/JSON routes the remote client calls.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"bizbank-confirmation/internal/cop"
	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/logging"
	"bizbank-confirmation/internal/otp"
	otpdomain "bizbank-confirmation/internal/otp/domain"
	"bizbank-confirmation/internal/remote"
	"bizbank-confirmation/internal/remote/httpapi"
	"bizbank-confirmation/internal/server/middleware"
	"bizbank-confirmation/internal/sim"
)

const maxBodyBytes = 1 << 20

// Handler serves the bank routes. Every route expects the customer id set by middleware.Auth.
type Handler struct {
	bank   *sim.Bank
	logger *zap.Logger
}

// New returns a Handler over bank.
func New(bank *sim.Bank, logger *zap.Logger) *Handler {
	return &Handler{bank: bank, logger: logging.OrNop(logger)}
}

// Routes mounts the bank routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/{kind}/initiate", h.initiate)
	r.Post("/{kind}/finalize", h.finalize)
	r.Post("/otp/challenge", h.challenge)
	r.Post("/otp/confirm", h.confirm)
	r.Post("/payee", h.createPayee)
	r.Delete("/payee/{id}", h.deletePayee)
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	kind := domain.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, sim.CodeInvalidRequest, "unknown operation kind")
		return
	}
	var req httpapi.InitiateRequest
	if !decode(w, r, &req) {
		return
	}
	customerID, _ := middleware.GetCustomerID(r.Context())
	if req.CustomerID != customerID {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "customer does not match token")
		return
	}
	res, err := h.bank.Initiate(r.Context(), domain.Intent{
		ID:         req.IntentID,
		CustomerID: req.CustomerID,
		Kind:       kind,
		Payee:      req.Payee,
		Payment:    req.Payment,
		Forex:      req.Forex,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	resp := httpapi.InitiateResponse{OperationID: res.OperationID, FraudAlerts: res.FraudAlerts}
	resp.COPResponseCode, resp.COPNameMatch, resp.COPSuggestedName = wireCOP(res.COP)
	writeJSON(w, http.StatusOK, resp)
}

// wireCOP is the inverse of cop.Parse.
func wireCOP(o cop.Outcome) (code, nameMatch, suggested string) {
	if o.Code != "" {
		return o.Code, "", o.SuggestedName
	}
	switch o.Kind {
	case cop.Match:
		return "", "match", ""
	case cop.Internal:
		return "", "internal", ""
	case cop.CloseMatch:
		return "", "close", o.SuggestedName
	case cop.NoMatch:
		return "", "no-match", ""
	}
	return "", "", ""
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	kind := domain.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, sim.CodeInvalidRequest, "unknown operation kind")
		return
	}
	var req httpapi.FinalizeRequest
	if !decode(w, r, &req) || !h.ownsOperation(w, r, req.OperationID) {
		return
	}
	ok, err := h.bank.Finalize(r.Context(), remote.FinalizeRequest{
		Kind:                  kind,
		OperationID:           req.OperationID,
		SessionID:             req.SessionID,
		ConfirmationType:      req.ConfirmationType,
		FraudAcknowledgements: req.FraudAcknowledgements,
		COPOverride:           req.COPOverride,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, httpapi.FinalizeResponse{Success: ok})
}

func (h *Handler) challenge(w http.ResponseWriter, r *http.Request) {
	var req httpapi.ChallengeRequest
	if !decode(w, r, &req) || !h.ownsOperation(w, r, req.OperationID) {
		return
	}
	ch, err := h.bank.RequestChallenge(r.Context(), req.OperationID)
	if err != nil {
		h.fail(w, err)
		return
	}
	expires := ch.ExpiresAt
	writeJSON(w, http.StatusOK, httpapi.ChallengeResponse{
		OperationID:      ch.OperationID,
		SessionID:        ch.SessionID,
		ConfirmationType: ch.ConfirmationType,
		ExpiresAt:        &expires,
	})
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	var req httpapi.ConfirmRequest
	if !decode(w, r, &req) || !h.ownsOperation(w, r, req.OperationID) {
		return
	}
	ok, err := h.bank.ConfirmChallenge(r.Context(), otpdomain.Challenge{
		OperationID: req.OperationID,
		SessionID:   req.SessionID,
	}, req.Code)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, httpapi.ConfirmResponse{Confirmed: ok})
}

func (h *Handler) createPayee(w http.ResponseWriter, r *http.Request) {
	var req httpapi.CreatePayeeRequest
	if !decode(w, r, &req) {
		return
	}
	customerID, _ := middleware.GetCustomerID(r.Context())
	if req.CustomerID != customerID {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "customer does not match token")
		return
	}
	id, err := h.bank.Create(r.Context(), req.CustomerID, req.Payee)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, httpapi.CreatePayeeResponse{PayeeID: id})
}

func (h *Handler) deletePayee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	customerID, _ := middleware.GetCustomerID(r.Context())
	if owner, ok := h.bank.PayeeOwner(id); ok && owner != customerID {
		writeError(w, http.StatusNotFound, sim.CodePayeeNotFound, "payee "+id+" not found")
		return
	}
	if err := h.bank.Delete(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownsOperation answers 404 when the operation belongs to another customer. Unknown operations pass
// through so the bank reports them.
func (h *Handler) ownsOperation(w http.ResponseWriter, r *http.Request, operationID string) bool {
	customerID, _ := middleware.GetCustomerID(r.Context())
	if owner, ok := h.bank.Owner(operationID); ok && owner != customerID {
		writeError(w, http.StatusNotFound, sim.CodeOperationNotFound, "operation "+operationID+" not found")
		return false
	}
	return true
}

// fail maps bank errors to responses: server errors keep their status, challenge expiry is 410.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	if se, ok := remote.AsServerError(err); ok {
		writeError(w, se.Status, se.Code, se.Description)
		return
	}
	if errors.Is(err, otp.ErrChallengeExpired) {
		writeError(w, http.StatusGone, "CHALLENGE_EXPIRED", "the code has expired, request a new one")
		return
	}
	h.logger.Error("sim: request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, sim.CodeInvalidRequest, "malformed body: "+strings.TrimSpace(err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, httpapi.ErrorBody{Code: code, Description: description})
}
