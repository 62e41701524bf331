// Package httpapi implements the remote executor, the OTP service and the payee directory over HTTP/JSON.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"bizbank-confirmation/internal/cop"
	"bizbank-confirmation/internal/fraud"
	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/otp"
	otpdomain "bizbank-confirmation/internal/otp/domain"
	"bizbank-confirmation/internal/remote"
)

const (
	defaultTimeout = 15 * time.Second
	bearerPrefix   = "Bearer "
	maxBodyBytes   = 1 << 20
)

// ErrEmptyOperation is returned when the backend answers initiate without an operation id.
var ErrEmptyOperation = errors.New("httpapi: backend returned no operation id")

// Client talks to the banking backend. Requests are never retried.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is wrapped with otelhttp.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New returns a Client for baseURL authenticating with the bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.httpClient.Transport = otelhttp.NewTransport(base)
	return c
}

// Initiate posts the intent to /{kind}/initiate.
func (c *Client) Initiate(ctx context.Context, in domain.Intent) (remote.InitiateResult, error) {
	if !in.Kind.Valid() {
		return remote.InitiateResult{}, fmt.Errorf("httpapi: unknown intent kind %q", in.Kind)
	}
	req := InitiateRequest{
		IntentID:   in.ID,
		CustomerID: in.CustomerID,
		Payee:      in.Payee,
		Payment:    in.Payment,
		Forex:      in.Forex,
	}
	var resp InitiateResponse
	if err := c.do(ctx, http.MethodPost, "/"+string(in.Kind)+"/initiate", req, &resp); err != nil {
		return remote.InitiateResult{}, err
	}
	if resp.OperationID == "" {
		return remote.InitiateResult{}, ErrEmptyOperation
	}
	return remote.InitiateResult{
		OperationID: resp.OperationID,
		COP:         cop.Parse(resp.COPResponseCode, resp.COPNameMatch, resp.COPSuggestedName),
		FraudAlerts: fraud.AlertSet(resp.FraudAlerts),
	}, nil
}

// Finalize posts the gathered confirmations to /{kind}/finalize.
func (c *Client) Finalize(ctx context.Context, fr remote.FinalizeRequest) (bool, error) {
	if !fr.Kind.Valid() {
		return false, fmt.Errorf("httpapi: unknown intent kind %q", fr.Kind)
	}
	req := FinalizeRequest{
		OperationID:           fr.OperationID,
		SessionID:             fr.SessionID,
		ConfirmationType:      fr.ConfirmationType,
		FraudAcknowledgements: fr.FraudAcknowledgements,
		COPOverride:           fr.COPOverride,
	}
	var resp FinalizeResponse
	if err := c.do(ctx, http.MethodPost, "/"+string(fr.Kind)+"/finalize", req, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

// RequestChallenge implements otp.Service.
func (c *Client) RequestChallenge(ctx context.Context, operationID string) (otpdomain.Challenge, error) {
	var resp ChallengeResponse
	if err := c.do(ctx, http.MethodPost, "/otp/challenge", ChallengeRequest{OperationID: operationID}, &resp); err != nil {
		return otpdomain.Challenge{}, err
	}
	ch := otpdomain.Challenge{
		OperationID:      resp.OperationID,
		SessionID:        resp.SessionID,
		ConfirmationType: resp.ConfirmationType,
	}
	if resp.ExpiresAt != nil {
		ch.ExpiresAt = *resp.ExpiresAt
	}
	return ch, nil
}

// ConfirmChallenge implements otp.Service. HTTP 410 maps to otp.ErrChallengeExpired.
func (c *Client) ConfirmChallenge(ctx context.Context, ch otpdomain.Challenge, code string) (bool, error) {
	req := ConfirmRequest{OperationID: ch.OperationID, SessionID: ch.SessionID, Code: code}
	var resp ConfirmResponse
	err := c.do(ctx, http.MethodPost, "/otp/confirm", req, &resp)
	if se, ok := remote.AsServerError(err); ok && se.Status == http.StatusGone {
		return false, fmt.Errorf("%w: %s", otp.ErrChallengeExpired, se.Description)
	}
	if err != nil {
		return false, err
	}
	return resp.Confirmed, nil
}

// Create adds a payee for customerID and returns its id.
func (c *Client) Create(ctx context.Context, customerID string, p domain.PayeeDetails) (string, error) {
	var resp CreatePayeeResponse
	if err := c.do(ctx, http.MethodPost, "/payee", CreatePayeeRequest{CustomerID: customerID, Payee: p}, &resp); err != nil {
		return "", err
	}
	return resp.PayeeID, nil
}

// Delete removes a payee.
func (c *Client) Delete(ctx context.Context, payeeID string) error {
	return c.do(ctx, http.MethodDelete, "/payee/"+url.PathEscape(payeeID), nil, nil)
}

// do sends body as JSON and decodes a 2xx answer into out. Non-2xx answers become *remote.ServerError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpapi: encode %s: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", bearerPrefix+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("httpapi: read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &remote.ServerError{Status: resp.StatusCode}
		var eb ErrorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Code != "" {
			se.Code, se.Description = eb.Code, eb.Description
		} else {
			se.Code = http.StatusText(resp.StatusCode)
			se.Description = strings.TrimSpace(string(raw))
		}
		return se
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("httpapi: decode %s: %w", path, err)
	}
	return nil
}
