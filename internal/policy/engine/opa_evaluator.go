// Package engine evaluates the submission policy with OPA Rego.
package engine

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/logging"
)

const query = "data.bizbank.submission"

// Default Rego policy: payment and exchange limits and blocked payee countries.
//
//go:embed default.rego
var defaultRegoPolicy string

// ErrNoResult is returned when the policy package produced no decision.
var ErrNoResult = errors.New("policy: query returned no result")

// Decision is the evaluated policy for one intent.
type Decision struct {
	Allow   bool
	Reasons []string
}

// OPAEvaluator evaluates intents against a compiled Rego module. It is safe for concurrent use.
type OPAEvaluator struct {
	prepared rego.PreparedEvalQuery
	logger   *zap.Logger
}

// NewOPAEvaluator compiles module, or the default policy when module is empty.
func NewOPAEvaluator(ctx context.Context, module string, logger *zap.Logger) (*OPAEvaluator, error) {
	if strings.TrimSpace(module) == "" {
		module = defaultRegoPolicy
	}
	prepared, err := prepare(ctx, module)
	if err != nil {
		return nil, err
	}
	return &OPAEvaluator{prepared: prepared, logger: logging.OrNop(logger)}, nil
}

// ReadPolicyFile returns the Rego source at path.
func ReadPolicyFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("policy: read %s: %w", path, err)
	}
	return string(b), nil
}

func prepare(ctx context.Context, module string) (rego.PreparedEvalQuery, error) {
	compiler, err := ast.CompileModules(map[string]string{"policy_0.rego": module})
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("compile policy: %w", err)
	}
	pq, err := rego.New(rego.Query(query), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("prepare policy: %w", err)
	}
	return pq, nil
}

// HealthCheck verifies that the in-process engine can compile and evaluate the default policy.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	pq, err := prepare(ctx, defaultRegoPolicy)
	if err != nil {
		return err
	}
	minimal := map[string]interface{}{"kind": string(domain.KindPayee)}
	if _, err := decide(ctx, pq, minimal); err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	return nil
}

// Evaluate runs the policy for in.
func (e *OPAEvaluator) Evaluate(ctx context.Context, in domain.Intent) (Decision, error) {
	input, err := buildInput(in)
	if err != nil {
		return Decision{}, fmt.Errorf("build input: %w", err)
	}
	return decide(ctx, e.prepared, input)
}

// EvaluateSubmission implements intent.Policy. On an evaluation error the intent is allowed and the
// error returned for the caller to log.
func (e *OPAEvaluator) EvaluateSubmission(ctx context.Context, in domain.Intent) (bool, string, error) {
	d, err := e.Evaluate(ctx, in)
	if err != nil {
		return true, "", err
	}
	if !d.Allow {
		e.logger.Info("policy: submission denied", zap.String("intent_id", in.ID), zap.Strings("reasons", d.Reasons))
	}
	return d.Allow, strings.Join(d.Reasons, "; "), nil
}

type submissionInput struct {
	Kind        string               `json:"kind"`
	CustomerID  string               `json:"customerId"`
	Amount      string               `json:"amount,omitempty"`
	Currency    string               `json:"currency,omitempty"`
	Beneficiary *domain.PayeeDetails `json:"beneficiary,omitempty"`
	PayeeID     string               `json:"payeeId,omitempty"`
	Recurring   bool                 `json:"recurring"`
}

// buildInput flattens the intent to the JSON document the policy sees.
func buildInput(in domain.Intent) (map[string]interface{}, error) {
	si := submissionInput{
		Kind:        string(in.Kind),
		CustomerID:  in.CustomerID,
		Beneficiary: in.Beneficiary(),
	}
	if amount, currency, ok := in.Amount(); ok {
		si.Amount, si.Currency = amount.String(), currency
	}
	if in.Payment != nil {
		si.PayeeID = in.Payment.PayeeID
		si.Recurring = in.Payment.Recurrence != nil
	}
	raw, err := json.Marshal(si)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func decide(ctx context.Context, pq rego.PreparedEvalQuery, input map[string]interface{}) (Decision, error) {
	rs, err := pq.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, ErrNoResult
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("policy: unexpected result %T", rs[0].Expressions[0].Value)
	}
	var d Decision
	if v, ok := doc["allow"].(bool); ok {
		d.Allow = v
	}
	if deny, ok := doc["deny"].([]interface{}); ok {
		for _, m := range deny {
			if s, ok := m.(string); ok {
				d.Reasons = append(d.Reasons, s)
			}
		}
		sort.Strings(d.Reasons)
	}
	if !d.Allow && len(d.Reasons) == 0 {
		d.Reasons = []string{"denied by policy"}
	}
	return d, nil
}
