package intent

import (
	"context"
	"encoding/json"

	"bizbank-confirmation/internal/intent/domain"
)

// Submit decodes a JSON form for kind and dispatches to the matching Submit method. A body that does
// not decode is reported as an invalid_format failure on field "form".
func (b *Builder) Submit(ctx context.Context, customerID string, kind domain.Kind, form json.RawMessage) (domain.Intent, error) {
	switch kind {
	case domain.KindPayee:
		var f PayeeForm
		if err := decodeForm(form, &f); err != nil {
			return domain.Intent{}, err
		}
		return b.SubmitPayee(ctx, customerID, f)
	case domain.KindPayment:
		var f PaymentForm
		if err := decodeForm(form, &f); err != nil {
			return domain.Intent{}, err
		}
		return b.SubmitPayment(ctx, customerID, f)
	case domain.KindForexOrder:
		var f ForexForm
		if err := decodeForm(form, &f); err != nil {
			return domain.Intent{}, err
		}
		return b.SubmitForexOrder(ctx, customerID, f)
	}
	return domain.Intent{}, &domain.ValidationError{Failures: []domain.Failure{
		{Field: "kind", Code: domain.CodeInvalidFormat, Detail: "unknown kind " + string(kind)},
	}}
}

func decodeForm(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &domain.ValidationError{Failures: []domain.Failure{
			{Field: "form", Code: domain.CodeInvalidFormat, Detail: err.Error()},
		}}
	}
	return nil
}
