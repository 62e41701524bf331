package repository

import (
	"context"

	"bizbank-confirmation/internal/audit/domain"
)

// Repository defines persistence for workflow audit entries.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	ListByIntent(ctx context.Context, intentID string) ([]*domain.Entry, error)
	ListByCustomer(ctx context.Context, customerID string, limit, offset int32) ([]*domain.Entry, error)
}
