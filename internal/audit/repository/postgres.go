package repository

import (
	"context"
	"database/sql"

	"bizbank-confirmation/internal/audit/domain"
)

const (
	insertEntrySQL = `INSERT INTO workflow_audit
	(id, intent_id, customer_id, kind, operation_id, action, resource, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	selectEntryColumns = `SELECT id, intent_id, customer_id, kind, operation_id, action, resource, metadata, created_at
	FROM workflow_audit`

	listByIntentSQL   = selectEntryColumns + ` WHERE intent_id = $1 ORDER BY created_at, id`
	listByCustomerSQL = selectEntryColumns + ` WHERE customer_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
)

// PostgresRepository stores audit entries in Postgres through database/sql.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists e. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	_, err := r.db.ExecContext(ctx, insertEntrySQL,
		e.ID, e.IntentID, e.CustomerID, e.Kind,
		nullString(e.OperationID), e.Action, e.Resource, nullString(e.Metadata), e.CreatedAt,
	)
	return err
}

// ListByIntent returns every entry of one intent in chronological order.
func (r *PostgresRepository) ListByIntent(ctx context.Context, intentID string) ([]*domain.Entry, error) {
	return r.query(ctx, listByIntentSQL, intentID)
}

// ListByCustomer returns the customer's entries, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID string, limit, offset int32) ([]*domain.Entry, error) {
	return r.query(ctx, listByCustomerSQL, customerID, limit, offset)
}

func (r *PostgresRepository) query(ctx context.Context, q string, args ...any) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Entry
	for rows.Next() {
		var (
			e        domain.Entry
			opID     sql.NullString
			metadata sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.IntentID, &e.CustomerID, &e.Kind, &opID, &e.Action, &e.Resource, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.OperationID = opID.String
		e.Metadata = metadata.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
