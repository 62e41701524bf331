package middleware

import "context"

type contextKey struct{ name string }

var customerIDKey = contextKey{"customer_id"}

// WithCustomer returns a context carrying the authenticated customer id.
// Handlers read it via GetCustomerID.
func WithCustomer(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, customerIDKey, customerID)
}

// GetCustomerID returns the customer_id from context and true if set; otherwise "", false.
func GetCustomerID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(customerIDKey).(string)
	return v, ok && v != ""
}
