package store

import (
	"context"
	"fmt"
)

// Number prefixes per workflow type.
const (
	PrefixRequest  = "REQ"
	PrefixPurchase = "PB"
	PrefixOpname   = "SO"
)

// NextNumber increments the counter for prefix and returns the formatted
// number, e.g. "REQ-00000001". Run it inside the transaction that creates the
// numbered entity so a rolled-back creation does not consume a number.
func NextNumber(ctx context.Context, q Querier, prefix string) (string, error) {
	var value int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO sequences (name, value) VALUES (?, 1)
		 ON CONFLICT (name) DO UPDATE SET value = value + 1
		 RETURNING value`, prefix,
	).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("advancing %s sequence: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%08d", prefix, value), nil
}
