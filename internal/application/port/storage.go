package port

import "context"

// ReceiptStore keeps uploaded receipt files
type ReceiptStore interface {
	// Save stores content under a key derived from expenseID and filename, returning the key
	Save(ctx context.Context, expenseID, filename string, content []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
