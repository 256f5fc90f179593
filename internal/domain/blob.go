package domain

import "context"

// BlobWriter uploads immutable artifacts (purchase receipts) to object
// storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
