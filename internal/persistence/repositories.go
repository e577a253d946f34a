package persistence

import "context"

// RecordStore exposes the typed operations over the users table.
type RecordStore interface {
	Insert(ctx context.Context, name string, email *string) (int64, error)
	DeleteByID(ctx context.Context, id int64) error
	QueryAll(ctx context.Context) ([]UserRecord, error)
}
