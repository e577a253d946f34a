package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/example/devicestore/internal/persistence"
)

var userCounter uint64

// UserFixture is a deterministic user row to insert through a RecordStore.
type UserFixture struct {
	Name  string
	Email *string
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a user fixture with a unique name and email.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	email := fmt.Sprintf("user-%03d@example.com", idx)
	fixture := UserFixture{
		Name:  fmt.Sprintf("User %03d", idx),
		Email: &email,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithName overrides the generated name.
func WithName(name string) UserOption {
	return func(f *UserFixture) {
		f.Name = name
	}
}

// WithEmail overrides the generated email.
func WithEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = &email
	}
}

// WithoutEmail stores the user with a NULL email.
func WithoutEmail() UserOption {
	return func(f *UserFixture) {
		f.Email = nil
	}
}

// Record returns the row the store should hold for f once inserted as id.
func (f UserFixture) Record(id int64) persistence.UserRecord {
	return persistence.UserRecord{ID: id, Name: f.Name, Email: f.Email}
}

// SeedUsers inserts fixtures in order and returns the stored records.
func SeedUsers(tb testing.TB, store persistence.RecordStore, fixtures ...UserFixture) []persistence.UserRecord {
	tb.Helper()

	records := make([]persistence.UserRecord, 0, len(fixtures))
	for _, f := range fixtures {
		id, err := store.Insert(context.Background(), f.Name, f.Email)
		if err != nil {
			tb.Fatalf("seed user %q: %v", f.Name, err)
		}
		records = append(records, f.Record(id))
	}
	return records
}
