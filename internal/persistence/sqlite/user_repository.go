package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"github.com/example/devicestore/internal/persistence"
)

// userModel maps the users table created by schema version 1.
type userModel struct {
	bun.BaseModel `bun:"table:users"`

	ID    int64          `bun:"id,pk,autoincrement"`
	Name  string         `bun:"name,notnull"`
	Email sql.NullString `bun:"email"`
}

func (m userModel) record() persistence.UserRecord {
	rec := persistence.UserRecord{ID: m.ID, Name: m.Name}
	if m.Email.Valid {
		email := m.Email.String
		rec.Email = &email
	}
	return rec
}

// UserRepository implements persistence.RecordStore over a migrated Handle.
type UserRepository struct {
	handle *Handle
}

var _ persistence.RecordStore = (*UserRepository)(nil)

// NewUserRepository creates a repository bound to h.
func NewUserRepository(h *Handle) *UserRepository {
	return &UserRepository{handle: h}
}

// Insert adds a user and returns the id the store allocated.
func (r *UserRepository) Insert(ctx context.Context, name string, email *string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("insert user: name is required: %w", persistence.ErrConstraintViolation)
	}

	model := &userModel{Name: name}
	if email != nil {
		model.Email = sql.NullString{String: *email, Valid: true}
	}

	err := r.exec(ctx, true, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewInsert().
			Model(model).
			Column("name", "email").
			Returning("id").
			Exec(ctx)
		return mapError("insert user", err)
	})
	if err != nil {
		return 0, err
	}
	return model.ID, nil
}

// DeleteByID removes the user with id. Deleting a missing id is not an error.
func (r *UserRepository) DeleteByID(ctx context.Context, id int64) error {
	return r.exec(ctx, true, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDelete().
			Model((*userModel)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		return mapError("delete user", err)
	})
}

// QueryAll returns every user in insertion order. The slice is never nil.
func (r *UserRepository) QueryAll(ctx context.Context) ([]persistence.UserRecord, error) {
	var models []userModel
	err := r.exec(ctx, false, func(ctx context.Context, db *bun.DB) error {
		err := db.NewSelect().
			Model(&models).
			OrderExpr("id ASC").
			Scan(ctx)
		return mapError("query users", err)
	})
	if err != nil {
		return nil, err
	}

	records := make([]persistence.UserRecord, 0, len(models))
	for _, m := range models {
		records = append(records, m.record())
	}
	return records, nil
}

func (r *UserRepository) exec(ctx context.Context, write bool, fn func(ctx context.Context, db *bun.DB) error) error {
	if r == nil || r.handle == nil {
		return fmt.Errorf("user repository has no handle: %w", persistence.ErrStoreNotReady)
	}
	h := r.handle
	return h.do(ctx, write, func(ctx context.Context) error {
		if err := h.requireReady(UsersTableVersion); err != nil {
			return err
		}
		return fn(ctx, h.bun)
	})
}
