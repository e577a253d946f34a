package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/example/devicestore/internal/persistence"
)

const maxNameLength = 200

// UserInput is the caller-supplied data for a new user.
type UserInput struct {
	Name  string
	Email string
}

// UserService validates input and delegates to a RecordStore. A service
// built without a store reports ErrStorageUnavailable so callers can carry
// on without persistence.
type UserService struct {
	users  persistence.RecordStore
	logger *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users persistence.RecordStore, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// Available reports whether the service has a store behind it.
func (s *UserService) Available() bool {
	return s != nil && s.users != nil
}

// AddUser validates input and persists a new user.
func (s *UserService) AddUser(ctx context.Context, input UserInput) (persistence.UserRecord, error) {
	if !s.Available() {
		return persistence.UserRecord{}, ErrStorageUnavailable
	}
	logger := serviceLogger(ctx, s.logger, "user", "add")

	normalized := normalizeUserInput(input)
	if vErr := validateUserInput(normalized); vErr.HasErrors() {
		logger.Info("user rejected", "error_kind", ErrorKind(vErr), "error", vErr)
		return persistence.UserRecord{}, vErr
	}

	record := persistence.UserRecord{Name: normalized.Name}
	if normalized.Email != "" {
		email := normalized.Email
		record.Email = &email
	}

	id, err := s.users.Insert(ctx, record.Name, record.Email)
	if err != nil {
		logger.Error("insert failed", "error_kind", ErrorKind(err), "error", err)
		return persistence.UserRecord{}, err
	}
	record.ID = id

	logger.Info("user added", "user_id", id)
	return record, nil
}

// ListUsers returns every user in insertion order.
func (s *UserService) ListUsers(ctx context.Context) ([]persistence.UserRecord, error) {
	if !s.Available() {
		return nil, ErrStorageUnavailable
	}

	users, err := s.users.QueryAll(ctx)
	if err != nil {
		serviceLogger(ctx, s.logger, "user", "list").
			Error("query failed", "error_kind", ErrorKind(err), "error", err)
		return nil, err
	}
	return users, nil
}

// RemoveUser deletes the user with id. Removing an unknown id succeeds.
func (s *UserService) RemoveUser(ctx context.Context, id int64) error {
	if !s.Available() {
		return ErrStorageUnavailable
	}
	logger := serviceLogger(ctx, s.logger, "user", "remove", "user_id", id)

	if id < 1 {
		vErr := &ValidationError{}
		vErr.add("id", fmt.Sprintf("id must be positive, got %d", id))
		return vErr
	}

	if err := s.users.DeleteByID(ctx, id); err != nil {
		logger.Error("delete failed", "error_kind", ErrorKind(err), "error", err)
		return err
	}

	logger.Info("user removed")
	return nil
}

func normalizeUserInput(input UserInput) UserInput {
	return UserInput{
		Name:  strings.TrimSpace(input.Name),
		Email: strings.ToLower(strings.TrimSpace(input.Email)),
	}
}

func validateUserInput(input UserInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Name == "" {
		vErr.add("name", "name is required")
	} else if utf8.RuneCountInString(input.Name) > maxNameLength {
		vErr.add("name", fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}

	if input.Email != "" {
		if addr, err := mail.ParseAddress(input.Email); err != nil || addr.Address != input.Email {
			vErr.add("email", "email is invalid")
		}
	}

	return vErr
}
