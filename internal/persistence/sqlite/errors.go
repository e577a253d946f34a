package sqlite

import (
	"errors"
	"fmt"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/example/devicestore/internal/persistence"
)

// mapError translates driver errors into persistence errors using SQLite
// result codes. Errors it does not recognise are wrapped as DriverError.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		// Extended codes keep the primary code in the low byte.
		if sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return fmt.Errorf("%s: %w: %v", op, persistence.ErrConstraintViolation, err)
		}
	}
	return persistence.NewDriverError(op, err)
}
