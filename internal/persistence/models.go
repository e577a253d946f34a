package persistence

// UserRecord is a row of the users table.
type UserRecord struct {
	ID    int64
	Name  string
	Email *string
}

// EmailOrEmpty returns the email or "" when it is NULL.
func (r UserRecord) EmailOrEmpty() string {
	if r.Email == nil {
		return ""
	}
	return *r.Email
}
