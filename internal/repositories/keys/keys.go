// Package keys owns the store key layout. Every process-wide structure has a
// fixed name; account records are keyed by lowercase email. An optional
// prefix namespaces all keys, e.g. to share one Redis between environments.
package keys

import "strings"

// Index names a process-wide secondary structure.
type Index string

const (
	// Score-ordered sets.
	Waitlist Index = "waitlist"
	Users    Index = "users"

	// Field maps of token or name to lowercase email.
	Invited        Index = "invited"
	Unconfirmed    Index = "unconfirmed"
	ScreenNames    Index = "screenNames"
	ResetPasswords Index = "resetPasswords"
	RememberMe     Index = "rememberMe"
	SuperUsers     Index = "superUsers"

	// Stats is the aggregate counters record.
	Stats Index = "stats"
)

// Space maps logical names to concrete store keys.
type Space struct {
	prefix string
}

func NewSpace(prefix string) Space {
	return Space{prefix: prefix}
}

// Account returns the record key for email. The key is the lowercase email
// regardless of display casing.
func (s Space) Account(email string) string {
	return s.prefix + Normalize(email)
}

// Index returns the key of a process-wide structure.
func (s Space) Index(i Index) string {
	return s.prefix + string(i)
}

// Normalize lowercases an email or screen name for use as a key.
func Normalize(v string) string {
	return strings.ToLower(v)
}
