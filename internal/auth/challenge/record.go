package challenge

import "time"

// Record is the in-memory view of a user's second-factor secret. The secret
// is plaintext base32 here; it is only ever persisted encrypted. Records are
// plain values with no behaviour — all mutation goes through the Store.
type Record struct {
	ID         string
	UserID     string
	Secret     string
	LastAccess *time.Time
}
