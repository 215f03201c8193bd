package id

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs sort by creation time, so listing
// raffles or notifications newest-first is a reverse lexical sort.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Time extracts the creation instant encoded in a ULID.
func Time(s string) (time.Time, bool) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}
