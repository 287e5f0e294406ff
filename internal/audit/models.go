package audit

import (
	"context"
	"time"
)

// Details recorded on authentication outcomes
const (
	DetailSuccess          = "authentication successful"
	DetailListed           = "accounts listed"
	DetailRateLimited      = "rate limited"
	DetailInvalidKey       = "invalid access key"
	DetailAccountNotFound  = "account not found"
	DetailRevoked          = "access denied: revoked"
	DetailNoMatchingGroup  = "access denied: no matching group"
	DetailRoleLookupFailed = "role lookup failed"
	DetailStoreUnavailable = "store unavailable"
)

// ListingIdentifier is the presented identifier recorded for account listing
// requests. Query hides these entries unless asked.
const ListingIdentifier = "list_accounts"

// Storage widths of the free text fields of Entry
const (
	MaxOriginLength     = 64
	MaxIdentifierLength = 255
	MaxDetailsLength    = 255
)

// Entry is one authentication or authorization attempt
type Entry struct {
	ID                int64
	RequestID         string
	Timestamp         time.Time
	Origin            string
	Identifier        string
	Success           bool
	SubjectID         *int64
	AccountID         *int64
	TenantID          *int64
	Details           string
	RateLimitEligible bool
}

// Filter narrows Query. Nil pointers do not filter.
type Filter struct {
	TenantID       *int64
	Identifier     string
	Success        *bool
	Since          *time.Time
	SubjectID      *int64
	Origin         string
	IncludeListing bool
	Limit          int
	Offset         int
}

// DefaultQueryLimit applies when Filter.Limit is not positive
const DefaultQueryLimit = 100

// Repository defines the append-only audit store
type Repository interface {
	// Insert appends an entry, setting its ID
	Insert(ctx context.Context, entry *Entry) error

	// Query returns matching entries, newest first
	Query(ctx context.Context, filter Filter) ([]*Entry, error)

	// CountFailures counts failed, rate-limit eligible entries from origin
	// at or after since
	CountFailures(ctx context.Context, origin string, since time.Time) (int64, error)

	// Acknowledge marks every failed eligible entry from origin as not
	// eligible and returns how many changed
	Acknowledge(ctx context.Context, origin string) (int64, error)
}

// Statistics summarizes a set of entries
type Statistics struct {
	Total             int
	Successful        int
	Failed            int
	UniqueIdentifiers int
	UniqueOrigins     int
	SuccessRate       float64 // percent
}

// OriginFailures counts failures from one origin
type OriginFailures struct {
	Origin   string
	Failures int
}
