package wayback

import "github.com/morikuni/failure/v2"

// ErrorCode classifies failures raised while fetching and persisting records.
type ErrorCode string

const (
	// ErrRateLimited marks an HTTP 429 answer; it is retried.
	ErrRateLimited ErrorCode = "RateLimited"
	// ErrHTTPStatus marks any other failing HTTP status; it is retried.
	ErrHTTPStatus ErrorCode = "HTTPStatus"
	// ErrFetchExhausted is returned once every attempt for a request has failed.
	ErrFetchExhausted ErrorCode = "FetchExhausted"
	// ErrStoreWrite wraps any failure to persist a record.
	ErrStoreWrite ErrorCode = "StoreWrite"
	// ErrInvalidConfig reports configuration that cannot produce a working run.
	ErrInvalidConfig ErrorCode = "InvalidConfig"
)

// ErrorCode implements the failure code contract.
func (c ErrorCode) ErrorCode() string {
	return string(c)
}

// RequireStoreTarget rejects an insert that names no database or collection.
// Unset names are only detected here, at write time.
func RequireStoreTarget(database, collection string) error {
	if database == "" || collection == "" {
		return failure.New(ErrStoreWrite,
			failure.Message("database and collection names are required"),
			failure.Context{"database": database, "collection": collection},
		)
	}
	return nil
}
