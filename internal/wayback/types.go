package wayback

import (
	"net/url"
	"time"
)

// Endpoint names one of the archive query endpoints.
type Endpoint string

// Supported archive endpoints, in the order a run visits them.
const (
	EndpointAvailable Endpoint = "available"
	EndpointCDX       Endpoint = "cdx"
	EndpointTimemap   Endpoint = "timemap"
)

// Endpoints returns every endpoint in fixed processing order.
func Endpoints() []Endpoint {
	return []Endpoint{EndpointAvailable, EndpointCDX, EndpointTimemap}
}

// Request describes one outbound call for a (target URL, endpoint) pair.
type Request struct {
	// Target is the page whose archive history is being queried.
	Target   string
	Endpoint Endpoint
	// URL is the endpoint URL without query parameters.
	URL   string
	Query url.Values
}

// Payload is a fetched response body, decoded as JSON when the server said so.
type Payload struct {
	// JSON holds the decoded body when IsJSON is true.
	JSON any
	// Text holds the body verbatim when IsJSON is false.
	Text        string
	IsJSON      bool
	ContentType string
}

// JSONPayload wraps an already decoded JSON value.
func JSONPayload(v any) Payload {
	return Payload{JSON: v, IsJSON: true, ContentType: "application/json"}
}

// TextPayload wraps a raw text body.
func TextPayload(s string) Payload {
	return Payload{Text: s, ContentType: "text/plain"}
}

// Raw returns the payload as it should be embedded in a record.
func (p Payload) Raw() any {
	if p.IsJSON {
		return p.JSON
	}
	return p.Text
}

// Envelope carries the fields shared by every normalized record.
type Envelope struct {
	URL       string    `bson:"url" json:"url"`
	Endpoint  Endpoint  `bson:"endpoint" json:"endpoint"`
	FetchedAt time.Time `bson:"fetched_at" json:"fetched_at"`
	Raw       any       `bson:"raw" json:"raw"`
}

// Meta returns the shared record fields.
func (e Envelope) Meta() Envelope {
	return e
}

// Record is a normalized document ready for persistence.
type Record interface {
	Meta() Envelope
}

// AvailabilityRecord is produced from the "available" endpoint.
type AvailabilityRecord struct {
	Envelope           `bson:",inline"`
	ClosestSnapshotURL *string `bson:"closest_snapshot_url" json:"closest_snapshot_url"`
	ClosestTimestamp   *string `bson:"closest_timestamp" json:"closest_timestamp"`
	SnapshotAvailable  *bool   `bson:"snapshot_available" json:"snapshot_available"`
	Status             *string `bson:"status" json:"status"`
}

// SnapshotSummary is produced from the "cdx" and "timemap" endpoints.
type SnapshotSummary struct {
	Envelope          `bson:",inline"`
	TotalSnapshots    int     `bson:"total_snapshots" json:"total_snapshots"`
	LatestSnapshotURL *string `bson:"latest_snapshot_url" json:"latest_snapshot_url"`
	LatestTimestamp   *string `bson:"latest_timestamp" json:"latest_timestamp"`
}
