package wayback

import (
	"encoding/json"
	"time"

	"github.com/samber/lo"
)

// snapshotURLPrefix is joined with a capture timestamp and original URL to address a CDX capture.
const snapshotURLPrefix = "https://web.archive.org/web/"

// mementoTag marks capture rows in a JSON timemap.
const mementoTag = "memento"

// TransformAvailable normalizes an "available" response. Missing or mistyped
// fields yield nil derived values rather than an error.
func TransformAvailable(payload Payload, target string, fetchedAt time.Time) AvailabilityRecord {
	doc, _ := payload.JSON.(map[string]any)
	snapshots, _ := doc["archived_snapshots"].(map[string]any)
	closest, _ := snapshots["closest"].(map[string]any)

	return AvailabilityRecord{
		Envelope:           newEnvelope(EndpointAvailable, target, payload, fetchedAt),
		ClosestSnapshotURL: stringField(closest, "url"),
		ClosestTimestamp:   stringField(closest, "timestamp"),
		SnapshotAvailable:  boolField(closest, "available"),
		Status:             stringField(closest, "status"),
	}
}

type cdxCapture struct {
	timestamp string
	original  string
}

// TransformCDX normalizes a CDX response. The first row is the column header;
// every later row counts as a capture. Payloads that are not an array of rows
// produce an empty summary.
func TransformCDX(payload Payload, target string, fetchedAt time.Time) SnapshotSummary {
	summary := SnapshotSummary{Envelope: newEnvelope(EndpointCDX, target, payload, fetchedAt)}

	rows := decodeRows(payload)
	if len(rows) < 2 {
		return summary
	}
	captures := rows[1:]
	summary.TotalSnapshots = len(captures)

	candidates := lo.FilterMap(captures, func(row any, _ int) (cdxCapture, bool) {
		cells, _ := row.([]any)
		ts := cellString(cells, 0)
		if ts == nil {
			return cdxCapture{}, false
		}
		c := cdxCapture{timestamp: *ts}
		if original := cellString(cells, 1); original != nil {
			c.original = *original
		}
		return c, true
	})
	if len(candidates) == 0 {
		return summary
	}

	latest := lo.MaxBy(candidates, func(a, b cdxCapture) bool {
		return a.timestamp > b.timestamp
	})
	snapshotURL := snapshotURLPrefix + latest.timestamp + "/" + latest.original
	summary.LatestTimestamp = &latest.timestamp
	summary.LatestSnapshotURL = &snapshotURL
	return summary
}

type memento struct {
	timestamp string
	uri       *string
}

// TransformTimemap normalizes a JSON timemap. Only rows tagged "memento" count
// as captures; the header row never matches.
func TransformTimemap(payload Payload, target string, fetchedAt time.Time) SnapshotSummary {
	summary := SnapshotSummary{Envelope: newEnvelope(EndpointTimemap, target, payload, fetchedAt)}

	mementos := lo.FilterMap(decodeRows(payload), func(row any, _ int) ([]any, bool) {
		cells, _ := row.([]any)
		tag := cellString(cells, 0)
		return cells, tag != nil && *tag == mementoTag
	})
	summary.TotalSnapshots = len(mementos)

	candidates := lo.FilterMap(mementos, func(cells []any, _ int) (memento, bool) {
		ts := cellString(cells, 1)
		if ts == nil {
			return memento{}, false
		}
		return memento{timestamp: *ts, uri: cellString(cells, 2)}, true
	})
	if len(candidates) == 0 {
		return summary
	}

	latest := lo.MaxBy(candidates, func(a, b memento) bool {
		return a.timestamp > b.timestamp
	})
	summary.LatestTimestamp = &latest.timestamp
	summary.LatestSnapshotURL = latest.uri
	return summary
}

func newEnvelope(e Endpoint, target string, payload Payload, fetchedAt time.Time) Envelope {
	return Envelope{
		URL:       target,
		Endpoint:  e,
		FetchedAt: fetchedAt.UTC(),
		Raw:       payload.Raw(),
	}
}

// decodeRows accepts decoded rows or a JSON document holding them. Anything
// else decodes to no rows.
func decodeRows(payload Payload) []any {
	var encoded string
	switch v := payload.Raw().(type) {
	case []any:
		return v
	case string:
		encoded = v
	default:
		return nil
	}
	var rows []any
	if err := json.Unmarshal([]byte(encoded), &rows); err != nil {
		return nil
	}
	return rows
}

func cellString(cells []any, i int) *string {
	if i >= len(cells) {
		return nil
	}
	s, ok := cells[i].(string)
	if !ok {
		return nil
	}
	return &s
}

func stringField(m map[string]any, key string) *string {
	s, ok := m[key].(string)
	if !ok {
		return nil
	}
	return &s
}

func boolField(m map[string]any, key string) *bool {
	b, ok := m[key].(bool)
	if !ok {
		return nil
	}
	return &b
}
