package wayback

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Default archive endpoint locations.
const (
	DefaultAvailableURL = "http://archive.org/wayback/available"
	DefaultCDXURL       = "https://web.archive.org/cdx/search/cdx"
	DefaultTimemapURL   = "https://web.archive.org/web/timemap/json"
	DefaultCDXLimit     = 10
)

// Archive locates the endpoints of one archive deployment.
type Archive struct {
	AvailableURL string
	CDXURL       string
	TimemapURL   string
	CDXLimit     int
}

// DefaultArchive points at the public Wayback Machine.
func DefaultArchive() Archive {
	return Archive{
		AvailableURL: DefaultAvailableURL,
		CDXURL:       DefaultCDXURL,
		TimemapURL:   DefaultTimemapURL,
		CDXLimit:     DefaultCDXLimit,
	}
}

// BuildRequest describes the call that queries endpoint e about target.
func (a Archive) BuildRequest(e Endpoint, target string) (Request, error) {
	req := Request{
		Target:   target,
		Endpoint: e,
		Query:    url.Values{"url": {target}},
	}
	switch e {
	case EndpointAvailable:
		req.URL = a.AvailableURL
	case EndpointCDX:
		req.URL = a.CDXURL
		req.Query.Set("output", "json")
		req.Query.Set("limit", strconv.Itoa(a.CDXLimit))
	case EndpointTimemap:
		// The timemap endpoint takes the target as a path suffix, unescaped.
		req.URL = strings.TrimRight(a.TimemapURL, "/") + "/" + target
	default:
		return Request{}, fmt.Errorf("unknown endpoint %q", e)
	}
	return req, nil
}

// Transform normalizes a fetched payload into the record for req's endpoint.
// fetchedAt is converted to UTC before it is stored.
func Transform(req Request, payload Payload, fetchedAt time.Time) (Record, error) {
	switch req.Endpoint {
	case EndpointAvailable:
		return TransformAvailable(payload, req.Target, fetchedAt), nil
	case EndpointCDX:
		return TransformCDX(payload, req.Target, fetchedAt), nil
	case EndpointTimemap:
		return TransformTimemap(payload, req.Target, fetchedAt), nil
	default:
		return nil, fmt.Errorf("no transformer for endpoint %q", req.Endpoint)
	}
}
