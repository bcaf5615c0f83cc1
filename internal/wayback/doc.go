// Package wayback defines the request descriptors, payloads and normalized records
// exchanged between the fetcher, the transformers and the document stores.
//
// Each archive endpoint is a value of Endpoint. Building the outbound request and
// normalizing the response are both dispatched on that value, so adding an endpoint
// means adding a constant and two switch arms.
package wayback
