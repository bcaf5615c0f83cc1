// Package pipeline drives a run: every target URL is queried on every archive
// endpoint, and each response is transformed and stored before the next call.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-etl/internal/metrics"
	"github.com/JakeFAU/wayback-etl/internal/wayback"
)

// Config controls Runner behavior.
type Config struct {
	RunID      string
	Archive    wayback.Archive
	Database   string
	Collection string
	// BlobPrefix roots raw payload paths when a blob store is configured.
	BlobPrefix string
	// Topic receives record notifications when a publisher is configured.
	Topic string
}

// Runner executes the fetch, transform and load sequence.
type Runner struct {
	fetcher   wayback.Fetcher
	store     wayback.Store
	clock     wayback.Clock
	blobStore wayback.BlobStore
	hasher    wayback.Hasher
	publisher wayback.Publisher
	cfg       Config
	logger    *zap.Logger
}

// Summary reports what a run stored.
type Summary struct {
	Records     int
	RawPayloads int
}

// Notification announces a stored record.
type Notification struct {
	RunID     string `json:"run_id"`
	URL       string `json:"url"`
	Endpoint  string `json:"endpoint"`
	FetchedAt string `json:"fetched_at"`
	BlobURI   string `json:"blob_uri,omitempty"`
}

// New constructs a Runner. blobStore, hasher and publisher are optional.
func New(
	fetcher wayback.Fetcher,
	store wayback.Store,
	clock wayback.Clock,
	blobStore wayback.BlobStore,
	hasher wayback.Hasher,
	publisher wayback.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Archive == (wayback.Archive{}) {
		cfg.Archive = wayback.DefaultArchive()
	}
	return &Runner{
		fetcher:   fetcher,
		store:     store,
		clock:     clock,
		blobStore: blobStore,
		hasher:    hasher,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run processes urls in order, visiting the endpoints in fixed order for each.
// The first fetch, archive, store or publish failure stops the run.
func (r *Runner) Run(ctx context.Context, urls []string) (Summary, error) {
	var summary Summary
	for _, target := range urls {
		for _, endpoint := range wayback.Endpoints() {
			if err := ctx.Err(); err != nil {
				return summary, fmt.Errorf("run interrupted: %w", err)
			}
			if err := r.handle(ctx, target, endpoint, &summary); err != nil {
				r.logger.Error("run aborted",
					zap.String("url", target),
					zap.String("endpoint", string(endpoint)),
					zap.Error(err),
				)
				return summary, err
			}
		}
	}
	r.logger.Info("run complete",
		zap.Int("urls", len(urls)),
		zap.Int("records", summary.Records),
		zap.Int("raw_payloads", summary.RawPayloads),
	)
	return summary, nil
}

func (r *Runner) handle(ctx context.Context, target string, endpoint wayback.Endpoint, summary *Summary) error {
	req, err := r.cfg.Archive.BuildRequest(endpoint, target)
	if err != nil {
		return err
	}
	r.logger.Info("fetching", zap.String("url", target), zap.String("endpoint", string(endpoint)))

	payload, err := r.fetcher.Fetch(ctx, req)
	if err != nil {
		return err
	}

	blobURI, err := r.archiveRaw(ctx, endpoint, payload)
	if err != nil {
		return err
	}
	if blobURI != "" {
		summary.RawPayloads++
	}

	record, err := wayback.Transform(req, payload, r.clock.Now())
	if err != nil {
		return err
	}
	if err := r.store.Insert(ctx, r.cfg.Database, r.cfg.Collection, record); err != nil {
		return err
	}
	summary.Records++
	metrics.ObserveRecordStored(string(endpoint))
	r.logger.Debug("record stored", zap.String("url", target), zap.String("endpoint", string(endpoint)))

	return r.publishRecord(ctx, record.Meta(), blobURI)
}

// archiveRaw writes the payload verbatim to the blob store, when one is
// configured, and returns its URI.
func (r *Runner) archiveRaw(ctx context.Context, endpoint wayback.Endpoint, payload wayback.Payload) (string, error) {
	if r.blobStore == nil || r.hasher == nil {
		return "", nil
	}
	body, ext, contentType, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	digest, err := r.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	uri, err := r.blobStore.PutObject(ctx, r.blobPath(endpoint, digest, ext), contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("archive raw payload: %w", err)
	}
	metrics.ObserveRawArchived(string(endpoint))
	return uri, nil
}

func (r *Runner) blobPath(endpoint wayback.Endpoint, digest, ext string) string {
	parts := make([]string, 0, 4)
	if prefix := strings.Trim(r.cfg.BlobPrefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	if r.cfg.RunID != "" {
		parts = append(parts, r.cfg.RunID)
	}
	parts = append(parts, string(endpoint), digest+ext)
	return strings.Join(parts, "/")
}

func encodePayload(payload wayback.Payload) ([]byte, string, string, error) {
	if !payload.IsJSON {
		contentType := payload.ContentType
		if contentType == "" {
			contentType = "text/plain"
		}
		return []byte(payload.Text), ".txt", contentType, nil
	}
	body, err := json.Marshal(payload.JSON)
	if err != nil {
		return nil, "", "", fmt.Errorf("encode payload: %w", err)
	}
	return body, ".json", "application/json", nil
}

func (r *Runner) publishRecord(ctx context.Context, meta wayback.Envelope, blobURI string) error {
	if r.cfg.Topic == "" || r.publisher == nil {
		return nil
	}
	note := Notification{
		RunID:     r.cfg.RunID,
		URL:       meta.URL,
		Endpoint:  string(meta.Endpoint),
		FetchedAt: meta.FetchedAt.Format(time.RFC3339Nano),
		BlobURI:   blobURI,
	}
	id, err := r.publisher.Publish(ctx, r.cfg.Topic, note)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	r.logger.Debug("record published", zap.String("url", meta.URL), zap.String("message_id", id))
	return nil
}
