// Package transfer orchestrates ingestion and retrieval of stored objects,
// tying together admission control, the object store and the metadata ledger.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dropgate/dropgate/internal/metadata"
	"github.com/dropgate/dropgate/internal/ratelimit"
	"github.com/dropgate/dropgate/internal/storage"
	"github.com/dropgate/dropgate/pkg/logging"
	"github.com/dropgate/dropgate/pkg/metrics"
)

// sniffLen is how many leading bytes are buffered for mime detection before
// the rest of the stream is handed to the object store untouched.
const sniffLen = 3072

// Stats summarizes the stored population for the statistics endpoint.
type Stats struct {
	TotalObjects   int64  `json:"total_objects"`
	TotalBytes     int64  `json:"total_bytes"`
	AvailableBytes uint64 `json:"available_bytes"`
}

// Coordinator drives a single ingestion or retrieval end to end.
type Coordinator struct {
	store   storage.Store
	ledger  *metadata.Ledger
	limiter *ratelimit.Limiter
	maxSize int64

	newID func() string
	now   func() time.Time
}

// NewCoordinator wires a coordinator over its collaborators. maxSize caps a
// single object's logical size in bytes.
func NewCoordinator(store storage.Store, ledger *metadata.Ledger, limiter *ratelimit.Limiter, maxSize int64) *Coordinator {
	return &Coordinator{
		store:   store,
		ledger:  ledger,
		limiter: limiter,
		maxSize: maxSize,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// ParseID validates an identifier string, returning its canonical form or
// ErrInvalidID. Only the plain 36-character UUID form is accepted.
func ParseID(raw string) (string, error) {
	if len(raw) != 36 {
		return "", ErrInvalidID
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", ErrInvalidID
	}
	return id.String(), nil
}

// Ingest streams one object into storage and records it in the ledger,
// returning the generated identifier. declaredSize <= 0 means the caller does
// not know the size up front; the mid-stream cap still applies. If the source
// fails or disconnects mid-stream, the partial object is cleaned up and no
// identifier escapes.
func (c *Coordinator) Ingest(ctx context.Context, ownerID, originalName string, src io.Reader, declaredSize int64) (string, error) {
	log := logging.Log.WithFields(logrus.Fields{"op": "ingest", "owner": ownerID})

	if c.maxSize > 0 && declaredSize > c.maxSize {
		metrics.IngestFailuresTotal.WithLabelValues("too_large").Inc()
		return "", ErrTooLarge
	}
	if !c.limiter.Allow(ownerID) {
		metrics.RateLimitedTotal.Inc()
		metrics.IngestFailuresTotal.WithLabelValues("rate_limited").Inc()
		log.Debug("admission denied")
		return "", ErrRateLimited
	}
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrStorage, ctx.Err())
	default:
	}

	id := c.newID()
	log = log.WithField("id", id)

	mimeType, body, err := sniffMime(src)
	if err != nil {
		metrics.IngestFailuresTotal.WithLabelValues("storage").Inc()
		log.WithError(err).Error("failed to read source stream")
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	written, err := c.store.Put(id, body)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			metrics.IngestFailuresTotal.WithLabelValues("too_large").Inc()
			log.Warn("ingest aborted: stream exceeded size limit")
			return "", ErrTooLarge
		}
		metrics.IngestFailuresTotal.WithLabelValues("storage").Inc()
		log.WithError(err).Error("object write failed")
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	rec := metadata.Record{
		ID:           id,
		OwnerID:      ownerID,
		OriginalName: originalName,
		SizeBytes:    written,
		MimeType:     mimeType,
		CreatedAt:    c.now().UTC(),
	}
	if err := c.ledger.Insert(rec); err != nil {
		// The bytes must not outlive a failed insert.
		if _, derr := c.store.Delete(id); derr != nil {
			log.WithError(derr).Warn("could not clean up object after failed insert")
		}
		if errors.Is(err, metadata.ErrConflict) {
			metrics.IngestFailuresTotal.WithLabelValues("conflict").Inc()
			log.Error("generated identifier collided")
			return "", ErrConflict
		}
		metrics.IngestFailuresTotal.WithLabelValues("storage").Inc()
		log.WithError(err).Error("ledger insert failed")
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	metrics.IngestsTotal.Inc()
	metrics.IngestedBytesTotal.Add(float64(written))
	log.WithFields(logrus.Fields{
		"name": originalName,
		"size": humanize.Bytes(uint64(written)),
	}).Info("object stored")
	return id, nil
}

// Retrieve validates the identifier, looks up the ledger row, opens the byte
// stream and records the access. The caller owns closing the stream.
func (c *Coordinator) Retrieve(rawID string) (io.ReadCloser, metadata.Record, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return nil, metadata.Record{}, err
	}
	log := logging.Log.WithFields(logrus.Fields{"op": "retrieve", "id": id})

	rec, err := c.ledger.Get(id)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, metadata.Record{}, ErrNotFound
		}
		log.WithError(err).Error("ledger lookup failed")
		return nil, metadata.Record{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	stream, err := c.store.Get(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Row without bytes: a sweep or crash got here first.
			return nil, metadata.Record{}, ErrNotFound
		}
		log.WithError(err).Error("object open failed")
		return nil, metadata.Record{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := c.ledger.RecordAccess(id); err != nil {
		// Bookkeeping must not fail a download that is already streaming.
		log.WithError(err).Warn("could not record access")
	}
	metrics.RetrievalsTotal.Inc()
	return stream, rec, nil
}

// Stats reports object count, stored bytes and remaining capacity.
func (c *Coordinator) Stats() (Stats, error) {
	count, totalBytes, err := c.ledger.Aggregate()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	available, err := c.store.AvailableSpace()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return Stats{
		TotalObjects:   count,
		TotalBytes:     totalBytes,
		AvailableBytes: available,
	}, nil
}

// sniffMime buffers the first sniffLen bytes for content-type detection and
// returns a reader that replays them ahead of the rest of the stream.
func sniffMime(src io.Reader) (string, io.Reader, error) {
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(src, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	header = header[:n]
	return mimetype.Detect(header).String(), io.MultiReader(bytes.NewReader(header), src), nil
}
