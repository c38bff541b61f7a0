package rankcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// ErrMirrorMiss is returned when the mirror has no entry for an establishment.
var ErrMirrorMiss = errors.New("rank mirror entry not found")

// DefaultMirrorTTL bounds how long a mirrored entry can outlive its source
// row. It is a multiple of the inactive update interval so a live updater
// always refreshes entries before they expire.
const DefaultMirrorTTL = 3 * time.Hour

const mirrorKeyPrefix = "rank:"

// Entry is the mirrored rank state for one establishment. Encoded with CBOR
// to keep the payload compact for high-volume search reads.
type Entry struct {
	EstablishmentID   string    `cbor:"1,keyasint"`
	QualityScore      float64   `cbor:"2,keyasint"`
	SubscriptionScore float64   `cbor:"3,keyasint"`
	StaticRank        float64   `cbor:"4,keyasint"`
	UpdatedAt         time.Time `cbor:"5,keyasint"`
	// Region is the geohash cell of the establishment, so operational
	// tooling can scan and drop mirrored entries for a hot cell.
	Region string `cbor:"6,keyasint,omitempty"`
}

// Mirror writes rank cache entries to Redis so search nodes can read cached
// factors without hitting the database. The database remains the source of
// truth; the mirror is best-effort and entries expire.
type Mirror struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewMirror creates a Mirror backed by the given Redis client.
// A zero ttl falls back to DefaultMirrorTTL.
func NewMirror(client redis.UniversalClient, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = DefaultMirrorTTL
	}
	return &Mirror{client: client, ttl: ttl}
}

// Put stores the entry under the establishment's mirror key.
func (m *Mirror) Put(ctx context.Context, entry Entry) error {
	if entry.EstablishmentID == "" {
		return errors.New("mirror entry requires an establishment id")
	}

	payload, err := cbor.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding rank mirror entry: %w", err)
	}

	if err := m.client.Set(ctx, mirrorKeyPrefix+entry.EstablishmentID, payload, m.ttl).Err(); err != nil {
		return fmt.Errorf("writing rank mirror entry: %w", err)
	}
	return nil
}

// Get retrieves the mirrored entry for an establishment.
// Returns ErrMirrorMiss when the key is absent or expired.
func (m *Mirror) Get(ctx context.Context, establishmentID string) (Entry, error) {
	payload, err := m.client.Get(ctx, mirrorKeyPrefix+establishmentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrMirrorMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("reading rank mirror entry: %w", err)
	}

	var entry Entry
	if err := cbor.Unmarshal(payload, &entry); err != nil {
		return Entry{}, fmt.Errorf("decoding rank mirror entry: %w", err)
	}
	return entry, nil
}

// Delete removes the mirrored entry for an establishment.
func (m *Mirror) Delete(ctx context.Context, establishmentID string) error {
	if err := m.client.Del(ctx, mirrorKeyPrefix+establishmentID).Err(); err != nil {
		return fmt.Errorf("deleting rank mirror entry: %w", err)
	}
	return nil
}
