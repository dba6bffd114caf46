package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnvelopeVersion is bumped whenever a persisted tier changes shape.
const EnvelopeVersion = 1

// ErrVersionMismatch is returned when a persisted envelope has another version.
var ErrVersionMismatch = errors.New("cache envelope version mismatch")

// Envelope wraps every persisted tier with a schema version and write time.
type Envelope struct {
	Version int             `json:"version"`
	SavedAt int64           `json:"saved_at"`
	Entries json.RawMessage `json:"entries"`
}

// SaveEnvelope writes entries under key wrapped in a versioned envelope.
func SaveEnvelope(ctx context.Context, store Store, key string, entries interface{}, now time.Time) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal %s entries: %w", key, err)
	}
	env := Envelope{
		Version: EnvelopeVersion,
		SavedAt: now.UnixMilli(),
		Entries: raw,
	}
	return store.Set(ctx, key, env, 0)
}

// LoadEnvelope reads key into dest. A missing key returns ErrCacheMiss and an
// envelope written by another schema version returns ErrVersionMismatch.
func LoadEnvelope(ctx context.Context, store Store, key string, dest interface{}) error {
	var env Envelope
	if err := store.Get(ctx, key, &env); err != nil {
		return err
	}
	if env.Version != EnvelopeVersion {
		return fmt.Errorf("%s has version %d, want %d: %w", key, env.Version, EnvelopeVersion, ErrVersionMismatch)
	}
	if len(env.Entries) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Entries, dest); err != nil {
		return fmt.Errorf("failed to decode %s entries: %w", key, err)
	}
	return nil
}
