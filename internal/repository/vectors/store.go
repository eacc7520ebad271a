// Package vectors persists record embeddings keyed by corpus generation, so
// an index rebuild after restart reuses them instead of calling the provider.
package vectors

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/scoutdex/internal/domain"
)

// store is the consumer interface for vector persistence (ISP).
type store interface {
	Set(ctx context.Context, key string, value []byte) error
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, key string) error
}

// Store reads and writes per-record vectors under
// scoutdex:vec:<generation>:<record-id>.
type Store struct {
	store  store
	logger *zap.Logger
}

// New creates a vector store.
func New(s store, logger *zap.Logger) *Store {
	return &Store{store: s, logger: logger}
}

// Save persists one record vector for a corpus generation.
func (s *Store) Save(ctx context.Context, generation, recordID string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector for record %s", recordID)
	}
	key := vectorKey(generation, recordID)
	if err := s.store.Set(ctx, key, vectorToBytes(vec)); err != nil {
		return fmt.Errorf("save vector %s: %w", key, err)
	}
	return nil
}

// LoadGeneration returns all persisted vectors for a corpus generation.
// Corrupt entries are skipped with a warning; a missing generation yields an
// empty map.
func (s *Store) LoadGeneration(ctx context.Context, generation string) (map[string][]float32, error) {
	prefix := vectorKey(generation, "")
	keys, err := s.store.Scan(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan vectors for generation %s: %w", generation, err)
	}
	if len(keys) == 0 {
		return map[string][]float32{}, nil
	}

	values, err := s.store.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load vectors for generation %s: %w", generation, err)
	}

	out := make(map[string][]float32, len(keys))
	for i, key := range keys {
		if values[i] == nil {
			continue
		}
		recordID := strings.TrimPrefix(key, prefix)
		vec, err := bytesToVector(values[i])
		if err != nil {
			s.logger.Warn("skipping corrupt persisted vector",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		out[recordID] = vec
	}
	return out, nil
}

// PruneOthers deletes persisted vectors of every generation except keep and
// returns how many keys were removed. Called after a new generation is fully
// indexed so stale vectors do not accumulate.
func (s *Store) PruneOthers(ctx context.Context, keep string) (int, error) {
	keys, err := s.store.Scan(ctx, domain.KeyPrefix+"vec:*")
	if err != nil {
		return 0, fmt.Errorf("scan stale vectors: %w", err)
	}
	keepPrefix := vectorKey(keep, "")
	removed := 0
	for _, key := range keys {
		if strings.HasPrefix(key, keepPrefix) {
			continue
		}
		if err := s.store.Del(ctx, key); err != nil {
			return removed, fmt.Errorf("delete stale vector %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

func vectorKey(generation, recordID string) string {
	return domain.KeyPrefix + "vec:" + generation + ":" + recordID
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
