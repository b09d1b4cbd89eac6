// Package retention implements the per-user bounded execution cache from spec
// §4.7: a 100-record cap and a 24h TTL per user, evicted on insert and lookup.
// Grounded on the teacher's common/cache.MemoryCache TTL-map-plus-mutex shape,
// generalized into one shard per user so contention is sharded by user_id
// rather than protected by a single global lock (spec §5).
package retention

import (
	"sync"
	"time"

	"github.com/lyzr/orchestrator/internal/progress"
)

const (
	maxPerUser = 100
	ttl        = 24 * time.Hour
)

// Record is the per-user cached execution entry. The engine owns Execution's
// concrete type; retention only needs CreatedAt and ExecutionID to enforce
// the cap/TTL, so Execution is stored as an opaque snapshot value.
type Record struct {
	ExecutionID string
	CreatedAt   time.Time
	Snapshot    any
}

type shard struct {
	mu      sync.Mutex
	byID    map[string]*Record
	order   []string // insertion order, oldest first
}

// Store is the process-wide retention store: one shard per user_id.
type Store struct {
	mu     sync.RWMutex
	shards map[string]*shard
	bus    *progress.Bus
}

// New constructs an empty Store. bus is used to drop subscriber state for
// evicted executions (spec §4.7: "removal also drops ... subscribers").
func New(bus *progress.Bus) *Store {
	return &Store{shards: make(map[string]*shard), bus: bus}
}

func (s *Store) shardFor(userID string) *shard {
	s.mu.RLock()
	sh, ok := s.shards[userID]
	s.mu.RUnlock()
	if ok {
		return sh
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.shards[userID]; ok {
		return sh
	}
	sh = &shard{byID: make(map[string]*Record)}
	s.shards[userID] = sh
	return sh
}

// Put inserts or replaces a record for userID, then evicts by TTL and count
// cap, per spec §4.7.
func (s *Store) Put(userID string, rec Record) {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.byID[rec.ExecutionID]; !exists {
		sh.order = append(sh.order, rec.ExecutionID)
	}
	sh.byID[rec.ExecutionID] = &rec

	s.evictLocked(sh)
}

// Get returns the record for execID under userID, evicting stale entries
// first (spec §4.7: "evict ... at every insert or lookup").
func (s *Store) Get(userID, execID string) (Record, bool) {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s.evictLocked(sh)

	rec, ok := sh.byID[execID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// List returns all live records for userID, oldest first, evicting stale
// entries first.
func (s *Store) List(userID string) []Record {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s.evictLocked(sh)

	out := make([]Record, 0, len(sh.order))
	for _, id := range sh.order {
		out = append(out, *sh.byID[id])
	}
	return out
}

// evictLocked must be called with sh.mu held. It drops any record older than
// the TTL, then trims oldest-first until the count is within maxPerUser.
func (s *Store) evictLocked(sh *shard) {
	now := time.Now()
	kept := sh.order[:0]
	for _, id := range sh.order {
		rec := sh.byID[id]
		if now.Sub(rec.CreatedAt) > ttl {
			delete(sh.byID, id)
			if s.bus != nil {
				s.bus.Close(id)
			}
			continue
		}
		kept = append(kept, id)
	}
	sh.order = kept

	for len(sh.order) > maxPerUser {
		oldest := sh.order[0]
		sh.order = sh.order[1:]
		delete(sh.byID, oldest)
		if s.bus != nil {
			s.bus.Close(oldest)
		}
	}
}
