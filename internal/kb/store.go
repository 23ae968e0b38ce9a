package kb

import (
	"sync"
	"sync/atomic"
	"time"

	"hokhau-ai/internal/models"
)

// record is a QARecord with its normalized question and token set
// precomputed at insertion time, so matching never normalizes under load.
type record struct {
	models.QARecord
	normQuestion string
	tokens       []string
}

func newRecord(r models.QARecord) record {
	return record{
		QARecord:     r,
		normQuestion: Normalize(r.Question),
		tokens:       Tokenize(r.Question),
	}
}

// StoreStatus is a read-only snapshot of store diagnostics.
type StoreStatus struct {
	ItemCount      int       `json:"items_count"`
	Generation     uint64    `json:"generation"`
	LastReloadTime time.Time `json:"last_reload_time"`
	ReloadCount    int       `json:"reload_count"`
	Queries        int64     `json:"queries"`
	Hits           int64     `json:"hits"`
	HitRate        float64   `json:"hit_rate"`
}

// Store is the authoritative in-memory set of question-answer records.
//
// All mutation and iteration happens under a single mutex; none of the
// locked sections perform I/O or call the embedding model. The generation
// counter increments exactly once per full replacement and is used by the
// embedding cache for coherence.
type Store struct {
	mu          sync.Mutex
	records     []record
	generation  uint64
	lastReload  time.Time
	reloadCount int

	queries atomic.Int64
	hits    atomic.Int64
}

func NewStore() *Store {
	return &Store{}
}

// ReplaceAll atomically swaps the full record set and bumps the generation.
// Normalization of the incoming records happens before the lock is taken.
func (s *Store) ReplaceAll(items []models.QARecord) uint64 {
	records := make([]record, 0, len(items))
	for _, it := range items {
		records = append(records, newRecord(it))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.generation++
	s.lastReload = time.Now()
	s.reloadCount++
	return s.generation
}

// Append adds one record, or overwrites an existing record in place when its
// normalized question matches. The generation is left untouched: appends are
// incremental updates, not authoritative replacements. Returns true when the
// record was new.
func (s *Store) Append(item models.QARecord) bool {
	rec := newRecord(item)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].normQuestion == rec.normQuestion {
			s.records[i] = rec
			return false
		}
	}
	s.records = append(s.records, rec)
	return true
}

// Snapshot returns a copy of the record set plus the current generation. The
// caller may score against the copy without holding the store lock.
func (s *Store) Snapshot() ([]record, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record, len(s.records))
	copy(out, s.records)
	return out, s.generation
}

// Count returns the current number of records.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Generation returns the current generation.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Store) noteQuery() {
	s.queries.Add(1)
}

func (s *Store) noteHit() {
	s.hits.Add(1)
}

// Status reports store diagnostics for the status endpoint.
func (s *Store) Status() StoreStatus {
	s.mu.Lock()
	itemCount := len(s.records)
	generation := s.generation
	lastReload := s.lastReload
	reloadCount := s.reloadCount
	s.mu.Unlock()

	queries := s.queries.Load()
	hits := s.hits.Load()
	hitRate := 0.0
	if queries > 0 {
		hitRate = float64(hits) / float64(queries)
	}

	return StoreStatus{
		ItemCount:      itemCount,
		Generation:     generation,
		LastReloadTime: lastReload,
		ReloadCount:    reloadCount,
		Queries:        queries,
		Hits:           hits,
		HitRate:        hitRate,
	}
}
