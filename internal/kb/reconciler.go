package kb

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"hokhau-ai/internal/models"
	"hokhau-ai/pkg/config"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ConversationSource yields historical (question, answer, source) records
// from one of the external stores. FetchAll is used by the reconciler for
// full rebuilds; FetchRecent by the auto-learner, which only needs a bounded
// window of recent traffic.
type ConversationSource interface {
	Name() string
	FetchAll(ctx context.Context) ([]models.ConversationRecord, error)
	FetchRecent(ctx context.Context) ([]models.ConversationRecord, error)
}

// CacheInvalidator is notified after every successful reload so downstream
// response caches can bump their version. The call is fire-and-forget.
type CacheInvalidator interface {
	BumpVersion(ctx context.Context) (int64, error)
}

// ReloadResult reports the outcome of one reload cycle.
type ReloadResult struct {
	Success       bool      `json:"success"`
	ItemCount     int       `json:"items_count"`
	PreviousCount int       `json:"previous_count"`
	Timestamp     time.Time `json:"timestamp"`
	Error         string    `json:"error,omitempty"`
}

// Reconciler rebuilds the knowledge store from the external conversation
// stores: fetch, filter, priority-dedup, atomic swap, cache invalidation.
type Reconciler struct {
	store    *Store
	cache    *EmbeddingCache
	sources  []ConversationSource
	notifier CacheInvalidator
	cfg      *config.KBConfig
	logger   *zap.Logger
}

// NewReconciler builds a reconciler over the given sources. Source order is
// significant: records are assembled in slice order before deduplication, so
// the same inputs always produce the same final record set no matter how the
// fetches interleave.
func NewReconciler(
	store *Store,
	cache *EmbeddingCache,
	sources []ConversationSource,
	notifier CacheInvalidator,
	cfg *config.KBConfig,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		store:    store,
		cache:    cache,
		sources:  sources,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Reload fetches from every source, deduplicates and swaps the store
// contents. A source failure is tolerated as long as the other source
// delivers data; the operation only fails when nothing could be fetched at
// all, in which case the existing store is left untouched.
func (r *Reconciler) Reload(ctx context.Context) ReloadResult {
	previousCount := r.store.Count()

	fetched := make([][]models.ConversationRecord, len(r.sources))
	succeeded := make([]bool, len(r.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range r.sources {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, r.cfg.FetchTimeout)
			defer cancel()
			records, err := src.FetchAll(fctx)
			if err != nil {
				r.logger.Warn("Source fetch failed, continuing without it",
					zap.String("source", src.Name()),
					zap.Error(err),
				)
				return nil
			}
			// A successful fetch may legitimately return zero records, so
			// success is tracked separately from the data.
			fetched[i] = records
			succeeded[i] = true
			return nil
		})
	}
	_ = g.Wait()

	failures := 0
	items := make([]models.QARecord, 0)
	for i := range fetched {
		if !succeeded[i] {
			failures++
			continue
		}
		for _, rec := range fetched[i] {
			if qa, ok := eligibleRecord(rec); ok {
				items = append(items, qa)
			}
		}
	}

	if failures == len(r.sources) && len(items) == 0 {
		r.logger.Error("Reload failed: no source delivered any data, keeping existing store",
			zap.Int("previous_count", previousCount),
		)
		return ReloadResult{
			Success:       false,
			ItemCount:     previousCount,
			PreviousCount: previousCount,
			Timestamp:     time.Now(),
			Error:         "all conversation sources failed",
		}
	}

	final := dedupeByPriority(items)
	generation := r.store.ReplaceAll(final)
	r.cache.Invalidate()

	if r.notifier != nil {
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			version, err := r.notifier.BumpVersion(nctx)
			if err != nil {
				r.logger.Warn("Response cache invalidation failed", zap.Error(err))
				return
			}
			r.logger.Info("Response cache invalidated", zap.Int64("version", version))
		}()
	}

	r.logger.Info("Knowledge store reloaded",
		zap.Int("previous_count", previousCount),
		zap.Int("items_count", len(final)),
		zap.Uint64("generation", generation),
	)

	return ReloadResult{
		Success:       true,
		ItemCount:     len(final),
		PreviousCount: previousCount,
		Timestamp:     time.Now(),
	}
}

// eligibleRecord filters noise: both sides present, question longer than 3
// runes, answer longer than 2, and assigns the priority derived from the
// source tag.
func eligibleRecord(rec models.ConversationRecord) (models.QARecord, bool) {
	question := strings.TrimSpace(rec.Question)
	answer := strings.TrimSpace(rec.Answer)
	if question == "" || answer == "" {
		return models.QARecord{}, false
	}
	if utf8.RuneCountInString(question) <= 3 || utf8.RuneCountInString(answer) <= 2 {
		return models.QARecord{}, false
	}
	return models.QARecord{
		Question: question,
		Answer:   answer,
		Priority: priorityForSource(rec.Source),
	}, true
}

// priorityForSource marks human-confirmed or corrected records so they win
// deduplication over raw observed traffic.
func priorityForSource(source string) int {
	s := strings.ToLower(source)
	if strings.Contains(s, "feedback") || strings.Contains(s, "corrected") || strings.Contains(s, "confirm") {
		return models.PriorityConfirmed
	}
	return models.PriorityObserved
}

// dedupeByPriority folds records newest-first: per normalized question the
// first record seen is kept, and is only displaced by a later (older) record
// carrying a strictly higher priority. Keys of 3 runes or fewer are dropped
// as noise. Output order follows the fold, so the result is deterministic
// for a fixed input sequence.
func dedupeByPriority(items []models.QARecord) []models.QARecord {
	type slot struct {
		index    int
		priority int
	}
	kept := make(map[string]slot, len(items))
	out := make([]models.QARecord, 0, len(items))

	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		key := Normalize(item.Question)
		if utf8.RuneCountInString(key) <= 3 {
			continue
		}
		if s, ok := kept[key]; ok {
			if s.priority >= item.Priority {
				continue
			}
			out[s.index] = item
			kept[key] = slot{index: s.index, priority: item.Priority}
			continue
		}
		kept[key] = slot{index: len(out), priority: item.Priority}
		out = append(out, item)
	}
	return out
}
