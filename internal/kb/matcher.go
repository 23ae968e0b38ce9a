package kb

import (
	"context"

	"hokhau-ai/pkg/config"

	"go.uber.org/zap"
)

// Matcher answers queries against the knowledge store using hybrid
// keyword/semantic similarity. A missing match is a normal result, not an
// error; the caller decides whether to fall back to a remote model.
type Matcher struct {
	store  *Store
	cache  *EmbeddingCache
	cfg    *config.KBConfig
	logger *zap.Logger
}

func NewMatcher(store *Store, cache *EmbeddingCache, cfg *config.KBConfig, logger *zap.Logger) *Matcher {
	return &Matcher{
		store:  store,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
	}
}

// FindBestAnswer scans a snapshot of the store and returns the answer of the
// best-scoring accepted candidate. A candidate whose normalized question
// equals the normalized query short-circuits the scan with score 1.0, which
// keeps repeated identical queries cheap regardless of store size.
func (m *Matcher) FindBestAnswer(ctx context.Context, query string) (string, bool) {
	m.store.noteQuery()

	records, _ := m.store.Snapshot()
	normQuery := Normalize(query)
	queryTokens := Tokenize(query)

	cacheGeneration := m.cache.Generation()
	useSemantic := m.cache.Enabled()
	var queryVector []float32
	if useSemantic {
		queryVector, useSemantic = m.cache.Embed(ctx, query, cacheGeneration)
	}

	bestScore := 0.0
	bestAnswer := ""
	found := false

	for _, rec := range records {
		if rec.normQuestion == normQuery {
			m.store.noteHit()
			return rec.Answer, true
		}

		keyword := keywordScoreNormalized(normQuery, queryTokens, rec.normQuestion, rec.tokens)

		semantic := 0.0
		hasSemantic := false
		if useSemantic {
			if vector, ok := m.cache.Embed(ctx, rec.Question, cacheGeneration); ok {
				semantic = clamp01(CosineSimilarity(queryVector, vector))
				hasSemantic = true
			}
		}

		hybrid := HybridScore(keyword, semantic, hasSemantic, m.cfg.KeywordWeight, m.cfg.SemanticWeight)
		if m.accepts(hybrid, keyword, semantic, hasSemantic) && hybrid > bestScore {
			bestScore = hybrid
			bestAnswer = rec.Answer
			found = true
		}
	}

	if found {
		m.store.noteHit()
		m.logger.Debug("Knowledge store hit",
			zap.Float64("score", bestScore),
			zap.Int("candidates", len(records)),
		)
	}
	return bestAnswer, found
}

// accepts applies the acceptance rule: a candidate passes when the hybrid
// score clears the similarity threshold, or the keyword score alone clears
// either the similarity or the (lower) Jaccard threshold, or the semantic
// score clears its own threshold.
func (m *Matcher) accepts(hybrid, keyword, semantic float64, hasSemantic bool) bool {
	if hybrid >= m.cfg.SimilarityThreshold ||
		keyword >= m.cfg.SimilarityThreshold ||
		keyword >= m.cfg.JaccardThreshold {
		return true
	}
	return hasSemantic && semantic >= m.cfg.SemanticThreshold
}
