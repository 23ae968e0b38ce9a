package kb

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"hokhau-ai/internal/models"
	"hokhau-ai/pkg/config"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Patterns marking question/answer pairs too generic to be worth learning.
var (
	genericGreetingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(xin chào|chào|chào bạn|hello|hi|hey)(\s|$|!|\.)`),
		regexp.MustCompile(`(?i)^(cảm ơn|thank you|thanks)(\s|$|!|\.)`),
		regexp.MustCompile(`(?i)^(tạm biệt|goodbye|bye)(\s|$|!|\.)`),
	}

	genericHelpPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(giúp|help|hướng dẫn|huong dan)(\s|$)`),
		regexp.MustCompile(`(?i)^(bạn có thể|can you|có thể)(\s|$)`),
	}

	genericResponsePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^tôi (là|có thể|sẽ)`),
		regexp.MustCompile(`(?i)^bạn có thể (hỏi|liên hệ|tìm)`),
		regexp.MustCompile(`(?i)^cảm ơn bạn đã`),
		regexp.MustCompile(`(?i)^(xin chào|chào)!.*trợ lý`),
	}

	specificQuestionKeywords = []string{
		"làm sao", "như thế nào", "cách", "tại sao", "khi nào", "ở đâu",
		"mã", "id", "tìm", "xem", "chi tiết", "thông tin", "hướng dẫn",
		"là gì", "có thể", "bao nhiêu", "ai", "nào",
	}

	digitRe      = regexp.MustCompile(`\d+`)
	domainTermRe = regexp.MustCompile(`(?i)(mã|id|số|tên|địa chỉ|email|phone)`)
	structureRe  = regexp.MustCompile(`[.!?]|\n|- |\d+\.`)
)

// Sources already curated or produced by the learner itself are excluded so
// the pipeline never learns from its own output.
func isCuratedSource(source string) bool {
	s := strings.ToLower(source)
	return strings.Contains(s, "feedback") ||
		strings.Contains(s, "corrected") ||
		strings.Contains(s, "auto-learned")
}

// LearnResult reports the outcome of one auto-learning run.
type LearnResult struct {
	Success   bool      `json:"success"`
	Analyzed  int       `json:"analyzed_count"`
	Learned   int       `json:"learned_count"`
	AvgScore  float64   `json:"avg_score"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// LearningStatus is a read-only snapshot of learner diagnostics.
type LearningStatus struct {
	Enabled         bool      `json:"enabled"`
	MinScore        float64   `json:"min_score_threshold"`
	MaxItemsPerRun  int       `json:"max_learn_items_per_run"`
	LastAnalysisAt  time.Time `json:"last_analysis_time"`
	TotalLearned    int       `json:"total_learned_count"`
	LastRunAnalyzed int       `json:"last_run_analyzed"`
}

// Learner mines recent conversations for high-quality question-answer pairs
// and admits the best of them into the knowledge store without a full
// reload. Appends never bump the store generation.
type Learner struct {
	store   *Store
	sources []ConversationSource
	cfg     *config.LearningConfig
	fetchTO time.Duration
	logger  *zap.Logger

	mu              sync.Mutex
	lastAnalysisAt  time.Time
	totalLearned    int
	lastRunAnalyzed int
}

func NewLearner(
	store *Store,
	sources []ConversationSource,
	cfg *config.LearningConfig,
	fetchTimeout time.Duration,
	logger *zap.Logger,
) *Learner {
	return &Learner{
		store:   store,
		sources: sources,
		cfg:     cfg,
		fetchTO: fetchTimeout,
		logger:  logger,
	}
}

// LearnFromConversations runs one analysis cycle: fetch recent records,
// score them, drop near-duplicates of existing knowledge, and append the
// top candidates.
func (l *Learner) LearnFromConversations(ctx context.Context) LearnResult {
	fetched := make([][]models.ConversationRecord, len(l.sources))
	succeeded := make([]bool, len(l.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range l.sources {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, l.fetchTO)
			defer cancel()
			records, err := src.FetchRecent(fctx)
			if err != nil {
				l.logger.Warn("Learner source fetch failed",
					zap.String("source", src.Name()),
					zap.Error(err),
				)
				return nil
			}
			fetched[i] = records
			succeeded[i] = true
			return nil
		})
	}
	_ = g.Wait()

	failures := 0
	for i := range succeeded {
		if !succeeded[i] {
			failures++
		}
	}
	if len(l.sources) > 0 && failures == len(l.sources) {
		l.logger.Error("Auto-learning cycle failed: no source delivered any data")
		return LearnResult{
			Success:   false,
			Timestamp: time.Now(),
			Error:     "all conversation sources failed",
		}
	}

	existing, _ := l.store.Snapshot()

	type candidate struct {
		record models.QARecord
		score  float64
	}
	var candidates []candidate
	analyzed := 0

	for i := range fetched {
		for _, conv := range fetched[i] {
			if conv.Question == "" || conv.Answer == "" {
				continue
			}
			if isCuratedSource(conv.Source) {
				continue
			}
			analyzed++

			score := QualityScore(conv.Question, conv.Answer, conv.Source, existing)
			if score <= 0 || score < l.cfg.MinQualityScore {
				continue
			}
			if isDuplicate(conv.Question, conv.Answer, existing, l.cfg.DuplicateThreshold) {
				continue
			}
			candidates = append(candidates, candidate{
				record: models.QARecord{
					Question: strings.TrimSpace(conv.Question),
					Answer:   strings.TrimSpace(conv.Answer),
					Priority: models.PriorityObserved,
				},
				score: score,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > l.cfg.MaxItemsPerRun {
		candidates = candidates[:l.cfg.MaxItemsPerRun]
	}

	learned := 0
	admitted := 0
	totalScore := 0.0
	addedThisRun := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		key := Normalize(c.record.Question)
		if addedThisRun[key] {
			continue
		}
		isNew := l.store.Append(c.record)
		addedThisRun[key] = true
		admitted++
		totalScore += c.score
		// An overwrite refreshes an existing record; only brand-new
		// questions count as learned.
		if isNew {
			learned++
		}
	}

	now := time.Now()
	l.mu.Lock()
	l.lastAnalysisAt = now
	l.totalLearned += learned
	l.lastRunAnalyzed = analyzed
	l.mu.Unlock()

	avgScore := 0.0
	if admitted > 0 {
		avgScore = totalScore / float64(admitted)
	}

	l.logger.Info("Auto-learning cycle finished",
		zap.Int("analyzed", analyzed),
		zap.Int("learned", learned),
		zap.Float64("avg_score", avgScore),
	)

	return LearnResult{
		Success:   true,
		Analyzed:  analyzed,
		Learned:   learned,
		AvgScore:  avgScore,
		Timestamp: now,
	}
}

// Status reports learner diagnostics for the status endpoint.
func (l *Learner) Status() LearningStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LearningStatus{
		Enabled:         l.cfg.AutoLearnEnabled,
		MinScore:        l.cfg.MinQualityScore,
		MaxItemsPerRun:  l.cfg.MaxItemsPerRun,
		LastAnalysisAt:  l.lastAnalysisAt,
		TotalLearned:    l.totalLearned,
		LastRunAnalyzed: l.lastRunAnalyzed,
	}
}

// QualityScore rates a question-answer pair in [0,1], or returns -1 for
// pairs that should be discarded outright: too short, generic greetings,
// vague help requests, canned responses, or near-duplicates of records
// already in the store.
func QualityScore(question, answer, source string, existing []record) float64 {
	q := strings.ToLower(strings.TrimSpace(question))
	a := strings.TrimSpace(answer)

	if utf8.RuneCountInString(q) < 5 || utf8.RuneCountInString(a) < 10 {
		return -1.0
	}

	for _, re := range genericGreetingPatterns {
		if re.MatchString(q) {
			return -1.0
		}
	}

	for _, re := range genericHelpPatterns {
		if re.MatchString(q) {
			rest := strings.TrimSpace(re.ReplaceAllString(q, ""))
			if len(strings.Fields(rest)) <= 3 {
				return -1.0
			}
		}
	}

	aLower := strings.ToLower(a)
	for _, re := range genericResponsePatterns {
		if re.MatchString(aLower) {
			rest := strings.TrimSpace(re.ReplaceAllString(aLower, ""))
			if utf8.RuneCountInString(rest) < 50 {
				return -1.0
			}
		}
	}

	score := 0.0

	// Answer length: detailed but not bloated is best.
	switch n := utf8.RuneCountInString(a); {
	case n >= 50 && n <= 500:
		score += 0.3
	case n >= 30 && n < 50:
		score += 0.2
	case n > 500 && n <= 1000:
		score += 0.25
	case n > 1000:
		score += 0.15
	}

	for _, kw := range specificQuestionKeywords {
		if strings.Contains(q, kw) {
			score += 0.2
			break
		}
	}

	if digitRe.MatchString(a) || domainTermRe.MatchString(a) {
		score += 0.15
	}

	// Reward answers that do more than echo the question back.
	qWords := strings.Fields(q)
	if len(qWords) > 0 {
		aSet := make(map[string]bool)
		for _, w := range strings.Fields(aLower) {
			aSet[w] = true
		}
		overlap := 0
		seen := make(map[string]bool, len(qWords))
		for _, w := range qWords {
			if seen[w] {
				continue
			}
			seen[w] = true
			if aSet[w] {
				overlap++
			}
		}
		if float64(overlap)/float64(len(qWords)) < 0.5 {
			score += 0.15
		}
	}

	if structureRe.MatchString(a) {
		score += 0.1
	}

	sourceLower := strings.ToLower(source)
	if strings.Contains(sourceLower, "feedback") ||
		strings.Contains(sourceLower, "confirm") ||
		strings.Contains(sourceLower, "correct") {
		score += 0.2
	} else if strings.Contains(sourceLower, "corrected") {
		score += 0.15
	}

	// Near-duplicate penalty against the head of the store; the full set is
	// re-checked by isDuplicate before admission.
	checked := 0
	for _, ex := range existing {
		if checked >= 50 {
			break
		}
		checked++
		qSim := SequenceRatio(q, strings.ToLower(strings.TrimSpace(ex.Question)))
		aSim := SequenceRatio(aLower, strings.ToLower(ex.Answer))
		if qSim >= 0.9 && aSim >= 0.8 {
			return -1.0
		}
		if qSim >= 0.85 {
			score -= 0.1
		}
	}

	return clamp01(score)
}

// isDuplicate reports whether the pair is a near-duplicate of an existing
// record: both normalized question and answer similarity at or above the
// threshold.
func isDuplicate(question, answer string, existing []record, threshold float64) bool {
	q := Normalize(question)
	a := Normalize(answer)

	for _, ex := range existing {
		if SequenceRatio(q, ex.normQuestion) >= threshold &&
			SequenceRatio(a, Normalize(ex.Answer)) >= threshold {
			return true
		}
	}
	return false
}
