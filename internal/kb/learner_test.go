package kb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"hokhau-ai/internal/models"
	"hokhau-ai/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLearningConfig() *config.LearningConfig {
	return &config.LearningConfig{
		AutoLearnEnabled:   true,
		MinQualityScore:    0.60,
		MaxItemsPerRun:     10,
		DuplicateThreshold: 0.85,
	}
}

func newTestLearner(store *Store, cfg *config.LearningConfig, sources ...ConversationSource) *Learner {
	return NewLearner(store, sources, cfg, 5*time.Second, zap.NewNop())
}

const goodAnswer = "Để tách hộ khẩu: 1. Mở chi tiết hộ khẩu hiện tại. 2. Chọn các nhân khẩu cần tách. 3. Nhập mã hộ khẩu mới và địa chỉ rồi lưu lại."

func TestQualityScoreRejectsShortPairs(t *testing.T) {
	assert.Equal(t, -1.0, QualityScore("Hi?", goodAnswer, "chat", nil))
	assert.Equal(t, -1.0, QualityScore("Làm sao để tách hộ khẩu?", "ngắn", "chat", nil))
}

func TestQualityScoreRejectsGenericGreetings(t *testing.T) {
	assert.Equal(t, -1.0, QualityScore("xin chào bạn nhé", goodAnswer, "chat", nil))
	assert.Equal(t, -1.0, QualityScore("cảm ơn bạn rất nhiều", goodAnswer, "chat", nil))
	assert.Equal(t, -1.0, QualityScore("tạm biệt nhé bạn", goodAnswer, "chat", nil))
}

func TestQualityScoreRejectsVagueHelpRequests(t *testing.T) {
	assert.Equal(t, -1.0, QualityScore("giúp tôi với", goodAnswer, "chat", nil))

	// A help request with enough substance after the pattern survives.
	score := QualityScore("hướng dẫn chi tiết cách tách hộ khẩu cho con trai", goodAnswer, "chat", nil)
	assert.Greater(t, score, 0.0)
}

func TestQualityScoreRejectsGenericResponses(t *testing.T) {
	score := QualityScore("Làm sao để tách hộ khẩu?", "Bạn có thể hỏi quản trị viên.", "chat", nil)
	assert.Equal(t, -1.0, score)
}

func TestQualityScoreGoodPair(t *testing.T) {
	score := QualityScore("Làm sao để tách hộ khẩu cho con trai?", goodAnswer, "chat", nil)
	assert.GreaterOrEqual(t, score, 0.60)
	assert.LessOrEqual(t, score, 1.0)
}

func TestQualityScoreRejectsNearDuplicateOfStore(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]models.QARecord{
		{Question: "Làm sao để tách hộ khẩu cho con trai?", Answer: goodAnswer, Priority: models.PriorityObserved},
	})
	existing, _ := store.Snapshot()

	score := QualityScore("Làm sao để tách hộ khẩu cho con trai?", goodAnswer, "chat", existing)
	assert.Equal(t, -1.0, score)
}

func TestLearnerLearnsGoodPair(t *testing.T) {
	store := NewStore()
	src := &fakeSource{name: "postgres", recent: []models.ConversationRecord{
		{Question: "Làm sao để tách hộ khẩu cho con trai?", Answer: goodAnswer, Source: "gigachat"},
		{Question: "xin chào", Answer: "Xin chào! Tôi là trợ lý AI.", Source: "gigachat"},
	}}
	learner := newTestLearner(store, testLearningConfig(), src)

	result := learner.LearnFromConversations(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 2, result.Analyzed)
	assert.Equal(t, 1, result.Learned)
	assert.Greater(t, result.AvgScore, 0.0)
	assert.Equal(t, 1, store.Count())
}

func TestLearnerSkipsCuratedSources(t *testing.T) {
	store := NewStore()
	src := &fakeSource{name: "postgres", recent: []models.ConversationRecord{
		{Question: "Làm sao để tách hộ khẩu cho con trai?", Answer: goodAnswer, Source: "feedback"},
	}}
	learner := newTestLearner(store, testLearningConfig(), src)

	result := learner.LearnFromConversations(context.Background())
	assert.Equal(t, 0, result.Analyzed)
	assert.Equal(t, 0, result.Learned)
	assert.Equal(t, 0, store.Count())
}

func TestLearnerSecondRunIsIdempotent(t *testing.T) {
	store := NewStore()
	src := &fakeSource{name: "postgres", recent: []models.ConversationRecord{
		{Question: "Làm sao để tách hộ khẩu cho con trai?", Answer: goodAnswer, Source: "gigachat"},
	}}
	learner := newTestLearner(store, testLearningConfig(), src)

	first := learner.LearnFromConversations(context.Background())
	assert.Equal(t, 1, first.Learned)

	second := learner.LearnFromConversations(context.Background())
	assert.Equal(t, 0, second.Learned)
	assert.Equal(t, 1, store.Count())
}

func TestLearnerHonorsMaxItemsPerRun(t *testing.T) {
	store := NewStore()
	src := &fakeSource{name: "postgres", recent: []models.ConversationRecord{
		{Question: "Làm sao để tách hộ khẩu cho con trai?", Answer: goodAnswer, Source: "gigachat"},
		{Question: "Cách đăng ký tạm trú cho người thuê nhà?", Answer: "Đăng ký tạm trú: 1. Vào Quản lý Nhân khẩu. 2. Chọn Đăng ký tạm trú. 3. Điền CCCD, thời hạn và hộ khẩu tiếp nhận.", Source: "gigachat"},
		{Question: "Tại sao không tìm thấy nhân khẩu theo CCCD?", Answer: "Kiểm tra lại: 1. Số CCCD phải đủ 12 chữ số. 2. Nhân khẩu phải đã được thêm vào hệ thống. 3. Thử tìm theo họ tên thay thế.", Source: "gigachat"},
	}}
	cfg := testLearningConfig()
	cfg.MaxItemsPerRun = 2
	learner := newTestLearner(store, cfg, src)

	result := learner.LearnFromConversations(context.Background())
	assert.Equal(t, 3, result.Analyzed)
	assert.Equal(t, 2, result.Learned)
	assert.Equal(t, 2, store.Count())
}

func TestLearnerDeduplicatesWithinRun(t *testing.T) {
	store := NewStore()
	src := &fakeSource{name: "postgres", recent: []models.ConversationRecord{
		{Question: "Làm sao để tách hộ khẩu cho con trai?", Answer: goodAnswer, Source: "gigachat"},
		{Question: "LÀM SAO để tách hộ khẩu cho con trai!", Answer: goodAnswer, Source: "gigachat"},
	}}
	learner := newTestLearner(store, testLearningConfig(), src)

	result := learner.LearnFromConversations(context.Background())
	assert.Equal(t, 1, result.Learned)
	assert.Equal(t, 1, store.Count())
}

func TestLearnerAllSourcesFailReportsError(t *testing.T) {
	store := NewStore()
	bad1 := &fakeSource{name: "postgres", recErr: fmt.Errorf("db down")}
	bad2 := &fakeSource{name: "oss", recErr: fmt.Errorf("bucket down")}
	learner := newTestLearner(store, testLearningConfig(), bad1, bad2)

	result := learner.LearnFromConversations(context.Background())
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Zero(t, result.Analyzed)
	assert.Zero(t, result.Learned)

	// A failed cycle leaves the diagnostics untouched.
	status := learner.Status()
	assert.True(t, status.LastAnalysisAt.IsZero())
	assert.Zero(t, status.TotalLearned)
}

func TestLearnerEmptySuccessfulSourceIsNotAFailure(t *testing.T) {
	store := NewStore()
	empty := &fakeSource{name: "postgres"}
	bad := &fakeSource{name: "oss", recErr: fmt.Errorf("bucket down")}
	learner := newTestLearner(store, testLearningConfig(), empty, bad)

	result := learner.LearnFromConversations(context.Background())
	assert.True(t, result.Success)
	assert.Empty(t, result.Error)
	assert.Zero(t, result.Learned)
}

func TestLearnerOverwriteDoesNotCountAsLearned(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]models.QARecord{
		{Question: "Làm sao để tách hộ khẩu cho con trai?", Answer: "Chức năng này chưa được hỗ trợ trong phiên bản hiện tại của hệ thống.", Priority: models.PriorityObserved},
	})
	src := &fakeSource{name: "postgres", recent: []models.ConversationRecord{
		{Question: "Làm sao để tách hộ khẩu cho con trai?", Answer: goodAnswer, Source: "gigachat"},
	}}
	learner := newTestLearner(store, testLearningConfig(), src)

	result := learner.LearnFromConversations(context.Background())
	assert.Equal(t, 0, result.Learned)
	assert.Greater(t, result.AvgScore, 0.0)
	assert.Equal(t, 1, store.Count())

	// The refreshed answer replaced the old one in place.
	records, _ := store.Snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, goodAnswer, records[0].Answer)

	status := learner.Status()
	assert.Zero(t, status.TotalLearned)
}

func TestLearnerStatus(t *testing.T) {
	store := NewStore()
	src := &fakeSource{name: "postgres", recent: []models.ConversationRecord{
		{Question: "Làm sao để tách hộ khẩu cho con trai?", Answer: goodAnswer, Source: "gigachat"},
	}}
	learner := newTestLearner(store, testLearningConfig(), src)

	before := learner.Status()
	assert.True(t, before.Enabled)
	assert.Zero(t, before.TotalLearned)
	assert.True(t, before.LastAnalysisAt.IsZero())

	learner.LearnFromConversations(context.Background())

	after := learner.Status()
	assert.Equal(t, 1, after.TotalLearned)
	assert.Equal(t, 1, after.LastRunAnalyzed)
	assert.False(t, after.LastAnalysisAt.IsZero())
}
