package kb

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"hokhau-ai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	name    string
	all     []models.ConversationRecord
	recent  []models.ConversationRecord
	allErr  error
	recErr  error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchAll(_ context.Context) ([]models.ConversationRecord, error) {
	if f.allErr != nil {
		return nil, f.allErr
	}
	return f.all, nil
}

func (f *fakeSource) FetchRecent(_ context.Context) ([]models.ConversationRecord, error) {
	if f.recErr != nil {
		return nil, f.recErr
	}
	return f.recent, nil
}

type fakeNotifier struct {
	bumps atomic.Int64
}

func (f *fakeNotifier) BumpVersion(_ context.Context) (int64, error) {
	return f.bumps.Add(1), nil
}

func newTestReconciler(store *Store, notifier CacheInvalidator, sources ...ConversationSource) (*Reconciler, *EmbeddingCache) {
	cache := NewEmbeddingCache(nil, zap.NewNop())
	return NewReconciler(store, cache, sources, notifier, testKBConfig(), zap.NewNop()), cache
}

func TestReconcilerReload(t *testing.T) {
	store := NewStore()
	src := &fakeSource{name: "postgres", all: []models.ConversationRecord{
		{Question: "Làm sao để thêm hộ khẩu?", Answer: "Vào trang Quản lý Hộ khẩu.", Source: "chat"},
		{Question: "Cách tách hộ khẩu?", Answer: "Chọn nhân khẩu rồi click Tách hộ.", Source: "chat"},
	}}
	reconciler, _ := newTestReconciler(store, nil, src)

	result := reconciler.Reload(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 2, result.ItemCount)
	assert.Equal(t, 0, result.PreviousCount)
	assert.Equal(t, 2, store.Count())
	assert.Equal(t, uint64(1), store.Generation())
}

func TestReconcilerConfirmedSourceWinsDedup(t *testing.T) {
	store := NewStore()
	src := &fakeSource{name: "postgres", all: []models.ConversationRecord{
		{Question: "xin chào mọi người", Answer: "Hi there!", Source: "chat"},
		{Question: "Xin Chào mọi người!", Answer: "Chào bạn!", Source: "feedback"},
	}}
	reconciler, _ := newTestReconciler(store, nil, src)

	result := reconciler.Reload(context.Background())
	require.True(t, result.Success)
	require.Equal(t, 1, store.Count())

	records, _ := store.Snapshot()
	assert.Equal(t, "Chào bạn!", records[0].Answer)
	assert.Equal(t, models.PriorityConfirmed, records[0].Priority)
}

func TestReconcilerNewestWinsAtEqualPriority(t *testing.T) {
	store := NewStore()
	src := &fakeSource{name: "postgres", all: []models.ConversationRecord{
		{Question: "Cách tách hộ khẩu?", Answer: "Câu trả lời cũ.", Source: "chat"},
		{Question: "cách tách hộ khẩu", Answer: "Câu trả lời mới.", Source: "chat"},
	}}
	reconciler, _ := newTestReconciler(store, nil, src)

	reconciler.Reload(context.Background())
	records, _ := store.Snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, "Câu trả lời mới.", records[0].Answer)
}

func TestReconcilerFiltersShortRecords(t *testing.T) {
	store := NewStore()
	src := &fakeSource{name: "postgres", all: []models.ConversationRecord{
		{Question: "ok?", Answer: "Câu trả lời dài hơn.", Source: "chat"},
		{Question: "Câu hỏi đủ dài?", Answer: "ok", Source: "chat"},
		{Question: "", Answer: "Có đáp án nhưng thiếu câu hỏi.", Source: "chat"},
		{Question: "Câu hỏi hợp lệ?", Answer: "Đáp án hợp lệ.", Source: "chat"},
	}}
	reconciler, _ := newTestReconciler(store, nil, src)

	result := reconciler.Reload(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 1, store.Count())
	assert.Equal(t, 1, result.ItemCount)
}

func TestReconcilerPartialFailure(t *testing.T) {
	store := NewStore()
	good := &fakeSource{name: "postgres", all: []models.ConversationRecord{
		{Question: "Làm sao để thêm hộ khẩu?", Answer: "Vào trang Quản lý Hộ khẩu.", Source: "chat"},
	}}
	bad := &fakeSource{name: "oss", allErr: fmt.Errorf("bucket unavailable")}
	reconciler, _ := newTestReconciler(store, nil, good, bad)

	result := reconciler.Reload(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 1, store.Count())
}

func TestReconcilerEmptySuccessfulSourceIsNotAFailure(t *testing.T) {
	store := NewStore()
	empty := &fakeSource{name: "postgres"}
	bad := &fakeSource{name: "oss", allErr: fmt.Errorf("bucket unavailable")}
	reconciler, _ := newTestReconciler(store, nil, empty, bad)

	// One source errors, the other succeeds with zero rows: the reload must
	// still count as successful.
	result := reconciler.Reload(context.Background())
	require.True(t, result.Success)
	assert.Empty(t, result.Error)
	assert.Equal(t, 0, result.ItemCount)
	assert.Equal(t, uint64(1), store.Generation())
}

func TestReconcilerAllSourcesFailKeepsStore(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]models.QARecord{
		{Question: "Câu hỏi đã có sẵn?", Answer: "Đáp án đã có sẵn.", Priority: models.PriorityObserved},
	})
	genBefore := store.Generation()

	bad1 := &fakeSource{name: "postgres", allErr: fmt.Errorf("db down")}
	bad2 := &fakeSource{name: "oss", allErr: fmt.Errorf("bucket down")}
	reconciler, _ := newTestReconciler(store, nil, bad1, bad2)

	result := reconciler.Reload(context.Background())
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 1, store.Count())
	assert.Equal(t, genBefore, store.Generation())
}

func TestReconcilerInvalidatesEmbeddingCache(t *testing.T) {
	store := NewStore()
	src := &fakeSource{name: "postgres", all: []models.ConversationRecord{
		{Question: "Làm sao để thêm hộ khẩu?", Answer: "Vào trang Quản lý Hộ khẩu.", Source: "chat"},
	}}
	reconciler, cache := newTestReconciler(store, nil, src)
	genBefore := cache.Generation()

	reconciler.Reload(context.Background())
	assert.Equal(t, genBefore+1, cache.Generation())
}

func TestReconcilerNotifiesResponseCache(t *testing.T) {
	store := NewStore()
	src := &fakeSource{name: "postgres", all: []models.ConversationRecord{
		{Question: "Làm sao để thêm hộ khẩu?", Answer: "Vào trang Quản lý Hộ khẩu.", Source: "chat"},
	}}
	notifier := &fakeNotifier{}
	reconciler, _ := newTestReconciler(store, notifier, src)

	reconciler.Reload(context.Background())

	// The bump runs on a separate goroutine.
	assert.Eventually(t, func() bool {
		return notifier.bumps.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDedupeByPriorityDropsShortKeys(t *testing.T) {
	out := dedupeByPriority([]models.QARecord{
		{Question: "ok!", Answer: "Quá ngắn.", Priority: models.PriorityObserved},
		{Question: "Câu hỏi đủ dài?", Answer: "Giữ lại.", Priority: models.PriorityObserved},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "Giữ lại.", out[0].Answer)
}

func TestDedupeByPriorityDeterministicOrder(t *testing.T) {
	items := []models.QARecord{
		{Question: "Câu hỏi một là gì?", Answer: "Một.", Priority: models.PriorityObserved},
		{Question: "Câu hỏi hai là gì?", Answer: "Hai.", Priority: models.PriorityObserved},
		{Question: "Câu hỏi ba là gì?", Answer: "Ba.", Priority: models.PriorityObserved},
	}
	first := dedupeByPriority(items)
	second := dedupeByPriority(items)
	assert.Equal(t, first, second)
}
