package kb

import (
	"testing"

	"hokhau-ai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreReplaceAllBumpsGeneration(t *testing.T) {
	store := NewStore()
	assert.Equal(t, uint64(0), store.Generation())

	gen := store.ReplaceAll([]models.QARecord{
		{Question: "Làm sao để thêm hộ khẩu?", Answer: "Vào trang Quản lý Hộ khẩu.", Priority: models.PriorityObserved},
	})
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, 1, store.Count())

	gen = store.ReplaceAll(nil)
	assert.Equal(t, uint64(2), gen)
	assert.Equal(t, 0, store.Count())
}

func TestStoreAppendOverwritesOnNormalizedMatch(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]models.QARecord{
		{Question: "Làm sao để thêm hộ khẩu?", Answer: "Câu trả lời cũ.", Priority: models.PriorityObserved},
	})
	genBefore := store.Generation()

	// Different casing and punctuation, same normalized question.
	isNew := store.Append(models.QARecord{
		Question: "làm sao để thêm hộ khẩu",
		Answer:   "Câu trả lời mới.",
		Priority: models.PriorityConfirmed,
	})
	assert.False(t, isNew)
	assert.Equal(t, 1, store.Count())
	assert.Equal(t, genBefore, store.Generation(), "append must not bump the generation")

	records, _ := store.Snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, "Câu trả lời mới.", records[0].Answer)
	assert.Equal(t, models.PriorityConfirmed, records[0].Priority)
}

func TestStoreAppendNewRecord(t *testing.T) {
	store := NewStore()
	isNew := store.Append(models.QARecord{
		Question: "Cách tách hộ khẩu?",
		Answer:   "Chọn nhân khẩu rồi click Tách hộ.",
		Priority: models.PriorityObserved,
	})
	assert.True(t, isNew)
	assert.Equal(t, 1, store.Count())
}

func TestStoreSnapshotIsolation(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]models.QARecord{
		{Question: "Câu hỏi một là gì?", Answer: "Trả lời một.", Priority: models.PriorityObserved},
	})

	snapshot, gen := store.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, uint64(1), gen)

	store.ReplaceAll([]models.QARecord{
		{Question: "Câu hỏi hai là gì?", Answer: "Trả lời hai.", Priority: models.PriorityObserved},
		{Question: "Câu hỏi ba là gì?", Answer: "Trả lời ba.", Priority: models.PriorityObserved},
	})

	// The earlier snapshot is unaffected by the swap.
	assert.Len(t, snapshot, 1)
	assert.Equal(t, "Trả lời một.", snapshot[0].Answer)
}

func TestStoreRecordPrecomputesNormalization(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]models.QARecord{
		{Question: "Làm SAO để thêm Hộ Khẩu?!", Answer: "OK.", Priority: models.PriorityObserved},
	})
	records, _ := store.Snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, "lam sao de them ho khau", records[0].normQuestion)
	assert.Equal(t, []string{"lam", "sao", "de", "them", "ho", "khau"}, records[0].tokens)
}

func TestStoreStatusCounters(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]models.QARecord{
		{Question: "Câu hỏi nào đó?", Answer: "Trả lời.", Priority: models.PriorityObserved},
	})

	store.noteQuery()
	store.noteQuery()
	store.noteHit()

	status := store.Status()
	assert.Equal(t, 1, status.ItemCount)
	assert.Equal(t, uint64(1), status.Generation)
	assert.Equal(t, 1, status.ReloadCount)
	assert.Equal(t, int64(2), status.Queries)
	assert.Equal(t, int64(1), status.Hits)
	assert.InDelta(t, 0.5, status.HitRate, 1e-9)
	assert.False(t, status.LastReloadTime.IsZero())
}
