package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayList_Add(t *testing.T) {
	t.Run("既定の配置でスロットが追加される", func(t *testing.T) {
		l := NewOverlayList()

		e, ok := l.Add()
		require.True(t, ok)
		assert.Equal(t, DefaultOverlayX, e.X)
		assert.Equal(t, DefaultOverlayY, e.Y)
		assert.Equal(t, DefaultOverlayScale, e.Scale)
		assert.False(t, e.HasSource())
		assert.False(t, e.Active(), "ソース未設定のスロットは合成対象外なのだ")
	})

	t.Run("上限を超える追加は何もしない", func(t *testing.T) {
		l := NewOverlayList()
		for i := 0; i < MaxOverlays; i++ {
			_, ok := l.Add()
			require.True(t, ok)
		}

		_, ok := l.Add()
		assert.False(t, ok)
		_, ok = l.Add()
		assert.False(t, ok)
		assert.Equal(t, MaxOverlays, l.Len())
	})

	t.Run("削除後もIDは再利用されない", func(t *testing.T) {
		l := NewOverlayList()
		a, _ := l.Add()
		b, _ := l.Add()
		require.NoError(t, l.Remove(b.ID))

		c, ok := l.Add()
		require.True(t, ok)
		assert.NotEqual(t, a.ID, c.ID)
		assert.NotEqual(t, b.ID, c.ID)
	})
}

func TestOverlayList_Mutations(t *testing.T) {
	l := NewOverlayList()
	a, _ := l.Add()
	b, _ := l.Add()

	t.Run("配置を更新できる", func(t *testing.T) {
		require.NoError(t, l.SetPlacement(a.ID, 10, 90, 100))
		got, ok := l.Get(a.ID)
		require.True(t, ok)
		assert.Equal(t, 10.0, got.X)
		assert.Equal(t, 90.0, got.Y)
		assert.Equal(t, 100.0, got.Scale)
	})

	t.Run("範囲外の配置は拒否される", func(t *testing.T) {
		tests := []struct {
			name        string
			x, y, scale float64
		}{
			{"x が負", -1, 50, 20},
			{"y が100超", 50, 101, 20},
			{"scale が0", 50, 50, 0},
			{"scale が100超", 50, 50, 150},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := l.SetPlacement(b.ID, tt.x, tt.y, tt.scale)
				assert.True(t, errors.Is(err, ErrInvalidPlacement))
			})
		}
		got, _ := l.Get(b.ID)
		assert.Equal(t, DefaultOverlayScale, got.Scale)
	})

	t.Run("ソース設定でアクティブになり、クリアで戻る", func(t *testing.T) {
		require.NoError(t, l.SetSource(b.ID, "data:image/png;base64,AAAA"))
		got, _ := l.Get(b.ID)
		assert.True(t, got.Active())
		assert.Len(t, l.ActiveEntries(), 1)

		require.NoError(t, l.ClearSource(b.ID))
		got, _ = l.Get(b.ID)
		assert.False(t, got.Active())
		assert.Equal(t, 2, l.Len(), "スロットは残るのだ")
	})

	t.Run("存在しないIDはエラー", func(t *testing.T) {
		assert.True(t, errors.Is(l.SetSource(999, "x"), ErrOverlayNotFound))
		assert.True(t, errors.Is(l.Remove(999), ErrOverlayNotFound))
	})

	t.Run("Entries はコピーを返す", func(t *testing.T) {
		entries := l.Entries()
		entries[0].X = 77
		got, _ := l.Get(a.ID)
		assert.NotEqual(t, 77.0, got.X)
	})
}

func TestOverlayList_Order(t *testing.T) {
	l := NewOverlayList()
	first, _ := l.Add()
	second, _ := l.Add()
	third, _ := l.Add()

	require.NoError(t, l.Remove(second.ID))

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, third.ID, entries[1].ID)
}

func TestOverlayList_Replace(t *testing.T) {
	l := NewOverlayList()
	entries := make([]OverlayEntry, 0, MaxOverlays+2)
	for i := 0; i < MaxOverlays+2; i++ {
		entries = append(entries, OverlayEntry{ID: int64(10 + i), X: 50, Y: 50, Scale: 20})
	}

	l.Replace(entries)
	assert.Equal(t, MaxOverlays, l.Len())

	l.Clear()
	e, ok := l.Add()
	require.True(t, ok)
	assert.Greater(t, e.ID, int64(10+MaxOverlays-1))
}

func TestOverlayList_ReplaceKeepsIDsUnique(t *testing.T) {
	l := NewOverlayList()
	l.Replace([]OverlayEntry{
		{ID: 7, X: 10, Y: 10, Scale: 10},
		{ID: 7, X: 20, Y: 20, Scale: 10},
		{ID: 0, X: 30, Y: 30, Scale: 10},
		{ID: -3, X: 40, Y: 40, Scale: 10},
	})

	entries := l.Entries()
	require.Len(t, entries, 4)
	seen := map[int64]bool{}
	for _, e := range entries {
		assert.Positive(t, e.ID)
		assert.False(t, seen[e.ID], "ID %d が重複している", e.ID)
		seen[e.ID] = true
	}
	assert.EqualValues(t, 7, entries[0].ID, "最初の ID は維持される")

	// 重複していた2番目のエントリも個別に操作できる
	require.NoError(t, l.SetPlacement(entries[1].ID, 90, 90, 50))
	got, ok := l.Get(entries[1].ID)
	require.True(t, ok)
	assert.Equal(t, 90.0, got.X)
	first, _ := l.Get(7)
	assert.Equal(t, 10.0, first.X)

	require.NoError(t, l.Remove(entries[2].ID))
	assert.Equal(t, 3, l.Len())

	e, ok := l.Add()
	require.True(t, ok)
	assert.False(t, seen[e.ID], "新しいスロットは既存の ID と衝突しない")
}

func TestOverlayEntry_ActiveRejectsPartialPlacement(t *testing.T) {
	e := OverlayEntry{ID: 1, Source: "data:image/png;base64,AAAA"}
	assert.False(t, e.Active(), "Scale=0 の中途半端なエントリは除外されるのだ")
}
