package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratedImageSet(t *testing.T) {
	t.Run("新しい画像群では先頭が選択されるのだ", func(t *testing.T) {
		set := NewGeneratedImageSet([]string{"a", "b", "c", "d"})

		img, ok := set.SelectedImage()
		require.True(t, ok)
		assert.Equal(t, "a", img)
		assert.Equal(t, 0, set.Selected)
		assert.Equal(t, 4, set.Len())
	})

	t.Run("範囲内のインデックスは選択できる", func(t *testing.T) {
		set := NewGeneratedImageSet([]string{"a", "b", "c", "d"})

		require.NoError(t, set.Select(3))
		img, ok := set.SelectedImage()
		require.True(t, ok)
		assert.Equal(t, "d", img)
	})

	t.Run("範囲外のインデックスはエラーで選択は変わらない", func(t *testing.T) {
		set := NewGeneratedImageSet([]string{"a"})

		err := set.Select(1)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange))
		assert.Equal(t, 0, set.Selected)

		assert.Error(t, set.Select(-1))
	})

	t.Run("空の画像群は選択画像を持たない", func(t *testing.T) {
		var set GeneratedImageSet

		_, ok := set.SelectedImage()
		assert.False(t, ok)
		assert.True(t, set.Empty())
		assert.Error(t, set.Select(0))
	})

	t.Run("元スライスの変更は影響しない", func(t *testing.T) {
		src := []string{"a", "b"}
		set := NewGeneratedImageSet(src)
		src[0] = "changed"

		img, _ := set.SelectedImage()
		assert.Equal(t, "a", img)
	})
}

func TestReferenceSettings_SetUsePhoto(t *testing.T) {
	ref := ReferenceSettings{
		Photo:          []byte{1, 2, 3},
		PhotoMIME:      "image/png",
		UsePhoto:       true,
		UseStyle:       true,
		UseComposition: true,
		KeepOverlays:   true,
	}
	assert.True(t, ref.Active())

	ref.SetUsePhoto(false)

	assert.False(t, ref.Active())
	assert.False(t, ref.HasPhoto())
	assert.False(t, ref.UseStyle)
	assert.False(t, ref.UseComposition)
	assert.False(t, ref.KeepOverlays)
}
