package loader

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shouni/gemini-composite-kit/pkg/imgutil"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ImageCacher = cache.New(time.Minute, time.Minute)

func allowAll(string) (bool, error) { return true, nil }

func TestKindOf(t *testing.T) {
	tests := []struct {
		src  string
		want Kind
	}{
		{"", KindEmpty},
		{"   ", KindEmpty},
		{"data:image/png;base64,AAAA", KindDataURI},
		{"https://example.com/a.png", KindURL},
		{"http://example.com/a.png", KindURL},
		{"gs://bucket/a.png", KindGCS},
		{"file:///tmp/a.png", KindFile},
		{"iVBORw0KGgo=", KindBase64},
	}
	for _, tt := range tests {
		t.Run(tt.want.String()+"/"+tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.src))
		})
	}
}

func TestImageLoader_Load(t *testing.T) {
	ctx := context.Background()
	red := pngBytes(t, 8, 6, color.RGBA{255, 0, 0, 255})

	t.Run("data URI をデコードできる", func(t *testing.T) {
		l := NewImageLoader(Options{})
		img, err := l.Load(ctx, imgutil.ToDataURI("image/png", red))

		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())
	})

	t.Run("生の base64 ペイロードをデコードできる", func(t *testing.T) {
		l := NewImageLoader(Options{})
		img, err := l.Load(ctx, base64.StdEncoding.EncodeToString(red))

		require.NoError(t, err)
		assert.Equal(t, 8, img.Bounds().Dx())
	})

	t.Run("URL は HTTP クライアント経由で取得される", func(t *testing.T) {
		httpMock := &mockHTTPClient{data: red}
		l := NewImageLoader(Options{HTTPClient: httpMock, URLValidator: allowAll})

		img, err := l.Load(ctx, "https://example.com/red.png")
		require.NoError(t, err)
		assert.Equal(t, 6, img.Bounds().Dy())
		assert.Equal(t, int32(1), httpMock.calls.Load())
	})

	t.Run("安全でないURLはブロックされる", func(t *testing.T) {
		httpMock := &mockHTTPClient{data: red}
		l := NewImageLoader(Options{HTTPClient: httpMock})

		_, err := l.Load(ctx, "http://127.0.0.1/evil.png")
		require.Error(t, err)
		assert.True(t, IsLoadError(err))
		assert.Equal(t, int32(0), httpMock.calls.Load())
	})

	t.Run("gs:// は SourceReader 経由で読み込まれる", func(t *testing.T) {
		reader := &mockReader{data: red}
		l := NewImageLoader(Options{Reader: reader})

		_, err := l.Load(ctx, "gs://bucket/red.png")
		require.NoError(t, err)
		assert.Equal(t, "gs://bucket/red.png", reader.opened)
	})

	t.Run("未設定のソース種別は ErrUnsupportedSource", func(t *testing.T) {
		l := NewImageLoader(Options{})

		for _, src := range []string{"https://example.com/a.png", "gs://bucket/a.png", "file:///tmp/a.png"} {
			_, err := l.Load(ctx, src)
			assert.True(t, errors.Is(err, ErrUnsupportedSource), src)
		}
	})

	t.Run("ローカルファイルは明示的に許可した場合のみ読める", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "red.png")
		require.NoError(t, os.WriteFile(path, red, 0o600))
		l := NewImageLoader(Options{AllowLocalFiles: true})

		img, err := l.Load(ctx, "file://"+path)
		require.NoError(t, err)
		assert.Equal(t, 8, img.Bounds().Dx())
	})

	t.Run("デコード失敗は LoadError でソースを保持する", func(t *testing.T) {
		l := NewImageLoader(Options{})
		src := imgutil.ToDataURI("image/png", []byte("this is not an image"))

		_, err := l.Load(ctx, src)

		var le *LoadError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, src, le.Source)
		assert.NotContains(t, err.Error(), base64.StdEncoding.EncodeToString([]byte("this is not an image")), "ペイロードはメッセージに含めないのだ")
	})

	t.Run("巨大な寸法を宣言する画像は LoadError になる", func(t *testing.T) {
		l := NewImageLoader(Options{})
		src := imgutil.ToDataURI("image/png", pngHeaderOnly(60000, 60000))

		_, err := l.Load(ctx, src)

		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, src, le.Source)
		assert.ErrorIs(t, err, imgutil.ErrImageTooLarge)
	})

	t.Run("空のソースはエラー", func(t *testing.T) {
		l := NewImageLoader(Options{})
		_, err := l.Load(ctx, "")
		assert.True(t, errors.Is(err, ErrEmptySource))
	})
}

func TestImageLoader_Cache(t *testing.T) {
	ctx := context.Background()
	red := pngBytes(t, 4, 4, color.RGBA{255, 0, 0, 255})

	t.Run("2回目以降はキャッシュから返す", func(t *testing.T) {
		httpMock := &mockHTTPClient{data: red}
		c := newMockCache()
		l := NewImageLoader(Options{HTTPClient: httpMock, Cache: c, URLValidator: allowAll})

		first, err := l.Load(ctx, "https://example.com/red.png")
		require.NoError(t, err)
		second, err := l.Load(ctx, "https://example.com/red.png")
		require.NoError(t, err)

		assert.Equal(t, int32(1), httpMock.calls.Load())
		assert.Same(t, first, second)
	})

	t.Run("ローカルファイルはキャッシュしない", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "red.png")
		require.NoError(t, os.WriteFile(path, red, 0o600))
		c := newMockCache()
		l := NewImageLoader(Options{Cache: c, AllowLocalFiles: true})

		_, err := l.Load(ctx, "file://"+path)
		require.NoError(t, err)
		assert.Empty(t, c.data)
	})

	t.Run("失敗はキャッシュされない", func(t *testing.T) {
		httpMock := &mockHTTPClient{err: errors.New("boom")}
		c := newMockCache()
		l := NewImageLoader(Options{HTTPClient: httpMock, Cache: c, URLValidator: allowAll})

		_, err := l.Load(ctx, "https://example.com/broken.png")
		require.Error(t, err)
		assert.Empty(t, c.data)
	})
}

func TestImageLoader_SharedFetch(t *testing.T) {
	red := pngBytes(t, 4, 4, color.RGBA{255, 0, 0, 255})
	httpMock := newGatedHTTPClient(red)
	l := NewImageLoader(Options{HTTPClient: httpMock, URLValidator: allowAll})
	const src = "https://example.com/shared.png"

	leaderCtx, cancel := context.WithCancel(context.Background())
	leader := LoadAsync(leaderCtx, l, src)
	select {
	case <-httpMock.started:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not start")
	}

	follower := LoadAsync(context.Background(), l, src)
	cancel()
	close(httpMock.release)

	for name, ch := range map[string]<-chan Result{"leader": leader, "follower": follower} {
		select {
		case res := <-ch:
			require.NoError(t, res.Err, "%s: 先頭の呼び出し元のキャンセルで共有の取得は失敗しない", name)
			assert.Equal(t, image.Rect(0, 0, 4, 4), res.Image.Bounds(), name)
		case <-time.After(5 * time.Second):
			t.Fatalf("%s did not receive a result", name)
		}
	}
}

func TestLoadAsync(t *testing.T) {
	l := NewImageLoader(Options{})
	src := imgutil.ToDataURI("image/png", pngBytes(t, 3, 2, color.White))

	select {
	case res := <-LoadAsync(context.Background(), l, src):
		require.NoError(t, res.Err)
		assert.Equal(t, image.Rect(0, 0, 3, 2), res.Image.Bounds())
	case <-time.After(5 * time.Second):
		t.Fatal("LoadAsync did not deliver a result")
	}
}
