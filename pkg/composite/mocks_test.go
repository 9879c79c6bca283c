package composite

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shouni/gemini-composite-kit/pkg/imgutil"
	"github.com/shouni/gemini-composite-kit/pkg/loader"

	"github.com/stretchr/testify/require"
)

// --- Mocks ---

// mockLoader はソース文字列ごとに画像・エラー・待機ゲートを設定できる Loader です。
type mockLoader struct {
	mu     sync.Mutex
	images map[string]image.Image
	errs   map[string]error
	gates  map[string]chan struct{}
	panics map[string]bool
	calls  atomic.Int32
}

func newMockLoader() *mockLoader {
	return &mockLoader{
		images: make(map[string]image.Image),
		errs:   make(map[string]error),
		gates:  make(map[string]chan struct{}),
		panics: make(map[string]bool),
	}
}

func (m *mockLoader) with(src string, img image.Image) *mockLoader {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[src] = img
	return m
}

func (m *mockLoader) failing(src string, err error) *mockLoader {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[src] = err
	return m
}

func (m *mockLoader) panicking(src string) *mockLoader {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[src] = true
	return m
}

// gate は src のロードを release が呼ばれるまで止めます。
func (m *mockLoader) gate(src string) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.gates[src] = ch
	m.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (m *mockLoader) Load(ctx context.Context, src string) (image.Image, error) {
	m.calls.Add(1)

	m.mu.Lock()
	gate := m.gates[src]
	img, ok := m.images[src]
	err := m.errs[src]
	shouldPanic := m.panics[src]
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if shouldPanic {
		panic("decoder exploded")
	}
	if err != nil {
		return nil, &loader.LoadError{Source: src, Err: err}
	}
	if !ok {
		return nil, &loader.LoadError{Source: src, Err: errors.New("not found")}
	}
	return img, nil
}

// --- Helpers ---

var (
	white = color.RGBA{255, 255, 255, 255}
	red   = color.RGBA{255, 0, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
	green = color.RGBA{0, 255, 0, 255}
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func decodeComposite(t *testing.T, c *Composite) image.Image {
	t.Helper()
	require.NotNil(t, c)
	img, format, err := imgutil.Decode(c.Data)
	require.NoError(t, err)
	require.Equal(t, "png", format)
	return img
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}
