package loader

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shouni/gemini-composite-kit/pkg/imgutil"
)

// --- Mocks ---

type mockHTTPClient struct {
	data  []byte
	err   error
	calls atomic.Int32
}

func (m *mockHTTPClient) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.calls.Add(1)
	return m.data, m.err
}

// gatedHTTPClient は release が閉じられるまで取得を止め、その時点の ctx の状態を返します。
type gatedHTTPClient struct {
	data    []byte
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func newGatedHTTPClient(data []byte) *gatedHTTPClient {
	return &gatedHTTPClient{data: data, started: make(chan struct{}), release: make(chan struct{})}
}

func (m *gatedHTTPClient) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.calls.Add(1)
	m.once.Do(func() { close(m.started) })
	<-m.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.data, nil
}

type mockReader struct {
	data   []byte
	err    error
	opened string
}

func (m *mockReader) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	m.opened = uri
	if m.err != nil {
		return nil, m.err
	}
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

type mockCache struct {
	mu   sync.Mutex
	data map[string]any
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string]any)}
}

func (m *mockCache) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok
}

func (m *mockCache) Set(key string, value any, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// --- Helpers ---

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	data, err := imgutil.EncodePNG(img)
	if err != nil {
		t.Fatalf("failed to encode dummy image: %v", err)
	}
	return data
}

// pngHeaderOnly は IHDR と IEND だけを持つ PNG を作ります。
func pngHeaderOnly(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8
	ihdr[9] = 6
	for _, c := range []struct {
		typ  string
		data []byte
	}{{"IHDR", ihdr}, {"IEND", nil}} {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(c.data)))
		body := append([]byte(c.typ), c.data...)
		buf.Write(body)
		_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}
	return buf.Bytes()
}
