package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/shouni/gemini-composite-kit/pkg/imgutil"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL = 30 * time.Minute
	cacheKeyPrefix  = "decoded:"
)

// Options は ImageLoader の依存関係です。すべて省略可能で、
// 未設定のソース種別は ErrUnsupportedSource として失敗します。
type Options struct {
	HTTPClient      HTTPClient
	Reader          SourceReader
	Cache           ImageCacher
	CacheTTL        time.Duration
	AllowLocalFiles bool
	// URLValidator を指定しない場合は IsSafeURL を使います。
	URLValidator func(rawURL string) (bool, error)
}

// ImageLoader はソース参照を解決してデコードする Loader の標準実装です。
// リトライは行わず、失敗は常に *LoadError として呼び出し元に返します。
type ImageLoader struct {
	httpClient      HTTPClient
	reader          SourceReader
	cache           ImageCacher
	expiration      time.Duration
	allowLocalFiles bool
	validateURL     func(rawURL string) (bool, error)
	group           singleflight.Group
}

// NewImageLoader は依存関係を注入して ImageLoader を初期化します。
func NewImageLoader(opts Options) *ImageLoader {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	validate := opts.URLValidator
	if validate == nil {
		validate = IsSafeURL
	}
	return &ImageLoader{
		httpClient:      opts.HTTPClient,
		reader:          opts.Reader,
		cache:           opts.Cache,
		expiration:      ttl,
		allowLocalFiles: opts.AllowLocalFiles,
		validateURL:     validate,
	}
}

// Load はソースを解決・デコードして返します。
// 同じソースへの同時呼び出しは1回のデコードにまとめられます。
func (l *ImageLoader) Load(ctx context.Context, src string) (image.Image, error) {
	kind := KindOf(src)
	key := cacheKeyPrefix + digest(src)

	if l.cache != nil && kind.cacheable() {
		if val, ok := l.cache.Get(key); ok {
			if img, ok := val.(image.Image); ok {
				return img, nil
			}
			slog.WarnContext(ctx, "キャッシュデータが不正な型です", "source", DescribeSource(src), "type", fmt.Sprintf("%T", val))
		}
	}

	// 相乗りした呼び出し元がいるため、共有の取得処理は先頭の呼び出し元のキャンセルに従いません
	shared := context.WithoutCancel(ctx)
	val, err, _ := l.group.Do(key, func() (any, error) {
		data, err := l.fetch(shared, src)
		if err != nil {
			return nil, err
		}
		img, format, err := imgutil.Decode(data)
		if err != nil {
			return nil, err
		}
		slog.DebugContext(shared, "画像をデコードしました",
			"kind", kind.String(), "format", format,
			"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

		if l.cache != nil && kind.cacheable() {
			l.cache.Set(key, img, l.expiration)
		}
		return img, nil
	})
	if err != nil {
		return nil, &LoadError{Source: src, Err: err}
	}

	img, ok := val.(image.Image)
	if !ok {
		return nil, &LoadError{Source: src, Err: fmt.Errorf("unexpected return type from singleflight: %T", val)}
	}
	return img, nil
}

// Result は非同期ロードの結果です。
type Result struct {
	Image image.Image
	Err   error
}

// LoadAsync は呼び出し元をブロックせずにロードを開始し、結果を1度だけ送るチャネルを返します。
func LoadAsync(ctx context.Context, l Loader, src string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		img, err := l.Load(ctx, src)
		ch <- Result{Image: img, Err: err}
	}()
	return ch
}

func digest(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}
