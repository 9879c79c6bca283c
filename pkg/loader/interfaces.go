package loader

import (
	"context"
	"image"
	"io"
	"time"
)

// Loader はソース参照から寸法の確定したデコード済み画像を得るためのインターフェースです。
type Loader interface {
	Load(ctx context.Context, src string) (image.Image, error)
}

// ImageCacher は、デコード済み画像をキャッシュするためのインターフェースです。
// patrickmn/go-cache の *cache.Cache がそのまま満たします。
type ImageCacher interface {
	Get(key string) (any, bool)
	Set(key string, value any, d time.Duration)
}

// HTTPClient は、URLからデータを取得するためのインターフェースです。
// go-http-kit の httpkit.ClientInterface が満たします。
type HTTPClient interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// SourceReader は gs:// などのリモートストレージからデータを読み込むためのインターフェースです。
// go-remote-io の remoteio.InputReader が満たします。
type SourceReader interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}
