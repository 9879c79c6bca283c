package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shouni/gemini-composite-kit/pkg/imgutil"
)

// Kind はソース参照の種別です。
type Kind int

const (
	KindEmpty Kind = iota
	KindDataURI
	KindBase64
	KindURL
	KindGCS
	KindFile
)

const fileScheme = "file://"

func (k Kind) String() string {
	switch k {
	case KindDataURI:
		return "data-uri"
	case KindBase64:
		return "base64"
	case KindURL:
		return "url"
	case KindGCS:
		return "gcs"
	case KindFile:
		return "file"
	}
	return "empty"
}

// KindOf はソース参照の種別を判定します。
// スキームを持たない文字列は base64 ペイロード（生成 API の返却形式）として扱います。
func KindOf(src string) Kind {
	s := strings.TrimSpace(src)
	switch {
	case s == "":
		return KindEmpty
	case imgutil.IsDataURI(s):
		return KindDataURI
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return KindURL
	case strings.HasPrefix(s, "gs://"):
		return KindGCS
	case strings.HasPrefix(s, fileScheme):
		return KindFile
	}
	return KindBase64
}

// cacheable は同じ参照が常に同じ内容を指すかを返します。
func (k Kind) cacheable() bool {
	return k == KindDataURI || k == KindBase64 || k == KindURL || k == KindGCS
}

// fetch はソース参照を生のバイト列に解決します。
func (l *ImageLoader) fetch(ctx context.Context, src string) ([]byte, error) {
	src = strings.TrimSpace(src)
	switch KindOf(src) {
	case KindEmpty:
		return nil, ErrEmptySource
	case KindDataURI:
		_, data, err := imgutil.ParseDataURI(src)
		return data, err
	case KindBase64:
		return imgutil.DecodeBase64(src)
	case KindURL:
		if l.httpClient == nil {
			return nil, fmt.Errorf("%w: http client is not configured", ErrUnsupportedSource)
		}
		if safe, err := l.validateURL(src); err != nil || !safe {
			return nil, fmt.Errorf("安全ではないURLが指定されました: %w", err)
		}
		return l.httpClient.FetchBytes(ctx, src)
	case KindGCS:
		if l.reader == nil {
			return nil, fmt.Errorf("%w: remote reader is not configured", ErrUnsupportedSource)
		}
		rc, err := l.reader.Open(ctx, src)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	case KindFile:
		if !l.allowLocalFiles {
			return nil, fmt.Errorf("%w: local files are disabled", ErrUnsupportedSource)
		}
		return os.ReadFile(strings.TrimPrefix(src, fileScheme))
	}
	return nil, ErrUnsupportedSource
}
