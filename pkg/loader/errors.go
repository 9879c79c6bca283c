package loader

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedSource = errors.New("unsupported image source")
	ErrEmptySource       = errors.New("empty image source")
)

// LoadError は画像（ベース・オーバーレイ共通）をソースからデコードできなかったことを表します。
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("image load failed (%s): %v", DescribeSource(e.Source), e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError は err が LoadError を含むかを返します。
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// DescribeSource はログやエラーメッセージ向けにソース参照を短く整形します。
// data URI や base64 ペイロードは中身を出力しません。
func DescribeSource(src string) string {
	switch KindOf(src) {
	case KindDataURI:
		meta, _, _ := strings.Cut(src, ",")
		return fmt.Sprintf("%s,…(%d chars)", meta, len(src))
	case KindBase64:
		return fmt.Sprintf("base64(%d chars)", len(src))
	case KindEmpty:
		return "<empty>"
	}
	return src
}
