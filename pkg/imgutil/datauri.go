package imgutil

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// PNGDataURIPrefix は生成画像（base64 PNG）を表示用 data URI に変換する際の接頭辞です。
const PNGDataURIPrefix = "data:image/png;base64,"

var ErrInvalidDataURI = errors.New("invalid data URI")

// IsDataURI は文字列が data URI 形式かを判定します。
func IsDataURI(s string) bool {
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}

// ParseDataURI は data URI を MIME タイプとバイト列に分解します。
// base64 以外のエンコーディングはパーセントエンコーディングとして扱います。
func ParseDataURI(s string) (string, []byte, error) {
	if !IsDataURI(s) {
		return "", nil, ErrInvalidDataURI
	}
	meta, payload, ok := strings.Cut(s[5:], ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing comma", ErrInvalidDataURI)
	}

	mimeType := "text/plain"
	isBase64 := false
	for i, p := range strings.Split(meta, ";") {
		p = strings.TrimSpace(p)
		switch {
		case i == 0 && p != "":
			mimeType = strings.ToLower(p)
		case strings.EqualFold(p, "base64"):
			isBase64 = true
		}
	}

	if isBase64 {
		data, err := DecodeBase64(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrInvalidDataURI, err)
		}
		return mimeType, data, nil
	}

	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidDataURI, err)
	}
	return mimeType, []byte(unescaped), nil
}

// ToDataURI はバイト列を base64 の data URI に変換します。
func ToDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 は base64 文字列をデコードします。
// 改行や空白、パディングの有無、URL セーフ形式を許容します。
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)

	enc := base64.StdEncoding
	if strings.ContainsAny(s, "-_") {
		enc = base64.URLEncoding
	}
	if !strings.HasSuffix(s, "=") && len(s)%4 != 0 {
		enc = enc.WithPadding(base64.NoPadding)
	}
	return enc.DecodeString(s)
}
