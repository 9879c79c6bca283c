package imgutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/webp"
)

// MaxPixels はデコードを許す画素数（幅×高さ）の上限です。
const MaxPixels = 50_000_000

// ErrImageTooLarge はヘッダーの寸法が MaxPixels を超える場合のエラーです。
var ErrImageTooLarge = errors.New("image dimensions exceed the decode limit")

// Decode は PNG, JPEG, GIF, WebP の画像データをデコードし、フォーマット名とともに返します。
// ピクセルを展開する前にヘッダーの寸法を確認し、MaxPixels を超える画像は拒否します。
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return image.Decode(bytes.NewReader(data))
}

// EncodePNG は画像を可逆の PNG 形式でエンコードします。
// 同じ画像からは常に同一のバイト列が得られます。
func EncodePNG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DetectMIME はマジックナンバーから MIME タイプを推定します。
// 判定できない場合は http.DetectContentType にフォールバックします。
func DetectMIME(data []byte) string {
	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return http.DetectContentType(data)
}

// IsImage はデータが画像フォーマットとして認識できるかを返します。
func IsImage(data []byte) bool {
	return filetype.IsImage(data)
}
