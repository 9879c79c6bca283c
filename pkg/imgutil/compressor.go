package imgutil

import (
	"bytes"
	"image/jpeg"
)

// CompressToJPEG は画像データ（PNG, GIF, JPEG, WebP 等）をJPEG形式に圧縮します。
// 参照写真を生成 API に送る前のサイズ削減に使います。
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
