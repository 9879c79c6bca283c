package generator

import "time"

const (
	// StandardModel は Standard ティアと参照写真モードで使うモデルです。
	StandardModel = "gemini-2.5-flash-image"
	// PremiumModel は Premium ティアで使う Imagen モデルです。
	PremiumModel = "imagen-4.0-generate-001"

	UseImageCompression     = true
	ImageCompressionQuality = 75

	DefaultRateInterval = 2 * time.Second
	defaultRateBurst    = 2

	premiumOutputMIME = "image/png"
)

// AllowedAspectRatios は生成時に指定できるアスペクト比です。
var AllowedAspectRatios = []string{"1:1", "3:4", "9:16"}

// ImageOutput は Core の内部解析結果
type ImageOutput struct {
	Data     []byte
	MimeType string
}
