package generator

import (
	"context"

	"github.com/shouni/gemini-composite-kit/pkg/domain"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

// ImageGenerator はセッションや CLI が利用する統合窓口です。
type ImageGenerator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.GeneratedImageSet, error)
}

// ContentGenerator はマルチモーダル生成を行うクライアントです。
// gemini.GenerativeModel がこれを満たします。
type ContentGenerator interface {
	GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error)
}

// ImagenModel は Imagen による画像生成を行うクライアントです。
// genai.Client.Models がこれを満たします。
type ImagenModel interface {
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}
