package generator

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shouni/gemini-composite-kit/pkg/domain"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Options は GeminiGenerator の設定です。
type Options struct {
	StandardModel string
	PremiumModel  string
	// RateInterval は連続するリクエストの最小間隔です。0 以下なら DefaultRateInterval を使います。
	RateInterval time.Duration
}

// GeminiGenerator は、Standard ティア（Gemini Flash Image）、Premium ティア（Imagen）、
// 参照写真モードの3つの生成経路を担当する統合ジェネレーターです。
type GeminiGenerator struct {
	content       ContentGenerator
	imagen        ImagenModel
	standardModel string
	premiumModel  string
	limiter       *rate.Limiter
}

// NewGeminiGenerator は GeminiGenerator を初期化するのだ。
// imagen が nil の場合、Premium ティアの要求はエラーになります。
func NewGeminiGenerator(content ContentGenerator, imagen ImagenModel, opts Options) (*GeminiGenerator, error) {
	if content == nil {
		return nil, fmt.Errorf("content (ContentGenerator) is required")
	}
	if opts.StandardModel == "" {
		opts.StandardModel = StandardModel
	}
	if opts.PremiumModel == "" {
		opts.PremiumModel = PremiumModel
	}
	if opts.RateInterval <= 0 {
		opts.RateInterval = DefaultRateInterval
	}

	return &GeminiGenerator{
		content:       content,
		imagen:        imagen,
		standardModel: opts.StandardModel,
		premiumModel:  opts.PremiumModel,
		limiter:       rate.NewLimiter(rate.Every(opts.RateInterval), defaultRateBurst),
	}, nil
}

// Generate はリクエストの内容に応じて生成経路を選び、base64 の画像群を返すのだ。
//
//	参照写真あり → Standard モデル、写真パーツを先頭に置いて1枚
//	Standard     → Standard モデル、テキストのみで1枚
//	Premium      → Imagen、1枚または4枚
func (g *GeminiGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GeneratedImageSet, error) {
	if err := g.validate(req); err != nil {
		return domain.GeneratedImageSet{}, err
	}

	slog.InfoContext(ctx, "APIレート制限を確認中...", "tier", req.Tier)
	if err := g.limiter.Wait(ctx); err != nil {
		return domain.GeneratedImageSet{}, fmt.Errorf("リミッター待機中にエラーが発生しました: %w", err)
	}

	var (
		images []string
		err    error
	)
	switch {
	case len(req.ReferencePhoto) > 0:
		images, err = g.generateWithReference(ctx, req)
	case req.Tier == domain.TierStandard:
		images, err = g.generateStandard(ctx, req)
	default:
		images, err = g.generatePremium(ctx, req)
	}
	if err != nil {
		return domain.GeneratedImageSet{}, ClassifyError(err)
	}

	slog.InfoContext(ctx, "画像生成が完了しました", "tier", req.Tier, "count", len(images))
	return domain.NewGeneratedImageSet(images), nil
}

func (g *GeminiGenerator) validate(req domain.GenerationRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is empty", ErrInvalidRequest)
	}
	if req.AspectRatio != "" && !slices.Contains(AllowedAspectRatios, req.AspectRatio) {
		return fmt.Errorf("%w: unsupported aspect ratio %q", ErrInvalidRequest, req.AspectRatio)
	}
	switch req.Tier {
	case domain.TierPremium, domain.TierStandard, "":
	default:
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidRequest, req.Tier)
	}
	if req.Tier != domain.TierStandard && len(req.ReferencePhoto) == 0 {
		if req.NumImages != 0 && req.NumImages != 1 && req.NumImages != 4 {
			return fmt.Errorf("%w: number of images must be 1 or 4, got %d", ErrInvalidRequest, req.NumImages)
		}
	}
	return nil
}

func (g *GeminiGenerator) generateWithReference(ctx context.Context, req domain.GenerationRequest) ([]string, error) {
	imgPart, err := referencePart(req.ReferencePhoto)
	if err != nil {
		return nil, err
	}
	parts := []*genai.Part{imgPart, {Text: req.Prompt}}

	out, err := g.generateInternal(ctx, parts)
	if err != nil {
		return nil, fmt.Errorf("参照写真からの生成エラー: %w", err)
	}
	return []string{base64.StdEncoding.EncodeToString(out.Data)}, nil
}

func (g *GeminiGenerator) generateStandard(ctx context.Context, req domain.GenerationRequest) ([]string, error) {
	parts := []*genai.Part{{Text: req.Prompt}}

	out, err := g.generateInternal(ctx, parts)
	if err != nil {
		return nil, fmt.Errorf("Standard エンジンでの生成エラー: %w", err)
	}
	return []string{base64.StdEncoding.EncodeToString(out.Data)}, nil
}

func (g *GeminiGenerator) generatePremium(ctx context.Context, req domain.GenerationRequest) ([]string, error) {
	if g.imagen == nil {
		return nil, fmt.Errorf("%w: premium tier is not configured", ErrInvalidRequest)
	}
	n := req.NumImages
	if n == 0 {
		n = 1
	}

	slog.InfoContext(ctx, "Imagen生成リクエスト送信", "model", g.premiumModel, "count", n, "aspect_ratio", req.AspectRatio)
	resp, err := g.imagen.GenerateImages(ctx, g.premiumModel, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(n),
		OutputMIMEType: premiumOutputMIME,
		AspectRatio:    req.AspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("Imagen生成エラー: %w", err)
	}
	return parseImagenResponse(resp)
}

// generateInternal は画像生成の共通ロジック（リクエスト、通信、解析）を一括で行うヘルパーなのだ。
// Standard モデルの出力寸法はモデル側（参照写真があれば写真）で決まるため、アスペクト比は渡さないのだ。
func (g *GeminiGenerator) generateInternal(ctx context.Context, parts []*genai.Part) (*ImageOutput, error) {
	resp, err := g.content.GenerateWithParts(ctx, g.standardModel, parts, gemini.GenerateOptions{})
	if err != nil {
		return nil, err // ラップは呼び出し元で行うのだ
	}
	return parseToResponse(resp)
}
