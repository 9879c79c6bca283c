package generator

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/shouni/gemini-composite-kit/pkg/imgutil"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

// referencePart は参照写真を圧縮して画像パーツに変換します。
// 圧縮に失敗した場合は元のデータをそのまま使います。
func referencePart(data []byte) (*genai.Part, error) {
	finalData := data
	if UseImageCompression {
		if compressed, err := imgutil.CompressToJPEG(data, ImageCompressionQuality); err == nil {
			finalData = compressed
		}
	}
	part := toPart(finalData)
	if part == nil {
		return nil, fmt.Errorf("%w: reference photo is not an image", ErrInvalidRequest)
	}
	return part, nil
}

func toPart(data []byte) *genai.Part {
	mimeType := imgutil.DetectMIME(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}
}

// parseToResponse は最初の候補から最初のインライン画像を取り出します。
func parseToResponse(resp *gemini.Response) (*ImageOutput, error) {
	if resp == nil || resp.RawResponse == nil || len(resp.RawResponse.Candidates) == 0 {
		return nil, fmt.Errorf("%w: invalid response", ErrNoImage)
	}
	candidate := resp.RawResponse.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &ImageOutput{Data: part.InlineData.Data, MimeType: part.InlineData.MIMEType}, nil
			}
		}
	}
	if r := candidate.FinishReason; r != "" && r != genai.FinishReasonStop && r != genai.FinishReasonUnspecified {
		return nil, fmt.Errorf("%w: image generation stopped (reason: %s), please adjust the prompt", ErrNoImage, r)
	}
	return nil, fmt.Errorf("%w: no image data", ErrNoImage)
}

// parseImagenResponse は Imagen の結果を返却順のまま base64 に変換します。
func parseImagenResponse(resp *genai.GenerateImagesResponse) ([]string, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: invalid response", ErrNoImage)
	}
	var images []string
	for _, gi := range resp.GeneratedImages {
		if gi == nil || gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			continue
		}
		images = append(images, base64.StdEncoding.EncodeToString(gi.Image.ImageBytes))
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: the model did not return any images, this may be due to safety policies", ErrNoImage)
	}
	return images, nil
}
