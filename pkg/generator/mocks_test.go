package generator

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/shouni/gemini-composite-kit/pkg/imgutil"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// --- Mocks ---

type mockContentClient struct {
	generateWithPartsFunc func(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error)
	calls                 int
	lastModel             string
	lastParts             []*genai.Part
	lastOpts              gemini.GenerateOptions
}

func (m *mockContentClient) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	m.calls++
	m.lastModel = model
	m.lastParts = parts
	m.lastOpts = opts
	if m.generateWithPartsFunc != nil {
		return m.generateWithPartsFunc(ctx, model, parts, opts)
	}
	return imageResponse("image/png", []byte("fake")), nil
}

type mockImagen struct {
	resp       *genai.GenerateImagesResponse
	err        error
	calls      int
	lastModel  string
	lastPrompt string
	lastConfig *genai.GenerateImagesConfig
}

func (m *mockImagen) GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	m.calls++
	m.lastModel = model
	m.lastPrompt = prompt
	m.lastConfig = config
	return m.resp, m.err
}

// --- Helpers ---

func imageResponse(mimeType string, data []byte) *gemini.Response {
	return &gemini.Response{
		RawResponse: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{
					Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}},
				},
			}},
		},
	}
}

func imagenResponse(images ...[]byte) *genai.GenerateImagesResponse {
	resp := &genai.GenerateImagesResponse{}
	for _, data := range images {
		resp.GeneratedImages = append(resp.GeneratedImages, &genai.GeneratedImage{
			Image: &genai.Image{ImageBytes: data, MIMEType: "image/png"},
		})
	}
	return resp
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	data, err := imgutil.EncodePNG(img)
	require.NoError(t, err)
	return data
}
