package composite

import (
	"errors"
	"fmt"

	"github.com/shouni/gemini-composite-kit/pkg/imgutil"
)

// DownloadFilename はダウンロード時のファイル名です。
const DownloadFilename = "ai-generated-image.png"

var ErrNothingToDownload = errors.New("no image to download")

// Display は表示パネルに渡す内容です。
type Display struct {
	// Source は <img> にそのまま渡せる data URI です。Placeholder の場合は空です。
	Source        string
	FromComposite bool
	Placeholder   bool
	// Message は直近の合成失敗時のユーザー向けメッセージです。
	Message string
}

// BuildDisplay は合成結果、選択中のベース画像、プレースホルダーの順に表示内容を決定します。
func BuildDisplay(comp *Composite, base string, runErr *RunError) Display {
	var d Display
	if runErr != nil {
		d.Message = runErr.Message
	}
	switch {
	case comp != nil:
		d.Source = comp.DataURI()
		d.FromComposite = true
	case base != "":
		d.Source = baseDataURI(base)
	default:
		d.Placeholder = true
	}
	return d
}

// Download はダウンロード用のファイルです。
type Download struct {
	Filename string
	MimeType string
	Data     []byte
}

// BuildDownload は合成結果があればそれを、なければベース画像をダウンロード用に返します。
// ベース画像が PNG 以外の場合は PNG に変換します。
func BuildDownload(comp *Composite, base string) (*Download, error) {
	if comp != nil {
		return &Download{Filename: DownloadFilename, MimeType: MimeTypePNG, Data: comp.Data}, nil
	}
	if base == "" {
		return nil, ErrNothingToDownload
	}

	data, err := basePayload(base)
	if err != nil {
		return nil, err
	}
	if imgutil.DetectMIME(data) != MimeTypePNG {
		img, _, err := imgutil.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base image: %w", err)
		}
		if data, err = imgutil.EncodePNG(img); err != nil {
			return nil, fmt.Errorf("failed to encode base image: %w", err)
		}
	}
	return &Download{Filename: DownloadFilename, MimeType: MimeTypePNG, Data: data}, nil
}

func baseDataURI(base string) string {
	if imgutil.IsDataURI(base) {
		return base
	}
	return imgutil.PNGDataURIPrefix + base
}

func basePayload(base string) ([]byte, error) {
	if imgutil.IsDataURI(base) {
		_, data, err := imgutil.ParseDataURI(base)
		return data, err
	}
	data, err := imgutil.DecodeBase64(base)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base image payload: %w", err)
	}
	return data, nil
}
