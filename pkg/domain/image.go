package domain

import (
	"errors"
	"fmt"
)

// Tier は画像生成エンジンの品質ティアです。
type Tier string

const (
	// TierPremium は Imagen を利用し、1枚または4枚の画像を生成します。
	TierPremium Tier = "premium"
	// TierStandard は Gemini Flash Image を利用し、常に1枚のみ生成します。
	TierStandard Tier = "standard"
)

// ErrIndexOutOfRange は GeneratedImageSet の範囲外インデックスが指定された場合のエラーです。
var ErrIndexOutOfRange = errors.New("selected index is out of range")

// GenerationRequest は1回の画像生成要求です。
// Prompt は呼び出し側で組み立て済みの文字列として扱います。
type GenerationRequest struct {
	Prompt         string
	AspectRatio    string
	NumImages      int
	Tier           Tier
	ReferencePhoto []byte // 空でなければ参照写真モード（Standard エンジン固定、1枚のみ）
	ReferenceMIME  string
}

// GeneratedImageSet は1回の生成リクエストで得られた画像群と、現在選択中のインデックスを保持します。
// Images は base64 エンコード済みのペイロードで、プロバイダの返却順を維持します。
type GeneratedImageSet struct {
	Images   []string
	Selected int
}

// NewGeneratedImageSet は新しい画像群を作成します。選択は常に先頭に戻ります。
func NewGeneratedImageSet(images []string) GeneratedImageSet {
	cp := make([]string, len(images))
	copy(cp, images)
	return GeneratedImageSet{Images: cp}
}

// Len は画像の枚数を返します。
func (s GeneratedImageSet) Len() int {
	return len(s.Images)
}

// Empty は画像が1枚もないかどうかを返します。
func (s GeneratedImageSet) Empty() bool {
	return len(s.Images) == 0
}

// Select は選択中のインデックスを変更します。範囲外の場合は選択を変更しません。
func (s *GeneratedImageSet) Select(index int) error {
	if index < 0 || index >= len(s.Images) {
		return fmt.Errorf("%w: %d (images=%d)", ErrIndexOutOfRange, index, len(s.Images))
	}
	s.Selected = index
	return nil
}

// SelectedImage は選択中の base64 ペイロードを返します。
func (s GeneratedImageSet) SelectedImage() (string, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Images) {
		return "", false
	}
	img := s.Images[s.Selected]
	if img == "" {
		return "", false
	}
	return img, true
}
