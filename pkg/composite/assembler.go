package composite

import (
	"bytes"
	"image"
	"sync"

	"github.com/shouni/gemini-composite-kit/pkg/imgutil"

	"github.com/anthonynsimon/bild/transform"
	"golang.org/x/image/draw"
)

// MimeTypePNG は合成結果のエクスポート形式です。
const MimeTypePNG = "image/png"

// Layer は描画対象の1枚のオーバーレイです。
type Layer struct {
	Image image.Image
	X     float64
	Y     float64
	Scale float64
}

// Composite はエクスポート済みの合成結果です。
type Composite struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
	// Fingerprint は合成元の入力（ベース画像・アクティブなオーバーレイ）のダイジェストです。
	Fingerprint string
}

// DataURI は表示用の data URI を返します。
func (c *Composite) DataURI() string {
	return imgutil.ToDataURI(c.MimeType, c.Data)
}

func (c *Composite) clone() *Composite {
	cp := *c
	cp.Data = bytes.Clone(c.Data)
	return &cp
}

// Assembler はベース画像とオーバーレイ群から1枚の画像を作ります。
// 描画サーフェスは Assembler が専有し、外部には公開しません。
// 複数の実行が同時に呼び出しても、描画は1実行ずつ直列に行われます。
type Assembler struct {
	mu      sync.Mutex
	surface *image.RGBA
}

// NewAssembler は Assembler を初期化します。
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble はベース画像をサーフェス全面に描画し、その上にレイヤーを順番に重ねて PNG でエクスポートします。
// layers の並びがそのまま重なり順で、後ろの要素ほど手前に描かれます。
func (a *Assembler) Assemble(base image.Image, layers []Layer) (*Composite, error) {
	if base == nil {
		return nil, ErrNoBaseImage
	}
	bb := base.Bounds()
	if bb.Empty() {
		return nil, ErrEmptyBaseImage
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.acquire(bb.Dx(), bb.Dy())
	draw.Draw(s, s.Bounds(), base, bb.Min, draw.Src)

	for _, layer := range layers {
		drawLayer(s, layer)
	}

	data, err := imgutil.EncodePNG(s)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}

	return &Composite{
		Data:     data,
		MimeType: MimeTypePNG,
		Width:    bb.Dx(),
		Height:   bb.Dy(),
	}, nil
}

// acquire はサーフェスを指定サイズに合わせ、内容をゼロクリアして返します。
// 以前のベース画像の寸法や画素が次の実行に残ることはありません。
func (a *Assembler) acquire(w, h int) *image.RGBA {
	n := 4 * w * h
	if a.surface == nil || cap(a.surface.Pix) < n {
		a.surface = image.NewRGBA(image.Rect(0, 0, w, h))
		return a.surface
	}
	a.surface.Pix = a.surface.Pix[:n]
	a.surface.Stride = 4 * w
	a.surface.Rect = image.Rect(0, 0, w, h)
	clear(a.surface.Pix)
	return a.surface
}

func drawLayer(dst *image.RGBA, layer Layer) {
	if layer.Image == nil {
		return
	}
	src := layer.Image
	nb := src.Bounds()
	r := Place(dst.Bounds().Size(), nb.Size(), layer.X, layer.Y, layer.Scale).Rect()
	if r.Empty() {
		return
	}
	if r.Dx() != nb.Dx() || r.Dy() != nb.Dy() {
		src = transform.Resize(src, r.Dx(), r.Dy(), transform.Linear)
	}
	// サーフェス外にはみ出した部分は draw.Draw によって自然にクリップされる
	draw.Draw(dst, r, src, src.Bounds().Min, draw.Over)
}
