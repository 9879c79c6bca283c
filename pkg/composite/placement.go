package composite

import (
	"image"
	"math"
)

// Placement はサーフェス座標系でのオーバーレイ描画矩形です。
// X, Y は左上座標で、負の値やサーフェス外も許容します。
type Placement struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Place は中心基準の % 指定をサーフェス上の描画矩形に変換します。
//
//	w = native.X * scale/100,  h = native.Y * scale/100
//	X = x/100 * surface.X - w/2
//	Y = y/100 * surface.Y - h/2
//
// オーバーレイのサイズがサーフェスの大きさに影響することはありません。
func Place(surface, native image.Point, x, y, scale float64) Placement {
	w := float64(native.X) * scale / 100
	h := float64(native.Y) * scale / 100
	return Placement{
		X:      x/100*float64(surface.X) - w/2,
		Y:      y/100*float64(surface.Y) - h/2,
		Width:  w,
		Height: h,
	}
}

// Rect はピクセル境界に丸めた描画矩形を返します。
func (p Placement) Rect() image.Rectangle {
	x0 := int(math.Round(p.X))
	y0 := int(math.Round(p.Y))
	w := int(math.Round(p.Width))
	h := int(math.Round(p.Height))
	return image.Rect(x0, y0, x0+w, y0+h)
}
