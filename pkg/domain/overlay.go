package domain

import (
	"errors"
	"fmt"
)

const (
	// MaxOverlays は同時に保持できるオーバーレイスロットの上限です。
	MaxOverlays = 5

	DefaultOverlayX     = 50.0
	DefaultOverlayY     = 50.0
	DefaultOverlayScale = 20.0
)

var (
	ErrOverlayNotFound  = errors.New("overlay not found")
	ErrInvalidPlacement = errors.New("invalid overlay placement")
)

// OverlayEntry はユーザーが配置した1つの装飾画像スロットです。
// X, Y はベース画像に対するオーバーレイ中心の位置（%）、Scale は元画像サイズに対する描画倍率（%）です。
type OverlayEntry struct {
	ID     int64
	Source string // 読み込み済み画像の data URI。空ならスロットのみ確保された状態
	X      float64
	Y      float64
	Scale  float64
}

// HasSource はソース画像が読み込まれているかを返します。
func (e OverlayEntry) HasSource() bool {
	return e.Source != ""
}

// Active は合成対象となるかを返します。
// ソース未設定、または配置値が範囲外の中途半端なエントリは除外されます。
func (e OverlayEntry) Active() bool {
	return e.HasSource() && ValidatePlacement(e.X, e.Y, e.Scale) == nil
}

// ValidatePlacement は配置値が x,y ∈ [0,100], scale ∈ (0,100] を満たすか検証します。
func ValidatePlacement(x, y, scale float64) error {
	switch {
	case !(x >= 0 && x <= 100):
		return fmt.Errorf("%w: x=%v", ErrInvalidPlacement, x)
	case !(y >= 0 && y <= 100):
		return fmt.Errorf("%w: y=%v", ErrInvalidPlacement, y)
	case !(scale > 0 && scale <= 100):
		return fmt.Errorf("%w: scale=%v", ErrInvalidPlacement, scale)
	}
	return nil
}

// OverlayList はオーバーレイの順序付きリストです。
// スライスのインデックスがそのまま重なり順（後ろほど手前）になります。
type OverlayList struct {
	entries []OverlayEntry
	nextID  int64
}

// NewOverlayList は空のリストを作成します。
func NewOverlayList() *OverlayList {
	return &OverlayList{nextID: 1}
}

// Len はスロット数を返します。
func (l *OverlayList) Len() int {
	return len(l.entries)
}

// Entries はエントリのコピーを重なり順で返します。
func (l *OverlayList) Entries() []OverlayEntry {
	out := make([]OverlayEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ActiveEntries は合成対象のエントリのみを重なり順で返します。
func (l *OverlayList) ActiveEntries() []OverlayEntry {
	var out []OverlayEntry
	for _, e := range l.entries {
		if e.Active() {
			out = append(out, e)
		}
	}
	return out
}

// Get は ID に一致するエントリを返します。
func (l *OverlayList) Get(id int64) (OverlayEntry, bool) {
	if i := l.indexOf(id); i >= 0 {
		return l.entries[i], true
	}
	return OverlayEntry{}, false
}

// Add は既定の配置で新しいスロットを末尾に追加します。
// 上限に達している場合は何もせず false を返します。
func (l *OverlayList) Add() (OverlayEntry, bool) {
	if len(l.entries) >= MaxOverlays {
		return OverlayEntry{}, false
	}
	if l.nextID == 0 {
		l.nextID = 1
	}
	e := OverlayEntry{
		ID:    l.nextID,
		X:     DefaultOverlayX,
		Y:     DefaultOverlayY,
		Scale: DefaultOverlayScale,
	}
	l.nextID++
	l.entries = append(l.entries, e)
	return e, true
}

// SetPlacement は配置値を検証した上で更新します。
func (l *OverlayList) SetPlacement(id int64, x, y, scale float64) error {
	if err := ValidatePlacement(x, y, scale); err != nil {
		return err
	}
	return l.update(id, func(e *OverlayEntry) {
		e.X, e.Y, e.Scale = x, y, scale
	})
}

// SetSource はソース画像（data URI）を差し替えます。
func (l *OverlayList) SetSource(id int64, source string) error {
	return l.update(id, func(e *OverlayEntry) {
		e.Source = source
	})
}

// ClearSource はソース画像を外します。スロット自体は残ります。
func (l *OverlayList) ClearSource(id int64) error {
	return l.SetSource(id, "")
}

// Remove はスロットを削除します。削除された ID は再利用されません。
func (l *OverlayList) Remove(id int64) error {
	i := l.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: id=%d", ErrOverlayNotFound, id)
	}
	l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
	return nil
}

// Replace はリスト全体を置き換えます。上限を超えた分は切り捨てます。
// 渡された ID は維持し、以降の採番はそれらより大きい値から続けます。
// 0 以下や重複した ID には新しい ID を割り当てます。
func (l *OverlayList) Replace(entries []OverlayEntry) {
	if len(entries) > MaxOverlays {
		entries = entries[:MaxOverlays]
	}
	l.entries = make([]OverlayEntry, len(entries))
	copy(l.entries, entries)
	for _, e := range l.entries {
		if e.ID >= l.nextID {
			l.nextID = e.ID + 1
		}
	}
	seen := make(map[int64]bool, len(l.entries))
	for i := range l.entries {
		e := &l.entries[i]
		if e.ID <= 0 || seen[e.ID] {
			e.ID = l.nextID
			l.nextID++
		}
		seen[e.ID] = true
	}
}

// Clear はすべてのスロットを削除します。
func (l *OverlayList) Clear() {
	l.entries = nil
}

func (l *OverlayList) update(id int64, fn func(e *OverlayEntry)) error {
	i := l.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: id=%d", ErrOverlayNotFound, id)
	}
	fn(&l.entries[i])
	return nil
}

func (l *OverlayList) indexOf(id int64) int {
	for i, e := range l.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
