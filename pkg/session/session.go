package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shouni/gemini-composite-kit/pkg/composite"
	"github.com/shouni/gemini-composite-kit/pkg/domain"
	"github.com/shouni/gemini-composite-kit/pkg/imgutil"
)

var (
	// ErrReferenceActive は参照写真モード中にオーバーレイを追加・変更しようとした場合のエラーです。
	ErrReferenceActive = errors.New("overlays are disabled while the reference photo is in use")
	// ErrOverlayLimit はスロット数が上限に達している場合のエラーです。
	ErrOverlayLimit = fmt.Errorf("overlay limit reached (max %d)", domain.MaxOverlays)
	// ErrNotImage は画像として認識できないファイルが渡された場合のエラーです。
	ErrNotImage = errors.New("file is not a supported image")
	// ErrNoReferencePhoto は参照写真なしで写真依存のフラグを有効にしようとした場合のエラーです。
	ErrNoReferencePhoto = errors.New("reference photo is not set")
)

// Snapshot はセッション状態のコピーです。
type Snapshot struct {
	Images    domain.GeneratedImageSet
	Overlays  []domain.OverlayEntry
	Reference domain.ReferenceSettings
	Render    composite.State
}

// Session は生成画像・オーバーレイ・参照写真設定を保持し、
// 変更があるたびに合成の再計算を Renderer に依頼します。
//
// 再計算の依頼はセッションのロックを保持したまま行うため、
// 変更の順序と世代番号の順序は常に一致します。
type Session struct {
	mu        sync.Mutex
	renderer  *composite.Renderer
	images    domain.GeneratedImageSet
	overlays  *domain.OverlayList
	reference domain.ReferenceSettings
}

// New は Renderer を注入して空のセッションを作成します。
func New(renderer *composite.Renderer) (*Session, error) {
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	return &Session{
		renderer: renderer,
		overlays: domain.NewOverlayList(),
	}, nil
}

// --- 生成画像 ---

// SetGeneratedImages は新しい生成結果を設定し、先頭の画像を選択します。
func (s *Session) SetGeneratedImages(ctx context.Context, images []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = domain.NewGeneratedImageSet(images)
	slog.InfoContext(ctx, "生成画像を設定しました", "count", s.images.Len())
	s.triggerLocked(ctx)
}

// ClearGeneratedImages は生成結果を破棄します。新しい生成の開始時に呼び出します。
func (s *Session) ClearGeneratedImages(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = domain.GeneratedImageSet{}
	s.triggerLocked(ctx)
}

// Select は表示・合成に使う生成画像を切り替えます。
func (s *Session) Select(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.images.Select(index); err != nil {
		return err
	}
	s.triggerLocked(ctx)
	return nil
}

// --- オーバーレイ ---

// AddOverlay は既定の配置で空のスロットを追加します。
func (s *Session) AddOverlay(ctx context.Context) (domain.OverlayEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reference.Active() {
		return domain.OverlayEntry{}, ErrReferenceActive
	}
	e, ok := s.overlays.Add()
	if !ok {
		return domain.OverlayEntry{}, ErrOverlayLimit
	}
	s.triggerLocked(ctx)
	return e, nil
}

// SetOverlayPlacement はスロットの位置と倍率を更新します。
func (s *Session) SetOverlayPlacement(ctx context.Context, id int64, x, y, scale float64) error {
	return s.mutateOverlays(ctx, func(l *domain.OverlayList) error {
		return l.SetPlacement(id, x, y, scale)
	})
}

// SetOverlaySource はスロットのソース参照（data URI, URL, gs:// など）を設定します。
func (s *Session) SetOverlaySource(ctx context.Context, id int64, source string) error {
	return s.mutateOverlays(ctx, func(l *domain.OverlayList) error {
		return l.SetSource(id, source)
	})
}

// SetOverlaySourceBytes はアップロードされたファイルを data URI に変換してスロットに設定します。
func (s *Session) SetOverlaySourceBytes(ctx context.Context, id int64, data []byte) error {
	uri, err := toImageDataURI(data)
	if err != nil {
		return err
	}
	return s.SetOverlaySource(ctx, id, uri)
}

// ClearOverlaySource はスロットのソースを外します。スロットは残ります。
func (s *Session) ClearOverlaySource(ctx context.Context, id int64) error {
	return s.mutateOverlays(ctx, func(l *domain.OverlayList) error {
		return l.ClearSource(id)
	})
}

// RemoveOverlay はスロットを削除します。
func (s *Session) RemoveOverlay(ctx context.Context, id int64) error {
	return s.mutateOverlays(ctx, func(l *domain.OverlayList) error {
		return l.Remove(id)
	})
}

// ReplaceOverlays はオーバーレイ一覧全体を置き換えます。上限を超えた分は切り捨てられます。
func (s *Session) ReplaceOverlays(ctx context.Context, entries []domain.OverlayEntry) error {
	return s.mutateOverlays(ctx, func(l *domain.OverlayList) error {
		l.Replace(entries)
		return nil
	})
}

func (s *Session) mutateOverlays(ctx context.Context, fn func(l *domain.OverlayList) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reference.Active() {
		return ErrReferenceActive
	}
	if err := fn(s.overlays); err != nil {
		return err
	}
	s.triggerLocked(ctx)
	return nil
}

// --- 参照写真 ---

// SetReferencePhoto は参照写真を設定します。
// 写真を設定するとオーバーレイはすべて破棄されます。nil を渡すと写真のみ外します。
func (s *Session) SetReferencePhoto(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(data) == 0 {
		s.reference.Photo = nil
		s.reference.PhotoMIME = ""
		s.triggerLocked(ctx)
		return nil
	}
	if !imgutil.IsImage(data) {
		return ErrNotImage
	}
	s.reference.Photo = bytes.Clone(data)
	s.reference.PhotoMIME = imgutil.DetectMIME(data)
	s.overlays.Clear()
	slog.InfoContext(ctx, "参照写真を設定しました", "mime", s.reference.PhotoMIME, "bytes", len(data))
	s.triggerLocked(ctx)
	return nil
}

// SetUsePhoto は参照写真モードを切り替えます。無効にすると写真と関連フラグはクリアされます。
func (s *Session) SetUsePhoto(ctx context.Context, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reference.SetUsePhoto(on)
	s.triggerLocked(ctx)
}

// SetReferenceFlags は参照写真のどの要素を生成に反映するかを設定します。
func (s *Session) SetReferenceFlags(ctx context.Context, useStyle, useComposition, keepOverlays bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if (useStyle || useComposition || keepOverlays) && !s.reference.HasPhoto() {
		return ErrNoReferencePhoto
	}
	s.reference.UseStyle = useStyle
	s.reference.UseComposition = useComposition
	s.reference.KeepOverlays = keepOverlays
	s.triggerLocked(ctx)
	return nil
}

// Reference は現在の参照写真設定のコピーを返します。
func (s *Session) Reference() domain.ReferenceSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyReference(s.reference)
}

// --- 出力 ---

// Display は表示パネルの内容を返します。
func (s *Session) Display() composite.Display {
	s.mu.Lock()
	base, _ := s.images.SelectedImage()
	s.mu.Unlock()

	comp, _ := s.renderer.Composite()
	return composite.BuildDisplay(comp, base, s.renderer.Err())
}

// Download はダウンロード用の画像を返します。
func (s *Session) Download() (*composite.Download, error) {
	s.mu.Lock()
	base, _ := s.images.SelectedImage()
	s.mu.Unlock()

	comp, _ := s.renderer.Composite()
	return composite.BuildDownload(comp, base)
}

// Snapshot は現在の状態のコピーを返します。
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Images:    domain.GeneratedImageSet{Images: append([]string(nil), s.images.Images...), Selected: s.images.Selected},
		Overlays:  s.overlays.Entries(),
		Reference: copyReference(s.reference),
		Render:    s.renderer.State(),
	}
}

// Wait は進行中の合成がすべて終わるまで待ちます。
func (s *Session) Wait() {
	s.renderer.Wait()
}

func (s *Session) triggerLocked(ctx context.Context) {
	base, _ := s.images.SelectedImage()
	s.renderer.Trigger(ctx, composite.Inputs{
		Base:            base,
		Overlays:        s.overlays.Entries(),
		ReferenceActive: s.reference.Active(),
	})
}

func copyReference(r domain.ReferenceSettings) domain.ReferenceSettings {
	r.Photo = bytes.Clone(r.Photo)
	return r
}

func toImageDataURI(data []byte) (string, error) {
	if !imgutil.IsImage(data) {
		return "", ErrNotImage
	}
	return imgutil.ToDataURI(imgutil.DetectMIME(data), data), nil
}
