package composite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"image"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/shouni/gemini-composite-kit/pkg/domain"
	"github.com/shouni/gemini-composite-kit/pkg/loader"

	"golang.org/x/sync/errgroup"
)

// Inputs は合成結果を決定する宣言済みの入力です。
// どれか1つでも変化したら Trigger を呼び出します。
type Inputs struct {
	// Base は選択中の生成画像（base64 ペイロードまたは data URI）。空なら未選択です。
	Base string
	// Overlays はオーバーレイ一覧全体。アクティブでないエントリは合成時に除外されます。
	Overlays []domain.OverlayEntry
	// ReferenceActive が true の間は合成を行いません。
	ReferenceActive bool
}

// State は Renderer の状態のスナップショットです。
type State struct {
	Generation uint64
	Pending    bool
	Composite  *Composite
	Err        *RunError
}

// Renderer は入力の変化ごとに合成をやり直し、常に最新の入力に対応した合成結果だけを公開します。
//
// Trigger のたびに世代番号を採番し、実行は別 goroutine で進みます。
// 実行中に次の Trigger が来た場合、古い実行の結果は破棄されます（後勝ち）。
type Renderer struct {
	loader    loader.Loader
	assembler *Assembler

	mu         sync.Mutex
	idle       *sync.Cond
	generation uint64
	running    int
	pending    bool
	wanted     string
	current    *Composite
	lastErr    *RunError
}

// NewRenderer は依存関係を注入して Renderer を初期化します。
// assembler が nil の場合は新しく作成します。
func NewRenderer(l loader.Loader, assembler *Assembler) (*Renderer, error) {
	if l == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if assembler == nil {
		assembler = NewAssembler()
	}
	r := &Renderer{
		loader:    recoverLoader{l},
		assembler: assembler,
	}
	r.idle = sync.NewCond(&r.mu)
	return r, nil
}

// Trigger は新しい入力で再計算を要求し、採番した世代番号を返します。
// 呼び出し元をブロックすることはありません。
func (r *Renderer) Trigger(ctx context.Context, in Inputs) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	gen := r.generation
	r.lastErr = nil

	if in.ReferenceActive || in.Base == "" {
		r.wanted = ""
		r.current = nil
		r.pending = false
		slog.DebugContext(ctx, "合成をスキップしました", "generation", gen, "reference_active", in.ReferenceActive)
		return gen
	}

	active := activeOverlays(in.Overlays)
	fp := Fingerprint(in.Base, active)
	r.wanted = fp

	if r.current != nil && r.current.Fingerprint == fp {
		r.pending = false
		return gen
	}

	r.pending = true
	r.running++
	// 実行は Trigger の呼び出し元（HTTP リクエストなど）より長く生きる
	go r.run(context.WithoutCancel(ctx), gen, fp, in.Base, active)
	return gen
}

// Composite は最新の入力に対応する合成結果を返します。
// 再計算中や入力と一致しない古い結果は返しません。
func (r *Renderer) Composite() (*Composite, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.validLocked()
	if c == nil {
		return nil, false
	}
	return c.clone(), true
}

// Err は最新の実行で発生したエラーを返します。
func (r *Renderer) Err() *RunError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// State は現在の状態のスナップショットを返します。
func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := State{
		Generation: r.generation,
		Pending:    r.pending,
		Err:        r.lastErr,
	}
	if c := r.validLocked(); c != nil {
		st.Composite = c.clone()
	}
	return st
}

// Wait は実行中の合成（破棄予定のものも含む）がすべて終わるまで待ちます。
func (r *Renderer) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.running > 0 {
		r.idle.Wait()
	}
}

func (r *Renderer) validLocked() *Composite {
	if r.current == nil || r.wanted == "" || r.current.Fingerprint != r.wanted {
		return nil
	}
	return r.current
}

func (r *Renderer) isStale(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gen != r.generation
}

func (r *Renderer) run(ctx context.Context, gen uint64, fp, base string, overlays []domain.OverlayEntry) {
	comp, err := r.render(ctx, gen, base, overlays)
	if comp != nil {
		comp.Fingerprint = fp
	}
	r.publish(ctx, gen, comp, err)
}

// render はベース画像とオーバーレイを並行して読み込み、合成します。
// panic も含めてここで捕捉し、呼び出し元にはエラーとして返します。
func (r *Renderer) render(ctx context.Context, gen uint64, base string, overlays []domain.OverlayEntry) (comp *Composite, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("composite run panicked: %v", rec)
		}
	}()

	baseCh := loader.LoadAsync(ctx, r.loader, base)

	layers := make([]Layer, len(overlays))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, o := range overlays {
		eg.Go(func() error {
			img, err := r.loader.Load(egCtx, o.Source)
			if err != nil {
				return &overlayLoadError{id: o.ID, err: err}
			}
			layers[i] = Layer{Image: img, X: o.X, Y: o.Y, Scale: o.Scale}
			return nil
		})
	}
	overlayErr := eg.Wait()

	res := <-baseCh
	if res.Err != nil {
		return nil, res.Err
	}
	if overlayErr != nil {
		return nil, overlayErr
	}

	if r.isStale(gen) {
		return nil, errStaleRun
	}
	return r.assembler.Assemble(res.Image, layers)
}

func (r *Renderer) publish(ctx context.Context, gen uint64, comp *Composite, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.idle.Broadcast()
	r.running--

	if gen != r.generation {
		slog.DebugContext(ctx, "古い合成結果を破棄しました", "generation", gen, "latest", r.generation)
		return
	}
	r.pending = false

	if err == nil {
		r.current = comp
		r.lastErr = nil
		slog.InfoContext(ctx, "合成画像を更新しました",
			"generation", gen, "width", comp.Width, "height", comp.Height, "bytes", len(comp.Data))
		return
	}
	if errors.Is(err, errStaleRun) {
		return
	}

	r.lastErr = newRunError(gen, err)
	if r.current != nil && r.current.Fingerprint != r.wanted {
		r.current = nil
	}
	slog.WarnContext(ctx, "合成に失敗しました", "generation", gen, "overlay_id", r.lastErr.OverlayID, "error", err)
}

// recoverLoader はロード中の panic をエラーに変換します。
// ロードは実行ごとに別 goroutine で行われるため、render の recover では捕捉できません。
type recoverLoader struct {
	loader.Loader
}

func (l recoverLoader) Load(ctx context.Context, src string) (img image.Image, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			img, err = nil, fmt.Errorf("image load panicked: %v", rec)
		}
	}()
	return l.Loader.Load(ctx, src)
}

func activeOverlays(entries []domain.OverlayEntry) []domain.OverlayEntry {
	var out []domain.OverlayEntry
	for _, e := range entries {
		if e.Active() {
			out = append(out, e)
		}
	}
	return out
}

// Fingerprint はベース画像と重なり順のアクティブなオーバーレイ（ソース内容・配置）からダイジェストを計算します。
// オーバーレイの ID は描画結果に影響しないため含めません。
func Fingerprint(base string, active []domain.OverlayEntry) string {
	h := sha256.New()
	writeField(h, base)
	for _, e := range active {
		writeField(h, e.Source)
		writeField(h, strconv.FormatFloat(e.X, 'g', -1, 64))
		writeField(h, strconv.FormatFloat(e.Y, 'g', -1, 64))
		writeField(h, strconv.FormatFloat(e.Scale, 'g', -1, 64))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	io.WriteString(h, strconv.Itoa(len(s)))
	io.WriteString(h, ":")
	io.WriteString(h, s)
}
