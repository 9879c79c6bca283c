package composite

import (
	"errors"
	"fmt"

	"github.com/shouni/gemini-composite-kit/pkg/loader"
)

var (
	ErrNoBaseImage    = errors.New("base image is required")
	ErrEmptyBaseImage = errors.New("base image has no pixels")

	errStaleRun = errors.New("stale composite run")
)

const (
	msgOverlayLoad = "Failed to load an overlay image. Please try re-uploading it."
	msgBaseLoad    = "Failed to load the generated image. Please try generating it again."
	msgEncode      = "Failed to export the composite image. Please try again."
	msgUnknown     = "Failed to compose the image."
)

// EncodeError は最終サーフェスのエクスポートに失敗したことを表します。
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("composite encode failed: %v", e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// overlayLoadError はどのオーバーレイの読み込みで失敗したかを保持します。
type overlayLoadError struct {
	id  int64
	err error
}

func (e *overlayLoadError) Error() string {
	return fmt.Sprintf("overlay %d: %v", e.id, e.err)
}

func (e *overlayLoadError) Unwrap() error {
	return e.err
}

// RunError は1回の合成実行の失敗を、ユーザー向けメッセージとともに保持します。
// 実行境界の外に例外として伝播することはなく、Renderer の状態として公開されます。
type RunError struct {
	Generation uint64
	Message    string
	// OverlayID は読み込みに失敗したオーバーレイの ID です。ベース画像やエンコードの失敗では 0 です。
	OverlayID int64
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("composite run %d failed: %v", e.Generation, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func newRunError(gen uint64, err error) *RunError {
	re := &RunError{Generation: gen, Message: msgUnknown, Err: err}

	var ole *overlayLoadError
	var ee *EncodeError
	switch {
	case errors.As(err, &ole):
		re.Message = msgOverlayLoad
		re.OverlayID = ole.id
	case loader.IsLoadError(err):
		re.Message = msgBaseLoad
	case errors.As(err, &ee):
		re.Message = msgEncode
	}
	return re
}
