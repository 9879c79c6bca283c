package generator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRequest = errors.New("invalid generation request")
	ErrNoImage        = errors.New("no image was generated")

	// ErrBilling はクォータ超過（多くの場合は課金未設定）を表します。
	ErrBilling = errors.New("billing is not enabled for this Google Cloud project; enable billing and try again")
	// ErrInvalidAPIKey は API キーが無効であることを表します。
	ErrInvalidAPIKey = errors.New("the API key is not valid; check for typos or restrictions")
)

// ClassifyError は API エラーをユーザーが対処できる種類に分類します。
// 分類できないエラーはそのまま返します。
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBilling) || errors.Is(err, ErrInvalidAPIKey) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return fmt.Errorf("%w: %w", ErrBilling, err)
	case strings.Contains(msg, "INVALID_ARGUMENT"),
		strings.Contains(strings.ToLower(msg), "api key not valid"):
		return fmt.Errorf("%w: %w", ErrInvalidAPIKey, err)
	}
	return err
}
