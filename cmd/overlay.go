package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shouni/gemini-composite-kit/pkg/domain"
)

// overlaySpec は --overlay フラグ1つ分の指定なのだ。
//
//	logo.png                  既定の配置（中心・20%）
//	logo.png@90,90,15         x, y, scale（%）
//	https://example.com/a.png@10,10
type overlaySpec struct {
	Source string
	X      float64
	Y      float64
	Scale  float64
}

func parseOverlaySpec(raw string) (overlaySpec, error) {
	spec := overlaySpec{
		X:     domain.DefaultOverlayX,
		Y:     domain.DefaultOverlayY,
		Scale: domain.DefaultOverlayScale,
	}

	src, placement := raw, ""
	if i := strings.LastIndex(raw, "@"); i >= 0 && !strings.HasPrefix(raw, "data:") {
		src, placement = raw[:i], raw[i+1:]
	}
	spec.Source = strings.TrimSpace(src)
	if spec.Source == "" {
		return overlaySpec{}, fmt.Errorf("オーバーレイのソースが空です: %q", raw)
	}

	if placement != "" {
		fields := strings.Split(placement, ",")
		if len(fields) < 2 || len(fields) > 3 {
			return overlaySpec{}, fmt.Errorf("配置は x,y または x,y,scale で指定してほしいのだ: %q", placement)
		}
		vals := []*float64{&spec.X, &spec.Y, &spec.Scale}
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return overlaySpec{}, fmt.Errorf("配置の値が数値ではありません: %q: %w", f, err)
			}
			*vals[i] = v
		}
	}

	if err := domain.ValidatePlacement(spec.X, spec.Y, spec.Scale); err != nil {
		return overlaySpec{}, err
	}
	return spec, nil
}

// isRemoteSource はローダーに直接渡せるソース参照かを返すのだ。
// それ以外はローカルパスとして読み込み、data URI に変換するのだよ。
func isRemoteSource(src string) bool {
	return strings.HasPrefix(src, "data:") || strings.Contains(src, "://")
}

// applyOverlays はフラグで指定されたオーバーレイを順番にセッションへ追加するのだ。
// 指定の順番がそのまま重なり順になるのだよ。
func applyOverlays(ctx context.Context, app *appContext, raws []string) error {
	for _, raw := range raws {
		spec, err := parseOverlaySpec(raw)
		if err != nil {
			return err
		}

		e, err := app.session.AddOverlay(ctx)
		if err != nil {
			return fmt.Errorf("オーバーレイを追加できません: %w", err)
		}
		if err := app.session.SetOverlayPlacement(ctx, e.ID, spec.X, spec.Y, spec.Scale); err != nil {
			return err
		}

		if isRemoteSource(spec.Source) && !strings.HasPrefix(spec.Source, "gs://") {
			err = app.session.SetOverlaySource(ctx, e.ID, spec.Source)
		} else {
			var data []byte
			if data, err = app.readInput(ctx, spec.Source); err == nil {
				err = app.session.SetOverlaySourceBytes(ctx, e.ID, data)
			}
		}
		if err != nil {
			return fmt.Errorf("オーバーレイ %q の設定に失敗しました: %w", spec.Source, err)
		}
	}
	return nil
}
