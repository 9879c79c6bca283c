package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/shouni/gemini-composite-kit/pkg/config"
	"github.com/shouni/gemini-composite-kit/pkg/imgutil"

	"github.com/spf13/cobra"
)

type composeOptions struct {
	BaseFile   string
	Overlays   []string
	OutputFile string
}

var composeOpts composeOptions

// composeCmd は、手元のベース画像にオーバーレイを重ねて書き出すのだ。
var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "ベース画像にオーバーレイを合成しますなのだ。",
	Long: `ベース画像（ローカル or gs://）に --overlay で指定した画像を順番に重ねるのだ。
後に指定したオーバーレイほど手前に描かれるのだよ。`,
	RunE: composeCommand,
}

func init() {
	composeCmd.Flags().StringVarP(&composeOpts.BaseFile, "base", "b", "", "ベース画像のパス（ローカル or gs://...）なのだ。")
	composeCmd.Flags().StringArrayVar(&composeOpts.Overlays, "overlay", nil, "オーバーレイ指定（SRC[@x,y[,scale]]）。最大5つまでなのだ。")
	composeCmd.Flags().StringVarP(&composeOpts.OutputFile, "output-file", "o", config.DefaultOutputFile, "保存パス（ローカル or gs://...）なのだ。")
	_ = composeCmd.MarkFlagRequired("base")
}

func composeCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := setupAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	data, err := app.readInput(ctx, composeOpts.BaseFile)
	if err != nil {
		return err
	}
	if !imgutil.IsImage(data) {
		return fmt.Errorf("ベース画像として認識できません: %s", composeOpts.BaseFile)
	}
	app.session.SetGeneratedImages(ctx, []string{base64.StdEncoding.EncodeToString(data)})

	if err := applyOverlays(ctx, app, composeOpts.Overlays); err != nil {
		return err
	}

	return exportComposite(ctx, app, composeOpts.OutputFile)
}

// exportComposite は合成の完了を待ち、結果を保存するのだ。
func exportComposite(ctx context.Context, app *appContext, outputFile string) error {
	app.session.Wait()

	snap := app.session.Snapshot()
	if runErr := snap.Render.Err; runErr != nil {
		return fmt.Errorf("%s: %w", runErr.Message, runErr)
	}

	dl, err := app.session.Download()
	if err != nil {
		return fmt.Errorf("保存する画像がありません: %w", err)
	}
	if err := app.writeOutput(ctx, outputFile, bytes.NewReader(dl.Data), dl.MimeType); err != nil {
		return err
	}

	slog.InfoContext(ctx, "合成画像を保存したのだ！",
		"path", outputFile, "overlays", len(snap.Overlays), "bytes", len(dl.Data))
	return nil
}
