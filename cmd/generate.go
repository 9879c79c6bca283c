package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shouni/gemini-composite-kit/pkg/config"
	"github.com/shouni/gemini-composite-kit/pkg/domain"

	"github.com/spf13/cobra"
)

type generateOptions struct {
	Prompt         string
	PromptFile     string
	Tier           string
	Count          int
	AspectRatio    string
	ReferenceFile  string
	UseStyle       bool
	UseComposition bool
	KeepOverlays   bool
	Select         int
	Overlays       []string
	OutputFile     string
}

var genOpts generateOptions

// generateCmd は、画像を生成し、選択した1枚にオーバーレイを合成して保存するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "AIに画像を生成させ、オーバーレイを合成しますなのだ。",
	Long: `Premium（Imagen、1枚 or 4枚）または Standard（Gemini Flash Image、1枚）で画像を生成するのだ。
--reference を指定すると参照写真モードになり、オーバーレイは使えないのだよ。`,
	RunE: generateCommand,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genOpts.Prompt, "prompt", "p", "", "生成プロンプトなのだ。")
	f.StringVarP(&genOpts.PromptFile, "prompt-file", "f", "", "プロンプトを読み込むファイル（ローカル or gs://...）なのだ。")
	f.StringVar(&genOpts.Tier, "tier", config.DefaultTier, "生成ティア（premium, standard）なのだ。")
	f.IntVarP(&genOpts.Count, "count", "n", 1, "Premium ティアで生成する枚数（1 or 4）なのだ。")
	f.StringVarP(&genOpts.AspectRatio, "aspect-ratio", "a", config.DefaultAspectRatio, "アスペクト比（1:1, 3:4, 9:16）なのだ。")
	f.StringVarP(&genOpts.ReferenceFile, "reference", "r", "", "参照写真のパスなのだ。")
	f.BoolVar(&genOpts.UseStyle, "use-style", false, "参照写真のスタイルを反映するのだ。")
	f.BoolVar(&genOpts.UseComposition, "use-composition", false, "参照写真の構図を反映するのだ。")
	f.BoolVar(&genOpts.KeepOverlays, "keep-overlays", false, "参照写真の文字やアイコンを残すのだ。")
	f.IntVarP(&genOpts.Select, "select", "s", 0, "合成に使う画像のインデックスなのだ。")
	f.StringArrayVar(&genOpts.Overlays, "overlay", nil, "オーバーレイ指定（SRC[@x,y[,scale]]）なのだ。")
	f.StringVarP(&genOpts.OutputFile, "output-file", "o", config.DefaultOutputFile, "保存パス（ローカル or gs://...）なのだ。")
}

func generateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := setupAppContext(ctx, cfg)
	if err != nil {
		return err
	}
	gen, err := setupGenerator(ctx, cfg)
	if err != nil {
		return err
	}

	prompt, err := resolvePrompt(ctx, app)
	if err != nil {
		return err
	}
	req := domain.GenerationRequest{
		Prompt:      prompt,
		AspectRatio: genOpts.AspectRatio,
		NumImages:   genOpts.Count,
		Tier:        domain.Tier(strings.ToLower(genOpts.Tier)),
	}

	if genOpts.ReferenceFile != "" {
		photo, err := app.readInput(ctx, genOpts.ReferenceFile)
		if err != nil {
			return err
		}
		app.session.SetUsePhoto(ctx, true)
		if err := app.session.SetReferencePhoto(ctx, photo); err != nil {
			return fmt.Errorf("参照写真を設定できません: %w", err)
		}
		if err := app.session.SetReferenceFlags(ctx, genOpts.UseStyle, genOpts.UseComposition, genOpts.KeepOverlays); err != nil {
			return err
		}
		ref := app.session.Reference()
		req.ReferencePhoto = ref.Photo
		req.ReferenceMIME = ref.PhotoMIME
	}

	slog.InfoContext(ctx, "画像生成パイプラインを起動するのだ！",
		"tier", req.Tier, "count", req.NumImages, "aspect_ratio", req.AspectRatio,
		"reference", len(req.ReferencePhoto) > 0, "output", genOpts.OutputFile)

	app.session.ClearGeneratedImages(ctx)
	set, err := gen.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("画像生成中にエラーが発生したのだ: %w", err)
	}
	app.session.SetGeneratedImages(ctx, set.Images)
	if err := app.session.Select(ctx, genOpts.Select); err != nil {
		return err
	}

	if err := applyOverlays(ctx, app, genOpts.Overlays); err != nil {
		return err
	}
	return exportComposite(ctx, app, genOpts.OutputFile)
}

func resolvePrompt(ctx context.Context, app *appContext) (string, error) {
	if genOpts.Prompt != "" {
		return genOpts.Prompt, nil
	}
	if genOpts.PromptFile == "" {
		return "", fmt.Errorf("プロンプト（--prompt または --prompt-file）を指定してほしいのだ")
	}
	if genOpts.PromptFile == "-" {
		data, err := readAllStdin()
		return strings.TrimSpace(string(data)), err
	}
	data, err := app.readInput(ctx, genOpts.PromptFile)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readAllStdin() ([]byte, error) {
	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("標準入力からプロンプトを読み込めません")
	}
	return io.ReadAll(os.Stdin)
}
