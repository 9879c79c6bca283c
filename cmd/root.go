package cmd

import (
	"log/slog"
	"os"

	"github.com/shouni/gemini-composite-kit/pkg/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfg *config.Config

	logLevel        string
	logJSON         bool
	allowLocalFiles bool
)

var rootCmd = &cobra.Command{
	Use:   "gemini-composite",
	Short: "生成画像にオーバーレイを重ねて1枚の画像に合成するのだ。",
	Long: `Gemini / Imagen で生成した画像に、ロゴや透かしなどのオーバーレイ画像を
% 指定で配置し、PNG として書き出すのだ。出力先はローカルでも gs:// でも良いのだよ。`,
	SilenceUsage:      true,
	PersistentPreRunE: preRunAppE,
}

func init() {
	addAppFlags(rootCmd)
	rootCmd.AddCommand(composeCmd, generateCmd, serveCmd)
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "ログレベル（debug, info, warn, error）なのだ。")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "ログを JSON 形式で出力するのだ。")
	rootCmd.PersistentFlags().BoolVar(&allowLocalFiles, "allow-local-files", false, "file:// のオーバーレイソースを許可するのだ。")
}

// preRunAppE は、.env と環境変数から設定を読み込み、ロガーを準備するのだ。
// フラグが明示された場合は環境変数より優先するのだよ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg = config.LoadConfig()
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if allowLocalFiles {
		cfg.AllowLocalFiles = true
	}

	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
