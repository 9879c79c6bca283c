package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shouni/gemini-composite-kit/pkg/composite"
	"github.com/shouni/gemini-composite-kit/pkg/config"
	"github.com/shouni/gemini-composite-kit/pkg/generator"
	"github.com/shouni/gemini-composite-kit/pkg/loader"
	"github.com/shouni/gemini-composite-kit/pkg/session"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/gcsfactory"
	"google.golang.org/genai"
)

const defaultGeminiTemperature = float32(0.2)

var errGCSUnavailable = errors.New("GCS クライアントが利用できないため gs:// は扱えません")

type inputReader interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

type outputWriter interface {
	Write(ctx context.Context, path string, r io.Reader, contentType string) error
}

// appContext は各コマンドで共有するコンポーネントをまとめたものなのだ。
type appContext struct {
	cfg     *config.Config
	reader  inputReader
	writer  outputWriter
	session *session.Session
}

// setupAppContext は設定からローダー、レンダラー、セッションを組み立てるのだ。
func setupAppContext(ctx context.Context, cfg *config.Config) (*appContext, error) {
	reader, writer := setupRemoteIO(ctx)

	httpClient := httpkit.New(cfg.HTTPTimeout)
	imgCache := cache.New(cfg.CacheTTL, cfg.CacheCleanup)

	imgLoader := loader.NewImageLoader(loader.Options{
		HTTPClient:      httpClient,
		Reader:          reader,
		Cache:           imgCache,
		CacheTTL:        cfg.CacheTTL,
		AllowLocalFiles: cfg.AllowLocalFiles,
	})

	renderer, err := composite.NewRenderer(imgLoader, composite.NewAssembler())
	if err != nil {
		return nil, fmt.Errorf("レンダラーの初期化に失敗しました: %w", err)
	}
	sess, err := session.New(renderer)
	if err != nil {
		return nil, fmt.Errorf("セッションの初期化に失敗しました: %w", err)
	}

	return &appContext{cfg: cfg, reader: reader, writer: writer, session: sess}, nil
}

// setupRemoteIO は GCS 対応の Reader/Writer を作るのだ。
// 認証情報がない環境ではローカルファイルのみを扱う実装にフォールバックするのだよ。
func setupRemoteIO(ctx context.Context) (inputReader, outputWriter) {
	factory, err := gcsfactory.NewGCSClientFactory(ctx)
	if err != nil {
		slog.WarnContext(ctx, "GCS クライアントを初期化できないため、ローカルファイルのみを扱います", "error", err)
		return localIO{}, localIO{}
	}
	reader, err := factory.NewInputReader()
	if err != nil {
		slog.WarnContext(ctx, "InputReader の初期化に失敗しました", "error", err)
		return localIO{}, localIO{}
	}
	writer, err := factory.NewOutputWriter()
	if err != nil {
		slog.WarnContext(ctx, "OutputWriter の初期化に失敗しました", "error", err)
		return reader, localIO{}
	}
	return reader, writer
}

// setupGenerator は Gemini / Imagen クライアントからジェネレーターを作るのだ。
func setupGenerator(ctx context.Context, cfg *config.Config) (*generator.GeminiGenerator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須なのだ")
	}

	aiClient, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:      cfg.GeminiAPIKey,
		Temperature: genai.Ptr(defaultGeminiTemperature),
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("Imagen クライアントの初期化に失敗しました: %w", err)
	}

	return generator.NewGeminiGenerator(aiClient, genaiClient.Models, generator.Options{
		StandardModel: cfg.StandardModel,
		PremiumModel:  cfg.PremiumModel,
		RateInterval:  cfg.RateInterval,
	})
}

func (a *appContext) readInput(ctx context.Context, path string) ([]byte, error) {
	rc, err := a.reader.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%s を開けませんでした: %w", path, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (a *appContext) writeOutput(ctx context.Context, path string, r io.Reader, contentType string) error {
	if err := a.writer.Write(ctx, path, r, contentType); err != nil {
		return fmt.Errorf("%s への保存に失敗しました: %w", path, err)
	}
	return nil
}

// localIO は GCS が使えない環境向けのローカルファイル実装なのだ。
type localIO struct{}

func (localIO) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if strings.HasPrefix(uri, "gs://") {
		return nil, errGCSUnavailable
	}
	return os.Open(strings.TrimPrefix(uri, "file://"))
}

func (localIO) Write(ctx context.Context, path string, r io.Reader, contentType string) error {
	if strings.HasPrefix(path, "gs://") {
		return errGCSUnavailable
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
