package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shouni/gemini-composite-kit/internal/server"
	"github.com/shouni/gemini-composite-kit/pkg/generator"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

// serveCmd は、合成セッションを HTTP API として公開するのだ。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "合成セッションを HTTP API として起動しますなのだ。",
	RunE:  serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "待ち受けアドレス（未指定なら ADDR 環境変数）なのだ。")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setupAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	// API キーがなくても合成だけは使えるようにするのだ
	var gen generator.ImageGenerator
	if g, err := setupGenerator(ctx, cfg); err != nil {
		slog.WarnContext(ctx, "ジェネレーターを初期化できないため、生成 API は無効になります", "error", err)
	} else {
		gen = g
	}

	srv, err := server.New(app.session, gen, server.Options{Logger: slog.Default()})
	if err != nil {
		return err
	}

	addr := cfg.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "HTTP サーバーを起動したのだ！", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("シャットダウンを開始するのだ")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	app.session.Wait()
	return nil
}
